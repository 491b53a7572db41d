package techniques

import (
	"fmt"
	"time"

	"github.com/polisai/huntgen/pkg/domain"
	"github.com/polisai/huntgen/pkg/events"
)

var remoteServices = &Technique{
	Stage:       domain.StageLateralMovement,
	Name:        "remote_services",
	Aliases:     []string{"rdp", "t1021"},
	Description: "RDP and SMB sessions from victim devices to other hosts; their owners join the cohort.",
	Default:     true,
	run:         runRemoteServices,
}

func runRemoteServices(a *attack) (domain.Cohort, []domain.QARecord, error) {
	if err := requireVictims(a); err != nil {
		return nil, nil, err
	}
	a.after(30*time.Minute, 6*time.Hour)
	fleet := a.fleet()
	mstsc := events.Process{FileName: "mstsc.exe", CommandLine: "mstsc.exe /v:"}
	ports := []struct {
		port  int
		proto string
	}{{3389, "Tcp"}, {445, "Tcp"}}

	cohort := append(domain.Cohort{}, a.victims()...)
	seen := map[string]bool{}
	for _, u := range upns(cohort) {
		seen[u] = true
	}
	var offset time.Duration
	for _, v := range a.victims() {
		acct := accountOf(v)
		src := a.device(acct)
		for range a.f.Number(1, 2) {
			if len(fleet) == 0 {
				break
			}
			dst := fleet[a.f.Number(0, len(fleet)-1)]
			if dst.ID == src.ID {
				continue
			}
			p := ports[a.f.Number(0, len(ports)-1)]
			offset += time.Duration(a.f.Number(60, 1200)) * time.Second
			proc := events.Process{FileName: mstsc.FileName, CommandLine: mstsc.CommandLine + dst.Name}
			if p.port == 445 {
				proc = events.Process{FileName: "PsExec.exe", CommandLine: fmt.Sprintf(`PsExec.exe \\%s -s cmd.exe`, dst.Name)}
			}
			a.emit(events.DeviceNetworkEvents, events.NetworkEvent(a.f, a.at(offset), acct, src, proc, events.Connection{
				RemoteIP: dst.PrivateIP, RemoteURL: dst.Name, Port: p.port, Protocol: p.proto,
			}))
			a.emit(events.DeviceNetworkEvents, events.NetworkEvent(a.f, a.at(offset+time.Second), acct, dst, events.Process{FileName: "svchost.exe", CommandLine: "svchost.exe -k termsvcs"}, events.Connection{
				Inbound: true, RemoteIP: src.PrivateIP, RemoteURL: src.Name, Port: p.port, Protocol: p.proto,
			}))
			owner := a.ownerOf(dst)
			if owner == "" || seen[owner] {
				continue
			}
			if row, ok := a.identity(owner); ok {
				seen[owner] = true
				cohort = append(cohort, victimFromIdentity(row))
			}
		}
	}

	conns := a.produced(events.DeviceNetworkEvents)
	outbound := func(r domain.Row) bool { return r["ActionType"] == events.ActionOutbound }
	qa := []domain.QARecord{
		domain.QA("How many remote sessions were opened from compromised devices to other hosts?", countRows(conns, outbound)),
		domain.QA("How many distinct hosts were reached over RDP or SMB from compromised devices?", distinct(conns, "RemoteUrl", outbound)),
		domain.QA("Which accounts are compromised after lateral movement?", upns(cohort)),
	}
	return cohort, qa, nil
}

var internalSpearphishing = &Technique{
	Stage:       domain.StageLateralMovement,
	Name:        "internal_spearphishing",
	Aliases:     []string{"t1534"},
	Description: "Compromised mailboxes send the phishing link to colleagues; those who click join the cohort.",
	run:         runInternalSpearphishing,
}

func runInternalSpearphishing(a *attack) (domain.Cohort, []domain.QARecord, error) {
	if err := requireVictims(a); err != nil {
		return nil, nil, err
	}
	a.after(time.Hour, 12*time.Hour)
	ids := a.identities()
	url := a.in.Attacker["PhishingURL"]
	subject := "Shared document: " + a.f.Word() + " review"

	cohort := append(domain.Cohort{}, a.victims()...)
	seen := map[string]bool{}
	for _, u := range upns(cohort) {
		seen[u] = true
	}
	var offset time.Duration
	for _, v := range a.victims() {
		sender := accountOf(v)
		dev := a.device(sender)
		for range a.f.Number(1, 3) {
			if len(ids) == 0 {
				break
			}
			row := ids[a.f.Number(0, len(ids)-1)]
			rcpt := events.AccountFromRow(row)
			if rcpt.Upn == sender.Upn {
				continue
			}
			offset += time.Duration(a.f.Number(30, 600)) * time.Second
			msgID := a.f.UUID()
			a.emit(events.EmailEvents, events.EmailEvent(a.f, a.at(offset), events.Email{
				Sender: sender, SenderIPv4: dev.PublicIP, Recipient: rcpt, Subject: subject,
				Direction: "Intra-org", URL: url, MessageID: msgID,
			}))
			if seen[rcpt.Upn] || a.f.Float64() >= 0.5 {
				continue
			}
			seen[rcpt.Upn] = true
			cohort = append(cohort, victimFromIdentity(row))
			a.emit(events.UrlClickEvents, events.UrlClickEvent(a.f, a.at(offset+time.Duration(a.f.Number(60, 1800))*time.Second), rcpt, url, msgID, a.device(rcpt).PublicIP))
		}
	}

	qa := []domain.QARecord{
		domain.QA(fmt.Sprintf("How many internal emails with subject %q were sent?", subject), len(a.produced(events.EmailEvents))),
		domain.QA(fmt.Sprintf("Which accounts sent internal emails containing %s?", url), values(a.produced(events.EmailEvents), "SenderFromAddress", nil)),
		domain.QA(fmt.Sprintf("How many users clicked %s from an internal email?", url), distinct(a.produced(events.UrlClickEvents), "AccountUpn", nil)),
	}
	return cohort, qa, nil
}
