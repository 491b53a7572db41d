package techniques

import (
	"fmt"
	"time"

	"github.com/polisai/huntgen/pkg/domain"
	"github.com/polisai/huntgen/pkg/events"
)

var scanPorts = []int{21, 22, 23, 25, 53, 80, 110, 135, 139, 143, 443, 445, 1433, 3306, 3389, 5985, 8080}

var activeScan = &Technique{
	Stage:       domain.StageReconnaissance,
	Name:        "active_scan",
	Aliases:     []string{"active_scanning", "t1595"},
	Description: "Inbound probes from the attacker address against every employee device.",
	Default:     true,
	run:         runActiveScan,
}

func runActiveScan(a *attack) (domain.Cohort, []domain.QARecord, error) {
	ids := a.identities()
	if len(ids) == 0 {
		return nil, nil, ErrNoIdentities
	}
	a.after(time.Hour, 12*time.Hour)
	ip := a.in.Attacker["SenderIPv4"]
	listener := events.Process{FileName: "System", CommandLine: "System"}

	victims := domain.Cohort{}
	var offset time.Duration
	for _, row := range ids {
		acct := events.AccountFromRow(row)
		dev := a.device(acct)
		for range a.f.Number(5, 10) {
			offset += time.Duration(a.f.Number(1, 10)) * time.Second
			a.emit(events.DeviceNetworkEvents, events.NetworkEvent(a.f, a.at(offset), acct, dev, listener, events.Connection{
				Inbound:   true,
				RemoteIP:  ip,
				RemoteURL: a.attacker.Domain,
				Port:      scanPorts[a.f.Number(0, len(scanPorts)-1)],
			}))
		}
		victims = append(victims, victimFromIdentity(row))
	}

	scan := a.produced(events.DeviceNetworkEvents)
	inbound := func(r domain.Row) bool { return r["ActionType"] == events.ActionInbound }
	qa := []domain.QARecord{
		domain.QA("Which external IP address performed an active scan against the organization's devices?", ip),
		domain.QA(fmt.Sprintf("How many distinct devices received inbound connections from %s?", ip), distinct(scan, "DeviceName", nil)),
		domain.QA(fmt.Sprintf("How many distinct local ports did %s probe?", ip), distinct(scan, "LocalPort", nil)),
		domain.QA("How many unique inbound network IP addresses appear in device_network_events?", distinct(a.combined(events.DeviceNetworkEvents), "RemoteIP", inbound)),
		domain.QA(fmt.Sprintf("When did the first inbound connection from %s occur?", ip), stamp(scan[0][domain.TimestampColumn])),
	}
	return victims, qa, nil
}

var phishingForInformation = &Technique{
	Stage:       domain.StageReconnaissance,
	Name:        "phishing_for_information",
	Aliases:     []string{"t1598"},
	Description: "Credential-harvesting emails sent to a subset of employees.",
	run:         runPhishingForInformation,
}

func runPhishingForInformation(a *attack) (domain.Cohort, []domain.QARecord, error) {
	ids := a.identities()
	if len(ids) == 0 {
		return nil, nil, ErrNoIdentities
	}
	a.after(time.Hour, 12*time.Hour)
	all := domain.Cohort{}
	for _, row := range ids {
		all = append(all, victimFromIdentity(row))
	}
	targets := a.sample(all, 0.5)
	subject := "Action required: confirm your " + a.f.Word() + " account details"
	url := a.in.Attacker["PhishingURL"]

	var offset time.Duration
	clicked := 0
	for _, v := range targets {
		acct := accountOf(v)
		offset += time.Duration(a.f.Number(5, 90)) * time.Second
		msgID := a.f.UUID()
		a.emit(events.EmailEvents, events.EmailEvent(a.f, a.at(offset), events.Email{
			Sender:     a.attacker,
			SenderIPv4: a.in.Attacker["SenderIPv4"],
			SenderIPv6: a.in.Attacker["SenderIPV6"],
			Recipient:  acct,
			Subject:    subject,
			URL:        url,
			MessageID:  msgID,
		}))
		if a.f.Float64() < 0.4 {
			clicked++
			dev := a.device(acct)
			a.emit(events.UrlClickEvents, events.UrlClickEvent(a.f, a.at(offset+time.Duration(a.f.Number(60, 3600))*time.Second), acct, url, msgID, dev.PublicIP))
		}
	}

	qa := []domain.QARecord{
		domain.QA("Which sender address delivered the information-gathering emails?", a.attacker.Upn),
		domain.QA(fmt.Sprintf("How many recipients received the email with subject %q?", subject), len(targets)),
		domain.QA(fmt.Sprintf("Which URL was embedded in the emails sent by %s?", a.attacker.Upn), url),
		domain.QA(fmt.Sprintf("How many users clicked %s?", url), clicked),
	}
	return targets, qa, nil
}

func stamp(v any) string {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339)
	}
	return fmt.Sprint(v)
}
