package techniques

import (
	"fmt"
	"time"

	"github.com/polisai/huntgen/pkg/domain"
	"github.com/polisai/huntgen/pkg/events"
)

var contentInjection = &Technique{
	Stage:       domain.StageInitialAccess,
	Name:        "content_injection",
	Aliases:     []string{"t1659"},
	Description: "Payloads injected into files on a share of the scanned devices.",
	Default:     true,
	run:         runContentInjection,
}

func runContentInjection(a *attack) (domain.Cohort, []domain.QARecord, error) {
	if err := requireVictims(a); err != nil {
		return nil, nil, err
	}
	a.after(30*time.Minute, 6*time.Hour)
	compromised := a.sample(a.victims(), 0.3)
	injector := events.Process{FileName: "explorer.exe", CommandLine: `C:\Windows\explorer.exe`}

	var offset time.Duration
	payloads := map[string]bool{}
	for _, v := range compromised {
		acct := accountOf(v)
		dev := a.device(acct)
		target := a.f.Word() + ".docx"
		payload := "Payload_" + randomToken(a.f, 6)
		payloads[payload] = true
		folder := `C:\Users\` + acct.Name + `\Documents`
		cmd := fmt.Sprintf(`injector.exe -f "%s\%s" -p %s`, folder, target, payload)

		offset += time.Duration(a.f.Number(60, 900)) * time.Second
		a.emit(events.DeviceProcessEvents, events.ProcessEvent(a.f, a.at(offset), acct, dev, "injector.exe", `C:\Users\`+acct.Name+`\AppData\Local\Temp`, cmd, injector))
		a.emit(events.DeviceFileEvents, events.FileEvent(a.f, a.at(offset+3*time.Second), acct, dev, events.ActionFileModified, target, folder, events.Process{FileName: "injector.exe", CommandLine: cmd}))
	}

	procs := a.produced(events.DeviceProcessEvents)
	qa := []domain.QARecord{
		domain.QA("Which process was used to inject content into user documents?", "injector.exe"),
		domain.QA("How many distinct devices ran injector.exe?", distinct(procs, "DeviceName", nil)),
		domain.QA("How many files were modified by injector.exe?", len(a.produced(events.DeviceFileEvents))),
		domain.QA("Which accounts ran injector.exe?", upns(compromised)),
		domain.QA("How many distinct payload identifiers were injected?", len(payloads)),
	}
	return compromised, qa, nil
}

var phishing = &Technique{
	Stage:       domain.StageInitialAccess,
	Name:        "phishing",
	Aliases:     []string{"spearphishing_attachment", "t1566"},
	Description: "Malicious attachments delivered by email; users who open them are compromised.",
	run:         runPhishing,
}

func runPhishing(a *attack) (domain.Cohort, []domain.QARecord, error) {
	if err := requireVictims(a); err != nil {
		return nil, nil, err
	}
	a.after(time.Hour, 24*time.Hour)
	subject := "Invoice " + randomToken(a.f, 8) + " overdue"
	attachment := "Invoice_" + randomToken(a.f, 5) + ".docm"
	outlook := events.Process{FileName: "outlook.exe", CommandLine: `"C:\Program Files\Microsoft Office\root\Office16\OUTLOOK.EXE"`}

	var offset time.Duration
	opened := map[string]bool{}
	for _, v := range a.victims() {
		acct := accountOf(v)
		offset += time.Duration(a.f.Number(10, 120)) * time.Second
		a.emit(events.EmailEvents, events.EmailEvent(a.f, a.at(offset), events.Email{
			Sender:      a.attacker,
			SenderIPv4:  a.in.Attacker["SenderIPv4"],
			SenderIPv6:  a.in.Attacker["SenderIPV6"],
			Recipient:   acct,
			Subject:     subject,
			Attachments: 1,
		}))
		if a.f.Float64() >= 0.5 && len(opened) > 0 {
			continue
		}
		opened[acct.Upn] = true
		dev := a.device(acct)
		folder := `C:\Users\` + acct.Name + `\Downloads`
		at := a.at(offset + time.Duration(a.f.Number(120, 3600))*time.Second)
		a.emit(events.DeviceFileEvents, events.FileEvent(a.f, at, acct, dev, events.ActionFileCreated, attachment, folder, outlook))
		a.emit(events.DeviceProcessEvents, events.ProcessEvent(a.f, at.Add(5*time.Second), acct, dev, "WINWORD.EXE",
			`C:\Program Files\Microsoft Office\root\Office16`, fmt.Sprintf(`"WINWORD.EXE" /n "%s\%s"`, folder, attachment), outlook))
	}

	compromised := filterCohort(a.victims(), opened)
	qa := []domain.QARecord{
		domain.QA(fmt.Sprintf("Which sender address delivered the email with subject %q?", subject), a.attacker.Upn),
		domain.QA(fmt.Sprintf("What is the name of the attachment delivered by %s?", a.attacker.Upn), attachment),
		domain.QA(fmt.Sprintf("How many users opened %s?", attachment), len(compromised)),
		domain.QA(fmt.Sprintf("From which IPv4 address was the email with subject %q sent?", subject), a.in.Attacker["SenderIPv4"]),
	}
	return compromised, qa, nil
}

var validAccounts = &Technique{
	Stage:       domain.StageInitialAccess,
	Name:        "valid_accounts",
	Aliases:     []string{"t1078"},
	Description: "Sign-ins with stolen credentials from the attacker address.",
	run:         runValidAccounts,
}

func runValidAccounts(a *attack) (domain.Cohort, []domain.QARecord, error) {
	if err := requireVictims(a); err != nil {
		return nil, nil, err
	}
	a.after(time.Hour, 12*time.Hour)
	ip := a.in.Attacker["SenderIPv4"]
	country := a.f.Country()
	ua := a.f.UserAgent()
	apps := []string{"Office 365 Exchange Online", "Azure Portal", "SharePoint Online"}

	var offset time.Duration
	success := map[string]bool{}
	for _, v := range a.victims() {
		acct := accountOf(v)
		for range a.f.Number(0, 2) {
			offset += time.Duration(a.f.Number(5, 60)) * time.Second
			a.emit(events.SignInEvents, events.SignInEvent(a.f, a.at(offset), acct, events.SignIn{
				Application: apps[a.f.Number(0, len(apps)-1)], IPAddress: ip, Country: country, UserAgent: ua, ErrorCode: 50126,
			}))
		}
		if a.f.Float64() < 0.6 || len(success) == 0 {
			success[acct.Upn] = true
			offset += time.Duration(a.f.Number(5, 60)) * time.Second
			a.emit(events.SignInEvents, events.SignInEvent(a.f, a.at(offset), acct, events.SignIn{
				Application: apps[a.f.Number(0, len(apps)-1)], IPAddress: ip, Country: country, UserAgent: ua,
			}))
		}
	}

	signins := a.produced(events.SignInEvents)
	ok := func(r domain.Row) bool { return r["ErrorCode"] == int64(0) }
	qa := []domain.QARecord{
		domain.QA(fmt.Sprintf("Which IP address signed in to accounts from %s?", country), ip),
		domain.QA(fmt.Sprintf("How many accounts successfully signed in from %s?", ip), distinct(signins, "AccountUpn", ok)),
		domain.QA(fmt.Sprintf("How many failed sign-ins originated from %s?", ip), len(signins)-countRows(signins, ok)),
		domain.QA(fmt.Sprintf("Which user agent was used by sign-ins from %s?", ip), ua),
	}
	return filterCohort(a.victims(), success), qa, nil
}

var malware = &Technique{
	Stage:       domain.StageInitialAccess,
	Name:        "malware",
	Aliases:     []string{"drive_by_compromise", "t1189"},
	Description: "A loader downloaded from the attacker server and executed on victim devices.",
	run:         runMalware,
}

func runMalware(a *attack) (domain.Cohort, []domain.QARecord, error) {
	if err := requireVictims(a); err != nil {
		return nil, nil, err
	}
	a.after(time.Hour, 12*time.Hour)
	server := a.in.Attacker["ExternalServerName"]
	serverIP := a.in.Attacker["ExternalServerIP"]
	loader := a.f.Word() + "_update.exe"
	browser := events.Process{FileName: "msedge.exe", CommandLine: `"C:\Program Files (x86)\Microsoft\Edge\Application\msedge.exe"`}

	compromised := a.sample(a.victims(), 0.5)
	var offset time.Duration
	for _, v := range compromised {
		acct := accountOf(v)
		dev := a.device(acct)
		folder := `C:\Users\` + acct.Name + `\Downloads`
		offset += time.Duration(a.f.Number(60, 1800)) * time.Second
		a.emit(events.DeviceNetworkEvents, events.NetworkEvent(a.f, a.at(offset), acct, dev, browser, events.Connection{
			RemoteIP: serverIP, RemoteURL: server, Port: 443, BytesRecv: int64(a.f.Number(200_000, 900_000)),
		}))
		a.emit(events.DeviceFileEvents, events.FileEvent(a.f, a.at(offset+2*time.Second), acct, dev, events.ActionFileCreated, loader, folder, browser))
		a.emit(events.DeviceProcessEvents, events.ProcessEvent(a.f, a.at(offset+30*time.Second), acct, dev, loader, folder, folder+`\`+loader, events.Process{FileName: "explorer.exe", CommandLine: `C:\Windows\explorer.exe`}))
	}

	qa := []domain.QARecord{
		domain.QA("Which domain hosted the malicious download?", server),
		domain.QA(fmt.Sprintf("What is the file name of the executable downloaded from %s?", server), loader),
		domain.QA(fmt.Sprintf("How many devices executed %s?", loader), distinct(a.produced(events.DeviceProcessEvents), "DeviceName", nil)),
		domain.QA(fmt.Sprintf("Which IP address does %s resolve to in the network events?", server), serverIP),
	}
	return compromised, qa, nil
}

func countRows(rows []domain.Row, keep func(domain.Row) bool) int {
	n := 0
	for _, r := range rows {
		if keep(r) {
			n++
		}
	}
	return n
}
