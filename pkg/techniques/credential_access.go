package techniques

import (
	"fmt"
	"time"

	"github.com/polisai/huntgen/pkg/domain"
	"github.com/polisai/huntgen/pkg/events"
)

var passwordSpray = &Technique{
	Stage:       domain.StageCredentialAccess,
	Name:        "password_spray",
	Aliases:     []string{"brute_force", "t1110"},
	Description: "Failed sign-ins against every identity from the attacker address; victims' passwords succeed.",
	Default:     true,
	run:         runPasswordSpray,
	validate:    positiveInt("attempts_per_account"),
}

func runPasswordSpray(a *attack) (domain.Cohort, []domain.QARecord, error) {
	if err := requireVictims(a); err != nil {
		return nil, nil, err
	}
	a.after(30*time.Minute, 6*time.Hour)
	ip := a.in.Attacker["SenderIPv4"]
	attempts := a.in.Config.Int("attempts_per_account", 3)
	ua := "python-requests/2." + fmt.Sprint(a.f.Number(20, 32)) + ".0"
	victims := map[string]bool{}
	for _, u := range upns(a.victims()) {
		victims[u] = true
	}

	var offset time.Duration
	for round := range attempts {
		for _, row := range a.identities() {
			acct := events.AccountFromRow(row)
			code := int64(50126)
			if victims[acct.Upn] && round == attempts-1 {
				code = 0
			}
			offset += time.Duration(a.f.Number(1, 5)) * time.Second
			a.emit(events.SignInEvents, events.SignInEvent(a.f, a.at(offset), acct, events.SignIn{
				Application: "Office 365 Exchange Online", IPAddress: ip, Country: a.f.Country(), UserAgent: ua, ErrorCode: code,
			}))
		}
		offset += time.Duration(a.f.Number(10, 30)) * time.Minute
	}

	signins := a.produced(events.SignInEvents)
	failed := func(r domain.Row) bool { return r["ErrorCode"] != int64(0) }
	ok := func(r domain.Row) bool { return r["ErrorCode"] == int64(0) }
	qa := []domain.QARecord{
		domain.QA("Which IP address carried out the password spray?", ip),
		domain.QA(fmt.Sprintf("How many failed sign-ins came from %s?", ip), countRows(signins, failed)),
		domain.QA(fmt.Sprintf("How many distinct accounts were targeted from %s?", ip), distinct(signins, "AccountUpn", nil)),
		domain.QA(fmt.Sprintf("Which accounts signed in successfully from %s?", ip), values(signins, "AccountUpn", ok)),
		domain.QA(fmt.Sprintf("How many successful sign-ins came from %s?", ip), distinct(signins, "AccountUpn", ok)),
	}
	return a.victims(), qa, nil
}

var osCredentialDumping = &Technique{
	Stage:       domain.StageCredentialAccess,
	Name:        "os_credential_dumping",
	Aliases:     []string{"lsass_dump", "t1003"},
	Description: "LSASS memory dumped with comsvcs.dll MiniDump on victim devices.",
	run:         runCredentialDumping,
}

func runCredentialDumping(a *attack) (domain.Cohort, []domain.QARecord, error) {
	if err := requireVictims(a); err != nil {
		return nil, nil, err
	}
	a.after(10*time.Minute, 3*time.Hour)
	dump := "lsass_" + randomToken(a.f, 4) + ".dmp"
	shell := events.Process{FileName: "cmd.exe", CommandLine: "cmd.exe"}

	var offset time.Duration
	for _, v := range a.victims() {
		acct := accountOf(v)
		dev := a.device(acct)
		pid := a.f.Number(500, 900)
		cmd := fmt.Sprintf(`rundll32.exe C:\Windows\System32\comsvcs.dll, MiniDump %d C:\Windows\Temp\%s full`, pid, dump)
		offset += time.Duration(a.f.Number(60, 900)) * time.Second
		a.emit(events.DeviceProcessEvents, events.ProcessEvent(a.f, a.at(offset), acct, dev, "rundll32.exe", `C:\Windows\System32`, cmd, shell))
		a.emit(events.DeviceFileEvents, events.FileEvent(a.f, a.at(offset+4*time.Second), acct, dev, events.ActionFileCreated, dump, `C:\Windows\Temp`, events.Process{FileName: "rundll32.exe", CommandLine: cmd}))
	}

	qa := []domain.QARecord{
		domain.QA("Which DLL export was used to dump LSASS memory?", "comsvcs.dll MiniDump"),
		domain.QA("What is the file name of the LSASS dump?", dump),
		domain.QA(fmt.Sprintf("How many devices wrote %s?", dump), distinct(a.produced(events.DeviceFileEvents), "DeviceName", nil)),
	}
	return a.victims(), qa, nil
}
