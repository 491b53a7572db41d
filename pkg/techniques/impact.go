package techniques

import (
	"fmt"
	"strings"
	"time"

	"github.com/polisai/huntgen/pkg/domain"
	"github.com/polisai/huntgen/pkg/events"
)

var accountAccessRemoval = &Technique{
	Stage:       domain.StageImpact,
	Name:        "account_access_removal",
	Aliases:     []string{"t1531"},
	Description: "Victim passwords reset and accounts disabled, followed by their failed sign-ins.",
	Default:     true,
	run:         runAccountAccessRemoval,
}

func runAccountAccessRemoval(a *attack) (domain.Cohort, []domain.QARecord, error) {
	if err := requireVictims(a); err != nil {
		return nil, nil, err
	}
	a.after(30*time.Minute, 4*time.Hour)
	operator := a.victims()[0]
	opAcct := accountOf(operator)
	opDev := a.device(opAcct)

	var offset time.Duration
	disabled := 0
	for _, v := range a.victims() {
		acct := accountOf(v)
		action, cmd := events.ActionPasswordChange, fmt.Sprintf(`net user %s %s /domain`, acct.Name, randomToken(a.f, 12))
		if a.f.Bool() {
			action, cmd = events.ActionAccountDisabled, fmt.Sprintf(`net user %s /active:no /domain`, acct.Name)
			disabled++
		}
		offset += time.Duration(a.f.Number(10, 120)) * time.Second
		a.emit(events.DeviceEvents, events.DeviceEvent(a.f, a.at(offset), opAcct, opDev, action, "net.exe", `C:\Windows\System32`, events.Process{FileName: "net.exe", CommandLine: cmd}))
		dev := a.device(acct)
		country, _ := v["Country"].(string)
		a.emit(events.SignInEvents, events.SignInEvent(a.f, a.at(offset+time.Duration(a.f.Number(300, 3600))*time.Second), acct, events.SignIn{
			Application: "Microsoft Teams", IPAddress: dev.PublicIP, Country: country, DeviceName: dev.Name, ErrorCode: 50057,
		}))
	}

	qa := []domain.QARecord{
		domain.QA("Which account issued the password resets and account disables?", opAcct.Upn),
		domain.QA("How many accounts were disabled?", disabled),
		domain.QA("How many accounts lost access through a reset or disable?", len(a.victims())),
		domain.QA("From which device were the account changes made?", opDev.Name),
	}
	return a.victims(), qa, nil
}

var ransomware = &Technique{
	Stage:       domain.StageImpact,
	Name:        "ransomware",
	Aliases:     []string{"data_encrypted_for_impact", "t1486"},
	Description: "Shadow copies deleted, user files renamed with an encrypted extension and a ransom note dropped.",
	run:         runRansomware,
}

func runRansomware(a *attack) (domain.Cohort, []domain.QARecord, error) {
	if err := requireVictims(a); err != nil {
		return nil, nil, err
	}
	a.after(30*time.Minute, 4*time.Hour)
	ext := "." + strings.ToLower(randomToken(a.f, 5))
	if v, ok := a.param("extension").(string); ok && v != "" {
		ext = "." + strings.TrimPrefix(v, ".")
	}
	binary := strings.ToLower(randomToken(a.f, 6)) + ".exe"
	note := "README_RESTORE" + strings.ToUpper(ext[1:]) + ".txt"
	encryptor := events.Process{FileName: binary, CommandLine: binary + " --all"}

	var offset time.Duration
	for _, v := range a.victims() {
		acct := accountOf(v)
		dev := a.device(acct)
		folder := `C:\Users\` + acct.Name + `\Documents`
		offset += time.Duration(a.f.Number(30, 300)) * time.Second
		a.emit(events.DeviceProcessEvents, events.ProcessEvent(a.f, a.at(offset), acct, dev, "vssadmin.exe", `C:\Windows\System32`, "vssadmin.exe delete shadows /all /quiet", encryptor))
		for range a.f.Number(5, 15) {
			offset += time.Duration(a.f.Number(1, 5)) * time.Second
			name := a.f.Word() + []string{".docx", ".xlsx", ".pdf", ".pptx"}[a.f.Number(0, 3)]
			row := events.FileEvent(a.f, a.at(offset), acct, dev, events.ActionFileRenamed, name+ext, folder, encryptor)
			row["PreviousFileName"] = name
			a.emit(events.DeviceFileEvents, row)
		}
		a.emit(events.DeviceFileEvents, events.FileEvent(a.f, a.at(offset+time.Second), acct, dev, events.ActionFileCreated, note, folder, encryptor))
	}

	files := a.produced(events.DeviceFileEvents)
	renamed := func(r domain.Row) bool { return r["ActionType"] == events.ActionFileRenamed }
	qa := []domain.QARecord{
		domain.QA("Which file extension was appended to encrypted files?", ext),
		domain.QA("What is the name of the ransom note?", note),
		domain.QA(fmt.Sprintf("Which process renamed files to %s?", ext), binary),
		domain.QA(fmt.Sprintf("How many files were renamed with the %s extension?", ext), countRows(files, renamed)),
		domain.QA(fmt.Sprintf("How many devices have the ransom note %s?", note), distinct(files, "DeviceName", func(r domain.Row) bool { return r["FileName"] == note })),
	}
	return a.victims(), qa, nil
}
