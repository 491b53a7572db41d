package techniques

import (
	"fmt"
	"time"

	"github.com/polisai/huntgen/pkg/domain"
	"github.com/polisai/huntgen/pkg/events"
)

var emailCollection = &Technique{
	Stage:       domain.StageCollection,
	Name:        "email_collection",
	Aliases:     []string{"t1114"},
	Description: "Victim mailboxes exported to PST files in a staging folder.",
	Default:     true,
	run:         runEmailCollection,
}

func runEmailCollection(a *attack) (domain.Cohort, []domain.QARecord, error) {
	if err := requireVictims(a); err != nil {
		return nil, nil, err
	}
	a.after(30*time.Minute, 8*time.Hour)
	staging := `C:\ProgramData\` + a.f.Word()
	parent := events.Process{FileName: "powershell.exe", CommandLine: "powershell.exe -nop"}

	var offset time.Duration
	var bytes int64
	for _, v := range a.victims() {
		acct := accountOf(v)
		dev := a.device(acct)
		pst := acct.Name + ".pst"
		cmd := fmt.Sprintf(`New-MailboxExportRequest -Mailbox %s -FilePath "%s\%s"`, acct.Upn, staging, pst)
		offset += time.Duration(a.f.Number(120, 1800)) * time.Second
		a.emit(events.DeviceProcessEvents, events.ProcessEvent(a.f, a.at(offset), acct, dev, "powershell.exe", `C:\Windows\System32\WindowsPowerShell\v1.0`, "powershell.exe -c "+cmd, parent))
		row := events.FileEvent(a.f, a.at(offset+time.Duration(a.f.Number(30, 300))*time.Second), acct, dev, events.ActionFileCreated, pst, staging, events.Process{FileName: "powershell.exe", CommandLine: cmd})
		size := int64(a.f.Number(50, 900)) << 20
		row["FileSize"] = size
		bytes += size
		a.emit(events.DeviceFileEvents, row)
	}

	qa := []domain.QARecord{
		domain.QA("Which folder were exported mailboxes staged in?", staging),
		domain.QA(fmt.Sprintf("How many PST files were created in %s?", staging), len(a.produced(events.DeviceFileEvents))),
		domain.QA(fmt.Sprintf("What is the total size in bytes of the PST files in %s?", staging), bytes),
		domain.QA("Which mailboxes were exported?", upns(a.victims())),
	}
	return a.victims(), qa, nil
}
