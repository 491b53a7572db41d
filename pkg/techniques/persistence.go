package techniques

import (
	"fmt"
	"time"

	"github.com/polisai/huntgen/pkg/domain"
	"github.com/polisai/huntgen/pkg/events"
)

const runKey = `HKEY_CURRENT_USER\Software\Microsoft\Windows\CurrentVersion\Run`

var bootOrLogonAutostart = &Technique{
	Stage:       domain.StagePersistence,
	Name:        "boot_or_logon_autostart_execution",
	Aliases:     []string{"registry_run_keys", "t1547"},
	Description: "A Run key value that relaunches the implant at logon.",
	Default:     true,
	run:         runAutostart,
}

func runAutostart(a *attack) (domain.Cohort, []domain.QARecord, error) {
	if err := requireVictims(a); err != nil {
		return nil, nil, err
	}
	a.after(10*time.Minute, 2*time.Hour)
	valueName := "OneDrive" + randomToken(a.f, 3) + "Sync"
	payload := `C:\Users\Public\` + a.f.Word() + ".exe"
	cmd := fmt.Sprintf(`reg.exe add "%s" /v %s /t REG_SZ /d "%s" /f`, runKey, valueName, payload)
	reg := events.Process{FileName: "reg.exe", CommandLine: cmd}

	var offset time.Duration
	for _, v := range a.victims() {
		acct := accountOf(v)
		dev := a.device(acct)
		offset += time.Duration(a.f.Number(30, 600)) * time.Second
		a.emit(events.DeviceProcessEvents, events.ProcessEvent(a.f, a.at(offset), acct, dev, "reg.exe", `C:\Windows\System32`, cmd, events.Process{FileName: "cmd.exe", CommandLine: "cmd.exe"}))
		row := events.DeviceEvent(a.f, a.at(offset+time.Second), acct, dev, events.ActionRegistrySet, "", "", reg)
		row["RegistryKey"] = runKey
		row["RegistryValueName"] = valueName
		row["RegistryValueData"] = payload
		a.emit(events.DeviceEvents, row)
	}

	qa := []domain.QARecord{
		domain.QA("Which registry value name was added to the Run key for persistence?", valueName),
		domain.QA(fmt.Sprintf("Which executable does the %s Run value launch?", valueName), payload),
		domain.QA(fmt.Sprintf("How many devices have the %s Run value?", valueName), distinct(a.produced(events.DeviceEvents), "DeviceName", nil)),
	}
	return a.victims(), qa, nil
}
