package techniques

import (
	"fmt"
	"time"

	"github.com/polisai/huntgen/pkg/domain"
	"github.com/polisai/huntgen/pkg/events"
)

var cobaltStrike = &Technique{
	Stage:       domain.StageCommandAndControl,
	Name:        "cobalt_strike",
	Aliases:     []string{"beacon", "t1071"},
	Description: "Periodic HTTPS beacons with jitter from a rundll32 implant to the attacker server.",
	Default:     true,
	run:         runCobaltStrike,
	validate: func(cfg domain.StageConfig) error {
		if err := positiveInt("beacon_interval_seconds")(cfg); err != nil {
			return err
		}
		return positiveInt("beacons")(cfg)
	},
}

func runCobaltStrike(a *attack) (domain.Cohort, []domain.QARecord, error) {
	if err := requireVictims(a); err != nil {
		return nil, nil, err
	}
	a.after(5*time.Minute, time.Hour)
	interval := time.Duration(a.in.Config.Int("beacon_interval_seconds", 60)) * time.Second
	count := a.in.Config.Int("beacons", 12)
	ip := a.in.Attacker["ExternalServerIP"]
	host := a.in.Attacker["ExternalServerName"]
	implant := events.Process{FileName: "rundll32.exe", CommandLine: `rundll32.exe C:\ProgramData\` + a.f.Word() + ".dll,StartW"}

	for _, v := range a.victims() {
		acct := accountOf(v)
		dev := a.device(acct)
		a.emit(events.DeviceProcessEvents, events.ProcessEvent(a.f, a.at(0), acct, dev, implant.FileName, `C:\Windows\System32`, implant.CommandLine, events.Process{FileName: "powershell.exe", CommandLine: "powershell.exe -nop -w hidden"}))
		offset := time.Duration(a.f.Number(1, 30)) * time.Second
		for range count {
			jitter := time.Duration(a.f.Number(0, int(interval/time.Second)/5)) * time.Second
			offset += interval + jitter
			a.emit(events.DeviceNetworkEvents, events.NetworkEvent(a.f, a.at(offset), acct, dev, implant, events.Connection{
				RemoteIP: ip, RemoteURL: host, Port: 443, BytesSent: int64(a.f.Number(200, 600)), BytesRecv: int64(a.f.Number(100, 400)),
			}))
		}
	}

	beacons := a.produced(events.DeviceNetworkEvents)
	qa := []domain.QARecord{
		domain.QA("Which IP address received periodic beacons from compromised devices?", ip),
		domain.QA(fmt.Sprintf("Which process generated the beacons to %s?", host), implant.FileName),
		domain.QA(fmt.Sprintf("How many beacon connections were made to %s?", ip), len(beacons)),
		domain.QA(fmt.Sprintf("What is the base beacon interval in seconds to %s?", host), int(interval/time.Second)),
		domain.QA(fmt.Sprintf("How many devices beaconed to %s?", host), distinct(beacons, "DeviceName", nil)),
	}
	return a.victims(), qa, nil
}

var networkActivity = &Technique{
	Stage:       domain.StageCommandAndControl,
	Name:        "network_activity",
	Aliases:     []string{"non_standard_port", "t1571"},
	Description: "Plain HTTP sessions to the attacker server on a non-standard port.",
	run:         runNetworkActivity,
}

func runNetworkActivity(a *attack) (domain.Cohort, []domain.QARecord, error) {
	if err := requireVictims(a); err != nil {
		return nil, nil, err
	}
	a.after(5*time.Minute, 2*time.Hour)
	port := []int{4444, 8080, 8443, 9001}[a.f.Number(0, 3)]
	ip := a.in.Attacker["ExternalServerIP"]
	host := a.in.Attacker["ExternalServerName"]
	client := events.Process{FileName: "powershell.exe", CommandLine: fmt.Sprintf("powershell.exe -c Invoke-WebRequest http://%s:%d/task", host, port)}

	var offset time.Duration
	for _, v := range a.victims() {
		acct := accountOf(v)
		dev := a.device(acct)
		for range a.f.Number(3, 8) {
			offset += time.Duration(a.f.Number(60, 900)) * time.Second
			a.emit(events.DeviceNetworkEvents, events.NetworkEvent(a.f, a.at(offset), acct, dev, client, events.Connection{RemoteIP: ip, RemoteURL: host, Port: port}))
		}
	}

	conns := a.produced(events.DeviceNetworkEvents)
	qa := []domain.QARecord{
		domain.QA(fmt.Sprintf("Which remote port was used for connections to %s?", host), port),
		domain.QA(fmt.Sprintf("How many connections were made to %s on port %d?", ip, port), len(conns)),
		domain.QA(fmt.Sprintf("How many devices connected to %s?", host), distinct(conns, "DeviceName", nil)),
	}
	return a.victims(), qa, nil
}
