// Package benign generates the baseline population of an organisation and its
// everyday activity: identities, devices, sign-ins, mail, process, file and
// network events spread over the configured date window.
package benign

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/polisai/huntgen/pkg/domain"
	"github.com/polisai/huntgen/pkg/events"
	"github.com/polisai/huntgen/pkg/storage"
)

const (
	workStart  = 8
	workEnd    = 18
	pOffHours  = 0.15
	pInternal  = 0.8
	pPeerDevIP = 0.7
)

// GeneratorConfig holds dependencies for creating a Generator.
type GeneratorConfig struct {
	Benign Config
	// Seed makes generation deterministic when non-zero.
	Seed   uint64
	Logger *slog.Logger
}

// Generator builds the benign tables for one scenario.
type Generator struct {
	cfg    Config
	f      *gofakeit.Faker
	logger *slog.Logger
}

type employee struct {
	row     domain.Row
	acct    events.Account
	role    string
	dept    string
	devices []events.Device
}

// NewGenerator validates cfg and returns a generator.
func NewGenerator(cfg GeneratorConfig) (*Generator, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	benignCfg := cfg.Benign
	benignCfg.ApplyDefaults()
	if err := benignCfg.Validate(); err != nil {
		return nil, fmt.Errorf("benign config: %w", err)
	}
	return &Generator{cfg: benignCfg, f: gofakeit.New(cfg.Seed), logger: logger}, nil
}

// Generate produces every benign table. It checks ctx between tables.
func (g *Generator) Generate(ctx context.Context) (domain.Tables, error) {
	start, end, err := g.cfg.Window()
	if err != nil {
		return nil, err
	}

	people := g.identities(end)
	out := domain.Tables{}
	identity := events.NewTable(events.IdentityInfo)
	for _, p := range people {
		identity.Append(p.row)
	}
	out.Put(identity)

	steps := []struct {
		name string
		fn   func([]*employee, time.Time, time.Time) *domain.Table
	}{
		{events.DeviceInfo, g.deviceInfo},
		{events.SignInEvents, g.signIns},
		{events.DeviceEvents, g.deviceEvents},
		{events.DeviceFileEvents, g.fileEvents},
		{events.DeviceProcessEvents, g.processEvents},
		{events.EmailEvents, g.emails},
		{events.DeviceNetworkEvents, g.network},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t := step.fn(people, start, end)
		storage.SortByTimestamp(t)
		out.Put(t)
		g.logger.Debug("benign table generated", "table", step.name, "rows", t.Len())
	}
	return out, nil
}

func (g *Generator) identities(asOf time.Time) []*employee {
	domainName := strings.ToLower(g.f.DomainName())
	seen := map[string]int{}
	people := make([]*employee, 0, g.cfg.NumEmployees)
	managers := map[string]string{}

	for range g.cfg.NumEmployees {
		first, last := g.f.FirstName(), g.f.LastName()
		name := strings.ToLower(first + "." + last)
		name = strings.Map(func(r rune) rune {
			if r == '.' || (r >= 'a' && r <= 'z') {
				return r
			}
			return -1
		}, name)
		seen[name]++
		if n := seen[name]; n > 1 {
			name = fmt.Sprintf("%s%d", name, n)
		}
		upn := name + "@" + domainName
		role := g.pickRole()
		dept := g.f.RandomString(departmentsByRole[role])
		manager := managers[dept]
		if manager == "" {
			managers[dept] = upn
		}

		row := domain.Row{
			"Timestamp":          asOf,
			"ReportId":           g.f.UUID(),
			"AccountObjectId":    g.f.UUID(),
			"AccountUpn":         upn,
			"OnPremSid":          fmt.Sprintf("S-1-5-21-%d-%d-%d-%d", g.f.Number(1e8, 1e9), g.f.Number(1e8, 1e9), g.f.Number(1e8, 1e9), g.f.Number(1000, 9999)),
			"AccountDisplayName": first + " " + last,
			"AccountName":        name,
			"AccountDomain":      domainName,
			"GivenName":          first,
			"Surname":            last,
			"Department":         dept,
			"JobTitle":           g.f.JobTitle(),
			"Role":               role,
			"Team":               fmt.Sprintf("%s %d", dept, g.f.Number(1, 3)),
			"ManagerUpn":         manager,
			"City":               g.f.City(),
			"Country":            g.f.Country(),
			"IsAccountEnabled":   true,
		}
		people = append(people, &employee{row: row, acct: events.AccountFromRow(row), role: role, dept: dept})
	}
	return people
}

func (g *Generator) pickRole() string {
	x := g.f.Float64()
	acc := 0.0
	for _, rw := range roleWeights {
		acc += rw.weight
		if x < acc {
			return rw.role
		}
	}
	return RoleEngineer
}

// sampleTime returns a time on day biased toward working hours.
func (g *Generator) sampleTime(day time.Time) time.Time {
	hour := g.f.Number(workStart, workEnd-1)
	if g.f.Float64() < pOffHours {
		hour = g.f.Number(0, 23)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, g.f.Number(0, 59), g.f.Number(0, 59), 0, time.UTC)
}

func (g *Generator) count(lo, hi int, role string) int {
	lo, hi = Scale(lo, hi, role)
	return g.f.Number(lo, hi)
}

func days(start, end time.Time) []time.Time {
	var out []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

func (g *Generator) deviceInfo(people []*employee, _ time.Time, end time.Time) *domain.Table {
	t := events.NewTable(events.DeviceInfo)
	for _, p := range people {
		n := g.f.Number(g.cfg.NumDevicesPerUserMin, g.cfg.NumDevicesPerUserMax)
		for i := range max(n, 1) {
			kind := "Workstation"
			if i > 0 && g.f.Bool() {
				kind = "Laptop"
			}
			name := fmt.Sprintf("%s-%s-%02d", strings.ToUpper(kind[:2]), strings.ToUpper(strings.ReplaceAll(p.acct.Name, ".", "")), i+1)
			dev := events.Device{
				ID:        events.DeviceID(name),
				Name:      name,
				PrivateIP: fmt.Sprintf("10.%d.%d.%d", g.f.Number(0, 255), g.f.Number(0, 255), g.f.Number(1, 254)),
				PublicIP:  g.f.IPv4Address(),
			}
			p.devices = append(p.devices, dev)
			t.Append(domain.Row{
				"Timestamp":     end,
				"ReportId":      int64(g.f.Number(1, 1<<30)),
				"DeviceId":      dev.ID,
				"DeviceName":    dev.Name,
				"OSPlatform":    "Windows11",
				"OSVersion":     "10.0.22631",
				"PublicIP":      dev.PublicIP,
				"PrivateIP":     dev.PrivateIP,
				"MacAddress":    g.f.MacAddress(),
				"LoggedOnUsers": p.acct.Upn,
				"DeviceType":    kind,
			})
		}
	}
	return t
}

func (g *Generator) signIns(people []*employee, start, end time.Time) *domain.Table {
	t := events.NewTable(events.SignInEvents)
	for _, p := range people {
		for _, day := range days(start, end) {
			for range g.count(g.cfg.NumSignInsPerUserMin, g.cfg.NumSignInsPerUserMax, p.role) {
				dev := g.pickDevice(p)
				t.Append(events.SignInEvent(g.f, g.sampleTime(day), p.acct, events.SignIn{
					Application: g.f.RandomString(signInApps),
					IPAddress:   dev.PublicIP,
					Country:     fmt.Sprint(p.row["Country"]),
					DeviceName:  dev.Name,
				}))
			}
		}
	}
	return t
}

func (g *Generator) pickDevice(p *employee) events.Device {
	if len(p.devices) == 0 {
		return events.Device{}
	}
	return p.devices[g.f.Number(0, len(p.devices)-1)]
}

func (g *Generator) artifact(p *employee) (proc, file, folder string) {
	proc = g.f.RandomString(roleProcesses[p.role])
	folder = strings.ReplaceAll(g.f.RandomString(roleDirs[p.role]), "%USER%", p.acct.Name)
	file = strings.ToLower(g.f.Word()) + g.f.RandomString(roleExts[p.role])
	return proc, file, folder
}

func (g *Generator) deviceEvents(people []*employee, start, end time.Time) *domain.Table {
	t := events.NewTable(events.DeviceEvents)
	for _, p := range people {
		for _, day := range days(start, end) {
			n := g.count(g.cfg.DeviceEventsPerUserMin, g.cfg.DeviceEventsPerUserMax, p.role)
			for _, dev := range p.devices {
				for range n {
					proc, file, folder := g.artifact(p)
					t.Append(events.DeviceEvent(g.f, g.sampleTime(day), p.acct, dev,
						g.f.RandomString([]string{"AntivirusScanCompleted", "UsbDriveMounted", "ScreenshotTaken", "BrowserLaunchedToOpenUrl"}),
						file, folder, events.Process{FileName: proc, CommandLine: proc}))
				}
			}
		}
	}
	return t
}

func (g *Generator) fileEvents(people []*employee, start, end time.Time) *domain.Table {
	t := events.NewTable(events.DeviceFileEvents)
	for _, p := range people {
		for _, day := range days(start, end) {
			n := g.count(g.cfg.DeviceFileEventsPerUserMin, g.cfg.DeviceFileEventsPerUserMax, p.role)
			for _, dev := range p.devices {
				proc, file, folder := g.artifact(p)
				for range n {
					t.Append(events.FileEvent(g.f, g.sampleTime(day), p.acct, dev,
						g.f.RandomString([]string{events.ActionFileCreated, events.ActionFileModified}),
						file, folder, events.Process{FileName: proc, CommandLine: proc}))
				}
			}
		}
	}
	return t
}

func (g *Generator) processEvents(people []*employee, start, end time.Time) *domain.Table {
	t := events.NewTable(events.DeviceProcessEvents)
	for _, p := range people {
		for _, day := range days(start, end) {
			n := g.count(g.cfg.DeviceProcessEventsMin, g.cfg.DeviceProcessEventsMax, p.role)
			for _, dev := range p.devices {
				proc, file, folder := g.artifact(p)
				cmd := fmt.Sprintf(`%s "%s\%s"`, proc, folder, file)
				for range n {
					t.Append(events.ProcessEvent(g.f, g.sampleTime(day), p.acct, dev, proc, folder, cmd,
						events.Process{FileName: "explorer.exe", CommandLine: `C:\Windows\explorer.exe`}))
				}
			}
		}
	}
	return t
}

func (g *Generator) emails(people []*employee, start, end time.Time) *domain.Table {
	t := events.NewTable(events.EmailEvents)
	for _, recipient := range people {
		for _, day := range days(start, end) {
			for range g.count(g.cfg.EmailsPerUserMin, g.cfg.EmailsPerUserMax, recipient.role) {
				e := events.Email{Recipient: recipient.acct, Subject: g.f.RandomString(emailSubjects)}
				if sender := g.chooseSender(people, recipient); sender != nil {
					e.Sender = sender.acct
					e.Direction = "Intra-org"
					e.SenderIPv4 = g.pickDevice(sender).PrivateIP
				} else {
					first, last := g.f.FirstName(), g.f.LastName()
					e.Sender = events.Account{
						Upn:         strings.ToLower(first+"."+last) + "@" + strings.ToLower(g.f.DomainName()),
						DisplayName: first + " " + last,
					}
					e.SenderIPv4 = g.f.IPv4Address()
					e.SenderIPv6 = g.f.IPv6Address()
				}
				t.Append(events.EmailEvent(g.f, g.sampleTime(day), e))
			}
		}
	}
	return t
}

// chooseSender prefers a colleague from the same department and returns nil
// for an external sender.
func (g *Generator) chooseSender(people []*employee, recipient *employee) *employee {
	if g.f.Float64() > pInternal || len(people) < 2 {
		return nil
	}
	var near []*employee
	for _, p := range people {
		if p != recipient && p.dept == recipient.dept {
			near = append(near, p)
		}
	}
	if len(near) == 0 {
		for _, p := range people {
			if p != recipient {
				near = append(near, p)
			}
		}
	}
	return near[g.f.Number(0, len(near)-1)]
}

func (g *Generator) network(people []*employee, start, end time.Time) *domain.Table {
	t := events.NewTable(events.DeviceNetworkEvents)
	var fleet []events.Device
	for _, p := range people {
		fleet = append(fleet, p.devices...)
	}
	for _, p := range people {
		for _, day := range days(start, end) {
			n := g.count(g.cfg.NetworkEventsPerUserMin, g.cfg.NetworkEventsPerUserMax, p.role)
			for _, dev := range p.devices {
				for range n {
					remoteIP := g.f.IPv4Address()
					if g.f.Float64() < pPeerDevIP && len(fleet) > 1 {
						peer := fleet[g.f.Number(0, len(fleet)-1)]
						if peer.ID != dev.ID {
							remoteIP = peer.PrivateIP
						}
					}
					proc, _, _ := g.artifact(p)
					t.Append(events.NetworkEvent(g.f, g.sampleTime(day), p.acct, dev,
						events.Process{FileName: proc, CommandLine: proc},
						events.Connection{
							Inbound:   g.f.Bool(),
							RemoteIP:  remoteIP,
							RemoteURL: g.f.URL(),
							Port:      g.f.Number(1, 65535),
						}))
				}
			}
		}
	}
	return t
}
