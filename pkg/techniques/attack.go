package techniques

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/polisai/huntgen/pkg/domain"
	"github.com/polisai/huntgen/pkg/engine/runtime"
	"github.com/polisai/huntgen/pkg/events"
)

// ErrNoIdentities is returned when the benign population has no identities
// to attack.
var ErrNoIdentities = errors.New("benign data has no identities")

// Technique is one registered variant of a stage.
type Technique struct {
	Stage       domain.StageName
	Name        domain.VariantName
	Aliases     []string
	Description string
	// Default marks the variant used when a stage config omits its type.
	Default bool

	run      func(a *attack) (domain.Cohort, []domain.QARecord, error)
	validate func(cfg domain.StageConfig) error
}

// Generate implements runtime.Generator.
func (t *Technique) Generate(ctx context.Context, in runtime.StageInput) (runtime.StageOutput, error) {
	if err := ctx.Err(); err != nil {
		return runtime.StageOutput{}, err
	}
	a := newAttack(in)
	victims, qa, err := t.run(a)
	if err != nil {
		return runtime.StageOutput{}, err
	}
	return runtime.StageOutput{
		Tables:  a.out,
		Victims: victims,
		Clock:   a.clock,
		QA:      qa,
	}, nil
}

// ValidateConfig implements runtime.ConfigValidator.
func (t *Technique) ValidateConfig(cfg domain.StageConfig) error {
	if t.validate == nil {
		return nil
	}
	return t.validate(cfg)
}

// attack is the working state of one technique invocation.
type attack struct {
	in       runtime.StageInput
	f        *gofakeit.Faker
	attacker events.Account
	out      domain.Tables
	start    time.Time
	clock    time.Time

	devicesByUpn map[string][]events.Device
}

func newAttack(in runtime.StageInput) *attack {
	a := &attack{
		in:       in,
		f:        gofakeit.New(in.Seed),
		attacker: events.AccountFromRow(in.Attacker),
		out:      domain.Tables{},
		clock:    in.Context.Clock,
	}
	a.start = in.Context.Clock
	a.devicesByUpn = map[string][]events.Device{}
	if t, ok := in.Benign[events.DeviceInfo]; ok {
		for _, row := range t.Rows {
			dev := events.DeviceFromRow(row)
			for _, upn := range strings.Split(fmt.Sprint(row["LoggedOnUsers"]), ";") {
				upn = strings.TrimSpace(upn)
				if upn != "" {
					a.devicesByUpn[upn] = append(a.devicesByUpn[upn], dev)
				}
			}
		}
	}
	return a
}

// after moves the campaign start to a random point between lo and hi after
// the incoming clock.
func (a *attack) after(lo, hi time.Duration) {
	a.start = a.in.Context.Clock.Add(a.jitter(lo, hi))
}

func (a *attack) jitter(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(a.f.Number(0, int((hi-lo)/time.Second)))*time.Second
}

// at returns start+offset.
func (a *attack) at(offset time.Duration) time.Time {
	return a.start.Add(offset)
}

// emit appends row to table, creating the table on first use, and advances
// the stage clock.
func (a *attack) emit(table string, row domain.Row) {
	t, ok := a.out[table]
	if !ok {
		t = events.NewTable(table)
		a.out.Put(t)
	}
	t.Append(row)
	if ts, ok := row[domain.TimestampColumn].(time.Time); ok && ts.After(a.clock) {
		a.clock = ts
	}
}

func (a *attack) param(key string) any {
	return a.in.Config.Param(key)
}

// victims returns the incoming cohort.
func (a *attack) victims() domain.Cohort {
	return a.in.Context.Victims
}

// identities returns the benign identity rows.
func (a *attack) identities() []domain.Row {
	t, ok := a.in.Benign[events.IdentityInfo]
	if !ok {
		return nil
	}
	return t.Rows
}

// identity finds the identity row of upn.
func (a *attack) identity(upn string) (domain.Row, bool) {
	for _, row := range a.identities() {
		if row["AccountUpn"] == upn {
			return row, true
		}
	}
	return nil, false
}

// benignRows returns the benign rows of a table.
func (a *attack) benignRows(table string) []domain.Row {
	if t, ok := a.in.Benign[table]; ok {
		return t.Rows
	}
	return nil
}

// device picks one of the victim's devices, or a synthetic one when the
// benign data has none.
func (a *attack) device(v events.Account) events.Device {
	devs := a.devicesByUpn[v.Upn]
	if len(devs) == 0 {
		name := "WS-" + strings.ToUpper(strings.ReplaceAll(v.Name, ".", ""))
		return events.Device{ID: events.DeviceID(name), Name: name, PrivateIP: "10.0.0." + fmt.Sprint(a.f.Number(2, 254)), PublicIP: a.f.IPv4Address()}
	}
	return devs[a.f.Number(0, len(devs)-1)]
}

// fleet returns every benign device in table order.
func (a *attack) fleet() []events.Device {
	var out []events.Device
	for _, row := range a.benignRows(events.DeviceInfo) {
		out = append(out, events.DeviceFromRow(row))
	}
	return out
}

// ownerOf returns the upn logged on to a device.
func (a *attack) ownerOf(dev events.Device) string {
	for upn, devs := range a.devicesByUpn {
		for _, d := range devs {
			if d.ID == dev.ID {
				return upn
			}
		}
	}
	return ""
}

// sample keeps each member of c with probability p, preserving order. At
// least one is returned when c is non-empty.
func (a *attack) sample(c domain.Cohort, p float64) domain.Cohort {
	if len(c) == 0 {
		return domain.Cohort{}
	}
	out := domain.Cohort{}
	for _, v := range c {
		if a.f.Float64() < p {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		out = append(out, c[a.f.Number(0, len(c)-1)])
	}
	return out
}

// victimFromIdentity copies an identity row into a victim record.
func victimFromIdentity(row domain.Row) domain.Victim {
	v := domain.Victim{}
	for k, val := range row {
		if k == domain.TimestampColumn || k == "ReportId" {
			continue
		}
		v[k] = val
	}
	return v
}

func accountOf(v domain.Victim) events.Account {
	return events.AccountFromRow(v)
}

// upns returns the sorted distinct UPNs of a cohort.
func upns(c domain.Cohort) []string {
	out := make([]string, 0, len(c))
	for _, v := range c {
		out = append(out, accountOf(v).Upn)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// filterCohort keeps the victims whose UPN is in keep.
func filterCohort(c domain.Cohort, keep map[string]bool) domain.Cohort {
	out := domain.Cohort{}
	for _, v := range c {
		if keep[accountOf(v).Upn] {
			out = append(out, v)
		}
	}
	return out
}

func requireVictims(a *attack) error {
	if len(a.victims()) == 0 {
		return errors.New("no victims in stage context")
	}
	return nil
}

func requireEndpoints(cfg domain.StageConfig) error {
	if len(cfg.StringSlice("plausible_endpoints")) == 0 {
		return errors.New("'plausible_endpoints' must be specified in exfiltration config")
	}
	return nil
}

func positiveInt(key string) func(domain.StageConfig) error {
	return func(cfg domain.StageConfig) error {
		if cfg.Param(key) == nil {
			return nil
		}
		if cfg.Int(key, 0) <= 0 {
			return fmt.Errorf("%q must be a positive integer", key)
		}
		return nil
	}
}

// distinct counts distinct non-nil values of column across rows.
func distinct(rows []domain.Row, column string, keep func(domain.Row) bool) int {
	seen := map[any]struct{}{}
	for _, r := range rows {
		if keep != nil && !keep(r) {
			continue
		}
		if v, ok := r[column]; ok && v != nil {
			seen[v] = struct{}{}
		}
	}
	return len(seen)
}

// values returns the sorted distinct string values of column across rows.
func values(rows []domain.Row, column string, keep func(domain.Row) bool) []string {
	var out []string
	for _, r := range rows {
		if keep != nil && !keep(r) {
			continue
		}
		if s, ok := r[column].(string); ok && s != "" {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// combined returns the benign rows of table followed by the rows this stage
// produced for it.
func (a *attack) combined(table string) []domain.Row {
	rows := slices.Clone(a.benignRows(table))
	if t, ok := a.out[table]; ok {
		rows = append(rows, t.Rows...)
	}
	return rows
}

func (a *attack) produced(table string) []domain.Row {
	if t, ok := a.out[table]; ok {
		return t.Rows
	}
	return nil
}

func randomToken(f *gofakeit.Faker, n int) string {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	var b strings.Builder
	for range n {
		b.WriteByte(alphabet[f.Number(0, len(alphabet)-1)])
	}
	return b.String()
}
