package techniques

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polisai/huntgen/pkg/benign"
	"github.com/polisai/huntgen/pkg/domain"
	"github.com/polisai/huntgen/pkg/engine"
	"github.com/polisai/huntgen/pkg/engine/runtime"
	"github.com/polisai/huntgen/pkg/events"
)

var t0 = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func population(t *testing.T) domain.Tables {
	t.Helper()
	g, err := benign.NewGenerator(benign.GeneratorConfig{Benign: benign.Config{NumEmployees: 8}, Seed: 5, Logger: discard()})
	require.NoError(t, err)
	tables, err := g.Generate(context.Background())
	require.NoError(t, err)
	return tables
}

func cohortOf(tables domain.Tables) domain.Cohort {
	c := domain.Cohort{}
	for _, row := range tables[events.IdentityInfo].Rows {
		c = append(c, victimFromIdentity(row))
	}
	return c
}

func inputFor(tech *Technique, tables domain.Tables, victims domain.Cohort) runtime.StageInput {
	cfg := domain.StageConfig{Type: string(tech.Name)}
	if tech.Stage == domain.StageExfiltration {
		cfg.Params = map[string]any{"plausible_endpoints": []any{"mega.nz", "transfer.sh"}}
	}
	return runtime.StageInput{
		Stage:    tech.Stage,
		Variant:  tech.Name,
		Benign:   tables,
		Attacker: NewAttacker(gofakeit.New(9)),
		Context:  domain.StageContext{Victims: victims, Clock: t0},
		Config:   cfg,
		Seed:     77,
	}
}

func TestAttackerProfileHasEveryField(t *testing.T) {
	a := NewAttacker(gofakeit.New(1))
	for _, key := range []string{
		"AccountUpn", "AccountDisplayName", "AccountObjectId", "OnPremSid", "AccountName", "AccountDomain",
		"SenderIPv4", "SenderIPV6", "PhishingURL", "PhishingIP", "ExternalServerIP", "ExternalServerName",
	} {
		assert.NotEmpty(t, a[key], key)
	}
	assert.Equal(t, a["AccountName"]+"@"+a["AccountDomain"], a["AccountUpn"])
	assert.Equal(t, a, NewAttacker(gofakeit.New(1)))
}

func TestEveryTechniqueProducesConformingFragments(t *testing.T) {
	tables := population(t)
	victims := cohortOf(tables)

	for _, tech := range Catalogue() {
		t.Run(string(tech.Stage)+"/"+string(tech.Name), func(t *testing.T) {
			out, err := tech.Generate(context.Background(), inputFor(tech, tables, victims))
			require.NoError(t, err)

			require.NotEmpty(t, out.Tables)
			for name, table := range out.Tables {
				assert.Equal(t, events.Columns[name], table.Columns, name)
				assert.False(t, table.IsEmpty(), name)
				for _, row := range table.Rows {
					ts, ok := row[domain.TimestampColumn].(time.Time)
					require.True(t, ok)
					assert.False(t, ts.Before(t0), "%s row before incoming clock", name)
					assert.False(t, ts.After(out.Clock), "%s row after returned clock", name)
				}
			}
			assert.True(t, out.Clock.After(t0))
			assert.NotEmpty(t, out.Victims)
			assert.NotEmpty(t, out.QA)
			for _, rec := range out.QA {
				assert.NotEmpty(t, rec.Question)
			}
		})
	}
}

func TestTechniquesAreDeterministicForSeed(t *testing.T) {
	tables := population(t)
	in := inputFor(passwordSpray, tables, cohortOf(tables)[:2])

	a, err := passwordSpray.Generate(context.Background(), in)
	require.NoError(t, err)
	b, err := passwordSpray.Generate(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, a.QA, b.QA)
	assert.Equal(t, a.Clock, b.Clock)
	assert.Equal(t, a.Tables[events.SignInEvents].Len(), b.Tables[events.SignInEvents].Len())
}

func TestActiveScanTargetsEveryIdentity(t *testing.T) {
	tables := population(t)
	out, err := activeScan.Generate(context.Background(), inputFor(activeScan, tables, nil))
	require.NoError(t, err)

	assert.Len(t, out.Victims, tables[events.IdentityInfo].Len())
	in := inputFor(activeScan, tables, nil)
	for _, row := range out.Tables[events.DeviceNetworkEvents].Rows {
		assert.Equal(t, events.ActionInbound, row["ActionType"])
		assert.Equal(t, in.Attacker["SenderIPv4"], row["RemoteIP"])
	}
	assert.Equal(t, in.Attacker["SenderIPv4"], out.QA[0].Answer)
}

func TestActiveScanFailsWithoutIdentities(t *testing.T) {
	_, err := activeScan.Generate(context.Background(), runtime.StageInput{Stage: domain.StageReconnaissance, Benign: domain.Tables{}, Seed: 1})
	assert.ErrorIs(t, err, ErrNoIdentities)
}

func TestContentInjectionCompromisesSubset(t *testing.T) {
	tables := population(t)
	victims := cohortOf(tables)
	out, err := contentInjection.Generate(context.Background(), inputFor(contentInjection, tables, victims))
	require.NoError(t, err)

	assert.NotEmpty(t, out.Victims)
	assert.LessOrEqual(t, len(out.Victims), len(victims))
	assert.Equal(t, len(out.Victims), out.Tables[events.DeviceProcessEvents].Len())
	for _, row := range out.Tables[events.DeviceProcessEvents].Rows {
		assert.Equal(t, "injector.exe", row["FileName"])
	}
}

func TestLateralMovementOnlyGrowsTheCohort(t *testing.T) {
	tables := population(t)
	victims := cohortOf(tables)[:1]
	for _, tech := range []*Technique{remoteServices, internalSpearphishing} {
		out, err := tech.Generate(context.Background(), inputFor(tech, tables, victims))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(out.Victims), 1)
		assert.Equal(t, upns(victims)[0], accountOf(out.Victims[0]).Upn)
		assert.Len(t, upns(out.Victims), len(out.Victims), "cohort has duplicates")
	}
}

func TestRansomwareHonoursExtensionParam(t *testing.T) {
	tables := population(t)
	in := inputFor(ransomware, tables, cohortOf(tables)[:1])
	in.Config.Params = map[string]any{"extension": ".crypt"}
	out, err := ransomware.Generate(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, ".crypt", out.QA[0].Answer)
	assert.Equal(t, "README_RESTORECRYPT.txt", out.QA[1].Answer)
}

func TestVariantsRequireVictims(t *testing.T) {
	tables := population(t)
	_, err := userExecution.Generate(context.Background(), inputFor(userExecution, tables, domain.Cohort{}))
	assert.Error(t, err)
}

func TestExfiltrationRequiresEndpoints(t *testing.T) {
	for _, tech := range []*Technique{exfiltrationOverWeb, automatedExfiltration, exfiltrationOverC2} {
		err := tech.ValidateConfig(domain.StageConfig{Type: string(tech.Name)})
		assert.ErrorContains(t, err, "plausible_endpoints", tech.Name)
		assert.NoError(t, tech.ValidateConfig(domain.StageConfig{Params: map[string]any{"plausible_endpoints": []any{"x.example"}}}))
	}
}

func TestCobaltStrikeValidatesIntervals(t *testing.T) {
	assert.NoError(t, cobaltStrike.ValidateConfig(domain.StageConfig{}))
	assert.Error(t, cobaltStrike.ValidateConfig(domain.StageConfig{Params: map[string]any{"beacon_interval_seconds": 0}}))
	assert.Error(t, cobaltStrike.ValidateConfig(domain.StageConfig{Params: map[string]any{"beacons": -2}}))
}

func TestDefaultRegistryDefaultsAndAliases(t *testing.T) {
	r := DefaultRegistry()
	defaults := map[domain.StageName]domain.VariantName{
		domain.StageReconnaissance:    "active_scan",
		domain.StageInitialAccess:     "content_injection",
		domain.StageExecution:         "user_execution",
		domain.StageCredentialAccess:  "password_spray",
		domain.StageLateralMovement:   "remote_services",
		domain.StageCollection:        "email_collection",
		domain.StageCommandAndControl: "cobalt_strike",
		domain.StageExfiltration:      "exfiltration_over_web",
		domain.StageImpact:            "account_access_removal",
		domain.StagePersistence:       "boot_or_logon_autostart_execution",
	}
	for stage, want := range defaults {
		assert.Equal(t, want, r.Default(stage), stage)
	}

	_, name, err := r.Resolve(domain.StageReconnaissance, "Active-Scanning")
	require.NoError(t, err)
	assert.Equal(t, domain.VariantName("active_scan"), name)

	_, name, err = r.Resolve(domain.StageImpact, "T1486")
	require.NoError(t, err)
	assert.Equal(t, domain.VariantName("ransomware"), name)

	_, ok := Lookup(domain.StageExfiltration, "automated_exfiltration")
	assert.True(t, ok)
}

func TestRegistryValidateRejectsExfilWithoutEndpoints(t *testing.T) {
	r := DefaultRegistry()
	err := r.Validate(map[domain.StageName]domain.StageConfig{
		domain.StageExfiltration: {Type: "exfiltration_over_web"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfigInvalid)
}

func TestFullChainThroughDispatcher(t *testing.T) {
	tables := population(t)
	d := engine.NewDispatcher(engine.DispatcherConfig{Registry: DefaultRegistry(), Logger: discard(), Scenario: "chain", Seed: 3})

	attacks := map[domain.StageName]domain.StageConfig{}
	for _, stage := range domain.StageOrder {
		attacks[stage] = domain.StageConfig{}
	}
	attacks[domain.StageExfiltration] = domain.StageConfig{Params: map[string]any{"plausible_endpoints": []any{"mega.nz"}}}

	results, final := d.Run(context.Background(), engine.RunInput{
		Benign:   tables,
		Attacker: NewAttacker(gofakeit.New(3)),
		Attacks:  attacks,
		Initial:  domain.StageContext{Clock: t0},
	})
	require.Len(t, results, len(domain.StageOrder))
	for _, res := range results {
		assert.Equal(t, runtime.OutcomeCompleted, res.Outcome, "%s: %v", res.Stage, res.Err)
	}
	assert.True(t, final.HasVictims())
	assert.True(t, final.Clock.After(t0))
}
