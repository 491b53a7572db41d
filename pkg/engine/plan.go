package engine

import (
	"errors"

	"github.com/polisai/huntgen/pkg/domain"
	"github.com/polisai/huntgen/pkg/engine/runtime"
)

// PlanStep describes what the dispatcher would do with one stage, without
// running any generator.
type PlanStep struct {
	Stage      domain.StageName
	Configured bool
	Variant    domain.VariantName
	// Defaulted is true when the config omitted the type.
	Defaulted bool
	// NeedsVictims is true for every stage that is skipped when the cohort
	// is absent or empty at run time.
	NeedsVictims bool
	Err          error
}

// Plan resolves the configured chain in execution order. The returned error
// joins every step error, matching Registry.Validate.
func Plan(registry *Registry, attacks map[domain.StageName]domain.StageConfig) ([]PlanStep, error) {
	steps := make([]PlanStep, 0, len(domain.StageOrder))
	var errs []error
	for _, stage := range domain.StageOrder {
		step := PlanStep{Stage: stage, NeedsVictims: !stage.SeedsCohort()}
		cfg, ok := attacks[stage]
		if !ok {
			steps = append(steps, step)
			continue
		}
		step.Configured = true
		step.Defaulted = cfg.Type == ""

		gen, variant, err := registry.Resolve(stage, cfg.Type)
		if err == nil {
			step.Variant = variant
			if v, ok := gen.(runtime.ConfigValidator); ok {
				if verr := v.ValidateConfig(cfg); verr != nil {
					var cfgErr *domain.ConfigurationError
					if errors.As(verr, &cfgErr) {
						err = verr
					} else {
						err = domain.NewConfigurationError(stage, verr, "%s: %v", variant, verr)
					}
				}
			}
		} else {
			step.Variant = domain.VariantName(cfg.Type)
		}
		if err != nil {
			step.Err = err
			errs = append(errs, err)
		}
		steps = append(steps, step)
	}
	return steps, errors.Join(errs...)
}
