package engine

import (
	"fmt"
	"slices"
	"strings"

	"github.com/polisai/huntgen/pkg/domain"
	"github.com/polisai/huntgen/pkg/engine/runtime"
)

// StageDescriptor lists the variants available for one stage.
type StageDescriptor struct {
	Name     domain.StageName
	Default  domain.VariantName
	Variants map[domain.VariantName]runtime.Generator
	aliases  map[string]domain.VariantName
}

// Registry maps every stage to its variant generators. It is populated once at
// startup and only read afterwards.
type Registry struct {
	stages map[domain.StageName]*StageDescriptor
}

// NewRegistry returns an empty registry with a descriptor for every stage.
func NewRegistry() *Registry {
	r := &Registry{stages: make(map[domain.StageName]*StageDescriptor, len(domain.StageOrder))}
	for _, stage := range domain.StageOrder {
		r.stages[stage] = &StageDescriptor{
			Name:     stage,
			Variants: make(map[domain.VariantName]runtime.Generator),
			aliases:  make(map[string]domain.VariantName),
		}
	}
	return r
}

// Register adds or replaces a variant. The first variant registered for a stage
// becomes its default until SetDefault says otherwise.
func (r *Registry) Register(stage domain.StageName, variant domain.VariantName, gen runtime.Generator, aliases ...string) error {
	desc, ok := r.stages[stage]
	if !ok {
		return fmt.Errorf("register %s: %w", stage, domain.ErrUnknownStage)
	}
	if gen == nil {
		return fmt.Errorf("register %s/%s: nil generator", stage, variant)
	}
	canonical := domain.VariantName(normaliseVariant(string(variant)))
	desc.Variants[canonical] = gen
	for _, alias := range aliases {
		alias = normaliseVariant(alias)
		if alias == "" {
			continue
		}
		desc.aliases[alias] = canonical
	}
	if desc.Default == "" {
		desc.Default = canonical
	}
	return nil
}

// MustRegister is Register for static wiring.
func (r *Registry) MustRegister(stage domain.StageName, variant domain.VariantName, gen runtime.Generator, aliases ...string) {
	if err := r.Register(stage, variant, gen, aliases...); err != nil {
		panic(err)
	}
}

// SetDefault selects the variant used when a stage config omits its type.
func (r *Registry) SetDefault(stage domain.StageName, variant domain.VariantName) error {
	desc, ok := r.stages[stage]
	if !ok {
		return fmt.Errorf("set default %s: %w", stage, domain.ErrUnknownStage)
	}
	canonical := domain.VariantName(normaliseVariant(string(variant)))
	if _, ok := desc.Variants[canonical]; !ok {
		return fmt.Errorf("set default %s/%s: %w", stage, variant, domain.ErrUnknownVariant)
	}
	desc.Default = canonical
	return nil
}

// Resolve returns the generator for the configured variant name. An empty name
// selects the stage default.
func (r *Registry) Resolve(stage domain.StageName, raw string) (runtime.Generator, domain.VariantName, error) {
	desc, ok := r.stages[stage]
	if !ok {
		return nil, "", domain.NewConfigurationError(stage, domain.ErrUnknownStage, "unknown stage %q", stage)
	}

	name := normaliseVariant(raw)
	if name == "" {
		if desc.Default == "" {
			return nil, "", domain.NewConfigurationError(stage, domain.ErrUnknownVariant, "no variants registered")
		}
		return desc.Variants[desc.Default], desc.Default, nil
	}
	if gen, ok := desc.Variants[domain.VariantName(name)]; ok {
		return gen, domain.VariantName(name), nil
	}
	if canonical, ok := desc.aliases[name]; ok {
		if gen, ok := desc.Variants[canonical]; ok {
			return gen, canonical, nil
		}
	}
	return nil, "", domain.NewConfigurationError(stage, domain.ErrUnknownVariant,
		"unsupported %s type %q (supported: %s)", stage, raw, joinVariants(r.Variants(stage)))
}

// Validate resolves every configured stage and runs variant parameter checks,
// so that a bad scenario fails before any stage has run.
func (r *Registry) Validate(attacks map[domain.StageName]domain.StageConfig) error {
	_, err := Plan(r, attacks)
	return err
}

// Stages returns the descriptors in execution order.
func (r *Registry) Stages() []*StageDescriptor {
	out := make([]*StageDescriptor, 0, len(domain.StageOrder))
	for _, stage := range domain.StageOrder {
		out = append(out, r.stages[stage])
	}
	return out
}

// Variants returns the sorted variant names of a stage.
func (r *Registry) Variants(stage domain.StageName) []domain.VariantName {
	desc, ok := r.stages[stage]
	if !ok {
		return nil
	}
	out := make([]domain.VariantName, 0, len(desc.Variants))
	for name := range desc.Variants {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// Aliases returns the sorted aliases that resolve to variant.
func (r *Registry) Aliases(stage domain.StageName, variant domain.VariantName) []string {
	desc, ok := r.stages[stage]
	if !ok {
		return nil
	}
	var out []string
	for alias, canonical := range desc.aliases {
		if canonical == variant && alias != string(variant) {
			out = append(out, alias)
		}
	}
	slices.Sort(out)
	return out
}

// Default returns the default variant of a stage.
func (r *Registry) Default(stage domain.StageName) domain.VariantName {
	if desc, ok := r.stages[stage]; ok {
		return desc.Default
	}
	return ""
}

func normaliseVariant(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	return strings.NewReplacer("-", "_", " ", "_").Replace(raw)
}

func joinVariants(names []domain.VariantName) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = string(n)
	}
	return strings.Join(parts, ", ")
}
