package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/polisai/huntgen/pkg/benign"
	"github.com/polisai/huntgen/pkg/domain"
)

// Scenario is one scenario file: the benign population and the attack chain.
type Scenario struct {
	Name    string                        `yaml:"name"`
	Seed    uint64                        `yaml:"seed"`
	Benign  *benign.Config                `yaml:"benign"`
	Attacks map[string]domain.StageConfig `yaml:"attacks"`

	// Path is the file the scenario was loaded from.
	Path string `yaml:"-"`
	// Ignored lists attack keys that are not stage names.
	Ignored []string `yaml:"-"`
}

// LoadScenario reads and validates a scenario file. Every validation failure
// is a *domain.ConfigurationError.
func LoadScenario(path string, logger *slog.Logger) (*Scenario, error) {
	//nolint:gosec // Scenario paths come from the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario %s: %w", path, err)
	}
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	sc, err := ParseScenario(data, stem, logger)
	if err != nil {
		return nil, err
	}
	sc.Path = path
	return sc, nil
}

// ParseScenario decodes a scenario document. fallbackName is used when the
// document has no name.
func ParseScenario(data []byte, fallbackName string, logger *slog.Logger) (*Scenario, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, &domain.ConfigurationError{Scenario: fallbackName, Err: err, Message: "invalid YAML: " + err.Error()}
	}
	if sc.Name == "" {
		sc.Name = fallbackName
	}

	if sc.Benign == nil {
		return nil, &domain.ConfigurationError{Scenario: sc.Name, Err: domain.ErrMissingSection, Message: "missing 'benign' section"}
	}
	sc.Benign.ApplyDefaults()
	if err := sc.Benign.Validate(); err != nil {
		return nil, &domain.ConfigurationError{Scenario: sc.Name, Err: err, Message: "benign: " + err.Error()}
	}

	for key := range sc.Attacks {
		if !domain.StageName(key).Valid() {
			sc.Ignored = append(sc.Ignored, key)
		}
	}
	slices.Sort(sc.Ignored)
	for _, key := range sc.Ignored {
		logger.Warn("ignoring unknown attack stage", "scenario", sc.Name, "stage", key)
	}
	return &sc, nil
}

// StageConfigs returns the configured stages keyed by stage name. Unknown keys
// are left out.
func (s *Scenario) StageConfigs() map[domain.StageName]domain.StageConfig {
	out := make(map[domain.StageName]domain.StageConfig, len(s.Attacks))
	for key, cfg := range s.Attacks {
		stage := domain.StageName(key)
		if stage.Valid() {
			out[stage] = cfg
		}
	}
	return out
}

// Validator checks a scenario's stages against the variant registry.
type Validator interface {
	Validate(attacks map[domain.StageName]domain.StageConfig) error
}

// Check runs v over the scenario's stages and tags every ConfigurationError
// with the scenario name.
func (s *Scenario) Check(v Validator) error {
	err := v.Validate(s.StageConfigs())
	if err == nil {
		return nil
	}
	errs := []error{err}
	if _, single := err.(*domain.ConfigurationError); !single {
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			errs = joined.Unwrap()
		}
	}
	for _, e := range errs {
		var cfgErr *domain.ConfigurationError
		if errors.As(e, &cfgErr) && cfgErr.Scenario == "" {
			cfgErr.Scenario = s.Name
		}
	}
	return err
}
