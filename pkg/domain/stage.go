package domain

import (
	"slices"
	"time"
)

// StageName identifies one step of the attack chain.
type StageName string

// The fixed set of attack-chain stages.
const (
	StageReconnaissance    StageName = "reconnaissance"
	StageInitialAccess     StageName = "initial_access"
	StageExecution         StageName = "execution"
	StageCredentialAccess  StageName = "credential_access"
	StageLateralMovement   StageName = "lateral_movement"
	StageCollection        StageName = "collection"
	StageCommandAndControl StageName = "command_and_control"
	StageExfiltration      StageName = "exfiltration"
	StageImpact            StageName = "impact"
	StagePersistence       StageName = "persistence"
)

// StageOrder is the execution order of the chain. Later stages rely on the
// cohort and clock produced by earlier ones, so the order must not change.
var StageOrder = []StageName{
	StageReconnaissance,
	StageInitialAccess,
	StageExecution,
	StageCredentialAccess,
	StageLateralMovement,
	StageCollection,
	StageCommandAndControl,
	StageExfiltration,
	StageImpact,
	StagePersistence,
}

// Valid reports whether s is one of the known stages.
func (s StageName) Valid() bool {
	return slices.Contains(StageOrder, s)
}

// Index returns the position of s in StageOrder, or -1.
func (s StageName) Index() int {
	return slices.Index(StageOrder, s)
}

// SeedsCohort reports whether the stage runs without an incoming cohort.
func (s StageName) SeedsCohort() bool {
	return s == StageReconnaissance
}

// VariantName selects one implementation of a stage.
type VariantName string

// Victim is one identity of the compromised cohort. The engine never looks
// inside it.
type Victim map[string]any

// Cohort is the ordered set of victims eligible for the next stage.
// A nil cohort is absent; a non-nil empty cohort is empty.
type Cohort []Victim

// Attacker describes the adversary identity, generated once per scenario.
type Attacker map[string]string

// StageContext is the state threaded between stages. The dispatcher replaces
// it after every completed stage and never mutates it in place.
type StageContext struct {
	Victims Cohort
	Clock   time.Time
}

// HasVictims reports whether the cohort is present and non-empty.
func (c StageContext) HasVictims() bool {
	return len(c.Victims) > 0
}

// StageConfig is the per-stage section of a scenario's attacks block.
type StageConfig struct {
	Type   string         `yaml:"type" json:"type"`
	Params map[string]any `yaml:",inline" json:"params,omitempty"`
}

// Param returns a parameter value or nil.
func (c StageConfig) Param(key string) any {
	if c.Params == nil {
		return nil
	}
	return c.Params[key]
}

// StringSlice returns a list parameter as strings, skipping non-string items.
func (c StageConfig) StringSlice(key string) []string {
	switch v := c.Param(key).(type) {
	case []string:
		return slices.Clone(v)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Int returns an integer parameter or def.
func (c StageConfig) Int(key string, def int) int {
	switch v := c.Param(key).(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}
