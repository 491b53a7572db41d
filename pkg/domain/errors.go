package domain

import (
	"errors"
	"fmt"
)

// Common domain errors
var (
	ErrConfigInvalid    = errors.New("invalid configuration")
	ErrUnknownStage     = errors.New("unknown stage")
	ErrUnknownVariant   = errors.New("unknown variant")
	ErrStageExecution   = errors.New("stage execution failed")
	ErrMissingSection   = errors.New("missing required section")
	ErrNoScenarioConfig = errors.New("no scenario configuration found")
)

// ConfigurationError reports an invalid or unsupported scenario configuration.
// It aborts the scenario it belongs to and nothing else.
type ConfigurationError struct {
	Scenario string
	Stage    StageName
	Err      error
	Message  string
}

func (e *ConfigurationError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	switch {
	case e.Stage != "" && e.Scenario != "":
		return fmt.Sprintf("scenario %q stage %s: %s", e.Scenario, e.Stage, msg)
	case e.Stage != "":
		return fmt.Sprintf("stage %s: %s", e.Stage, msg)
	case e.Scenario != "":
		return fmt.Sprintf("scenario %q: %s", e.Scenario, msg)
	default:
		return msg
	}
}

// Unwrap exposes the wrapped cause and ErrConfigInvalid to errors.Is.
func (e *ConfigurationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrConfigInvalid}
	}
	return []error{ErrConfigInvalid, e.Err}
}

// NewConfigurationError builds a ConfigurationError for a stage.
func NewConfigurationError(stage StageName, err error, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Stage: stage, Err: err, Message: fmt.Sprintf(format, args...)}
}

// StageExecutionError wraps anything a variant generator raised, including a
// recovered panic.
type StageExecutionError struct {
	Stage   StageName
	Variant VariantName
	Err     error
	Panic   bool
}

func (e *StageExecutionError) Error() string {
	kind := "error"
	if e.Panic {
		kind = "panic"
	}
	return fmt.Sprintf("stage %s (variant %s) %s: %v", e.Stage, e.Variant, kind, e.Err)
}

// Unwrap exposes the wrapped cause and ErrStageExecution to errors.Is.
func (e *StageExecutionError) Unwrap() []error {
	return []error{ErrStageExecution, e.Err}
}
