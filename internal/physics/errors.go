package physics

import (
	"errors"
	"fmt"
)

// ErrNoMeasurement marks an observable that was not recorded for a particle,
// e.g. a downstream β for a particle that decayed before station 2.
var ErrNoMeasurement = errors.New("no measurement")

// ConfigError reports an invalid physics or run parameter.
// It always names the offending parameter and the value it was given.
type ConfigError struct {
	Param  string
	Value  any
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid %s: %v", e.Param, e.Value)
	}
	return fmt.Sprintf("invalid %s: %v (%s)", e.Param, e.Value, e.Reason)
}

// NewConfigError is a convenience constructor returning error.
func NewConfigError(param string, value any, reason string) error {
	return &ConfigError{Param: param, Value: value, Reason: reason}
}
