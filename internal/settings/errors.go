package settings

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownParameter is returned when a spec names a parameter that is
	// not in the defaults table.
	ErrUnknownParameter = errors.New("unknown parameter")

	// ErrEmptyRange is returned when a multi-valued entry has no candidates.
	ErrEmptyRange = errors.New("empty range")

	// ErrTypeMismatch is returned when a value does not match the kind of the
	// parameter's default, or a sequence mixes kinds.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrDuplicateValue is returned when a sequence lists the same candidate
	// twice, which would produce duplicate configurations.
	ErrDuplicateValue = errors.New("duplicate candidate value")

	// ErrRangeTooLarge is returned when a "min:max:step" range expands to
	// more values than a single parameter may take.
	ErrRangeTooLarge = errors.New("range too large")

	// ErrTooManyCombinations is returned when the Cartesian product exceeds
	// MaxCombinations.
	ErrTooManyCombinations = errors.New("too many combinations")
)

// ConfigurationError reports a malformed configuration spec. It is fatal to
// the batch and is always returned before any run starts.
type ConfigurationError struct {
	Param string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("configuration: %v", e.Err)
	}
	return fmt.Sprintf("configuration: parameter %q: %v", e.Param, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func configErr(param string, err error) error {
	return &ConfigurationError{Param: param, Err: err}
}
