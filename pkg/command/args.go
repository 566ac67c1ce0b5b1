package command

import (
	"encoding/json"
	"math"
	"time"

	"github.com/MatthiasKunnen/applock/pkg/applock"
)

// Args are the named arguments of a command as decoded from the host.
type Args map[string]any

// Bool returns the boolean argument name. The second return value is false when the argument is
// absent or null.
func (a Args) Bool(name string) (bool, bool, error) {
	v, ok := a[name]
	if !ok || v == nil {
		return false, false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, false, ErrInvalidArgument.WithMessagef("%s must be a boolean, got %T", name, v)
	}
	return b, true, nil
}

// RequiredBool is Bool for arguments that must be present.
func (a Args) RequiredBool(name string) (bool, error) {
	b, ok, err := a.Bool(name)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrInvalidArgument.WithMessagef("%s is required", name)
	}
	return b, nil
}

// String returns the string argument name, or "" when it is absent or null.
func (a Args) String(name string) (string, error) {
	v, ok := a[name]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", ErrInvalidArgument.WithMessagef("%s must be a string, got %T", name, v)
	}
	return s, nil
}

// Seconds returns the argument name, a positive number of seconds, as a duration. The second
// return value is false when the argument is absent or null.
func (a Args) Seconds(name string) (time.Duration, bool, error) {
	v, ok := a[name]
	if !ok || v == nil {
		return 0, false, nil
	}

	var seconds float64
	switch n := v.(type) {
	case float64:
		seconds = n
	case float32:
		seconds = float64(n)
	case int:
		seconds = float64(n)
	case int64:
		seconds = float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false, ErrInvalidArgument.WithMessagef("%s must be a number: %v", name, err)
		}
		seconds = f
	default:
		return 0, false, ErrInvalidArgument.WithMessagef("%s must be a number of seconds, got %T", name, v)
	}

	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds <= 0 {
		return 0, false, ErrInvalidArgument.WithMessagef("%s must be greater than zero, got %v", name, seconds)
	}
	if seconds > math.MaxInt64/float64(time.Second) {
		return 0, false, ErrInvalidArgument.WithMessagef("%s is too large, got %v", name, seconds)
	}

	return applock.Seconds(seconds), true, nil
}

// RequiredSeconds is Seconds for arguments that must be present.
func (a Args) RequiredSeconds(name string) (time.Duration, error) {
	d, ok, err := a.Seconds(name)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrInvalidArgument.WithMessagef("%s is required", name)
	}
	return d, nil
}
