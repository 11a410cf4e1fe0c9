package model

import (
	"errors"
	"fmt"
)

// Fetch failure taxonomy. Fetchers wrap one of these with %w.
var (
	// ErrNetwork covers connectivity problems, timeouts and transient server errors.
	ErrNetwork = errors.New("network error")
	// ErrAuth indicates an invalid or expired credential.
	ErrAuth = errors.New("authentication failed")
	// ErrParse indicates a response that cannot be turned into a budget reading.
	ErrParse = errors.New("malformed budget data")
	// ErrConfig matches every *ConfigError.
	ErrConfig = errors.New("invalid configuration")
)

// ConfigError reports a single invalid configuration value.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrConfig) match any ConfigError.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

// Retryable reports whether a fetch failure is worth retrying.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrAuth) && !errors.Is(err, ErrParse)
}
