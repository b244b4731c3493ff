package gateway

import (
	"errors"
	"fmt"
)

var (
	ErrMissingCommand     = errors.New("missing command")
	ErrToolNotFound       = errors.New("tool not found")
	ErrProviderNotRunning = errors.New("provider not running")
)

// ProviderError is a failure reported by a provider: either a JSON-RPC error
// response or a tool result flagged as an error.
type ProviderError struct {
	Provider string
	Tool     string
	Code     int
	Message  string
}

func (e *ProviderError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("provider %q: tool %q: rpc error %d: %s", e.Provider, e.Tool, e.Code, e.Message)
	}
	return fmt.Sprintf("provider %q: tool %q: %s", e.Provider, e.Tool, e.Message)
}

// ProcessError is a failure of the provider subprocess itself.
type ProcessError struct {
	Provider string
	Message  string
	Cause    error
}

func (e *ProcessError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("provider %q: %s: %v", e.Provider, e.Message, e.Cause)
	}
	return fmt.Sprintf("provider %q: %s", e.Provider, e.Message)
}

func (e *ProcessError) Unwrap() error {
	return e.Cause
}
