package llm

import "fmt"

// The error taxonomy callers dispatch on:
//
//   - ConfigError:     missing credential, unsupported provider/model/analysis
//     type. Not retriable.
//   - ConnectionError: transport or auth failure talking to a backend. The
//     Ollama driver retries across its host chain before raising one.
//   - CapacityError:   admission gate saturated (fail-fast mode only).
//
// Content-policy declines are not errors: they come back as an ordinary
// result string embedding the decline reason, so they are cacheable and
// displayable like any other answer.

// ConfigError indicates the request can never succeed as written.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return e.Reason }

// ConnectionError indicates a backend could not be reached or refused the
// call. Err carries the underlying (or last, for host chains) failure.
type ConnectionError struct {
	Provider string
	Reason   string
	Err      error
}

func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Reason)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// CapacityError indicates the admission gate had no free slot. Callers
// should back off and retry.
type CapacityError struct {
	Limit int64
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("generation capacity exhausted (%d concurrent calls in flight)", e.Limit)
}
