package domain

import (
	"errors"
	"fmt"
)

// ResilienceKind classifies a terminal failure of the protected call path.
// Each kind already represents an exhausted local recovery attempt.
type ResilienceKind string

const (
	KindTimeout          ResilienceKind = "TIMEOUT"
	KindBulkheadFull     ResilienceKind = "BULKHEAD_FULL"
	KindCircuitOpen      ResilienceKind = "CIRCUIT_OPEN"
	KindRetriesExhausted ResilienceKind = "RETRIES_EXHAUSTED"
)

type ResilienceError struct {
	Kind      ResilienceKind
	Operation string
	Err       error
}

func (e *ResilienceError) Error() string {
	if e == nil {
		return "resilience error"
	}
	if e.Err == nil {
		return fmt.Sprintf("resilience %s: %s", e.Operation, e.Kind)
	}
	return fmt.Sprintf("resilience %s: %s: %v", e.Operation, e.Kind, e.Err)
}

func (e *ResilienceError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ResilienceKindOf extracts the failure kind from an error chain.
func ResilienceKindOf(err error) (ResilienceKind, bool) {
	var rerr *ResilienceError
	if errors.As(err, &rerr) {
		return rerr.Kind, true
	}
	return "", false
}

func IsResilienceKind(err error, kind ResilienceKind) bool {
	got, ok := ResilienceKindOf(err)
	return ok && got == kind
}
