package skirmish

import "fmt"

// FaultError is a data-integrity fault: malformed persisted state or a
// broken internal invariant. Faults abort the action instead of being
// clamped away, so invariant regressions surface in tests rather than as
// silently wrong results.
type FaultError struct {
	Invariant string
	Detail    string
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("integrity fault (%s): %s", e.Invariant, e.Detail)
}

func faultf(invariant, format string, args ...any) *FaultError {
	return &FaultError{Invariant: invariant, Detail: fmt.Sprintf(format, args...)}
}
