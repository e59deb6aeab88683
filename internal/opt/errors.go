package opt

import "fmt"

// MalformedInstanceError reports a structural or semantic problem with the
// input instance. It is raised during loading, never during search.
type MalformedInstanceError struct {
	Field  string
	Reason string
}

func (e *MalformedInstanceError) Error() string {
	return fmt.Sprintf("malformed instance: %s: %s", e.Field, e.Reason)
}

func malformed(field, format string, args ...any) error {
	return &MalformedInstanceError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// InfeasibleInstanceError means no feasible assignment exists under the
// capacity and fleet constraints. Raised by initial construction, before any
// search iteration runs.
type InfeasibleInstanceError struct {
	Reason string
}

func (e *InfeasibleInstanceError) Error() string {
	return "infeasible instance: " + e.Reason
}

func infeasible(format string, args ...any) error {
	return &InfeasibleInstanceError{Reason: fmt.Sprintf(format, args...)}
}
