// Package status is the non-fatal error channel of a result set.
package status

import "strings"

// Code classifies a status: 0 ok, positive warning, negative fatal.
type Code int

// Status codes.
const (
	OK Code = 0

	// HitlistFallback: the requested hitlist was not resolvable, anonymous columns were used.
	HitlistFallback Code = 1
	// MultiServerHitlist: anonymous columns over archives of more than one server.
	MultiServerHitlist Code = 2
	// PartialFailure: at least one resource failed, others contributed rows.
	PartialFailure Code = 3
	// Truncated: the hit limit cut the result.
	Truncated Code = 4
	// Unsorted: a backend could not honor the full sort expression.
	Unsorted Code = 5

	// BackendFailure: every resource failed, rows must not be trusted.
	BackendFailure Code = -1
	// Internal: the engine itself failed while loading rows.
	Internal Code = -2
)

// Status is an immutable (code, text) pair.
type Status struct {
	code Code
	text string
}

// New creates a Status.
func New(code Code, text string) Status {
	return Status{code: code, text: text}
}

// Warning creates a positive-code status.
func Warning(code Code, text string) Status { return New(code, text) }

// Fatal creates a negative-code status.
func Fatal(code Code, text string) Status { return New(code, text) }

// Code returns the status code.
func (s Status) Code() Code { return s.code }

// Text returns the human-readable diagnostic.
func (s Status) Text() string { return s.text }

// IsOK reports a zero code.
func (s Status) IsOK() bool { return s.code == OK }

// IsWarning reports a positive code.
func (s Status) IsWarning() bool { return s.code > OK }

// IsFatal reports a negative code.
func (s Status) IsFatal() bool { return s.code < OK }

// Merge combines two statuses. Fatal wins over warning, warning over ok;
// the first code of the winning class is kept and texts accumulate.
func (s Status) Merge(o Status) Status {
	switch {
	case o.IsOK():
		return s
	case s.IsOK():
		return o
	case o.IsFatal() && !s.IsFatal():
		return Status{code: o.code, text: join(o.text, s.text)}
	default:
		return Status{code: s.code, text: join(s.text, o.text)}
	}
}

func join(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "" || strings.Contains(a, b):
		return a
	default:
		return a + "; " + b
	}
}
