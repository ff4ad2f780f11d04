package search

import (
	"errors"

	"github.com/jwulff/articube/internal/agent"
)

// State is the controller's position in the search lifecycle.
type State int

const (
	StateIdle State = iota
	StateDispatching
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDispatching:
		return "dispatching"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Origin records what triggered a dispatch.
type Origin int

const (
	OriginTyped Origin = iota
	OriginHistory
	OriginInitial
)

func (o Origin) String() string {
	switch o {
	case OriginTyped:
		return "typed"
	case OriginHistory:
		return "history"
	case OriginInitial:
		return "initial"
	}
	return "unknown"
}

// ValidationError is a rejected input that never reaches the network.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ErrEmptyQuery rejects blank queries.
var ErrEmptyQuery error = &ValidationError{Field: "query", Message: "Please enter a search query."}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Result is a structured answer.
type Result struct {
	Response string
	Sources  []agent.Source
	Metadata map[string]any
}

// Snapshot is a read-only view of the session.
type Snapshot struct {
	Open          bool
	Query         string
	Result        *Result
	Loading       bool
	Error         string
	PreviousQuery string
	State         State
	Origin        Origin
}

type session struct {
	open          bool
	query         string
	result        *Result
	err           string
	previousQuery string
	state         State
	origin        Origin
}

func (s session) snapshot() Snapshot {
	snap := Snapshot{
		Open:          s.open,
		Query:         s.query,
		Error:         s.err,
		PreviousQuery: s.previousQuery,
		State:         s.state,
		Loading:       s.state == StateDispatching,
		Origin:        s.origin,
	}
	if s.result != nil {
		r := *s.result
		r.Sources = append([]agent.Source(nil), s.result.Sources...)
		snap.Result = &r
	}
	return snap
}
