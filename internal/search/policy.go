package search

import (
	"errors"
	"fmt"
)

// Operation names one kind of call against the search backend.
type Operation string

const (
	OpEnsureIndex    Operation = "ensure_index"
	OpUpsert         Operation = "upsert"
	OpDelete         Operation = "delete"
	OpRecordHits     Operation = "record_hits"
	OpSearchFuzzy    Operation = "search_fuzzy"
	OpSearchFiltered Operation = "search_filtered"
	OpSample         Operation = "sample"
	OpTopHits        Operation = "top_hits"
)

// Operations lists every operation in a stable order.
var Operations = []Operation{
	OpEnsureIndex, OpUpsert, OpDelete, OpRecordHits,
	OpSearchFuzzy, OpSearchFiltered, OpSample, OpTopHits,
}

// FailurePolicy decides what a failed backend call turns into.
type FailurePolicy int

const (
	// LogAndContinue logs the failure and reports success to the caller.
	LogAndContinue FailurePolicy = iota
	// EmptyResult logs the failure and returns an empty result set.
	EmptyResult
	// Propagate returns the failure to the caller.
	Propagate
)

func (p FailurePolicy) String() string {
	switch p {
	case LogAndContinue:
		return "log_and_continue"
	case EmptyResult:
		return "empty_result"
	case Propagate:
		return "propagate"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// Policies maps each operation to its failure policy.
type Policies map[Operation]FailurePolicy

// DefaultPolicies swallows every backend failure: index maintenance and
// analytics log and continue, reads degrade to an empty result.
func DefaultPolicies() Policies {
	return Policies{
		OpEnsureIndex:    LogAndContinue,
		OpUpsert:         LogAndContinue,
		OpDelete:         LogAndContinue,
		OpRecordHits:     LogAndContinue,
		OpSearchFuzzy:    EmptyResult,
		OpSearchFiltered: EmptyResult,
		OpSample:         EmptyResult,
		OpTopHits:        EmptyResult,
	}
}

// StrictPolicies propagates every failure.
func StrictPolicies() Policies {
	p := make(Policies, len(Operations))
	for _, op := range Operations {
		p[op] = Propagate
	}
	return p
}

// For returns the policy for op. Operations missing from the table propagate.
func (p Policies) For(op Operation) FailurePolicy {
	if policy, ok := p[op]; ok {
		return policy
	}
	return Propagate
}

// ErrConfiguration is returned when no backend address can be derived.
var ErrConfiguration = errors.New("search: cannot derive backend address")

// BackendError is a transport failure or a non-2xx answer from the backend.
type BackendError struct {
	Op     Operation
	Status int
	Body   string
	Err    error
}

func (e *BackendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("search: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("search: %s: status %d: %s", e.Op, e.Status, e.Body)
}

func (e *BackendError) Unwrap() error { return e.Err }
