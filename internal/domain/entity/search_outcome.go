package entity

// NotFoundReason explains why a threshold search returned Found=false.
type NotFoundReason string

const (
	// ReasonNone means the search found a threshold.
	ReasonNone NotFoundReason = ""

	// ReasonNeverTrue means the predicate was never observed True in range.
	ReasonNeverTrue NotFoundReason = "never_true"

	// ReasonPredatesHistory means the condition was already True at the
	// start of observable history, so the transition cannot be located.
	ReasonPredatesHistory NotFoundReason = "predates_history"

	// ReasonSkipped means the search was not attempted because its
	// precondition could not be confirmed.
	ReasonSkipped NotFoundReason = "skipped"

	// ReasonNotActive means the condition is confirmed inactive at the
	// anchor height, so there is no transition to locate.
	ReasonNotActive NotFoundReason = "not_active"
)

// SearchOutcome is the result of a monotonic threshold search.
//
// Found=true guarantees the predicate was observed True at Height and that
// no lower height was confirmed True. ExhaustedByIndeterminate tells the
// caller that at least one probe on the search path could not be confirmed,
// so a negative (or imprecise) result may be a provider artifact rather
// than a property of the chain.
type SearchOutcome struct {
	Found  bool   `json:"found"`
	Height uint64 `json:"height,omitempty"`

	Reason NotFoundReason `json:"reason,omitempty"`

	// ExhaustedByIndeterminate is set when one or more predicate
	// evaluations returned Indeterminate, meaning the search narrowed
	// conservatively instead of trusting an answer.
	ExhaustedByIndeterminate bool `json:"exhausted_by_indeterminate,omitempty"`

	// Probes is the number of predicate evaluations performed.
	Probes int `json:"probes"`
}
