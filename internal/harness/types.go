package harness

// Trace event types.
const (
	EventInvocation = "invocation"
	EventCompletion = "completion"
)

// OutcomeOK is the completion outcome of a step that succeeded. Failed steps
// complete with their error kind.
const OutcomeOK = "ok"

// TraceEvent is one entry of a scenario trace. Every step contributes an
// invocation followed by its completion.
type TraceEvent struct {
	Type    string `json:"type"`             // "invocation" or "completion"
	Action  string `json:"action,omitempty"` // "<entity>.<op>"
	Args    any    `json:"args,omitempty"`
	Outcome string `json:"outcome,omitempty"`
	Result  any    `json:"result,omitempty"`
	Seq     int64  `json:"seq"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step met its expectation and every assertion
	// held.
	Pass bool `json:"pass"`

	// Trace contains all invocations and completions in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State holds the number of rows per entity table at the end of the
	// run, deleted rows included.
	State map[string]int64 `json:"state,omitempty"`

	// IDs are the row ids touched by each step, setup first. $n in
	// arguments refers to IDs[n-1].
	IDs []int64 `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string]int64),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddInvocationTrace adds an invocation to the trace.
func (r *Result) AddInvocationTrace(action string, args any, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:   EventInvocation,
		Action: action,
		Args:   args,
		Seq:    seq,
	})
}

// AddCompletionTrace adds a completion to the trace.
func (r *Result) AddCompletionTrace(outcome string, result any, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:    EventCompletion,
		Outcome: outcome,
		Result:  result,
		Seq:     seq,
	})
}
