package harness

// EmittedEvent is the part of an event record that a trace keeps.
type EmittedEvent struct {
	Seq  int64  `json:"seq"`
	Kind string `json:"kind"`
}

// TraceEvent records one executed step.
type TraceEvent struct {
	Step   int            `json:"step"`
	Op     string         `json:"op"`
	Caller string         `json:"caller"`
	Height uint64         `json:"height"`
	Args   map[string]any `json:"args,omitempty"`

	// Outcome is "ok" or the rejection code.
	Outcome string `json:"outcome"`

	// VaultID and State are set for successful steps.
	VaultID uint64 `json:"vault,omitempty"`
	State   string `json:"state,omitempty"`

	Events []EmittedEvent `json:"events"`
}

// OutcomeOK marks a step that succeeded.
const OutcomeOK = "ok"

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddStep appends a step to the trace.
func (r *Result) AddStep(ev TraceEvent) {
	if ev.Events == nil {
		ev.Events = []EmittedEvent{}
	}
	r.Trace = append(r.Trace, ev)
}
