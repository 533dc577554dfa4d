package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/escrow/internal/ir"
)

// TraceSnapshot captures the complete trace for a scenario execution.
// All fields use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	FlowToken    string       `json:"flow_token,omitempty"`
	Trace        []TraceEvent `json:"trace"`
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical JSON serialization.
// Counters are written as int64 so they serialize as JSON numbers.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		events := make([]any, len(ev.Events))
		for j, e := range ev.Events {
			events[j] = map[string]any{
				"seq":  e.Seq,
				"kind": e.Kind,
			}
		}
		step := map[string]any{
			"step":    int64(ev.Step),
			"op":      ev.Op,
			"caller":  ev.Caller,
			"height":  int64(ev.Height),
			"outcome": ev.Outcome,
			"events":  events,
		}
		if len(ev.Args) > 0 {
			step["args"] = ev.Args
		}
		if ev.VaultID != 0 {
			step["vault"] = int64(ev.VaultID)
		}
		if ev.State != "" {
			step["state"] = ev.State
		}
		traceList[i] = step
	}

	result := map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         traceList,
	}
	if s.FlowToken != "" {
		result["flow_token"] = s.FlowToken
	}
	return result
}

// MarshalTrace renders a trace as canonical JSON.
func MarshalTrace(scenarioName, flowToken string, trace []TraceEvent) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		FlowToken:    flowToken,
		Trace:        trace,
	}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check Pass; a trace mismatch fails
// the test through goldie.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	traceJSON, err := MarshalTrace(scenario.Name, scenario.FlowToken, result.Trace)
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, traceJSON)

	return result, nil
}
