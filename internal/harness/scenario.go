package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines one escrow conformance scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Policy is optional CUE source declaring a top-level policy struct.
	Policy string `yaml:"policy,omitempty"`

	// Height is the block height before the first step.
	Height uint64 `yaml:"height,omitempty"`

	// Balances are minted before the first step.
	Balances []Balance `yaml:"balances,omitempty"`

	Steps []Step `yaml:"steps"`

	// Assertions validate the final ledger and event log.
	Assertions []Assertion `yaml:"assertions"`

	// FlowToken is stamped on every event. Defaults to "test-flow-default".
	FlowToken string `yaml:"flow_token,omitempty"`
}

// Balance is an opening ledger position.
type Balance struct {
	Asset  string `yaml:"asset"`
	Owner  string `yaml:"owner"`
	Amount uint64 `yaml:"amount"`
}

// Step invokes one engine operation.
type Step struct {
	// Op is one of the operation names accepted by the harness, e.g.
	// "create", "complete" or "resolve".
	Op     string         `yaml:"op"`
	Caller string         `yaml:"caller"`
	Args   map[string]any `yaml:"args,omitempty"`

	// At pins the block height for this step; Advance moves it forward.
	At      uint64 `yaml:"at,omitempty"`
	Advance uint64 `yaml:"advance,omitempty"`

	// FailAfter injects a ledger fault after that many successful transfers.
	FailAfter *int `yaml:"fail_after,omitempty"`

	// FailTo makes every transfer credited to this principal fail.
	FailTo string `yaml:"fail_to,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect specifies how a step must end.
type Expect struct {
	// Error is the rejection code, e.g. "NOT_ALLOWED". Empty means success.
	Error string `yaml:"error,omitempty"`

	// State is the vault state after a successful step.
	State string `yaml:"state,omitempty"`

	// Vault is a subset match on the returned vault's fields.
	Vault map[string]any `yaml:"vault,omitempty"`
}

// Assertion validates the final state of a run.
type Assertion struct {
	Type string `yaml:"type"`

	// Vault is the vault id (vault_state, vault_fields).
	Vault  uint64         `yaml:"vault,omitempty"`
	State  string         `yaml:"state,omitempty"`
	Fields map[string]any `yaml:"fields,omitempty"`

	// Asset, Owner and Amount select and check a balance.
	Asset  string `yaml:"asset,omitempty"`
	Owner  string `yaml:"owner,omitempty"`
	Amount uint64 `yaml:"amount,omitempty"`

	// Kind and Count check event_count; Kinds checks event_order.
	Kind  string   `yaml:"kind,omitempty"`
	Count int      `yaml:"count,omitempty"`
	Kinds []string `yaml:"kinds,omitempty"`
}

// Assertion type constants.
const (
	AssertVaultState  = "vault_state"
	AssertVaultFields = "vault_fields"
	AssertBalance     = "balance"
	AssertEventCount  = "event_count"
	AssertEventOrder  = "event_order"
	AssertConserved   = "conserved"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field checking.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, b := range s.Balances {
		if b.Asset == "" || b.Owner == "" {
			return fmt.Errorf("balances[%d]: asset and owner are required", i)
		}
	}

	for i, step := range s.Steps {
		if step.Op == "" {
			return fmt.Errorf("steps[%d]: op is required", i)
		}
		if _, ok := operations[step.Op]; !ok {
			return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
		}
		if step.FailAfter != nil && *step.FailAfter < 0 {
			return fmt.Errorf("steps[%d]: fail_after must be non-negative", i)
		}
		if step.Expect != nil && step.Expect.Error != "" && (step.Expect.State != "" || step.Expect.Vault != nil) {
			return fmt.Errorf("steps[%d].expect: error excludes state and vault", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertVaultState:
		if a.Vault == 0 || a.State == "" {
			return fmt.Errorf("assertions[%d]: vault and state are required for vault_state", index)
		}
	case AssertVaultFields:
		if a.Vault == 0 || len(a.Fields) == 0 {
			return fmt.Errorf("assertions[%d]: vault and fields are required for vault_fields", index)
		}
	case AssertBalance:
		if a.Asset == "" || a.Owner == "" {
			return fmt.Errorf("assertions[%d]: asset and owner are required for balance", index)
		}
	case AssertEventCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for event_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for event_count", index)
		}
	case AssertEventOrder:
		if len(a.Kinds) == 0 {
			return fmt.Errorf("assertions[%d]: kinds list is required for event_order", index)
		}
	case AssertConserved:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
