package engine

import "fmt"

// Principal is an opaque identity: a depositor, recipient, admin or the
// custodian holding locked value.
type Principal string

// State is the lifecycle position of a vault.
// The zero value is invalid so an unset state is never mistaken for pending.
type State uint8

const (
	StatePending State = iota + 1
	// StateAccepted is reserved: rules accept it as a source state but no
	// operation moves a vault into it.
	StateAccepted
	StateDisputed
	StateFlagged
	StateCompleted
	StateReturned
	StateWithdrawn
	StateExpired
	StateResolved
)

var stateNames = map[State]string{
	StatePending:   "pending",
	StateAccepted:  "accepted",
	StateDisputed:  "disputed",
	StateFlagged:   "flagged",
	StateCompleted: "completed",
	StateReturned:  "returned",
	StateWithdrawn: "withdrawn",
	StateExpired:   "expired",
	StateResolved:  "resolved",
}

// AllStates lists every valid state in declaration order.
func AllStates() []State {
	return []State{
		StatePending, StateAccepted, StateDisputed, StateFlagged,
		StateCompleted, StateReturned, StateWithdrawn, StateExpired, StateResolved,
	}
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Valid reports whether s is one of the declared states.
func (s State) Valid() bool {
	_, ok := stateNames[s]
	return ok
}

// Terminal reports whether s is absorbing.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateReturned, StateWithdrawn, StateExpired, StateResolved:
		return true
	}
	return false
}

// ParseState is the inverse of State.String.
func ParseState(name string) (State, error) {
	for s, n := range stateNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown vault state %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid vault state %d", uint8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	parsed, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Vault is the sole persistent entity: one escrow of Amount units of AssetID
// from Depositor to Recipient.
type Vault struct {
	ID          uint64    `json:"id"`
	Depositor   Principal `json:"depositor"`
	Recipient   Principal `json:"recipient"`
	AssetID     string    `json:"asset_id"`
	Amount      uint64    `json:"amount"`
	State       State     `json:"state"`
	StartHeight Height    `json:"start_height"`
	EndHeight   Height    `json:"end_height"`

	// Extended is the total of all deltas applied by Extend.
	Extended Height `json:"extended"`

	// RecoveryAddress is the backup principal recorded by the depositor.
	// RecoveryUnlock is the height it becomes effective; zero when set
	// without a time lock.
	RecoveryAddress Principal `json:"recovery_address,omitempty"`
	RecoveryUnlock  Height    `json:"recovery_unlock,omitempty"`
}

// Expired reports whether now lies past the vault's validity window.
func (v Vault) Expired(now Height) bool {
	return now > v.EndHeight
}
