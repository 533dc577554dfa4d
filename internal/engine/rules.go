package engine

// Op names an engine operation.
type Op string

const (
	OpCreate             Op = "create"
	OpComplete           Op = "complete"
	OpReturn             Op = "return"
	OpWithdraw           Op = "withdraw"
	OpExtend             Op = "extend"
	OpRecoverExpired     Op = "recover-expired"
	OpOpenDispute        Op = "open-dispute"
	OpResolveDispute     Op = "resolve-dispute"
	OpFlag               Op = "flag-suspicious"
	OpAttachMetadata     Op = "attach-metadata"
	OpAddVerification    Op = "add-verification"
	OpVerifyWithCrypto   Op = "verify-with-crypto"
	OpSetRecoveryAddress Op = "set-recovery-address"
	OpSetupTimeRecovery  Op = "setup-time-recovery"
)

// role is a bit set of the capacities a caller holds on one vault.
// A caller can hold several at once (an admin who is also the depositor).
type role uint8

const (
	roleDepositor role = 1 << iota
	roleRecipient
	roleAdmin
)

// stateSet is a bit set over State.
type stateSet uint16

func states(ss ...State) stateSet {
	var set stateSet
	for _, s := range ss {
		set |= 1 << s
	}
	return set
}

func (set stateSet) has(s State) bool {
	return set&(1<<s) != 0
}

// window is the time-window condition of a rule.
type window uint8

const (
	windowAny     window = iota // no time condition
	windowOpen                  // now <= end
	windowElapsed               // now > end
)

// rule is the guard of one vault-scoped transition.
type rule struct {
	who    role
	from   stateSet
	window window
}

var (
	live      = states(StatePending, StateAccepted)
	annotable = states(StatePending, StateAccepted, StateDisputed, StateFlagged, StateWithdrawn, StateResolved)
)

// rules is the complete transition table for operations on existing vaults.
// Create has no entry: it runs before any vault exists.
var rules = map[Op]rule{
	OpComplete:           {who: roleDepositor | roleAdmin, from: states(StatePending), window: windowOpen},
	OpReturn:             {who: roleAdmin, from: states(StatePending)},
	OpWithdraw:           {who: roleDepositor, from: states(StatePending), window: windowOpen},
	OpExtend:             {who: roleDepositor | roleRecipient | roleAdmin, from: live},
	OpRecoverExpired:     {who: roleDepositor | roleAdmin, from: live, window: windowElapsed},
	OpOpenDispute:        {who: roleDepositor | roleRecipient, from: live, window: windowOpen},
	OpResolveDispute:     {who: roleAdmin, from: states(StateDisputed), window: windowOpen},
	OpFlag:               {who: roleDepositor | roleRecipient | roleAdmin, from: live},
	OpAttachMetadata:     {who: roleDepositor | roleRecipient | roleAdmin, from: annotable},
	OpAddVerification:    {who: roleDepositor | roleRecipient, from: live},
	OpVerifyWithCrypto:   {who: roleDepositor | roleRecipient | roleAdmin, from: live},
	OpSetRecoveryAddress: {who: roleDepositor, from: states(StatePending)},
	OpSetupTimeRecovery:  {who: roleDepositor, from: states(StatePending)},
}

// Allows reports whether caller may invoke op on v in its current state.
// It evaluates authorization and state only, not time or parameters.
func (p Policy) Allows(op Op, caller Principal, v Vault) bool {
	r, ok := rules[op]
	if !ok {
		return false
	}
	return p.roles(caller, v)&r.who != 0 && r.from.has(v.State)
}

func (p Policy) roles(caller Principal, v Vault) role {
	var r role
	if caller == "" {
		return r
	}
	if caller == v.Depositor {
		r |= roleDepositor
	}
	if caller == v.Recipient {
		r |= roleRecipient
	}
	if caller == p.Admin {
		r |= roleAdmin
	}
	return r
}
