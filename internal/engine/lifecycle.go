package engine

import "context"

// Extend pushes the vault's end height out by delta. It is allowed after the
// window has elapsed, which reopens it. The deltas of all extensions of a
// vault together may not exceed the policy's MaxExtension.
func (e *Engine) Extend(ctx context.Context, caller Principal, id uint64, delta Height) (Vault, error) {
	return e.transition(ctx, OpExtend, caller, id, func(_ context.Context, v *Vault, _ Height) (Event, error) {
		if delta == 0 {
			return nil, newError(CodeBadValue, OpExtend, v.ID, "delta must be positive")
		}
		if left := e.policy.MaxExtension - min(v.Extended, e.policy.MaxExtension); delta > left {
			return nil, newError(CodeBadValue, OpExtend, v.ID, "delta %d exceeds remaining extension %d of %d", delta, left, e.policy.MaxExtension)
		}
		end := v.EndHeight + delta
		if end < v.EndHeight {
			return nil, newError(CodeBadValue, OpExtend, v.ID, "end height overflows")
		}
		v.EndHeight = end
		v.Extended += delta
		return VaultExtended{Delta: delta, EndHeight: end}, nil
	})
}

// SetRecoveryAddress records a backup principal for the vault. The address
// is stored only; no operation moves funds to it.
func (e *Engine) SetRecoveryAddress(ctx context.Context, caller Principal, id uint64, addr Principal) (Vault, error) {
	return e.transition(ctx, OpSetRecoveryAddress, caller, id, func(_ context.Context, v *Vault, _ Height) (Event, error) {
		if err := e.checkRecoveryAddress(OpSetRecoveryAddress, *v, addr); err != nil {
			return nil, err
		}
		v.RecoveryAddress = addr
		v.RecoveryUnlock = 0
		return RecoveryAddressSet{Address: addr}, nil
	})
}

// SetupTimeRecovery records a backup principal that becomes effective delay
// blocks from now.
func (e *Engine) SetupTimeRecovery(ctx context.Context, caller Principal, id uint64, addr Principal, delay Height) (Vault, error) {
	return e.transition(ctx, OpSetupTimeRecovery, caller, id, func(_ context.Context, v *Vault, now Height) (Event, error) {
		if err := e.checkRecoveryAddress(OpSetupTimeRecovery, *v, addr); err != nil {
			return nil, err
		}
		if delay < e.policy.MinRecoveryDelay || delay > e.policy.MaxRecoveryDelay {
			return nil, newError(CodeBadValue, OpSetupTimeRecovery, v.ID, "delay %d outside [%d, %d]",
				delay, e.policy.MinRecoveryDelay, e.policy.MaxRecoveryDelay)
		}
		unlock := now + delay
		if unlock < now {
			return nil, newError(CodeBadValue, OpSetupTimeRecovery, v.ID, "unlock height overflows")
		}
		v.RecoveryAddress = addr
		v.RecoveryUnlock = unlock
		return TimeRecoverySet{Address: addr, Delay: delay, UnlockHeight: unlock}, nil
	})
}

func (e *Engine) checkRecoveryAddress(op Op, v Vault, addr Principal) error {
	switch addr {
	case "":
		return newError(CodeBadValue, op, v.ID, "recovery address is required")
	case v.Depositor, v.Recipient, e.policy.Custodian:
		return newError(CodeBadRecipient, op, v.ID, "recovery address %q must be a third party", addr)
	}
	return nil
}
