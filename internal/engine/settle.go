package engine

import "context"

// Complete releases the locked amount to the recipient.
func (e *Engine) Complete(ctx context.Context, caller Principal, id uint64) (Vault, error) {
	return e.transition(ctx, OpComplete, caller, id, func(ctx context.Context, v *Vault, _ Height) (Event, error) {
		if err := e.pay(ctx, OpComplete, *v, leg{to: v.Recipient, amount: v.Amount}); err != nil {
			return nil, err
		}
		v.State = StateCompleted
		return TransferCompleted{Recipient: v.Recipient, Amount: v.Amount}, nil
	})
}

// Return sends the locked amount back to the depositor on the admin's
// authority. It is not time-gated.
func (e *Engine) Return(ctx context.Context, caller Principal, id uint64) (Vault, error) {
	return e.transition(ctx, OpReturn, caller, id, func(ctx context.Context, v *Vault, _ Height) (Event, error) {
		if err := e.pay(ctx, OpReturn, *v, leg{to: v.Depositor, amount: v.Amount}); err != nil {
			return nil, err
		}
		v.State = StateReturned
		return FundsReturned{Depositor: v.Depositor, Amount: v.Amount}, nil
	})
}

// Withdraw lets the depositor take the locked amount back while the window
// is open.
func (e *Engine) Withdraw(ctx context.Context, caller Principal, id uint64) (Vault, error) {
	return e.transition(ctx, OpWithdraw, caller, id, func(ctx context.Context, v *Vault, _ Height) (Event, error) {
		if err := e.pay(ctx, OpWithdraw, *v, leg{to: v.Depositor, amount: v.Amount}); err != nil {
			return nil, err
		}
		v.State = StateWithdrawn
		return FundsWithdrawn{Depositor: v.Depositor, Amount: v.Amount}, nil
	})
}

// RecoverExpired refunds the depositor once the window has elapsed.
func (e *Engine) RecoverExpired(ctx context.Context, caller Principal, id uint64) (Vault, error) {
	return e.transition(ctx, OpRecoverExpired, caller, id, func(ctx context.Context, v *Vault, _ Height) (Event, error) {
		if err := e.pay(ctx, OpRecoverExpired, *v, leg{to: v.Depositor, amount: v.Amount}); err != nil {
			return nil, err
		}
		v.State = StateExpired
		return ExpiredRecovered{Depositor: v.Depositor, Amount: v.Amount}, nil
	})
}
