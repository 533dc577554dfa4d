package engine

import (
	"context"
	"math/bits"
)

// Split divides amount by a depositor percentage in [0, 100]. The depositor
// share is floor(amount*pct/100) computed over 128 bits; the recipient gets
// the remainder, so the shares always sum to amount.
func Split(amount uint64, pct uint) (depositor, recipient uint64, ok bool) {
	if pct > 100 {
		return 0, 0, false
	}
	hi, lo := bits.Mul64(amount, uint64(pct))
	depositor, _ = bits.Div64(hi, lo, 100)
	return depositor, amount - depositor, true
}

// OpenDispute freezes a live vault pending admin resolution.
func (e *Engine) OpenDispute(ctx context.Context, caller Principal, id uint64) (Vault, error) {
	return e.transition(ctx, OpOpenDispute, caller, id, func(_ context.Context, v *Vault, _ Height) (Event, error) {
		v.State = StateDisputed
		return DisputeOpened{}, nil
	})
}

// ResolveDispute pays out a disputed vault, pct percent to the depositor and
// the rest to the recipient. Zero-valued legs are skipped.
func (e *Engine) ResolveDispute(ctx context.Context, caller Principal, id uint64, pct uint) (Vault, error) {
	return e.transition(ctx, OpResolveDispute, caller, id, func(ctx context.Context, v *Vault, _ Height) (Event, error) {
		dep, rec, ok := Split(v.Amount, pct)
		if !ok {
			return nil, newError(CodeBadValue, OpResolveDispute, v.ID, "percentage %d is above 100", pct)
		}
		err := e.pay(ctx, OpResolveDispute, *v,
			leg{to: v.Depositor, amount: dep},
			leg{to: v.Recipient, amount: rec},
		)
		if err != nil {
			return nil, err
		}
		v.State = StateResolved
		return DisputeResolved{Percentage: uint8(pct), DepositorShare: dep, RecipientShare: rec}, nil
	})
}
