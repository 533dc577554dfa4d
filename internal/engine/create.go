package engine

import "context"

// CreateRequest describes a new vault.
type CreateRequest struct {
	Recipient Principal
	AssetID   string
	Amount    uint64

	// Lifetime overrides the policy default when non-zero. It may not
	// exceed the policy's MaxLifetime.
	Lifetime Height
}

// Create opens a vault funded by caller. Amount units of AssetID move from
// caller to the custodian before the record is written; if that transfer
// fails nothing is recorded and the id is not consumed. If the write or the
// event fails afterwards, the deposit is returned.
func (e *Engine) Create(ctx context.Context, caller Principal, req CreateRequest) (Vault, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	const op = OpCreate
	switch {
	case caller == "":
		return Vault{}, e.reject(op, caller, newError(CodeNotAllowed, op, 0, "caller identity is required"))
	case caller == e.policy.Custodian:
		return Vault{}, e.reject(op, caller, newError(CodeNotAllowed, op, 0, "custodian cannot deposit"))
	case req.Amount == 0:
		return Vault{}, e.reject(op, caller, newError(CodeBadValue, op, 0, "amount must be positive"))
	case req.Recipient == "" || req.Recipient == caller || req.Recipient == e.policy.Custodian:
		return Vault{}, e.reject(op, caller, newError(CodeBadRecipient, op, 0, "recipient %q is not a valid counterparty", req.Recipient))
	case req.AssetID == "":
		return Vault{}, e.reject(op, caller, newError(CodeBadValue, op, 0, "asset id is required"))
	}

	lifetime := req.Lifetime
	if lifetime == 0 {
		lifetime = e.policy.Lifetime
	}
	if lifetime > e.policy.MaxLifetime {
		return Vault{}, e.reject(op, caller, newError(CodeBadValue, op, 0, "lifetime %d exceeds maximum %d", lifetime, e.policy.MaxLifetime))
	}

	now := e.heights.Height()
	end := now + lifetime
	if end < now {
		return Vault{}, e.reject(op, caller, newError(CodeBadValue, op, 0, "end height overflows"))
	}

	var out Vault
	err := e.registry.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		id, err := tx.NextID(ctx, e.policy.IDOrigin)
		if err != nil {
			return wrapError(CodeInternal, op, 0, err, "allocate id")
		}
		if err := e.transfers.Transfer(ctx, req.AssetID, req.Amount, caller, e.policy.Custodian); err != nil {
			return wrapError(CodeTransferFailed, op, 0, err, "lock %d %s", req.Amount, req.AssetID)
		}
		e.moved = append(e.moved[:0], leg{from: caller, to: e.policy.Custodian, amount: req.Amount})
		v := Vault{
			ID:          id,
			Depositor:   caller,
			Recipient:   req.Recipient,
			AssetID:     req.AssetID,
			Amount:      req.Amount,
			State:       StatePending,
			StartHeight: now,
			EndHeight:   end,
		}
		ev := VaultCreated{
			Depositor:   v.Depositor,
			Recipient:   v.Recipient,
			AssetID:     v.AssetID,
			Amount:      v.Amount,
			StartHeight: v.StartHeight,
			EndHeight:   v.EndHeight,
		}
		if err := e.commit(ctx, tx, op, caller, Vault{}, v, now, ev); err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		return Vault{}, e.reject(op, caller, err)
	}

	e.logger.Info("vault created",
		"vault", out.ID,
		"depositor", out.Depositor,
		"recipient", out.Recipient,
		"asset", out.AssetID,
		"amount", out.Amount,
		"end", out.EndHeight,
	)
	return out, nil
}
