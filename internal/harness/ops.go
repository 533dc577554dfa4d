package harness

import (
	"context"
	"fmt"
	"strconv"

	"github.com/roach88/escrow/internal/engine"
)

// call is a bound operation ready to run at the current height.
type call func(ctx context.Context) (engine.Vault, error)

// binder turns step arguments into a call. Argument errors are scenario
// errors, not engine rejections.
type binder func(h *Harness, caller engine.Principal, args argMap) (call, error)

// operations maps scenario op names to engine operations.
var operations = map[string]binder{
	"create": func(h *Harness, caller engine.Principal, args argMap) (call, error) {
		var req engine.CreateRequest
		var err error
		if req.Amount, err = args.uint("amount"); err != nil {
			return nil, err
		}
		recipient, err := args.str("recipient")
		if err != nil {
			return nil, err
		}
		req.Recipient = engine.Principal(recipient)
		if req.AssetID, err = args.str("asset"); err != nil {
			return nil, err
		}
		lifetime, err := args.optUint("lifetime")
		if err != nil {
			return nil, err
		}
		req.Lifetime = engine.Height(lifetime)
		return func(ctx context.Context) (engine.Vault, error) {
			return h.engine.Create(ctx, caller, req)
		}, nil
	},
	"complete": byID(func(e *engine.Engine) idOp { return e.Complete }),
	"return":   byID(func(e *engine.Engine) idOp { return e.Return }),
	"withdraw": byID(func(e *engine.Engine) idOp { return e.Withdraw }),
	"recover":  byID(func(e *engine.Engine) idOp { return e.RecoverExpired }),
	"dispute":  byID(func(e *engine.Engine) idOp { return e.OpenDispute }),
	"resolve": func(h *Harness, caller engine.Principal, args argMap) (call, error) {
		id, err := args.uint("id")
		if err != nil {
			return nil, err
		}
		pct, err := args.uint("pct")
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) (engine.Vault, error) {
			return h.engine.ResolveDispute(ctx, caller, id, uint(pct))
		}, nil
	},
	"extend": func(h *Harness, caller engine.Principal, args argMap) (call, error) {
		id, err := args.uint("id")
		if err != nil {
			return nil, err
		}
		delta, err := args.uint("delta")
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) (engine.Vault, error) {
			return h.engine.Extend(ctx, caller, id, engine.Height(delta))
		}, nil
	},
	"flag": func(h *Harness, caller engine.Principal, args argMap) (call, error) {
		id, err := args.uint("id")
		if err != nil {
			return nil, err
		}
		reason, err := args.str("reason")
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) (engine.Vault, error) {
			return h.engine.Flag(ctx, caller, id, reason)
		}, nil
	},
	"annotate": func(h *Harness, caller engine.Principal, args argMap) (call, error) {
		id, err := args.uint("id")
		if err != nil {
			return nil, err
		}
		category, err := args.str("category")
		if err != nil {
			return nil, err
		}
		value, err := args.str("value")
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) (engine.Vault, error) {
			return h.engine.AttachMetadata(ctx, caller, id, category, value)
		}, nil
	},
	"set_recovery": func(h *Harness, caller engine.Principal, args argMap) (call, error) {
		id, err := args.uint("id")
		if err != nil {
			return nil, err
		}
		addr, err := args.str("address")
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) (engine.Vault, error) {
			return h.engine.SetRecoveryAddress(ctx, caller, id, engine.Principal(addr))
		}, nil
	},
	"time_recovery": func(h *Harness, caller engine.Principal, args argMap) (call, error) {
		id, err := args.uint("id")
		if err != nil {
			return nil, err
		}
		addr, err := args.str("address")
		if err != nil {
			return nil, err
		}
		delay, err := args.uint("delay")
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) (engine.Vault, error) {
			return h.engine.SetupTimeRecovery(ctx, caller, id, engine.Principal(addr), engine.Height(delay))
		}, nil
	},
	"attest": func(h *Harness, caller engine.Principal, args argMap) (call, error) {
		id, err := args.uint("id")
		if err != nil {
			return nil, err
		}
		p, err := proof(args, id, engine.OpAddVerification)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) (engine.Vault, error) {
			return h.engine.AddVerification(ctx, caller, id, p)
		}, nil
	},
	"verify": func(h *Harness, caller engine.Principal, args argMap) (call, error) {
		id, err := args.uint("id")
		if err != nil {
			return nil, err
		}
		claimed, err := args.str("claimed")
		if err != nil {
			return nil, err
		}
		p, err := proof(args, id, engine.OpVerifyWithCrypto)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) (engine.Vault, error) {
			return h.engine.VerifyWithCrypto(ctx, caller, id, engine.Principal(claimed), p)
		}, nil
	},
}

type idOp func(ctx context.Context, caller engine.Principal, id uint64) (engine.Vault, error)

func byID(pick func(*engine.Engine) idOp) binder {
	return func(h *Harness, caller engine.Principal, args argMap) (call, error) {
		id, err := args.uint("id")
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) (engine.Vault, error) {
			return pick(h.engine)(ctx, caller, id)
		}, nil
	}
}

// argMap reads typed step arguments from decoded YAML.
type argMap map[string]any

// uint reads a required unsigned integer. Decimal strings are accepted so
// scenarios can spell amounts above the YAML int range.
func (a argMap) uint(key string) (uint64, error) {
	v, ok := a[key]
	if !ok {
		return 0, fmt.Errorf("missing arg %q", key)
	}
	switch n := v.(type) {
	case int:
		if n < 0 {
			return 0, fmt.Errorf("arg %q: negative value %d", key, n)
		}
		return uint64(n), nil
	case int64:
		if n < 0 {
			return 0, fmt.Errorf("arg %q: negative value %d", key, n)
		}
		return uint64(n), nil
	case uint64:
		return n, nil
	case string:
		u, err := strconv.ParseUint(n, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("arg %q: %w", key, err)
		}
		return u, nil
	default:
		return 0, fmt.Errorf("arg %q: expected integer, got %T", key, v)
	}
}

func (a argMap) optUint(key string) (uint64, error) {
	if _, ok := a[key]; !ok {
		return 0, nil
	}
	return a.uint(key)
}

// str reads a string argument. Absent keys read as "" so scenarios can
// exercise empty-value rejections.
func (a argMap) str(key string) (string, error) {
	v, ok := a[key]
	if !ok {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("arg %q: expected string, got %T", key, v)
	}
	return s, nil
}
