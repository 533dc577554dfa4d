package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/roach88/escrow/internal/engine"
	"github.com/roach88/escrow/internal/identity"
	"github.com/roach88/escrow/internal/policy"
	"github.com/roach88/escrow/internal/store"
)

// Identities of the built-in policy used when --policy is not set.
const (
	DefaultAdmin     engine.Principal = "admin"
	DefaultCustodian engine.Principal = "escrow"
)

// genesis anchors wall-clock heights: one block per blockInterval since.
var genesis = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

const blockInterval = 10 * time.Minute

// session is one opened database with an engine over it.
type session struct {
	store   *store.Store
	engine  *engine.Engine
	policy  engine.Policy
	heights engine.HeightSource
}

// loadPolicy reads --policy, or returns the built-in policy.
func loadPolicy(opts *RootOptions) (engine.Policy, error) {
	if opts.Policy == "" {
		return engine.DefaultPolicy(DefaultAdmin, DefaultCustodian), nil
	}
	p, err := policy.Load(opts.Policy)
	if err != nil {
		return engine.Policy{}, WrapExitError(ExitCommandError, "failed to load policy", err)
	}
	return p, nil
}

func heightSource(opts *RootOptions) engine.HeightSource {
	if opts.Height != 0 {
		return engine.FixedHeight(opts.Height)
	}
	return engine.WallHeight{Genesis: genesis, Interval: blockInterval}
}

// openSession loads the policy, opens the database and builds an engine
// whose clock resumes after the last stored event.
func openSession(ctx context.Context, opts *RootOptions) (*session, error) {
	pol, err := loadPolicy(opts)
	if err != nil {
		return nil, err
	}

	slog.Debug("opening database", "path", opts.Database)
	st, err := store.Open(opts.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	seq, err := st.LastSeq(ctx)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to read event log", err)
	}

	heights := heightSource(opts)
	eng, err := engine.New(pol, st, st.Ledger(), heights,
		engine.WithEventSink(st),
		engine.WithClock(engine.NewClockAt(seq)),
		engine.WithProofRecoverer(identity.Secp256k1{}),
		engine.WithLogger(slog.Default()),
	)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "invalid policy", err)
	}

	return &session{store: st, engine: eng, policy: pol, heights: heights}, nil
}

func (s *session) Close() {
	if err := s.store.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

// caller returns --as, failing when it is unset.
func caller(opts *RootOptions) (engine.Principal, error) {
	if opts.Caller == "" {
		return "", NewExitError(ExitCommandError, "acting principal is required: pass --as or set ESCROW_CALLER")
	}
	return engine.Principal(opts.Caller), nil
}

func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, WrapExitError(ExitCommandError, fmt.Sprintf("invalid vault id %q", s), err)
	}
	return id, nil
}
