// Package contract hosts the guarded counter: it dispatches named calls, runs each one
// against state rebuilt from the store, and commits the result only when the call
// succeeds.
package contract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/rolecounter/internal/counter"
	"github.com/odyssey-erp/rolecounter/internal/observability"
	"github.com/odyssey-erp/rolecounter/internal/rbac"
	"github.com/odyssey-erp/rolecounter/internal/state"
)

// DeployMethod is the constructor's method name.
const DeployMethod = "new"

// conflictAttempts bounds how often a call is re-run after losing an optimistic
// store transaction to a writer in another process.
const conflictAttempts = 5

// conflictBackoff is the base delay before the second attempt; it doubles per attempt
// and is jittered.
const conflictBackoff = 5 * time.Millisecond

// Publisher receives the events of committed calls.
type Publisher interface {
	Publish(ctx context.Context, callID string, at time.Time, events []rbac.Event) error
}

// Config collects Engine dependencies. Store and Self are required.
type Config struct {
	Store     state.Store
	Self      rbac.AccountID
	Grants    Grants
	Publisher Publisher
	Metrics   *observability.Metrics
	Logger    *slog.Logger
	Now       func() time.Time
}

// Receipt is the outcome of a committed call or a view.
type Receipt struct {
	CallID string          `json:"call_id"`
	Method string          `json:"method"`
	Caller rbac.AccountID  `json:"caller,omitempty"`
	Result json.RawMessage `json:"result"`
	Events []rbac.Event    `json:"events,omitempty"`
	At     time.Time       `json:"at"`
}

// Engine runs calls one at a time per store update. Calls from one Engine are
// serialised in process; the store arbitrates between processes.
type Engine struct {
	mu        sync.Mutex
	store     state.Store
	self      rbac.AccountID
	grants    Grants
	publisher Publisher
	metrics   *observability.Metrics
	logger    *slog.Logger
	now       func() time.Time
	validate  *validator.Validate
}

// NewEngine builds an Engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, errors.New("contract: store required")
	}
	if strings.TrimSpace(string(cfg.Self)) == "" {
		return nil, errors.New("contract: self account required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return &Engine{
		store:     cfg.Store,
		self:      cfg.Self,
		grants:    cfg.Grants,
		publisher: cfg.Publisher,
		metrics:   cfg.Metrics,
		logger:    logger,
		now:       now,
		validate:  v,
	}, nil
}

// Self returns the contract's own account id, its bootstrap super admin.
func (e *Engine) Self() rbac.AccountID {
	return e.self
}

// Deploy constructs the counter, makes Self the super admin and applies the bootstrap
// grants, all in one commit. It fails with ErrAlreadyDeployed once state exists.
func (e *Engine) Deploy(ctx context.Context) (Receipt, error) {
	receipt := e.newReceipt(DeployMethod, e.self)
	var events []rbac.Event
	var value int64
	err := e.update(ctx, func(current *state.Snapshot) (*state.Snapshot, error) {
		if current != nil {
			return nil, ErrAlreadyDeployed
		}
		acl := rbac.New()
		c, err := counter.New(e.self, acl)
		if err != nil {
			return nil, err
		}
		if err := e.grants.apply(e.self, acl); err != nil {
			return nil, err
		}
		events = acl.Events()
		value = c.Value()
		return &state.Snapshot{Counter: c.State(), ACL: acl.State()}, nil
	})
	if err != nil {
		e.observe(receipt, err)
		return Receipt{}, err
	}
	receipt.Result = json.RawMessage("null")
	receipt.Events = events
	e.committed(ctx, receipt, value)
	return receipt, nil
}

// Call runs method as caller. A failing call commits nothing; view methods commit
// nothing either way.
func (e *Engine) Call(ctx context.Context, caller rbac.AccountID, name string, args json.RawMessage) (Receipt, error) {
	m, ok := methods[name]
	if !ok {
		return Receipt{}, fmt.Errorf("%w: %s", ErrUnknownMethod, name)
	}
	if caller == "" {
		return Receipt{}, ErrMissingCaller
	}
	receipt := e.newReceipt(name, caller)
	var result any
	var events []rbac.Event
	var value int64
	err := e.update(ctx, func(current *state.Snapshot) (*state.Snapshot, error) {
		if current == nil {
			return nil, ErrNotDeployed
		}
		env, err := e.restore(current, caller)
		if err != nil {
			return nil, err
		}
		result, err = m.run(env, args)
		if err != nil {
			return nil, err
		}
		events = env.acl.Events()
		value = env.counter.Value()
		if m.view {
			return nil, nil
		}
		return &state.Snapshot{Counter: env.counter.State(), ACL: env.acl.State()}, nil
	})
	if err == nil {
		receipt.Result, err = json.Marshal(result)
	}
	if err != nil {
		e.observe(receipt, err)
		return Receipt{}, err
	}
	receipt.Events = events
	e.committed(ctx, receipt, value)
	return receipt, nil
}

// View runs a read-only method against the committed state without a caller.
func (e *Engine) View(ctx context.Context, name string, args json.RawMessage) (Receipt, error) {
	m, ok := methods[name]
	if !ok {
		return Receipt{}, fmt.Errorf("%w: %s", ErrUnknownMethod, name)
	}
	if !m.view {
		return Receipt{}, fmt.Errorf("%w: %s", ErrNotView, name)
	}
	receipt := e.newReceipt(name, "")
	current, err := e.store.Load(ctx)
	if err != nil {
		return Receipt{}, err
	}
	if current == nil {
		return Receipt{}, ErrNotDeployed
	}
	env, err := e.restore(current, "")
	if err != nil {
		return Receipt{}, err
	}
	result, err := m.run(env, args)
	if err != nil {
		return Receipt{}, err
	}
	if receipt.Result, err = json.Marshal(result); err != nil {
		return Receipt{}, err
	}
	return receipt, nil
}

// update runs fn under the engine lock and re-runs it on fresh state, after a jittered
// backoff, when the store reports a writer from another process.
func (e *Engine) update(ctx context.Context, fn state.UpdateFunc) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var err error
	for attempt := 1; attempt <= conflictAttempts; attempt++ {
		err = e.store.Update(ctx, fn)
		if !errors.Is(err, state.ErrConflict) || attempt == conflictAttempts {
			return err
		}
		e.logger.Debug("state conflict, retrying", slog.Int("attempt", attempt))
		if werr := sleepCtx(ctx, backoff(attempt)); werr != nil {
			return errors.Join(err, werr)
		}
	}
	return err
}

func backoff(attempt int) time.Duration {
	d := conflictBackoff << (attempt - 1)
	return d/2 + time.Duration(rand.Int63n(int64(d/2+1)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (e *Engine) restore(snap *state.Snapshot, caller rbac.AccountID) (*callEnv, error) {
	acl, err := rbac.FromState(snap.ACL)
	if err != nil {
		return nil, err
	}
	return &callEnv{
		engine:  e,
		caller:  caller,
		acl:     acl,
		counter: counter.Restore(snap.Counter, acl),
	}, nil
}

func (e *Engine) newReceipt(method string, caller rbac.AccountID) Receipt {
	return Receipt{
		CallID: uuid.NewString(),
		Method: method,
		Caller: caller,
		At:     e.now().UTC(),
	}
}

// committed records metrics and hands events to the publisher. The call has already
// committed, so publish failures are logged rather than returned.
func (e *Engine) committed(ctx context.Context, receipt Receipt, value int64) {
	e.observe(receipt, nil)
	e.metrics.SetCounterValue(value)
	if e.publisher == nil || len(receipt.Events) == 0 {
		return
	}
	if err := e.publisher.Publish(ctx, receipt.CallID, receipt.At, receipt.Events); err != nil {
		e.logger.Warn("publish acl events",
			slog.String("call_id", receipt.CallID),
			slog.Int("events", len(receipt.Events)),
			slog.Any("error", err),
		)
	}
}

func (e *Engine) observe(receipt Receipt, err error) {
	outcome := outcomeFor(err)
	e.metrics.ObserveCall(receipt.Method, outcome)
	attrs := []any{
		slog.String("call_id", receipt.CallID),
		slog.String("method", receipt.Method),
		slog.String("caller", string(receipt.Caller)),
		slog.String("outcome", outcome),
	}
	switch outcome {
	case observability.OutcomeOK:
		e.logger.Info("contract call", attrs...)
	case observability.OutcomeError:
		e.logger.Error("contract call", append(attrs, slog.Any("error", err))...)
	default:
		e.logger.Warn("contract call", append(attrs, slog.String("reason", err.Error()))...)
	}
}

func outcomeFor(err error) string {
	switch {
	case err == nil:
		return observability.OutcomeOK
	case errors.Is(err, counter.ErrPermissionDenied):
		return observability.OutcomeDenied
	case errors.Is(err, ErrInvalidArgs),
		errors.Is(err, ErrNotDeployed),
		errors.Is(err, ErrAlreadyDeployed),
		errors.Is(err, counter.ErrOverflow),
		errors.Is(err, counter.ErrBootstrap),
		errors.Is(err, state.ErrConflict):
		return observability.OutcomeAborted
	default:
		return observability.OutcomeError
	}
}
