package counter

import (
	"errors"
	"math"

	"github.com/odyssey-erp/rolecounter/internal/rbac"
)

var (
	// ErrBootstrap indicates the access-control state was already initialised at construction.
	ErrBootstrap = errors.New("counter: failed to initialize super admin")
	// ErrOverflow indicates the value would leave the int64 range.
	ErrOverflow = errors.New("counter: value out of range")
)

// Authorizer is the slice of access control the counter depends on.
type Authorizer interface {
	InitSuperAdmin(account rbac.AccountID) bool
	AnyRoleAuthorized(caller rbac.AccountID, roles ...rbac.Role) bool
}

// State is the persisted form of a Counter.
type State struct {
	Value int64 `json:"value"`
}

// Counter is a signed integer whose decrement and reset are gated by roles.
type Counter struct {
	value int64
	acl   Authorizer
}

// New creates a counter at zero and makes self the super admin of acl, so the
// deployment can grant roles without an external key.
func New(self rbac.AccountID, acl Authorizer) (*Counter, error) {
	c := &Counter{acl: acl}
	if !acl.InitSuperAdmin(self) {
		return nil, ErrBootstrap
	}
	return c, nil
}

// Restore rebuilds a counter from persisted state.
func Restore(st State, acl Authorizer) *Counter {
	return &Counter{value: st.Value, acl: acl}
}

// State returns the persisted form.
func (c *Counter) State() State {
	return State{Value: c.value}
}

// Value returns the current value. Anyone may call it.
func (c *Counter) Value() int64 {
	return c.value
}

// Increment adds one. Anyone may call it.
func (c *Counter) Increment() error {
	if c.value == math.MaxInt64 {
		return ErrOverflow
	}
	c.value++
	return nil
}

// Decrement subtracts one. Requires RoleDecrementer.
func (c *Counter) Decrement(caller rbac.AccountID) error {
	if err := c.authorize(caller, MethodDecrement); err != nil {
		return err
	}
	if c.value == math.MinInt64 {
		return ErrOverflow
	}
	c.value--
	return nil
}

// Reset sets the value to zero. Requires RoleResetter.
func (c *Counter) Reset(caller rbac.AccountID) error {
	if err := c.authorize(caller, MethodReset); err != nil {
		return err
	}
	c.value = 0
	return nil
}

// NoOp changes nothing. Requires RoleDecrementer or RoleResetter.
func (c *Counter) NoOp(caller rbac.AccountID) error {
	return c.authorize(caller, MethodNoOp)
}

func (c *Counter) authorize(caller rbac.AccountID, m Method) error {
	if !m.Restricted() || c.acl.AnyRoleAuthorized(caller, m.Roles...) {
		return nil
	}
	return &PermissionError{Method: m.Name, Roles: m.Roles, Caller: caller}
}
