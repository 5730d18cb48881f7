// Package state persists the counter and access-control records of a deployment.
package state

import (
	"context"
	"errors"

	"github.com/odyssey-erp/rolecounter/internal/counter"
	"github.com/odyssey-erp/rolecounter/internal/rbac"
)

// ErrConflict indicates a concurrent writer changed the state during an update.
var ErrConflict = errors.New("state: concurrent update")

// Snapshot holds the two logical records of a deployment.
type Snapshot struct {
	Counter counter.State `json:"counter"`
	ACL     rbac.State    `json:"acl"`
}

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{Counter: s.Counter}
	out.ACL.SuperAdmins = append([]rbac.AccountID(nil), s.ACL.SuperAdmins...)
	if s.ACL.Members != nil {
		out.ACL.Members = make(map[rbac.Role][]rbac.AccountID, len(s.ACL.Members))
		for role, accounts := range s.ACL.Members {
			out.ACL.Members[role] = append([]rbac.AccountID(nil), accounts...)
		}
	}
	return out
}

// UpdateFunc receives the committed snapshot (nil before deployment) and returns the
// snapshot to commit. Returning nil commits nothing; returning an error aborts.
type UpdateFunc func(current *Snapshot) (*Snapshot, error)

// Store serialises updates to one deployment's state.
type Store interface {
	// Load returns the committed snapshot, or nil before deployment.
	Load(ctx context.Context) (*Snapshot, error)
	// Update runs fn and commits its result atomically with respect to other updates.
	Update(ctx context.Context, fn UpdateFunc) error
}
