package rbac

// Role is a named permission tag an account may or may not hold.
type Role string

const (
	// RoleDecrementer grantees may decrease the counter.
	RoleDecrementer Role = "Decrementer"
	// RoleResetter grantees may reset the counter.
	RoleResetter Role = "Resetter"
)

// Roles returns every role known to the deployment in declaration order.
func Roles() []Role {
	return []Role{RoleDecrementer, RoleResetter}
}

// Valid reports whether r is one of the declared roles.
func (r Role) Valid() bool {
	for _, known := range Roles() {
		if r == known {
			return true
		}
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// AccountID identifies a caller. The host authenticates it; this package only compares it.
type AccountID string

func (a AccountID) String() string {
	return string(a)
}

// EventKind names an access-control state transition.
type EventKind string

const (
	EventSuperAdminAdded EventKind = "acl_super_admin_added"
	EventRoleGranted     EventKind = "acl_role_granted"
	EventRoleRevoked     EventKind = "acl_role_revoked"
)

// Event records a committed-on-success change to the authorization state.
type Event struct {
	Kind    EventKind `json:"event"`
	Role    Role      `json:"role,omitempty"`
	Account AccountID `json:"account"`
	By      AccountID `json:"by"`
}

// State is the persisted form of an AccessControl.
type State struct {
	SuperAdmins []AccountID          `json:"super_admins"`
	Members     map[Role][]AccountID `json:"members"`
}
