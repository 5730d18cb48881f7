package rbac

import (
	"fmt"
	"sort"
)

// AccessControl is the single source of truth for super admins and role membership.
// It is not safe for concurrent use; the host runs one call at a time against it.
type AccessControl struct {
	superAdmins map[AccountID]struct{}
	members     map[Role]map[AccountID]struct{}
	events      []Event
}

// New returns an AccessControl with no super admins and no grants.
func New() *AccessControl {
	return &AccessControl{
		superAdmins: make(map[AccountID]struct{}),
		members:     make(map[Role]map[AccountID]struct{}),
	}
}

// FromState rebuilds an AccessControl from its persisted form.
func FromState(st State) (*AccessControl, error) {
	ac := New()
	for _, account := range st.SuperAdmins {
		ac.superAdmins[account] = struct{}{}
	}
	for role, accounts := range st.Members {
		if !role.Valid() {
			return nil, fmt.Errorf("rbac: restore state: %w: %q", ErrUnknownRole, role)
		}
		for _, account := range accounts {
			ac.add(role, account)
		}
	}
	return ac, nil
}

// State returns the persisted form with accounts sorted for stable encoding.
func (ac *AccessControl) State() State {
	st := State{
		SuperAdmins: sortedAccounts(ac.superAdmins),
		Members:     make(map[Role][]AccountID, len(ac.members)),
	}
	for role, set := range ac.members {
		if len(set) == 0 {
			continue
		}
		st.Members[role] = sortedAccounts(set)
	}
	return st
}

// Events returns the transitions applied since this AccessControl was built.
func (ac *AccessControl) Events() []Event {
	out := make([]Event, len(ac.events))
	copy(out, ac.events)
	return out
}

// InitSuperAdmin makes account the first super admin. It returns false and changes
// nothing once any super admin exists.
func (ac *AccessControl) InitSuperAdmin(account AccountID) bool {
	if len(ac.superAdmins) > 0 {
		return false
	}
	ac.superAdmins[account] = struct{}{}
	ac.emit(Event{Kind: EventSuperAdminAdded, Account: account, By: account})
	return true
}

// IsSuperAdmin reports whether account holds the super-admin capability.
func (ac *AccessControl) IsSuperAdmin(account AccountID) bool {
	_, ok := ac.superAdmins[account]
	return ok
}

// SuperAdmins lists super admins in account order, skipping skip entries and
// returning at most limit (all when limit <= 0).
func (ac *AccessControl) SuperAdmins(skip, limit int) []AccountID {
	return page(sortedAccounts(ac.superAdmins), skip, limit)
}

// HasRole reports whether account was granted role.
func (ac *AccessControl) HasRole(account AccountID, role Role) bool {
	_, ok := ac.members[role][account]
	return ok
}

// AnyRoleAuthorized reports whether caller holds at least one of roles.
func (ac *AccessControl) AnyRoleAuthorized(caller AccountID, roles ...Role) bool {
	for _, role := range roles {
		if ac.HasRole(caller, role) {
			return true
		}
	}
	return false
}

// Grantees lists holders of role in account order.
func (ac *AccessControl) Grantees(role Role, skip, limit int) []AccountID {
	return page(sortedAccounts(ac.members[role]), skip, limit)
}

// GrantRole adds role to account. ok is false when caller may not grant it, in which
// case nothing changes. granted is false when account already held the role.
func (ac *AccessControl) GrantRole(caller, account AccountID, role Role) (granted, ok bool) {
	if !ac.canAdminister(caller, role) {
		return false, false
	}
	if !ac.add(role, account) {
		return false, true
	}
	ac.emit(Event{Kind: EventRoleGranted, Role: role, Account: account, By: caller})
	return true, true
}

// RevokeRole removes role from account under the same gate as GrantRole.
func (ac *AccessControl) RevokeRole(caller, account AccountID, role Role) (revoked, ok bool) {
	if !ac.canAdminister(caller, role) {
		return false, false
	}
	if !ac.remove(role, account) {
		return false, true
	}
	ac.emit(Event{Kind: EventRoleRevoked, Role: role, Account: account, By: caller})
	return true, true
}

// RenounceRole drops role from caller itself and reports whether it was held.
func (ac *AccessControl) RenounceRole(caller AccountID, role Role) bool {
	if !ac.remove(role, caller) {
		return false
	}
	ac.emit(Event{Kind: EventRoleRevoked, Role: role, Account: caller, By: caller})
	return true
}

// canAdminister implements the flat model: only super admins grant or revoke, and
// only declared roles.
func (ac *AccessControl) canAdminister(caller AccountID, role Role) bool {
	return role.Valid() && ac.IsSuperAdmin(caller)
}

func (ac *AccessControl) add(role Role, account AccountID) bool {
	set, ok := ac.members[role]
	if !ok {
		set = make(map[AccountID]struct{})
		ac.members[role] = set
	}
	if _, held := set[account]; held {
		return false
	}
	set[account] = struct{}{}
	return true
}

func (ac *AccessControl) remove(role Role, account AccountID) bool {
	set := ac.members[role]
	if _, held := set[account]; !held {
		return false
	}
	delete(set, account)
	return true
}

func (ac *AccessControl) emit(ev Event) {
	ac.events = append(ac.events, ev)
}

func sortedAccounts(set map[AccountID]struct{}) []AccountID {
	out := make([]AccountID, 0, len(set))
	for account := range set {
		out = append(out, account)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func page(accounts []AccountID, skip, limit int) []AccountID {
	if skip < 0 {
		skip = 0
	}
	if skip >= len(accounts) {
		return []AccountID{}
	}
	accounts = accounts[skip:]
	if limit > 0 && limit < len(accounts) {
		accounts = accounts[:limit]
	}
	return accounts
}
