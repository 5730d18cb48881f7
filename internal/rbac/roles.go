package rbac

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
)

// ErrUnknownRole indicates a role name outside the declared set.
var ErrUnknownRole = errors.New("rbac: unknown role")

// ParseRole resolves a role name case-insensitively.
func ParseRole(name string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: empty name", ErrUnknownRole)
	}
	folded := cases.Fold().String(name)
	for _, role := range Roles() {
		if cases.Fold().String(string(role)) == folded {
			return role, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, name)
}

// ParseRoles resolves and deduplicates role names, keeping first-seen order.
func ParseRoles(names []string) ([]Role, error) {
	seen := make(map[Role]struct{}, len(names))
	roles := make([]Role, 0, len(names))
	for _, name := range names {
		role, err := ParseRole(name)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		roles = append(roles, role)
	}
	return roles, nil
}
