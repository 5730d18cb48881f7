package counter

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/odyssey-erp/rolecounter/internal/rbac"
)

// Method describes a counter method and the roles that satisfy it. Roles is empty for
// unrestricted methods; otherwise holding any one of them suffices.
type Method struct {
	Name  string
	Roles []rbac.Role
}

// Restricted reports whether the method requires a role.
func (m Method) Restricted() bool {
	return len(m.Roles) > 0
}

var (
	MethodValue     = Method{Name: "value"}
	MethodIncrement = Method{Name: "increment"}
	MethodDecrement = Method{Name: "decrement", Roles: []rbac.Role{rbac.RoleDecrementer}}
	MethodReset     = Method{Name: "reset", Roles: []rbac.Role{rbac.RoleResetter}}
	MethodNoOp      = Method{Name: "no_op", Roles: []rbac.Role{rbac.RoleDecrementer, rbac.RoleResetter}}
)

// Methods returns the counter's method table.
func Methods() []Method {
	return []Method{MethodValue, MethodIncrement, MethodDecrement, MethodReset, MethodNoOp}
}

// ErrPermissionDenied matches every *PermissionError.
var ErrPermissionDenied = errors.New("counter: permission denied")

// PermissionError aborts a restricted method called by an account holding none of its roles.
type PermissionError struct {
	Method string
	Roles  []rbac.Role
	Caller rbac.AccountID
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("Insufficient permissions for method %s restricted by access control. Requires one of these roles: %s", e.Method, quoteRoles(e.Roles))
}

// quoteRoles renders roles as ["A", "B"].
func quoteRoles(roles []rbac.Role) string {
	quoted := make([]string, len(roles))
	for i, role := range roles {
		quoted[i] = strconv.Quote(string(role))
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// Is lets errors.Is(err, ErrPermissionDenied) match.
func (e *PermissionError) Is(target error) bool {
	return target == ErrPermissionDenied
}
