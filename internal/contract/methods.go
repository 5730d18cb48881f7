package contract

import (
	"encoding/json"
	"sort"

	"github.com/odyssey-erp/rolecounter/internal/counter"
	"github.com/odyssey-erp/rolecounter/internal/rbac"
)

// callEnv is what one method invocation sees: the caller and the live objects rebuilt
// from the committed snapshot.
type callEnv struct {
	engine  *Engine
	caller  rbac.AccountID
	acl     *rbac.AccessControl
	counter *counter.Counter
}

type method struct {
	view bool
	run  func(env *callEnv, args json.RawMessage) (any, error)
}

var methods = map[string]method{
	counter.MethodValue.Name: {view: true, run: func(env *callEnv, args json.RawMessage) (any, error) {
		if err := env.decode(args, &noArgs{}); err != nil {
			return nil, err
		}
		return env.counter.Value(), nil
	}},
	counter.MethodIncrement.Name: {run: func(env *callEnv, args json.RawMessage) (any, error) {
		if err := env.decode(args, &noArgs{}); err != nil {
			return nil, err
		}
		return nil, env.counter.Increment()
	}},
	counter.MethodDecrement.Name: {run: func(env *callEnv, args json.RawMessage) (any, error) {
		if err := env.decode(args, &noArgs{}); err != nil {
			return nil, err
		}
		return nil, env.counter.Decrement(env.caller)
	}},
	counter.MethodReset.Name: {run: func(env *callEnv, args json.RawMessage) (any, error) {
		if err := env.decode(args, &noArgs{}); err != nil {
			return nil, err
		}
		return nil, env.counter.Reset(env.caller)
	}},
	counter.MethodNoOp.Name: {run: func(env *callEnv, args json.RawMessage) (any, error) {
		if err := env.decode(args, &noArgs{}); err != nil {
			return nil, err
		}
		return nil, env.counter.NoOp(env.caller)
	}},

	"acl_role_variants": {view: true, run: func(env *callEnv, args json.RawMessage) (any, error) {
		if err := env.decode(args, &noArgs{}); err != nil {
			return nil, err
		}
		return rbac.Roles(), nil
	}},
	"acl_is_super_admin": {view: true, run: func(env *callEnv, args json.RawMessage) (any, error) {
		var in accountArgs
		if err := env.decode(args, &in); err != nil {
			return nil, err
		}
		return env.acl.IsSuperAdmin(rbac.AccountID(in.AccountID)), nil
	}},
	"acl_get_super_admins": {view: true, run: func(env *callEnv, args json.RawMessage) (any, error) {
		var in pageArgs
		if err := env.decode(args, &in); err != nil {
			return nil, err
		}
		return env.acl.SuperAdmins(in.Skip, in.limit()), nil
	}},
	"acl_has_role": {view: true, run: func(env *callEnv, args json.RawMessage) (any, error) {
		var in roleAccountArgs
		if err := env.decode(args, &in); err != nil {
			return nil, err
		}
		role, err := parseRole(in.Role)
		if err != nil {
			return nil, err
		}
		return env.acl.HasRole(rbac.AccountID(in.AccountID), role), nil
	}},
	"acl_has_any_role": {view: true, run: func(env *callEnv, args json.RawMessage) (any, error) {
		var in rolesAccountArgs
		if err := env.decode(args, &in); err != nil {
			return nil, err
		}
		roles, err := rbac.ParseRoles(in.Roles)
		if err != nil {
			return nil, invalidArgs(err)
		}
		return env.acl.AnyRoleAuthorized(rbac.AccountID(in.AccountID), roles...), nil
	}},
	"acl_get_grantees": {view: true, run: func(env *callEnv, args json.RawMessage) (any, error) {
		var in granteesArgs
		if err := env.decode(args, &in); err != nil {
			return nil, err
		}
		role, err := parseRole(in.Role)
		if err != nil {
			return nil, err
		}
		page := in.page()
		return env.acl.Grantees(role, page.Skip, page.limit()), nil
	}},

	"acl_init_super_admin": {run: func(env *callEnv, args json.RawMessage) (any, error) {
		var in accountArgs
		if err := env.decode(args, &in); err != nil {
			return nil, err
		}
		return env.acl.InitSuperAdmin(rbac.AccountID(in.AccountID)), nil
	}},
	"acl_grant_role": {run: func(env *callEnv, args json.RawMessage) (any, error) {
		var in roleAccountArgs
		if err := env.decode(args, &in); err != nil {
			return nil, err
		}
		role, err := parseRole(in.Role)
		if err != nil {
			return nil, err
		}
		return optionalBool(env.acl.GrantRole(env.caller, rbac.AccountID(in.AccountID), role)), nil
	}},
	"acl_revoke_role": {run: func(env *callEnv, args json.RawMessage) (any, error) {
		var in roleAccountArgs
		if err := env.decode(args, &in); err != nil {
			return nil, err
		}
		role, err := parseRole(in.Role)
		if err != nil {
			return nil, err
		}
		return optionalBool(env.acl.RevokeRole(env.caller, rbac.AccountID(in.AccountID), role)), nil
	}},
	"acl_renounce_role": {run: func(env *callEnv, args json.RawMessage) (any, error) {
		var in roleArgs
		if err := env.decode(args, &in); err != nil {
			return nil, err
		}
		role, err := parseRole(in.Role)
		if err != nil {
			return nil, err
		}
		return env.acl.RenounceRole(env.caller, role), nil
	}},
}

func (env *callEnv) decode(args json.RawMessage, dst any) error {
	return decodeArgs(env.engine.validate, args, dst)
}

// optionalBool encodes a (value, ok) pair as null when !ok.
func optionalBool(value, ok bool) *bool {
	if !ok {
		return nil
	}
	return &value
}

// MethodInfo describes one callable method.
type MethodInfo struct {
	Name  string      `json:"name"`
	View  bool        `json:"view"`
	Roles []rbac.Role `json:"roles,omitempty"`
}

// Methods lists every callable method sorted by name, with the roles required by
// the protected counter methods.
func Methods() []MethodInfo {
	required := make(map[string][]rbac.Role)
	for _, m := range counter.Methods() {
		required[m.Name] = m.Roles
	}
	out := make([]MethodInfo, 0, len(methods))
	for name, m := range methods {
		out = append(out, MethodInfo{Name: name, View: m.view, Roles: required[name]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
