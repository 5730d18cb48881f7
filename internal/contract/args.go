package contract

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/rolecounter/internal/rbac"
)

const defaultPageLimit = 100

type noArgs struct{}

type accountArgs struct {
	AccountID string `json:"account_id" validate:"required,max=256"`
}

type roleArgs struct {
	Role string `json:"role" validate:"required"`
}

type roleAccountArgs struct {
	Role      string `json:"role" validate:"required"`
	AccountID string `json:"account_id" validate:"required,max=256"`
}

type rolesAccountArgs struct {
	Roles     []string `json:"roles" validate:"required,min=1,dive,required"`
	AccountID string   `json:"account_id" validate:"required,max=256"`
}

type pageArgs struct {
	Skip  int `json:"skip" validate:"gte=0"`
	Limit int `json:"limit" validate:"gte=0,lte=1000"`
}

func (p pageArgs) limit() int {
	if p.Limit == 0 {
		return defaultPageLimit
	}
	return p.Limit
}

type granteesArgs struct {
	Role  string `json:"role" validate:"required"`
	Skip  int    `json:"skip" validate:"gte=0"`
	Limit int    `json:"limit" validate:"gte=0,lte=1000"`
}

func (g granteesArgs) page() pageArgs {
	return pageArgs{Skip: g.Skip, Limit: g.Limit}
}

// decodeArgs strictly decodes raw JSON into dst and validates it. Empty input is
// treated as an empty object.
func decodeArgs(v *validator.Validate, raw json.RawMessage, dst any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = []byte("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	if err := v.Struct(dst); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("%w: field %s failed %q", ErrInvalidArgs, fe.Field(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	return nil
}

func parseRole(name string) (rbac.Role, error) {
	role, err := rbac.ParseRole(name)
	if err != nil {
		return "", invalidArgs(err)
	}
	return role, nil
}

func invalidArgs(err error) error {
	return fmt.Errorf("%w: %v", ErrInvalidArgs, err)
}
