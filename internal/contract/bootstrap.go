package contract

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/odyssey-erp/rolecounter/internal/rbac"
)

// Grants lists the accounts each role is granted right after deployment.
type Grants map[rbac.Role][]rbac.AccountID

type grantsFile struct {
	Grants map[string][]string `yaml:"grants"`
}

// LoadGrants reads a YAML grants file of the form
//
//	grants:
//	  Decrementer: [alice.near]
//	  Resetter: [bob.near]
func LoadGrants(path string) (Grants, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("contract: read grants: %w", err)
	}
	return ParseGrants(data)
}

// ParseGrants decodes the YAML grants document.
func ParseGrants(data []byte) (Grants, error) {
	var file grantsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("contract: parse grants: %w", err)
	}
	grants := make(Grants, len(file.Grants))
	for name, accounts := range file.Grants {
		role, err := rbac.ParseRole(name)
		if err != nil {
			return nil, fmt.Errorf("contract: parse grants: %w", err)
		}
		for _, account := range accounts {
			if account == "" {
				return nil, fmt.Errorf("contract: parse grants: empty account for %s", role)
			}
			grants[role] = append(grants[role], rbac.AccountID(account))
		}
	}
	return grants, nil
}

// apply grants every listed role through the normal gate, acting as self.
func (g Grants) apply(self rbac.AccountID, acl *rbac.AccessControl) error {
	for _, role := range rbac.Roles() {
		for _, account := range g[role] {
			if _, ok := acl.GrantRole(self, account, role); !ok {
				return fmt.Errorf("contract: %s may not grant %s", self, role)
			}
		}
	}
	return nil
}
