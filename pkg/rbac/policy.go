package rbac

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Operations understood by the gateway.
const (
	OpGet = "get"
	OpSet = "set"
	OpDel = "del"
)

// Wildcard keys usable in permission tables.
const (
	// WildcardAll matches every document.
	WildcardAll = "%all%"
	// WildcardUser matches only the document named after the requester.
	WildcardUser = "%user%"
)

// Reserved permission-table keys.
const (
	// CollectionDefault supplies the tables for collections without an
	// entry of their own.
	CollectionDefault = "collection_default"
	// DocumentDefault supplies the base table merged under every role's
	// own table.
	DocumentDefault = "document_default"
)

// PermissionTable maps a document name or wildcard to permitted operations.
type PermissionTable map[string][]string

// CollectionPermissions maps a role name (or DocumentDefault) to its
// permission table within one collection.
type CollectionPermissions map[string]PermissionTable

// RoleConfig describes a role. Roles are recognized by presence; the
// description is informational.
type RoleConfig struct {
	Description string `yaml:"description" json:"description"`
}

// Policy is the external permission configuration.
type Policy struct {
	AllowedOperations []string                         `yaml:"allowed_operations" json:"allowed_operations"`
	DefaultRole       string                           `yaml:"default_role" json:"default_role"`
	Roles             map[string]RoleConfig            `yaml:"roles" json:"roles"`
	Permissions       map[string]CollectionPermissions `yaml:"permissions" json:"permissions"`
}

// Validate checks the policy for internal consistency.
func (p *Policy) Validate() error {
	if len(p.AllowedOperations) == 0 {
		return fmt.Errorf("policy defines no allowed operations")
	}
	if p.DefaultRole == "" {
		return fmt.Errorf("policy defines no default role")
	}
	if _, ok := p.Roles[p.DefaultRole]; !ok {
		return fmt.Errorf("default role %q is not a configured role", p.DefaultRole)
	}
	if _, ok := p.Permissions[CollectionDefault]; !ok {
		return fmt.Errorf("policy has no %q permissions", CollectionDefault)
	}
	return nil
}

// LoadPolicyFile reads a policy from a YAML (or JSON) file.
func LoadPolicyFile(path string) (*Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	var policy Policy
	if err := yaml.Unmarshal(raw, &policy); err != nil {
		return nil, fmt.Errorf("failed to parse policy file %s: %w", path, err)
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy in %s: %w", path, err)
	}
	return &policy, nil
}

// DefaultPolicy returns the built-in policy used when no policy file is
// configured: admins may do anything, graders may read everything and
// write their own document, students are confined to their own document.
// Everyone may read the "role" document.
func DefaultPolicy() *Policy {
	return &Policy{
		AllowedOperations: []string{OpGet, OpSet, OpDel},
		DefaultRole:       "student",
		Roles: map[string]RoleConfig{
			"admin":   {Description: "full access to every document"},
			"grader":  {Description: "read everything, write own document"},
			"student": {Description: "read and write own document only"},
		},
		Permissions: map[string]CollectionPermissions{
			CollectionDefault: {
				DocumentDefault: {
					"role": {OpGet},
				},
				"admin": {
					WildcardAll: {OpGet, OpSet, OpDel},
				},
				"grader": {
					WildcardAll:  {OpGet},
					WildcardUser: {OpGet, OpSet},
				},
				"student": {
					WildcardUser: {OpGet, OpSet},
				},
			},
		},
	}
}
