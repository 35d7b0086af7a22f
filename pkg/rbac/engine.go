package rbac

import (
	"fmt"
	"sync/atomic"

	"github.com/digiklausur/data-gateway/pkg/observability"
)

// ruleKind tags the three ways a permission-table key can match a
// document.
type ruleKind int

const (
	ruleExact ruleKind = iota
	ruleAll
	ruleSelfUser
)

// rule is one compiled permission-table entry.
type rule struct {
	kind ruleKind
	doc  string // document name for ruleExact
	ops  map[string]bool
}

func (r rule) matches(docName, username string) bool {
	switch r.kind {
	case ruleAll:
		return true
	case ruleSelfUser:
		return docName != "" && docName == username
	default:
		return r.doc == docName
	}
}

// compiled is an immutable snapshot of a policy, swapped atomically on
// reload.
type compiled struct {
	allowedOps  map[string]bool
	defaultRole string
	roles       map[string]bool
	// rules[collection][role] holds the effective rule list: the
	// collection's document_default table overridden key by key with the
	// role's own table.
	rules map[string]map[string][]rule
}

// Engine answers permission checks against the current policy snapshot.
type Engine struct {
	current atomic.Pointer[compiled]
	log     *observability.Logger
}

// NewEngine compiles the policy into an engine.
func NewEngine(policy *Policy, log *observability.Logger) (*Engine, error) {
	e := &Engine{log: log}
	if err := e.Update(policy); err != nil {
		return nil, err
	}
	return e, nil
}

// Update compiles and atomically installs a new policy. Requests in flight
// keep the snapshot they started with.
func (e *Engine) Update(policy *Policy) error {
	if err := policy.Validate(); err != nil {
		return err
	}
	snapshot, err := compilePolicy(policy)
	if err != nil {
		return err
	}
	e.current.Store(snapshot)
	e.log.WithField("roles", len(snapshot.roles)).Info("permission policy installed")
	return nil
}

// DefaultRole returns the policy's default role.
func (e *Engine) DefaultRole() string {
	return e.current.Load().defaultRole
}

// IsAllowed reports whether role may perform op on the document docName
// within the named store. A structured query carries no document name;
// callers pass docName == "" so only %all% rules can grant it.
func (e *Engine) IsAllowed(role, username, store, docName, op string) bool {
	p := e.current.Load()

	if !p.roles[role] {
		return false
	}
	if !p.allowedOps[op] {
		return false
	}

	byRole, ok := p.rules[store]
	if !ok {
		byRole = p.rules[CollectionDefault]
	}

	// The three rule kinds are independent sufficient conditions; every
	// rule is inspected rather than stopping at the first key that
	// mentions the document.
	for _, r := range byRole[role] {
		if r.matches(docName, username) && r.ops[op] {
			return true
		}
	}
	return false
}

func compilePolicy(policy *Policy) (*compiled, error) {
	out := &compiled{
		allowedOps:  make(map[string]bool, len(policy.AllowedOperations)),
		defaultRole: policy.DefaultRole,
		roles:       make(map[string]bool, len(policy.Roles)),
		rules:       make(map[string]map[string][]rule, len(policy.Permissions)),
	}
	for _, op := range policy.AllowedOperations {
		out.allowedOps[op] = true
	}
	for name := range policy.Roles {
		out.roles[name] = true
	}

	for collection, tables := range policy.Permissions {
		byRole := make(map[string][]rule, len(policy.Roles))
		base := tables[DocumentDefault]
		for role := range policy.Roles {
			effective := mergeTables(base, tables[role])
			rules, err := compileTable(effective)
			if err != nil {
				return nil, fmt.Errorf("collection %q, role %q: %w", collection, role, err)
			}
			byRole[role] = rules
		}
		out.rules[collection] = byRole
	}

	if _, ok := out.rules[CollectionDefault]; !ok {
		return nil, fmt.Errorf("policy has no %q permissions", CollectionDefault)
	}
	return out, nil
}

// mergeTables overlays the role table on the base table key by key. Both
// inputs stay untouched.
func mergeTables(base, override PermissionTable) PermissionTable {
	out := make(PermissionTable, len(base)+len(override))
	for k, ops := range base {
		out[k] = ops
	}
	for k, ops := range override {
		out[k] = ops
	}
	return out
}

func compileTable(table PermissionTable) ([]rule, error) {
	rules := make([]rule, 0, len(table))
	for key, ops := range table {
		r := rule{ops: make(map[string]bool, len(ops))}
		for _, op := range ops {
			r.ops[op] = true
		}
		switch key {
		case WildcardAll:
			r.kind = ruleAll
		case WildcardUser:
			r.kind = ruleSelfUser
		default:
			if key == "" {
				return nil, fmt.Errorf("empty document name in permission table")
			}
			r.kind = ruleExact
			r.doc = key
		}
		rules = append(rules, r)
	}
	return rules, nil
}
