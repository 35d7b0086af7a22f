package rbac

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digiklausur/data-gateway/pkg/observability"
)

func newTestEngine(t *testing.T, policy *Policy) *Engine {
	t.Helper()
	engine, err := NewEngine(policy, observability.NewLogger(observability.ErrorLevel, io.Discard))
	require.NoError(t, err)
	return engine
}

func userOnlyPolicy() *Policy {
	return &Policy{
		AllowedOperations: []string{OpGet, OpSet, OpDel},
		DefaultRole:       "student",
		Roles: map[string]RoleConfig{
			"student": {},
		},
		Permissions: map[string]CollectionPermissions{
			CollectionDefault: {
				DocumentDefault: {},
				"student": {
					WildcardUser: {OpGet},
				},
			},
		},
	}
}

func TestUserWildcardMatchesOwnDocumentOnly(t *testing.T) {
	engine := newTestEngine(t, userOnlyPolicy())

	assert.True(t, engine.IsAllowed("student", "alice", "quiz", "alice", OpGet))
	assert.False(t, engine.IsAllowed("student", "alice", "quiz", "bob", OpGet))
	assert.False(t, engine.IsAllowed("student", "alice", "quiz", "alice", OpSet))
}

func TestUnknownRoleAndOperation(t *testing.T) {
	engine := newTestEngine(t, userOnlyPolicy())

	assert.False(t, engine.IsAllowed("ghost", "alice", "quiz", "alice", OpGet))
	assert.False(t, engine.IsAllowed("student", "alice", "quiz", "alice", "drop"))
}

func TestDocumentDefaultSurvivesRoleOverride(t *testing.T) {
	policy := &Policy{
		AllowedOperations: []string{OpGet, OpSet},
		DefaultRole:       "student",
		Roles: map[string]RoleConfig{
			"student": {},
		},
		Permissions: map[string]CollectionPermissions{
			CollectionDefault: {
				DocumentDefault: {
					"announcements": {OpGet},
					"schedule":      {OpGet},
				},
				"student": {
					// Redefines schedule only; announcements must remain
					// readable through the default table.
					"schedule": {OpGet, OpSet},
				},
			},
		},
	}
	engine := newTestEngine(t, policy)

	assert.True(t, engine.IsAllowed("student", "alice", "quiz", "announcements", OpGet),
		"keys absent from the role table must keep their document_default entry")
	assert.True(t, engine.IsAllowed("student", "alice", "quiz", "schedule", OpSet))
	assert.False(t, engine.IsAllowed("student", "alice", "quiz", "announcements", OpSet))
}

func TestRoleOverrideIsPerKeyNotWholesale(t *testing.T) {
	policy := userOnlyPolicy()
	policy.Permissions[CollectionDefault][DocumentDefault] = PermissionTable{
		"role": {OpGet},
	}
	engine := newTestEngine(t, policy)

	// The student table defines %user% but not "role"; both must apply.
	assert.True(t, engine.IsAllowed("student", "alice", "quiz", "role", OpGet))
	assert.True(t, engine.IsAllowed("student", "alice", "quiz", "alice", OpGet))
}

func TestAllWildcard(t *testing.T) {
	engine := newTestEngine(t, DefaultPolicy())

	assert.True(t, engine.IsAllowed("admin", "root", "quiz", "anything", OpDel))
	assert.True(t, engine.IsAllowed("grader", "gina", "quiz", "alice", OpGet))
	assert.False(t, engine.IsAllowed("grader", "gina", "quiz", "alice", OpSet))
	assert.True(t, engine.IsAllowed("grader", "gina", "quiz", "gina", OpSet))
}

func TestQueriesCarryNoDocumentName(t *testing.T) {
	engine := newTestEngine(t, DefaultPolicy())

	// Structured queries authorize with an empty document name, so only
	// %all% rules can grant them.
	assert.True(t, engine.IsAllowed("admin", "root", "quiz", "", OpGet))
	assert.False(t, engine.IsAllowed("student", "alice", "quiz", "", OpGet))
}

func TestCollectionSpecificTables(t *testing.T) {
	policy := DefaultPolicy()
	policy.Permissions["grades"] = CollectionPermissions{
		DocumentDefault: {},
		"grader": {
			WildcardAll: {OpGet, OpSet},
		},
	}
	engine := newTestEngine(t, policy)

	assert.True(t, engine.IsAllowed("grader", "gina", "grades", "alice", OpSet))
	// Students get no rules at all in the grades collection.
	assert.False(t, engine.IsAllowed("student", "alice", "grades", "alice", OpGet))
	// Other collections still use collection_default.
	assert.True(t, engine.IsAllowed("student", "alice", "quiz", "alice", OpGet))
}

func TestEngineUpdateSwapsPolicy(t *testing.T) {
	engine := newTestEngine(t, userOnlyPolicy())
	assert.False(t, engine.IsAllowed("student", "alice", "quiz", "alice", OpSet))

	wider := userOnlyPolicy()
	wider.Permissions[CollectionDefault]["student"][WildcardUser] = []string{OpGet, OpSet}
	require.NoError(t, engine.Update(wider))

	assert.True(t, engine.IsAllowed("student", "alice", "quiz", "alice", OpSet))
	assert.Equal(t, "student", engine.DefaultRole())
}

func TestPolicyValidation(t *testing.T) {
	bad := userOnlyPolicy()
	bad.DefaultRole = "ghost"
	_, err := NewEngine(bad, observability.NewLogger(observability.ErrorLevel, io.Discard))
	assert.Error(t, err)

	bad = userOnlyPolicy()
	bad.AllowedOperations = nil
	assert.Error(t, bad.Validate())

	assert.NoError(t, DefaultPolicy().Validate())
}
