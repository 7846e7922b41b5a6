package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oms.heartbeat.dev/ontology/model"
)

func strPtr(s string) *string { return &s }

func TestEvaluateAccess_NilPolicyDenies(t *testing.T) {
	e := New()
	d := e.EvaluateAccess(Actor{Role: "admin"}, "get", "object", nil)
	assert.False(t, d.Allowed)
}

func TestEvaluateAccess_NoMatchingRuleDenies(t *testing.T) {
	e := New()
	pol := &model.SecurityPolicy{ID: "p1", Rules: []model.PolicyRule{{Role: "viewer", AccessLevel: "read"}}}
	d := e.EvaluateAccess(Actor{Role: "admin"}, "get", "object", pol)
	assert.False(t, d.Allowed)
}

func TestEvaluateAccess_FullAccessPermitsEveryOperation(t *testing.T) {
	e := New()
	pol := &model.SecurityPolicy{ID: "p1", Rules: []model.PolicyRule{{Role: "admin", AccessLevel: "full"}}}
	for _, op := range []string{"get", "list", "execute", "anything"} {
		d := e.EvaluateAccess(Actor{Role: "admin"}, op, "object", pol)
		assert.True(t, d.Allowed, "operation %s should be allowed", op)
	}
}

func TestEvaluateAccess_ReadLevelDeniesExecute(t *testing.T) {
	e := New()
	pol := &model.SecurityPolicy{ID: "p1", Rules: []model.PolicyRule{{Role: "viewer", AccessLevel: "read"}}}
	d := e.EvaluateAccess(Actor{Role: "viewer"}, "execute", "action", pol)
	assert.False(t, d.Allowed)
}

func TestEvaluateAccess_WildcardRoleMatchesWhenNoExactRule(t *testing.T) {
	e := New()
	pol := &model.SecurityPolicy{ID: "p1", Rules: []model.PolicyRule{{Role: "*", AccessLevel: "read"}}}
	d := e.EvaluateAccess(Actor{Role: "someone"}, "get", "object", pol)
	assert.True(t, d.Allowed)
}

func TestEvaluateAccess_ExactRoleTakesPriorityOverWildcard(t *testing.T) {
	e := New()
	pol := &model.SecurityPolicy{ID: "p1", Rules: []model.PolicyRule{
		{Role: "*", AccessLevel: "none", Priority: 0},
		{Role: "admin", AccessLevel: "full", Priority: 0},
	}}
	d := e.EvaluateAccess(Actor{Role: "admin"}, "get", "object", pol)
	assert.True(t, d.Allowed)
}

func TestEvaluateAccess_HigherPriorityRuleWinsAmongSameRole(t *testing.T) {
	e := New()
	pol := &model.SecurityPolicy{ID: "p1", Rules: []model.PolicyRule{
		{Role: "admin", AccessLevel: "none", Priority: 1},
		{Role: "admin", AccessLevel: "full", Priority: 5},
	}}
	d := e.EvaluateAccess(Actor{Role: "admin"}, "get", "object", pol)
	assert.True(t, d.Allowed)
}

func TestEvaluateAccess_ConditionMustBeSatisfied(t *testing.T) {
	e := New()
	pol := &model.SecurityPolicy{ID: "p1", Rules: []model.PolicyRule{
		{Role: "admin", AccessLevel: "full", Conditions: model.JSONStringSlice{"user has role coach"}},
	}}
	d := e.EvaluateAccess(Actor{Role: "admin"}, "get", "object", pol)
	assert.False(t, d.Allowed)

	d2 := e.EvaluateAccess(Actor{Role: "coach"}, "get", "object", &model.SecurityPolicy{ID: "p1", Rules: []model.PolicyRule{
		{Role: "coach", AccessLevel: "full", Conditions: model.JSONStringSlice{"user has role coach"}},
	}})
	assert.True(t, d2.Allowed)
}

func TestEvaluateAccess_TeamScopedBuildsRowFilter(t *testing.T) {
	e := New()
	pol := &model.SecurityPolicy{ID: "p1", Rules: []model.PolicyRule{
		{Role: "coach", AccessLevel: "read", Scope: strPtr("team_scoped")},
	}}
	d := e.EvaluateAccess(Actor{Role: "coach", Teams: []string{"T1", "T2"}}, "list", "object", pol)
	require.True(t, d.Allowed)
	assert.Contains(t, d.RowFilter, "teamId IN")
	assert.Contains(t, d.RowFilter, "'T1'")
}

func TestEvaluateAccess_SelfOnlyScopeFiltersByActorID(t *testing.T) {
	e := New()
	pol := &model.SecurityPolicy{ID: "p1", Rules: []model.PolicyRule{
		{Role: "player", AccessLevel: "self_only", Scope: strPtr("self_only")},
	}}
	d := e.EvaluateAccess(Actor{ID: "42", Role: "player"}, "get", "object", pol)
	require.True(t, d.Allowed)
	assert.Contains(t, d.RowFilter, "playerId = '42'")
}

func TestEvaluateAccess_RowFilterPlaceholdersSubstituted(t *testing.T) {
	e := New()
	pol := &model.SecurityPolicy{ID: "p1", Rules: []model.PolicyRule{
		{Role: "player", AccessLevel: "read", RowFilterExpr: "ownerId = '{user_id}' AND teamId = '{team_id}'"},
	}}
	d := e.EvaluateAccess(Actor{ID: "42", TeamID: "T1", Role: "player"}, "get", "object", pol)
	require.True(t, d.Allowed)
	assert.Equal(t, "ownerId = '42' AND teamId = 'T1'", d.RowFilter)
}

func TestEvaluateAccess_DecisionIsMemoised(t *testing.T) {
	e := New()
	pol := &model.SecurityPolicy{ID: "p1", Rules: []model.PolicyRule{{Role: "admin", AccessLevel: "full"}}}
	d1 := e.EvaluateAccess(Actor{Role: "admin"}, "get", "object", pol)
	d2 := e.EvaluateAccess(Actor{Role: "admin"}, "get", "object", pol)
	assert.Equal(t, d1, d2)
}

func TestEvaluateAccess_InvalidateCacheClearsMemoisation(t *testing.T) {
	e := New()
	pol := &model.SecurityPolicy{ID: "p1", Rules: []model.PolicyRule{{Role: "admin", AccessLevel: "full"}}}
	_ = e.EvaluateAccess(Actor{Role: "admin"}, "get", "object", pol)
	e.InvalidateCache()
	assert.Empty(t, e.cache)
}

func TestApplyColumnFilters_RemovesOnlyListedFields(t *testing.T) {
	record := map[string]interface{}{"id": "1", "ssn": "secret", "name": "player"}
	filtered := ApplyColumnFilters(record, []string{"ssn"})
	assert.Equal(t, map[string]interface{}{"id": "1", "name": "player"}, filtered)
}

func TestApplyColumnFilters_EmptyFiltersReturnsAllFields(t *testing.T) {
	record := map[string]interface{}{"id": "1", "name": "player"}
	filtered := ApplyColumnFilters(record, nil)
	assert.Equal(t, record, filtered)
}
