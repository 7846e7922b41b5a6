package columnar

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"oms.heartbeat.dev/ontology/resolver"
)

func TestMatchesRowFilter(t *testing.T) {
	row := resolver.Record{"teamId": "WSH", "playerId": "8471214"}

	t.Run("empty_filter_matches_everything", func(t *testing.T) {
		assert.True(t, matchesRowFilter(row, ""))
	})

	t.Run("equality_clause_matches", func(t *testing.T) {
		assert.True(t, matchesRowFilter(row, "playerId = '8471214'"))
	})

	t.Run("equality_clause_rejects_mismatch", func(t *testing.T) {
		assert.False(t, matchesRowFilter(row, "playerId = '9999999'"))
	})

	t.Run("in_clause_matches_member", func(t *testing.T) {
		assert.True(t, matchesRowFilter(row, "teamId IN ('WSH', 'PIT')"))
	})

	t.Run("in_clause_rejects_nonmember", func(t *testing.T) {
		assert.False(t, matchesRowFilter(row, "teamId IN ('PIT', 'NYR')"))
	})

	t.Run("conjunction_requires_all_clauses", func(t *testing.T) {
		assert.True(t, matchesRowFilter(row, "teamId IN ('WSH') AND playerId = '8471214'"))
		assert.False(t, matchesRowFilter(row, "teamId IN ('WSH') AND playerId = '0'"))
	})
}

func TestGetByFilter_RowFilterAppliedAsPostFilter(t *testing.T) {
	rows := []resolver.Record{
		{"teamId": "WSH", "playerId": "1"},
		{"teamId": "PIT", "playerId": "2"},
	}

	var matched []resolver.Record
	for _, row := range rows {
		if matchesFilters(row, map[string]interface{}{resolver.RowFilterKey: "teamId IN ('WSH')"}) &&
			matchesRowFilter(row, "teamId IN ('WSH')") {
			matched = append(matched, row)
		}
	}

	assert.Len(t, matched, 1)
	assert.Equal(t, "1", matched[0]["playerId"])
}
