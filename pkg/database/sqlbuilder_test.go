package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertBuilderOnConflictDoNothing(t *testing.T) {
	sb := NewInsertBuilder()
	sb.InsertInto("parts")
	sb.Cols("id", "part_number")
	sb.Values(1, "GAT2231")
	sb.Values(2, "DAY5060")
	sb.OnConflictDoNothing("project_id", "side", "part_number")

	query, args := sb.Build()
	assert.Contains(t, query, "INSERT INTO parts")
	assert.Contains(t, query, "ON CONFLICT (project_id, side, part_number) DO NOTHING")
	require.Len(t, args, 4)
	assert.Equal(t, "GAT2231", args[1])
	assert.Equal(t, "DAY5060", args[3])
}

func TestInsertBuilderBareConflictClause(t *testing.T) {
	sb := NewInsertBuilder()
	sb.InsertInto("match_candidates")
	sb.Cols("id")
	sb.Values(1)
	sb.OnConflictDoNothing()

	query, _ := sb.Build()
	assert.Contains(t, query, "ON CONFLICT DO NOTHING")
	assert.NotContains(t, query, "ON CONFLICT (")
}
