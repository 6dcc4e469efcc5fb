package suites

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentifiersAreUnique(t *testing.T) {
	seen := map[uuid.UUID]string{}
	for _, tc := range Cases() {
		ids := []uuid.UUID{tc.GUID}
		if tc.RestoreID != uuid.Nil {
			ids = append(ids, tc.RestoreID)
		}
		for _, cp := range tc.Checkpoints {
			ids = append(ids, cp.ID)
		}
		for _, id := range ids {
			prev, dup := seen[id]
			assert.False(t, dup, "%s reused by %s and %s", id, prev, tc.Name)
			seen[id] = tc.Name
		}
	}
}

func TestSelect(t *testing.T) {
	all, err := Select()
	require.NoError(t, err)
	assert.Len(t, all, len(Cases()))

	got, err := Select("TCG2", "secureboot.variableupdates", "tcg2.GetCapability")
	require.NoError(t, err)
	var names []string
	for _, tc := range got {
		names = append(names, tc.Name)
	}
	assert.Equal(t, []string{
		"TCG2.GetCapability",
		"TCG2.GetActivePcrBanks",
		"TCG2.HashLogExtendEvent",
		"TCG2.GetEventLog",
		"SecureBoot.VariableUpdates",
	}, names)

	_, err = Select("nope")
	assert.ErrorContains(t, err, `unknown suite or test case "nope"`)
}
