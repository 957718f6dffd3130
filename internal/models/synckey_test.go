package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSyncKey_Deterministic(t *testing.T) {
	first := SyncKey("2024-01-10", "9:00 AM")
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, SyncKey("2024-01-10", "9:00 AM"))
	}
	assert.Equal(t, "2024-01-10_9:00 AM", first)
}

func TestSyncKey_LegacyDateSlashes(t *testing.T) {
	assert.Equal(t, "1-10-2024_9:00 AM", SyncKey("1/10/2024", "9:00 AM"))
}

func TestSyncKey_FoldsNarrowNoBreakSpace(t *testing.T) {
	assert.Equal(t, SyncKey("2024-01-10", "9:00 AM"), SyncKey("2024-01-10", "9:00\u202fAM"))
}

func TestSyncKey_DropsUnsafeCharacters(t *testing.T) {
	assert.Equal(t, "2024-01-10_9:00 AM", SyncKey("2024-01-10", "9:00 #AM?\n"))
}

func TestSyncKey_AlwaysKeepsSeparator(t *testing.T) {
	assert.Equal(t, "_", SyncKey("", ""))
	assert.Equal(t, "._.", SyncKey(".", "."))
	assert.Equal(t, "2024-01-10_", SyncKey("2024-01-10", "  "))
}

func TestSyncKey_DistinctTimeInsAreDistinctKeys(t *testing.T) {
	assert.NotEqual(t, SyncKey("2024-01-10", "9:00 AM"), SyncKey("2024-01-10", "1:30 PM"))
}

func TestSessionPatch_TouchesLockedFields(t *testing.T) {
	approved := ApprovalApproved
	assert.False(t, SessionPatch{ApprovalStatus: &approved}.TouchesLockedFields())
	assert.False(t, SessionPatch{PhotoURL: Ptr("https://x")}.TouchesLockedFields())
	assert.True(t, SessionPatch{Notes: Ptr("n")}.TouchesLockedFields())
	assert.True(t, SessionPatch{ClearPausedAt: true}.TouchesLockedFields())
}

func TestSessionPatch_Columns(t *testing.T) {
	status := StatusActive
	cols := SessionPatch{Status: &status, ClearPausedAt: true, TotalPausedMs: Ptr(int64(600000))}.Columns()
	assert.Equal(t, map[string]any{
		"status":          "active",
		"paused_at":       nil,
		"total_paused_ms": int64(600000),
	}, cols)
}
