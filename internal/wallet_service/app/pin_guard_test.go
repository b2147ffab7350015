package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTrackerAt(start time.Time) (*InMemoryAttemptTracker, *time.Time) {
	now := start
	tracker := NewInMemoryAttemptTracker()
	tracker.now = func() time.Time { return now }
	return tracker, &now
}

func TestAttemptTracker_LocksAfterMaxFailures(t *testing.T) {
	tracker, _ := newTrackerAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	locked, remaining := tracker.RecordFailure("owner-1", 3, 15*time.Minute)
	assert.False(t, locked)
	assert.Equal(t, 2, remaining)

	locked, remaining = tracker.RecordFailure("owner-1", 3, 15*time.Minute)
	assert.False(t, locked)
	assert.Equal(t, 1, remaining)

	locked, _ = tracker.RecordFailure("owner-1", 3, 15*time.Minute)
	assert.True(t, locked)

	isLocked, left := tracker.CheckLocked("owner-1")
	assert.True(t, isLocked)
	assert.Equal(t, 15*time.Minute, left)
}

func TestAttemptTracker_LockoutExpires(t *testing.T) {
	tracker, now := newTrackerAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	tracker.RecordFailure("owner-1", 1, 10*time.Minute)
	isLocked, _ := tracker.CheckLocked("owner-1")
	assert.True(t, isLocked)

	*now = now.Add(10*time.Minute + time.Second)
	isLocked, left := tracker.CheckLocked("owner-1")
	assert.False(t, isLocked)
	assert.Zero(t, left)

	// Expiry resets the failure window: a fresh failure starts counting from zero.
	locked, remaining := tracker.RecordFailure("owner-1", 3, 10*time.Minute)
	assert.False(t, locked)
	assert.Equal(t, 2, remaining)
}

func TestAttemptTracker_SuccessResetsFailures(t *testing.T) {
	tracker, _ := newTrackerAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	tracker.RecordFailure("owner-1", 3, 15*time.Minute)
	tracker.RecordFailure("owner-1", 3, 15*time.Minute)
	tracker.RecordSuccess("owner-1")

	locked, remaining := tracker.RecordFailure("owner-1", 3, 15*time.Minute)
	assert.False(t, locked)
	assert.Equal(t, 2, remaining)
}

func TestAttemptTracker_OwnersAreIndependent(t *testing.T) {
	tracker, _ := newTrackerAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	tracker.RecordFailure("owner-1", 1, 15*time.Minute)
	isLocked, _ := tracker.CheckLocked("owner-1")
	assert.True(t, isLocked)

	isLocked, _ = tracker.CheckLocked("owner-2")
	assert.False(t, isLocked)
}
