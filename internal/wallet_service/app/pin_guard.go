package app

import (
	"sync"
	"time"
)

// AttemptTracker throttles PIN brute-forcing, keyed by owner. It is an interface so a
// store-backed implementation can replace the in-memory one in multi-instance
// deployments without touching the purchase orchestrator.
type AttemptTracker interface {
	// CheckLocked reports whether the owner is locked out and for how much longer.
	// An expired lockout is reset as a side effect.
	CheckLocked(ownerID string) (locked bool, remaining time.Duration)
	// RecordFailure increments the owner's failure count. Reaching maxAttempts sets a
	// lockout of lockFor and resets the counter for the next window.
	RecordFailure(ownerID string, maxAttempts int, lockFor time.Duration) (locked bool, attemptsRemaining int)
	// RecordSuccess clears the owner's failure count and any lockout.
	RecordSuccess(ownerID string)
}

type pinAttemptState struct {
	failedAttempts int
	lockedUntil    time.Time
}

// InMemoryAttemptTracker is the process-local AttemptTracker. State is lost on restart,
// which is acceptable: the lockout windows are short and the tracker is best effort
// per instance.
type InMemoryAttemptTracker struct {
	mu     sync.Mutex
	states map[string]*pinAttemptState
	now    func() time.Time
}

func NewInMemoryAttemptTracker() *InMemoryAttemptTracker {
	return &InMemoryAttemptTracker{
		states: make(map[string]*pinAttemptState),
		now:    time.Now,
	}
}

func (t *InMemoryAttemptTracker) CheckLocked(ownerID string) (bool, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.states[ownerID]
	if !ok || state.lockedUntil.IsZero() {
		return false, 0
	}

	now := t.now()
	if now.Before(state.lockedUntil) {
		return true, state.lockedUntil.Sub(now)
	}

	// Lazy expiry: the lockout has elapsed, reset the window.
	delete(t.states, ownerID)
	return false, 0
}

func (t *InMemoryAttemptTracker) RecordFailure(ownerID string, maxAttempts int, lockFor time.Duration) (bool, int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.states[ownerID]
	if !ok {
		state = &pinAttemptState{}
		t.states[ownerID] = state
	}

	state.failedAttempts++
	if state.failedAttempts >= maxAttempts {
		state.lockedUntil = t.now().Add(lockFor)
		state.failedAttempts = 0
		return true, 0
	}
	return false, maxAttempts - state.failedAttempts
}

func (t *InMemoryAttemptTracker) RecordSuccess(ownerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, ownerID)
}
