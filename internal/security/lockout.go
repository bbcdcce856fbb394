package security

import (
	"context"
	"errors"
	"fmt"
	"time"

	"access-service/internal/repository"
	"access-service/internal/repository/model"
)

// ErrAccountLocked rejects a login attempt made while the lock timer is
// still running. No attempt is counted for it.
var ErrAccountLocked = errors.New("account is locked")

// Clock supplies the current time. Injected so lock expiry is testable.
type Clock func() time.Time

// Tracker is the account lockout state machine. An account is either
// unlocked with a running attempt counter or locked until a deadline; the
// machine cycles between the two for the lifetime of the user.
type Tracker struct {
	repo         repository.Repository
	maxAttempts  int
	lockDuration time.Duration
	now          Clock
}

func NewTracker(repo repository.Repository, maxAttempts int, lockDuration time.Duration, now Clock) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		repo:         repo,
		maxAttempts:  maxAttempts,
		lockDuration: lockDuration,
		now:          now,
	}
}

// IsLocked reports whether the user is locked right now.
func (t *Tracker) IsLocked(user *model.User) bool {
	return user.Security.LockedAt(t.now())
}

// RecordFailure applies the failed-login transition and persists it,
// returning the resulting state so the caller can report a fresh lock in the
// same response. While the lock timer runs the attempt is rejected with
// ErrAccountLocked before any counting.
func (t *Tracker) RecordFailure(ctx context.Context, user *model.User) (model.SecurityState, error) {
	now := t.now()

	if user.Security.LockUntil != nil {
		if now.Before(*user.Security.LockUntil) {
			return user.Security, ErrAccountLocked
		}
		// Lock elapsed: this failure opens a fresh window as attempt one.
		if err := t.repo.RestartLoginWindow(ctx, user.Id); err != nil {
			return user.Security, fmt.Errorf("failed to restart login window: %w", err)
		}
		return model.SecurityState{LoginAttempts: 1}, nil
	}

	// The threshold is judged by the repository against the incremented
	// counter, not against the snapshot loaded at the start of the request:
	// concurrent failures racing past the threshold must still lock.
	state, err := t.repo.IncrementLoginAttempts(ctx, user.Id, t.maxAttempts, now.Add(t.lockDuration))
	if err != nil {
		return user.Security, fmt.Errorf("failed to increment login attempts: %w", err)
	}

	return state, nil
}

// RecordSuccess resets the counter and clears any lock, unconditionally.
func (t *Tracker) RecordSuccess(ctx context.Context, user *model.User) (model.SecurityState, error) {
	if err := t.repo.ResetLoginAttempts(ctx, user.Id); err != nil {
		return user.Security, fmt.Errorf("failed to reset login attempts: %w", err)
	}
	return model.SecurityState{}, nil
}
