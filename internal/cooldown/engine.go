package cooldown

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/MarkPereverzov/Memberly/config"
	"github.com/MarkPereverzov/Memberly/internal/domain"
	"github.com/MarkPereverzov/Memberly/internal/infrastructure/metrics"
)

// userRecord is the per-user cooldown state, lazily created on first attempt.
// prevAttempt remembers the timestamp a reservation overwrote so an aborted
// request can hand the window back.
type userRecord struct {
	lastAttempt time.Time
	prevAttempt time.Time
	blockedTill time.Time
}

// targetRecord is the per-target state: the last successful attempt plus an
// in-flight marker so two concurrent requests cannot both claim the window.
type targetRecord struct {
	lastSuccess time.Time
	inFlight    bool
}

// Engine gates users and targets on elapsed-time windows. All state is
// in-memory; a restart clears cooldowns, which is acceptable since the
// windows are short relative to process lifetime.
//
// Gating and consumption happen in one critical section: ReserveRequest and
// ReserveTarget check and claim the window atomically, so two concurrent
// requests never both observe "allowed" for the same key. CanRequest and
// CanTarget are read-only views for status reporting.
type Engine struct {
	userWindow   time.Duration
	targetWindow time.Duration

	logger  zerolog.Logger
	metrics *metrics.Metrics

	now func() time.Time

	mu      sync.Mutex
	users   map[int64]*userRecord
	targets map[int64]*targetRecord
}

// NewEngine creates a cooldown engine with the configured windows
func NewEngine(cfg *config.CooldownConfig, logger zerolog.Logger, m *metrics.Metrics) *Engine {
	return &Engine{
		userWindow:   cfg.UserWindow,
		targetWindow: cfg.TargetWindow,
		logger:       logger.With().Str("component", "cooldown").Logger(),
		metrics:      m,
		now:          time.Now,
		users:        make(map[int64]*userRecord),
		targets:      make(map[int64]*targetRecord),
	}
}

// remainingSeconds floors the remaining wait to whole seconds, never below 1
// so a user is not told to wait zero seconds while still throttled.
func remainingSeconds(remaining time.Duration) int64 {
	secs := int64(remaining / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// userAllowed checks the user's block and window. Caller holds e.mu.
func (e *Engine) userAllowed(rec *userRecord, now time.Time) (bool, string, string) {
	if now.Before(rec.blockedTill) {
		return false, fmt.Sprintf("you are blocked for another %ds", remainingSeconds(rec.blockedTill.Sub(now))), "blocked"
	}

	elapsed := now.Sub(rec.lastAttempt)
	if elapsed >= e.userWindow {
		return true, "", ""
	}
	return false, fmt.Sprintf("please wait %ds before the next request", remainingSeconds(e.userWindow-elapsed)), "user"
}

// targetAllowed checks the target's in-flight marker and window. Caller holds
// e.mu.
func (e *Engine) targetAllowed(rec *targetRecord, now time.Time) (bool, string) {
	if rec.inFlight {
		return false, fmt.Sprintf("target busy, retry in %ds", remainingSeconds(e.targetWindow))
	}

	elapsed := now.Sub(rec.lastSuccess)
	if elapsed >= e.targetWindow {
		return true, ""
	}
	return false, fmt.Sprintf("target busy, retry in %ds", remainingSeconds(e.targetWindow-elapsed))
}

// CanRequest reports whether the user may start a request. Read-only: the
// window is only consumed by ReserveRequest.
func (e *Engine) CanRequest(userID int64) (bool, string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.users[userID]
	if !ok {
		return true, ""
	}

	allowed, msg, _ := e.userAllowed(rec, e.now())
	return allowed, msg
}

// CanTarget reports whether the target may be attempted, independent of who
// is asking. Read-only counterpart of ReserveTarget.
func (e *Engine) CanTarget(targetID int64) (bool, string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.targets[targetID]
	if !ok {
		return true, ""
	}

	allowed, msg := e.targetAllowed(rec, e.now())
	return allowed, msg
}

// ReserveRequest atomically checks the user's window and consumes it by
// stamping the last-attempt timestamp. Of two concurrent callers exactly one
// wins. RollbackRequest hands the window back when the request aborts without
// attempting anything.
func (e *Engine) ReserveRequest(userID int64) (bool, string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	rec, ok := e.users[userID]
	if !ok {
		rec = &userRecord{}
		e.users[userID] = rec
	}

	allowed, msg, gate := e.userAllowed(rec, now)
	if !allowed {
		if e.metrics != nil {
			e.metrics.CooldownRejections.WithLabelValues(gate).Inc()
		}
		return false, msg
	}

	rec.prevAttempt = rec.lastAttempt
	rec.lastAttempt = now
	return true, ""
}

// RollbackRequest restores the timestamp a ReserveRequest overwrote, so an
// aborted request does not cost the user their window.
func (e *Engine) RollbackRequest(userID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if rec, ok := e.users[userID]; ok {
		rec.lastAttempt = rec.prevAttempt
	}
}

// ReserveTarget atomically checks the target's window and marks the target
// in flight, so concurrent requests cannot pile onto one target. The caller
// must pair it with ReleaseTarget.
func (e *Engine) ReserveTarget(targetID int64) (bool, string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	rec, ok := e.targets[targetID]
	if !ok {
		rec = &targetRecord{}
		e.targets[targetID] = rec
	}

	allowed, msg := e.targetAllowed(rec, now)
	if !allowed {
		if e.metrics != nil {
			e.metrics.CooldownRejections.WithLabelValues("target").Inc()
		}
		return false, msg
	}

	rec.inFlight = true
	return true, ""
}

// ReleaseTarget clears the in-flight marker; on success the target window
// starts from now, a failed attempt leaves it untouched.
func (e *Engine) ReleaseTarget(targetID int64, success bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.targets[targetID]
	if !ok {
		return
	}

	rec.inFlight = false
	if success {
		rec.lastSuccess = e.now()
	}
}

// RecordAttempt always consumes the user's cooldown, success or not, so a
// failing user cannot retry-storm. The target timestamp moves only on
// success.
func (e *Engine) RecordAttempt(userID, targetID int64, success bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()

	rec, ok := e.users[userID]
	if !ok {
		rec = &userRecord{}
		e.users[userID] = rec
	}
	rec.lastAttempt = now

	if success {
		trec, ok := e.targets[targetID]
		if !ok {
			trec = &targetRecord{}
			e.targets[targetID] = trec
		}
		trec.lastSuccess = now
	}
}

// Block bars the user for the duration, overriding the regular window.
func (e *Engine) Block(userID int64, d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.users[userID]
	if !ok {
		rec = &userRecord{}
		e.users[userID] = rec
	}
	rec.blockedTill = e.now().Add(d)

	e.logger.Info().Int64("user_id", userID).Dur("duration", d).Msg("user blocked")
}

// Unblock clears the user's block immediately.
func (e *Engine) Unblock(userID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if rec, ok := e.users[userID]; ok {
		rec.blockedTill = time.Time{}
	}

	e.logger.Info().Int64("user_id", userID).Msg("user unblocked")
}

// CleanupExpired clears expired blocks and drops records that carry no state
// worth keeping. Idempotent; returns how many blocks were cleared.
func (e *Engine) CleanupExpired() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	cleared := 0

	for userID, rec := range e.users {
		if !rec.blockedTill.IsZero() && !now.Before(rec.blockedTill) {
			rec.blockedTill = time.Time{}
			cleared++
		}
		if rec.blockedTill.IsZero() && now.Sub(rec.lastAttempt) >= e.userWindow {
			delete(e.users, userID)
		}
	}

	for targetID, rec := range e.targets {
		if !rec.inFlight && now.Sub(rec.lastSuccess) >= e.targetWindow {
			delete(e.targets, targetID)
		}
	}

	if cleared > 0 {
		e.logger.Debug().Int("cleared", cleared).Msg("expired blocks cleared")
	}
	return cleared
}

// Ensure Engine implements domain.CooldownEngine interface
var _ domain.CooldownEngine = (*Engine)(nil)
