package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoActiveAccounts is returned when the pool has no account eligible
	// for the requested operation.
	ErrNoActiveAccounts = errors.New("no active accounts available")

	// ErrNotConnected is returned by client operations before Connect.
	ErrNotConnected = errors.New("client is not connected")

	// ErrAuthenticationFailed marks a permanent auth failure. Accounts
	// hitting it are deactivated and never auto-retried.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrAccountDeactivated marks a provider-side account ban/deactivation.
	ErrAccountDeactivated = errors.New("account deactivated by provider")

	// ErrTargetNotFound is returned for unknown target IDs.
	ErrTargetNotFound = errors.New("target not found")

	// ErrTargetExists is returned when registering a duplicate target.
	ErrTargetExists = errors.New("target already registered")

	// ErrAlreadyMember means the user is already inside the target. Callers
	// treat it as success.
	ErrAlreadyMember = errors.New("user is already a member")

	// ErrContactRequired means the provider refused the add because the
	// account and the user have no mutual visibility.
	ErrContactRequired = errors.New("mutual contact required")

	// ErrPrivacyRestricted means the user's privacy settings forbid being
	// added by non-contacts.
	ErrPrivacyRestricted = errors.New("user privacy settings restrict invites")

	// ErrTargetUnreachable means the account lost access to the target
	// (kicked, channel made private, stale access hash).
	ErrTargetUnreachable = errors.New("target unreachable")

	// ErrUserNotFound is returned by identity resolution misses.
	ErrUserNotFound = errors.New("user not found")

	// ErrNotWhitelisted gates non-whitelisted users out of the invite flow.
	ErrNotWhitelisted = errors.New("user is not whitelisted")

	// ErrBlacklisted gates blacklisted users out of the invite flow.
	ErrBlacklisted = errors.New("user is blacklisted")
)

// FloodWaitError carries the provider-mandated wait after throttling.
// It is account-scoped: only the offending account sits out the wait.
type FloodWaitError struct {
	Duration time.Duration
}

func (e *FloodWaitError) Error() string {
	return fmt.Sprintf("flood wait: slow down %s", e.Duration)
}

// AsFloodWait extracts a FloodWaitError from an error chain.
func AsFloodWait(err error) (*FloodWaitError, bool) {
	var fw *FloodWaitError
	if errors.As(err, &fw) {
		return fw, true
	}
	return nil, false
}
