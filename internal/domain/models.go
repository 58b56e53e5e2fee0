package domain

import (
	"fmt"
	"time"
)

// Account is an authenticated outbound Telegram identity managed by the pool.
// All mutation goes through the pool manager; nothing outside the pool writes
// these fields directly.
type Account struct {
	Phone           string
	SessionName     string
	IsActive        bool
	AssignedTargets []int64 // empty = eligible for every target
	LastUsed        time.Time
}

// EligibleFor reports whether the account may serve the given target.
func (a *Account) EligibleFor(targetID int64) bool {
	if len(a.AssignedTargets) == 0 {
		return true
	}
	for _, id := range a.AssignedTargets {
		if id == targetID {
			return true
		}
	}
	return false
}

// Target is a group users get invited into.
type Target struct {
	ID          int64
	Name        string
	InviteRef   string // t.me invite link or @username
	IsActive    bool
	MemberCount int
	RefreshedAt time.Time
}

// UserRef identifies an end user requesting invitations. Username and Phone
// are optional and only used as contact-resolution fallbacks.
type UserRef struct {
	ID       int64
	Username string
	Phone    string
}

// WhitelistEntry grants a user access to the invite flow until ExpiresAt.
type WhitelistEntry struct {
	UserID    int64
	Username  string
	AddedBy   int64
	ExpiresAt time.Time
	CreatedAt time.Time
	IsActive  bool
}

// Expired reports whether the entry is past its expiry at the given time.
func (e *WhitelistEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// BlacklistEntry permanently bars a user from the invite flow.
type BlacklistEntry struct {
	UserID    int64
	Username  string
	Reason    string
	AddedBy   int64
	CreatedAt time.Time
	IsActive  bool
}

// OutcomeTag classifies a single invitation attempt.
type OutcomeTag string

const (
	OutcomeSuccess           OutcomeTag = "success"
	OutcomeAlreadyMember     OutcomeTag = "already_member"
	OutcomeContactRequired   OutcomeTag = "contact_required"
	OutcomePrivacyRestricted OutcomeTag = "privacy_restricted"
	OutcomeRateLimited       OutcomeTag = "rate_limited"
	OutcomeTargetUnreachable OutcomeTag = "target_unreachable"
	OutcomeError             OutcomeTag = "error"
)

// InvitationAttempt is one audited attempt against a single target.
type InvitationAttempt struct {
	UserID       int64
	TargetID     int64
	TargetName   string
	AccountPhone string
	Outcome      OutcomeTag
	Detail       string
	CreatedAt    time.Time
}

// TargetResult is the per-target entry of an InviteReport.
type TargetResult struct {
	Target  Target
	Outcome OutcomeTag
	Detail  string
}

// InviteReport aggregates the per-target outcomes of one user request.
type InviteReport struct {
	UserID  int64
	Results []TargetResult
}

// Succeeded returns results classified success or already-member.
func (r *InviteReport) Succeeded() []TargetResult {
	var out []TargetResult
	for _, res := range r.Results {
		if res.Outcome == OutcomeSuccess || res.Outcome == OutcomeAlreadyMember {
			out = append(out, res)
		}
	}
	return out
}

// Failed returns results that did not put the user in the target.
func (r *InviteReport) Failed() []TargetResult {
	var out []TargetResult
	for _, res := range r.Results {
		if res.Outcome != OutcomeSuccess && res.Outcome != OutcomeAlreadyMember {
			out = append(out, res)
		}
	}
	return out
}

// Lines renders the report as user-facing status lines. The command front end
// sends them verbatim.
func (r *InviteReport) Lines() []string {
	var lines []string
	for _, res := range r.Results {
		switch res.Outcome {
		case OutcomeSuccess:
			lines = append(lines, fmt.Sprintf("✅ %s: invitation sent", res.Target.Name))
		case OutcomeAlreadyMember:
			lines = append(lines, fmt.Sprintf("✅ %s: you are already a member", res.Target.Name))
		case OutcomeContactRequired:
			lines = append(lines, fmt.Sprintf("✉️ %s: message the inviting account first, then retry (%s)", res.Target.Name, res.Detail))
		case OutcomePrivacyRestricted:
			lines = append(lines, fmt.Sprintf("🔒 %s: your privacy settings forbid invitations — join manually: %s", res.Target.Name, res.Target.InviteRef))
		case OutcomeRateLimited:
			lines = append(lines, fmt.Sprintf("⏳ %s: rate limited, try again later (%s)", res.Target.Name, res.Detail))
		case OutcomeTargetUnreachable:
			lines = append(lines, fmt.Sprintf("🚧 %s: group unreachable right now — use the link: %s", res.Target.Name, res.Target.InviteRef))
		default:
			lines = append(lines, fmt.Sprintf("❌ %s: %s", res.Target.Name, res.Detail))
		}
	}
	return lines
}

// MemberStatus is the provider-side membership state of a user in a target.
type MemberStatus string

const (
	MemberStatusMember  MemberStatus = "member"
	MemberStatusAdmin   MemberStatus = "administrator"
	MemberStatusCreator MemberStatus = "creator"
	MemberStatusLeft    MemberStatus = "left"
	MemberStatusBanned  MemberStatus = "banned"
)

// IsMember reports whether the status counts as being inside the target.
func (s MemberStatus) IsMember() bool {
	return s == MemberStatusMember || s == MemberStatusAdmin || s == MemberStatusCreator
}

// UserDescriptor is the provider-side view of a resolved user.
type UserDescriptor struct {
	ID         int64
	AccessHash int64
	Username   string
	FirstName  string
}

// TargetDescriptor is the provider-side view of a joined/resolved target.
type TargetDescriptor struct {
	ID    int64
	Title string
}

// ResolutionStep records one contact-resolution strategy and its result.
type ResolutionStep struct {
	Strategy string
	Err      error
}

// RefreshReport summarizes one member-count refresh sweep.
type RefreshReport struct {
	Refreshed int
	Failed    int
}
