package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/MarkPereverzov/Memberly/config"
	"github.com/MarkPereverzov/Memberly/internal/domain"
	"github.com/MarkPereverzov/Memberly/internal/infrastructure/metrics"
)

// ErrCooldownActive is returned when the requesting user is still inside
// their cooldown window or blocked; the message for the user travels in the
// wrapped text.
var ErrCooldownActive = errors.New("cooldown active")

// Service executes the end-to-end multi-target invitation saga for one user
// request. One request runs sequentially across its targets; pacing between
// targets is deliberate throttling, not an accident of implementation.
type Service struct {
	pool     domain.AccountPool
	cooldown domain.CooldownEngine
	registry domain.TargetRegistry
	attempts domain.AttemptRepository
	audit    domain.AuditPublisher
	logger   zerolog.Logger
	metrics  *metrics.Metrics

	interTargetGap time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewService creates the invitation orchestrator
func NewService(
	pool domain.AccountPool,
	cooldown domain.CooldownEngine,
	registry domain.TargetRegistry,
	attempts domain.AttemptRepository,
	audit domain.AuditPublisher,
	cfg *config.CooldownConfig,
	logger zerolog.Logger,
	m *metrics.Metrics,
) *Service {
	return &Service{
		pool:           pool,
		cooldown:       cooldown,
		registry:       registry,
		attempts:       attempts,
		audit:          audit,
		logger:         logger.With().Str("component", "orchestrator").Logger(),
		metrics:        m,
		interTargetGap: cfg.InterTargetGap,
		now:            time.Now,
		sleep:          sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Invite runs the invitation saga for the user across every active target.
// The report covers every target attempted; a zero-eligible-accounts
// condition aborts the remainder and surfaces ErrNoActiveAccounts alongside
// the partial report. Every attempt is durably recorded before the report is
// returned.
func (s *Service) Invite(ctx context.Context, user domain.UserRef) (*domain.InviteReport, error) {
	start := s.now()
	if s.metrics != nil {
		s.metrics.RequestsTotal.Inc()
		defer func() {
			s.metrics.RequestDuration.Observe(time.Since(start).Seconds())
		}()
	}

	// Reservation consumes the user's window atomically, so two concurrent
	// requests from the same user cannot both pass the gate.
	if allowed, reason := s.cooldown.ReserveRequest(user.ID); !allowed {
		return nil, fmt.Errorf("%w: %s", ErrCooldownActive, reason)
	}

	targets := s.registry.ActiveTargets()
	report := &domain.InviteReport{UserID: user.ID}

	if len(targets) == 0 {
		s.logger.Warn().Int64("user_id", user.ID).Msg("no active targets configured")
		return report, nil
	}

	s.logger.Info().
		Int64("user_id", user.ID).
		Int("targets", len(targets)).
		Msg("invitation request started")

	for i, target := range targets {
		target := target

		if allowed, reason := s.cooldown.ReserveTarget(target.ID); !allowed {
			s.record(ctx, report, user, &target, "", domain.OutcomeRateLimited, reason)
			continue
		}

		outcome, detail, phone, err := s.inviteToTarget(ctx, user, &target)
		if errors.Is(err, domain.ErrNoActiveAccounts) {
			// Nothing in the pool can serve requests; aborting beats
			// burning the remaining targets' cooldowns on guaranteed
			// failures. A request that attempted nothing gets its user
			// window back.
			s.cooldown.ReleaseTarget(target.ID, false)
			if len(report.Results) == 0 {
				s.cooldown.RollbackRequest(user.ID)
			}
			s.logger.Error().Int64("user_id", user.ID).Msg("no eligible accounts, aborting request")
			return report, domain.ErrNoActiveAccounts
		}

		success := outcome == domain.OutcomeSuccess || outcome == domain.OutcomeAlreadyMember
		s.cooldown.ReleaseTarget(target.ID, success)
		s.record(ctx, report, user, &target, phone, outcome, detail)

		if i < len(targets)-1 {
			if err := s.sleep(ctx, s.interTargetGap); err != nil {
				return report, err
			}
		}
	}

	s.logger.Info().
		Int64("user_id", user.ID).
		Int("succeeded", len(report.Succeeded())).
		Int("failed", len(report.Failed())).
		Msg("invitation request finished")

	return report, nil
}

// inviteToTarget runs the per-target part of the saga and classifies the
// result into exactly one outcome.
func (s *Service) inviteToTarget(ctx context.Context, user domain.UserRef, target *domain.Target) (domain.OutcomeTag, string, string, error) {
	l, err := s.pool.SelectAccount(target.ID)
	if err != nil {
		return "", "", "", err
	}
	defer l.Release()

	phone := l.Account().Phone

	// Contact resolution is best-effort: the provider may permit the add
	// even when every strategy failed, so failure here never short-circuits.
	if ok, steps := s.pool.ResolveContact(ctx, l, user); !ok {
		s.logger.Debug().
			Int64("user_id", user.ID).
			Int("strategies", len(steps)).
			Msg("contact resolution exhausted all strategies")
	}

	// Idempotence: an existing member never gets a second add call.
	status, merr := l.Client().GetMember(ctx, target, user.ID)
	if merr == nil && status.IsMember() {
		return domain.OutcomeAlreadyMember, "", phone, nil
	}

	err = s.pool.SendInvitation(ctx, l, user.ID, target)
	outcome, detail := classify(err, phone)
	return outcome, detail, phone, nil
}

// classify maps a send error onto exactly one outcome tag with its
// remediation detail.
func classify(err error, phone string) (domain.OutcomeTag, string) {
	if err == nil {
		return domain.OutcomeSuccess, ""
	}

	var flood *domain.FloodWaitError
	switch {
	case errors.Is(err, domain.ErrAlreadyMember):
		return domain.OutcomeAlreadyMember, ""
	case errors.Is(err, domain.ErrContactRequired):
		return domain.OutcomeContactRequired, fmt.Sprintf("write to +%s first", phone)
	case errors.Is(err, domain.ErrPrivacyRestricted):
		return domain.OutcomePrivacyRestricted, "privacy settings forbid invitations"
	case errors.As(err, &flood):
		return domain.OutcomeRateLimited, fmt.Sprintf("wait %s", flood.Duration)
	case errors.Is(err, domain.ErrTargetUnreachable):
		return domain.OutcomeTargetUnreachable, "target unreachable"
	default:
		return domain.OutcomeError, err.Error()
	}
}

// record writes the attempt into the durable audit log and the audit stream,
// then appends it to the report. The cooldown side is already settled by the
// reservation: the user window was consumed at the gate, the target window by
// ReleaseTarget.
func (s *Service) record(ctx context.Context, report *domain.InviteReport, user domain.UserRef, target *domain.Target, phone string, outcome domain.OutcomeTag, detail string) {
	attempt := &domain.InvitationAttempt{
		UserID:       user.ID,
		TargetID:     target.ID,
		TargetName:   target.Name,
		AccountPhone: phone,
		Outcome:      outcome,
		Detail:       detail,
		CreatedAt:    s.now(),
	}

	if err := s.attempts.Append(ctx, attempt); err != nil {
		s.logger.Error().
			Err(err).
			Int64("user_id", user.ID).
			Int64("target_id", target.ID).
			Msg("failed to persist invitation attempt")
	}

	if err := s.audit.Publish(ctx, attempt); err != nil {
		s.logger.Warn().Err(err).Msg("failed to publish audit event")
	}

	if s.metrics != nil {
		s.metrics.AttemptsTotal.WithLabelValues(string(outcome)).Inc()
	}

	report.Results = append(report.Results, domain.TargetResult{
		Target:  *target,
		Outcome: outcome,
		Detail:  detail,
	})
}

// Ensure Service implements domain.Orchestrator interface
var _ domain.Orchestrator = (*Service)(nil)
