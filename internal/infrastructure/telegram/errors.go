package telegram

import (
	"fmt"

	"github.com/gotd/td/tgerr"

	"github.com/MarkPereverzov/Memberly/internal/domain"
)

// classifyError maps raw MTProto errors onto the domain taxonomy. Flood waits
// carry the provider-mandated duration; auth errors are terminal for the
// account; everything unrecognized passes through wrapped.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	if wait, ok := tgerr.AsFloodWait(err); ok {
		return &domain.FloodWaitError{Duration: wait}
	}

	switch {
	case tgerr.Is(err, "USER_ALREADY_PARTICIPANT"):
		return domain.ErrAlreadyMember
	case tgerr.Is(err, "USER_NOT_MUTUAL_CONTACT"):
		return domain.ErrContactRequired
	case tgerr.Is(err, "USER_PRIVACY_RESTRICTED"):
		return domain.ErrPrivacyRestricted
	case tgerr.Is(err, "USER_NOT_PARTICIPANT"), tgerr.Is(err, "PARTICIPANT_ID_INVALID"):
		return domain.ErrUserNotFound
	case tgerr.Is(err, "CHANNEL_PRIVATE"), tgerr.Is(err, "CHANNEL_INVALID"), tgerr.Is(err, "CHAT_ID_INVALID"), tgerr.Is(err, "INVITE_HASH_EXPIRED"), tgerr.Is(err, "INVITE_HASH_INVALID"):
		return domain.ErrTargetUnreachable
	case tgerr.Is(err, "AUTH_KEY_UNREGISTERED"), tgerr.Is(err, "SESSION_REVOKED"), tgerr.Is(err, "SESSION_PASSWORD_NEEDED"):
		return fmt.Errorf("%w: %v", domain.ErrAuthenticationFailed, err)
	case tgerr.Is(err, "USER_DEACTIVATED"), tgerr.Is(err, "USER_DEACTIVATED_BAN"):
		return fmt.Errorf("%w: %v", domain.ErrAccountDeactivated, err)
	}

	return err
}
