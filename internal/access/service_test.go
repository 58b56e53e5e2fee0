package access

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/MarkPereverzov/Memberly/config"
	"github.com/MarkPereverzov/Memberly/internal/repository/memory"
)

func newTestService(adminIDs ...int64) (*Service, *time.Time) {
	s := NewService(
		&config.BotConfig{Token: "t", AdminUserIDs: adminIDs},
		memory.NewAccessRepository(),
		zerolog.Nop(),
	)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	return s, &now
}

func TestCanAccessRequiresWhitelist(t *testing.T) {
	s, _ := newTestService()
	ctx := context.Background()

	if allowed, _ := s.CanAccess(ctx, 1); allowed {
		t.Fatal("unknown user must be denied")
	}

	if err := s.AddToWhitelist(ctx, 1, "alice", 0, 99); err != nil {
		t.Fatalf("whitelist: %v", err)
	}
	if allowed, reason := s.CanAccess(ctx, 1); !allowed {
		t.Fatalf("whitelisted user must be allowed, got %q", reason)
	}
}

func TestAdminBypassesLists(t *testing.T) {
	s, _ := newTestService(7)
	ctx := context.Background()

	if !s.IsAdmin(7) {
		t.Fatal("configured admin not recognized")
	}
	if allowed, _ := s.CanAccess(ctx, 7); !allowed {
		t.Fatal("admin must have access without a whitelist entry")
	}
}

func TestWhitelistExpiry(t *testing.T) {
	s, now := newTestService()
	ctx := context.Background()

	if err := s.AddToWhitelist(ctx, 1, "", 30, 99); err != nil {
		t.Fatalf("whitelist: %v", err)
	}

	*now = now.AddDate(0, 0, 29)
	if allowed, _ := s.CanAccess(ctx, 1); !allowed {
		t.Fatal("entry must be valid before expiry")
	}

	*now = now.AddDate(0, 0, 1)
	if allowed, reason := s.CanAccess(ctx, 1); allowed {
		t.Fatal("entry must expire after its term")
	} else if reason == "" {
		t.Fatal("expiry rejection must carry a reason")
	}
}

func TestBlacklistWinsAndListsStayExclusive(t *testing.T) {
	s, _ := newTestService()
	ctx := context.Background()

	if err := s.AddToWhitelist(ctx, 1, "", 0, 99); err != nil {
		t.Fatalf("whitelist: %v", err)
	}
	if err := s.AddToBlacklist(ctx, 1, "", "spam", 99); err != nil {
		t.Fatalf("blacklist: %v", err)
	}

	if allowed, _ := s.CanAccess(ctx, 1); allowed {
		t.Fatal("blacklisted user must be denied")
	}

	white, err := s.Whitelisted(ctx)
	if err != nil {
		t.Fatalf("list whitelist: %v", err)
	}
	if len(white) != 0 {
		t.Fatal("blacklisting must remove the whitelist entry")
	}

	// And the other direction: whitelisting clears the blacklist entry.
	if err := s.AddToWhitelist(ctx, 1, "", 0, 99); err != nil {
		t.Fatalf("re-whitelist: %v", err)
	}
	black, err := s.Blacklisted(ctx)
	if err != nil {
		t.Fatalf("list blacklist: %v", err)
	}
	if len(black) != 0 {
		t.Fatal("whitelisting must remove the blacklist entry")
	}
	if allowed, _ := s.CanAccess(ctx, 1); !allowed {
		t.Fatal("re-whitelisted user must regain access")
	}
}

func TestRemoveFromWhitelistRevokesAccess(t *testing.T) {
	s, _ := newTestService()
	ctx := context.Background()

	if err := s.AddToWhitelist(ctx, 1, "", 0, 99); err != nil {
		t.Fatalf("whitelist: %v", err)
	}
	if err := s.RemoveFromWhitelist(ctx, 1); err != nil {
		t.Fatalf("unwhitelist: %v", err)
	}
	if allowed, _ := s.CanAccess(ctx, 1); allowed {
		t.Fatal("removed user must be denied")
	}
}
