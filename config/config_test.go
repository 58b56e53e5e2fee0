package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("TELEGRAM_API_ID", "12345")
	t.Setenv("TELEGRAM_API_HASH", "hash")
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Cooldown.UserWindow != 180*time.Second {
		t.Errorf("user window default: got %v", cfg.Cooldown.UserWindow)
	}
	if cfg.Cooldown.TargetWindow != 3*time.Second {
		t.Errorf("target window default: got %v", cfg.Cooldown.TargetWindow)
	}
	if cfg.Cooldown.InterTargetGap != 2*time.Second {
		t.Errorf("inter-target gap default: got %v", cfg.Cooldown.InterTargetGap)
	}
	if cfg.Cooldown.DefaultBlockFor != 24*time.Hour {
		t.Errorf("block duration default: got %v", cfg.Cooldown.DefaultBlockFor)
	}
	if cfg.Collector.Interval != time.Hour {
		t.Errorf("refresh interval default: got %v", cfg.Collector.Interval)
	}
	if cfg.Service.Port != "8086" {
		t.Errorf("service port default: got %q", cfg.Service.Port)
	}
	if len(cfg.Kafka.Brokers) != 0 {
		t.Errorf("kafka must be disabled by default, got %v", cfg.Kafka.Brokers)
	}
}

func TestLoadParsesAdminList(t *testing.T) {
	setRequired(t)
	t.Setenv("ADMIN_USER_IDS", "100, 200,300")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	want := []int64{100, 200, 300}
	if len(cfg.Bot.AdminUserIDs) != len(want) {
		t.Fatalf("admin ids: got %v", cfg.Bot.AdminUserIDs)
	}
	for i := range want {
		if cfg.Bot.AdminUserIDs[i] != want[i] {
			t.Fatalf("admin ids: got %v, want %v", cfg.Bot.AdminUserIDs, want)
		}
	}
}

func TestLoadRejectsBadAdminList(t *testing.T) {
	setRequired(t)
	t.Setenv("ADMIN_USER_IDS", "100,abc")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for non-numeric admin id")
	}
}

func TestValidateRequiresCredentials(t *testing.T) {
	cases := []struct {
		name  string
		unset string
	}{
		{"api id", "TELEGRAM_API_ID"},
		{"api hash", "TELEGRAM_API_HASH"},
		{"bot token", "TELEGRAM_BOT_TOKEN"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tc.unset, "")

			if _, err := Load(); err == nil {
				t.Fatalf("expected load to fail without %s", tc.unset)
			}
		})
	}
}

func TestValidateRequiresPositiveWindows(t *testing.T) {
	setRequired(t)
	t.Setenv("INVITE_COOLDOWN", "0s")

	if _, err := Load(); err == nil {
		t.Fatal("expected zero cooldown to be rejected")
	}

	setRequired(t)
	t.Setenv("INVITE_COOLDOWN", "180s")
	t.Setenv("TARGET_COOLDOWN", "0s")

	if _, err := Load(); err == nil {
		t.Fatal("expected zero target cooldown to be rejected")
	}
}
