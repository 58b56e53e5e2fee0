package app

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
)

func TestCreateApp(t *testing.T) {
	// Required credentials for config validation
	t.Setenv("TELEGRAM_API_ID", "12345")
	t.Setenv("TELEGRAM_API_HASH", "test-hash")
	t.Setenv("TELEGRAM_BOT_TOKEN", "test-token-123")

	// Validate fx dependency graph
	require.NoError(t, fx.ValidateApp(CreateApp()))
}
