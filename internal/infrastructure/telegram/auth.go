package telegram

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"github.com/rs/zerolog"
)

// CodeProvider defines interface for providing authentication codes
type CodeProvider interface {
	GetCode(ctx context.Context) (string, error)
}

// PasswordProvider defines interface for providing 2FA passwords
type PasswordProvider interface {
	GetPassword(ctx context.Context) (string, error)
}

// ConsoleCodeProvider implements CodeProvider using stdin
type ConsoleCodeProvider struct{}

// GetCode prompts user for authentication code via console with timeout
func (p *ConsoleCodeProvider) GetCode(ctx context.Context) (string, error) {
	return readLine(ctx, "Enter authentication code: ")
}

// ConsolePasswordProvider implements PasswordProvider using stdin
type ConsolePasswordProvider struct{}

// GetPassword prompts user for 2FA password via console with timeout
func (p *ConsolePasswordProvider) GetPassword(ctx context.Context) (string, error) {
	return readLine(ctx, "Enter 2FA password: ")
}

func readLine(ctx context.Context, prompt string) (string, error) {
	fmt.Print(prompt)

	lineChan := make(chan string, 1)
	errChan := make(chan error, 1)

	go func() {
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			errChan <- fmt.Errorf("failed to read input: %w", err)
			return
		}
		lineChan <- strings.TrimSpace(line)
	}()

	select {
	case line := <-lineChan:
		return line, nil
	case err := <-errChan:
		return "", err
	case <-ctx.Done():
		return "", fmt.Errorf("input cancelled: %w", ctx.Err())
	case <-time.After(2 * time.Minute):
		return "", fmt.Errorf("input timeout")
	}
}

// AuthorizeConfig holds what the interactive authorization flow needs
type AuthorizeConfig struct {
	APIID       int
	APIHash     string
	PhoneNumber string
	SessionDir  string
	Logger      zerolog.Logger
	Code        CodeProvider
	Password    PasswordProvider
}

// Authorize runs the interactive sign-in flow for one phone number and leaves
// an authorized session file behind. The service itself never authorizes; it
// only restores sessions this flow produced.
func Authorize(ctx context.Context, cfg AuthorizeConfig) error {
	if cfg.Code == nil {
		cfg.Code = &ConsoleCodeProvider{}
	}
	if cfg.Password == nil {
		cfg.Password = &ConsolePasswordProvider{}
	}

	logger := cfg.Logger.With().
		Str("component", "authorize").
		Str("phone", MaskPhone(cfg.PhoneNumber)).
		Logger()

	storage, err := NewFileSessionStorage(cfg.SessionDir, cfg.PhoneNumber)
	if err != nil {
		return fmt.Errorf("failed to create session storage: %w", err)
	}

	client := telegram.NewClient(cfg.APIID, cfg.APIHash, telegram.Options{
		SessionStorage: storage,
	})

	return client.Run(ctx, func(ctx context.Context) error {
		status, err := client.Auth().Status(ctx)
		if err != nil {
			return fmt.Errorf("failed to check auth status: %w", err)
		}
		if status.Authorized {
			logger.Info().Str("session", storage.FilePath()).Msg("session already authorized")
			return nil
		}

		flow := auth.NewFlow(
			auth.Constant(
				cfg.PhoneNumber,
				"",
				auth.CodeAuthenticatorFunc(func(ctx context.Context, sentCode *tg.AuthSentCode) (string, error) {
					logger.Info().Msg("authentication code has been sent")
					return cfg.Code.GetCode(ctx)
				}),
			),
			auth.SendCodeOptions{},
		)

		if err := client.Auth().IfNecessary(ctx, flow); err != nil {
			if tgerr.Is(err, "SESSION_PASSWORD_NEEDED") {
				logger.Info().Msg("2FA is enabled, requesting password")
				password, perr := cfg.Password.GetPassword(ctx)
				if perr != nil {
					return fmt.Errorf("failed to get 2FA password: %w", perr)
				}
				if _, perr = client.Auth().Password(ctx, password); perr != nil {
					return fmt.Errorf("2FA authentication failed: %w", perr)
				}
			} else {
				return err
			}
		}

		logger.Info().Str("session", storage.FilePath()).Msg("authentication successful")
		return nil
	})
}
