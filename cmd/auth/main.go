// Command auth interactively authorizes one Telegram account and registers it
// in the pool. Run it once per account before starting the service; the
// service itself only restores sessions this tool produced.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/MarkPereverzov/Memberly/config"
	"github.com/MarkPereverzov/Memberly/internal/domain"
	"github.com/MarkPereverzov/Memberly/internal/infrastructure/database"
	"github.com/MarkPereverzov/Memberly/internal/infrastructure/logger"
	"github.com/MarkPereverzov/Memberly/internal/infrastructure/telegram"
	repository "github.com/MarkPereverzov/Memberly/internal/repository/postgres"
)

func main() {
	phone := flag.String("phone", "", "phone number in international format, e.g. +15551234567")
	targets := flag.String("targets", "", "optional comma-separated target ids this account is restricted to")
	skipDB := flag.Bool("skip-db", false, "authorize the session only, do not register the account in the database")
	flag.Parse()

	if *phone == "" {
		fmt.Fprintln(os.Stderr, "usage: auth -phone +15551234567 [-targets 1,2] [-skip-db]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := telegram.Authorize(ctx, telegram.AuthorizeConfig{
		APIID:       cfg.Telegram.APIID,
		APIHash:     cfg.Telegram.APIHash,
		PhoneNumber: *phone,
		SessionDir:  cfg.Telegram.SessionDir,
		Logger:      log,
	}); err != nil {
		log.Error().Err(err).Msg("authorization failed")
		os.Exit(1)
	}

	if *skipDB {
		return
	}

	assigned, err := parseTargets(*targets)
	if err != nil {
		log.Error().Err(err).Msg("invalid -targets value")
		os.Exit(1)
	}

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Error().Err(err).Msg("failed to connect to database")
		os.Exit(1)
	}

	repo := repository.NewAccountRepository(db)
	account := &domain.Account{
		Phone:           *phone,
		SessionName:     "session_" + *phone,
		IsActive:        true,
		AssignedTargets: assigned,
	}
	if err := repo.Save(ctx, account); err != nil {
		log.Error().Err(err).Msg("failed to register account")
		os.Exit(1)
	}

	log.Info().Str("phone", telegram.MaskPhone(*phone)).Msg("account authorized and registered")
}

func parseTargets(s string) ([]int64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("not a target id: %q", p)
		}
		out = append(out, id)
	}
	return out, nil
}
