package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"

	"github.com/MarkPereverzov/Memberly/config"
	"github.com/MarkPereverzov/Memberly/internal/domain"
	"github.com/MarkPereverzov/Memberly/internal/orchestrator"
)

const recentAttemptsShown = 10

// Handlers contains the Telegram command handlers
type Handlers struct {
	orchestrator domain.Orchestrator
	access       domain.AccessControl
	cooldown     domain.CooldownEngine
	registry     domain.TargetRegistry
	pool         domain.AccountPool
	attempts     domain.AttemptRepository
	blockFor     time.Duration
	logger       zerolog.Logger
}

// NewHandlers creates the Telegram command handlers
func NewHandlers(
	orch domain.Orchestrator,
	access domain.AccessControl,
	cooldown domain.CooldownEngine,
	registry domain.TargetRegistry,
	pool domain.AccountPool,
	attempts domain.AttemptRepository,
	cfg *config.CooldownConfig,
	logger zerolog.Logger,
) *Handlers {
	return &Handlers{
		orchestrator: orch,
		access:       access,
		cooldown:     cooldown,
		registry:     registry,
		pool:         pool,
		attempts:     attempts,
		blockFor:     cfg.DefaultBlockFor,
		logger:       logger.With().Str("component", "bot_handlers").Logger(),
	}
}

// HandleStart handles /start command
func (h *Handlers) HandleStart(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
	userID := update.Message.From.ID
	h.logCommand(userID, "/start", "processing")

	text := "👋 Welcome! Send /invite to receive invitations into our groups.\nSend /help for the list of commands."
	h.reply(ctx, bot, update, text)
	h.logCommand(userID, "/start", "success")
}

// HandleHelp handles /help command
func (h *Handlers) HandleHelp(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
	userID := update.Message.From.ID

	var b strings.Builder
	b.WriteString("Available commands:\n")
	b.WriteString("/invite — receive invitations into all active groups\n")
	b.WriteString("/status — your access status and recent attempts\n")
	b.WriteString("/help — this message\n")

	if h.access.IsAdmin(userID) {
		b.WriteString("\nAdmin commands:\n")
		b.WriteString("/whitelist <user_id> [days] — grant access\n")
		b.WriteString("/unwhitelist <user_id> — revoke access\n")
		b.WriteString("/blacklist <user_id> [reason] — ban user\n")
		b.WriteString("/unblacklist <user_id> — unban user\n")
		b.WriteString("/block <user_id> [duration] — temporary block\n")
		b.WriteString("/unblock <user_id> — clear block\n")
		b.WriteString("/addgroup <ref> [name] — register a group (auto-join)\n")
		b.WriteString("/removegroup <target_id> — remove a group\n")
		b.WriteString("/groups — list registered groups\n")
		b.WriteString("/accounts — pool status\n")
		b.WriteString("/stats — service statistics\n")
		b.WriteString("/refresh — refresh member counts now\n")
	}

	h.reply(ctx, bot, update, b.String())
}

// HandleInvite handles /invite command, the main user entry point
func (h *Handlers) HandleInvite(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
	from := update.Message.From
	userID := from.ID
	h.logCommand(userID, "/invite", "processing")

	if allowed, reason := h.access.CanAccess(ctx, userID); !allowed {
		h.reply(ctx, bot, update, "⛔ "+reason)
		h.logCommand(userID, "/invite", "denied")
		return
	}

	report, err := h.orchestrator.Invite(ctx, domain.UserRef{
		ID:       userID,
		Username: from.Username,
	})

	switch {
	case errors.Is(err, orchestrator.ErrCooldownActive):
		h.reply(ctx, bot, update, "⏳ "+strings.TrimPrefix(err.Error(), orchestrator.ErrCooldownActive.Error()+": "))
		h.logCommand(userID, "/invite", "cooldown")
		return
	case errors.Is(err, domain.ErrNoActiveAccounts):
		h.reply(ctx, bot, update, "😔 The service is temporarily unavailable, please try again later.")
		h.logCommand(userID, "/invite", "unavailable")
		return
	case err != nil:
		h.logError(userID, "/invite", err)
		h.reply(ctx, bot, update, "❌ Something went wrong, please try again later.")
		return
	}

	lines := report.Lines()
	if len(lines) == 0 {
		h.reply(ctx, bot, update, "There are no active groups right now.")
		h.logCommand(userID, "/invite", "no_targets")
		return
	}

	h.reply(ctx, bot, update, strings.Join(lines, "\n"))
	h.logCommand(userID, "/invite", "success")
}

// HandleStatus handles /status command
func (h *Handlers) HandleStatus(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
	userID := update.Message.From.ID

	var b strings.Builder

	if allowed, reason := h.access.CanAccess(ctx, userID); allowed {
		b.WriteString("✅ You have access to the invite service.\n")
	} else {
		b.WriteString("⛔ " + reason + "\n")
	}

	if ok, msg := h.cooldown.CanRequest(userID); !ok {
		b.WriteString("⏳ " + msg + "\n")
	}

	recent, err := h.attempts.RecentForUser(ctx, userID, recentAttemptsShown)
	if err != nil {
		h.logError(userID, "/status", err)
	} else if len(recent) > 0 {
		b.WriteString("\nRecent attempts:\n")
		for _, a := range recent {
			b.WriteString(fmt.Sprintf("• %s — %s (%s)\n",
				a.CreatedAt.Format("02.01 15:04"), a.TargetName, a.Outcome))
		}
	}

	h.reply(ctx, bot, update, b.String())
}

// HandleWhitelist handles /whitelist <user_id> [days] [username]
func (h *Handlers) HandleWhitelist(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
	adminID, args, ok := h.adminArgs(ctx, bot, update, "/whitelist", 1)
	if !ok {
		return
	}

	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		h.reply(ctx, bot, update, "Usage: /whitelist <user_id> [days] [username]")
		return
	}

	days := 0
	if len(args) > 1 {
		if days, err = strconv.Atoi(args[1]); err != nil {
			h.reply(ctx, bot, update, "Usage: /whitelist <user_id> [days] [username]")
			return
		}
	}

	username := ""
	if len(args) > 2 {
		username = strings.TrimPrefix(args[2], "@")
	}

	if err := h.access.AddToWhitelist(ctx, userID, username, days, adminID); err != nil {
		h.logError(adminID, "/whitelist", err)
		h.reply(ctx, bot, update, "❌ Failed to whitelist the user.")
		return
	}

	if days > 0 {
		h.reply(ctx, bot, update, fmt.Sprintf("✅ User %d whitelisted for %d days.", userID, days))
	} else {
		h.reply(ctx, bot, update, fmt.Sprintf("✅ User %d whitelisted without expiry.", userID))
	}
}

// HandleUnwhitelist handles /unwhitelist <user_id>
func (h *Handlers) HandleUnwhitelist(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
	adminID, args, ok := h.adminArgs(ctx, bot, update, "/unwhitelist", 1)
	if !ok {
		return
	}

	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		h.reply(ctx, bot, update, "Usage: /unwhitelist <user_id>")
		return
	}

	if err := h.access.RemoveFromWhitelist(ctx, userID); err != nil {
		h.logError(adminID, "/unwhitelist", err)
		h.reply(ctx, bot, update, "❌ Failed to remove the user from the whitelist.")
		return
	}

	h.reply(ctx, bot, update, fmt.Sprintf("✅ User %d removed from the whitelist.", userID))
}

// HandleBlacklist handles /blacklist <user_id> [reason]
func (h *Handlers) HandleBlacklist(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
	adminID, args, ok := h.adminArgs(ctx, bot, update, "/blacklist", 1)
	if !ok {
		return
	}

	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		h.reply(ctx, bot, update, "Usage: /blacklist <user_id> [reason]")
		return
	}

	reason := "manual"
	if len(args) > 1 {
		reason = strings.Join(args[1:], " ")
	}

	if err := h.access.AddToBlacklist(ctx, userID, "", reason, adminID); err != nil {
		h.logError(adminID, "/blacklist", err)
		h.reply(ctx, bot, update, "❌ Failed to blacklist the user.")
		return
	}

	h.reply(ctx, bot, update, fmt.Sprintf("✅ User %d blacklisted.", userID))
}

// HandleUnblacklist handles /unblacklist <user_id>
func (h *Handlers) HandleUnblacklist(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
	adminID, args, ok := h.adminArgs(ctx, bot, update, "/unblacklist", 1)
	if !ok {
		return
	}

	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		h.reply(ctx, bot, update, "Usage: /unblacklist <user_id>")
		return
	}

	if err := h.access.RemoveFromBlacklist(ctx, userID); err != nil {
		h.logError(adminID, "/unblacklist", err)
		h.reply(ctx, bot, update, "❌ Failed to remove the user from the blacklist.")
		return
	}

	h.reply(ctx, bot, update, fmt.Sprintf("✅ User %d removed from the blacklist.", userID))
}

// HandleBlock handles /block <user_id> [duration]
func (h *Handlers) HandleBlock(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
	_, args, ok := h.adminArgs(ctx, bot, update, "/block", 1)
	if !ok {
		return
	}

	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		h.reply(ctx, bot, update, "Usage: /block <user_id> [duration, e.g. 12h]")
		return
	}

	d := h.blockFor
	if len(args) > 1 {
		if d, err = time.ParseDuration(args[1]); err != nil {
			h.reply(ctx, bot, update, "Usage: /block <user_id> [duration, e.g. 12h]")
			return
		}
	}

	h.cooldown.Block(userID, d)
	h.reply(ctx, bot, update, fmt.Sprintf("✅ User %d blocked for %s.", userID, d))
}

// HandleUnblock handles /unblock <user_id>
func (h *Handlers) HandleUnblock(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
	_, args, ok := h.adminArgs(ctx, bot, update, "/unblock", 1)
	if !ok {
		return
	}

	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		h.reply(ctx, bot, update, "Usage: /unblock <user_id>")
		return
	}

	h.cooldown.Unblock(userID)
	h.reply(ctx, bot, update, fmt.Sprintf("✅ User %d unblocked.", userID))
}

// HandleAddGroup handles /addgroup <ref> [name]
func (h *Handlers) HandleAddGroup(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
	adminID, args, ok := h.adminArgs(ctx, bot, update, "/addgroup", 1)
	if !ok {
		return
	}

	ref := args[0]
	name := ""
	if len(args) > 1 {
		name = strings.Join(args[1:], " ")
	}

	target, err := h.registry.AddTargetWithAutoJoin(ctx, ref, name)
	switch {
	case errors.Is(err, domain.ErrTargetExists):
		h.reply(ctx, bot, update, "⚠️ This group is already registered.")
		return
	case err != nil:
		h.logError(adminID, "/addgroup", err)
		h.reply(ctx, bot, update, "❌ Failed to register the group: "+err.Error())
		return
	}

	h.reply(ctx, bot, update, fmt.Sprintf("✅ Group %q registered (id %d, %d members).",
		target.Name, target.ID, target.MemberCount))
}

// HandleRemoveGroup handles /removegroup <target_id>
func (h *Handlers) HandleRemoveGroup(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
	adminID, args, ok := h.adminArgs(ctx, bot, update, "/removegroup", 1)
	if !ok {
		return
	}

	targetID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		h.reply(ctx, bot, update, "Usage: /removegroup <target_id>")
		return
	}

	err = h.registry.RemoveTarget(ctx, targetID)
	switch {
	case errors.Is(err, domain.ErrTargetNotFound):
		h.reply(ctx, bot, update, "⚠️ Unknown group id.")
		return
	case err != nil:
		h.logError(adminID, "/removegroup", err)
		h.reply(ctx, bot, update, "❌ Failed to remove the group.")
		return
	}

	h.reply(ctx, bot, update, fmt.Sprintf("✅ Group %d removed.", targetID))
}

// HandleGroups handles /groups
func (h *Handlers) HandleGroups(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
	if _, _, ok := h.adminArgs(ctx, bot, update, "/groups", 0); !ok {
		return
	}

	targets := h.registry.ActiveTargets()
	if len(targets) == 0 {
		h.reply(ctx, bot, update, "No groups registered.")
		return
	}

	var b strings.Builder
	b.WriteString("Registered groups:\n")
	for _, t := range targets {
		b.WriteString(fmt.Sprintf("• %s (id %d) — %d members", t.Name, t.ID, t.MemberCount))
		if !t.RefreshedAt.IsZero() {
			b.WriteString(fmt.Sprintf(", refreshed %s", t.RefreshedAt.Format("02.01 15:04")))
		}
		b.WriteString("\n")
	}
	h.reply(ctx, bot, update, b.String())
}

// HandleAccounts handles /accounts
func (h *Handlers) HandleAccounts(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
	if _, _, ok := h.adminArgs(ctx, bot, update, "/accounts", 0); !ok {
		return
	}

	accounts := h.pool.ActiveAccounts()
	if len(accounts) == 0 {
		h.reply(ctx, bot, update, "⚠️ No connected accounts in the pool.")
		return
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("Connected accounts: %d\n", len(accounts)))
	for _, a := range accounts {
		b.WriteString("• " + maskPhone(a.Phone))
		if len(a.AssignedTargets) > 0 {
			b.WriteString(fmt.Sprintf(" (restricted to %d targets)", len(a.AssignedTargets)))
		}
		if !a.LastUsed.IsZero() {
			b.WriteString(", last used " + a.LastUsed.Format("02.01 15:04"))
		}
		b.WriteString("\n")
	}
	h.reply(ctx, bot, update, b.String())
}

// HandleStats handles /stats
func (h *Handlers) HandleStats(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
	if _, _, ok := h.adminArgs(ctx, bot, update, "/stats", 0); !ok {
		return
	}

	whitelisted, werr := h.access.Whitelisted(ctx)
	blacklisted, berr := h.access.Blacklisted(ctx)
	if werr != nil || berr != nil {
		h.reply(ctx, bot, update, "❌ Failed to collect statistics.")
		return
	}

	var b strings.Builder
	b.WriteString("📊 Service statistics:\n")
	b.WriteString(fmt.Sprintf("• accounts connected: %d\n", len(h.pool.ActiveAccounts())))
	b.WriteString(fmt.Sprintf("• active groups: %d\n", len(h.registry.ActiveTargets())))
	b.WriteString(fmt.Sprintf("• whitelisted users: %d\n", len(whitelisted)))
	b.WriteString(fmt.Sprintf("• blacklisted users: %d\n", len(blacklisted)))
	h.reply(ctx, bot, update, b.String())
}

// HandleRefresh handles /refresh, an immediate member-count sweep
func (h *Handlers) HandleRefresh(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
	if _, _, ok := h.adminArgs(ctx, bot, update, "/refresh", 0); !ok {
		return
	}

	report := h.registry.RefreshMemberCounts(ctx)
	h.reply(ctx, bot, update, fmt.Sprintf("✅ Refreshed %d groups, %d failed.", report.Refreshed, report.Failed))
}

// adminArgs validates admin access and splits command arguments, replying on
// failure. minArgs counts arguments after the command itself.
func (h *Handlers) adminArgs(ctx context.Context, bot *tgbot.Bot, update *models.Update, command string, minArgs int) (int64, []string, bool) {
	userID := update.Message.From.ID

	if !h.access.IsAdmin(userID) {
		h.reply(ctx, bot, update, "⛔ This command is for administrators only.")
		h.logCommand(userID, command, "forbidden")
		return 0, nil, false
	}

	fields := strings.Fields(update.Message.Text)
	args := fields[1:]
	if len(args) < minArgs {
		h.reply(ctx, bot, update, fmt.Sprintf("Usage: %s requires at least %d argument(s).", command, minArgs))
		return 0, nil, false
	}

	return userID, args, true
}

func (h *Handlers) reply(ctx context.Context, bot *tgbot.Bot, update *models.Update, text string) {
	_, err := bot.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: update.Message.Chat.ID,
		Text:   text,
	})
	if err != nil {
		h.logger.Error().Int64("chat_id", update.Message.Chat.ID).Err(err).Msg("Failed to send Telegram response")
	}
}

// maskPhone masks a phone number for operator-facing output
func maskPhone(phone string) string {
	if len(phone) < 4 {
		return "***"
	}
	return phone[:2] + strings.Repeat("*", len(phone)-4) + phone[len(phone)-2:]
}

// logCommand logs processed commands
func (h *Handlers) logCommand(userID int64, command, result string) {
	h.logger.Info().Int64("user_id", userID).Str("command", command).Str("result", result).Msg("Telegram command processed")
}

// logError logs command errors
func (h *Handlers) logError(userID int64, command string, err error) {
	h.logger.Error().Int64("user_id", userID).Str("command", command).Err(err).Msg("Telegram command failed")
}
