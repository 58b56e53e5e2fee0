package telegram

import (
	tgbot "github.com/go-telegram/bot"
	"github.com/rs/zerolog"
)

// Router registers Telegram bot handlers
type Router struct {
	handlers *Handlers
	logger   zerolog.Logger
}

// NewRouter creates new Telegram router
func NewRouter(handlers *Handlers, logger zerolog.Logger) *Router {
	return &Router{
		handlers: handlers,
		logger:   logger,
	}
}

// RegisterRoutes registers all command handlers on the bot
func (r *Router) RegisterRoutes(bot *tgbot.Bot) {
	bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/start", tgbot.MatchTypeExact, r.handlers.HandleStart)
	bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/help", tgbot.MatchTypeExact, r.handlers.HandleHelp)
	bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/invite", tgbot.MatchTypeExact, r.handlers.HandleInvite)
	bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/status", tgbot.MatchTypeExact, r.handlers.HandleStatus)

	bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/whitelist", tgbot.MatchTypePrefix, r.handlers.HandleWhitelist)
	bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/unwhitelist", tgbot.MatchTypePrefix, r.handlers.HandleUnwhitelist)
	bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/blacklist", tgbot.MatchTypePrefix, r.handlers.HandleBlacklist)
	bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/unblacklist", tgbot.MatchTypePrefix, r.handlers.HandleUnblacklist)
	bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/block", tgbot.MatchTypePrefix, r.handlers.HandleBlock)
	bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/unblock", tgbot.MatchTypePrefix, r.handlers.HandleUnblock)
	bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/addgroup", tgbot.MatchTypePrefix, r.handlers.HandleAddGroup)
	bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/removegroup", tgbot.MatchTypePrefix, r.handlers.HandleRemoveGroup)
	bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/groups", tgbot.MatchTypeExact, r.handlers.HandleGroups)
	bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/accounts", tgbot.MatchTypeExact, r.handlers.HandleAccounts)
	bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/stats", tgbot.MatchTypeExact, r.handlers.HandleStats)
	bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/refresh", tgbot.MatchTypeExact, r.handlers.HandleRefresh)

	r.logger.Info().Msg("All Telegram command handlers registered successfully")
}
