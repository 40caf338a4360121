// Package bot provides middleware for the Telegram bot.
package bot

import (
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"botify/internal/config"
	"botify/internal/pkg/id"
)

// privateUserCache tracks users who have used the bot in an allowed group,
// which lets them use it in private chat.
var (
	privateUserCache = make(map[int64]bool)
	privateUserMu    sync.RWMutex
)

// AllowPrivateUser marks a user as allowed to use private chat.
func AllowPrivateUser(userID int64) {
	privateUserMu.Lock()
	defer privateUserMu.Unlock()
	privateUserCache[userID] = true
}

// IsPrivateUserAllowed checks if a user is allowed to use private chat.
func IsPrivateUserAllowed(userID int64) bool {
	privateUserMu.RLock()
	defer privateUserMu.RUnlock()
	return privateUserCache[userID]
}

// WhitelistMiddleware ignores updates from group chats outside
// telegram.allowed_chats. Private chats are served when the list is empty
// or the user was seen in an allowed group.
func WhitelistMiddleware(cfg *config.Config) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			chat := c.Chat()
			sender := c.Sender()

			if chat == nil || sender == nil {
				return nil
			}

			if chat.Type == tele.ChatPrivate {
				if len(cfg.Telegram.AllowedChats) == 0 || IsPrivateUserAllowed(sender.ID) || cfg.IsAdmin(sender.ID) {
					return next(c)
				}
				log.Debug().
					Int64("user_id", sender.ID).
					Msg("Ignoring private chat from user not seen in an allowed group")
				return nil
			}

			if !cfg.IsChatAllowed(chat.ID) {
				log.Debug().
					Int64("chat_id", chat.ID).
					Msg("Ignoring command from non-whitelisted chat")
				return nil
			}

			AllowPrivateUser(sender.ID)
			return next(c)
		}
	}
}

// commandOf returns the bot command of a message, without arguments or the
// @botname suffix. Free text yields "".
func commandOf(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return ""
	}
	cmd, _, _ := strings.Cut(fields[0], "@")
	return cmd
}

// withSender adds the sender's Telegram and ledger identities to e.
func withSender(e *zerolog.Event, c tele.Context) *zerolog.Event {
	if sender := c.Sender(); sender != nil {
		e = e.Int64("telegram_id", sender.ID).Str("user_id", id.Telegram(sender.ID))
	}
	return e.Str("command", commandOf(c.Text()))
}

// AdminMiddleware rejects senders missing from telegram.admin_ids. Rejections
// are audit-logged under the sender's ledger identity.
func AdminMiddleware(cfg *config.Config) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			if sender == nil {
				return nil
			}

			if !cfg.IsAdmin(sender.ID) {
				withSender(log.Warn(), c).Msg("Non-admin attempted admin command")
				return c.Reply("❌ This command is limited to Botify admins")
			}

			return next(c)
		}
	}
}

// LoggingMiddleware logs each handled command with its latency and outcome.
// Arguments are left out since /grant carries emails.
func LoggingMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			start := time.Now()
			err := next(c)

			e := log.Debug()
			if err != nil {
				e = log.Warn().Err(err)
			}
			if chat := c.Chat(); chat != nil {
				e = e.Int64("chat_id", chat.ID).Str("chat_type", string(chat.Type))
			}
			withSender(e, c).
				Dur("latency", time.Since(start)).
				Msg("Handled update")
			return err
		}
	}
}

// RecoveryMiddleware turns a handler panic into an error reply.
func RecoveryMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					withSender(log.Error(), c).
						Interface("panic", r).
						Bytes("stack", debug.Stack()).
						Msg("Recovered from panic in handler")
					err = c.Reply("❌ Something went wrong, your balance was not changed. Please try again later")
				}
			}()
			return next(c)
		}
	}
}
