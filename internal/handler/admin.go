package handler

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"botify/internal/model"
	"botify/internal/pkg/id"
)

const grantUsage = "❌ Usage: /grant <user id|email> <amount> <reason>\nExample: /grant 123456789 100 contest prize"

// AdminHandler handles admin-only commands. Callers must be checked by
// AdminMiddleware.
type AdminHandler struct {
	ledger Ledger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(ledger Ledger) *AdminHandler {
	return &AdminHandler{ledger: ledger}
}

type grantArgs struct {
	target string
	amount int64
	reason string
}

// HandleGrant handles the /grant command.
func (h *AdminHandler) HandleGrant(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	args, err := parseGrantArgs(c.Args())
	if err != nil {
		return c.Reply(err.Error())
	}
	return c.Reply(h.grant(context.Background(), sender, args))
}

func (h *AdminHandler) grant(ctx context.Context, sender *tele.User, args grantArgs) string {
	adminID := id.Telegram(sender.ID)

	var user *model.User
	var err error
	if strings.Contains(args.target, "@") {
		user, err = h.ledger.GrantBitesByEmail(ctx, adminID, args.target, args.amount, args.reason)
	} else {
		user, err = h.ledger.GrantBites(ctx, adminID, resolveUserID(args.target), args.amount, args.reason)
	}
	if err != nil {
		return errorReply(err)
	}

	log.Info().
		Int64("admin_telegram_id", sender.ID).
		Str("target_id", user.ID).
		Int64("amount", args.amount).
		Str("operation", "grant").
		Msg("Admin operation executed")

	return fmt.Sprintf(
		"✅ Granted %d bites\n\n"+
			"👤 User: %s\n"+
			"💰 Balance: %d bites",
		args.amount, user.ID, user.Bites,
	)
}

// parseGrantArgs parses "<target> <amount> [reason...]".
func parseGrantArgs(args []string) (grantArgs, error) {
	if len(args) < 2 {
		return grantArgs{}, fmt.Errorf("%s", grantUsage)
	}
	amount, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return grantArgs{}, fmt.Errorf("❌ Amount must be a whole number")
	}
	if amount <= 0 {
		return grantArgs{}, fmt.Errorf("❌ Amount must be greater than 0")
	}
	return grantArgs{
		target: args[0],
		amount: amount,
		reason: strings.Join(args[2:], " "),
	}, nil
}

// resolveUserID accepts a bare Telegram id or a ledger user id.
func resolveUserID(target string) string {
	if n, err := strconv.ParseInt(target, 10, 64); err == nil {
		return id.Telegram(n)
	}
	return target
}
