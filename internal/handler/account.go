package handler

import (
	"context"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v3"

	"botify/internal/model"
)

const historyLimit = 10

// AccountHandler handles balance and history commands.
type AccountHandler struct {
	ledger Ledger
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(ledger Ledger) *AccountHandler {
	return &AccountHandler{ledger: ledger}
}

// HandleStart handles the /start command.
// Creates the account on first use.
func (h *AccountHandler) HandleStart(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	return c.Reply(h.start(context.Background(), sender))
}

func (h *AccountHandler) start(ctx context.Context, sender *tele.User) string {
	user, created, err := identify(ctx, h.ledger, sender)
	if err != nil {
		return errorReply(err)
	}

	name := displayName(sender)
	if created {
		return fmt.Sprintf(
			"🎉 Welcome %s!\n\n"+
				"Your account is ready with %d bites.\n\n"+
				"Commands:\n"+
				"/balance - show your bites\n"+
				"/bots - browse the catalog\n"+
				"/buy <bot id> - buy a bot\n"+
				"/owns <bot id> - check ownership\n"+
				"/history - recent transactions",
			name, user.Bites,
		)
	}
	return fmt.Sprintf("👋 Welcome back %s!\n\nBalance: %d bites", name, user.Bites)
}

// HandleBalance handles the /balance command.
func (h *AccountHandler) HandleBalance(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	return c.Reply(h.balance(context.Background(), sender))
}

func (h *AccountHandler) balance(ctx context.Context, sender *tele.User) string {
	user, _, err := identify(ctx, h.ledger, sender)
	if err != nil {
		return errorReply(err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "💰 Balance: %d bites\n", user.Bites)
	fmt.Fprintf(&b, "📦 Bots published: %d\n", user.TotalBotsPublished)
	if user.MonetizationEnabled {
		b.WriteString("✅ Paid pricing unlocked")
	} else {
		fmt.Fprintf(&b, "🔒 Publish %d more bot(s) to unlock paid pricing", user.BotsNeeded(h.ledger.Threshold()))
	}
	return b.String()
}

// HandleHistory handles the /history command.
func (h *AccountHandler) HandleHistory(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	return c.Reply(h.history(context.Background(), sender))
}

func (h *AccountHandler) history(ctx context.Context, sender *tele.User) string {
	user, _, err := identify(ctx, h.ledger, sender)
	if err != nil {
		return errorReply(err)
	}
	txs, err := h.ledger.ListTransactions(ctx, user.ID, historyLimit)
	if err != nil {
		return errorReply(err)
	}
	if len(txs) == 0 {
		return "📭 No transactions yet"
	}

	var b strings.Builder
	b.WriteString("📜 Recent transactions\n")
	for _, tx := range txs {
		fmt.Fprintf(&b, "\n%s %s %d: %s (%s)",
			txSign(tx.Type), tx.Type, tx.Amount, tx.Description, tx.CreatedAt.Format("2006-01-02 15:04"))
	}
	return b.String()
}

func txSign(txType string) string {
	switch txType {
	case model.TxTypeEarn, model.TxTypeSale:
		return "➕"
	default:
		return "➖"
	}
}

func displayName(u *tele.User) string {
	if u.Username != "" {
		return "@" + u.Username
	}
	if u.FirstName != "" {
		return u.FirstName
	}
	return fmt.Sprintf("%d", u.ID)
}
