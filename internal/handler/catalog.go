package handler

import (
	"context"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v3"
)

const maxListedBots = 20

// CatalogHandler handles browsing, buying and ownership commands.
type CatalogHandler struct {
	ledger  Ledger
	catalog Catalog
}

// NewCatalogHandler creates a new CatalogHandler.
func NewCatalogHandler(ledger Ledger, catalog Catalog) *CatalogHandler {
	return &CatalogHandler{ledger: ledger, catalog: catalog}
}

// HandleBots handles the /bots command. "/bots official" lists only
// official bots.
func (h *CatalogHandler) HandleBots(c tele.Context) error {
	officialOnly := len(c.Args()) > 0 && strings.EqualFold(c.Args()[0], "official")
	return c.Reply(h.bots(context.Background(), officialOnly))
}

func (h *CatalogHandler) bots(ctx context.Context, officialOnly bool) string {
	bots, err := h.catalog.ListBots(ctx, officialOnly)
	if err != nil {
		return errorReply(err)
	}
	if len(bots) == 0 {
		return "📭 The catalog is empty"
	}

	var b strings.Builder
	b.WriteString("🤖 Bots\n")
	for i, bot := range bots {
		if i == maxListedBots {
			fmt.Fprintf(&b, "\n... and %d more", len(bots)-maxListedBots)
			break
		}
		price := "free"
		if bot.Price > 0 {
			price = fmt.Sprintf("%d bites", bot.Price)
		}
		badge := ""
		if bot.Official {
			badge = " ⭐"
		}
		fmt.Fprintf(&b, "\n%s%s\n  id: %s | %s | rating %.1f", bot.Title, badge, bot.ID, price, bot.Rating)
	}
	return b.String()
}

// HandleBuy handles the /buy <bot id> command.
func (h *CatalogHandler) HandleBuy(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	args := c.Args()
	if len(args) < 1 {
		return c.Reply("❌ Usage: /buy <bot id>")
	}
	return c.Reply(h.buy(context.Background(), sender, args[0]))
}

func (h *CatalogHandler) buy(ctx context.Context, sender *tele.User, botID string) string {
	user, _, err := identify(ctx, h.ledger, sender)
	if err != nil {
		return errorReply(err)
	}

	res, err := h.ledger.PurchaseBot(ctx, user.ID, botID)
	if err != nil {
		return errorReply(err)
	}

	switch {
	case res.AlreadyEntitled:
		return "ℹ️ You already have this bot"
	case res.Price == 0:
		return "✅ Free bot added to your library"
	default:
		return fmt.Sprintf("✅ Purchased for %d bites\n💰 Balance: %d bites", res.Price, res.Balance)
	}
}

// HandleOwns handles the /owns <bot id> command.
func (h *CatalogHandler) HandleOwns(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	args := c.Args()
	if len(args) < 1 {
		return c.Reply("❌ Usage: /owns <bot id>")
	}
	return c.Reply(h.owns(context.Background(), sender, args[0]))
}

func (h *CatalogHandler) owns(ctx context.Context, sender *tele.User, botID string) string {
	user, _, err := identify(ctx, h.ledger, sender)
	if err != nil {
		return errorReply(err)
	}
	ent, err := h.ledger.QueryEntitlement(ctx, user.ID, botID)
	if err != nil {
		return errorReply(err)
	}

	switch {
	case ent.Owns:
		return "📦 You published this bot"
	case ent.Purchased:
		return "✅ You own this bot"
	default:
		return "🔒 You do not own this bot"
	}
}
