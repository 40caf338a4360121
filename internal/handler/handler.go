// Package handler provides Telegram bot command handlers.
package handler

import (
	"context"
	"errors"

	tele "gopkg.in/telebot.v3"

	"botify/internal/model"
	"botify/internal/pkg/id"
	"botify/internal/service"
)

// Ledger is the part of the ledger service the Telegram commands use.
type Ledger interface {
	EnsureUser(ctx context.Context, userID, email string) (*model.User, bool, error)
	GetUserData(ctx context.Context, userID string) (*model.User, error)
	ListTransactions(ctx context.Context, userID string, limit int) ([]*model.Transaction, error)
	PurchaseBot(ctx context.Context, buyerID, botID string) (*service.PurchaseResult, error)
	QueryEntitlement(ctx context.Context, userID, botID string) (model.Entitlement, error)
	GrantBites(ctx context.Context, adminID, userID string, amount int64, reason string) (*model.User, error)
	GrantBitesByEmail(ctx context.Context, adminID, email string, amount int64, reason string) (*model.User, error)
	Threshold() int
}

// Catalog is the part of the catalog service the Telegram commands use.
type Catalog interface {
	ListBots(ctx context.Context, officialOnly bool) ([]*model.Bot, error)
}

// identify maps the Telegram sender onto a ledger account, creating it on
// first contact.
func identify(ctx context.Context, ledger Ledger, sender *tele.User) (*model.User, bool, error) {
	return ledger.EnsureUser(ctx, id.Telegram(sender.ID), "")
}

// errorReply turns a service error into a user-facing message.
func errorReply(err error) string {
	switch {
	case errors.Is(err, service.ErrInsufficientFunds):
		return "❌ Not enough bites"
	case errors.Is(err, service.ErrNotFound):
		return "❌ Not found"
	case errors.Is(err, service.ErrInvalidAmount):
		return "❌ Amount must be a positive whole number"
	case errors.Is(err, service.ErrMonetizationLocked):
		return "❌ Publish more free bots to unlock paid pricing"
	case errors.Is(err, service.ErrNotOwner), errors.Is(err, service.ErrNotEntitled), errors.Is(err, service.ErrForbidden):
		return "❌ Permission denied"
	case errors.Is(err, service.ErrInvalidInput):
		return "❌ Invalid input"
	}
	return "❌ Something went wrong, please try again later"
}
