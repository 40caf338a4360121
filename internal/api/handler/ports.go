// Package handler implements the REST API handlers.
package handler

import (
	"context"
	"io"

	"botify/internal/model"
	"botify/internal/service"
)

// AuthService is the sign-up and sign-in surface used by AuthHandler.
type AuthService interface {
	Register(ctx context.Context, email, password string) (string, *model.User, error)
	Login(ctx context.Context, email, password string) (string, *model.User, error)
}

// LedgerService is the balance and ownership surface used by the handlers.
type LedgerService interface {
	GetUserData(ctx context.Context, userID string) (*model.User, error)
	Dashboard(ctx context.Context, userID string) (*service.Dashboard, error)
	ListTransactions(ctx context.Context, userID string, limit int) ([]*model.Transaction, error)
	PublishBot(ctx context.Context, authorID string, draft service.BotDraft) (*model.Bot, error)
	PurchaseBot(ctx context.Context, buyerID, botID string) (*service.PurchaseResult, error)
	DeleteBot(ctx context.Context, requesterID, botID string) error
	QueryEntitlement(ctx context.Context, userID, botID string) (model.Entitlement, error)
	GrantBites(ctx context.Context, adminID, userID string, amount int64, reason string) (*model.User, error)
	GrantBitesByEmail(ctx context.Context, adminID, email string, amount int64, reason string) (*model.User, error)
}

// CatalogService is the catalog surface used by the handlers.
type CatalogService interface {
	ListBots(ctx context.Context, officialOnly bool) ([]*model.Bot, error)
	GetBot(ctx context.Context, botID string) (*model.Bot, error)
	AddOfficialBot(ctx context.Context, adminID string, draft service.BotDraft) (*model.Bot, error)
	UploadPackage(ctx context.Context, ownerID, fileName string, official bool, r io.Reader) (string, error)
	Download(ctx context.Context, userID, botID string) (string, error)
	RateBot(ctx context.Context, userID, botID string, stars int) (*model.Bot, error)
}

// Deduper claims client request ids so retried mutations run once.
type Deduper interface {
	Claim(ctx context.Context, scope, userID, requestID string) (bool, error)
	Release(ctx context.Context, scope, userID, requestID string) error
}
