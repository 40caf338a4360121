package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// AdminHandler serves the admin-only ledger operations.
type AdminHandler struct {
	ledger  LedgerService
	catalog CatalogService
	bots    *BotHandler
}

func NewAdminHandler(ledger LedgerService, catalog CatalogService) *AdminHandler {
	return &AdminHandler{ledger: ledger, catalog: catalog, bots: NewBotHandler(ledger, catalog, nil)}
}

type grantRequest struct {
	UserID string `json:"user_id" validate:"required_without=Email"`
	Email  string `json:"email" validate:"omitempty,email"`
	Amount int64  `json:"amount"`
	Reason string `json:"reason" validate:"max=200"`
}

// Grant handles POST /api/admin/grant. The target is picked by user_id, or
// by email when no id is given.
func (h *AdminHandler) Grant(c echo.Context) error {
	adminID, _, err := ctxUser(c)
	if err != nil {
		return err
	}
	var req grantRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	if req.UserID != "" {
		user, err := h.ledger.GrantBites(ctx, adminID, req.UserID, req.Amount, req.Reason)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, user)
	}

	user, err := h.ledger.GrantBitesByEmail(ctx, adminID, req.Email, req.Amount, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

// AddOfficialBot handles POST /api/admin/official-bots.
func (h *AdminHandler) AddOfficialBot(c echo.Context) error {
	adminID, _, err := ctxUser(c)
	if err != nil {
		return err
	}
	var req publishRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}

	bot, err := h.catalog.AddOfficialBot(c.Request().Context(), adminID, req.draft())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, bot)
}

// UploadOfficial handles POST /api/admin/official-bots/upload.
func (h *AdminHandler) UploadOfficial(c echo.Context) error {
	return h.bots.upload(c, true)
}
