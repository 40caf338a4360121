package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"botify/internal/repository"
)

const maxHistoryLimit = 200

// AccountHandler serves the caller's own balance, dashboard and history.
type AccountHandler struct {
	ledger LedgerService
}

func NewAccountHandler(ledger LedgerService) *AccountHandler {
	return &AccountHandler{ledger: ledger}
}

// Me handles GET /api/me.
func (h *AccountHandler) Me(c echo.Context) error {
	userID, _, err := ctxUser(c)
	if err != nil {
		return err
	}
	user, err := h.ledger.GetUserData(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

// Dashboard handles GET /api/me/dashboard.
func (h *AccountHandler) Dashboard(c echo.Context) error {
	userID, _, err := ctxUser(c)
	if err != nil {
		return err
	}
	d, err := h.ledger.Dashboard(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

// Transactions handles GET /api/me/transactions?limit=N.
func (h *AccountHandler) Transactions(c echo.Context) error {
	userID, _, err := ctxUser(c)
	if err != nil {
		return err
	}

	limit := repository.DefaultHistoryLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = min(n, maxHistoryLimit)
	}

	txs, err := h.ledger.ListTransactions(c.Request().Context(), userID, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"transactions": txs})
}
