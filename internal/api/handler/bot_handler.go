package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"botify/internal/metrics"
	"botify/internal/service"
)

const scopePurchase = "purchase"

// BotHandler serves the catalog and the per-bot ledger operations.
type BotHandler struct {
	ledger  LedgerService
	catalog CatalogService
	dedup   Deduper
}

func NewBotHandler(ledger LedgerService, catalog CatalogService, dedup Deduper) *BotHandler {
	return &BotHandler{ledger: ledger, catalog: catalog, dedup: dedup}
}

type publishRequest struct {
	Title       string `json:"title" validate:"required,max=120"`
	Description string `json:"description" validate:"max=2000"`
	Platform    string `json:"platform" validate:"max=40"`
	Price       int64  `json:"price"`
	FileURL     string `json:"file_url" validate:"omitempty,max=1024"`
	FileName    string `json:"file_name" validate:"max=255"`
}

func (r publishRequest) draft() service.BotDraft {
	return service.BotDraft{
		Title:       r.Title,
		Description: r.Description,
		Platform:    r.Platform,
		Price:       r.Price,
		FileURL:     r.FileURL,
		FileName:    r.FileName,
	}
}

type rateRequest struct {
	Rating int `json:"rating" validate:"required"`
}

type uploadResponse struct {
	FileURL  string `json:"file_url"`
	FileName string `json:"file_name"`
}

// List handles GET /api/bots?official=true.
func (h *BotHandler) List(c echo.Context) error {
	officialOnly, _ := strconv.ParseBool(c.QueryParam("official"))
	bots, err := h.catalog.ListBots(c.Request().Context(), officialOnly)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"bots": bots})
}

// Get handles GET /api/bots/:id.
func (h *BotHandler) Get(c echo.Context) error {
	bot, err := h.catalog.GetBot(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, bot)
}

// Publish handles POST /api/bots.
func (h *BotHandler) Publish(c echo.Context) error {
	userID, _, err := ctxUser(c)
	if err != nil {
		return err
	}
	var req publishRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}

	bot, err := h.ledger.PublishBot(c.Request().Context(), userID, req.draft())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, bot)
}

// Upload handles POST /api/bots/upload with a multipart "file" field.
func (h *BotHandler) Upload(c echo.Context) error {
	return h.upload(c, false)
}

func (h *BotHandler) upload(c echo.Context, official bool) error {
	userID, _, err := ctxUser(c)
	if err != nil {
		return err
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable file")
	}
	defer f.Close()

	url, err := h.catalog.UploadPackage(c.Request().Context(), userID, fh.Filename, official, f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, uploadResponse{FileURL: url, FileName: fh.Filename})
}

// Purchase handles POST /api/bots/:id/purchase. A repeated X-Request-ID from
// the same user for the same bot is rejected while the first claim is live.
func (h *BotHandler) Purchase(c echo.Context) error {
	userID, _, err := ctxUser(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	botID := c.Param("id")
	requestID := c.Request().Header.Get(echo.HeaderXRequestID)
	scope := scopePurchase + ":" + botID

	claimed := false
	if h.dedup != nil && requestID != "" {
		first, err := h.dedup.Claim(ctx, scope, userID, requestID)
		switch {
		case err != nil:
			log.Warn().Err(err).Str("user_id", userID).Msg("Dedup unavailable, processing request anyway")
		case !first:
			metrics.DedupTotal.WithLabelValues("hit").Inc()
			return echo.NewHTTPError(http.StatusConflict, "duplicate request")
		default:
			metrics.DedupTotal.WithLabelValues("miss").Inc()
			claimed = true
		}
	}

	res, err := h.ledger.PurchaseBot(ctx, userID, botID)
	if err != nil {
		if claimed {
			if rerr := h.dedup.Release(ctx, scope, userID, requestID); rerr != nil {
				log.Warn().Err(rerr).Str("user_id", userID).Msg("Failed to release dedup claim")
			}
		}
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// Delete handles DELETE /api/bots/:id.
func (h *BotHandler) Delete(c echo.Context) error {
	userID, _, err := ctxUser(c)
	if err != nil {
		return err
	}
	if err := h.ledger.DeleteBot(c.Request().Context(), userID, c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Entitlement handles GET /api/bots/:id/entitlement.
func (h *BotHandler) Entitlement(c echo.Context) error {
	userID, _, err := ctxUser(c)
	if err != nil {
		return err
	}
	ent, err := h.ledger.QueryEntitlement(c.Request().Context(), userID, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ent)
}

// Download handles POST /api/bots/:id/download.
func (h *BotHandler) Download(c echo.Context) error {
	userID, _, err := ctxUser(c)
	if err != nil {
		return err
	}
	url, err := h.catalog.Download(c.Request().Context(), userID, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"file_url": url})
}

// Rate handles POST /api/bots/:id/rate.
func (h *BotHandler) Rate(c echo.Context) error {
	userID, _, err := ctxUser(c)
	if err != nil {
		return err
	}
	var req rateRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	bot, err := h.catalog.RateBot(c.Request().Context(), userID, c.Param("id"), req.Rating)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, bot)
}
