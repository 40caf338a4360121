package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"botify/internal/api/middleware"
)

// ctxUser extracts the caller injected by the Auth middleware.
func ctxUser(c echo.Context) (userID, role string, err error) {
	userID, _ = c.Get(middleware.KeyUserID).(string)
	if userID == "" {
		return "", "", echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}
	role, _ = c.Get(middleware.KeyRole).(string)
	return userID, role, nil
}

// bindValid binds the request body into req and validates it.
func bindValid(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}
