package middleware

import (
	"github.com/labstack/echo/v4"

	"botify/internal/model"
	"botify/internal/service"
)

// RBAC enforces role-based access control. Rejections surface as
// service.ErrForbidden so the error handler renders them.
func RBAC(allowedRoles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]struct{}, len(allowedRoles))
	for _, r := range allowedRoles {
		allowed[r] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, _ := c.Get(KeyRole).(string)
			if _, ok := allowed[role]; !ok {
				return service.ErrForbidden
			}
			return next(c)
		}
	}
}

// RequireAdmin allows only admin tokens through.
func RequireAdmin() echo.MiddlewareFunc {
	return RBAC(model.RoleAdmin)
}
