package echoapi

import (
	"github.com/labstack/echo/v4"
)

// adminMiddleware lets through administrators holding any of roles (any administrator when roles is empty).
func adminMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			if claims.User().IsAdmin() && contextHasAnyRole(ctx, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// collectorMiddleware lets through the staff allowed to manage enrollments and collect payments.
func collectorMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx)
			if err != nil {
				return err
			}
			if usr.CanCollect() {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}
