package middleware

import (
	"github.com/labstack/echo/v4"
	jwtpkg "github.com/piresc/schoolbus/internal/pkg/jwt"
	"github.com/piresc/schoolbus/internal/pkg/models"
	"github.com/piresc/schoolbus/internal/pkg/requestcontext"
	"github.com/piresc/schoolbus/internal/utils"
)

// JWTAuthMiddleware authenticates the bearer token and stores user_id and
// role in the Echo context. When roles are given, other roles get 403.
func JWTAuthMiddleware(config models.JWTConfig, roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenString, err := jwtpkg.TokenFromRequest(c.Request())
			if err != nil {
				return utils.UnauthorizedResponse(c, "Authorization header is required")
			}

			claims, err := jwtpkg.ValidateToken(tokenString, config)
			if err != nil {
				return utils.UnauthorizedResponse(c, "Invalid token")
			}

			if len(roles) > 0 && !hasRole(roles, claims.Role) {
				return utils.ForbiddenResponse(c, "Role not allowed")
			}

			c.Set("user_id", claims.UserID)
			c.Set("role", claims.Role)
			c.SetRequest(c.Request().WithContext(requestcontext.WithUserID(c.Request().Context(), claims.UserID)))

			return next(c)
		}
	}
}

func hasRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
