package middleware

import (
	"net/http"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"shelter_app_echo/internal/services"
)

// RequireAuth returns a middleware that verifies Firebase session cookies
func RequireAuth(authClient *auth.Client) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if authClient == nil {
				return c.Redirect(http.StatusTemporaryRedirect, "/login?error=auth_not_configured")
			}

			cookie, err := c.Cookie("session")
			if err != nil || cookie.Value == "" {
				return c.Redirect(http.StatusTemporaryRedirect, "/login")
			}

			decodedToken, err := authClient.VerifySessionCookie(c.Request().Context(), cookie.Value)
			if err != nil {
				// Invalid session, clear cookie and redirect
				c.SetCookie(&http.Cookie{
					Name:     "session",
					Value:    "",
					MaxAge:   -1,
					HttpOnly: true,
					Path:     "/",
				})
				return c.Redirect(http.StatusTemporaryRedirect, "/login")
			}

			c.Set("userUID", decodedToken.UID)
			if email, ok := decodedToken.Claims["email"].(string); ok {
				c.Set("userEmail", email)
			}
			if name, ok := decodedToken.Claims["name"].(string); ok {
				c.Set("userName", name)
			}

			return next(c)
		}
	}
}

// RequireShelterAccess rejects users who may not manage the shelter named by
// the :shelterID route parameter. It must run after RequireAuth.
func RequireShelterAccess(authz services.ShelterAuthorizer, logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			shelterID := c.Param("shelterID")
			userUID, _ := c.Get("userUID").(string)
			if shelterID == "" || userUID == "" || authz == nil {
				return echo.NewHTTPError(http.StatusForbidden, "You don't have access to this shelter.")
			}

			allowed, err := authz.CanManageShelter(c.Request().Context(), userUID, shelterID)
			if err != nil {
				logger.Error("shelter access check failed",
					zap.String("shelter_id", shelterID),
					zap.String("user_uid", userUID),
					zap.Error(err))
				return echo.NewHTTPError(http.StatusInternalServerError, "Could not verify shelter access.")
			}
			if !allowed {
				return echo.NewHTTPError(http.StatusForbidden, "You don't have access to this shelter.")
			}

			c.Set("shelterID", shelterID)
			return next(c)
		}
	}
}
