package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"shelter_app_echo/internal/services"
)

// statusFor maps payment errors to HTTP codes. Unknown errors are 500.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, services.ErrInvalidRequest),
		errors.Is(err, services.ErrUnsupportedProvider),
		errors.Is(err, services.ErrInvalidState):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, services.ErrInvalidDonor):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, services.ErrDonationNotFound):
		return http.StatusNotFound, "Donation not found."
	case errors.Is(err, services.ErrInvalidWebhookToken):
		return http.StatusUnauthorized, "Invalid token."
	case errors.Is(err, services.ErrProviderNotConfigured),
		errors.Is(err, services.ErrPlatformNotConfigured):
		return http.StatusServiceUnavailable, err.Error()
	case errors.Is(err, services.ErrProviderUnavailable):
		return http.StatusBadGateway, "The payment provider is not responding. Please try again."
	case errors.Is(err, services.ErrProviderRejected):
		return http.StatusBadGateway, "The payment provider rejected the request."
	}
	return http.StatusInternalServerError, ""
}

// isAPIPath reports whether errors on this path are read by code rather than people
func isAPIPath(c echo.Context) bool {
	path := c.Request().URL.Path
	switch {
	case strings.HasPrefix(path, "/webhooks/"):
		return true
	case strings.HasPrefix(path, "/donations/result/"):
		return false
	case strings.HasPrefix(path, "/donations/"):
		return true
	case strings.HasSuffix(path, "/payments/status"):
		return true
	}
	return !strings.Contains(c.Request().Header.Get(echo.HeaderAccept), echo.MIMETextHTML)
}

// CustomErrorHandler creates a custom error handler for Echo
func CustomErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code, errorMessage := statusFor(err)

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if msg, ok := he.Message.(string); ok && msg != "" {
			errorMessage = msg
		}
	}

	errorTitle := http.StatusText(code)
	if errorMessage == "" {
		switch code {
		case http.StatusNotFound:
			errorMessage = "The page you're looking for doesn't exist."
		case http.StatusForbidden:
			errorMessage = "You don't have permission to access this resource."
		case http.StatusUnauthorized:
			errorMessage = "Please log in to continue."
		case http.StatusBadRequest:
			errorMessage = "The request could not be processed."
		default:
			errorMessage = "Something went wrong. Please try again later."
		}
	}

	if code >= http.StatusInternalServerError {
		c.Logger().Error(err)
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}

	if isAPIPath(c) || c.Echo().Renderer == nil {
		if jsonErr := c.JSON(code, map[string]string{"error": errorMessage}); jsonErr != nil {
			c.Logger().Error(jsonErr)
		}
		return
	}

	data := map[string]interface{}{
		"Title":        errorTitle,
		"ErrorTitle":   errorTitle,
		"ErrorMessage": errorMessage,
	}
	if renderErr := c.Render(code, "error.html", data); renderErr != nil {
		c.Logger().Error(fmt.Errorf("failed to render error page: %w", renderErr))
		_ = c.String(code, errorMessage)
	}
}
