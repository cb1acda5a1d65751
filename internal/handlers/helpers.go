package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"shelter_app_echo/internal/services"
)

func getStringFromContext(c echo.Context, key string) string {
	val := c.Get(key)
	if val == nil {
		return ""
	}
	strVal, ok := val.(string)
	if !ok {
		return ""
	}
	return strVal
}

// parseAmountField accepts an amount sent as a JSON number or string
func parseAmountField(raw json.RawMessage, currency string) (decimal.Decimal, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return decimal.Zero, fmt.Errorf("%w: missing", services.ErrInvalidAmount)
	}
	value := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &value); err != nil {
			return decimal.Zero, fmt.Errorf("%w: %v", services.ErrInvalidAmount, err)
		}
	}
	return services.ParseAmount(value, currency)
}

// isFormPost reports whether the request came from an HTML form
func isFormPost(c echo.Context) bool {
	ct := c.Request().Header.Get(echo.HeaderContentType)
	return strings.HasPrefix(ct, echo.MIMEApplicationForm) || strings.HasPrefix(ct, echo.MIMEMultipartForm)
}

func settingsURL(shelterID string, params url.Values) string {
	base := "/"
	if shelterID != "" {
		base = "/shelters/" + url.PathEscape(shelterID) + "/settings/payments"
	}
	if len(params) == 0 {
		return base
	}
	return base + "?" + params.Encode()
}
