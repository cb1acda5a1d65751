package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"shelter_app_echo/internal/services"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: NaN", services.ErrInvalidAmount), http.StatusBadRequest},
		{services.ErrInvalidRequest, http.StatusBadRequest},
		{services.ErrUnsupportedProvider, http.StatusBadRequest},
		{services.ErrInvalidState, http.StatusBadRequest},
		{services.ErrInvalidDonor, http.StatusUnprocessableEntity},
		{services.ErrDonationNotFound, http.StatusNotFound},
		{services.ErrInvalidWebhookToken, http.StatusUnauthorized},
		{services.ErrProviderNotConfigured, http.StatusServiceUnavailable},
		{services.ErrPlatformNotConfigured, http.StatusServiceUnavailable},
		{&services.ProviderError{Provider: "pagopar", StatusCode: 503}, http.StatusBadGateway},
		{&services.ProviderError{Provider: "pagopar", StatusCode: 400}, http.StatusBadGateway},
		{errors.New("database is on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got, _ := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d; want %d", tt.err, got, tt.want)
		}
	}
}

func TestIsAPIPath(t *testing.T) {
	tests := []struct {
		path   string
		accept string
		want   bool
	}{
		{"/webhooks/pagopar", "text/html", true},
		{"/donations/pagopar", "text/html", true},
		{"/donations/result/success", "", false},
		{"/shelters/t1/payments/status", "text/html", true},
		{"/shelters/t1/settings/payments", "text/html,application/xhtml+xml", false},
		{"/shelters/t1/settings/payments", "application/json", true},
	}

	e := echo.New()
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		req.Header.Set(echo.HeaderAccept, tt.accept)
		c := e.NewContext(req, httptest.NewRecorder())
		if got := isAPIPath(c); got != tt.want {
			t.Errorf("isAPIPath(%s, %q) = %v; want %v", tt.path, tt.accept, got, tt.want)
		}
	}
}

func TestCustomErrorHandler(t *testing.T) {
	e := echo.New()

	tests := []struct {
		name     string
		method   string
		path     string
		err      error
		wantCode int
		wantBody string
	}{
		{
			name:     "payment error as json",
			method:   http.MethodPost,
			path:     "/donations/pagopar",
			err:      fmt.Errorf("%w: 0", services.ErrInvalidAmount),
			wantCode: http.StatusBadRequest,
			wantBody: `"error":"payments: amount must be a positive, finite number: 0"`,
		},
		{
			name:     "http error message wins",
			method:   http.MethodGet,
			path:     "/donations/pagopar/x/status",
			err:      echo.NewHTTPError(http.StatusNotFound, "Page not found"),
			wantCode: http.StatusNotFound,
			wantBody: `"error":"Page not found"`,
		},
		{
			name:     "internal errors are not leaked",
			method:   http.MethodPost,
			path:     "/donations/mercadopago",
			err:      errors.New("pq: connection refused"),
			wantCode: http.StatusInternalServerError,
			wantBody: "Something went wrong",
		},
		{
			name:     "head has no body",
			method:   http.MethodHead,
			path:     "/donations/mercadopago",
			err:      services.ErrProviderUnavailable,
			wantCode: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(tt.method, tt.path, nil), rec)

			CustomErrorHandler(tt.err, c)

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d; want %d", rec.Code, tt.wantCode)
			}
			if tt.wantBody == "" {
				if rec.Body.Len() != 0 {
					t.Errorf("body = %s; want empty", rec.Body.String())
				}
				return
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body = %s; want it to contain %s", rec.Body.String(), tt.wantBody)
			}
			if strings.Contains(rec.Body.String(), "pq:") {
				t.Errorf("internal error leaked: %s", rec.Body.String())
			}
		})
	}
}
