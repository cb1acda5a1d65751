package services

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAmount is returned for non-positive or non-finite amounts
	ErrInvalidAmount = errors.New("payments: amount must be a positive, finite number")
	// ErrInvalidDonor is returned when a provider needs buyer details that are missing
	ErrInvalidDonor = errors.New("payments: donor details incomplete")
	// ErrInvalidRequest covers any other malformed caller input
	ErrInvalidRequest = errors.New("payments: invalid request")
	// ErrProviderNotConfigured means the shelter has not connected the provider
	ErrProviderNotConfigured = errors.New("payments: provider not configured for shelter")
	// ErrPlatformNotConfigured means platform-level app credentials are missing
	ErrPlatformNotConfigured = errors.New("payments: platform credentials not configured")
	// ErrProviderUnavailable is a transient provider failure (network, timeout, 5xx)
	ErrProviderUnavailable = errors.New("payments: provider unavailable")
	// ErrProviderRejected is a provider 4xx or a response with respuesta=false
	ErrProviderRejected = errors.New("payments: provider rejected request")
	// ErrInvalidWebhookToken is a Pagopar callback whose token does not match
	ErrInvalidWebhookToken = errors.New("payments: webhook token mismatch")
	// ErrUnsupportedProvider is a provider name outside mercadopago and pagopar
	ErrUnsupportedProvider = errors.New("payments: unsupported provider")
	// ErrInvalidState is an OAuth state that cannot be decoded or was not issued by us
	ErrInvalidState = errors.New("payments: invalid oauth state")
)

// ProviderError describes a non-2xx answer from a provider API
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s responded %d: %s", e.Provider, e.StatusCode, e.Body)
}

func (e *ProviderError) Unwrap() error {
	if e.StatusCode >= 500 || e.StatusCode == 429 || e.StatusCode == 408 {
		return ErrProviderUnavailable
	}
	return ErrProviderRejected
}
