package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"shelter_app_echo/internal/models"
)

const (
	// tokens expiring within this window are refreshed before use
	tokenRefreshWindow = time.Hour
	refreshLockTTL     = 30 * time.Second
)

// TokenManager hands out Mercado Pago credentials that are valid for use,
// refreshing them lazily right before use. There is no background refresh.
type TokenManager struct {
	store  *CredentialStore
	mp     MercadoPagoAPI
	locker Locker
	logger *zap.Logger
	now    func() time.Time
}

// NewTokenManager builds a manager. locker may be nil when Redis is not configured.
func NewTokenManager(store *CredentialStore, mp MercadoPagoAPI, locker Locker, logger *zap.Logger, now func() time.Time) *TokenManager {
	if now == nil {
		now = time.Now
	}
	return &TokenManager{store: store, mp: mp, locker: locker, logger: logger, now: now}
}

// ResolveValidCredential loads the shelter's credential and refreshes it when
// it expires within an hour. It returns nil when the shelter has not connected
// Mercado Pago. A failed refresh is logged and the stale credential returned;
// the caller's provider call will then fail on its own.
func (m *TokenManager) ResolveValidCredential(ctx context.Context, shelterID string) (*models.ShelterMercadoPagoCredential, error) {
	cred, err := m.store.GetMercadoPago(ctx, shelterID)
	if err != nil || cred == nil {
		return nil, err
	}
	return m.ensureFresh(ctx, cred), nil
}

func (m *TokenManager) ensureFresh(ctx context.Context, cred *models.ShelterMercadoPagoCredential) *models.ShelterMercadoPagoCredential {
	if !cred.ExpiresWithin(m.now(), tokenRefreshWindow) {
		return cred
	}

	log := m.logger.With(zap.String("shelter_id", cred.ShelterID), zap.Time("expires_at", cred.ExpiresAt))

	if m.locker != nil {
		lockKey := "mercadopago:refresh:" + cred.ShelterID
		acquired, err := m.locker.TryLock(ctx, lockKey, refreshLockTTL)
		switch {
		case err != nil:
			log.Warn("refresh lock unavailable, refreshing without it", zap.Error(err))
		case !acquired:
			// another instance is refreshing; use whatever is stored now
			log.Info("token refresh in progress elsewhere")
			if latest, err := m.store.GetMercadoPago(ctx, cred.ShelterID); err == nil && latest != nil {
				return latest
			}
			return cred
		default:
			defer func() {
				if err := m.locker.Unlock(context.WithoutCancel(ctx), lockKey); err != nil {
					log.Warn("failed to release refresh lock", zap.Error(err))
				}
			}()
		}
	}

	tok, err := m.mp.RefreshToken(ctx, cred.RefreshToken)
	if err != nil {
		log.Warn("mercadopago token refresh failed, using stored token", zap.Error(err))
		return cred
	}

	now := m.now()
	refreshed := *cred
	refreshed.AccessToken = tok.AccessToken
	refreshed.ExpiresAt = tok.ExpiresAt
	refreshed.UpdatedAt = now
	if tok.RefreshToken != "" {
		refreshed.RefreshToken = tok.RefreshToken
	}

	if err := m.store.UpdateMercadoPagoTokens(ctx, cred.ShelterID, tok, now); err != nil {
		log.Error("failed to persist refreshed token", zap.Error(err))
	} else {
		log.Info("mercadopago token refreshed", zap.Time("new_expires_at", tok.ExpiresAt))
	}
	return &refreshed
}
