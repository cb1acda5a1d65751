package services

import (
	"context"
	"testing"
	"time"
)

func TestResolveValidCredentialRefreshesExpiredToken(t *testing.T) {
	ctx := context.Background()
	store := NewCredentialStore(newTestDB(t))
	seedMercadoPago(t, store, "t1", "APP_USR-old", testNow.Add(-time.Second))

	mp := newFakeMercadoPago()
	mp.refresh = func(refreshToken string) (*MercadoPagoToken, error) {
		if refreshToken != "refresh-t1" {
			t.Errorf("refresh token = %q", refreshToken)
		}
		return &MercadoPagoToken{AccessToken: "APP_USR-new", RefreshToken: "refresh-t1-b", ExpiresAt: testNow.Add(6 * time.Hour)}, nil
	}
	tokens := NewTokenManager(store, mp, newMemoryCache(), nopLogger, fixedNow)

	cred, err := tokens.ResolveValidCredential(ctx, "t1")
	if err != nil {
		t.Fatalf("ResolveValidCredential: %v", err)
	}
	if mp.refreshCalls != 1 {
		t.Errorf("refresh calls = %d; want 1", mp.refreshCalls)
	}
	if cred.AccessToken != "APP_USR-new" || !cred.ExpiresAt.After(testNow) {
		t.Errorf("credential = %s expiring %v", cred.AccessToken, cred.ExpiresAt)
	}

	stored, _ := store.GetMercadoPago(ctx, "t1")
	if stored.AccessToken != "APP_USR-new" || stored.RefreshToken != "refresh-t1-b" {
		t.Errorf("stored credential not updated: %s / %s", stored.AccessToken, stored.RefreshToken)
	}

	// the stored token is fresh now, so no second refresh
	if _, err := tokens.ResolveValidCredential(ctx, "t1"); err != nil {
		t.Fatalf("second ResolveValidCredential: %v", err)
	}
	if mp.refreshCalls != 1 {
		t.Errorf("refresh calls after second resolve = %d; want 1", mp.refreshCalls)
	}
}

func TestResolveValidCredentialRefreshWindow(t *testing.T) {
	tests := []struct {
		name        string
		expiresIn   time.Duration
		wantRefresh bool
	}{
		{name: "expired", expiresIn: -time.Hour, wantRefresh: true},
		{name: "inside window", expiresIn: 59 * time.Minute, wantRefresh: true},
		{name: "outside window", expiresIn: 2 * time.Hour, wantRefresh: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewCredentialStore(newTestDB(t))
			seedMercadoPago(t, store, "t1", "APP_USR-old", testNow.Add(tt.expiresIn))
			mp := newFakeMercadoPago()
			mp.refresh = func(string) (*MercadoPagoToken, error) {
				return &MercadoPagoToken{AccessToken: "APP_USR-new", ExpiresAt: testNow.Add(6 * time.Hour)}, nil
			}

			cred, err := NewTokenManager(store, mp, nil, nopLogger, fixedNow).ResolveValidCredential(context.Background(), "t1")
			if err != nil {
				t.Fatalf("ResolveValidCredential: %v", err)
			}
			if got := mp.refreshCalls == 1; got != tt.wantRefresh {
				t.Errorf("refreshed = %v; want %v", got, tt.wantRefresh)
			}
			if tt.wantRefresh && cred.AccessToken != "APP_USR-new" {
				t.Errorf("access token = %s", cred.AccessToken)
			}
		})
	}
}

func TestResolveValidCredentialRefreshFailureReturnsStale(t *testing.T) {
	store := NewCredentialStore(newTestDB(t))
	seedMercadoPago(t, store, "t1", "APP_USR-old", testNow.Add(-time.Minute))
	mp := newFakeMercadoPago() // refresh unset: every refresh fails

	cred, err := NewTokenManager(store, mp, nil, nopLogger, fixedNow).ResolveValidCredential(context.Background(), "t1")
	if err != nil {
		t.Fatalf("ResolveValidCredential: %v", err)
	}
	if cred == nil || cred.AccessToken != "APP_USR-old" {
		t.Fatalf("credential = %+v; want the stale one", cred)
	}
	if mp.refreshCalls != 1 {
		t.Errorf("refresh calls = %d; want 1", mp.refreshCalls)
	}
}

func TestResolveValidCredentialMissing(t *testing.T) {
	store := NewCredentialStore(newTestDB(t))
	cred, err := NewTokenManager(store, newFakeMercadoPago(), nil, nopLogger, fixedNow).ResolveValidCredential(context.Background(), "nobody")
	if err != nil || cred != nil {
		t.Fatalf("ResolveValidCredential = %v, %v; want nil, nil", cred, err)
	}
}

func TestResolveValidCredentialLockHeldElsewhere(t *testing.T) {
	ctx := context.Background()
	store := NewCredentialStore(newTestDB(t))
	seedMercadoPago(t, store, "t1", "APP_USR-old", testNow.Add(-time.Minute))

	cache := newMemoryCache()
	cache.TryLock(ctx, "mercadopago:refresh:t1", refreshLockTTL)

	mp := newFakeMercadoPago()
	cred, err := NewTokenManager(store, mp, cache, nopLogger, fixedNow).ResolveValidCredential(ctx, "t1")
	if err != nil {
		t.Fatalf("ResolveValidCredential: %v", err)
	}
	if mp.refreshCalls != 0 {
		t.Errorf("refresh calls = %d; want 0 while another instance holds the lock", mp.refreshCalls)
	}
	if cred.AccessToken != "APP_USR-old" {
		t.Errorf("access token = %s", cred.AccessToken)
	}
}
