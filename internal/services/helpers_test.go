package services

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"shelter_app_echo/internal/models"
)

var testNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedMercadoPago(t *testing.T, store *CredentialStore, shelterID, accessToken string, expiresAt time.Time) {
	t.Helper()
	err := store.UpsertMercadoPago(context.Background(), &models.ShelterMercadoPagoCredential{
		ShelterID:    shelterID,
		MPUserID:     "mp-" + shelterID,
		AccessToken:  accessToken,
		RefreshToken: "refresh-" + shelterID,
		ExpiresAt:    expiresAt,
	})
	if err != nil {
		t.Fatalf("seed mercadopago credential: %v", err)
	}
}

func seedPagopar(t *testing.T, store *CredentialStore, shelterID, publicKey, privateKey string) {
	t.Helper()
	err := store.UpsertPagopar(context.Background(), &models.ShelterPagoparCredential{
		ShelterID:  shelterID,
		PublicKey:  publicKey,
		PrivateKey: privateKey,
		IsActive:   true,
	})
	if err != nil {
		t.Fatalf("seed pagopar credential: %v", err)
	}
}

// fakeMercadoPago serves payments per access token and records every call
type fakeMercadoPago struct {
	mu sync.Mutex

	// payments[accessToken][paymentID]
	payments map[string]map[string]*MercadoPagoPayment
	fetches  []string

	refreshCalls int
	refresh      func(refreshToken string) (*MercadoPagoToken, error)

	exchange func(code string) (*MercadoPagoToken, error)
	user     *MercadoPagoUser

	preferences []MercadoPagoPreference
	prefTokens  []string
}

func newFakeMercadoPago() *fakeMercadoPago {
	return &fakeMercadoPago{payments: map[string]map[string]*MercadoPagoPayment{}}
}

func (f *fakeMercadoPago) addPayment(accessToken string, p *MercadoPagoPayment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.payments[accessToken] == nil {
		f.payments[accessToken] = map[string]*MercadoPagoPayment{}
	}
	f.payments[accessToken][p.ID.String()] = p
}

func (f *fakeMercadoPago) AuthorizeURL(state string) string {
	return "https://auth.mercadopago.test/authorization?state=" + state
}

func (f *fakeMercadoPago) ExchangeCode(_ context.Context, code string) (*MercadoPagoToken, error) {
	if f.exchange == nil {
		return nil, fmt.Errorf("unexpected exchange")
	}
	return f.exchange(code)
}

func (f *fakeMercadoPago) RefreshToken(_ context.Context, refreshToken string) (*MercadoPagoToken, error) {
	f.mu.Lock()
	f.refreshCalls++
	f.mu.Unlock()
	if f.refresh == nil {
		return nil, fmt.Errorf("%w: refresh not expected", ErrProviderRejected)
	}
	return f.refresh(refreshToken)
}

func (f *fakeMercadoPago) CreatePreference(_ context.Context, accessToken string, pref MercadoPagoPreference) (*MercadoPagoPreferenceResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.preferences = append(f.preferences, pref)
	f.prefTokens = append(f.prefTokens, accessToken)
	return &MercadoPagoPreferenceResponse{
		ID:        "pref-1",
		InitPoint: "https://www.mercadopago.test/checkout?pref_id=pref-1",
	}, nil
}

func (f *fakeMercadoPago) GetPayment(_ context.Context, accessToken, paymentID string) (*MercadoPagoPayment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches = append(f.fetches, accessToken)
	if p, ok := f.payments[accessToken][paymentID]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, &ProviderError{Provider: providerMercadoPago, StatusCode: 404, Body: `{"message":"Payment not found"}`}
}

func (f *fakeMercadoPago) GetUser(_ context.Context, _ string) (*MercadoPagoUser, error) {
	if f.user == nil {
		return nil, &ProviderError{Provider: providerMercadoPago, StatusCode: 500, Body: "boom"}
	}
	return f.user, nil
}

// fakePagopar returns a fixed hash and order state
type fakePagopar struct {
	hash      string
	initErr   error
	initiated []PagoparTransaction

	order    *PagoparOrderResult
	queryErr error
	queries  int
}

func (f *fakePagopar) InitiateTransaction(_ context.Context, req PagoparTransaction) (*PagoparTransactionResult, error) {
	f.initiated = append(f.initiated, req)
	if f.initErr != nil {
		return nil, f.initErr
	}
	return &PagoparTransactionResult{Hash: f.hash, OrderID: req.OrderID}, nil
}

func (f *fakePagopar) QueryOrder(_ context.Context, _, _, _ string) (*PagoparOrderResult, error) {
	f.queries++
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.order, nil
}

func (f *fakePagopar) CheckoutURL(hash, paymentMethod string) string {
	u := "https://www.pagopar.test/pagos/" + hash
	if paymentMethod != "" {
		u += "?forma_pago=" + paymentMethod
	}
	return u
}

// memoryCache implements Locker and StateStore in memory
type memoryCache struct {
	mu     sync.Mutex
	locks  map[string]bool
	states map[string]string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{locks: map[string]bool{}, states: map[string]string{}}
}

func (m *memoryCache) TryLock(_ context.Context, key string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[key] {
		return false, nil
	}
	m.locks[key] = true
	return true, nil
}

func (m *memoryCache) Unlock(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, key)
	return nil
}

func (m *memoryCache) SaveState(_ context.Context, nonce, shelterID string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[nonce] = shelterID
	return nil
}

func (m *memoryCache) ConsumeState(_ context.Context, nonce string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	shelterID, ok := m.states[nonce]
	delete(m.states, nonce)
	return shelterID, ok, nil
}

var nopLogger = zap.NewNop()
