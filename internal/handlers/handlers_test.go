package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"shelter_app_echo/internal/config"
	"shelter_app_echo/internal/middleware"
	"shelter_app_echo/internal/models"
	"shelter_app_echo/internal/services"
	"shelter_app_echo/web"
)

const testAppURL = "https://refugio.example.org"

// mercadoPagoAPI imitates the parts of the Mercado Pago API the app calls
type mercadoPagoAPI struct {
	mu       sync.Mutex
	payments map[string]map[string]string // token -> payment id -> JSON
	fetches  int
}

func (m *mercadoPagoAPI) addPayment(token, id, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.payments[token] == nil {
		m.payments[token] = map[string]string{}
	}
	m.payments[token][id] = body
}

func (m *mercadoPagoAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/v1/payments/"):
		m.fetches++
		body, ok := m.payments[token][strings.TrimPrefix(r.URL.Path, "/v1/payments/")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"message":"Payment not found","status":404}`)
			return
		}
		io.WriteString(w, body)
	case r.Method == http.MethodPost && r.URL.Path == "/checkout/preferences":
		io.WriteString(w, `{"id":"pref-1","init_point":"https://www.mercadopago.test/checkout?pref_id=pref-1"}`)
	case r.Method == http.MethodPost && r.URL.Path == "/oauth/token":
		_ = r.ParseForm()
		if r.Form.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"error":"invalid_grant","error_description":"invalid_grant","status":400}`)
			return
		}
		io.WriteString(w, `{"access_token":"APP_USR-connected","token_type":"bearer","expires_in":15552000,"refresh_token":"TG-connected","user_id":4242,"public_key":"APP_USR-pub","live_mode":true}`)
	case r.Method == http.MethodGet && r.URL.Path == "/users/me":
		io.WriteString(w, `{"id":4242,"nickname":"REFUGIO","email":"refugio@example.org"}`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// pagoparAPI imitates the Pagopar commerce API
type pagoparAPI struct {
	mu        sync.Mutex
	orderBody string
	down      bool
	initiated int
}

func (p *pagoparAPI) initiations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initiated
}

func (p *pagoparAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	if p.down {
		w.WriteHeader(http.StatusBadGateway)
		return
	}

	switch r.URL.Path {
	case "/api/comercios/2.0/iniciar-transaccion":
		p.initiated++
		io.WriteString(w, `{"respuesta":true,"resultado":[{"data":"abc123hash","pedido":"1710504000000"}]}`)
	case "/api/pedidos/1.1/traer":
		io.WriteString(w, p.orderBody)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type testEnv struct {
	echo    *echo.Echo
	db      *gorm.DB
	store   *services.CredentialStore
	ledger  *services.Ledger
	mp      *mercadoPagoAPI
	pagopar *pagoparAPI
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := services.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	mpAPI := &mercadoPagoAPI{payments: map[string]map[string]string{}}
	mpServer := httptest.NewServer(mpAPI)
	t.Cleanup(mpServer.Close)

	ppAPI := &pagoparAPI{}
	ppServer := httptest.NewServer(ppAPI)
	t.Cleanup(ppServer.Close)

	mpCfg := config.MercadoPagoConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  testAppURL + "/oauth/mercadopago/callback",
		APIBaseURL:   mpServer.URL,
		AuthBaseURL:  mpServer.URL,
	}
	ppCfg := config.PagoparConfig{APIBaseURL: ppServer.URL, CheckoutBaseURL: "https://www.pagopar.test/pagos"}

	log := zap.NewNop()
	mp := services.NewMercadoPagoClient(mpCfg, 5*time.Second)
	pagopar := services.NewPagoparClient(ppCfg, 5*time.Second)
	store := services.NewCredentialStore(db)
	ledger := services.NewLedger(db, time.Now)
	tokens := services.NewTokenManager(store, mp, nil, log, time.Now)
	cascade := services.NewCredentialCascade(store, tokens, nil, mp, log)
	initiator := services.NewDonationInitiator(testAppURL, tokens, nil, mp, store, pagopar, ledger, log, time.Now)
	pagoparSync := services.NewPagoparSync(store, ledger, pagopar, log, time.Now)
	connections := services.NewConnections(testAppURL, mpCfg, store, mp, nil, nil, log)
	authz := services.NewMembershipAuthorizer(db)

	renderer, err := web.NewTemplateRenderer()
	if err != nil {
		t.Fatalf("templates: %v", err)
	}

	e := echo.New()
	e.HTTPErrorHandler = middleware.CustomErrorHandler
	e.Renderer = renderer

	webhookHandler := NewWebhookHandler(
		services.NewMercadoPagoWebhooks(cascade, ledger, log),
		services.NewPagoparWebhooks(store, ledger, log),
		services.NewCallbackRecorder(db, log),
		log,
	)
	donationHandler := NewDonationHandler(initiator, pagoparSync, ledger, log)
	connectHandler := NewConnectHandler(connections, authz, log)
	settingsHandler := NewSettingsHandler(connections)

	e.GET("/webhooks/mercadopago", webhookHandler.Ping)
	e.POST("/webhooks/mercadopago", webhookHandler.MercadoPagoWebhook)
	e.POST("/webhooks/pagopar", webhookHandler.PagoparWebhook)
	e.POST("/donations/mercadopago", donationHandler.CreateMercadoPagoDonation)
	e.POST("/donations/pagopar", donationHandler.CreatePagoparDonation)
	e.GET("/donations/pagopar/:hash/status", donationHandler.PagoparStatus)
	e.GET("/donations/result/:outcome", donationHandler.DonationResult)

	// stands in for the session cookie check
	signedIn := e.Group("", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if uid := c.Request().Header.Get("X-Test-User"); uid != "" {
				c.Set("userUID", uid)
			}
			return next(c)
		}
	})
	signedIn.GET("/oauth/mercadopago/callback", connectHandler.MercadoPagoCallback)
	shelter := signedIn.Group("/shelters/:shelterID")
	shelter.Use(middleware.RequireShelterAccess(authz, log))
	shelter.GET("/mercadopago/connect", connectHandler.MercadoPagoConnect)
	shelter.POST("/mercadopago/disconnect", connectHandler.MercadoPagoDisconnect)
	shelter.POST("/pagopar/connect", connectHandler.PagoparConnect)
	shelter.POST("/pagopar/disconnect", connectHandler.PagoparDisconnect)
	shelter.GET("/payments/status", settingsHandler.PaymentStatus)
	shelter.GET("/settings/payments", settingsHandler.PaymentSettingsPage)

	return &testEnv{echo: e, db: db, store: store, ledger: ledger, mp: mpAPI, pagopar: ppAPI}
}

func (env *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) postJSON(path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return env.do(req)
}

func (env *testEnv) addMember(t *testing.T, uid, shelterID string) {
	t.Helper()
	if err := env.db.Create(&models.ShelterMember{UserUID: uid, ShelterID: shelterID, Role: "admin"}).Error; err != nil {
		t.Fatalf("add member: %v", err)
	}
}

func (env *testEnv) seedMercadoPago(t *testing.T, shelterID, token string) {
	t.Helper()
	err := env.store.UpsertMercadoPago(context.Background(), &models.ShelterMercadoPagoCredential{
		ShelterID:    shelterID,
		MPUserID:     "mp-" + shelterID,
		AccessToken:  token,
		RefreshToken: "refresh-" + shelterID,
		ExpiresAt:    time.Now().Add(30 * 24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("seed mercadopago: %v", err)
	}
}

func (env *testEnv) seedPagopar(t *testing.T, shelterID string) {
	t.Helper()
	err := env.store.UpsertPagopar(context.Background(), &models.ShelterPagoparCredential{
		ShelterID:  shelterID,
		PublicKey:  "pub",
		PrivateKey: "priv-key",
		IsActive:   true,
	})
	if err != nil {
		t.Fatalf("seed pagopar: %v", err)
	}
}

func (env *testEnv) donation(t *testing.T, externalID string) *models.Donation {
	t.Helper()
	d, err := env.ledger.FindByExternalID(context.Background(), externalID)
	if err != nil {
		t.Fatalf("find donation: %v", err)
	}
	return d
}

func (env *testEnv) countDonations(t *testing.T) int64 {
	t.Helper()
	var n int64
	if err := env.db.Model(&models.Donation{}).Count(&n).Error; err != nil {
		t.Fatalf("count donations: %v", err)
	}
	return n
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func redirectQuery(t *testing.T, rec *httptest.ResponseRecorder) (string, url.Values) {
	t.Helper()
	loc, err := url.Parse(rec.Header().Get(echo.HeaderLocation))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	return loc.Path, loc.Query()
}
