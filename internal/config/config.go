package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// MercadoPagoConfig holds the platform application registered with Mercado Pago.
// AccessToken and PublicKey form the optional platform-wide fallback credential.
type MercadoPagoConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AccessToken  string
	PublicKey    string
	APIBaseURL   string
	AuthBaseURL  string
	// AllowSandbox accepts TEST- credentials on connect, for staging deployments
	AllowSandbox bool
}

// OAuthConfigured reports whether shelters can connect their own accounts
func (c MercadoPagoConfig) OAuthConfigured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

type PagoparConfig struct {
	APIBaseURL      string
	CheckoutBaseURL string
}

// FirebaseWebConfig is the public web SDK configuration used by the login page
type FirebaseWebConfig struct {
	APIKey     string
	AuthDomain string
	ProjectID  string
}

// Config is the process configuration, read once at startup
type Config struct {
	Port                    string
	AppURL                  string
	DatabaseURL             string
	RedisURL                string
	FirebaseCredentialsPath string
	Firebase                FirebaseWebConfig
	SecureCookies           bool
	LogLevel                string
	ProviderTimeout         time.Duration

	MercadoPago MercadoPagoConfig
	Pagopar     PagoparConfig
}

// Load reads .env (if present) and the process environment
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment without touching .env
func FromEnv() Config {
	appURL := strings.TrimRight(getEnv("APP_URL", "http://localhost:8080"), "/")

	timeout, err := time.ParseDuration(getEnv("PROVIDER_HTTP_TIMEOUT", "10s"))
	if err != nil || timeout <= 0 {
		log.Printf("Invalid PROVIDER_HTTP_TIMEOUT, using 10s")
		timeout = 10 * time.Second
	}

	return Config{
		Port:                    getEnv("PORT", "8080"),
		AppURL:                  appURL,
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		RedisURL:                os.Getenv("REDIS_URL"),
		FirebaseCredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", "./firebase-service-account.json"),
		Firebase: FirebaseWebConfig{
			APIKey:     os.Getenv("FIREBASE_API_KEY"),
			AuthDomain: os.Getenv("FIREBASE_AUTH_DOMAIN"),
			ProjectID:  os.Getenv("FIREBASE_PROJECT_ID"),
		},
		SecureCookies:   os.Getenv("ENV") == "production",
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		ProviderTimeout: timeout,
		MercadoPago: MercadoPagoConfig{
			ClientID:     os.Getenv("MERCADOPAGO_CLIENT_ID"),
			ClientSecret: os.Getenv("MERCADOPAGO_CLIENT_SECRET"),
			RedirectURL:  getEnv("MERCADOPAGO_REDIRECT_URL", appURL+"/oauth/mercadopago/callback"),
			AccessToken:  os.Getenv("MERCADOPAGO_ACCESS_TOKEN"),
			PublicKey:    os.Getenv("MERCADOPAGO_PUBLIC_KEY"),
			APIBaseURL:   strings.TrimRight(getEnv("MERCADOPAGO_API_URL", "https://api.mercadopago.com"), "/"),
			AuthBaseURL:  strings.TrimRight(getEnv("MERCADOPAGO_AUTH_URL", "https://auth.mercadopago.com"), "/"),
			AllowSandbox: getEnv("MERCADOPAGO_ALLOW_SANDBOX", "false") == "true",
		},
		Pagopar: PagoparConfig{
			APIBaseURL:      strings.TrimRight(getEnv("PAGOPAR_API_URL", "https://api.pagopar.com"), "/"),
			CheckoutBaseURL: strings.TrimRight(getEnv("PAGOPAR_CHECKOUT_URL", "https://www.pagopar.com/pagos"), "/"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
