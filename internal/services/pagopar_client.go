package services

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"shelter_app_echo/internal/config"
)

const providerPagopar = "pagopar"

// PagoparAPI is the subset of the Pagopar commerce API the payment core uses
type PagoparAPI interface {
	InitiateTransaction(ctx context.Context, req PagoparTransaction) (*PagoparTransactionResult, error)
	QueryOrder(ctx context.Context, publicKey, privateKey, hash string) (*PagoparOrderResult, error)
	CheckoutURL(hash, paymentMethod string) string
}

// PagoparToken computes the sha1 authentication token Pagopar expects:
// hex(sha1(privateKey || parts...)).
func PagoparToken(privateKey string, parts ...string) string {
	h := sha1.New()
	h.Write([]byte(privateKey))
	for _, p := range parts {
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// PagoparOrderToken authenticates a transaction creation request
func PagoparOrderToken(privateKey, orderID string, amount decimal.Decimal) string {
	return PagoparToken(privateKey, orderID, amount.String())
}

// PagoparWebhookToken is the token Pagopar puts in each webhook result
func PagoparWebhookToken(privateKey, hash string) string {
	return PagoparToken(privateKey, hash)
}

func pagoparQueryToken(privateKey string) string {
	return PagoparToken(privateKey, "CONSULTA")
}

type PagoparBuyer struct {
	Name         string  `json:"nombre"`
	Email        string  `json:"email"`
	Phone        string  `json:"telefono"`
	Document     string  `json:"documento"`
	DocumentType string  `json:"tipo_documento"`
	RUC          string  `json:"ruc"`
	BusinessName string  `json:"razon_social"`
	City         *string `json:"ciudad"`
	Address      string  `json:"direccion"`
	AddressRef   *string `json:"direccion_referencia"`
	Coordinates  string  `json:"coordenadas"`
}

type PagoparItem struct {
	City            string  `json:"ciudad"`
	Name            string  `json:"nombre"`
	Quantity        int     `json:"cantidad"`
	Category        string  `json:"categoria"`
	PublicKey       string  `json:"public_key"`
	ImageURL        string  `json:"url_imagen"`
	Description     string  `json:"descripcion"`
	ProductID       string  `json:"id_producto"`
	TotalPrice      float64 `json:"precio_total"`
	SellerPhone     string  `json:"vendedor_telefono"`
	SellerAddress   string  `json:"vendedor_direccion"`
	SellerAddressRf string  `json:"vendedor_direccion_referencia"`
	SellerCoords    string  `json:"vendedor_direccion_coordenadas"`
}

// PagoparTransaction is the body of iniciar-transaccion
type PagoparTransaction struct {
	Token           string        `json:"token"`
	PublicKey       string        `json:"public_key"`
	TotalAmount     float64       `json:"monto_total"`
	OrderType       string        `json:"tipo_pedido"`
	Items           []PagoparItem `json:"compras_items"`
	PaymentDeadline string        `json:"fecha_maxima_pago"`
	OrderID         string        `json:"id_pedido"`
	Description     string        `json:"descripcion_resumen"`
	Buyer           PagoparBuyer  `json:"comprador"`
}

type PagoparTransactionResult struct {
	Hash    string
	OrderID string
}

// PagoparResult is one entry of a webhook or order query "resultado" array
type PagoparResult struct {
	HashPedido     string          `json:"hash_pedido"`
	Token          string          `json:"token"`
	Pagado         bool            `json:"pagado"`
	Cancelado      bool            `json:"cancelado"`
	Monto          decimal.Decimal `json:"monto"`
	FormaPago      string          `json:"forma_pago"`
	NumeroPedido   FlexibleID      `json:"numero_pedido"`
	FechaPago      *string         `json:"fecha_pago"`
	NumeroInterno  FlexibleID      `json:"numero_comprobante_interno"`
	UltimoMensaje  *string         `json:"ultimo_mensaje_error"`
	FormaPagoIdent FlexibleID      `json:"forma_pago_identificador"`
}

type PagoparOrderResult struct {
	Result PagoparResult
}

type pagoparEnvelope struct {
	Respuesta bool            `json:"respuesta"`
	Resultado json.RawMessage `json:"resultado"`
}

// PagoparClient talks to the Pagopar commerce API
type PagoparClient struct {
	cfg        config.PagoparConfig
	httpClient *http.Client
}

func NewPagoparClient(cfg config.PagoparConfig, timeout time.Duration) *PagoparClient {
	return &PagoparClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// CheckoutURL returns the hosted payment page for an order hash, optionally
// preselecting a payment method
func (c *PagoparClient) CheckoutURL(hash, paymentMethod string) string {
	u := c.cfg.CheckoutBaseURL + "/" + url.PathEscape(hash)
	if paymentMethod != "" {
		u += "?forma_pago=" + url.QueryEscape(paymentMethod)
	}
	return u
}

func (c *PagoparClient) InitiateTransaction(ctx context.Context, req PagoparTransaction) (*PagoparTransactionResult, error) {
	var env pagoparEnvelope
	endpoint := c.cfg.APIBaseURL + "/api/comercios/2.0/iniciar-transaccion"
	if err := providerRequest(ctx, c.httpClient, providerPagopar, http.MethodPost, endpoint, "", req, &env); err != nil {
		return nil, err
	}
	if !env.Respuesta {
		return nil, fmt.Errorf("%w: pagopar: %s", ErrProviderRejected, pagoparMessage(env.Resultado))
	}

	var results []struct {
		Data   string     `json:"data"`
		Pedido FlexibleID `json:"pedido"`
	}
	if err := json.Unmarshal(env.Resultado, &results); err != nil || len(results) == 0 || results[0].Data == "" {
		return nil, fmt.Errorf("%w: pagopar returned no order hash", ErrProviderRejected)
	}
	return &PagoparTransactionResult{Hash: results[0].Data, OrderID: results[0].Pedido.String()}, nil
}

// QueryOrder fetches the current state of an order from Pagopar
func (c *PagoparClient) QueryOrder(ctx context.Context, publicKey, privateKey, hash string) (*PagoparOrderResult, error) {
	payload := map[string]string{
		"hash_pedido":   hash,
		"token":         pagoparQueryToken(privateKey),
		"token_publico": publicKey,
	}

	var env pagoparEnvelope
	endpoint := c.cfg.APIBaseURL + "/api/pedidos/1.1/traer"
	if err := providerRequest(ctx, c.httpClient, providerPagopar, http.MethodPost, endpoint, "", payload, &env); err != nil {
		return nil, err
	}
	if !env.Respuesta {
		return nil, fmt.Errorf("%w: pagopar: %s", ErrProviderRejected, pagoparMessage(env.Resultado))
	}

	var results []PagoparResult
	if err := json.Unmarshal(env.Resultado, &results); err != nil || len(results) == 0 {
		return nil, fmt.Errorf("%w: pagopar order %s has no result", ErrProviderRejected, hash)
	}
	return &PagoparOrderResult{Result: results[0]}, nil
}

// pagoparMessage extracts the error text Pagopar returns in resultado on failure
func pagoparMessage(raw json.RawMessage) string {
	var msg string
	if err := json.Unmarshal(raw, &msg); err == nil {
		return msg
	}
	return string(raw)
}
