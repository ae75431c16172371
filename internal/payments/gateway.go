package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"

	mpconfig "github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/mercadopago/sdk-go/pkg/preference"
)

var (
	ErrGatewayNotConfigured = errors.New("payment gateway not configured")
	ErrNoInitPoint          = errors.New("preference response missing init point")
)

// PaymentInfo is the subset of the gateway payment response this service
// consumes, re-parsed from the SDK response so downstream code does not couple
// to SDK types.
type PaymentInfo struct {
	ID                int            `json:"id"`
	Status            string         `json:"status"`
	StatusDetail      string         `json:"status_detail"`
	PaymentMethodID   string         `json:"payment_method_id"`
	PaymentTypeID     string         `json:"payment_type_id"`
	TransactionAmount float64        `json:"transaction_amount"`
	Metadata          map[string]any `json:"metadata"`

	PointOfInteraction struct {
		TransactionData struct {
			QRCode       string `json:"qr_code"`
			QRCodeBase64 string `json:"qr_code_base64"`
			TicketURL    string `json:"ticket_url"`
		} `json:"transaction_data"`
	} `json:"point_of_interaction"`

	TransactionDetails struct {
		ExternalResourceURL string `json:"external_resource_url"`
	} `json:"transaction_details"`
}

// PaymentID returns the gateway payment id as a string, empty when unset.
func (p *PaymentInfo) PaymentID() string {
	if p.ID == 0 {
		return ""
	}
	return strconv.Itoa(p.ID)
}

// MetadataString reads a metadata value trying each key in order. The gateway
// normalizes metadata keys to snake_case, so callers pass both spellings.
func (p *PaymentInfo) MetadataString(keys ...string) string {
	for _, k := range keys {
		if v, ok := p.Metadata[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// Gateway wraps the Mercado Pago payment and preference clients. Request
// bodies are built as plain maps and round-tripped through JSON into the SDK
// request types, so optional fields stay omitted instead of zero-valued.
type Gateway struct {
	payments    payment.Client
	preferences preference.Client
}

func NewGateway(accessToken string) (*Gateway, error) {
	if accessToken == "" {
		return nil, ErrGatewayNotConfigured
	}
	cfg, err := mpconfig.New(accessToken)
	if err != nil {
		return nil, err
	}
	log.Printf("[payments][gateway] Mercado Pago client initialized")
	return &Gateway{
		payments:    payment.NewClient(cfg),
		preferences: preference.NewClient(cfg),
	}, nil
}

// CreatePayment submits a payment request and returns the parsed response.
func (g *Gateway) CreatePayment(ctx context.Context, body map[string]any) (*PaymentInfo, error) {
	if g == nil {
		return nil, ErrGatewayNotConfigured
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	var req payment.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, err
	}

	resp, err := g.payments.Create(ctx, req)
	if err != nil {
		log.Printf("[payments][gateway] create failed err=%v", err)
		return nil, err
	}
	log.Printf("[payments][gateway] create success payment_id=%d status=%s", resp.ID, resp.Status)

	return parsePaymentResponse(resp)
}

// GetPayment fetches a payment by its gateway id.
func (g *Gateway) GetPayment(ctx context.Context, id string) (*PaymentInfo, error) {
	if g == nil {
		return nil, ErrGatewayNotConfigured
	}
	n, err := strconv.Atoi(id)
	if err != nil {
		return nil, fmt.Errorf("invalid payment id %q: %w", id, err)
	}
	resp, err := g.payments.Get(ctx, n)
	if err != nil {
		return nil, err
	}
	return parsePaymentResponse(resp)
}

func parsePaymentResponse(resp any) (*PaymentInfo, error) {
	b, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	var info PaymentInfo
	if err := json.Unmarshal(b, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// CreatePreference creates a hosted checkout preference and returns its
// redirect link.
func (g *Gateway) CreatePreference(ctx context.Context, body map[string]any) (initPoint, prefID string, err error) {
	if g == nil {
		return "", "", ErrGatewayNotConfigured
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return "", "", err
	}
	var req preference.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return "", "", err
	}

	resp, err := g.preferences.Create(ctx, req)
	if err != nil {
		log.Printf("[payments][gateway] preference failed err=%v", err)
		return "", "", err
	}

	init := resp.InitPoint
	if init == "" {
		init = resp.SandboxInitPoint
	}
	if init == "" {
		return "", "", ErrNoInitPoint
	}
	return init, resp.ID, nil
}
