package payments

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"whatsapp-commerce/internal/catalog"
	"whatsapp-commerce/internal/config"
	"whatsapp-commerce/internal/models"
	"whatsapp-commerce/internal/store"
	"whatsapp-commerce/internal/whatsapp"
)

// PaymentGateway is what the orchestrator needs from the payment provider.
type PaymentGateway interface {
	CreatePayment(ctx context.Context, body map[string]any) (*PaymentInfo, error)
	GetPayment(ctx context.Context, id string) (*PaymentInfo, error)
	CreatePreference(ctx context.Context, body map[string]any) (initPoint, prefID string, err error)
}

// ValidationError rejects a charge before it reaches the gateway. Required
// lists the exact missing field paths for the caller to surface.
type ValidationError struct {
	Message  string   `json:"error"`
	Required []string `json:"required,omitempty"`
}

func (e *ValidationError) Error() string { return e.Message }

// Address is the payer address required for boleto charges.
type Address struct {
	ZipCode      string `json:"zip_code"`
	StreetName   string `json:"street_name"`
	StreetNumber string `json:"street_number"`
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city"`
	FederalUnit  string `json:"federal_unit"`
}

// CardDetails carries the tokenized card and payer data.
type CardDetails struct {
	Token        string   `json:"token"`
	Installments int      `json:"installments"`
	Email        string   `json:"email"`
	FirstName    string   `json:"first_name"`
	LastName     string   `json:"last_name"`
	CPF          string   `json:"cpf"`
	Address      *Address `json:"address,omitempty"`
}

// BoletoDetails carries the payer data required to issue a boleto.
type BoletoDetails struct {
	Name    string  `json:"name"`
	CPF     string  `json:"cpf"`
	Email   string  `json:"email"`
	Address Address `json:"address"`
}

// ChargeRequest is the lightweight checkout charge format.
type ChargeRequest struct {
	OrderID    string          `json:"orderId"`
	ProductKey string          `json:"productKey"`
	Method     string          `json:"method"` // pix | boleto | card
	Bumps      map[string]bool `json:"bumps"`
	Email      string          `json:"email"`
	Card       *CardDetails    `json:"card,omitempty"`
	Boleto     *BoletoDetails  `json:"boleto,omitempty"`
}

type PixData struct {
	CopiaECola string `json:"copia_e_cola"`
	QRBase64   string `json:"qr_base64"`
}

type BoletoData struct {
	TicketURL string `json:"ticket_url"`
}

// ChargeResult is returned to the checkout front end.
type ChargeResult struct {
	Method       string      `json:"method"`
	OrderID      string      `json:"orderId"`
	PaymentID    string      `json:"id,omitempty"`
	Status       string      `json:"status,omitempty"`
	StatusDetail string      `json:"status_detail,omitempty"`
	Pix          *PixData    `json:"pix,omitempty"`
	Boleto       *BoletoData `json:"boleto,omitempty"`
}

// Orchestrator validates charges, talks to the gateway and turns approved
// payment notifications into exactly one recorded sale plus delivery.
type Orchestrator struct {
	Config   *config.Config
	Gateway  PaymentGateway
	Catalog  *catalog.Store
	Orders   *store.OrderRegistry
	Contacts *store.ContactStore
	Leads    *store.LeadStore
	Log      *store.PaymentLog
	Sender   whatsapp.Sender

	// Notify publishes dashboard events. Optional.
	Notify func(event string, payload any)
}

var digitsRe = regexp.MustCompile(`\D+`)

func onlyDigits(s string) string { return digitsRe.ReplaceAllString(s, "") }

func (o *Orchestrator) notificationURL() string {
	base := strings.TrimRight(o.Config.AppBaseURL, "/")
	if base == "" {
		return ""
	}
	return base + "/mp/webhook"
}

// Charge validates and submits a payment for the chosen method.
func (o *Orchestrator) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	if o.Gateway == nil {
		return nil, ErrGatewayNotConfigured
	}

	method := strings.ToLower(strings.TrimSpace(req.Method))
	switch method {
	case "pix", "boleto", "card":
	default:
		method = "pix"
	}

	productKey := catalog.NormalizeKey(req.ProductKey)
	product := o.Catalog.Product(productKey)
	orderID := req.OrderID
	if orderID == "" {
		orderID = o.Orders.NewID()
	}

	amount := ComputeAmount(product, req.Bumps)
	if amount <= 0 {
		return nil, &ValidationError{Message: "transaction_amount attribute can't be null"}
	}

	title := product.Title
	if title == "" {
		title = "Produto " + productKey
	}

	switch method {
	case "card":
		return o.chargeCard(ctx, req, orderID, productKey, title, amount)
	case "boleto":
		return o.chargeBoleto(ctx, req, orderID, productKey, title, amount)
	default:
		return o.chargePix(ctx, req, orderID, productKey, title, amount)
	}
}

func (o *Orchestrator) chargePix(ctx context.Context, req ChargeRequest, orderID, productKey, title string, amount float64) (*ChargeResult, error) {
	email := req.Email
	if email == "" {
		email = "compras@example.com"
	}

	body := map[string]any{
		"transaction_amount": amount,
		"description":        title,
		"payment_method_id":  "pix",
		"external_reference": orderID,
		"payer":              map[string]any{"email": email},
		"binary_mode":        true,
		"metadata":           map[string]any{"orderId": orderID, "productKey": productKey},
	}
	if n := o.notificationURL(); n != "" {
		body["notification_url"] = n
	}

	p, err := o.Gateway.CreatePayment(ctx, body)
	if err != nil {
		return nil, err
	}
	return &ChargeResult{
		Method:       "pix",
		OrderID:      orderID,
		PaymentID:    p.PaymentID(),
		Status:       p.Status,
		StatusDetail: p.StatusDetail,
		Pix: &PixData{
			CopiaECola: p.PointOfInteraction.TransactionData.QRCode,
			QRBase64:   p.PointOfInteraction.TransactionData.QRCodeBase64,
		},
	}, nil
}

func (o *Orchestrator) chargeCard(ctx context.Context, req ChargeRequest, orderID, productKey, title string, amount float64) (*ChargeResult, error) {
	card := req.Card
	if card == nil || card.Token == "" {
		return nil, &ValidationError{Message: "Token do cartão ausente"}
	}

	email := card.Email
	if email == "" {
		email = req.Email
	}
	if email == "" {
		email = "compras@example.com"
	}
	installments := card.Installments
	if installments < 1 {
		installments = 1
	}

	payer := map[string]any{
		"email": email,
		"identification": map[string]any{
			"type":   "CPF",
			"number": onlyDigits(card.CPF),
		},
	}
	if card.FirstName != "" {
		payer["first_name"] = card.FirstName
	}
	if card.LastName != "" {
		payer["last_name"] = card.LastName
	}
	if a := card.Address; a != nil {
		payer["address"] = map[string]any{
			"zip_code":      a.ZipCode,
			"street_name":   a.StreetName,
			"street_number": a.StreetNumber,
			"neighborhood":  a.Neighborhood,
			"city":          a.City,
			"federal_unit":  a.FederalUnit,
		}
	}

	body := map[string]any{
		"transaction_amount": amount,
		"description":        title,
		"token":              card.Token,
		"installments":       installments,
		"external_reference": orderID,
		"binary_mode":        true,
		"capture":            true,
		"payer":              payer,
		"additional_info": map[string]any{
			"items": []map[string]any{{
				"id":         "PROD-" + productKey,
				"title":      title,
				"quantity":   1,
				"unit_price": amount,
			}},
		},
		"metadata": map[string]any{"orderId": orderID, "productKey": productKey},
	}
	if n := o.notificationURL(); n != "" {
		body["notification_url"] = n
	}

	p, err := o.Gateway.CreatePayment(ctx, body)
	if err != nil {
		return nil, err
	}
	return &ChargeResult{
		Method:       "card",
		OrderID:      orderID,
		PaymentID:    p.PaymentID(),
		Status:       p.Status,
		StatusDetail: p.StatusDetail,
	}, nil
}

func (o *Orchestrator) chargeBoleto(ctx context.Context, req ChargeRequest, orderID, productKey, title string, amount float64) (*ChargeResult, error) {
	var b BoletoDetails
	if req.Boleto != nil {
		b = *req.Boleto
	}

	cpf := onlyDigits(b.CPF)
	if len(cpf) != 11 {
		return nil, &ValidationError{Message: "CPF inválido (use 11 dígitos)"}
	}
	if amount < o.Config.BoletoMinAmount {
		return nil, &ValidationError{Message: "Valor mínimo para boleto é R$ 3,00"}
	}

	addr := Address{
		ZipCode:      onlyDigits(b.Address.ZipCode),
		StreetName:   strings.TrimSpace(b.Address.StreetName),
		StreetNumber: strings.TrimSpace(b.Address.StreetNumber),
		Neighborhood: strings.TrimSpace(b.Address.Neighborhood),
		City:         strings.TrimSpace(b.Address.City),
		FederalUnit:  strings.ToUpper(strings.TrimSpace(b.Address.FederalUnit)),
	}

	var missing []string
	if len(addr.ZipCode) < 8 {
		missing = append(missing, "payer.address.zip_code")
	}
	if addr.StreetName == "" {
		missing = append(missing, "payer.address.street_name")
	}
	if addr.StreetNumber == "" {
		missing = append(missing, "payer.address.street_number")
	}
	if addr.Neighborhood == "" {
		missing = append(missing, "payer.address.neighborhood")
	}
	if addr.City == "" {
		missing = append(missing, "payer.address.city")
	}
	if len(addr.FederalUnit) != 2 {
		missing = append(missing, "payer.address.federal_unit (UF)")
	}
	if len(missing) > 0 {
		return nil, &ValidationError{
			Message:  "Endereço do pagador incompleto para boleto",
			Required: missing,
		}
	}

	name := strings.TrimSpace(b.Name)
	firstName, lastName := "Cliente", "Teste"
	if parts := strings.Fields(name); len(parts) > 0 {
		firstName = parts[0]
		if len(parts) > 1 {
			lastName = strings.Join(parts[1:], " ")
		}
	}
	email := strings.TrimSpace(b.Email)
	if email == "" {
		email = "compras@example.com"
	}

	body := map[string]any{
		"transaction_amount": amount,
		"description":        title,
		"payment_method_id":  "bolbradesco",
		"external_reference": orderID,
		"binary_mode":        false,
		"payer": map[string]any{
			"email":      email,
			"first_name": firstName,
			"last_name":  lastName,
			"identification": map[string]any{
				"type":   "CPF",
				"number": cpf,
			},
			"address": map[string]any{
				"zip_code":      addr.ZipCode,
				"street_name":   addr.StreetName,
				"street_number": addr.StreetNumber,
				"neighborhood":  addr.Neighborhood,
				"city":          addr.City,
				"federal_unit":  addr.FederalUnit,
			},
		},
		"metadata": map[string]any{"orderId": orderID, "productKey": productKey},
	}
	if n := o.notificationURL(); n != "" {
		body["notification_url"] = n
	}

	p, err := o.Gateway.CreatePayment(ctx, body)
	if err != nil {
		return nil, err
	}

	ticket := p.TransactionDetails.ExternalResourceURL
	if ticket == "" {
		ticket = p.PointOfInteraction.TransactionData.TicketURL
	}
	return &ChargeResult{
		Method:       "boleto",
		OrderID:      orderID,
		PaymentID:    p.PaymentID(),
		Status:       p.Status,
		StatusDetail: p.StatusDetail,
		Boleto:       &BoletoData{TicketURL: ticket},
	}, nil
}

// PreferenceLink creates a hosted checkout preference for the product and
// returns its redirect URL.
func (o *Orchestrator) PreferenceLink(productKey, orderID string) (string, error) {
	if o.Gateway == nil {
		return "", ErrGatewayNotConfigured
	}
	productKey = catalog.NormalizeKey(productKey)
	product := o.Catalog.Product(productKey)

	title := product.Title
	if title == "" {
		title = "Produto " + productKey
	}
	unitPrice := ParsePrice(product.Price, ParsePrice(o.Config.DefaultPrice, 19.9))
	base := strings.TrimRight(o.Config.AppBaseURL, "/")

	body := map[string]any{
		"items": []map[string]any{{
			"title":       title,
			"quantity":    1,
			"unit_price":  unitPrice,
			"currency_id": "BRL",
		}},
		"binary_mode": true,
		"metadata":    map[string]any{"orderId": orderID, "productKey": productKey},
	}
	if base != "" {
		body["back_urls"] = map[string]any{
			"success": base + "/checkout/sucesso.html",
			"failure": base + "/checkout/falha.html",
			"pending": base + "/checkout/pendente.html",
		}
		body["auto_return"] = "approved"
		body["notification_url"] = base + "/mp/webhook"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	init, _, err := o.Gateway.CreatePreference(ctx, body)
	return init, err
}

// detectMethod normalizes the gateway's method/type pair into the analytics
// method labels.
func detectMethod(methodID, typeID string) string {
	mid := strings.ToLower(methodID)
	typ := strings.ToLower(typeID)
	switch {
	case mid == "pix" || typ == "bank_transfer":
		return "pix"
	case typ == "ticket":
		return "boleto"
	case strings.Contains(typ, "card"):
		return "cartao"
	default:
		return "outro"
	}
}

// Reconcile handles one payment notification: load the payment, record the
// sale at most once and, when the buyer's number is known, deliver the
// product. Duplicate notifications are dropped after the dedupe check.
func (o *Orchestrator) Reconcile(ctx context.Context, paymentID string) error {
	if o.Gateway == nil {
		return ErrGatewayNotConfigured
	}

	p, err := o.Gateway.GetPayment(ctx, paymentID)
	if err != nil {
		return fmt.Errorf("load payment %s: %w", paymentID, err)
	}

	status := strings.ToLower(p.Status)
	log.Printf("[payments] payment %s status=%s detail=%s", paymentID, status, p.StatusDetail)
	if status != "approved" {
		return nil
	}

	orderID := p.MetadataString("order_id", "orderId")
	productKey := catalog.NormalizeKey(p.MetadataString("product_key", "productKey"))
	method := detectMethod(p.PaymentMethodID, p.PaymentTypeID)

	amount := p.TransactionAmount
	if amount == 0 {
		amount = ParsePrice(o.Catalog.Product(productKey).Price, 0)
	}

	var order *models.Order
	if orderID != "" {
		order, err = o.Orders.Resolve(orderID)
		if err != nil && !errors.Is(err, store.ErrOrderNotFound) {
			return err
		}
	}
	waID := ""
	if order != nil {
		waID = order.WaID
		if p.MetadataString("product_key", "productKey") == "" {
			productKey = catalog.NormalizeKey(order.ProductKey)
		}
	}

	inserted, err := o.Log.LogPurchase(models.PaymentEvent{
		PaymentID:  p.PaymentID(),
		OrderID:    orderID,
		ProductKey: productKey,
		Method:     method,
		Amount:     amount,
		WaID:       waID,
	})
	if err != nil {
		return fmt.Errorf("record sale for payment %s: %w", paymentID, err)
	}
	if !inserted {
		log.Printf("[payments] sale already recorded for payment=%s order=%s", paymentID, orderID)
		return nil
	}

	if o.Notify != nil {
		o.Notify("sale_recorded", map[string]any{
			"payment_id": p.PaymentID(),
			"order_id":   orderID,
			"product":    productKey,
			"method":     method,
			"amount":     amount,
		})
	}

	if waID == "" {
		log.Printf("[payments] no contact number for order %q, sale recorded without delivery", orderID)
		return nil
	}

	now := time.Now()
	if err := o.Contacts.MarkPurchased(waID, now); err != nil {
		log.Printf("[payments] mark contact purchased %s: %v", waID, err)
	}
	if err := o.Leads.MarkPurchased(waID); err != nil {
		log.Printf("[payments] mark lead purchased %s: %v", waID, err)
	}

	o.deliver(waID, productKey)

	if err := o.Orders.Remove(orderID); err != nil {
		log.Printf("[payments] remove order %s: %v", orderID, err)
	}
	return nil
}

// deliver sends the confirmation followed by each configured delivery asset.
// Every step is best effort; one failed send never blocks the rest.
func (o *Orchestrator) deliver(to, productKey string) {
	product := o.Catalog.Product(productKey)
	title := product.Title
	if title == "" {
		title = "Produto " + productKey
	}

	o.sendText(to, fmt.Sprintf("✅ Pagamento aprovado!\n\n📦 %s\nObrigado pela compra! Abaixo estão os seus acessos/arquivos.", title))

	if url := product.Delivery.PDFURL; url != "" {
		filename := strings.Join(strings.Fields(title), "_") + ".pdf"
		if err := o.Sender.SendDocument(to, url, filename); err != nil {
			log.Printf("[payments] deliver pdf to %s: %v", to, err)
		}
	}

	if url := product.Delivery.VideoURL; url != "" {
		if whatsapp.LooksLikeVideo(url) {
			if err := o.Sender.SendVideo(to, url, "🎬 Vídeo do "+title); err != nil {
				log.Printf("[payments] deliver video to %s: %v", to, err)
			}
		} else {
			o.sendText(to, "🎬 Acesse o vídeo: "+url)
		}
	}

	if url := product.Delivery.LinkURL; url != "" {
		o.sendText(to, "🔗 Link de acesso: "+url)
	}

	if support := o.Catalog.Get().SupportContact; support != "" {
		o.sendText(to, "Qualquer dúvida, fale com o suporte: "+support)
	}
}

func (o *Orchestrator) sendText(to, body string) {
	if err := o.Sender.SendText(to, body); err != nil {
		log.Printf("[payments] send text to %s: %v", to, err)
	}
}
