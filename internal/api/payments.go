package api

import (
	"errors"
	"log"
	"net/http"

	"whatsapp-commerce/internal/catalog"
	"whatsapp-commerce/internal/payments"
	"whatsapp-commerce/internal/store"

	"github.com/gin-gonic/gin"
)

type PaymentHandler struct {
	Orchestrator *payments.Orchestrator
	Orders       *store.OrderRegistry
}

func NewPaymentHandler(orch *payments.Orchestrator, orders *store.OrderRegistry) *PaymentHandler {
	return &PaymentHandler{Orchestrator: orch, Orders: orders}
}

// ProcessPayment charges the checkout request: PIX, boleto or tokenized card.
func (h *PaymentHandler) ProcessPayment(c *gin.Context) {
	var req payments.ChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid request body"})
		return
	}

	result, err := h.Orchestrator.Charge(c.Request.Context(), req)
	if err != nil {
		var verr *payments.ValidationError
		switch {
		case errors.As(err, &verr):
			resp := gin.H{"ok": false, "error": verr.Message}
			if len(verr.Required) > 0 {
				resp["required"] = verr.Required
			}
			c.JSON(http.StatusBadRequest, resp)
		case errors.Is(err, payments.ErrGatewayNotConfigured):
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "MP_ACCESS_TOKEN ausente"})
		default:
			log.Printf("[mp:process-payment] %v", err)
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":            true,
		"method":        result.Method,
		"orderId":       result.OrderID,
		"id":            result.PaymentID,
		"status":        result.Status,
		"status_detail": result.StatusDetail,
		"pix":           result.Pix,
		"boleto":        result.Boleto,
	})
}

// CreatePreference returns a hosted checkout link for the product.
func (h *PaymentHandler) CreatePreference(c *gin.Context) {
	var req struct {
		ProductKey string `json:"productKey"`
		OrderID    string `json:"orderId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid request body"})
		return
	}

	orderID := req.OrderID
	if orderID == "" {
		orderID = h.Orders.NewID()
	}

	link, err := h.Orchestrator.PreferenceLink(catalog.NormalizeKey(req.ProductKey), orderID)
	if err != nil {
		if errors.Is(err, payments.ErrGatewayNotConfigured) {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "MP_ACCESS_TOKEN não configurado"})
			return
		}
		log.Printf("[mp:create-preference] %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "Falha ao criar preferência"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "orderId": orderID, "init_point": link})
}

// Checkout redirects the browser straight to the hosted checkout.
func (h *PaymentHandler) Checkout(c *gin.Context) {
	productKey := catalog.NormalizeKey(c.Query("product"))
	orderID := c.Query("orderId")
	if orderID == "" {
		orderID = h.Orders.NewID()
	}

	link, err := h.Orchestrator.PreferenceLink(productKey, orderID)
	if err != nil {
		if errors.Is(err, payments.ErrGatewayNotConfigured) {
			c.String(http.StatusBadRequest, "Config ausente: MP_ACCESS_TOKEN")
			return
		}
		log.Printf("[mp:checkout] %v", err)
		c.String(http.StatusInternalServerError, "Falha ao redirecionar para o checkout")
		return
	}
	c.Redirect(http.StatusFound, link)
}
