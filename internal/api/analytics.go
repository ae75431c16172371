package api

import (
	"log"
	"net/http"
	"strings"
	"time"

	"whatsapp-commerce/internal/catalog"
	"whatsapp-commerce/internal/models"
	"whatsapp-commerce/internal/store"

	"github.com/gin-gonic/gin"
)

type AnalyticsHandler struct {
	Log *store.PaymentLog
}

func NewAnalyticsHandler(paymentLog *store.PaymentLog) *AnalyticsHandler {
	return &AnalyticsHandler{Log: paymentLog}
}

// CheckoutClick records a click on the checkout link for funnel stats.
func (h *AnalyticsHandler) CheckoutClick(c *gin.Context) {
	var req struct {
		OrderID    string `json:"orderId"`
		ProductKey string `json:"productKey"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false})
		return
	}
	if len(req.OrderID) > 64 {
		req.OrderID = req.OrderID[:64]
	}
	ev := models.PaymentEvent{
		Type:       models.EventCheckoutClick,
		OrderID:    req.OrderID,
		ProductKey: catalog.NormalizeKey(req.ProductKey),
	}
	if err := h.Log.LogEvent(ev); err != nil {
		log.Printf("[analytics:click] %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Stats returns totals, per-day series and the sales-by-method breakdown for
// the dashboard. Defaults to the last 7 days.
func (h *AnalyticsHandler) Stats(c *gin.Context) {
	now := time.Now()
	from := now.AddDate(0, 0, -6).Truncate(24 * time.Hour)
	to := now

	if q := c.Query("from"); q != "" {
		if t, err := time.ParseInLocation("2006-01-02", q, time.Local); err == nil {
			from = t
		}
	}
	if q := c.Query("to"); q != "" {
		if t, err := time.ParseInLocation("2006-01-02", q, time.Local); err == nil {
			to = t.Add(24*time.Hour - time.Second)
		}
	}

	byMethod, err := h.Log.PurchasesByMethod(from, to)
	if err != nil {
		log.Printf("[analytics:stats] %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false})
		return
	}
	var salesCount int64
	var revenue float64
	for _, row := range byMethod {
		salesCount += row.Count
		revenue += row.Amount
	}

	clicks, err := h.Log.CountEvents(models.EventCheckoutClick, from, to)
	if err != nil {
		log.Printf("[analytics:stats] %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false})
		return
	}
	uniqueMsgIn, err := h.Log.UniqueSenders(from, to)
	if err != nil {
		log.Printf("[analytics:stats] %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false})
		return
	}
	daily, err := h.Log.DailyStats(from, to)
	if err != nil {
		log.Printf("[analytics:stats] %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok": true,
		"totals": gin.H{
			"checkout_clicks": clicks,
			"unique_msg_in":   uniqueMsgIn,
			"sales_count":     salesCount,
			"revenue":         revenue,
		},
		"daily": daily,
		"payments": gin.H{
			"by_method": byMethod,
			"totals":    gin.H{"count": salesCount, "amount": revenue},
		},
	})
}

// PayStatus lets the checkout page poll whether a payment was approved.
func (h *AnalyticsHandler) PayStatus(c *gin.Context) {
	paymentID := strings.TrimSpace(c.Query("payment_id"))
	orderID := strings.TrimSpace(c.Query("orderId"))

	approved, err := h.Log.HasApproved(paymentID, orderID)
	if err != nil {
		log.Printf("[analytics:pay-status] %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "approved": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "approved": approved})
}
