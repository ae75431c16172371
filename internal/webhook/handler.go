package webhook

import (
	"context"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"whatsapp-commerce/internal/config"
	"whatsapp-commerce/internal/conversation"
	"whatsapp-commerce/internal/models"
	"whatsapp-commerce/internal/payments"
	"whatsapp-commerce/internal/store"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	Config       *config.Config
	Engine       *conversation.Engine
	Contacts     *store.ContactStore
	Leads        *store.LeadStore
	Log          *store.PaymentLog
	Orchestrator *payments.Orchestrator

	// Notify publishes dashboard events. Optional.
	Notify func(event string, payload any)
}

func NewHandler(cfg *config.Config, engine *conversation.Engine, contacts *store.ContactStore,
	leads *store.LeadStore, paymentLog *store.PaymentLog, orch *payments.Orchestrator) *Handler {
	return &Handler{
		Config:       cfg,
		Engine:       engine,
		Contacts:     contacts,
		Leads:        leads,
		Log:          paymentLog,
		Orchestrator: orch,
	}
}

func (h *Handler) VerifyWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode != "" && token != "" {
		if mode == "subscribe" && token == h.Config.VerifyToken {
			log.Println("Webhook verified successfully!")
			c.String(http.StatusOK, challenge)
		} else {
			c.Status(http.StatusForbidden)
		}
	} else {
		c.Status(http.StatusBadRequest)
	}
}

// HandleMessage acks the platform immediately and processes the message in
// the background; the Cloud API retries on slow responses.
func (h *Handler) HandleMessage(c *gin.Context) {
	var payload Payload
	if err := c.ShouldBindJSON(&payload); err != nil {
		log.Printf("Error binding JSON: %v", err)
		c.Status(http.StatusBadRequest)
		return
	}
	c.Status(http.StatusOK)

	go h.process(payload)
}

func (h *Handler) process(payload Payload) {
	if len(payload.Entry) == 0 || len(payload.Entry[0].Changes) == 0 {
		return
	}
	value := payload.Entry[0].Changes[0].Value
	if len(value.Messages) == 0 {
		// Delivery/read statuses need no handling.
		return
	}
	msg := value.Messages[0]

	// Drop echoes of our own outbound messages.
	if msg.From == value.Metadata.PhoneNumberID {
		return
	}

	name := ""
	if len(value.Contacts) > 0 {
		name = value.Contacts[0].Profile.Name
	}

	now := time.Now()
	if err := h.Contacts.Touch(msg.From, name, now); err != nil {
		log.Printf("[webhook] touch contact %s: %v", msg.From, err)
	}
	if err := h.Leads.UpsertIncoming(msg.From, name, now); err != nil {
		log.Printf("[webhook] upsert lead %s: %v", msg.From, err)
	}
	if err := h.Log.LogEvent(models.PaymentEvent{Type: models.EventMessageIn, WaID: msg.From}); err != nil {
		log.Printf("[webhook] log message_in: %v", err)
	}

	if h.Notify != nil {
		h.Notify("inbound_message", map[string]any{
			"from": msg.From,
			"name": name,
			"type": msg.Type,
		})
	}

	in := conversation.Inbound{
		From:     msg.From,
		Name:     name,
		ButtonID: strings.ToUpper(msg.ButtonPayload()),
	}
	if msg.Type == "text" {
		in.Text = msg.Text.Body
	}
	if in.ButtonID == "" && in.Text == "" {
		log.Printf("[webhook] ignoring %s message from %s", msg.Type, msg.From)
		return
	}
	h.Engine.HandleIncoming(in)
}

var paymentIDTailRe = regexp.MustCompile(`(\d{6,})$`)

// paymentNotification is the gateway notification in any of its formats:
// webhook v2 (type + data.id), IPN (topic + resource URL) and query-only.
type paymentNotification struct {
	Topic    string `json:"topic"`
	Type     string `json:"type"`
	Resource string `json:"resource"`
	ID       any    `json:"id"`
	Data     struct {
		ID string `json:"id"`
	} `json:"data"`
}

// extract resolves the topic and payment id, preferring body fields over
// query parameters and trimming resource URLs down to the trailing digit run.
func (n *paymentNotification) extract(query func(string) string) (topic, id string) {
	topic = strings.ToLower(firstNonEmpty(
		n.Topic, query("topic"), n.Type, query("type")))

	id = firstNonEmpty(
		n.Data.ID,
		query("data.id"), query("data_id"),
		n.Resource, query("resource"),
		anyToString(n.ID), query("id"))
	if m := paymentIDTailRe.FindStringSubmatch(id); m != nil {
		id = m[1]
	}
	return topic, id
}

// HandlePaymentNotification is the payment gateway webhook (GET and POST).
// Acks first; reconciliation runs in the background.
func (h *Handler) HandlePaymentNotification(c *gin.Context) {
	var body paymentNotification
	_ = c.ShouldBindJSON(&body)
	c.Status(http.StatusOK)

	topic, id := body.extract(c.Query)

	if topic != "payment" || id == "" {
		log.Printf("[webhook] payment notification ignored topic=%q id=%q", topic, id)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := h.Orchestrator.Reconcile(ctx, id); err != nil {
			log.Printf("[webhook] reconcile payment %s: %v", id, err)
		}
	}()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// anyToString handles notification ids that arrive as JSON numbers.
func anyToString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatInt(int64(t), 10)
	default:
		return ""
	}
}
