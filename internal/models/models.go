package models

import (
	"time"
)

// Contact represents a phone number the bot has interacted with.
// Contacts are never deleted; opting out only flips a flag.
type Contact struct {
	WaID       string    `gorm:"primaryKey" json:"wa_id"` // E.164 phone number
	Name       string    `gorm:"type:varchar(255)" json:"name"`
	LastSeenAt time.Time `json:"last_seen_at"`
	Purchased  bool      `gorm:"default:false" json:"purchased"`
	OptedOut   bool      `gorm:"default:false" json:"opted_out"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Contact) TableName() string {
	return "contacts"
}

// Lead is the campaign-facing view of a contact.
type Lead struct {
	WaID           string     `gorm:"primaryKey" json:"wa_id"`
	Name           string     `gorm:"type:varchar(255)" json:"name"`
	LastIncomingAt *time.Time `json:"last_incoming_at"`
	LastOutgoingAt *time.Time `json:"last_outgoing_at"`
	HasPurchased   bool       `gorm:"default:false" json:"has_purchased"`
	OptInMarketing bool       `gorm:"default:true" json:"opt_in_marketing"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Lead) TableName() string {
	return "leads"
}

// Order links a generated order id to the contact and chosen product while
// payment is pending. Removed after delivery; stale orders are swept by TTL.
type Order struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	WaID       string    `gorm:"index;type:varchar(50)" json:"wa_id"`
	ProductKey string    `gorm:"type:varchar(10)" json:"product_key"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Order) TableName() string {
	return "orders"
}

// Analytics event types.
const (
	EventPurchase      = "purchase"
	EventMessageIn     = "message_in"
	EventCheckoutClick = "checkout_click"
)

// PaymentEvent is an append-only analytics log entry. Purchase events are the
// dedupe record for at-most-once payment processing: at most one purchase row
// per gateway payment id (or per order id when the gateway id is absent).
type PaymentEvent struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Type       string    `gorm:"type:varchar(30);index" json:"type"`
	PaymentID  string    `gorm:"type:varchar(64);index" json:"payment_id"`
	OrderID    string    `gorm:"type:varchar(64);index" json:"order_id"`
	ProductKey string    `gorm:"type:varchar(10)" json:"product_key"`
	Method     string    `gorm:"type:varchar(20)" json:"method"`
	Amount     float64   `json:"amount"`
	WaID       string    `gorm:"type:varchar(50)" json:"wa_id"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (PaymentEvent) TableName() string {
	return "payment_events"
}

// Campaign statuses.
const (
	CampaignDraft    = "draft"
	CampaignRunning  = "running"
	CampaignPaused   = "paused"
	CampaignFinished = "finished"
)

// Campaign messaging policy modes.
const (
	ModeAuto         = "auto"
	ModeOnly24       = "only24"
	ModeOnlyTemplate = "onlyTemplate"
)

// Campaign is a bulk-send job. Filter, policy, content and the pending queue
// are stored as JSON text columns.
type Campaign struct {
	ID      string `gorm:"primaryKey" json:"id"`
	Name    string `gorm:"type:varchar(255)" json:"name"`
	Status  string `gorm:"type:varchar(20);default:'draft'" json:"status"`
	Filter  string `gorm:"type:text" json:"filter"`
	Policy  string `gorm:"type:text" json:"policy"`
	Content string `gorm:"type:text" json:"content"`
	TestTo  string `gorm:"type:varchar(50)" json:"test_to"`
	Queue   string `gorm:"type:text" json:"queue"` // JSON array of pending wa_ids

	QueuedCount  int `gorm:"default:0" json:"queued_count"`
	SentCount    int `gorm:"default:0" json:"sent_count"`
	ErrorCount   int `gorm:"default:0" json:"error_count"`
	SkippedCount int `gorm:"default:0" json:"skipped_count"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Campaign) TableName() string {
	return "campaigns"
}

// CampaignFilter selects queue candidates from the lead store.
type CampaignFilter struct {
	LastIncomingGteDays int  `json:"last_incoming_gte_days"`
	ExcludePaid         bool `json:"exclude_paid"`
}

// CampaignPolicy controls messaging mode and throttle jitter bounds.
type CampaignPolicy struct {
	Mode               string `json:"mode"` // auto | only24 | onlyTemplate
	ThrottleSecondsMin int    `json:"throttle_seconds_min"`
	ThrottleSecondsMax int    `json:"throttle_seconds_max"`
}

// CampaignContent is what gets sent to each recipient.
type CampaignContent struct {
	Text24h        string   `json:"text_24h"`
	TemplateName   string   `json:"template_name"`
	TemplateLang   string   `json:"template_lang"`
	TemplateParams []string `json:"template_params"`
	MediaURL       string   `json:"media_url"`
}

// Setting is a key/value row used for whole-document config storage
// (product catalog).
type Setting struct {
	Key       string    `gorm:"primaryKey;type:varchar(100)" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Setting) TableName() string {
	return "settings"
}
