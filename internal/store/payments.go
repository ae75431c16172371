package store

import (
	"sort"
	"sync"
	"time"

	"whatsapp-commerce/internal/models"

	"gorm.io/gorm"
)

// PaymentLog is the append-only analytics event log. Purchase rows double as
// the dedupe record for at-most-once payment processing.
type PaymentLog struct {
	db *gorm.DB

	// Serializes the purchase check-and-insert so concurrent replays of the
	// same notification cannot both pass the duplicate check.
	mu sync.Mutex
}

func NewPaymentLog(db *gorm.DB) *PaymentLog {
	return &PaymentLog{db: db}
}

// AlreadyLogged reports whether a purchase matching this gateway payment id
// OR this order id was already recorded. Matching on either key means a
// retried charge with a fresh gateway id still counts as the same sale.
func (l *PaymentLog) AlreadyLogged(paymentID, orderID string) (bool, error) {
	var count int64
	q := l.db.Model(&models.PaymentEvent{}).Where("type = ?", models.EventPurchase)
	switch {
	case paymentID != "" && orderID != "":
		q = q.Where("payment_id = ? OR order_id = ?", paymentID, orderID)
	case paymentID != "":
		q = q.Where("payment_id = ?", paymentID)
	case orderID != "":
		q = q.Where("order_id = ?", orderID)
	default:
		return false, nil
	}
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// LogPurchase records a sale unless one already exists for the dedupe key.
// Returns true when the row was inserted, false when it was a duplicate.
func (l *PaymentLog) LogPurchase(ev models.PaymentEvent) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	dup, err := l.AlreadyLogged(ev.PaymentID, ev.OrderID)
	if err != nil {
		return false, err
	}
	if dup {
		return false, nil
	}

	ev.Type = models.EventPurchase
	if err := l.db.Create(&ev).Error; err != nil {
		return false, err
	}
	return true, nil
}

// LogEvent appends a non-purchase event (message_in, checkout_click).
func (l *PaymentLog) LogEvent(ev models.PaymentEvent) error {
	return l.db.Create(&ev).Error
}

// StatsRow aggregates unique purchases per method.
type StatsRow struct {
	Method string  `json:"method"`
	Count  int64   `json:"count"`
	Amount float64 `json:"amount"`
}

// PurchasesByMethod aggregates recorded sales within [from, to].
func (l *PaymentLog) PurchasesByMethod(from, to time.Time) ([]StatsRow, error) {
	var rows []StatsRow
	err := l.db.Model(&models.PaymentEvent{}).
		Select("method, count(*) as count, sum(amount) as amount").
		Where("type = ? AND created_at BETWEEN ? AND ?", models.EventPurchase, from, to).
		Group("method").
		Order("amount DESC").
		Scan(&rows).Error
	return rows, err
}

// UniqueSenders counts distinct contacts with inbound messages in [from, to].
func (l *PaymentLog) UniqueSenders(from, to time.Time) (int64, error) {
	var count int64
	err := l.db.Model(&models.PaymentEvent{}).
		Where("type = ? AND wa_id != ? AND created_at BETWEEN ? AND ?", models.EventMessageIn, "", from, to).
		Distinct("wa_id").
		Count(&count).Error
	return count, err
}

// DailyRow is one calendar day of dashboard activity.
type DailyRow struct {
	Date           string `json:"date"`
	CheckoutClicks int64  `json:"checkout_clicks"`
	UniqueMsgIn    int64  `json:"unique_msg_in"`
	SalesCount     int64  `json:"sales_count"`
}

// DailyStats aggregates clicks, unique inbound senders and sales per day.
func (l *PaymentLog) DailyStats(from, to time.Time) ([]DailyRow, error) {
	byDate := map[string]*DailyRow{}
	get := func(date string) *DailyRow {
		if r, ok := byDate[date]; ok {
			return r
		}
		r := &DailyRow{Date: date}
		byDate[date] = r
		return r
	}

	type dateCount struct {
		Date  string
		Count int64
	}

	var clicks []dateCount
	err := l.db.Model(&models.PaymentEvent{}).
		Select("date(created_at) as date, count(*) as count").
		Where("type = ? AND created_at BETWEEN ? AND ?", models.EventCheckoutClick, from, to).
		Group("date(created_at)").Scan(&clicks).Error
	if err != nil {
		return nil, err
	}
	for _, r := range clicks {
		get(r.Date).CheckoutClicks = r.Count
	}

	var msgs []dateCount
	err = l.db.Model(&models.PaymentEvent{}).
		Select("date(created_at) as date, count(distinct wa_id) as count").
		Where("type = ? AND wa_id != ? AND created_at BETWEEN ? AND ?", models.EventMessageIn, "", from, to).
		Group("date(created_at)").Scan(&msgs).Error
	if err != nil {
		return nil, err
	}
	for _, r := range msgs {
		get(r.Date).UniqueMsgIn = r.Count
	}

	var sales []dateCount
	err = l.db.Model(&models.PaymentEvent{}).
		Select("date(created_at) as date, count(*) as count").
		Where("type = ? AND created_at BETWEEN ? AND ?", models.EventPurchase, from, to).
		Group("date(created_at)").Scan(&sales).Error
	if err != nil {
		return nil, err
	}
	for _, r := range sales {
		get(r.Date).SalesCount = r.Count
	}

	rows := make([]DailyRow, 0, len(byDate))
	for _, r := range byDate {
		rows = append(rows, *r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date < rows[j].Date })
	return rows, nil
}

// CountEvents returns how many events of the given type fall within [from, to].
func (l *PaymentLog) CountEvents(eventType string, from, to time.Time) (int64, error) {
	var count int64
	err := l.db.Model(&models.PaymentEvent{}).
		Where("type = ? AND created_at BETWEEN ? AND ?", eventType, from, to).
		Count(&count).Error
	return count, err
}

// HasApproved reports whether a purchase exists for the payment id or order id.
// Used by the checkout page to poll for PIX approval.
func (l *PaymentLog) HasApproved(paymentID, orderID string) (bool, error) {
	if paymentID == "" && orderID == "" {
		return false, nil
	}
	var count int64
	q := l.db.Model(&models.PaymentEvent{}).Where("type = ?", models.EventPurchase)
	if paymentID != "" && orderID != "" {
		q = q.Where("payment_id = ? OR order_id = ?", paymentID, orderID)
	} else if paymentID != "" {
		q = q.Where("payment_id = ?", paymentID)
	} else {
		q = q.Where("order_id = ?", orderID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
