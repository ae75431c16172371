package store

import (
	"errors"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"whatsapp-commerce/internal/models"

	"gorm.io/gorm"
)

var ErrOrderNotFound = errors.New("order not found")

// OrderRegistry maps generated order ids to the contact and product they were
// issued for, between offer and payment.
type OrderRegistry struct {
	db  *gorm.DB
	seq atomic.Uint64
}

func NewOrderRegistry(db *gorm.DB) *OrderRegistry {
	return &OrderRegistry{db: db}
}

// newOrderID builds a short time-based token. The monotonic counter keeps ids
// unique under bursty creation within the same millisecond.
func (r *OrderRegistry) newOrderID(now time.Time) string {
	ts := strconv.FormatInt(now.UnixMilli(), 36)
	n := strconv.FormatUint(r.seq.Add(1)%(36*36), 36)
	return strings.ToUpper("ORD-" + ts + "-" + n)
}

// NewID issues an order id without registering it. Used by checkout entry
// points that have no contact number yet.
func (r *OrderRegistry) NewID() string {
	return r.newOrderID(time.Now())
}

// Create issues a fresh order id for the contact and product.
func (r *OrderRegistry) Create(waID, productKey string) (string, error) {
	order := models.Order{
		ID:         r.newOrderID(time.Now()),
		WaID:       waID,
		ProductKey: productKey,
	}
	if err := r.db.Create(&order).Error; err != nil {
		return "", err
	}
	return order.ID, nil
}

// Resolve returns the order for the given id, or ErrOrderNotFound.
func (r *OrderRegistry) Resolve(orderID string) (*models.Order, error) {
	var order models.Order
	if err := r.db.First(&order, "id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// Remove deletes the order after delivery. Removing an already-removed or
// unknown id is a no-op.
func (r *OrderRegistry) Remove(orderID string) error {
	return r.db.Delete(&models.Order{}, "id = ?", orderID).Error
}

// SweepOlderThan purges orders that never resolved into a payment.
func (r *OrderRegistry) SweepOlderThan(age time.Duration) (int64, error) {
	cutoff := time.Now().Add(-age)
	res := r.db.Delete(&models.Order{}, "created_at < ?", cutoff)
	return res.RowsAffected, res.Error
}
