package store

import (
	"time"

	"whatsapp-commerce/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ContactStore is the durable record of every phone number seen.
type ContactStore struct {
	db *gorm.DB
}

func NewContactStore(db *gorm.DB) *ContactStore {
	return &ContactStore{db: db}
}

// Touch upserts the contact and refreshes last-seen. The name is only
// overwritten when the incoming profile name is non-empty.
func (s *ContactStore) Touch(waID, name string, seenAt time.Time) error {
	contact := models.Contact{WaID: waID, Name: name, LastSeenAt: seenAt}
	assign := map[string]interface{}{"last_seen_at": seenAt}
	if name != "" {
		assign["name"] = name
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "wa_id"}},
		DoUpdates: clause.Assignments(assign),
	}).Create(&contact).Error
}

func (s *ContactStore) Get(waID string) (*models.Contact, error) {
	var contact models.Contact
	if err := s.db.First(&contact, "wa_id = ?", waID).Error; err != nil {
		return nil, err
	}
	return &contact, nil
}

// SetOptOut flips the opt-out flag, creating the contact if it was never seen.
func (s *ContactStore) SetOptOut(waID string, optedOut bool) error {
	contact := models.Contact{WaID: waID, OptedOut: optedOut, LastSeenAt: time.Now()}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "wa_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"opted_out": optedOut}),
	}).Create(&contact).Error
}

// IsOptedOut reports whether the contact asked not to receive campaigns.
// Unknown contacts are not opted out.
func (s *ContactStore) IsOptedOut(waID string) bool {
	var contact models.Contact
	if err := s.db.First(&contact, "wa_id = ?", waID).Error; err != nil {
		return false
	}
	return contact.OptedOut
}

// MarkPurchased flags the contact as a buyer and refreshes last-seen.
func (s *ContactStore) MarkPurchased(waID string, at time.Time) error {
	contact := models.Contact{WaID: waID, Purchased: true, LastSeenAt: at}
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "wa_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"purchased":    true,
			"last_seen_at": at,
		}),
	}).Create(&contact).Error
}
