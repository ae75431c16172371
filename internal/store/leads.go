package store

import (
	"time"

	"whatsapp-commerce/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LeadStore holds the campaign-facing view of contacts.
type LeadStore struct {
	db *gorm.DB
}

func NewLeadStore(db *gorm.DB) *LeadStore {
	return &LeadStore{db: db}
}

// UpsertIncoming records an inbound message from the lead, creating it with
// marketing opt-in on first sight.
func (s *LeadStore) UpsertIncoming(waID, name string, at time.Time) error {
	lead := models.Lead{WaID: waID, Name: name, LastIncomingAt: &at, OptInMarketing: true}
	assign := map[string]interface{}{"last_incoming_at": at}
	if name != "" {
		assign["name"] = name
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "wa_id"}},
		DoUpdates: clause.Assignments(assign),
	}).Create(&lead).Error
}

func (s *LeadStore) Get(waID string) (*models.Lead, error) {
	var lead models.Lead
	if err := s.db.First(&lead, "wa_id = ?", waID).Error; err != nil {
		return nil, err
	}
	return &lead, nil
}

// SetOptIn flips the marketing opt-in flag, creating the lead if needed.
// The insert column list is explicit: the column carries a true default, and
// an omitted false value would let the default win on first insert.
func (s *LeadStore) SetOptIn(waID string, optIn bool) error {
	lead := models.Lead{WaID: waID, OptInMarketing: optIn}
	return s.db.Select("wa_id", "opt_in_marketing", "created_at", "updated_at").
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "wa_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"opt_in_marketing": optIn}),
		}).Create(&lead).Error
}

// MarkPurchased flags the lead as a buyer.
func (s *LeadStore) MarkPurchased(waID string) error {
	return s.db.Model(&models.Lead{}).Where("wa_id = ?", waID).
		Update("has_purchased", true).Error
}

// MarkOutgoing records a campaign send to the lead.
func (s *LeadStore) MarkOutgoing(waID string, at time.Time) error {
	return s.db.Model(&models.Lead{}).Where("wa_id = ?", waID).
		Update("last_outgoing_at", at).Error
}

// Candidates returns the wa_ids eligible for a campaign: opted in, with a
// last inbound message at least minDays old, optionally excluding buyers.
// minDays == 0 only requires that the lead has messaged at least once.
func (s *LeadStore) Candidates(filter models.CampaignFilter, now time.Time) ([]string, error) {
	q := s.db.Model(&models.Lead{}).
		Where("opt_in_marketing = ?", true).
		Where("last_incoming_at IS NOT NULL")
	if filter.LastIncomingGteDays > 0 {
		cutoff := now.Add(-time.Duration(filter.LastIncomingGteDays) * 24 * time.Hour)
		q = q.Where("last_incoming_at <= ?", cutoff)
	}
	if filter.ExcludePaid {
		q = q.Where("has_purchased = ?", false)
	}

	var waIDs []string
	if err := q.Order("wa_id").Pluck("wa_id", &waIDs).Error; err != nil {
		return nil, err
	}
	return waIDs, nil
}
