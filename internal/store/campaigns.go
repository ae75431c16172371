package store

import (
	"encoding/json"
	"errors"

	"whatsapp-commerce/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrCampaignNotFound = errors.New("campaign not found")

// CampaignStore persists campaigns together with their pending queue and
// per-campaign statistics.
type CampaignStore struct {
	db *gorm.DB
}

func NewCampaignStore(db *gorm.DB) *CampaignStore {
	return &CampaignStore{db: db}
}

// Create stores a new draft campaign.
func (s *CampaignStore) Create(name string, filter models.CampaignFilter, policy models.CampaignPolicy, content models.CampaignContent, testTo string) (*models.Campaign, error) {
	filterJSON, _ := json.Marshal(filter)
	policyJSON, _ := json.Marshal(policy)
	contentJSON, _ := json.Marshal(content)

	camp := models.Campaign{
		ID:      "CAMP-" + uuid.NewString(),
		Name:    name,
		Status:  models.CampaignDraft,
		Filter:  string(filterJSON),
		Policy:  string(policyJSON),
		Content: string(contentJSON),
		TestTo:  testTo,
		Queue:   "[]",
	}
	if err := s.db.Create(&camp).Error; err != nil {
		return nil, err
	}
	return &camp, nil
}

func (s *CampaignStore) Get(id string) (*models.Campaign, error) {
	var camp models.Campaign
	if err := s.db.First(&camp, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCampaignNotFound
		}
		return nil, err
	}
	return &camp, nil
}

func (s *CampaignStore) List() ([]models.Campaign, error) {
	var camps []models.Campaign
	if err := s.db.Order("created_at DESC").Find(&camps).Error; err != nil {
		return nil, err
	}
	if camps == nil {
		camps = []models.Campaign{}
	}
	return camps, nil
}

// Save persists the full campaign row (queue, stats and status included).
func (s *CampaignStore) Save(camp *models.Campaign) error {
	return s.db.Save(camp).Error
}

// SaveProgress persists the queue and counters after a worker step without
// touching the status column, so a pause issued while a send was in flight is
// not overwritten. A finished status is only applied over running.
func (s *CampaignStore) SaveProgress(camp *models.Campaign) error {
	err := s.db.Model(&models.Campaign{}).Where("id = ?", camp.ID).
		Updates(map[string]interface{}{
			"queue":         camp.Queue,
			"sent_count":    camp.SentCount,
			"error_count":   camp.ErrorCount,
			"skipped_count": camp.SkippedCount,
		}).Error
	if err != nil {
		return err
	}
	if camp.Status == models.CampaignFinished {
		return s.db.Model(&models.Campaign{}).
			Where("id = ? AND status = ?", camp.ID, models.CampaignRunning).
			Update("status", models.CampaignFinished).Error
	}
	return nil
}

// SetStatus transitions the campaign status.
func (s *CampaignStore) SetStatus(id, status string) error {
	res := s.db.Model(&models.Campaign{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrCampaignNotFound
	}
	return nil
}

// NextRunning returns the oldest running campaign with a non-empty queue,
// or nil when there is no campaign work left.
func (s *CampaignStore) NextRunning() (*models.Campaign, error) {
	var camp models.Campaign
	err := s.db.Where("status = ? AND queue != ? AND queue != ?", models.CampaignRunning, "[]", "").
		Order("created_at").First(&camp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &camp, nil
}

// DecodeQueue parses the pending recipient list.
func DecodeQueue(camp *models.Campaign) []string {
	var queue []string
	if camp.Queue != "" {
		_ = json.Unmarshal([]byte(camp.Queue), &queue)
	}
	return queue
}

// EncodeQueue stores the pending recipient list back on the campaign.
func EncodeQueue(camp *models.Campaign, queue []string) {
	if queue == nil {
		queue = []string{}
	}
	b, _ := json.Marshal(queue)
	camp.Queue = string(b)
}
