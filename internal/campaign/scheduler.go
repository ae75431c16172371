package campaign

import (
	"encoding/json"
	"errors"
	"log"
	"math/rand"
	"sync"
	"time"

	"whatsapp-commerce/internal/catalog"
	"whatsapp-commerce/internal/models"
	"whatsapp-commerce/internal/store"
	"whatsapp-commerce/internal/whatsapp"
)

var (
	ErrEmptyContent = errors.New("campaign needs a 24h text or a template")
	ErrNoRecipients = errors.New("campaign matched no recipients")
)

const idlePoll = 5 * time.Second

// Scheduler drains running campaigns one message at a time through a single
// worker goroutine, so the throttle applies across all campaigns at once.
type Scheduler struct {
	Campaigns *store.CampaignStore
	Contacts  *store.ContactStore
	Leads     *store.LeadStore
	Catalog   *catalog.Store
	Sender    whatsapp.Sender

	// Notify publishes dashboard progress events. Optional.
	Notify func(event string, payload any)

	// Overridable in tests.
	sleep func(time.Duration)
	rand  func() float64
	now   func() time.Time

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	wake    chan struct{}
}

func NewScheduler(campaigns *store.CampaignStore, contacts *store.ContactStore,
	leads *store.LeadStore, cat *catalog.Store, sender whatsapp.Sender) *Scheduler {
	return &Scheduler{
		Campaigns: campaigns,
		Contacts:  contacts,
		Leads:     leads,
		Catalog:   cat,
		Sender:    sender,
		sleep:     time.Sleep,
		rand:      rand.Float64,
		now:       time.Now,
		wake:      make(chan struct{}, 1),
	}
}

// Run starts the worker goroutine. Safe to call once.
func (s *Scheduler) Run() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	go s.loop(s.stop)
}

// Shutdown stops the worker after the current step.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.stop)
}

// Wake nudges the worker to look for queued work immediately.
func (s *Scheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		camp, err := s.Campaigns.NextRunning()
		if err != nil {
			log.Printf("[campaign] load next campaign: %v", err)
			camp = nil
		}
		if camp == nil {
			select {
			case <-stop:
				return
			case <-s.wake:
			case <-time.After(idlePoll):
			}
			continue
		}

		s.step(camp, stop)
	}
}

// Start builds the recipient queue and transitions the campaign to running.
func (s *Scheduler) Start(id string) (int, error) {
	camp, err := s.Campaigns.Get(id)
	if err != nil {
		return 0, err
	}

	var content models.CampaignContent
	_ = json.Unmarshal([]byte(camp.Content), &content)
	if content.Text24h == "" && content.TemplateName == "" {
		return 0, ErrEmptyContent
	}

	var filter models.CampaignFilter
	_ = json.Unmarshal([]byte(camp.Filter), &filter)

	var queue []string
	if camp.TestTo != "" {
		to := whatsapp.NormalizePhone(camp.TestTo)
		if to != "" && !s.Contacts.IsOptedOut(to) {
			queue = []string{to}
		}
	} else {
		candidates, err := s.Leads.Candidates(filter, s.now())
		if err != nil {
			return 0, err
		}
		for _, waID := range candidates {
			if s.Contacts.IsOptedOut(waID) {
				continue
			}
			queue = append(queue, waID)
		}
	}
	if len(queue) == 0 {
		return 0, ErrNoRecipients
	}

	store.EncodeQueue(camp, queue)
	camp.QueuedCount += len(queue)
	camp.Status = models.CampaignRunning
	if err := s.Campaigns.Save(camp); err != nil {
		return 0, err
	}

	log.Printf("[campaign] %s started queued=%d", camp.ID, len(queue))
	s.Wake()
	return len(queue), nil
}

// Pause halts the campaign before its next step.
func (s *Scheduler) Pause(id string) error {
	return s.Campaigns.SetStatus(id, models.CampaignPaused)
}

// Resume puts a paused campaign back in the running state.
func (s *Scheduler) Resume(id string) error {
	if err := s.Campaigns.SetStatus(id, models.CampaignRunning); err != nil {
		return err
	}
	s.Wake()
	return nil
}

// step sleeps the throttle jitter, re-checks the campaign is still running,
// then sends to the head of the queue.
func (s *Scheduler) step(camp *models.Campaign, stop <-chan struct{}) {
	var policy models.CampaignPolicy
	_ = json.Unmarshal([]byte(camp.Policy), &policy)

	s.sleep(s.jitter(policy))
	select {
	case <-stop:
		return
	default:
	}

	// Reload: a pause or edit may have landed while sleeping.
	camp, err := s.Campaigns.Get(camp.ID)
	if err != nil {
		log.Printf("[campaign] reload: %v", err)
		return
	}
	if camp.Status != models.CampaignRunning {
		return
	}

	queue := store.DecodeQueue(camp)
	if len(queue) == 0 {
		s.finish(camp)
		return
	}
	to := queue[0]
	store.EncodeQueue(camp, queue[1:])

	switch s.sendOne(camp, to, policy) {
	case sendOK:
		camp.SentCount++
		_ = s.Leads.MarkOutgoing(to, s.now())
	case sendSkipped:
		camp.SkippedCount++
	case sendFailed:
		camp.ErrorCount++
	}

	if len(queue) == 1 {
		camp.Status = models.CampaignFinished
	}
	if err := s.Campaigns.SaveProgress(camp); err != nil {
		log.Printf("[campaign] save %s: %v", camp.ID, err)
	}
	s.publishProgress(camp)
}

type sendOutcome int

const (
	sendOK sendOutcome = iota
	sendSkipped
	sendFailed
)

// sendOne delivers the campaign content to a single recipient, choosing
// between free-form text and a template based on the 24h service window.
func (s *Scheduler) sendOne(camp *models.Campaign, to string, policy models.CampaignPolicy) sendOutcome {
	if s.Contacts.IsOptedOut(to) {
		log.Printf("[campaign] %s skip opted-out %s", camp.ID, to)
		return sendSkipped
	}

	var content models.CampaignContent
	_ = json.Unmarshal([]byte(camp.Content), &content)

	name := ""
	outside24h := true
	if lead, err := s.Leads.Get(to); err == nil {
		name = lead.Name
		if lead.LastIncomingAt != nil {
			outside24h = s.now().Sub(*lead.LastIncomingAt) > 24*time.Hour
		}
	}

	mode := policy.Mode
	if mode == "" {
		mode = models.ModeAuto
	}
	useTemplate := mode == models.ModeOnlyTemplate || (mode == models.ModeAuto && outside24h)

	if useTemplate && content.TemplateName != "" {
		err := s.Sender.SendTemplate(to, whatsapp.TemplateSend{
			Name:     content.TemplateName,
			Language: content.TemplateLang,
			Params:   content.TemplateParams,
			MediaURL: content.MediaURL,
		})
		if err == nil {
			s.sendChoiceButtons(to)
			log.Printf("[campaign] %s template sent to %s", camp.ID, to)
			return sendOK
		}
		log.Printf("[campaign] %s template to %s failed, trying text: %v", camp.ID, to, err)
	}

	// Free-form path requires the window to be open unless mode allows it.
	if mode == models.ModeOnly24 && outside24h {
		log.Printf("[campaign] %s skip %s: outside 24h window, requires template", camp.ID, to)
		return sendSkipped
	}
	if mode == models.ModeAuto && outside24h {
		// Template was the only option and it failed or is unset.
		log.Printf("[campaign] %s skip %s: outside 24h window, requires template", camp.ID, to)
		return sendSkipped
	}
	if content.Text24h == "" {
		return sendSkipped
	}

	if content.MediaURL != "" {
		caption := s.Catalog.Personalize(firstLine(content.Text24h, 900), name)
		var err error
		switch {
		case whatsapp.LooksLikeVideo(content.MediaURL):
			err = s.Sender.SendVideo(to, content.MediaURL, caption)
		case whatsapp.LooksLikeImage(content.MediaURL):
			err = s.Sender.SendImage(to, content.MediaURL, caption)
		default:
			err = s.Sender.SendText(to, "🎬 Veja: "+content.MediaURL)
		}
		if err != nil {
			log.Printf("[campaign] %s media to %s: %v", camp.ID, to, err)
		}
	}

	if err := s.Sender.SendText(to, s.Catalog.Personalize(content.Text24h, name)); err != nil {
		log.Printf("[campaign] %s text to %s: %v", camp.ID, to, err)
		return sendFailed
	}

	s.sendChoiceButtons(to)
	log.Printf("[campaign] %s sent to %s", camp.ID, to)
	return sendOK
}

func (s *Scheduler) sendChoiceButtons(to string) {
	cat := s.Catalog.Get()
	err := s.Sender.SendButtons(to, "Escolha uma opção:", []whatsapp.Button{
		{ID: "CHOOSE_A", Title: buttonLabel(cat, "A")},
		{ID: "CHOOSE_B", Title: buttonLabel(cat, "B")},
		{ID: "UNSUB", Title: "Não receber mensagens"},
	})
	if err != nil {
		log.Printf("[campaign] buttons to %s: %v", to, err)
	}
}

func buttonLabel(cat catalog.Catalog, key string) string {
	p := cat.Products[key]
	if p.Label != "" {
		return p.Label
	}
	return "Produto " + key
}

func (s *Scheduler) finish(camp *models.Campaign) {
	camp.Status = models.CampaignFinished
	if err := s.Campaigns.SaveProgress(camp); err != nil {
		log.Printf("[campaign] finish %s: %v", camp.ID, err)
	}
	s.publishProgress(camp)
	log.Printf("[campaign] %s finished sent=%d errors=%d skipped=%d",
		camp.ID, camp.SentCount, camp.ErrorCount, camp.SkippedCount)
}

func (s *Scheduler) publishProgress(camp *models.Campaign) {
	if s.Notify == nil {
		return
	}
	s.Notify("campaign_progress", map[string]any{
		"id":      camp.ID,
		"status":  camp.Status,
		"queued":  camp.QueuedCount,
		"sent":    camp.SentCount,
		"errors":  camp.ErrorCount,
		"skipped": camp.SkippedCount,
	})
}

// jitter draws a uniform delay in [min, max] seconds.
func (s *Scheduler) jitter(policy models.CampaignPolicy) time.Duration {
	min := policy.ThrottleSecondsMin
	if min < 0 {
		min = 0
	}
	max := policy.ThrottleSecondsMax
	if max < min {
		max = min
	}
	sec := float64(min) + s.rand()*float64(max-min)
	return time.Duration(sec * float64(time.Second))
}

func firstLine(text string, max int) string {
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			text = text[:i]
			break
		}
	}
	return whatsapp.Truncate(text, max)
}
