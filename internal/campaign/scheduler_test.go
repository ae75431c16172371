package campaign

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"whatsapp-commerce/internal/catalog"
	"whatsapp-commerce/internal/database"
	"whatsapp-commerce/internal/models"
	"whatsapp-commerce/internal/store"
	"whatsapp-commerce/internal/whatsapp"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeSender struct {
	Texts     []string
	To        []string
	Templates []string
	FailText  bool
	OnSend    func()
}

func (f *fakeSender) SendText(to, body string) error {
	if f.OnSend != nil {
		f.OnSend()
	}
	if f.FailText {
		return errors.New("send rejected")
	}
	f.To = append(f.To, to)
	f.Texts = append(f.Texts, body)
	return nil
}
func (f *fakeSender) SendButtons(to, body string, buttons []whatsapp.Button) error { return nil }
func (f *fakeSender) SendDocument(to, url, filename string) error                  { return nil }
func (f *fakeSender) SendVideo(to, url, caption string) error                      { return nil }
func (f *fakeSender) SendImage(to, url, caption string) error                      { return nil }
func (f *fakeSender) SendTemplate(to string, tpl whatsapp.TemplateSend) error {
	f.Templates = append(f.Templates, to)
	return nil
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func newTestScheduler(t *testing.T) (*Scheduler, *fakeSender, *gorm.DB, *[]time.Duration) {
	t.Helper()
	db := testDB(t)

	cat, err := catalog.NewStore(db)
	if err != nil {
		t.Fatalf("catalog store: %v", err)
	}

	sender := &fakeSender{}
	s := NewScheduler(store.NewCampaignStore(db), store.NewContactStore(db),
		store.NewLeadStore(db), cat, sender)

	slept := &[]time.Duration{}
	s.sleep = func(d time.Duration) { *slept = append(*slept, d) }
	s.rand = func() float64 { return 0.5 }
	return s, sender, db, slept
}

func seedLead(t *testing.T, db *gorm.DB, waID, name string, lastIncoming time.Time) {
	t.Helper()
	leads := store.NewLeadStore(db)
	if err := leads.UpsertIncoming(waID, name, lastIncoming); err != nil {
		t.Fatal(err)
	}
}

func createCampaign(t *testing.T, s *Scheduler, policy models.CampaignPolicy,
	content models.CampaignContent, testTo string) *models.Campaign {
	t.Helper()
	camp, err := s.Campaigns.Create("Promo", models.CampaignFilter{}, policy, content, testTo)
	if err != nil {
		t.Fatal(err)
	}
	return camp
}

// drain runs scheduler steps until no campaign has queued work left.
func drain(s *Scheduler, t *testing.T) {
	t.Helper()
	stop := make(chan struct{})
	for i := 0; i < 100; i++ {
		camp, err := s.Campaigns.NextRunning()
		if err != nil {
			t.Fatal(err)
		}
		if camp == nil {
			return
		}
		s.step(camp, stop)
	}
	t.Fatal("scheduler did not drain after 100 steps")
}

func TestStartQueuesEligibleLeads(t *testing.T) {
	s, sender, db, slept := newTestScheduler(t)
	now := time.Now()

	seedLead(t, db, "551111", "Ana", now)
	seedLead(t, db, "552222", "Bia", now)
	seedLead(t, db, "553333", "Caio", now)
	if err := s.Contacts.SetOptOut("553333", true); err != nil {
		t.Fatal(err)
	}

	camp := createCampaign(t, s,
		models.CampaignPolicy{Mode: models.ModeOnly24, ThrottleSecondsMin: 60, ThrottleSecondsMax: 120},
		models.CampaignContent{Text24h: "Oferta especial, {NAME}!"}, "")

	queued, err := s.Start(camp.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if queued != 2 {
		t.Fatalf("queued = %d, want 2 (opted-out lead excluded)", queued)
	}

	drain(s, t)

	if len(sender.Texts) != 2 {
		t.Fatalf("sent %d texts, want 2: %v", len(sender.Texts), sender.To)
	}
	for _, to := range sender.To {
		if to == "553333" {
			t.Error("opted-out contact received a campaign message")
		}
	}
	if sender.Texts[0] != "Oferta especial, Ana!" {
		t.Errorf("personalization failed: %q", sender.Texts[0])
	}

	// Every step waited the jittered throttle: rand=0.5 over [60,120] is 90s.
	for _, d := range *slept {
		if d != 90*time.Second {
			t.Errorf("throttle delay = %v, want 90s", d)
		}
	}
	if len(*slept) < 2 {
		t.Errorf("expected a throttle sleep per send, got %d", len(*slept))
	}

	camp, _ = s.Campaigns.Get(camp.ID)
	if camp.Status != models.CampaignFinished {
		t.Errorf("status = %q, want finished", camp.Status)
	}
	if camp.SentCount != 2 {
		t.Errorf("sent_count = %d, want 2", camp.SentCount)
	}
}

func TestTestModeStillHonorsOptOut(t *testing.T) {
	s, _, db, _ := newTestScheduler(t)
	seedLead(t, db, "556599999999", "Op", time.Now())
	if err := s.Contacts.SetOptOut("556599999999", true); err != nil {
		t.Fatal(err)
	}

	camp := createCampaign(t, s,
		models.CampaignPolicy{Mode: models.ModeOnly24},
		models.CampaignContent{Text24h: "teste"}, "+55 65 99999-999")

	_, err := s.Start(camp.ID)
	if !errors.Is(err, ErrNoRecipients) {
		t.Fatalf("expected ErrNoRecipients for opted-out test target, got %v", err)
	}
}

func TestOnly24SkipsOutsideWindow(t *testing.T) {
	s, sender, db, _ := newTestScheduler(t)

	seedLead(t, db, "551111", "Ana", time.Now().Add(-48*time.Hour))

	camp := createCampaign(t, s,
		models.CampaignPolicy{Mode: models.ModeOnly24},
		models.CampaignContent{Text24h: "Oferta!"}, "")

	if _, err := s.Start(camp.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	drain(s, t)

	if len(sender.Texts) != 0 {
		t.Errorf("sent free-form text outside the 24h window: %v", sender.Texts)
	}
	camp, _ = s.Campaigns.Get(camp.ID)
	if camp.SkippedCount != 1 {
		t.Errorf("skipped_count = %d, want 1", camp.SkippedCount)
	}
}

func TestAutoModeUsesTemplateOutsideWindow(t *testing.T) {
	s, sender, db, _ := newTestScheduler(t)

	seedLead(t, db, "551111", "Ana", time.Now().Add(-48*time.Hour))
	seedLead(t, db, "552222", "Bia", time.Now().Add(-time.Hour))

	camp := createCampaign(t, s,
		models.CampaignPolicy{Mode: models.ModeAuto},
		models.CampaignContent{Text24h: "Oferta!", TemplateName: "promo_semana"}, "")

	if _, err := s.Start(camp.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	drain(s, t)

	if len(sender.Templates) != 1 || sender.Templates[0] != "551111" {
		t.Errorf("template sends = %v, want [551111]", sender.Templates)
	}
	if len(sender.Texts) != 1 || sender.To[0] != "552222" {
		t.Errorf("text sends = %v to %v, want one to 552222", sender.Texts, sender.To)
	}
}

func TestPauseStopsBeforeNextStep(t *testing.T) {
	s, sender, db, _ := newTestScheduler(t)

	seedLead(t, db, "551111", "Ana", time.Now())
	seedLead(t, db, "552222", "Bia", time.Now())

	camp := createCampaign(t, s,
		models.CampaignPolicy{Mode: models.ModeOnly24},
		models.CampaignContent{Text24h: "Oferta!"}, "")

	if _, err := s.Start(camp.ID); err != nil {
		t.Fatal(err)
	}

	// The pause lands while the worker is sleeping off the throttle.
	s.sleep = func(time.Duration) {
		_ = s.Pause(camp.ID)
	}

	loaded, err := s.Campaigns.NextRunning()
	if err != nil || loaded == nil {
		t.Fatalf("no running campaign: %v", err)
	}
	s.step(loaded, make(chan struct{}))

	if len(sender.Texts) != 0 {
		t.Errorf("paused campaign still sent: %v", sender.Texts)
	}
	camp, _ = s.Campaigns.Get(camp.ID)
	if got := len(store.DecodeQueue(camp)); got != 2 {
		t.Errorf("queue length = %d, want 2 (nothing consumed while paused)", got)
	}

	// Resume picks the queue back up.
	s.sleep = func(time.Duration) {}
	if err := s.Resume(camp.ID); err != nil {
		t.Fatal(err)
	}
	drain(s, t)
	if len(sender.Texts) != 2 {
		t.Errorf("resume did not finish the queue: %v", sender.Texts)
	}
}

func TestPauseDuringSendIsNotOverwritten(t *testing.T) {
	s, sender, db, _ := newTestScheduler(t)

	seedLead(t, db, "551111", "Ana", time.Now())
	seedLead(t, db, "552222", "Bia", time.Now())

	camp := createCampaign(t, s,
		models.CampaignPolicy{Mode: models.ModeOnly24},
		models.CampaignContent{Text24h: "Oferta!"}, "")

	if _, err := s.Start(camp.ID); err != nil {
		t.Fatal(err)
	}

	// The pause lands while the first message is going out; the step's
	// progress save must not put the campaign back in the running state.
	sender.OnSend = func() {
		sender.OnSend = nil
		if err := s.Pause(camp.ID); err != nil {
			t.Error(err)
		}
	}

	loaded, err := s.Campaigns.NextRunning()
	if err != nil || loaded == nil {
		t.Fatalf("no running campaign: %v", err)
	}
	s.step(loaded, make(chan struct{}))

	camp, _ = s.Campaigns.Get(camp.ID)
	if camp.Status != models.CampaignPaused {
		t.Errorf("status = %q, want paused", camp.Status)
	}
	if camp.SentCount != 1 {
		t.Errorf("sent_count = %d, want 1 (in-flight send still counted)", camp.SentCount)
	}
	if got := len(store.DecodeQueue(camp)); got != 1 {
		t.Errorf("queue length = %d, want 1", got)
	}
	if next, _ := s.Campaigns.NextRunning(); next != nil {
		t.Errorf("paused campaign still scheduled: %+v", next)
	}
}

func TestSendFailureCountsErrorAndContinues(t *testing.T) {
	s, sender, db, _ := newTestScheduler(t)

	seedLead(t, db, "551111", "Ana", time.Now())
	seedLead(t, db, "552222", "Bia", time.Now())

	camp := createCampaign(t, s,
		models.CampaignPolicy{Mode: models.ModeOnly24},
		models.CampaignContent{Text24h: "Oferta!"}, "")

	if _, err := s.Start(camp.ID); err != nil {
		t.Fatal(err)
	}

	// First send fails, second succeeds.
	sender.FailText = true
	loaded, _ := s.Campaigns.NextRunning()
	s.step(loaded, make(chan struct{}))

	sender.FailText = false
	drain(s, t)

	camp, _ = s.Campaigns.Get(camp.ID)
	if camp.ErrorCount != 1 || camp.SentCount != 1 {
		t.Errorf("errors=%d sent=%d, want 1 and 1", camp.ErrorCount, camp.SentCount)
	}
	if camp.Status != models.CampaignFinished {
		t.Errorf("status = %q, want finished", camp.Status)
	}
}
