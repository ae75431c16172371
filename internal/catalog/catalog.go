package catalog

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"whatsapp-commerce/internal/models"

	"gorm.io/gorm"
)

const settingKey = "catalog"

// Bump is an optional add-on that increases a product's base charge.
type Bump struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Price    string `json:"price"`
	ImageURL string `json:"img_url"`
}

// Delivery holds the digital assets sent after an approved payment.
type Delivery struct {
	PDFURL   string `json:"pdf_url"`
	VideoURL string `json:"video_url"`
	LinkURL  string `json:"link_url"`
}

// Product is a sellable offer. Price is a locale-formatted string
// ("R$ 19,90") owned by the operator, parsed only at charge time.
type Product struct {
	Label       string   `json:"label"`
	Title       string   `json:"title"`
	Price       string   `json:"price"`
	CheckoutURL string   `json:"checkout_url"`
	CoverURL    string   `json:"cover_url"`
	Bumps       []Bump   `json:"bumps"`
	Delivery    Delivery `json:"delivery"`
}

// Catalog is the operator-owned configuration document.
type Catalog struct {
	Greeting       string             `json:"greeting"`
	Pitch          string             `json:"pitch"`
	SupportContact string             `json:"support_contact"`
	Products       map[string]Product `json:"products"`
}

// Default returns the boot catalog used until the operator saves one.
func Default() Catalog {
	return Catalog{
		Greeting: "Olá, {NAME}! 👋\n\n" +
			"Tenho duas opções pra você:\n" +
			"A) {PROD_A_TIT} - {PROD_A_PRECO}\n" +
			"B) {PROD_B_TIT} - {PROD_B_PRECO}\n\n" +
			"Toque no botão ou digite A ou B.",
		Pitch: "Receba o acesso imediatamente após o pagamento.",
		Products: map[string]Product{
			"A": {Label: "Produto A", Title: "Produto A", Price: "R$ 19,90"},
			"B": {Label: "Produto B", Title: "Produto B", Price: "R$ 29,90"},
		},
	}
}

// Store keeps the catalog cached in memory and persisted as a single
// whole-document settings row, so a failed save never leaves a partially
// written catalog behind.
type Store struct {
	db *gorm.DB

	mu      sync.RWMutex
	current Catalog
}

func NewStore(db *gorm.DB) (*Store, error) {
	s := &Store{db: db, current: Default()}

	var setting models.Setting
	err := db.First(&setting, "key = ?", settingKey).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}

	var loaded Catalog
	if err := json.Unmarshal([]byte(setting.Value), &loaded); err != nil {
		return nil, err
	}
	if loaded.Products == nil {
		loaded.Products = map[string]Product{}
	}
	s.current = loaded
	return s, nil
}

// Get returns a snapshot of the current catalog.
func (s *Store) Get() Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Product returns the product for key "A" or "B". Unknown keys resolve to "A".
func (s *Store) Product(key string) Product {
	cat := s.Get()
	if p, ok := cat.Products[NormalizeKey(key)]; ok {
		return p
	}
	return cat.Products["A"]
}

// Save replaces the whole catalog document, in storage first and then in the
// in-memory cache.
func (s *Store) Save(cat Catalog) error {
	if cat.Products == nil {
		cat.Products = map[string]Product{}
	}
	b, err := json.Marshal(cat)
	if err != nil {
		return err
	}

	setting := models.Setting{Key: settingKey, Value: string(b)}
	if err := s.db.Save(&setting).Error; err != nil {
		return err
	}

	s.mu.Lock()
	s.current = cat
	s.mu.Unlock()
	return nil
}

// NormalizeKey maps arbitrary input to a product key; anything that is not
// "B" is product "A".
func NormalizeKey(key string) string {
	if strings.EqualFold(strings.TrimSpace(key), "B") {
		return "B"
	}
	return "A"
}

// Personalize substitutes the supported placeholders in operator text.
func (s *Store) Personalize(text, name string) string {
	cat := s.Get()
	a := cat.Products["A"]
	b := cat.Products["B"]
	r := strings.NewReplacer(
		"{NAME}", name,
		"{PROD_A_TIT}", a.Title,
		"{PROD_A_PRECO}", a.Price,
		"{PROD_B_TIT}", b.Title,
		"{PROD_B_PRECO}", b.Price,
	)
	return r.Replace(text)
}
