package catalog

import (
	"path/filepath"
	"strings"
	"testing"

	"whatsapp-commerce/internal/database"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

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

func TestStoreStartsWithDefaults(t *testing.T) {
	s, err := NewStore(testDB(t))
	if err != nil {
		t.Fatal(err)
	}
	cat := s.Get()
	if cat.Products["A"].Price == "" || cat.Products["B"].Price == "" {
		t.Errorf("default catalog missing products: %+v", cat.Products)
	}
	if !strings.Contains(cat.Greeting, "{NAME}") {
		t.Errorf("default greeting missing placeholder: %q", cat.Greeting)
	}
}

func TestSavePersistsAcrossStores(t *testing.T) {
	db := testDB(t)
	s, err := NewStore(db)
	if err != nil {
		t.Fatal(err)
	}

	cat := s.Get()
	prodA := cat.Products["A"]
	prodA.Title = "Lista Premium"
	prodA.Price = "R$ 49,90"
	cat.Products["A"] = prodA
	if err := s.Save(cat); err != nil {
		t.Fatal(err)
	}

	// A fresh store reads the saved document, not the defaults.
	s2, err := NewStore(db)
	if err != nil {
		t.Fatal(err)
	}
	if got := s2.Product("A"); got.Title != "Lista Premium" || got.Price != "R$ 49,90" {
		t.Errorf("reloaded product = %+v", got)
	}
}

func TestNormalizeKey(t *testing.T) {
	cases := map[string]string{
		"A": "A", "a": "A", "B": "B", "b": "B", " b ": "B",
		"": "A", "C": "A", "produto": "A",
	}
	for in, want := range cases {
		if got := NormalizeKey(in); got != want {
			t.Errorf("NormalizeKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPersonalize(t *testing.T) {
	s, err := NewStore(testDB(t))
	if err != nil {
		t.Fatal(err)
	}

	cat := s.Get()
	prodA := cat.Products["A"]
	prodA.Title = "Lista Atacado"
	prodA.Price = "R$ 19,90"
	cat.Products["A"] = prodA
	if err := s.Save(cat); err != nil {
		t.Fatal(err)
	}

	got := s.Personalize("Oi {NAME}, veja {PROD_A_TIT} por {PROD_A_PRECO}", "Maria")
	want := "Oi Maria, veja Lista Atacado por R$ 19,90"
	if got != want {
		t.Errorf("Personalize = %q, want %q", got, want)
	}
}

func TestUnknownProductFallsBackToA(t *testing.T) {
	s, err := NewStore(testDB(t))
	if err != nil {
		t.Fatal(err)
	}
	if s.Product("Z").Title != s.Product("A").Title {
		t.Error("unknown key did not resolve to product A")
	}
}
