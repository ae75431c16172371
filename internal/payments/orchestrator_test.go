package payments

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"whatsapp-commerce/internal/catalog"
	"whatsapp-commerce/internal/config"
	"whatsapp-commerce/internal/database"
	"whatsapp-commerce/internal/store"
	"whatsapp-commerce/internal/whatsapp"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeGateway struct {
	Created  []map[string]any
	Response *PaymentInfo
	Stored   *PaymentInfo
}

func (g *fakeGateway) CreatePayment(ctx context.Context, body map[string]any) (*PaymentInfo, error) {
	g.Created = append(g.Created, body)
	if g.Response != nil {
		return g.Response, nil
	}
	return &PaymentInfo{ID: 123456789, Status: "pending"}, nil
}

func (g *fakeGateway) GetPayment(ctx context.Context, id string) (*PaymentInfo, error) {
	if g.Stored == nil {
		return nil, errors.New("payment not found")
	}
	return g.Stored, nil
}

func (g *fakeGateway) CreatePreference(ctx context.Context, body map[string]any) (string, string, error) {
	return "https://mp.example/init", "pref-1", nil
}

type fakeSender struct {
	Texts     []string
	Documents []string
	Videos    []string
}

func (f *fakeSender) SendText(to, body string) error {
	f.Texts = append(f.Texts, body)
	return nil
}
func (f *fakeSender) SendButtons(to, body string, buttons []whatsapp.Button) error { return nil }
func (f *fakeSender) SendDocument(to, url, filename string) error {
	f.Documents = append(f.Documents, url)
	return nil
}
func (f *fakeSender) SendVideo(to, url, caption string) error {
	f.Videos = append(f.Videos, url)
	return nil
}
func (f *fakeSender) SendImage(to, url, caption string) error                 { return nil }
func (f *fakeSender) SendTemplate(to string, tpl whatsapp.TemplateSend) error { return nil }

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

func newTestOrchestrator(t *testing.T) (*Orchestrator, *fakeGateway, *fakeSender, *gorm.DB) {
	t.Helper()
	db := testDB(t)

	cat, err := catalog.NewStore(db)
	if err != nil {
		t.Fatalf("catalog store: %v", err)
	}
	doc := cat.Get()
	prodA := doc.Products["A"]
	prodA.Title = "Lista de Fornecedores"
	prodA.Price = "R$ 19,90"
	prodA.Delivery = catalog.Delivery{
		PDFURL:   "https://cdn.example/lista.pdf",
		VideoURL: "https://cdn.example/intro.mp4",
		LinkURL:  "https://area.example/acesso",
	}
	doc.Products["A"] = prodA
	doc.SupportContact = "+55 65 9999-0000"
	if err := cat.Save(doc); err != nil {
		t.Fatalf("save catalog: %v", err)
	}

	gateway := &fakeGateway{}
	sender := &fakeSender{}
	orch := &Orchestrator{
		Config:   &config.Config{AppBaseURL: "https://bot.example", BoletoMinAmount: 3.0},
		Gateway:  gateway,
		Catalog:  cat,
		Orders:   store.NewOrderRegistry(db),
		Contacts: store.NewContactStore(db),
		Leads:    store.NewLeadStore(db),
		Log:      store.NewPaymentLog(db),
		Sender:   sender,
	}
	return orch, gateway, sender, db
}

func TestChargePixBuildsGatewayRequest(t *testing.T) {
	orch, gateway, _, _ := newTestOrchestrator(t)
	gateway.Response = &PaymentInfo{ID: 555, Status: "pending"}
	gateway.Response.PointOfInteraction.TransactionData.QRCode = "pix-copia-e-cola"

	result, err := orch.Charge(context.Background(), ChargeRequest{
		OrderID:    "ORD-TEST-1",
		ProductKey: "A",
		Method:     "pix",
	})
	if err != nil {
		t.Fatalf("Charge: %v", err)
	}
	if result.PaymentID != "555" || result.Pix == nil || result.Pix.CopiaECola != "pix-copia-e-cola" {
		t.Errorf("unexpected result: %+v", result)
	}

	if len(gateway.Created) != 1 {
		t.Fatalf("expected 1 gateway call, got %d", len(gateway.Created))
	}
	body := gateway.Created[0]
	if body["transaction_amount"] != 19.90 {
		t.Errorf("amount = %v, want 19.90", body["transaction_amount"])
	}
	if body["payment_method_id"] != "pix" {
		t.Errorf("payment_method_id = %v", body["payment_method_id"])
	}
	if body["notification_url"] != "https://bot.example/mp/webhook" {
		t.Errorf("notification_url = %v", body["notification_url"])
	}
	md := body["metadata"].(map[string]any)
	if md["orderId"] != "ORD-TEST-1" || md["productKey"] != "A" {
		t.Errorf("metadata = %v", md)
	}
}

func TestChargeCardRequiresToken(t *testing.T) {
	orch, _, _, _ := newTestOrchestrator(t)

	_, err := orch.Charge(context.Background(), ChargeRequest{ProductKey: "A", Method: "card"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if !strings.Contains(verr.Message, "Token") {
		t.Errorf("unexpected message: %q", verr.Message)
	}
}

func TestChargeBoletoValidation(t *testing.T) {
	orch, _, _, _ := newTestOrchestrator(t)
	ctx := context.Background()

	t.Run("rejects short CPF", func(t *testing.T) {
		_, err := orch.Charge(ctx, ChargeRequest{
			ProductKey: "A",
			Method:     "boleto",
			Boleto:     &BoletoDetails{CPF: "123"},
		})
		var verr *ValidationError
		if !errors.As(err, &verr) || !strings.Contains(verr.Message, "CPF") {
			t.Fatalf("expected CPF validation error, got %v", err)
		}
	})

	t.Run("names every missing address field", func(t *testing.T) {
		_, err := orch.Charge(ctx, ChargeRequest{
			ProductKey: "A",
			Method:     "boleto",
			Boleto: &BoletoDetails{
				CPF: "12345678901",
				Address: Address{
					ZipCode:     "78000-000",
					StreetName:  "Rua das Flores",
					City:        "Cuiabá",
					FederalUnit: "MT",
				},
			},
		})
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		want := []string{"payer.address.street_number", "payer.address.neighborhood"}
		if len(verr.Required) != len(want) {
			t.Fatalf("Required = %v, want %v", verr.Required, want)
		}
		for i := range want {
			if verr.Required[i] != want[i] {
				t.Errorf("Required[%d] = %q, want %q", i, verr.Required[i], want[i])
			}
		}
	})

	t.Run("enforces minimum amount", func(t *testing.T) {
		doc := orch.Catalog.Get()
		prodB := doc.Products["B"]
		prodB.Price = "R$ 2,00"
		doc.Products["B"] = prodB
		if err := orch.Catalog.Save(doc); err != nil {
			t.Fatal(err)
		}

		_, err := orch.Charge(ctx, ChargeRequest{
			ProductKey: "B",
			Method:     "boleto",
			Boleto: &BoletoDetails{
				CPF: "12345678901",
				Address: Address{
					ZipCode: "78000000", StreetName: "Rua A", StreetNumber: "10",
					Neighborhood: "Centro", City: "Cuiabá", FederalUnit: "MT",
				},
			},
		})
		var verr *ValidationError
		if !errors.As(err, &verr) || !strings.Contains(verr.Message, "mínimo") {
			t.Fatalf("expected minimum amount error, got %v", err)
		}
	})
}

func TestReconcileApprovedDeliversOnce(t *testing.T) {
	orch, gateway, sender, _ := newTestOrchestrator(t)

	orderID, err := orch.Orders.Create("5511999990000", "A")
	if err != nil {
		t.Fatal(err)
	}

	approved := &PaymentInfo{
		ID:                987654321,
		Status:            "approved",
		PaymentMethodID:   "pix",
		PaymentTypeID:     "bank_transfer",
		TransactionAmount: 19.90,
		Metadata:          map[string]any{"order_id": orderID, "product_key": "A"},
	}
	gateway.Stored = approved

	if err := orch.Reconcile(context.Background(), "987654321"); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	// Confirmation, access link and support message.
	if len(sender.Texts) != 3 {
		t.Fatalf("expected 3 delivery texts, got %d: %v", len(sender.Texts), sender.Texts)
	}
	if !strings.Contains(sender.Texts[0], "Pagamento aprovado") {
		t.Errorf("missing confirmation: %q", sender.Texts[0])
	}
	if len(sender.Documents) != 1 || len(sender.Videos) != 1 {
		t.Errorf("delivery assets: docs=%v videos=%v", sender.Documents, sender.Videos)
	}

	// Sale recorded with the detected method.
	rows, err := orch.Log.PurchasesByMethod(approvedWindowStart(), approvedWindowEnd())
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Method != "pix" || rows[0].Count != 1 {
		t.Errorf("unexpected sales rows: %+v", rows)
	}

	// Contact and lead flagged as buyers.
	contact, err := orch.Contacts.Get("5511999990000")
	if err != nil || !contact.Purchased {
		t.Errorf("contact not marked purchased (err=%v)", err)
	}

	// Order removed after delivery.
	if _, err := orch.Orders.Resolve(orderID); !errors.Is(err, store.ErrOrderNotFound) {
		t.Errorf("order still present after delivery: %v", err)
	}

	// A replayed notification records nothing and sends nothing.
	if err := orch.Reconcile(context.Background(), "987654321"); err != nil {
		t.Fatalf("replay Reconcile: %v", err)
	}
	if len(sender.Texts) != 3 {
		t.Errorf("replay sent extra messages: %v", sender.Texts)
	}
	rows, _ = orch.Log.PurchasesByMethod(approvedWindowStart(), approvedWindowEnd())
	if len(rows) != 1 || rows[0].Count != 1 {
		t.Errorf("replay recorded a duplicate sale: %+v", rows)
	}
}

func TestReconcileIgnoresPendingPayment(t *testing.T) {
	orch, gateway, sender, _ := newTestOrchestrator(t)
	gateway.Stored = &PaymentInfo{ID: 111, Status: "pending"}

	if err := orch.Reconcile(context.Background(), "111"); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(sender.Texts) != 0 {
		t.Errorf("pending payment triggered delivery: %v", sender.Texts)
	}
}

func TestReconcileWithoutOrderStillRecordsSale(t *testing.T) {
	orch, gateway, sender, _ := newTestOrchestrator(t)
	gateway.Stored = &PaymentInfo{
		ID:                222,
		Status:            "approved",
		PaymentMethodID:   "bolbradesco",
		PaymentTypeID:     "ticket",
		TransactionAmount: 19.90,
		Metadata:          map[string]any{"order_id": "ORD-UNKNOWN", "product_key": "A"},
	}

	if err := orch.Reconcile(context.Background(), "222"); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(sender.Texts) != 0 {
		t.Errorf("delivery attempted without a known contact: %v", sender.Texts)
	}
	rows, _ := orch.Log.PurchasesByMethod(approvedWindowStart(), approvedWindowEnd())
	if len(rows) != 1 || rows[0].Method != "boleto" {
		t.Errorf("sale not recorded as boleto: %+v", rows)
	}
}

func approvedWindowStart() time.Time { return time.Now().Add(-time.Hour) }
func approvedWindowEnd() time.Time   { return time.Now().Add(time.Hour) }
