package conversation

import (
	"fmt"
	"log"
	"strings"

	"whatsapp-commerce/internal/catalog"
	"whatsapp-commerce/internal/session"
	"whatsapp-commerce/internal/store"
	"whatsapp-commerce/internal/whatsapp"
)

// Button payload ids carried on interactive replies.
const (
	PayloadChooseA = "CHOOSE_A"
	PayloadChooseB = "CHOOSE_B"
	PayloadMenu    = "MENU"
	PayloadUnsub   = "UNSUB"
)

// LinkBuilder creates a hosted checkout link for "mp:" checkout templates.
type LinkBuilder interface {
	PreferenceLink(productKey, orderID string) (string, error)
}

// Inbound is one user message after webhook extraction. ButtonID is set for
// interactive replies and takes priority over Text.
type Inbound struct {
	From     string
	Name     string
	Text     string
	ButtonID string
}

// Engine drives the conversation state machine: greeting, product choice,
// offer with checkout link, opt-out and opt-in.
type Engine struct {
	Sender   whatsapp.Sender
	Sessions *session.Manager
	Catalog  *catalog.Store
	Contacts *store.ContactStore
	Leads    *store.LeadStore
	Orders   *store.OrderRegistry
	Links    LinkBuilder
}

func NewEngine(sender whatsapp.Sender, sessions *session.Manager, cat *catalog.Store,
	contacts *store.ContactStore, leads *store.LeadStore, orders *store.OrderRegistry,
	links LinkBuilder) *Engine {
	return &Engine{
		Sender:   sender,
		Sessions: sessions,
		Catalog:  cat,
		Contacts: contacts,
		Leads:    leads,
		Orders:   orders,
		Links:    links,
	}
}

// HandleIncoming processes one inbound message. Errors from outbound sends are
// logged, never propagated; the webhook has already acked the platform.
func (e *Engine) HandleIncoming(msg Inbound) {
	s := e.Sessions.Touch(msg.From)

	if msg.ButtonID != "" {
		e.handleButton(msg, s)
		return
	}
	e.handleText(msg, s)
}

func (e *Engine) handleButton(msg Inbound, s *session.Session) {
	switch msg.ButtonID {
	case PayloadUnsub:
		e.optOut(msg.From)
	case PayloadChooseA:
		e.sendOffer(msg.From, "A")
	case PayloadChooseB:
		e.sendOffer(msg.From, "B")
	case PayloadMenu:
		s.Stage = session.StageWaitingChoice
		e.sendGreeting(msg.From, msg.Name)
	default:
		log.Printf("[conversation] unknown button payload %q from %s", msg.ButtonID, msg.From)
	}
}

func (e *Engine) handleText(msg Inbound, s *session.Session) {
	switch Classify(msg.Text) {
	case OptOut:
		e.optOut(msg.From)

	case OptIn:
		if err := e.Contacts.SetOptOut(msg.From, false); err != nil {
			log.Printf("[conversation] opt-in contact %s: %v", msg.From, err)
		}
		if err := e.Leads.SetOptIn(msg.From, true); err != nil {
			log.Printf("[conversation] opt-in lead %s: %v", msg.From, err)
		}
		e.send(msg.From, "Perfeito! Você voltará a receber nossas ofertas.")

	case Reset:
		s = e.Sessions.Reset(msg.From)
		s.Stage = session.StageWaitingChoice
		e.sendGreeting(msg.From, msg.Name)

	case Menu, Greeting:
		s.Stage = session.StageWaitingChoice
		e.sendGreeting(msg.From, msg.Name)

	case ChooseA:
		e.sendOffer(msg.From, "A")

	case ChooseB:
		e.sendOffer(msg.From, "B")

	default:
		if s.Stage == session.StageNew {
			s.Stage = session.StageWaitingChoice
			e.sendGreeting(msg.From, msg.Name)
			return
		}
		e.send(msg.From, fmt.Sprintf("Recebi: %q ✅", msg.Text))
	}
}

func (e *Engine) optOut(waID string) {
	if err := e.Contacts.SetOptOut(waID, true); err != nil {
		log.Printf("[conversation] opt-out contact %s: %v", waID, err)
	}
	if err := e.Leads.SetOptIn(waID, false); err != nil {
		log.Printf("[conversation] opt-out lead %s: %v", waID, err)
	}
	e.send(waID, `Ok, removi você da nossa lista. Para voltar a receber, responda "quero receber".`)
}

// sendGreeting sends the personalized greeting with choice buttons; if the
// interactive send fails the same body goes out as plain text.
func (e *Engine) sendGreeting(to, name string) {
	cat := e.Catalog.Get()
	body := strings.TrimSpace(e.Catalog.Personalize(cat.Greeting, name))
	if body == "" {
		body = "Olá! 👋\n\nEscolha uma opção:\nA) Produto A\nB) Produto B\n\nToque no botão ou digite A ou B."
	}
	body = whatsapp.Truncate(body, 1024)

	buttons := []whatsapp.Button{
		{ID: PayloadChooseA, Title: productLabel(cat, "A")},
		{ID: PayloadChooseB, Title: productLabel(cat, "B")},
		{ID: PayloadMenu, Title: "Menu"},
	}
	if err := e.Sender.SendButtons(to, body, buttons); err != nil {
		log.Printf("[conversation] greeting buttons to %s failed, falling back to text: %v", to, err)
		e.send(to, body)
	}
}

func productLabel(cat catalog.Catalog, key string) string {
	p := cat.Products[key]
	if p.Label != "" {
		return p.Label
	}
	if p.Title != "" {
		return p.Title
	}
	return "Produto " + key
}

// sendOffer issues an order, builds the checkout link and sends the offer
// text, followed by best-effort navigation buttons.
func (e *Engine) sendOffer(to, productKey string) {
	productKey = catalog.NormalizeKey(productKey)
	product := e.Catalog.Product(productKey)

	orderID, err := e.Orders.Create(to, productKey)
	if err != nil {
		log.Printf("[conversation] create order for %s: %v", to, err)
		e.send(to, "Não consegui gerar seu pedido agora. Tente novamente em instantes.")
		return
	}

	link := e.checkoutLink(product, productKey, orderID)

	var b strings.Builder
	fmt.Fprintf(&b, "📦 %s\n", orFallback(product.Title, "Oferta"))
	if pitch := shortPitch(e.Catalog.Get().Pitch, 240); pitch != "" {
		fmt.Fprintf(&b, "%s\n\n", pitch)
	}
	if product.Price != "" {
		fmt.Fprintf(&b, "💰 Preço: %s\n\n", product.Price)
	}
	fmt.Fprintf(&b, "🧾 Pedido: %s\n", orderID)
	if link != "" {
		fmt.Fprintf(&b, "👉 Pague no link seguro:\n%s\n\n", link)
	}
	if support := e.Catalog.Get().SupportContact; support != "" {
		fmt.Fprintf(&b, "📞 Suporte: %s", support)
	}
	e.send(to, strings.TrimSpace(b.String()))

	err = e.Sender.SendButtons(to, "⬅️ Voltar ao menu", []whatsapp.Button{
		{ID: PayloadMenu, Title: "Voltar ao menu"},
		{ID: PayloadUnsub, Title: "Não receber mensagens"},
	})
	if err != nil {
		log.Printf("[conversation] offer buttons to %s: %v", to, err)
	}
}

// checkoutLink resolves the product's checkout URL template. "mp:" templates
// ask the payment gateway for a hosted preference link, falling back to plain
// substitution when that fails.
func (e *Engine) checkoutLink(product catalog.Product, productKey, orderID string) string {
	tpl := strings.TrimSpace(product.CheckoutURL)
	if strings.HasPrefix(tpl, "mp:") && e.Links != nil {
		link, err := e.Links.PreferenceLink(productKey, orderID)
		if err == nil && link != "" {
			return link
		}
		log.Printf("[conversation] preference link for order %s: %v", orderID, err)
	}
	return strings.ReplaceAll(tpl, "{ORDER_ID}", orderID)
}

func (e *Engine) send(to, body string) {
	if err := e.Sender.SendText(to, body); err != nil {
		log.Printf("[conversation] send text to %s: %v", to, err)
	}
}

func orFallback(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// shortPitch compresses the persuasive text to at most max characters,
// preferring to cut at a sentence boundary.
func shortPitch(text string, max int) string {
	t := strings.Join(strings.Fields(text), " ")
	if t == "" || len(t) <= max {
		return t
	}
	cut := whatsapp.Truncate(t, max)
	i := strings.LastIndex(cut, ". ")
	if j := strings.LastIndex(cut, "! "); j > i {
		i = j
	}
	if j := strings.LastIndex(cut, "? "); j > i {
		i = j
	}
	if i > 80 {
		return cut[:i+1] + "…"
	}
	return cut + "…"
}
