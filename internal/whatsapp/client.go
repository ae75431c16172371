package whatsapp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"
	"unicode/utf8"

	"whatsapp-commerce/internal/config"
)

// Sender is the outbound messaging capability consumed by the conversation
// engine, the payment orchestrator and the campaign scheduler.
type Sender interface {
	SendText(to, body string) error
	SendButtons(to, body string, buttons []Button) error
	SendDocument(to, url, filename string) error
	SendVideo(to, url, caption string) error
	SendImage(to, url, caption string) error
	SendTemplate(to string, tpl TemplateSend) error
}

// Button is a quick-reply button (max 3 per message).
type Button struct {
	ID    string
	Title string
}

// TemplateSend describes a pre-approved template message with positional body
// parameters and an optional media header.
type TemplateSend struct {
	Name     string
	Language string
	Params   []string
	MediaURL string
}

type Client struct {
	Config *config.Config
	http   *http.Client
}

var _ Sender = (*Client)(nil)

func NewClient(cfg *config.Config) *Client {
	return &Client{
		Config: cfg,
		http:   &http.Client{Timeout: 20 * time.Second},
	}
}

// --- Message Structures ---

type GenericMessage struct {
	MessagingProduct string          `json:"messaging_product"`
	To               string          `json:"to"`
	Type             string          `json:"type"`
	Text             *TextObj        `json:"text,omitempty"`
	Image            *MediaObj       `json:"image,omitempty"`
	Video            *MediaObj       `json:"video,omitempty"`
	Document         *MediaObj       `json:"document,omitempty"`
	Template         *TemplateObj    `json:"template,omitempty"`
	Interactive      *InteractiveObj `json:"interactive,omitempty"`
}

type TextObj struct {
	Body       string `json:"body"`
	PreviewUrl bool   `json:"preview_url,omitempty"`
}

type MediaObj struct {
	Link     string `json:"link,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"` // For documents
}

type TemplateObj struct {
	Name       string         `json:"name"`
	Language   LanguageObj    `json:"language"`
	Components []ComponentObj `json:"components,omitempty"`
}

type LanguageObj struct {
	Code string `json:"code"`
}

type ComponentObj struct {
	Type       string         `json:"type"`
	Parameters []ParameterObj `json:"parameters"`
}

type ParameterObj struct {
	Type  string    `json:"type"`
	Text  string    `json:"text,omitempty"`
	Image *MediaObj `json:"image,omitempty"`
	Video *MediaObj `json:"video,omitempty"`
}

type InteractiveObj struct {
	Type   string    `json:"type"`
	Body   BodyObj   `json:"body"`
	Action ActionObj `json:"action"`
}

type BodyObj struct {
	Text string `json:"text"`
}

type ActionObj struct {
	Buttons []ButtonObj `json:"buttons,omitempty"`
}

type ButtonObj struct {
	Type  string   `json:"type"`
	Reply ReplyObj `json:"reply"`
}

type ReplyObj struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// --- Helpers ---

var (
	videoExtRe = regexp.MustCompile(`(?i)\.(mp4|m4v|mov|webm)$`)
	imageExtRe = regexp.MustCompile(`(?i)\.(png|jpe?g|gif|webp)$`)
)

// LooksLikeVideo reports whether the URL has a recognized video extension.
func LooksLikeVideo(url string) bool { return videoExtRe.MatchString(url) }

// LooksLikeImage reports whether the URL has a recognized image extension.
func LooksLikeImage(url string) bool { return imageExtRe.MatchString(url) }

// Truncate cuts s to at most max bytes, backing up so a multibyte UTF-8
// sequence is never split. The pt-BR copy is full of accents and emoji.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

func clamp(s string, max int) string { return Truncate(s, max) }

func (c *Client) sendRequest(msg GenericMessage) error {
	url := fmt.Sprintf("https://graph.facebook.com/v20.0/%s/messages", c.Config.PhoneNumberID)

	jsonData, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequest("POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.Config.WhatsAppToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("API error: %s - %s", resp.Status, string(respBody))
	}

	return nil
}

// --- Messaging Methods ---

func (c *Client) SendText(to, body string) error {
	msg := GenericMessage{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text: &TextObj{
			Body: clamp(body, 4096),
		},
	}
	return c.sendRequest(msg)
}

// SendButtons sends up to 3 quick-reply buttons. Titles are clamped to the
// platform's 20-character limit, ids to 256, body to 1024.
func (c *Client) SendButtons(to, body string, buttons []Button) error {
	if len(buttons) > 3 {
		buttons = buttons[:3]
	}
	btns := make([]ButtonObj, 0, len(buttons))
	for _, b := range buttons {
		btns = append(btns, ButtonObj{
			Type: "reply",
			Reply: ReplyObj{
				ID:    clamp(b.ID, 256),
				Title: clamp(b.Title, 20),
			},
		})
	}

	msg := GenericMessage{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "interactive",
		Interactive: &InteractiveObj{
			Type:   "button",
			Body:   BodyObj{Text: clamp(body, 1024)},
			Action: ActionObj{Buttons: btns},
		},
	}
	return c.sendRequest(msg)
}

func (c *Client) SendDocument(to, url, filename string) error {
	if filename == "" {
		filename = "arquivo.pdf"
	}
	msg := GenericMessage{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "document",
		Document: &MediaObj{
			Link:     url,
			Filename: filename,
		},
	}
	return c.sendRequest(msg)
}

func (c *Client) SendVideo(to, url, caption string) error {
	msg := GenericMessage{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "video",
		Video: &MediaObj{
			Link:    url,
			Caption: clamp(caption, 1024),
		},
	}
	return c.sendRequest(msg)
}

func (c *Client) SendImage(to, url, caption string) error {
	msg := GenericMessage{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "image",
		Image: &MediaObj{
			Link:    url,
			Caption: clamp(caption, 1024),
		},
	}
	return c.sendRequest(msg)
}

// SendTemplate sends a pre-approved template. A media header parameter is
// attached when the URL extension identifies the media type; the template on
// the platform side must declare a matching header.
func (c *Client) SendTemplate(to string, tpl TemplateSend) error {
	lang := tpl.Language
	if lang == "" {
		lang = "pt_BR"
	}

	var components []ComponentObj
	if tpl.MediaURL != "" {
		switch {
		case LooksLikeVideo(tpl.MediaURL):
			components = append(components, ComponentObj{
				Type:       "header",
				Parameters: []ParameterObj{{Type: "video", Video: &MediaObj{Link: tpl.MediaURL}}},
			})
		case LooksLikeImage(tpl.MediaURL):
			components = append(components, ComponentObj{
				Type:       "header",
				Parameters: []ParameterObj{{Type: "image", Image: &MediaObj{Link: tpl.MediaURL}}},
			})
		}
	}
	if len(tpl.Params) > 0 {
		params := make([]ParameterObj, 0, len(tpl.Params))
		for _, p := range tpl.Params {
			params = append(params, ParameterObj{Type: "text", Text: p})
		}
		components = append(components, ComponentObj{Type: "body", Parameters: params})
	}

	msg := GenericMessage{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "template",
		Template: &TemplateObj{
			Name:       tpl.Name,
			Language:   LanguageObj{Code: lang},
			Components: components,
		},
	}
	return c.sendRequest(msg)
}
