package webhook

// Payload is the incoming JSON payload from the WhatsApp Cloud API.
type Payload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Value struct {
				MessagingProduct string `json:"messaging_product"`
				Metadata         struct {
					DisplayPhoneNumber string `json:"display_phone_number"`
					PhoneNumberID      string `json:"phone_number_id"`
				} `json:"metadata"`
				Contacts []struct {
					WaID    string `json:"wa_id"`
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
				} `json:"contacts,omitempty"`
				Messages []Message `json:"messages,omitempty"`
				Statuses []struct {
					ID          string `json:"id"`
					Status      string `json:"status"`
					Timestamp   string `json:"timestamp"`
					RecipientID string `json:"recipient_id"`
				} `json:"statuses,omitempty"`
			} `json:"value"`
			Field string `json:"field"`
		} `json:"changes"`
	} `json:"entry"`
}

// Message is one inbound message inside the payload.
type Message struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
	Interactive *InteractiveMessage `json:"interactive,omitempty"`
	Button      *ButtonMessage      `json:"button,omitempty"`
}

// InteractiveMessage is a button or list reply.
type InteractiveMessage struct {
	Type        string `json:"type"`
	ButtonReply *struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"button_reply,omitempty"`
}

// ButtonMessage is the platform's legacy quick-reply format.
type ButtonMessage struct {
	Payload string `json:"payload"`
	Text    string `json:"text"`
}

// ButtonPayload extracts the button id from either reply format, empty when
// the message is not a button reply.
func (m *Message) ButtonPayload() string {
	if m.Interactive != nil && m.Interactive.Type == "button_reply" && m.Interactive.ButtonReply != nil {
		return m.Interactive.ButtonReply.ID
	}
	if m.Button != nil {
		return m.Button.Payload
	}
	return ""
}
