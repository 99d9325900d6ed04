package meta

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"debtbot/internal/domain"
)

// SignatureHeader carries the HMAC-SHA256 of the raw body, as "sha256=<hex>".
const SignatureHeader = "X-Hub-Signature-256"

// VerifySignature reports whether header is a valid sha256 HMAC of body under
// secret. Malformed or missing headers yield false.
func VerifySignature(body []byte, header string, secret []byte) bool {
	scheme, provided, ok := strings.Cut(strings.TrimSpace(header), "=")
	if !ok || scheme != "sha256" || provided == "" {
		return false
	}
	got, err := hex.DecodeString(provided)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), got)
}

// Sign returns the header value Meta would send for body. Used by tests and
// the mock provider.
func Sign(body []byte, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// WebhookPayload is the top-level webhook delivery.
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

type ChangeValue struct {
	MessagingProduct string            `json:"messaging_product"`
	Metadata         Metadata          `json:"metadata"`
	Messages         []json.RawMessage `json:"messages,omitempty"`
}

type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

func DecodeWebhook(raw []byte) (WebhookPayload, error) {
	var p WebhookPayload
	if len(raw) == 0 {
		return p, nil
	}
	err := json.Unmarshal(raw, &p)
	return p, err
}

func (p WebhookPayload) firstValue() (ChangeValue, bool) {
	if len(p.Entry) == 0 || len(p.Entry[0].Changes) == 0 {
		return ChangeValue{}, false
	}
	return p.Entry[0].Changes[0].Value, true
}

// BusinessPhoneID is the phone_number_id of the first change.
func (p WebhookPayload) BusinessPhoneID() string {
	v, _ := p.firstValue()
	return v.Metadata.PhoneNumberID
}

// FirstMessage returns the first raw message of the first change.
func (p WebhookPayload) FirstMessage() (json.RawMessage, bool) {
	v, ok := p.firstValue()
	if !ok || len(v.Messages) == 0 {
		return nil, false
	}
	m := v.Messages[0]
	if len(m) == 0 || string(m) == "null" {
		return nil, false
	}
	return m, true
}

type wireMessage struct {
	From        string                  `json:"from"`
	ID          string                  `json:"id"`
	Timestamp   string                  `json:"timestamp"`
	Type        string                  `json:"type"`
	Text        *domain.TextBody        `json:"text,omitempty"`
	Interactive *domain.InteractiveBody `json:"interactive,omitempty"`
	Audio       *domain.AudioBody       `json:"audio,omitempty"`
}

// DecodeMessage turns a raw message object into the typed InboundMessage.
// A known type tag whose body is missing decodes as TypeUnknown so it lands
// on the default handler. Only invalid JSON is an error.
func DecodeMessage(raw json.RawMessage) (domain.InboundMessage, error) {
	var w wireMessage
	if err := json.Unmarshal(raw, &w); err != nil {
		return domain.InboundMessage{}, err
	}

	msg := domain.InboundMessage{
		ID:           w.ID,
		From:         w.From,
		Timestamp:    w.Timestamp,
		DeclaredType: w.Type,
		Type:         domain.TypeUnknown,
		Raw:          append(json.RawMessage(nil), raw...),
	}

	switch domain.MessageType(w.Type) {
	case domain.TypeText:
		if w.Text != nil {
			msg.Type = domain.TypeText
			msg.Text = w.Text
		}
	case domain.TypeInteractive:
		if w.Interactive != nil && w.Interactive.ButtonReply != nil {
			msg.Type = domain.TypeInteractive
			msg.Interactive = w.Interactive
		}
	case domain.TypeAudio:
		msg.Type = domain.TypeAudio
		msg.Audio = w.Audio
	}
	return msg, nil
}
