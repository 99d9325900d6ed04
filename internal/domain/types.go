package domain

import (
	"encoding/json"
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// MessageType is the declared type tag of an inbound WhatsApp message.
type MessageType string

const (
	TypeText        MessageType = "text"
	TypeInteractive MessageType = "interactive"
	TypeAudio       MessageType = "audio"
	TypeUnknown     MessageType = "unknown"
)

// InboundMessage is decoded once at the webhook boundary. Exactly one of the
// body pointers matching Type is set; TypeUnknown carries no body.
type InboundMessage struct {
	ID           string
	From         string
	Timestamp    string
	Type         MessageType
	DeclaredType string

	Text        *TextBody
	Interactive *InteractiveBody
	Audio       *AudioBody

	// Raw is the message object exactly as delivered, used for the daily log.
	Raw json.RawMessage
}

type TextBody struct {
	Body string `json:"body"`
}

type InteractiveBody struct {
	Type        string       `json:"type"`
	ButtonReply *ButtonReply `json:"button_reply,omitempty"`
}

type ButtonReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type AudioBody struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
}

// ButtonConfirm is the reply id of the "generate payment" button.
const ButtonConfirm = "1"

// VehicleData holds the fields the extraction model found in free text.
type VehicleData struct {
	Plate string
	Brand string
	Model string
	Year  string
	Color string
	Other string
}

var nonAlnum = regexp.MustCompile(`[^A-Za-z0-9]`)

// NormalizePlate uppercases and strips everything that is not alphanumeric.
func NormalizePlate(p string) string {
	return strings.ToUpper(nonAlnum.ReplaceAllString(p, ""))
}

// Amount is a monetary value as returned by the debt API, which sends either
// JSON numbers or numeric strings.
type Amount string

func (a *Amount) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*a = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*a = Amount(str)
		return nil
	}
	*a = Amount(s)
	return nil
}

func (a Amount) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseFloat(string(a), 64); err == nil {
		return []byte(a), nil
	}
	return json.Marshal(string(a))
}

// Int truncates the amount to an integer. ok is false for non-numeric values.
func (a Amount) Int() (int64, bool) {
	s := strings.TrimSpace(string(a))
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return TruncFloat(f)
	}
	return 0, false
}

// Positive reports whether the amount is numeric and strictly greater than zero.
func (a Amount) Positive() bool {
	if n, ok := a.Int(); ok {
		return n > 0
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(string(a)), 64)
	return err == nil && f > 0
}

// TruncFloat truncates f toward zero. ok is false for NaN and for values
// outside the int64 range.
func TruncFloat(f float64) (int64, bool) {
	if math.IsNaN(f) || f < -(1<<63) || f >= 1<<63 {
		return 0, false
	}
	return int64(f), true
}

func (a Amount) String() string { return string(a) }

// DebtLine is one jurisdiction's itemized debt for a plate.
type DebtLine struct {
	Plate        string `json:"placa"`
	Period       string `json:"vigencia"`
	Municipality string `json:"muniMatr"`
	Department   string `json:"deptoMatr"`
	Declaration  Amount `json:"declaracion"`
	Total        Amount `json:"total"`
	Penalty      Amount `json:"sancion"`
	Interest     Amount `json:"interes"`
	Discount     Amount `json:"descuento"`
	PenaltyDisc  Amount `json:"descSancion"`
	InterestDisc Amount `json:"descInteres"`
	DueDate      string `json:"fechaLim"`

	// Raw keeps every field the API sent, including ones not mapped above.
	Raw json.RawMessage `json:"-"`
}

func (d *DebtLine) UnmarshalJSON(b []byte) error {
	type plain DebtLine
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*d = DebtLine(p)
	d.Raw = append(json.RawMessage(nil), b...)
	return nil
}

// Payload returns the raw item when available, otherwise the mapped fields.
func (d DebtLine) Payload() (json.RawMessage, error) {
	if len(d.Raw) > 0 {
		return d.Raw, nil
	}
	type plain DebtLine
	return json.Marshal(plain(d))
}

// DebtQueryResult is the debt lookup response reduced to its items.
type DebtQueryResult struct {
	Items []DebtLine
}

// Transaction is a created payment transaction.
type Transaction struct {
	PaymentReference string `json:"paymentReference"`
	TransactionID    string `json:"transactionId"`
	URL              string `json:"url"`
}

// DebtReport is the most recent debt lookup shown to a user.
type DebtReport struct {
	ID         string
	User       string
	Payload    json.RawMessage
	CapturedAt time.Time
}

// Line decodes the cached payload back into a DebtLine.
func (r DebtReport) Line() (DebtLine, error) {
	if len(r.Payload) == 0 {
		return DebtLine{}, ErrEmptyReport
	}
	var d DebtLine
	if err := json.Unmarshal(r.Payload, &d); err != nil {
		return DebtLine{}, err
	}
	return d, nil
}

var ErrEmptyReport = errors.New("empty report payload")

// ChatLog is the per-user, per-business-day record of raw inbound messages.
type ChatLog struct {
	User      string
	Day       string
	Messages  []json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}
