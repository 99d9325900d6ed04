package meta

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"debtbot/internal/observability"
	"debtbot/internal/resilience"
)

const (
	confirmFooter = "¿Deseas generar el pago ahora?"
	buttonDecline = "0"
	buttonConfirm = "1"
)

// Client sends messages through the WhatsApp Cloud (Graph) API.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
	Guard   *resilience.Guard
}

// SendError is a non-2xx Graph API response.
type SendError struct {
	Status int
	Body   string
}

func (e *SendError) Error() string {
	return fmt.Sprintf("graph api: status %d: %s", e.Status, e.Body)
}

type textMessage struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

type textBody struct {
	Body string `json:"body"`
}

type interactiveMessage struct {
	MessagingProduct string      `json:"messaging_product"`
	To               string      `json:"to"`
	Type             string      `json:"type"`
	Interactive      interactive `json:"interactive"`
}

type interactive struct {
	Type   string   `json:"type"`
	Body   textBody `json:"body"`
	Footer textBody `json:"footer"`
	Action action   `json:"action"`
}

type action struct {
	Buttons []button `json:"buttons"`
}

type button struct {
	Type  string      `json:"type"`
	Reply buttonReply `json:"reply"`
}

type buttonReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// SendResponse is the subset of the Graph API send response we read.
type SendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

func (c *Client) SendText(ctx context.Context, businessID, to, text string) error {
	return c.send(ctx, "text", businessID, textMessage{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             textBody{Body: text},
	})
}

// SendInteractiveConfirm sends text with a decline/confirm button pair.
func (c *Client) SendInteractiveConfirm(ctx context.Context, businessID, to, text string) error {
	return c.send(ctx, "interactive", businessID, interactiveMessage{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "interactive",
		Interactive: interactive{
			Type:   "button",
			Body:   textBody{Body: text},
			Footer: textBody{Body: confirmFooter},
			Action: action{Buttons: []button{
				{Type: "reply", Reply: buttonReply{ID: buttonDecline, Title: "❌"}},
				{Type: "reply", Reply: buttonReply{ID: buttonConfirm, Title: "✅"}},
			}},
		},
	})
}

func (c *Client) send(ctx context.Context, kind, businessID string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	endpoint := strings.TrimRight(c.BaseURL, "/") + "/" + businessID + "/messages"

	err = c.Guard.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.Token)

		resp, err := c.HTTP.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &SendError{Status: resp.StatusCode, Body: string(b)}
		}
		var out SendResponse
		if json.Unmarshal(b, &out) == nil && len(out.Messages) > 0 {
			slog.Debug("graph api message accepted", "kind", kind, "wamid", out.Messages[0].ID)
		}
		return nil
	})
	if err != nil {
		observability.WhatsAppSend.WithLabelValues(kind, "error").Inc()
		return err
	}
	observability.WhatsAppSend.WithLabelValues(kind, "ok").Inc()
	return nil
}
