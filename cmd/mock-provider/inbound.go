package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"debtbot/internal/providers/meta"
)

// simulateRequest describes one user message to deliver to the webhook.
// Kind is text, button or audio.
type simulateRequest struct {
	From     string `json:"from"`
	Kind     string `json:"kind"`
	Text     string `json:"text"`
	ButtonID string `json:"buttonId"`
	// MessageID is generated when empty; reuse one to exercise redelivery.
	MessageID string `json:"messageId"`
}

func (s *server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.From == "" {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.MessageID == "" {
		req.MessageID = fmt.Sprintf("wamid.sim.%d", time.Now().UnixNano())
	}

	body, err := s.deliveryBody(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	status, respBody, err := s.postWebhookWithRetry(r.Context(), body)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"messageId":      req.MessageID,
		"webhookStatus":  status,
		"webhookMessage": json.RawMessage(orNull(respBody)),
	})
}

func orNull(b []byte) []byte {
	if len(bytes.TrimSpace(b)) == 0 {
		return []byte("null")
	}
	return b
}

func (s *server) deliveryBody(req simulateRequest) ([]byte, error) {
	msg := map[string]any{
		"from":      req.From,
		"id":        req.MessageID,
		"timestamp": strconv.FormatInt(time.Now().Unix(), 10),
	}
	switch req.Kind {
	case "", "text":
		msg["type"] = "text"
		msg["text"] = map[string]string{"body": req.Text}
	case "button":
		msg["type"] = "interactive"
		msg["interactive"] = map[string]any{
			"type":         "button_reply",
			"button_reply": map[string]string{"id": req.ButtonID, "title": req.ButtonID},
		}
	case "audio":
		msg["type"] = "audio"
		msg["audio"] = map[string]string{"id": "media.sim", "mime_type": "audio/ogg; codecs=opus"}
	default:
		return nil, fmt.Errorf("unknown kind %q", req.Kind)
	}

	return json.Marshal(map[string]any{
		"object": "whatsapp_business_account",
		"entry": []any{map[string]any{
			"id": "mock_waba",
			"changes": []any{map[string]any{
				"field": "messages",
				"value": map[string]any{
					"messaging_product": "whatsapp",
					"metadata":          map[string]string{"display_phone_number": "570000000000", "phone_number_id": s.cfg.PhoneNumberID},
					"messages":          []any{msg},
				},
			}},
		}},
	})
}

func (s *server) postWebhookWithRetry(ctx context.Context, body []byte) (int, []byte, error) {
	sig := meta.Sign(body, []byte(s.cfg.AppSecret))
	maxAttempts := s.cfg.WebhookMaxRetries + 1

	for attempt := 0; attempt < maxAttempts; attempt++ {
		req, _ := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.WebhookURL, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(meta.SignatureHeader, sig)

		resp, err := s.client.Do(req)
		if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			var buf bytes.Buffer
			_, _ = buf.ReadFrom(resp.Body)
			_ = resp.Body.Close()
			return resp.StatusCode, buf.Bytes(), nil
		}

		status := 0
		if resp != nil {
			status = resp.StatusCode
			_ = resp.Body.Close()
		}
		if attempt == maxAttempts-1 {
			if err != nil {
				return status, nil, err
			}
			return status, nil, fmt.Errorf("webhook post failed: status=%d", status)
		}
		if err == nil && !isRetryableStatus(status) {
			return status, nil, fmt.Errorf("webhook post non-retryable: status=%d", status)
		}

		wait := s.retryBackoff(attempt)
		slog.Warn("mock webhook post retrying", "attempt", attempt+1, "status", status, "wait_ms", wait.Milliseconds())
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return status, nil, ctx.Err()
		}
	}
	return 0, nil, nil
}

// retryBackoff is base * 2^attempt capped at max, with +/-20% jitter.
func (s *server) retryBackoff(attempt int) time.Duration {
	base, limit := s.cfg.WebhookRetryBase, s.cfg.WebhookRetryMax
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	if limit <= 0 {
		limit = 5 * time.Second
	}
	wait := base * time.Duration(1<<attempt)
	if wait > limit {
		wait = limit
	}

	delta := int64(wait) / 5
	if delta <= 0 {
		return wait
	}
	s.rngMu.Lock()
	j := s.rng.Int63n(2*delta+1) - delta
	s.rngMu.Unlock()
	return time.Duration(int64(wait) + j)
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
