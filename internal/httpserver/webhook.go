package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"debtbot/internal/domain"
	"debtbot/internal/observability"
	"debtbot/internal/providers/meta"
	"debtbot/internal/service"
)

const (
	WebhookPath = "/api/webhookMeta/webhookMessage"

	defaultMaxBody = 1 << 20
)

type Acceptor interface {
	Accept(ctx context.Context, businessID string, msg domain.InboundMessage) (service.Acceptance, error)
}

// Webhook receives Meta WhatsApp deliveries. Every POST answers 200 so the
// platform never retries; the JSON body only explains what happened.
type Webhook struct {
	Inbound       Acceptor
	AppSecret     []byte
	VerifyToken   string
	PhoneNumberID string

	// Timeout bounds processing of one delivery. A caller hanging up cancels
	// in-flight collaborator calls but never the seen claim. Zero means no
	// extra deadline.
	Timeout time.Duration
	MaxBody int64
}

func (w *Webhook) Register(r *mux.Router) {
	r.HandleFunc(WebhookPath, w.handleVerify).Methods(http.MethodGet)
	r.HandleFunc(WebhookPath, w.handleMessage).Methods(http.MethodPost)
}

func (w *Webhook) handleVerify(rw http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") != "subscribe" || w.VerifyToken == "" || q.Get("hub.verify_token") != w.VerifyToken {
		slog.Warn("webhook verification rejected", "mode", q.Get("hub.mode"))
		http.Error(rw, "Forbidden", http.StatusForbidden)
		return
	}
	slog.Info("webhook verified")
	rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
	rw.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(rw, q.Get("hub.challenge"))
}

func (w *Webhook) handleMessage(rw http.ResponseWriter, r *http.Request) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("webhook panic", "panic", p, "request_id", RequestIDFrom(r.Context()))
			observability.WebhookEvents.WithLabelValues("internal_error").Inc()
			writeError(rw, MsgInternal)
		}
	}()

	maxBody := w.MaxBody
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}
	body, err := io.ReadAll(http.MaxBytesReader(rw, r.Body, maxBody))
	if err != nil {
		w.reject(rw, r, "read_failed", MsgBadBody, err)
		return
	}

	// 1) signature, before anything in the body is looked at
	header := r.Header.Get(meta.SignatureHeader)
	switch {
	case header == "":
		w.reject(rw, r, "signature_missing", MsgNoSignature, nil)
		return
	case !strings.HasPrefix(header, "sha256="):
		w.reject(rw, r, "signature_malformed", MsgBadSignature, nil)
		return
	case !meta.VerifySignature(body, header, w.AppSecret):
		w.reject(rw, r, "signature_invalid", MsgUnauthorized, nil)
		return
	}

	// 2) decode + business filter
	payload, err := meta.DecodeWebhook(body)
	if err != nil {
		w.reject(rw, r, "invalid_payload", MsgBadBody, err)
		return
	}
	businessID := payload.BusinessPhoneID()
	if businessID != w.PhoneNumberID {
		w.reject(rw, r, "foreign_business", MsgForeignBusiness, nil)
		return
	}

	// 3) first message only; status callbacks carry none
	raw, ok := payload.FirstMessage()
	if !ok {
		observability.WebhookEvents.WithLabelValues("no_message").Inc()
		writeJSON(rw, map[string]any{"message": MsgNotFound})
		return
	}
	msg, err := meta.DecodeMessage(raw)
	if err != nil {
		w.reject(rw, r, "invalid_payload", MsgBadBody, err)
		return
	}

	// 4) dedup, log, dispatch
	ctx := r.Context()
	if w.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.Timeout)
		defer cancel()
	}
	acc, err := w.Inbound.Accept(ctx, businessID, msg)
	if err != nil {
		slog.Error("webhook processing failed",
			"err", err,
			"user", msg.From,
			"message_id", msg.ID,
			"request_id", RequestIDFrom(r.Context()),
		)
		writeError(rw, MsgInternal)
		return
	}
	slog.Info("webhook message accepted", "user", msg.From, "message_id", msg.ID, "acceptance", acc)
	if acc == service.AcceptDuplicate {
		writeJSON(rw, map[string]any{"message": MsgDuplicate})
		return
	}
	writeJSON(rw, map[string]any{"ok": true})
}

func (w *Webhook) reject(rw http.ResponseWriter, r *http.Request, reason, message string, err error) {
	observability.WebhookEvents.WithLabelValues(reason).Inc()
	attrs := []any{"reason", reason, "request_id", RequestIDFrom(r.Context())}
	if err != nil {
		attrs = append(attrs, "err", err)
	}
	slog.Warn("webhook rejected", attrs...)
	writeJSON(rw, map[string]any{"message": message})
}

func writeError(rw http.ResponseWriter, message string) {
	writeJSON(rw, map[string]any{"error": true, "message": message})
}

func writeJSON(rw http.ResponseWriter, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(rw).Encode(v)
}
