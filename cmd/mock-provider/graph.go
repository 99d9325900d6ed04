package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
)

type sentMessage struct {
	PhoneID string          `json:"phoneId"`
	To      string          `json:"to"`
	Type    string          `json:"type"`
	Body    json.RawMessage `json:"body"`
	At      time.Time       `json:"at"`
}

func (s *server) handleGraphSend(w http.ResponseWriter, r *http.Request) {
	s.delay()
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": map[string]any{"message": "missing access token", "code": 190}})
		return
	}

	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]any{"message": "invalid json", "code": 100}})
		return
	}
	var head struct {
		To   string `json:"to"`
		Type string `json:"type"`
	}
	_ = json.Unmarshal(raw, &head)

	s.mu.Lock()
	s.sent = append(s.sent, sentMessage{
		PhoneID: mux.Vars(r)["phoneId"],
		To:      head.To,
		Type:    head.Type,
		Body:    raw,
		At:      time.Now().UTC(),
	})
	n := len(s.sent)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"messaging_product": "whatsapp",
		"contacts":          []map[string]string{{"input": head.To, "wa_id": head.To}},
		"messages":          []map[string]string{{"id": fmt.Sprintf("wamid.mock.%06d", n)}},
	})
}

func (s *server) handleSent(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := append([]sentMessage(nil), s.sent...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
