package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const mockToken = "mock-sci-token"

var sciOK = map[string]any{"errorCount": 0, "errors": nil}

func (s *server) handleAuth(w http.ResponseWriter, r *http.Request) {
	s.delay()
	if err := r.ParseForm(); err != nil || r.PostForm.Get("Username") == "" || r.PostForm.Get("Password") == "" {
		writeJSON(w, http.StatusOK, map[string]any{"response": map[string]any{"errorCount": 1, "errors": []string{"credenciales inválidas"}}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": mockToken, "response": sciOK})
}

func authorized(r *http.Request) bool {
	return r.Header.Get("Authorization") == "Bearer "+mockToken
}

func (s *server) handleDebt(w http.ResponseWriter, r *http.Request) {
	s.delay()
	if !authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req struct {
		ClientID string `json:"idCliente"`
		Plate    string `json:"placa"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	switch s.cfg.DebtMode {
	case "error":
		writeJSON(w, http.StatusOK, map[string]any{"response": map[string]any{"errorCount": 1, "errors": []string{"servicio no disponible"}}})
	case "none":
		writeJSON(w, http.StatusOK, map[string]any{"informacionDepartamental": []any{}, "response": sciOK})
	default:
		writeJSON(w, http.StatusOK, map[string]any{
			"informacionDepartamental": []map[string]any{sampleLine(req.Plate)},
			"response":                 sciOK,
		})
	}
}

func sampleLine(plate string) map[string]any {
	year := time.Now().Year()
	return map[string]any{
		"placa":       strings.ToUpper(plate),
		"vigencia":    fmt.Sprint(year),
		"muniMatr":    "MEDELLIN",
		"deptoMatr":   "ANTIOQUIA",
		"declaracion": "2024000123456",
		"total":       917688,
		"sancion":     0,
		"interes":     "12500",
		"descuento":   0,
		"descSancion": 0,
		"descInteres": 0,
		"fechaLim":    fmt.Sprintf("%d-07-31T00:00:00", year),
	}
}

func (s *server) handleTransaction(w http.ResponseWriter, r *http.Request) {
	s.delay()
	if !authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req struct {
		Total string `json:"valorTotal"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Total == "" {
		writeJSON(w, http.StatusOK, map[string]any{"response": map[string]any{"errorCount": 1, "errors": []string{"valorTotal requerido"}}})
		return
	}

	s.mu.Lock()
	s.txN++
	n := s.txN
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"paymentReference": fmt.Sprintf("REF%08d", n),
		"transactionId":    fmt.Sprintf("TX%08d", n),
		"url":              fmt.Sprintf("https://pagos.example.com/checkout/TX%08d", n),
		"response":         sciOK,
	})
}
