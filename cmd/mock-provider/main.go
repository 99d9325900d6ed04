package main

import (
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"debtbot/internal/config"
	"debtbot/internal/logging"
)

type server struct {
	cfg    config.MockProviderConfig
	client *http.Client

	rngMu sync.Mutex
	rng   *rand.Rand

	mu   sync.Mutex
	sent []sentMessage
	txN  uint64
}

func newServer(cfg config.MockProviderConfig) *server {
	return &server{
		cfg:    cfg,
		client: &http.Client{Timeout: 5 * time.Second},
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *server) routes() *mux.Router {
	r := mux.NewRouter()

	sci := r.PathPrefix("/sci").Subrouter()
	sci.HandleFunc("/Autenticacion", s.handleAuth).Methods(http.MethodPost)
	sci.HandleFunc("/TotalApp/DeudaPlaca/{paramId}", s.handleDebt).Methods(http.MethodPost)
	sci.HandleFunc("/TotalApp/CrearTransaccion", s.handleTransaction).Methods(http.MethodPost)

	r.HandleFunc("/simulate/inbound", s.handleSimulate).Methods(http.MethodPost)
	r.HandleFunc("/sent", s.handleSent).Methods(http.MethodGet)
	r.HandleFunc("/{phoneId}/messages", s.handleGraphSend).Methods(http.MethodPost)
	return r
}

func main() {
	cfg, err := config.LoadMockProvider()
	if err != nil {
		slog.Error("mock provider config load failed", "err", err)
		os.Exit(1)
	}
	logging.Init("mock-provider", cfg.LogFormat)

	s := newServer(cfg)
	slog.Info("mock provider listening", "port", cfg.Port, "debt_mode", cfg.DebtMode)
	if err := http.ListenAndServe(":"+cfg.Port, loggingMiddleware(s.routes())); err != nil {
		slog.Error("mock provider server failed", "err", err)
		os.Exit(1)
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		slog.Info("mock provider request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *server) delay() {
	if s.cfg.Delay > 0 {
		time.Sleep(s.cfg.Delay)
	}
}
