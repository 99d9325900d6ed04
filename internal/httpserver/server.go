package httpserver

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"debtbot/internal/observability"
)

type Server struct {
	Mux *mux.Router
}

// New returns a router with request id, logging and metrics middleware.
func New() *Server {
	r := mux.NewRouter()
	r.Use(RequestID, Logging, Metrics(observability.HTTPRequests))
	return &Server{Mux: r}
}

// MetricsHandler serves /metrics for the separate metrics listener.
func MetricsHandler() http.Handler {
	m := http.NewServeMux()
	m.Handle("/metrics", promhttp.Handler())
	return m
}
