package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "debtbot_http_requests_total", Help: "HTTP requests"},
		[]string{"route", "status"},
	)
	WebhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "whatsapp_webhook_events_total", Help: "Webhook deliveries by outcome"},
		[]string{"outcome"},
	)
	Decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "conversation_decisions_total", Help: "Conversation engine outcomes"},
		[]string{"outcome"},
	)
	CollaboratorCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "collaborator_calls_total", Help: "Outbound collaborator call results"},
		[]string{"collaborator", "result"},
	)
	CollaboratorLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "collaborator_latency_seconds", Help: "Outbound collaborator latency"},
		[]string{"collaborator"},
	)
	WhatsAppSend = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "whatsapp_send_total", Help: "Graph API send outcomes"},
		[]string{"kind", "result"},
	)
	Enqueues = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "inbound_enqueue_total", Help: "SQS enqueue results"},
		[]string{"result"},
	)
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(HTTPRequests, WebhookEvents, Decisions, CollaboratorCalls, CollaboratorLatency, WhatsAppSend, Enqueues)
}
