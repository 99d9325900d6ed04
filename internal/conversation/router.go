package conversation

import (
	"context"

	"debtbot/internal/domain"
)

type Handler func(ctx context.Context, businessID string, msg domain.InboundMessage) Result

// Router resolves a message type to its handler. Route never returns nil:
// any type without a dedicated handler gets Default.
type Router struct {
	Text        Handler
	Interactive Handler
	Audio       Handler
	Default     Handler
}

func (r Router) Route(t domain.MessageType) Handler {
	var h Handler
	switch t {
	case domain.TypeText:
		h = r.Text
	case domain.TypeInteractive:
		h = r.Interactive
	case domain.TypeAudio:
		h = r.Audio
	default:
		h = r.Default
	}
	if h == nil {
		h = r.Default
	}
	if h == nil {
		h = noopHandler
	}
	return h
}

func noopHandler(context.Context, string, domain.InboundMessage) Result {
	return Result{Outcome: OutcomeIgnored, Decision: Noop{}}
}
