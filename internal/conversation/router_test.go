package conversation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"debtbot/internal/domain"
)

func tagged(o Outcome) Handler {
	return func(context.Context, string, domain.InboundMessage) Result {
		return Result{Outcome: o}
	}
}

func TestRouteKnownTypes(t *testing.T) {
	r := Router{
		Text:        tagged("text"),
		Interactive: tagged("interactive"),
		Audio:       tagged("audio"),
		Default:     tagged("default"),
	}
	for _, mt := range []domain.MessageType{domain.TypeText, domain.TypeInteractive, domain.TypeAudio} {
		res := r.Route(mt)(context.Background(), "", domain.InboundMessage{})
		require.Equal(t, Outcome(mt), res.Outcome)
	}
}

func TestRouteFallsBackToDefault(t *testing.T) {
	r := Router{
		Text:    tagged("text"),
		Default: tagged("default"),
	}
	for _, mt := range []domain.MessageType{domain.TypeUnknown, "image", "sticker", "location", "", domain.TypeInteractive, domain.TypeAudio} {
		h := r.Route(mt)
		require.NotNil(t, h, mt)
		require.Equal(t, Outcome("default"), h(context.Background(), "", domain.InboundMessage{}).Outcome, mt)
	}
}

func TestRouteNeverReturnsNil(t *testing.T) {
	var r Router
	h := r.Route("anything")
	require.NotNil(t, h)
	require.Equal(t, OutcomeIgnored, h(context.Background(), "", domain.InboundMessage{}).Outcome)
}
