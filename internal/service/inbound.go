package service

import (
	"context"
	"fmt"
	"time"

	"debtbot/internal/domain"
	"debtbot/internal/observability"
	"debtbot/internal/store"
	"debtbot/internal/util"
)

// Dispatcher hands an accepted message to the conversation engine, either
// directly or through a queue.
type Dispatcher interface {
	Dispatch(ctx context.Context, businessID string, msg domain.InboundMessage) error
}

type Acceptance string

const (
	AcceptDispatched Acceptance = "dispatched"
	AcceptDuplicate  Acceptance = "duplicate"
)

type InboundService struct {
	Log        store.InboundLog
	Dispatcher Dispatcher
	DayKey     func(time.Time) string
	Now        func() time.Time
}

// Accept deduplicates msg, appends it to the sender's daily log and
// dispatches it. Once the claim is written it is never undone, even when
// dispatch fails.
func (s *InboundService) Accept(ctx context.Context, businessID string, msg domain.InboundMessage) (Acceptance, error) {
	now := util.NowUTC()
	if s.Now != nil {
		now = s.Now()
	}

	// 1) membership
	seen, err := s.Log.HasSeen(ctx, msg.From, msg.ID)
	if err != nil {
		return "", fmt.Errorf("check seen: %w", err)
	}
	if seen {
		observability.WebhookEvents.WithLabelValues("duplicate").Inc()
		return AcceptDuplicate, nil
	}

	// 2) claim + daily log; losing a concurrent claim is a duplicate too
	appended, err := s.Log.Append(ctx, store.LogEntry{
		User:      msg.From,
		MessageID: msg.ID,
		Day:       s.DayKey(now),
		Raw:       msg.Raw,
		At:        now,
	})
	if err != nil {
		return "", fmt.Errorf("append daily log: %w", err)
	}
	if !appended {
		observability.WebhookEvents.WithLabelValues("duplicate").Inc()
		return AcceptDuplicate, nil
	}

	// 3) dispatch
	if err := s.Dispatcher.Dispatch(ctx, businessID, msg); err != nil {
		observability.WebhookEvents.WithLabelValues("dispatch_error").Inc()
		return AcceptDispatched, err
	}
	observability.WebhookEvents.WithLabelValues("dispatched").Inc()
	return AcceptDispatched, nil
}
