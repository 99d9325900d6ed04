package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"debtbot/internal/conversation"
	"debtbot/internal/domain"
	"debtbot/internal/store"
	"debtbot/internal/store/memory"
	"debtbot/internal/util"
)

type countingLog struct {
	*memory.Store
	appends atomic.Int32
}

func (c *countingLog) Append(ctx context.Context, e store.LogEntry) (bool, error) {
	c.appends.Add(1)
	return c.Store.Append(ctx, e)
}

type countingDispatcher struct {
	calls atomic.Int32
	err   error
}

func (d *countingDispatcher) Dispatch(context.Context, string, domain.InboundMessage) error {
	d.calls.Add(1)
	return d.err
}

var fixedNow = time.Date(2024, 3, 6, 3, 30, 0, 0, time.UTC)

func newService(log store.InboundLog, d Dispatcher) *InboundService {
	return &InboundService{
		Log:        log,
		Dispatcher: d,
		DayKey:     util.DayKeyFunc(-5 * time.Hour),
		Now:        func() time.Time { return fixedNow },
	}
}

func msg(id string) domain.InboundMessage {
	return domain.InboundMessage{
		ID:   id,
		From: "573001112233",
		Type: domain.TypeText,
		Text: &domain.TextBody{Body: "ABC123"},
		Raw:  json.RawMessage(`{"id":"` + id + `"}`),
	}
}

func TestAcceptDeduplicates(t *testing.T) {
	ctx := context.Background()
	log := &countingLog{Store: memory.New()}
	d := &countingDispatcher{}
	svc := newService(log, d)

	got, err := svc.Accept(ctx, "PNID", msg("wamid.1"))
	require.NoError(t, err)
	require.Equal(t, AcceptDispatched, got)

	got, err = svc.Accept(ctx, "PNID", msg("wamid.1"))
	require.NoError(t, err)
	require.Equal(t, AcceptDuplicate, got)

	require.EqualValues(t, 1, d.calls.Load())
	require.EqualValues(t, 1, log.appends.Load())
}

func TestAcceptUsesBusinessDay(t *testing.T) {
	ctx := context.Background()
	log := memory.New()
	svc := newService(log, &countingDispatcher{})

	_, err := svc.Accept(ctx, "PNID", msg("wamid.1"))
	require.NoError(t, err)

	// 03:30 UTC is still the previous day at UTC-5.
	day, err := log.DailyLog(ctx, "573001112233", "2024-03-05")
	require.NoError(t, err)
	require.Len(t, day.Messages, 1)
}

func TestAcceptLogsUnsupportedTypes(t *testing.T) {
	ctx := context.Background()
	log := memory.New()
	d := &countingDispatcher{}
	svc := newService(log, d)

	m := domain.InboundMessage{ID: "wamid.s", From: "573001112233", Type: domain.TypeUnknown, DeclaredType: "sticker", Raw: json.RawMessage(`{"type":"sticker"}`)}
	_, err := svc.Accept(ctx, "PNID", m)
	require.NoError(t, err)

	day, err := log.DailyLog(ctx, "573001112233", "2024-03-05")
	require.NoError(t, err)
	require.Len(t, day.Messages, 1)
	require.EqualValues(t, 1, d.calls.Load())
}

func TestDispatchFailureKeepsClaim(t *testing.T) {
	ctx := context.Background()
	log := memory.New()
	d := &countingDispatcher{err: errors.New("queue down")}
	svc := newService(log, d)

	_, err := svc.Accept(ctx, "PNID", msg("wamid.1"))
	require.Error(t, err)

	got, err := svc.Accept(ctx, "PNID", msg("wamid.1"))
	require.NoError(t, err)
	require.Equal(t, AcceptDuplicate, got)
	require.EqualValues(t, 1, d.calls.Load())
}

func TestConcurrentRedeliveryDispatchesOnce(t *testing.T) {
	ctx := context.Background()
	d := &countingDispatcher{}
	svc := newService(memory.New(), d)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Accept(ctx, "PNID", msg("wamid.race"))
			require.NoError(t, err)
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, d.calls.Load())
}

type stubMessenger struct{ sends atomic.Int32 }

func (m *stubMessenger) SendText(context.Context, string, string, string) error {
	m.sends.Add(1)
	return nil
}

func (m *stubMessenger) SendInteractiveConfirm(context.Context, string, string, string) error {
	m.sends.Add(1)
	return nil
}

type stubSCI struct{ queries atomic.Int32 }

func (s *stubSCI) QueryDebt(context.Context, string, string) (domain.DebtQueryResult, error) {
	s.queries.Add(1)
	return domain.DebtQueryResult{Items: []domain.DebtLine{{Plate: "ABC123", Total: "917688"}}}, nil
}

func (s *stubSCI) CreateTransaction(context.Context, domain.DebtLine) (domain.Transaction, error) {
	return domain.Transaction{}, nil
}

type stubLLM struct{}

func (stubLLM) Extract(context.Context, string) (domain.VehicleData, error) {
	return domain.VehicleData{Plate: "ABC123"}, nil
}

func (stubLLM) Draft(context.Context, domain.DebtLine) (string, error) { return "", nil }

func TestRedeliveryHasNoSideEffects(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	msgr := &stubMessenger{}
	sci := &stubSCI{}
	engine := &conversation.Engine{
		Extractor: stubLLM{},
		Drafter:   stubLLM{},
		Debts:     sci,
		Payments:  sci,
		Messenger: msgr,
		Reports:   st,
		ClientID:  "1",
	}
	svc := newService(st, engine)

	for i := 0; i < 3; i++ {
		_, err := svc.Accept(ctx, "PNID", msg("wamid.1"))
		require.NoError(t, err)
	}

	require.EqualValues(t, 1, msgr.sends.Load())
	require.EqualValues(t, 1, sci.queries.Load())
	day, err := st.DailyLog(ctx, "573001112233", "2024-03-05")
	require.NoError(t, err)
	require.Len(t, day.Messages, 1)

	_, found, err := st.Latest(ctx, "573001112233")
	require.NoError(t, err)
	require.True(t, found)
}
