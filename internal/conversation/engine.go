// Package conversation holds the debt inquiry state machine: plate
// extraction, debt lookup, confirm prompt, and payment link issuance.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"debtbot/internal/domain"
	"debtbot/internal/observability"
	"debtbot/internal/util"
)

// Engine owns no state. The conversation position of a user is implied by
// whether a cached report exists when an interactive reply arrives.
type Engine struct {
	Extractor Extractor
	Drafter   Drafter
	Debts     DebtAPI
	Payments  PaymentAPI
	Messenger Messenger
	Reports   ReportCache

	// ClientID is sent with every debt query.
	ClientID string
	// SendTimeout bounds each reply and report write. Replies ignore the
	// deadline and cancellation of the branch context.
	SendTimeout time.Duration
	Now         func() time.Time
}

const defaultSendTimeout = 15 * time.Second

// replyCtx keeps the values of ctx but not its deadline or cancellation.
func (e *Engine) replyCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	d := e.SendTimeout
	if d <= 0 {
		d = defaultSendTimeout
	}
	return context.WithTimeout(context.WithoutCancel(ctx), d)
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return util.NowUTC()
}

func (e *Engine) router() Router {
	return Router{
		Text:        e.handleText,
		Interactive: e.handleInteractive,
		Audio:       e.handleAudio,
		Default:     e.handleDefault,
	}
}

// Handle runs exactly one branch for msg and delivers its reply.
func (e *Engine) Handle(ctx context.Context, businessID string, msg domain.InboundMessage) Result {
	var res Result
	if msg.From == "" {
		res = Result{Outcome: OutcomeIgnored, Decision: Noop{}}
	} else {
		res = e.router().Route(msg.Type)(ctx, businessID, msg)
	}

	observability.Decisions.WithLabelValues(string(res.Outcome)).Inc()
	attrs := []any{
		"user", msg.From,
		"message_id", msg.ID,
		"type", msg.DeclaredType,
		"outcome", res.Outcome,
		"send_failed", res.SendFailed,
	}
	if res.Err != nil {
		slog.Error("conversation step failed", append(attrs, "err", res.Err)...)
	} else {
		slog.Info("conversation step", attrs...)
	}
	return res
}

// Dispatch adapts Handle to the inbound service. Collaborator failures have
// already been answered to the user and are returned only for logging.
func (e *Engine) Dispatch(ctx context.Context, businessID string, msg domain.InboundMessage) error {
	res := e.Handle(ctx, businessID, msg)
	if res.Err != nil {
		return fmt.Errorf("%s: %w", res.Outcome, res.Err)
	}
	return nil
}

func (e *Engine) handleText(ctx context.Context, businessID string, msg domain.InboundMessage) Result {
	if msg.Text == nil {
		return e.handleDefault(ctx, businessID, msg)
	}

	// 1) extract
	vehicle, err := e.Extractor.Extract(ctx, msg.Text.Body)
	if err != nil {
		return e.plain(ctx, businessID, msg.From, OutcomeExtractionFailed, ExtractFailedText, err)
	}
	if vehicle.Plate == "" {
		return e.plain(ctx, businessID, msg.From, OutcomeOnboarding, OnboardingText, nil)
	}

	// 2) lookup
	debt, err := e.Debts.QueryDebt(ctx, vehicle.Plate, e.ClientID)
	if err != nil {
		return e.plain(ctx, businessID, msg.From, OutcomeDebtLookupFailed, LookupFailedText, err)
	}
	if len(debt.Items) == 0 {
		return e.plain(ctx, businessID, msg.From, OutcomeNoDebt, NoDebtText(vehicle.Plate), nil)
	}
	line := debt.Items[0]

	// 3) draft, falling back to the fixed template
	text, err := e.Drafter.Draft(ctx, line)
	if err != nil {
		slog.Warn("draft failed, using fallback summary", "user", msg.From, "err", err)
		text = ""
	}
	if text == "" {
		text = FallbackSummary(line)
	}

	payload, err := line.Payload()
	if err != nil {
		return e.plain(ctx, businessID, msg.From, OutcomeDebtLookupFailed, LookupFailedText, err)
	}
	res := Result{
		Outcome:  OutcomeDebtFound,
		Decision: ConfirmReply{Text: text, Report: payload},
	}

	// 4) prompt, then cache what was shown
	sendCtx, cancel := e.replyCtx(ctx)
	defer cancel()
	if err := e.Messenger.SendInteractiveConfirm(sendCtx, businessID, msg.From, text); err != nil {
		slog.Warn("send confirm prompt failed", "user", msg.From, "err", err)
		res.SendFailed = true
	}
	now := e.now()
	report := domain.DebtReport{
		ID:         util.NewReportID(now),
		User:       msg.From,
		Payload:    payload,
		CapturedAt: now,
	}
	if err := e.Reports.Put(sendCtx, report); err != nil {
		res.Err = fmt.Errorf("cache report: %w", err)
	}
	return res
}

func (e *Engine) handleInteractive(ctx context.Context, businessID string, msg domain.InboundMessage) Result {
	if msg.Interactive == nil || msg.Interactive.ButtonReply == nil {
		return e.handleDefault(ctx, businessID, msg)
	}
	if msg.Interactive.ButtonReply.ID != domain.ButtonConfirm {
		return e.plain(ctx, businessID, msg.From, OutcomeDeclined, DeclinedText, nil)
	}

	report, found, err := e.Reports.Latest(ctx, msg.From)
	if err != nil {
		return e.plain(ctx, businessID, msg.From, OutcomePaymentFailed, PaymentFailedText, fmt.Errorf("load report: %w", err))
	}
	if !found {
		return e.plain(ctx, businessID, msg.From, OutcomeMissingReport, MissingReportText, ErrNoReport)
	}
	line, err := report.Line()
	if err != nil {
		if errors.Is(err, domain.ErrEmptyReport) {
			err = ErrNoReport
		}
		return e.plain(ctx, businessID, msg.From, OutcomeMissingReport, MissingReportText, err)
	}

	tx, err := e.Payments.CreateTransaction(ctx, line)
	if err != nil {
		return e.plain(ctx, businessID, msg.From, OutcomePaymentFailed, PaymentFailedText, err)
	}

	text := PaymentLinkText(line.Plate, tx)
	res := Result{Outcome: OutcomePaymentIssued, Decision: PaymentLink{Text: text}}
	sendCtx, cancel := e.replyCtx(ctx)
	defer cancel()
	if err := e.Messenger.SendText(sendCtx, businessID, msg.From, text); err != nil {
		slog.Warn("send payment link failed", "user", msg.From, "err", err)
		res.SendFailed = true
	}
	return res
}

func (e *Engine) handleAudio(ctx context.Context, businessID string, msg domain.InboundMessage) Result {
	return e.plain(ctx, businessID, msg.From, OutcomeUnsupported, AudioText, nil)
}

func (e *Engine) handleDefault(ctx context.Context, businessID string, msg domain.InboundMessage) Result {
	return e.plain(ctx, businessID, msg.From, OutcomeDefault, DefaultText, nil)
}

// plain sends text and reports outcome. cause is recorded, not returned.
func (e *Engine) plain(ctx context.Context, businessID, to string, outcome Outcome, text string, cause error) Result {
	res := Result{Outcome: outcome, Decision: PlainReply{Text: text}, Err: cause}
	sendCtx, cancel := e.replyCtx(ctx)
	defer cancel()
	if err := e.Messenger.SendText(sendCtx, businessID, to, text); err != nil {
		slog.Warn("send reply failed", "user", to, "outcome", outcome, "err", err)
		res.SendFailed = true
	}
	return res
}
