package conversation

import (
	"encoding/json"
	"errors"
)

var ErrNoReport = errors.New("confirm received without a cached report")

// Decision is what the engine chose to do for one inbound message. It is one
// of PlainReply, ConfirmReply, PaymentLink or Noop.
type Decision interface {
	decision()
}

type PlainReply struct {
	Text string
}

// ConfirmReply is sent with decline/confirm buttons. Report is the debt line
// cached for the confirm step.
type ConfirmReply struct {
	Text   string
	Report json.RawMessage
}

type PaymentLink struct {
	Text string
}

type Noop struct{}

func (PlainReply) decision()   {}
func (ConfirmReply) decision() {}
func (PaymentLink) decision()  {}
func (Noop) decision()         {}

type Outcome string

const (
	OutcomeIgnored          Outcome = "ignored"
	OutcomeOnboarding       Outcome = "onboarding"
	OutcomeExtractionFailed Outcome = "extraction_failed"
	OutcomeDebtLookupFailed Outcome = "debt_lookup_failed"
	OutcomeNoDebt           Outcome = "no_debt"
	OutcomeDebtFound        Outcome = "debt_found"
	OutcomePaymentIssued    Outcome = "payment_issued"
	OutcomePaymentFailed    Outcome = "payment_failed"
	OutcomeMissingReport    Outcome = "missing_report"
	OutcomeDeclined         Outcome = "declined"
	OutcomeUnsupported      Outcome = "unsupported"
	OutcomeDefault          Outcome = "default"
)

// Result is the engine's report for one message. Err is set when a
// collaborator failed, even if the user was sent an apology. SendFailed is
// set when the reply itself could not be delivered.
type Result struct {
	Outcome    Outcome
	Decision   Decision
	SendFailed bool
	Err        error
}
