package conversation

import (
	"context"

	"debtbot/internal/domain"
)

type Extractor interface {
	Extract(ctx context.Context, text string) (domain.VehicleData, error)
}

// Drafter may return an empty string, which selects FallbackSummary.
type Drafter interface {
	Draft(ctx context.Context, line domain.DebtLine) (string, error)
}

type DebtAPI interface {
	QueryDebt(ctx context.Context, plate, clientID string) (domain.DebtQueryResult, error)
}

type PaymentAPI interface {
	CreateTransaction(ctx context.Context, line domain.DebtLine) (domain.Transaction, error)
}

type Messenger interface {
	SendText(ctx context.Context, businessID, to, text string) error
	SendInteractiveConfirm(ctx context.Context, businessID, to, text string) error
}

// ReportCache keeps every report; Latest returns the newest by CapturedAt.
type ReportCache interface {
	Put(ctx context.Context, r domain.DebtReport) error
	Latest(ctx context.Context, user string) (domain.DebtReport, bool, error)
}
