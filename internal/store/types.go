package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"debtbot/internal/domain"
)

var ErrNotFound = errors.New("not found")

// LogEntry is one accepted inbound message destined for the daily log.
type LogEntry struct {
	User      string
	MessageID string
	Day       string
	Raw       json.RawMessage
	At        time.Time
}

// InboundLog records seen message ids and per-day message logs.
//
// Append is the first-writer-wins claim on (User, MessageID): it records the
// id and appends Raw to the day's log atomically, and returns false without
// touching the log when the id was already recorded.
type InboundLog interface {
	HasSeen(ctx context.Context, user, messageID string) (bool, error)
	Append(ctx context.Context, e LogEntry) (appended bool, err error)
	DailyLog(ctx context.Context, user, day string) (domain.ChatLog, error)
}

// Reports never overwrites; Latest picks the greatest CapturedAt.
type Reports interface {
	Put(ctx context.Context, r domain.DebtReport) error
	Latest(ctx context.Context, user string) (domain.DebtReport, bool, error)
}

type Store interface {
	InboundLog
	Reports
	Ping(ctx context.Context) error
	Close()
}
