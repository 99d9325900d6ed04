package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"debtbot/internal/domain"
	"debtbot/internal/store"
)

type Store struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

func (s *Store) HasSeen(ctx context.Context, user, messageID string) (bool, error) {
	var exists bool
	err := s.DB.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM seen_messages WHERE user_id=$1 AND message_id=$2)
	`, user, messageID).Scan(&exists)
	return exists, err
}

// Append inserts the seen id and appends to the day's log in one
// transaction. A concurrent insert of the same id blocks on the primary key
// until the first commits, then sees the conflict.
func (s *Store) Append(ctx context.Context, e store.LogEntry) (bool, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, `
		INSERT INTO seen_messages (user_id, message_id, day, seen_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (user_id, message_id) DO NOTHING
	`, e.User, e.MessageID, e.Day, e.At)
	if err != nil {
		return false, fmt.Errorf("claim message: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return false, nil
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO daily_logs (user_id, day, messages, created_at, updated_at)
		VALUES ($1,$2,jsonb_build_array($3::jsonb),$4,$4)
		ON CONFLICT (user_id, day)
		DO UPDATE SET messages = daily_logs.messages || jsonb_build_array($3::jsonb), updated_at=$4
	`, e.User, e.Day, string(e.Raw), e.At)
	if err != nil {
		return false, fmt.Errorf("append daily log: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) DailyLog(ctx context.Context, user, day string) (domain.ChatLog, error) {
	out := domain.ChatLog{User: user, Day: day}
	var raw []byte
	err := s.DB.QueryRow(ctx, `
		SELECT messages, created_at, updated_at FROM daily_logs WHERE user_id=$1 AND day=$2
	`, user, day).Scan(&raw, &out.CreatedAt, &out.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ChatLog{}, store.ErrNotFound
	}
	if err != nil {
		return domain.ChatLog{}, err
	}
	if err := json.Unmarshal(raw, &out.Messages); err != nil {
		return domain.ChatLog{}, fmt.Errorf("decode daily log: %w", err)
	}
	return out, nil
}

func (s *Store) Put(ctx context.Context, r domain.DebtReport) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO reports (id, user_id, payload, captured_at) VALUES ($1,$2,$3::jsonb,$4)
	`, r.ID, r.User, string(r.Payload), r.CapturedAt)
	return err
}

func (s *Store) Latest(ctx context.Context, user string) (domain.DebtReport, bool, error) {
	r := domain.DebtReport{User: user}
	var payload []byte
	err := s.DB.QueryRow(ctx, `
		SELECT id, payload, captured_at FROM reports
		WHERE user_id=$1
		ORDER BY captured_at DESC, id DESC
		LIMIT 1
	`, user).Scan(&r.ID, &payload, &r.CapturedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DebtReport{}, false, nil
	}
	if err != nil {
		return domain.DebtReport{}, false, err
	}
	r.Payload = payload
	r.CapturedAt = r.CapturedAt.UTC()
	return r, true, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.DB.Ping(ctx) }

func (s *Store) Close() { s.DB.Close() }
