// Package memory is an in-process store for local runs and tests.
package memory

import (
	"context"
	"encoding/json"
	"sync"

	"debtbot/internal/domain"
	"debtbot/internal/store"
)

type seenKey struct{ user, messageID string }
type dayKey struct{ user, day string }

type Store struct {
	mu      sync.Mutex
	seen    map[seenKey]struct{}
	logs    map[dayKey]*domain.ChatLog
	reports map[string][]domain.DebtReport
}

func New() *Store {
	return &Store{
		seen:    map[seenKey]struct{}{},
		logs:    map[dayKey]*domain.ChatLog{},
		reports: map[string][]domain.DebtReport{},
	}
}

func (s *Store) HasSeen(_ context.Context, user, messageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[seenKey{user, messageID}]
	return ok, nil
}

func (s *Store) Append(_ context.Context, e store.LogEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := seenKey{e.User, e.MessageID}
	if _, dup := s.seen[k]; dup {
		return false, nil
	}
	s.seen[k] = struct{}{}

	dk := dayKey{e.User, e.Day}
	log, ok := s.logs[dk]
	if !ok {
		log = &domain.ChatLog{User: e.User, Day: e.Day, CreatedAt: e.At}
		s.logs[dk] = log
	}
	log.Messages = append(log.Messages, append(json.RawMessage(nil), e.Raw...))
	log.UpdatedAt = e.At
	return true, nil
}

func (s *Store) DailyLog(_ context.Context, user, day string) (domain.ChatLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	log, ok := s.logs[dayKey{user, day}]
	if !ok {
		return domain.ChatLog{}, store.ErrNotFound
	}
	out := *log
	out.Messages = append([]json.RawMessage(nil), log.Messages...)
	return out, nil
}

func (s *Store) Put(_ context.Context, r domain.DebtReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[r.User] = append(s.reports[r.User], r)
	return nil
}

func (s *Store) Latest(_ context.Context, user string) (domain.DebtReport, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs := s.reports[user]
	if len(rs) == 0 {
		return domain.DebtReport{}, false, nil
	}
	best := rs[0]
	for _, r := range rs[1:] {
		if !r.CapturedAt.Before(best.CapturedAt) {
			best = r
		}
	}
	return best, true, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() {}
