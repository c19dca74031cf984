package store

import (
	"context"
	"time"

	"github.com/roach88/kllcore/internal/engine"
)

// DefaultWriteTimeout bounds one tick write.
const DefaultWriteTimeout = time.Second

// SessionJournal records engine ticks into one store session.
type SessionJournal struct {
	store   *Store
	session string
	timeout time.Duration
}

var _ engine.Journal = (*SessionJournal)(nil)

// StartSession writes sess and returns a journal appending to it.
func (s *Store) StartSession(ctx context.Context, sess Session) (*SessionJournal, error) {
	if err := s.WriteSession(ctx, sess); err != nil {
		return nil, err
	}
	return &SessionJournal{store: s, session: sess.ID, timeout: DefaultWriteTimeout}, nil
}

// SessionID returns the ID of the session being recorded.
func (j *SessionJournal) SessionID() string {
	return j.session
}

// RecordTick implements engine.Journal. The record is written before
// RecordTick returns, so the engine's slice reuse is safe.
func (j *SessionJournal) RecordTick(rec engine.TickRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	return j.store.WriteTick(ctx, j.session, rec)
}
