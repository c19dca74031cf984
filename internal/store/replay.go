package store

import (
	"context"
	"fmt"

	"github.com/roach88/kllcore/internal/compiler"
	"github.com/roach88/kllcore/internal/engine"
	"github.com/roach88/kllcore/internal/ir"
)

// Recording is a session loaded back for replay.
type Recording struct {
	Session Session
	Tables  *ir.TableSet
	Ticks   []engine.TickRecord
}

// LoadReplay loads a session, decodes its table blob and reads its ticks.
// The decoded tables are checked against the recorded hash so a tampered
// blob is rejected before it is replayed.
func (s *Store) LoadReplay(ctx context.Context, sessionID string) (*Recording, error) {
	sess, err := s.ReadSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load replay %s: %w", sessionID, err)
	}

	ts, err := compiler.DecodeTables(sess.Tables)
	if err != nil {
		return nil, fmt.Errorf("load replay %s: %w", sessionID, err)
	}
	hash, err := ir.TableHash(ts)
	if err != nil {
		return nil, fmt.Errorf("load replay %s: %w", sessionID, err)
	}
	if hash != sess.TableHash {
		return nil, fmt.Errorf("load replay %s: table hash %s does not match recorded %s", sessionID, hash, sess.TableHash)
	}

	ticks, err := s.ReadTicks(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load replay %s: %w", sessionID, err)
	}

	return &Recording{Session: sess, Tables: ts, Ticks: ticks}, nil
}

// Replay re-runs a recorded session. The engine is configured from the
// session's recorded config; opts supply the rest (registry, logger).
func (r *Recording) Replay(opts ...engine.Option) (*engine.ReplayResult, error) {
	opts = append([]engine.Option{engine.WithConfig(r.Session.Config)}, opts...)
	return engine.Replay(r.Tables, r.Ticks, opts...)
}
