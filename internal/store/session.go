package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/kllcore/internal/config"
	"github.com/roach88/kllcore/internal/ir"
)

// Session is one recorded engine run.
type Session struct {
	ID        string
	TableName string
	TableHash string

	// Tables is the canonical table blob the session ran with.
	Tables []byte

	Config  config.Engine
	Version string

	// CreatedSeq is the engine seq when the session started; non-zero when
	// a session is opened against an engine that already ran.
	CreatedSeq int64
}

// NewSession describes a session for ts with a fresh time-ordered ID.
func NewSession(ts *ir.TableSet, cfg config.Engine) (Session, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Session{}, fmt.Errorf("new session: %w", err)
	}
	return newSession(id.String(), ts, cfg)
}

func newSession(id string, ts *ir.TableSet, cfg config.Engine) (Session, error) {
	blob, err := ir.MarshalTables(ts)
	if err != nil {
		return Session{}, fmt.Errorf("new session: %w", err)
	}
	hash, err := ir.TableHash(ts)
	if err != nil {
		return Session{}, fmt.Errorf("new session: %w", err)
	}
	return Session{
		ID:        id,
		TableName: ts.Name,
		TableHash: hash,
		Tables:    blob,
		Config:    cfg,
		Version:   ir.EngineVersion,
	}, nil
}

// WriteSession inserts a session record.
// Uses ON CONFLICT(id) DO NOTHING; rewriting a session is a no-op.
func (s *Store) WriteSession(ctx context.Context, sess Session) error {
	cfgJSON, err := marshalConfig(sess.Config)
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions
		(id, table_name, table_hash, tables, config, version, created_seq)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		sess.ID,
		sess.TableName,
		sess.TableHash,
		string(sess.Tables),
		cfgJSON,
		sess.Version,
		sess.CreatedSeq,
	)
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// ReadSession retrieves a session by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadSession(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, table_name, table_hash, tables, config, version, created_seq
		FROM sessions
		WHERE id = ?
	`, id)
	return scanSession(row)
}

// ListSessions returns every session, oldest first. Session IDs are UUIDv7,
// so ID order is creation order.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, table_name, table_hash, tables, config, version, created_seq
		FROM sessions
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// LatestSession returns the most recently created session.
// Returns sql.ErrNoRows if the store is empty.
func (s *Store) LatestSession(ctx context.Context) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, table_name, table_hash, tables, config, version, created_seq
		FROM sessions
		ORDER BY id COLLATE BINARY DESC
		LIMIT 1
	`)
	return scanSession(row)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (Session, error) {
	var sess Session
	var tables, cfgJSON string
	if err := row.Scan(
		&sess.ID, &sess.TableName, &sess.TableHash, &tables, &cfgJSON,
		&sess.Version, &sess.CreatedSeq,
	); err != nil {
		if err == sql.ErrNoRows {
			return Session{}, err
		}
		return Session{}, fmt.Errorf("scan session: %w", err)
	}
	sess.Tables = []byte(tables)

	cfg, err := unmarshalConfig(cfgJSON)
	if err != nil {
		return Session{}, err
	}
	sess.Config = cfg
	return sess, nil
}
