package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned for an unknown session id.
var ErrNotFound = errors.New("session not found")

// Session is one recorded conversion run. Report holds the full session
// report JSON as produced by the batch driver; the store never interprets it.
type Session struct {
	ID        string          `json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	Format    string          `json:"format"`
	OutputDir string          `json:"output_dir"`
	State     string          `json:"state"`
	Report    json.RawMessage `json:"report,omitempty"`
}

// Sessions reads and writes session rows.
type Sessions struct {
	db *sql.DB
}

func NewSessions(db *sql.DB) *Sessions {
	return &Sessions{db: db}
}

// Save upserts one session record.
func (s *Sessions) Save(ctx context.Context, sess Session) error {
	if sess.ID == "" {
		return fmt.Errorf("save session: empty id")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, created_at, format, output_dir, state, report_json)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
		  state = EXCLUDED.state,
		  report_json = EXCLUDED.report_json`,
		sess.ID, sess.CreatedAt.Unix(), sess.Format, sess.OutputDir, sess.State, string(sess.Report))
	if err != nil {
		return fmt.Errorf("save session %s: %w", sess.ID, err)
	}
	return nil
}

// List returns all sessions newest first, without their report payloads.
func (s *Sessions) List(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, format, output_dir, state
		FROM sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var sess Session
		var createdAt int64
		if err := rows.Scan(&sess.ID, &createdAt, &sess.Format, &sess.OutputDir, &sess.State); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, sess)
	}
	return out, rows.Err()
}

// Get returns one session including its report payload.
func (s *Sessions) Get(ctx context.Context, id string) (Session, error) {
	var sess Session
	var createdAt int64
	var report string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, format, output_dir, state, report_json
		FROM sessions WHERE id = $1`, id).
		Scan(&sess.ID, &createdAt, &sess.Format, &sess.OutputDir, &sess.State, &report)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session %s: %w", id, err)
	}
	sess.CreatedAt = time.Unix(createdAt, 0).UTC()
	sess.Report = json.RawMessage(report)
	return sess, nil
}
