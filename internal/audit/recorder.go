// Package audit persists access-control events delivered by the worker.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odyssey-erp/rolecounter/internal/rbac"
)

const schemaSQL = `CREATE TABLE IF NOT EXISTS acl_audit_logs (
	call_id     TEXT NOT NULL,
	seq         INT NOT NULL,
	deployment  TEXT NOT NULL,
	event       TEXT NOT NULL,
	role        TEXT NOT NULL DEFAULT '',
	account     TEXT NOT NULL,
	actor       TEXT NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (call_id, seq)
)`

// Execer is satisfied by *pgxpool.Pool and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Entry is one access-control event tied to the call that committed it.
type Entry struct {
	CallID     string
	Seq        int
	Deployment string
	Event      rbac.Event
	At         time.Time
}

// Recorder writes entries into acl_audit_logs.
type Recorder struct {
	db Execer
}

// NewRecorder returns a new Recorder.
func NewRecorder(db Execer) *Recorder {
	return &Recorder{db: db}
}

// EnsureSchema creates acl_audit_logs when missing.
func (r *Recorder) EnsureSchema(ctx context.Context) error {
	if r == nil {
		return errors.New("audit recorder not initialised")
	}
	_, err := r.db.Exec(ctx, schemaSQL)
	return err
}

// Record persists the entry. Redelivered entries are ignored.
func (r *Recorder) Record(ctx context.Context, entry Entry) error {
	if r == nil {
		return errors.New("audit recorder not initialised")
	}
	if entry.CallID == "" || entry.Event.Kind == "" || entry.Event.Account == "" {
		return errors.New("audit entry requires call_id/event/account")
	}
	var at any
	if !entry.At.IsZero() {
		at = entry.At
	}
	_, err := r.db.Exec(ctx, `INSERT INTO acl_audit_logs (call_id, seq, deployment, event, role, account, actor, occurred_at) VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8::timestamptz, NOW())) ON CONFLICT (call_id, seq) DO NOTHING`,
		entry.CallID, entry.Seq, entry.Deployment, string(entry.Event.Kind), string(entry.Event.Role), string(entry.Event.Account), string(entry.Event.By), at)
	return err
}
