package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/ajabadia/ABDElevators-sub012/internal/core/domain"
)

const insertTimeout = 5 * time.Second

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// Sink persists audit records off the request path. Record never blocks:
// when the buffer is full the record is dropped and logged, a slow audit
// store must not slow retrieval down.
type Sink struct {
	db      *sql.DB
	records chan domain.AuditRecord
	done    chan struct{}
}

func NewSink(db *sql.DB, buffer int) *Sink {
	if buffer <= 0 {
		buffer = 256
	}
	s := &Sink{
		db:      db,
		records: make(chan domain.AuditRecord, buffer),
		done:    make(chan struct{}),
	}
	go s.drain()
	return s
}

func (s *Sink) Record(rec domain.AuditRecord) {
	if rec.At.IsZero() {
		rec.At = time.Now().UTC()
	}
	select {
	case s.records <- rec:
	default:
		slog.Warn("audit_record_dropped",
			"action", rec.Action,
			"tenant_id", rec.TenantID,
			"correlation_id", rec.CorrelationID,
		)
	}
}

// Close stops accepting records, flushes the buffer and waits for the
// writer to finish.
func (s *Sink) Close() {
	close(s.records)
	<-s.done
}

func (s *Sink) drain() {
	defer close(s.done)
	for rec := range s.records {
		s.insert(rec)
	}
}

func (s *Sink) insert(rec domain.AuditRecord) {
	detailsJSON, err := json.Marshal(rec.Details)
	if err != nil {
		slog.Warn("audit_details_marshal_failed", "action", rec.Action, "error", err)
		detailsJSON = []byte(`{}`)
	}

	ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
	defer cancel()

	_, err = s.db.ExecContext(ctx, `
INSERT INTO audit_log (level, source, action, message, correlation_id, tenant_id, details, at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.Level,
		rec.Source,
		rec.Action,
		rec.Message,
		rec.CorrelationID,
		rec.TenantID,
		detailsJSON,
		rec.At,
	)
	if err != nil {
		slog.Warn("audit_insert_failed",
			"action", rec.Action,
			"tenant_id", rec.TenantID,
			"error", err,
		)
	}
}

func (s *Sink) EnsureSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across instance startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083101)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS audit_log (
	id BIGSERIAL PRIMARY KEY,
	level TEXT NOT NULL,
	source TEXT NOT NULL,
	action TEXT NOT NULL,
	message TEXT,
	correlation_id TEXT,
	tenant_id TEXT,
	details JSONB NOT NULL DEFAULT '{}'::jsonb,
	at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_log_tenant ON audit_log(tenant_id);
CREATE INDEX IF NOT EXISTS idx_audit_log_at ON audit_log(at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
