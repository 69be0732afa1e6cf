package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"cosmossdk.io/log"
	_ "github.com/lib/pq"

	"github.com/paw-chain/pawmarket/x/market/types"
)

// AuditSink receives committed audit records in sequence order. Export may
// see a record more than once after a restart and must tolerate that.
type AuditSink interface {
	Name() string
	Export(ctx context.Context, records []types.AuditRecord) error
}

// resumableSink is a sink that remembers how far it has exported.
type resumableSink interface {
	LastExported(ctx context.Context) (uint64, error)
}

// LogSink writes every audit record to a logger.
type LogSink struct {
	logger log.Logger
}

// NewLogSink returns a sink logging through logger.
func NewLogSink(logger log.Logger) *LogSink {
	return &LogSink{logger: logger.With("module", "audit")}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Export(_ context.Context, records []types.AuditRecord) error {
	for _, r := range records {
		s.logger.Info("audit",
			"seq", r.Seq,
			"height", r.Height,
			"action", r.Action,
			"actor", r.Actor,
			"job_id", r.JobID,
		)
	}
	return nil
}

const auditSchema = `
CREATE TABLE IF NOT EXISTS market_audit (
	seq        BIGINT PRIMARY KEY,
	height     BIGINT NOT NULL,
	block_time TIMESTAMPTZ NOT NULL,
	action     TEXT NOT NULL,
	actor      TEXT NOT NULL,
	job_id     BIGINT NOT NULL,
	attributes JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS market_audit_job_idx ON market_audit (job_id, seq);
`

// PostgresConfig holds audit database configuration
type PostgresConfig struct {
	URL            string
	MaxConnections int
	MaxIdle        int
	ConnMaxLife    time.Duration
}

// PostgresSink mirrors the audit trail into a Postgres table.
type PostgresSink struct {
	db *sql.DB
}

// NewPostgresSink connects to the audit database and creates the table.
func NewPostgresSink(ctx context.Context, cfg PostgresConfig) (*PostgresSink, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(cfg.ConnMaxLife)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping audit database: %w", err)
	}
	if _, err := db.ExecContext(ctx, auditSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create audit schema: %w", err)
	}
	return &PostgresSink{db: db}, nil
}

func (s *PostgresSink) Name() string { return "postgres" }

// Export inserts the records in one transaction. Records already present are
// skipped.
func (s *PostgresSink) Export(ctx context.Context, records []types.AuditRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin audit export: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO market_audit (seq, height, block_time, action, actor, job_id, attributes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (seq) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("failed to prepare audit insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		attrs, err := json.Marshal(r.Attributes)
		if err != nil {
			return fmt.Errorf("audit record %d: %w", r.Seq, err)
		}
		if _, err := stmt.ExecContext(ctx, int64(r.Seq), r.Height, r.Time, r.Action, r.Actor, int64(r.JobID), attrs); err != nil {
			return fmt.Errorf("audit record %d: %w", r.Seq, err)
		}
	}
	return tx.Commit()
}

// LastExported returns the highest sequence stored.
func (s *PostgresSink) LastExported(ctx context.Context) (uint64, error) {
	var seq int64
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(seq), 0) FROM market_audit").Scan(&seq); err != nil {
		return 0, err
	}
	return uint64(seq), nil
}

// Ping checks the database connection.
func (s *PostgresSink) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *PostgresSink) Close() error {
	return s.db.Close()
}
