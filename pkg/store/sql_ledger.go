package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SQLLedger implements Ledger using database/sql.
// It supports both Postgres and SQLite via standard drivers.
type SQLLedger struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLLedger wraps db. Call Init once before recording.
func NewSQLLedger(db *sql.DB) *SQLLedger {
	return &SQLLedger{db: db, now: time.Now}
}

const schema = `
CREATE TABLE IF NOT EXISTS plan_audit (
	id TEXT PRIMARY KEY,
	ts TIMESTAMP NOT NULL,
	event TEXT NOT NULL,
	actor TEXT,
	plan_id TEXT NOT NULL,
	device_id TEXT,
	risk_level TEXT,
	consent_required BOOLEAN,
	payload_hash TEXT,
	archive_ref TEXT
);
CREATE INDEX IF NOT EXISTS plan_audit_plan_idx ON plan_audit (plan_id);
`

// Init creates the audit table if needed.
func (s *SQLLedger) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ledger init: %w", err)
	}
	return nil
}

// Record appends e, filling in id and timestamp when missing.
func (s *SQLLedger) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now().UTC()
	}
	query := `
		INSERT INTO plan_audit (id, ts, event, actor, plan_id, device_id, risk_level, consent_required, payload_hash, archive_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.Timestamp, string(e.Event), e.Actor, e.PlanID, e.DeviceID, e.RiskLevel, e.Consent, e.PayloadHash, e.ArchiveRef,
	)
	if err != nil {
		return fmt.Errorf("ledger record %s: %w", e.Event, err)
	}
	return nil
}

// ListForPlan returns a plan's entries oldest first.
func (s *SQLLedger) ListForPlan(ctx context.Context, planID string) ([]Entry, error) {
	query := `
		SELECT id, ts, event, actor, plan_id, device_id, risk_level, consent_required, payload_hash, archive_ref
		FROM plan_audit WHERE plan_id = $1 ORDER BY ts ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, planID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	result := make([]Entry, 0)
	for rows.Next() {
		var (
			e                              Entry
			event                          string
			actor, device, risk, hash, ref sql.NullString
			consent                        sql.NullBool
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &event, &actor, &e.PlanID, &device, &risk, &consent, &hash, &ref); err != nil {
			return nil, err
		}
		e.Event = Event(event)
		e.Actor = actor.String
		e.DeviceID = device.String
		e.RiskLevel = risk.String
		e.Consent = consent.Bool
		e.PayloadHash = hash.String
		e.ArchiveRef = ref.String
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, ErrNotFound
	}
	return result, nil
}
