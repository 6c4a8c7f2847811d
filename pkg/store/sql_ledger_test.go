package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLLedger_Record(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ledger := NewSQLLedger(db)
	now := time.Date(2025, 2, 2, 10, 0, 0, 0, time.UTC)

	e := Entry{
		ID:          "entry-1",
		Timestamp:   now,
		Event:       EventPlanned,
		Actor:       "companion",
		PlanID:      "plan-1",
		DeviceID:    "dev-1",
		RiskLevel:   "high",
		Consent:     true,
		PayloadHash: "sha256:abc",
	}

	mock.ExpectExec("INSERT INTO plan_audit").
		WithArgs(e.ID, e.Timestamp, "planned", e.Actor, e.PlanID, e.DeviceID, e.RiskLevel, e.Consent, e.PayloadHash, "").
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, ledger.Record(context.Background(), e))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLLedger_RecordFillsDefaults(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ledger := NewSQLLedger(db)
	fixed := time.Date(2025, 2, 2, 10, 0, 0, 0, time.UTC)
	ledger.now = func() time.Time { return fixed }

	mock.ExpectExec("INSERT INTO plan_audit").
		WithArgs(sqlmock.AnyArg(), fixed, "verified", "", "plan-9", "", "", false, "", "").
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, ledger.Record(context.Background(), Entry{Event: EventVerified, PlanID: "plan-9"}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLLedger_RecordError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("INSERT INTO plan_audit").WillReturnError(sql.ErrConnDone)

	err = NewSQLLedger(db).Record(context.Background(), Entry{ID: "x", Event: EventPlanned, PlanID: "p", Timestamp: time.Now()})
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestSQLLedger_ListForPlan(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	now := time.Date(2025, 2, 2, 10, 0, 0, 0, time.UTC)
	cols := []string{"id", "ts", "event", "actor", "plan_id", "device_id", "risk_level", "consent_required", "payload_hash", "archive_ref"}
	mock.ExpectQuery("SELECT (.+) FROM plan_audit WHERE plan_id").
		WithArgs("plan-1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("e1", now, "planned", "companion", "plan-1", "dev-1", "low", false, "sha256:1", "plans/ab").
			AddRow("e2", now.Add(time.Minute), "verified", nil, "plan-1", nil, nil, nil, nil, nil))

	entries, err := NewSQLLedger(db).ListForPlan(context.Background(), "plan-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, EventPlanned, entries[0].Event)
	assert.Equal(t, "plans/ab", entries[0].ArchiveRef)
	assert.Equal(t, EventVerified, entries[1].Event)
	assert.Empty(t, entries[1].Actor)

	mock.ExpectQuery("SELECT (.+) FROM plan_audit WHERE plan_id").
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(cols))
	_, err = NewSQLLedger(db).ListForPlan(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLLedger_SQLiteLiteMode(t *testing.T) {
	ctx := context.Background()
	db, driver, err := Open(ctx, "", filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	assert.Equal(t, "sqlite", driver)

	ledger := NewSQLLedger(db)
	require.NoError(t, ledger.Init(ctx))
	require.NoError(t, ledger.Init(ctx), "init is idempotent")

	require.NoError(t, ledger.Record(ctx, Entry{Event: EventPlanned, PlanID: "p1", DeviceID: "d1", RiskLevel: "medium"}))
	require.NoError(t, ledger.Record(ctx, Entry{Event: EventVerificationFailed, PlanID: "p1"}))
	require.NoError(t, ledger.Record(ctx, Entry{Event: EventPlanned, PlanID: "p2"}))

	entries, err := ledger.ListForPlan(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "d1", entries[0].DeviceID)
}

func TestNop(t *testing.T) {
	var l Ledger = Nop{}
	assert.NoError(t, l.Record(context.Background(), Entry{}))
	_, err := l.ListForPlan(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotFound)
}
