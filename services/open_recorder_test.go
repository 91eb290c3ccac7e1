package services

import (
	"database/sql"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"mail-tracker/database"
)

func testManager(t *testing.T, db *sql.DB) *database.Manager {
	t.Helper()
	return database.NewManagerWithOpener(
		database.ManagerConfig{DatabaseURL: "postgres://test"},
		func(string) (*sql.DB, error) { return db, nil },
	)
}

func TestRecordOpenWritesOneUpdate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}

	ev := database.OpenEvent{
		Timestamp: time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC),
		UserAgent: "Apple Mail",
		IP:        "5.6.6.7",
	}
	entry, _ := json.Marshal(ev)
	mock.ExpectExec("UPDATE tracking_records").
		WithArgs(database.StatusOpened, ev.Timestamp, ev.UserAgent, ev.IP, entry, "trk-9").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := NewOpenRecorder(testManager(t, db), time.Second)
	rec.RecordOpen("trk-9", OpenContext{
		UserAgent: ev.UserAgent,
		IP:        ev.IP,
		Timestamp: ev.Timestamp,
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRecordOpenEmptyIDIsNoOp(t *testing.T) {
	var dials int32
	mgr := database.NewManagerWithOpener(
		database.ManagerConfig{DatabaseURL: "postgres://test"},
		func(string) (*sql.DB, error) {
			atomic.AddInt32(&dials, 1)
			return nil, nil
		},
	)

	rec := NewOpenRecorder(mgr, time.Second)
	rec.RecordOpen("", OpenContext{UserAgent: "ua", IP: "1.1.1.1"})

	if n := atomic.LoadInt32(&dials); n != 0 {
		t.Errorf("connection attempts = %d, want 0", n)
	}
}

func TestRecordOpenFillsDefaults(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}

	mock.ExpectExec("UPDATE tracking_records").
		WithArgs(database.StatusOpened, sqlmock.AnyArg(), "unknown", "0.0.0.0",
			sqlmock.AnyArg(), "trk-9").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := NewOpenRecorder(testManager(t, db), time.Second)
	rec.RecordOpen("trk-9", OpenContext{})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRecordOpenSwallowsMiss(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}

	mock.ExpectExec("UPDATE tracking_records").
		WillReturnResult(sqlmock.NewResult(0, 0))

	// Must not panic or propagate anything.
	rec := NewOpenRecorder(testManager(t, db), time.Second)
	rec.RecordOpen("no-such-id", OpenContext{UserAgent: "ua", IP: "1.1.1.1"})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRecordOpenHonorsBudget(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}

	mock.ExpectExec("UPDATE tracking_records").
		WillDelayFor(2 * time.Second).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := NewOpenRecorder(testManager(t, db), 100*time.Millisecond)

	start := time.Now()
	rec.RecordOpen("trk-9", OpenContext{UserAgent: "ua", IP: "1.1.1.1"})
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("RecordOpen took %s, want well under the 2s store delay", elapsed)
	}
}
