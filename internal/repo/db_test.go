package repo

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-clinic-queue/internal/config"
	"github.com/tbourn/go-clinic-queue/internal/domain"
)

// newTestDB opens a migrated SQLite file under t.TempDir().
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "clinic.db"), 1)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	// Ensure the file handle is released before TempDir cleanup (Windows needs this).
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return db
}

func strp(s string) *string { return &s }

func TestOpenSQLite_ErrorOnBadPath(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "does-not-exist", "app.db")
	db, err := OpenSQLite(bad, 1)
	if err == nil || db != nil {
		t.Fatalf("expected error opening %q, got db=%v err=%v", bad, db, err)
	}
	lower := strings.ToLower(err.Error())
	if !(os.IsNotExist(err) ||
		strings.Contains(lower, "unable to open database file") ||
		strings.Contains(lower, "no such file or directory")) {
		t.Fatalf("unexpected error opening %q: %v", bad, err)
	}
}

func TestOpenSQLite_PragmasPoolAndMigrate(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "app.db"), 3)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	var journalMode string
	if err := db.Raw("PRAGMA journal_mode;").Row().Scan(&journalMode); err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	if strings.ToLower(journalMode) != "wal" {
		t.Fatalf("expected journal_mode=wal, got %q", journalMode)
	}
	var fkOn, busyMS int
	if err := db.Raw("PRAGMA foreign_keys;").Row().Scan(&fkOn); err != nil || fkOn != 1 {
		t.Fatalf("expected foreign_keys=1, got %d (%v)", fkOn, err)
	}
	if err := db.Raw("PRAGMA busy_timeout;").Row().Scan(&busyMS); err != nil || busyMS != 5000 {
		t.Fatalf("expected busy_timeout=5000, got %d (%v)", busyMS, err)
	}
	if stats := sqlDB.Stats(); stats.MaxOpenConnections != 3 {
		t.Fatalf("expected MaxOpenConnections=3, got %d", stats.MaxOpenConnections)
	}

	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	// Running twice must be harmless.
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate (second run): %v", err)
	}
	m := db.Migrator()
	for _, tbl := range []any{&domain.Doctor{}, &domain.Ticket{}, &domain.TicketSequence{}, &domain.Conversation{}, &domain.ConversationMessage{}} {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}
}

func TestAutoMigrate_OneConsultationPerDoctorIndex(t *testing.T) {
	db := newTestDB(t)
	now := time.Now().UTC()
	mk := func(id string, n int, doctor string) *domain.Ticket {
		return &domain.Ticket{ID: id, Number: n, DoctorID: doctor, Day: "2025-01-01",
			Status: domain.StatusInConsultation, UserID: strp("u-" + id), Category: domain.CategoryRegular,
			WaitSince: now, CreatedAt: now}
	}
	if err := db.Create(mk("a", 1, "d1")).Error; err != nil {
		t.Fatalf("first in_consultation: %v", err)
	}
	err := db.Create(mk("b", 2, "d1")).Error
	if err == nil || !IsUniqueViolation(err) {
		t.Fatalf("expected unique violation for second in_consultation, got %v", err)
	}
	if err := db.Create(mk("c", 1, "d2")).Error; err != nil {
		t.Fatalf("other doctor must be unaffected: %v", err)
	}
}

func TestOpen_SelectsDriver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "open.db")
	db, err := Open(config.DBConfig{Driver: "sqlite", Path: path, MaxOpenConns: 1}, true)
	if err != nil {
		t.Fatalf("Open sqlite: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if _, err := Open(config.DBConfig{Driver: "oracle"}, false); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if IsUniqueViolation(nil) {
		t.Fatalf("nil is not a violation")
	}
	if !IsUniqueViolation(gorm.ErrDuplicatedKey) {
		t.Fatalf("ErrDuplicatedKey must match")
	}
	if IsUniqueViolation(os.ErrNotExist) {
		t.Fatalf("unrelated error must not match")
	}
}

// Compile-time guard to ensure signature stability.
var _ func(string, int) (*gorm.DB, error) = OpenSQLite
