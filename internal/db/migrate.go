package db

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/balkashynov/dtr/internal/models"
	"github.com/balkashynov/dtr/internal/parser"
)

// YearRewrite moves every session date of one year to another. It is a
// one-time data fix, recorded in the migration ledger like any other step.
type YearRewrite struct {
	From int
	To   int
}

func (y YearRewrite) name() string {
	return fmt.Sprintf("rewrite_year_%d_%d", y.From, y.To)
}

// Base schema. Images written by older builds lack the later columns; those
// are added by addColumns below.
var baseSchema = []string{
	`CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date TEXT NOT NULL,
		time_in TEXT NOT NULL,
		time_out TEXT,
		duration REAL,
		status TEXT NOT NULL,
		iso_start TEXT NOT NULL,
		paused_at TEXT,
		total_paused_ms INTEGER DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS schema_migrations (
		name TEXT PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`,
}

// addColumns lists the additive columns, oldest first
var addColumns = []struct {
	name string
	ddl  string
}{
	{"notes", "notes TEXT"},
	{"deleted_at", "deleted_at TEXT"},
	{"location_in", "location_in TEXT"},
	{"location_out", "location_out TEXT"},
	{"photo_url", "photo_url TEXT"},
	{"approval_status", "approval_status TEXT DEFAULT 'pending'"},
}

// migrate brings gdb to the current schema. Every step is idempotent:
// tables use IF NOT EXISTS, columns are checked before ALTER, and data
// rewrites run once per ledger entry.
func migrate(gdb *gorm.DB, log *zap.Logger, now time.Time, rewrite *YearRewrite) error {
	for _, stmt := range baseSchema {
		if err := gdb.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create base schema: %w", err)
		}
	}

	if err := gdb.Exec(
		"INSERT OR IGNORE INTO settings (key, value) VALUES (?, ?)",
		models.SettingGoalHours, strconv.FormatFloat(models.DefaultGoalHours, 'f', -1, 64),
	).Error; err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}

	if err := recordMigration(gdb, "0001_base", now); err != nil {
		return err
	}

	for _, col := range addColumns {
		if gdb.Migrator().HasColumn(&models.Session{}, col.name) {
			continue
		}
		if err := gdb.Exec("ALTER TABLE logs ADD COLUMN " + col.ddl).Error; err != nil {
			if strings.Contains(err.Error(), "duplicate column name") {
				continue
			}
			return fmt.Errorf("add column %s: %w", col.name, err)
		}
		log.Info("migrated: added column", zap.String("column", col.name))
	}

	// Rows written before approval_status existed read as pending
	if err := gdb.Exec(
		"UPDATE logs SET approval_status = ? WHERE approval_status IS NULL OR approval_status = ''",
		string(models.ApprovalPending),
	).Error; err != nil {
		return fmt.Errorf("backfill approval status: %w", err)
	}

	if err := runOnce(gdb, log, "0002_normalize_dates", now, normalizeDates); err != nil {
		return err
	}

	if rewrite != nil && rewrite.From != rewrite.To {
		if err := runOnce(gdb, log, rewrite.name(), now, rewrite.apply); err != nil {
			return err
		}
	}

	return nil
}

func applied(gdb *gorm.DB, name string) (bool, error) {
	var count int64
	if err := gdb.Raw("SELECT COUNT(*) FROM schema_migrations WHERE name = ?", name).Row().Scan(&count); err != nil {
		return false, fmt.Errorf("check migration %s: %w", name, err)
	}
	return count > 0, nil
}

func recordMigration(gdb *gorm.DB, name string, now time.Time) error {
	if err := gdb.Exec(
		"INSERT OR IGNORE INTO schema_migrations (name, applied_at) VALUES (?, ?)",
		name, models.FormatISO(now),
	).Error; err != nil {
		return fmt.Errorf("record migration %s: %w", name, err)
	}
	return nil
}

// runOnce applies step inside a transaction unless the ledger already has name
func runOnce(gdb *gorm.DB, log *zap.Logger, name string, now time.Time, step func(tx *gorm.DB) (int64, error)) error {
	done, err := applied(gdb, name)
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	return gdb.Transaction(func(tx *gorm.DB) error {
		rows, err := step(tx)
		if err != nil {
			return fmt.Errorf("migration %s: %w", name, err)
		}
		if err := recordMigration(tx, name, now); err != nil {
			return err
		}
		log.Info("migration applied", zap.String("name", name), zap.Int64("rows", rows))
		return nil
	})
}

// normalizeDates rewrites legacy mm/dd/yyyy dates to yyyy-mm-dd
func normalizeDates(tx *gorm.DB) (int64, error) {
	type row struct {
		ID   uint
		Date string
	}
	var rows []row
	if err := tx.Raw("SELECT id, date FROM logs").Scan(&rows).Error; err != nil {
		return 0, err
	}

	var changed int64
	for _, r := range rows {
		if !parser.IsLegacyDate(r.Date) {
			continue
		}
		normalized, err := parser.NormalizeDate(r.Date)
		if err != nil {
			// leave unparsable dates alone, they still list under no month
			continue
		}
		if err := tx.Exec("UPDATE logs SET date = ? WHERE id = ?", normalized, r.ID).Error; err != nil {
			return changed, err
		}
		changed++
	}
	return changed, nil
}

func (y YearRewrite) apply(tx *gorm.DB) (int64, error) {
	res := tx.Exec(
		"UPDATE logs SET date = ? || substr(date, 5) WHERE date LIKE ?",
		fmt.Sprintf("%04d", y.To), fmt.Sprintf("%04d-%%", y.From),
	)
	return res.RowsAffected, res.Error
}
