// Package remote is the shared backend the reconciler pushes to and the
// supervisor reads from. It runs on postgres in production; sqlite serves
// tests and single-host setups.
package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/balkashynov/dtr/internal/models"
)

// ErrNotFound is returned when a user, log or evidence object is missing
var ErrNotFound = errors.New("remote record not found")

// Store is the gorm-backed remote store
type Store struct {
	db  *gorm.DB
	log *zap.Logger
	now func() time.Time
}

// Open connects to driver ("postgres" or "sqlite") and migrates the schema
func Open(driver, dsn string, log *zap.Logger) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported remote driver %q", driver)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect remote store: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("get remote sql.DB: %w", err)
	}
	if driver == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(5)
	}

	s, err := NewStore(gdb, log)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	log.Info("remote store connected", zap.String("driver", driver))
	return s, nil
}

// NewStore wraps an open connection and migrates the schema
func NewStore(gdb *gorm.DB, log *zap.Logger) (*Store, error) {
	if err := gdb.AutoMigrate(&User{}, &Log{}, &Class{}, &Evidence{}); err != nil {
		return nil, fmt.Errorf("migrate remote schema: %w", err)
	}
	return &Store{db: gdb, log: log, now: time.Now}, nil
}

// Close releases the connection pool
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// UpsertSummary merges the student's totals into their user document,
// leaving profile fields alone
func (s *Store) UpsertSummary(ctx context.Context, uid string, sum Summary) error {
	user := User{
		ID:            uid,
		Role:          RoleStudent,
		GoalHours:     sum.GoalHours,
		TotalRendered: sum.TotalRendered,
		LastSync:      models.FormatISO(sum.LastSync),
		UpdatedAt:     s.now(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"total_rendered", "goal_hours", "last_sync", "updated_at"}),
	}).Create(&user).Error
}

// UpsertProfile creates or updates the profile fields of a user
func (s *Store) UpsertProfile(ctx context.Context, user *User) error {
	if user.ID == "" {
		return fmt.Errorf("user id is required")
	}
	if user.Role == "" {
		user.Role = RoleStudent
	}
	user.ClassCode = strings.ToUpper(strings.TrimSpace(user.ClassCode))
	user.UpdatedAt = s.now()

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"role", "name", "class_code", "goal_hours", "updated_at"}),
	}).Create(user).Error
}

// GetUser returns one user document
func (s *Store) GetUser(ctx context.Context, uid string) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("id = ?", uid).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetLog returns the remote copy of a session, nil when there is none
func (s *Store) GetLog(ctx context.Context, uid, key string) (*Log, error) {
	var logs []Log
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND key = ?", uid, key).
		Limit(1).
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	if len(logs) == 0 {
		return nil, nil
	}
	return &logs[0], nil
}

// UpsertLog writes a session record. A decided approval on the remote side
// is never replaced by a pending one.
func (s *Store) UpsertLog(ctx context.Context, l *Log) error {
	columns := []string{
		"date", "time_in", "time_out", "duration", "status", "iso_start",
		"total_paused_ms", "notes", "location_in", "location_out", "photo_url", "synced_at",
	}
	assignments := clause.AssignmentColumns(columns)
	assignments = append(assignments, clause.Assignment{
		Column: clause.Column{Name: "approval_status"},
		Value: clause.Expr{
			SQL:  "CASE WHEN logs.approval_status IS NULL OR logs.approval_status = ? THEN excluded.approval_status ELSE logs.approval_status END",
			Vars: []any{string(models.ApprovalPending)},
		},
	})

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "key"}},
		DoUpdates: assignments,
	}).Create(l).Error
}

// StudentsByClass returns the students of a class with totals computed
// from their synced logs
func (s *Store) StudentsByClass(ctx context.Context, code string) ([]StudentSummary, error) {
	code = strings.ToUpper(strings.TrimSpace(code))

	var users []User
	if err := s.db.WithContext(ctx).
		Where("class_code = ? AND role = ?", code, RoleStudent).
		Order("name ASC").Order("id ASC").
		Find(&users).Error; err != nil {
		return nil, err
	}

	type total struct {
		UserID   string
		Rendered float64
		Sessions int64
	}
	var totals []total
	if len(users) > 0 {
		ids := make([]string, len(users))
		for i, u := range users {
			ids[i] = u.ID
		}
		if err := s.db.WithContext(ctx).Model(&Log{}).
			Select("user_id, COALESCE(SUM(duration), 0) AS rendered, COUNT(*) AS sessions").
			Where("user_id IN ? AND status = ?", ids, string(models.StatusCompleted)).
			Group("user_id").
			Scan(&totals).Error; err != nil {
			return nil, err
		}
	}

	byUser := make(map[string]total, len(totals))
	for _, t := range totals {
		byUser[t.UserID] = t
	}

	out := make([]StudentSummary, 0, len(users))
	for _, u := range users {
		t := byUser[u.ID]
		out = append(out, StudentSummary{User: u, Rendered: t.Rendered, Sessions: t.Sessions})
	}
	return out, nil
}

// StudentLogs returns every synced session of a student, newest first
func (s *Store) StudentLogs(ctx context.Context, uid string) ([]Log, error) {
	logs := make([]Log, 0)
	err := s.db.WithContext(ctx).
		Where("user_id = ?", uid).
		Order("date DESC").Order("iso_start DESC").
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// SetApprovals records supervisor decisions by sync key and returns how
// many logs changed
func (s *Store) SetApprovals(ctx context.Context, uid string, decisions map[string]models.ApprovalStatus) (int64, error) {
	for key, status := range decisions {
		if !status.Valid() {
			return 0, fmt.Errorf("invalid approval status %q for %s", status, key)
		}
	}

	var changed int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for key, status := range decisions {
			res := tx.Model(&Log{}).
				Where("user_id = ? AND key = ?", uid, key).
				Update("approval_status", string(status))
			if res.Error != nil {
				return res.Error
			}
			changed += res.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.Info("approvals recorded", zap.String("uid", uid), zap.Int64("changed", changed))
	return changed, nil
}

const classCodeLen = 6

// CreateClass registers a class under teacherID with a fresh class code
func (s *Store) CreateClass(ctx context.Context, teacherID, name string) (*Class, error) {
	if teacherID == "" {
		return nil, fmt.Errorf("teacher id is required")
	}

	for attempt := 0; attempt < 5; attempt++ {
		class := Class{
			Code:      newClassCode(),
			TeacherID: teacherID,
			Name:      strings.TrimSpace(name),
			CreatedAt: s.now(),
		}
		res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&class)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			s.log.Info("class created", zap.String("code", class.Code), zap.String("teacher", teacherID))
			return &class, nil
		}
	}
	return nil, fmt.Errorf("could not allocate a unique class code")
}

// ClassesByTeacher lists the classes a teacher owns
func (s *Store) ClassesByTeacher(ctx context.Context, teacherID string) ([]Class, error) {
	classes := make([]Class, 0)
	err := s.db.WithContext(ctx).
		Where("teacher_id = ?", teacherID).
		Order("created_at ASC").
		Find(&classes).Error
	return classes, err
}

func newClassCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:classCodeLen])
}

// PutEvidence stores an uploaded photo
func (s *Store) PutEvidence(ctx context.Context, e *Evidence) error {
	e.CreatedAt = s.now()
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "path"}},
		DoUpdates: clause.AssignmentColumns([]string{"content_type", "data", "created_at"}),
	}).Create(e).Error
}

// GetEvidence returns a stored photo
func (s *Store) GetEvidence(ctx context.Context, path string) (*Evidence, error) {
	var e Evidence
	err := s.db.WithContext(ctx).Where("path = ?", path).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}
