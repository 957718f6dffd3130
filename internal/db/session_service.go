package db

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/balkashynov/dtr/internal/apperr"
	"github.com/balkashynov/dtr/internal/models"
	"github.com/balkashynov/dtr/internal/parser"
)

var inFlight = []string{string(models.StatusActive), string(models.StatusPaused)}

// AddSession opens a new active session. It fails while another session is
// active or paused, and when a session with the same date and time_in
// exists (archived ones included), since both would share one sync key.
func (s *Store) AddSession(ctx context.Context, date, timeIn, isoStart, location string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	gdb, err := s.handle()
	if err != nil {
		return nil, s.queryErr("add_session", err)
	}

	session := models.Session{
		Date:           date,
		TimeIn:         timeIn,
		Status:         models.StatusActive,
		IsoStart:       isoStart,
		ApprovalStatus: models.ApprovalPending,
	}
	if location != "" {
		session.LocationIn = &location
	}

	err = gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var open int64
		if err := tx.Model(&models.Session{}).Where("status IN ?", inFlight).Count(&open).Error; err != nil {
			return err
		}
		if open > 0 {
			return apperr.ErrSessionActive
		}
		var same int64
		if err := tx.Model(&models.Session{}).Where("date = ? AND time_in = ?", date, timeIn).Count(&same).Error; err != nil {
			return err
		}
		if same > 0 {
			return apperr.ErrDuplicateStart
		}
		return tx.Create(&session).Error
	})
	if err != nil {
		return nil, s.queryErr("add_session", err)
	}

	s.persist(ctx)
	s.log.Debug("session added", zap.Uint("id", session.ID), zap.String("date", date))
	return &session, nil
}

// UpdateSession applies patch to one session. Approved sessions only accept
// photo and approval changes, and a decided approval is never reset to pending.
func (s *Store) UpdateSession(ctx context.Context, id uint, patch models.SessionPatch) error {
	if patch.Empty() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	gdb, err := s.handle()
	if err != nil {
		return s.queryErr("update_session", err)
	}

	current, err := s.find(ctx, gdb, id)
	if err != nil {
		return s.queryErr("update_session", err)
	}

	if current.Approval() == models.ApprovalApproved && patch.TouchesLockedFields() {
		return apperr.ErrApprovedImmutable
	}
	if patch.ApprovalStatus != nil && *patch.ApprovalStatus == models.ApprovalPending && current.Approval().Decided() {
		patch.ApprovalStatus = nil
	}
	if patch.TotalPausedMs != nil && *patch.TotalPausedMs < current.TotalPausedMs {
		s.log.Warn("ignoring paused total decrease", zap.Uint("id", id),
			zap.Int64("current", current.TotalPausedMs), zap.Int64("requested", *patch.TotalPausedMs))
		patch.TotalPausedMs = nil
	}
	if patch.Empty() {
		return nil
	}

	if err := gdb.WithContext(ctx).Model(&models.Session{}).Where("id = ?", id).Updates(patch.Columns()).Error; err != nil {
		return s.queryErr("update_session", err)
	}

	s.persist(ctx)
	return nil
}

// GetSession returns one session by id, archived or not
func (s *Store) GetSession(ctx context.Context, id uint) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	gdb, err := s.handle()
	if err != nil {
		return nil, s.queryErr("get_session", err)
	}
	session, err := s.find(ctx, gdb, id)
	if err != nil {
		return nil, s.queryErr("get_session", err)
	}
	return session, nil
}

func (s *Store) find(ctx context.Context, gdb *gorm.DB, id uint) (*models.Session, error) {
	var session models.Session
	err := gdb.WithContext(ctx).Where("id = ?", id).Take(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Wrap(apperr.CodeStoreNotFound, fmt.Sprintf("session #%d not found", id), err)
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// GetSessions lists completed, non-archived sessions, newest first.
// month is an optional yyyy-mm filter matching both date forms. Unless
// includeAll is set the result is capped at the list limit.
func (s *Store) GetSessions(ctx context.Context, month string, includeAll bool) ([]models.Session, error) {
	filter, err := parser.ParseMonthFilter(month)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	gdb, err := s.handle()
	if err != nil {
		return nil, s.queryErr("get_sessions", err)
	}

	q := gdb.WithContext(ctx).
		Where("status = ?", string(models.StatusCompleted)).
		Where("deleted_at IS NULL")
	if filter != nil {
		p := filter.LikePatterns()
		q = q.Where("(date LIKE ? OR date LIKE ? OR date LIKE ?)", p[0], p[1], p[2])
	}
	q = q.Order("date DESC").Order("iso_start DESC").Order("id DESC")
	if !includeAll && s.listLimit > 0 {
		q = q.Limit(s.listLimit)
	}

	sessions := make([]models.Session, 0)
	if err := q.Find(&sessions).Error; err != nil {
		return nil, s.queryErr("get_sessions", err)
	}
	return sessions, nil
}

// GetActiveOrPausedSession returns the single in-flight session, or nil
func (s *Store) GetActiveOrPausedSession(ctx context.Context) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	gdb, err := s.handle()
	if err != nil {
		return nil, s.queryErr("get_active_session", err)
	}

	var sessions []models.Session
	err = gdb.WithContext(ctx).
		Where("status IN ?", inFlight).
		Order("id DESC").
		Limit(1).
		Find(&sessions).Error
	if err != nil {
		return nil, s.queryErr("get_active_session", err)
	}
	if len(sessions) == 0 {
		return nil, nil // No active session is not an error
	}
	return &sessions[0], nil
}

// TotalCompletedHours sums the durations of completed, non-archived sessions
func (s *Store) TotalCompletedHours(ctx context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	gdb, err := s.handle()
	if err != nil {
		return 0, s.queryErr("total_hours", err)
	}

	var total float64
	err = gdb.WithContext(ctx).Model(&models.Session{}).
		Select("COALESCE(SUM(duration), 0)").
		Where("status = ?", string(models.StatusCompleted)).
		Where("deleted_at IS NULL").
		Row().Scan(&total)
	if err != nil {
		return 0, s.queryErr("total_hours", err)
	}
	return total, nil
}

// ApplyApproval stores a supervisor decision pulled from the remote side
func (s *Store) ApplyApproval(ctx context.Context, id uint, status models.ApprovalStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid approval status %q", status)
	}
	return s.UpdateSession(ctx, id, models.SessionPatch{ApprovalStatus: &status})
}

// SetPhotoURL stores the durable URL of an uploaded evidence photo
func (s *Store) SetPhotoURL(ctx context.Context, id uint, url string) error {
	return s.UpdateSession(ctx, id, models.SessionPatch{PhotoURL: &url})
}
