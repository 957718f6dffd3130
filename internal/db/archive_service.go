package db

import (
	"context"

	"go.uber.org/zap"

	"github.com/balkashynov/dtr/internal/apperr"
	"github.com/balkashynov/dtr/internal/models"
)

// ArchiveSession soft-deletes a completed session. Archived sessions leave
// listings and totals and are purged after the retention window.
func (s *Store) ArchiveSession(ctx context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	gdb, err := s.handle()
	if err != nil {
		return s.queryErr("archive_session", err)
	}

	session, err := s.find(ctx, gdb, id)
	if err != nil {
		return s.queryErr("archive_session", err)
	}
	if session.Status.InFlight() {
		return apperr.New(apperr.CodeSessionAlreadyActive, "time out before archiving this session")
	}
	if session.Approval() == models.ApprovalApproved {
		return apperr.ErrApprovedImmutable
	}
	if session.Archived() {
		return nil
	}

	if err := gdb.WithContext(ctx).Model(&models.Session{}).Where("id = ?", id).
		Update("deleted_at", models.FormatISO(s.now())).Error; err != nil {
		return s.queryErr("archive_session", err)
	}

	s.persist(ctx)
	s.log.Info("session archived", zap.Uint("id", id))
	return nil
}

// RecoverSession restores an archived session
func (s *Store) RecoverSession(ctx context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	gdb, err := s.handle()
	if err != nil {
		return s.queryErr("recover_session", err)
	}

	res := gdb.WithContext(ctx).Model(&models.Session{}).
		Where("id = ? AND deleted_at IS NOT NULL", id).
		Update("deleted_at", nil)
	if res.Error != nil {
		return s.queryErr("recover_session", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.CodeStoreNotFound, "no archived session with that id")
	}

	s.persist(ctx)
	s.log.Info("session recovered", zap.Uint("id", id))
	return nil
}

// PurgeSession permanently deletes one archived session
func (s *Store) PurgeSession(ctx context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	gdb, err := s.handle()
	if err != nil {
		return s.queryErr("purge_session", err)
	}

	res := gdb.WithContext(ctx).Where("id = ? AND deleted_at IS NOT NULL", id).Delete(&models.Session{})
	if res.Error != nil {
		return s.queryErr("purge_session", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.CodeStoreNotFound, "no archived session with that id")
	}

	s.persist(ctx)
	s.log.Info("session purged", zap.Uint("id", id))
	return nil
}

// GetArchivedSessions lists archived sessions, most recently archived first
func (s *Store) GetArchivedSessions(ctx context.Context) ([]models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	gdb, err := s.handle()
	if err != nil {
		return nil, s.queryErr("get_archived", err)
	}

	sessions := make([]models.Session, 0)
	if err := gdb.WithContext(ctx).
		Where("deleted_at IS NOT NULL").
		Order("deleted_at DESC").Order("id DESC").
		Find(&sessions).Error; err != nil {
		return nil, s.queryErr("get_archived", err)
	}
	return sessions, nil
}

// PurgeExpiredArchive deletes sessions archived longer than the retention
// window and returns how many were removed
func (s *Store) PurgeExpiredArchive(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	gdb, err := s.handle()
	if err != nil {
		return 0, s.queryErr("purge_expired", err)
	}

	cutoff := models.FormatISO(s.now().Add(-s.retention))
	res := gdb.WithContext(ctx).
		Where("deleted_at IS NOT NULL AND deleted_at < ?", cutoff).
		Delete(&models.Session{})
	if res.Error != nil {
		return 0, s.queryErr("purge_expired", res.Error)
	}

	if res.RowsAffected > 0 {
		s.persist(ctx)
		s.log.Info("purged expired archive", zap.Int64("count", res.RowsAffected), zap.String("cutoff", cutoff))
	}
	return res.RowsAffected, nil
}
