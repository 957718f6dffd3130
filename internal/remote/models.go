package remote

import (
	"time"

	"github.com/balkashynov/dtr/internal/models"
)

// User is the per-user summary document. Students push their totals here;
// teachers own classes.
type User struct {
	ID            string    `gorm:"column:id;primaryKey" json:"id"`
	Role          string    `gorm:"column:role" json:"role"`
	Name          string    `gorm:"column:name" json:"name"`
	ClassCode     string    `gorm:"column:class_code;index" json:"class_code,omitempty"`
	GoalHours     float64   `gorm:"column:goal_hours" json:"goal_hours"`
	TotalRendered float64   `gorm:"column:total_rendered" json:"total_rendered"`
	LastSync      string    `gorm:"column:last_sync" json:"last_sync,omitempty"`
	UpdatedAt     time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (User) TableName() string { return "users" }

const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
)

// Log is the remote copy of one completed session, keyed by user and sync key
type Log struct {
	UserID         string  `gorm:"column:user_id;primaryKey" json:"user_id"`
	Key            string  `gorm:"column:key;primaryKey" json:"key"`
	Date           string  `gorm:"column:date" json:"date"`
	TimeIn         string  `gorm:"column:time_in" json:"time_in"`
	TimeOut        string  `gorm:"column:time_out" json:"time_out"`
	Duration       float64 `gorm:"column:duration" json:"duration"`
	Status         string  `gorm:"column:status" json:"status"`
	IsoStart       string  `gorm:"column:iso_start" json:"iso_start"`
	TotalPausedMs  int64   `gorm:"column:total_paused_ms" json:"total_paused_ms"`
	Notes          string  `gorm:"column:notes" json:"notes,omitempty"`
	LocationIn     string  `gorm:"column:location_in" json:"location_in,omitempty"`
	LocationOut    string  `gorm:"column:location_out" json:"location_out,omitempty"`
	PhotoURL       string  `gorm:"column:photo_url;type:text" json:"photo_url,omitempty"`
	ApprovalStatus string  `gorm:"column:approval_status;default:pending" json:"approval_status"`
	SyncedAt       string  `gorm:"column:synced_at" json:"synced_at"`
}

func (Log) TableName() string { return "logs" }

// Approval returns the approval status, treating an empty value as pending
func (l *Log) Approval() models.ApprovalStatus {
	if l.ApprovalStatus == "" {
		return models.ApprovalPending
	}
	return models.ApprovalStatus(l.ApprovalStatus)
}

// NewLog builds the remote record of a local session
func NewLog(uid string, s *models.Session, photoURL string, syncedAt time.Time) *Log {
	return &Log{
		UserID:         uid,
		Key:            s.Key(),
		Date:           s.Date,
		TimeIn:         s.TimeIn,
		TimeOut:        models.StringValue(s.TimeOut),
		Duration:       s.Hours(),
		Status:         string(s.Status),
		IsoStart:       s.IsoStart,
		TotalPausedMs:  s.TotalPausedMs,
		Notes:          models.StringValue(s.Notes),
		LocationIn:     models.StringValue(s.LocationIn),
		LocationOut:    models.StringValue(s.LocationOut),
		PhotoURL:       photoURL,
		ApprovalStatus: string(s.Approval()),
		SyncedAt:       models.FormatISO(syncedAt),
	}
}

// Class groups students under a teacher
type Class struct {
	Code      string    `gorm:"column:code;primaryKey" json:"code"`
	TeacherID string    `gorm:"column:teacher_id;index" json:"teacher_id"`
	Name      string    `gorm:"column:name" json:"name"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

func (Class) TableName() string { return "classes" }

// Evidence is an uploaded photo stored by the db uploader
type Evidence struct {
	Path        string    `gorm:"column:path;primaryKey" json:"path"`
	ContentType string    `gorm:"column:content_type" json:"content_type"`
	Data        []byte    `gorm:"column:data" json:"-"`
	CreatedAt   time.Time `gorm:"column:created_at" json:"created_at"`
}

func (Evidence) TableName() string { return "evidence" }

// Summary is what a student pushes about themselves on every sync
type Summary struct {
	TotalRendered float64
	GoalHours     float64
	LastSync      time.Time
}

// StudentSummary is one row of a class roster
type StudentSummary struct {
	User
	Rendered float64 `json:"rendered"`
	Sessions int64   `json:"sessions"`
}

// Session converts the remote copy back into a local session shape for
// rendering. ID and archive state are not part of the remote record.
func (l *Log) Session() models.Session {
	s := models.Session{
		Date:           l.Date,
		TimeIn:         l.TimeIn,
		Duration:       models.Ptr(l.Duration),
		Status:         models.Status(l.Status),
		IsoStart:       l.IsoStart,
		TotalPausedMs:  l.TotalPausedMs,
		ApprovalStatus: l.Approval(),
	}
	if l.TimeOut != "" {
		s.TimeOut = models.Ptr(l.TimeOut)
	}
	if l.Notes != "" {
		s.Notes = models.Ptr(l.Notes)
	}
	if l.LocationIn != "" {
		s.LocationIn = models.Ptr(l.LocationIn)
	}
	if l.LocationOut != "" {
		s.LocationOut = models.Ptr(l.LocationOut)
	}
	if l.PhotoURL != "" {
		s.PhotoURL = models.Ptr(l.PhotoURL)
	}
	return s
}
