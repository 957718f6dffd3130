// Package api serves the supervisor side of the remote store over HTTP:
// class rosters, per-student logs, approval decisions, uploaded evidence
// and printable reports.
package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/balkashynov/dtr/internal/models"
	"github.com/balkashynov/dtr/internal/remote"
	"github.com/balkashynov/dtr/internal/report"
)

// Store is the part of the remote store the API reads and writes
type Store interface {
	Ping(ctx context.Context) error
	GetUser(ctx context.Context, uid string) (*remote.User, error)
	StudentsByClass(ctx context.Context, code string) ([]remote.StudentSummary, error)
	StudentLogs(ctx context.Context, uid string) ([]remote.Log, error)
	SetApprovals(ctx context.Context, uid string, decisions map[string]models.ApprovalStatus) (int64, error)
	CreateClass(ctx context.Context, teacherID, name string) (*remote.Class, error)
	ClassesByTeacher(ctx context.Context, teacherID string) ([]remote.Class, error)
	GetEvidence(ctx context.Context, path string) (*remote.Evidence, error)
}

// Handler holds the endpoints
type Handler struct {
	store Store
	log   *zap.Logger
}

// NewHandler creates a Handler
func NewHandler(store Store, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{store: store, log: log}
}

// Health reports whether the remote store answers
// GET /health
func (h *Handler) Health(c *gin.Context) {
	if err := h.store.Ping(c.Request.Context()); err != nil {
		_ = c.Error(err)
		fail(c, http.StatusServiceUnavailable, CodeStoreOffline, "remote store unavailable")
		return
	}
	ok(c, gin.H{"status": "ok"})
}

// ClassStudents lists a class roster with rendered totals
// GET /api/v1/classes/:code/students
func (h *Handler) ClassStudents(c *gin.Context) {
	students, err := h.store.StudentsByClass(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.internal(c, err)
		return
	}
	ok(c, students)
}

type createClassRequest struct {
	TeacherID string `json:"teacher_id" binding:"required"`
	Name      string `json:"name" binding:"required,max=100"`
}

// CreateClass allocates a class code for a teacher
// POST /api/v1/classes
func (h *Handler) CreateClass(c *gin.Context) {
	var req createClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err.Error())
		return
	}
	class, err := h.store.CreateClass(c.Request.Context(), req.TeacherID, req.Name)
	if err != nil {
		h.internal(c, err)
		return
	}
	created(c, class)
}

// TeacherClasses lists the classes a teacher owns
// GET /api/v1/teachers/:uid/classes
func (h *Handler) TeacherClasses(c *gin.Context) {
	classes, err := h.store.ClassesByTeacher(c.Request.Context(), c.Param("uid"))
	if err != nil {
		h.internal(c, err)
		return
	}
	ok(c, classes)
}

// StudentLogs lists a student's synced sessions, newest first
// GET /api/v1/students/:uid/logs
func (h *Handler) StudentLogs(c *gin.Context) {
	logs, err := h.store.StudentLogs(c.Request.Context(), c.Param("uid"))
	if err != nil {
		h.internal(c, err)
		return
	}
	ok(c, logs)
}

type approvalsRequest struct {
	Decisions map[string]models.ApprovalStatus `json:"decisions" binding:"required"`
}

// SetApprovals records decisions keyed by sync key
// PUT /api/v1/students/:uid/approvals
func (h *Handler) SetApprovals(c *gin.Context) {
	var req approvalsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err.Error())
		return
	}
	if len(req.Decisions) == 0 {
		badRequest(c, "decisions must not be empty")
		return
	}
	for key, status := range req.Decisions {
		if !status.Valid() {
			badRequest(c, "invalid approval status", key+": "+string(status))
			return
		}
	}

	changed, err := h.store.SetApprovals(c.Request.Context(), c.Param("uid"), req.Decisions)
	if err != nil {
		h.internal(c, err)
		return
	}
	ok(c, gin.H{"changed": changed})
}

// Evidence serves an uploaded photo
// GET /api/v1/evidence/*path
func (h *Handler) Evidence(c *gin.Context) {
	path := strings.TrimPrefix(c.Param("path"), "/")
	if path == "" {
		notFound(c, "evidence not found")
		return
	}
	e, err := h.store.GetEvidence(c.Request.Context(), path)
	if errors.Is(err, remote.ErrNotFound) {
		notFound(c, "evidence not found")
		return
	}
	if err != nil {
		h.internal(c, err)
		return
	}
	c.Header("Cache-Control", "private, max-age=86400")
	c.Data(http.StatusOK, e.ContentType, e.Data)
}

// StudentReport renders a student's synced sessions as csv, xlsx or pdf
// GET /api/v1/students/:uid/report?format=xlsx
func (h *Handler) StudentReport(c *gin.Context) {
	ctx := c.Request.Context()
	uid := c.Param("uid")

	user, err := h.store.GetUser(ctx, uid)
	if errors.Is(err, remote.ErrNotFound) {
		notFound(c, "student not found")
		return
	}
	if err != nil {
		h.internal(c, err)
		return
	}

	logs, err := h.store.StudentLogs(ctx, uid)
	if err != nil {
		h.internal(c, err)
		return
	}
	sessions := make([]models.Session, 0, len(logs))
	for i := range logs {
		sessions = append(sessions, logs[i].Session())
	}

	sum := report.Summary{
		Title:         user.Name,
		RenderedHours: report.Total(sessions),
		GoalHours:     user.GoalHours,
	}

	format := c.DefaultQuery("format", "xlsx")
	var (
		data        []byte
		contentType string
	)
	switch format {
	case "csv":
		var buf bytes.Buffer
		err = report.WriteCSV(&buf, sessions)
		data, contentType = buf.Bytes(), "text/csv; charset=utf-8"
	case "xlsx":
		data, err = report.XLSX(sum, sessions)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case "pdf":
		data, err = report.PDF(sum, sessions)
		contentType = "application/pdf"
	default:
		badRequest(c, "format must be csv, xlsx or pdf")
		return
	}
	if err != nil {
		h.internal(c, err)
		return
	}

	filename := url.QueryEscape("dtr-" + uid + "." + format)
	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+filename)
	c.Data(http.StatusOK, contentType, data)
}

func (h *Handler) internal(c *gin.Context, err error) {
	_ = c.Error(err)
	internalError(c)
}
