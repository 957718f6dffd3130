package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter wires the endpoints and middleware
func NewRouter(h *Handler, log *zap.Logger) *gin.Engine {
	if log == nil {
		log = zap.NewNop()
	}
	r := gin.New()
	r.Use(requestID(), accessLog(log), recovery(log))

	r.GET("/health", h.Health)

	v1 := r.Group("/api/v1")
	{
		classes := v1.Group("/classes")
		classes.POST("", h.CreateClass)
		classes.GET("/:code/students", h.ClassStudents)

		v1.GET("/teachers/:uid/classes", h.TeacherClasses)

		students := v1.Group("/students/:uid")
		students.GET("/logs", h.StudentLogs)
		students.PUT("/approvals", h.SetApprovals)
		students.GET("/report", h.StudentReport)

		v1.GET("/evidence/*path", h.Evidence)
	}

	r.NoRoute(func(c *gin.Context) {
		notFound(c, "route not found")
	})
	return r
}

// Serve runs the router on addr until ctx is cancelled
func Serve(ctx context.Context, addr string, handler http.Handler, log *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("api listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("api stopped")
	return nil
}
