package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is the envelope every JSON endpoint answers with
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Details string `json:"details,omitempty"`
}

// Error codes
const (
	CodeOK           = 0
	CodeBadRequest   = 10001
	CodeNotFound     = 10004
	CodeInternal     = 50000
	CodeStoreOffline = 50003
)

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Code: CodeOK, Message: "success", Data: data})
}

func created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, Response{Code: CodeOK, Message: "success", Data: data})
}

func fail(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, Response{Code: code, Message: message})
}

func badRequest(c *gin.Context, message string, details ...string) {
	r := Response{Code: CodeBadRequest, Message: message}
	if len(details) > 0 {
		r.Details = details[0]
	}
	c.JSON(http.StatusBadRequest, r)
}

func notFound(c *gin.Context, message string) {
	fail(c, http.StatusNotFound, CodeNotFound, message)
}

func internalError(c *gin.Context) {
	fail(c, http.StatusInternalServerError, CodeInternal, "internal server error")
}
