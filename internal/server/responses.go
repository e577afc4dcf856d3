package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/KaramelBytes/avalia-cli/internal/analysis"
)

// APIResponse is the envelope of every JSON reply.
type APIResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func success(c *gin.Context, statusCode int, data any, message string) {
	c.JSON(statusCode, APIResponse{
		Status:  "success",
		Message: message,
		Data:    data,
	})
}

func fail(c *gin.Context, statusCode int, err error, message string) {
	resp := APIResponse{
		Status:  "error",
		Message: message,
	}
	if err != nil {
		resp.Error = err.Error()
	}
	c.JSON(statusCode, resp)
}

// statusFor maps analyzer errors to HTTP codes.
func statusFor(err error) int {
	var (
		lookup *analysis.LookupError
		valid  *analysis.ValidationError
		eval   *analysis.EvaluationError
	)
	switch {
	case errors.As(err, &lookup):
		return http.StatusNotFound
	case errors.As(err, &valid), errors.As(err, &eval):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
