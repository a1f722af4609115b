package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/langconnect/mcp-control-plane/internal/controller"
)

// envelope is the uniform JSON shape every response on this API is
// wrapped in, success or failure.
type envelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, envelope{
		Success:   true,
		Data:      data,
		RequestID: c.GetString("request_id"),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	if cerr, isControllerErr := controller.As(err); isControllerErr {
		message = cerr.Message
		switch cerr.Kind {
		case controller.KindValidation:
			status = http.StatusBadRequest
		case controller.KindNotFound:
			status = http.StatusNotFound
		case controller.KindForbidden:
			status = http.StatusForbidden
		case controller.KindNameConflict:
			status = http.StatusBadRequest
		case controller.KindAuth:
			status = http.StatusUnauthorized
		case controller.KindTransient:
			status = http.StatusServiceUnavailable
		case controller.KindRuntimeInfra:
			status = http.StatusInternalServerError
		}
	} else if err != nil {
		message = err.Error()
	}

	c.JSON(status, envelope{
		Success:   false,
		Error:     message,
		RequestID: c.GetString("request_id"),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
