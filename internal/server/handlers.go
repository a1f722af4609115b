package server

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/jsonschema-go/jsonschema"

	"github.com/langconnect/mcp-control-plane/internal/controller"
	"github.com/langconnect/mcp-control-plane/internal/registry"
	"github.com/langconnect/mcp-control-plane/internal/status"
)

type createServerRequest struct {
	Name             string            `json:"name" binding:"required"`
	Description      string            `json:"description"`
	Transport        string            `json:"transport"`
	Port             int               `json:"port"`
	Environment      map[string]string `json:"environment"`
	DockerImage      string            `json:"docker_image"`
	MemoryLimit      string            `json:"memory_limit"`
	CPULimit         float64           `json:"cpu_limit"`
	MiddlewareConfig map[string]any    `json:"middleware_config"`
}

func (s *Server) listServers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	filter := registry.ListFilter{
		Status:   status.State(c.Query("status")),
		Page:     page,
		PageSize: pageSize,
	}

	result, err := s.ctrl.List(c.Request.Context(), currentUserID(c), filter)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, result)
}

func (s *Server) createServer(c *gin.Context) {
	var req createServerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, controllerValidationErr(err))
		return
	}

	server, err := s.ctrl.Create(c.Request.Context(), registry.CreateRequest{
		Name:             req.Name,
		Description:      req.Description,
		Transport:        status.Transport(req.Transport),
		Port:             req.Port,
		Environment:      req.Environment,
		DockerImage:      req.DockerImage,
		MemoryLimit:      req.MemoryLimit,
		CPULimit:         req.CPULimit,
		MiddlewareConfig: req.MiddlewareConfig,
	}, currentUserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, envelope{Success: true, Data: server, RequestID: c.GetString("request_id")})
}

func (s *Server) getServer(c *gin.Context) {
	server, err := s.ctrl.Get(c.Request.Context(), c.Param("id"), currentUserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, server)
}

type updateServerRequest struct {
	Description      *string           `json:"description"`
	Environment      map[string]string `json:"environment"`
	MemoryLimit      *string           `json:"memory_limit"`
	CPULimit         *float64          `json:"cpu_limit"`
	MiddlewareConfig map[string]any    `json:"middleware_config"`
	RestartPolicy    *string           `json:"restart_policy"`
}

func (s *Server) updateServer(c *gin.Context) {
	var req updateServerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, controllerValidationErr(err))
		return
	}

	server, err := s.ctrl.Update(c.Request.Context(), c.Param("id"), currentUserID(c), registry.UpdateRequest{
		Description:      req.Description,
		Environment:      req.Environment,
		MemoryLimit:      req.MemoryLimit,
		CPULimit:         req.CPULimit,
		MiddlewareConfig: req.MiddlewareConfig,
		RestartPolicy:    req.RestartPolicy,
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, server)
}

func (s *Server) deleteServer(c *gin.Context) {
	result, err := s.ctrl.Delete(c.Request.Context(), c.Param("id"), currentUserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, result)
}

func (s *Server) startServer(c *gin.Context) {
	result, err := s.ctrl.Start(c.Request.Context(), c.Param("id"), currentUserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	s.publishStatus(currentUserID(c), result.Server)
	ok(c, result)
}

func (s *Server) stopServer(c *gin.Context) {
	result, err := s.ctrl.Stop(c.Request.Context(), c.Param("id"), currentUserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	s.publishStatus(currentUserID(c), result.Server)
	ok(c, result)
}

func (s *Server) restartServer(c *gin.Context) {
	result, err := s.ctrl.Restart(c.Request.Context(), c.Param("id"), currentUserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	s.publishStatus(currentUserID(c), result.Server)
	ok(c, result)
}

func (s *Server) serverStatus(c *gin.Context) {
	st, err := s.ctrl.Status(c.Request.Context(), c.Param("id"), currentUserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, st)
}

func (s *Server) serverHealth(c *gin.Context) {
	healthy, detail, err := s.ctrl.HealthCheck(c.Request.Context(), c.Param("id"), currentUserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"healthy": healthy, "error": detail})
}

// streamServerLogs streams container logs as Server-Sent Events, matching
// the original's SSE framing exactly: "data: <line>\n\n" with proxy
// buffering disabled.
func (s *Server) streamServerLogs(c *gin.Context) {
	follow := c.DefaultQuery("follow", "true") == "true"
	tail, _ := strconv.Atoi(c.DefaultQuery("tail", "100"))

	stream, err := s.ctrl.StreamLogs(c.Request.Context(), c.Param("id"), currentUserID(c), follow, tail)
	if err != nil {
		fail(c, err)
		return
	}
	defer stream.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(func(w io.Writer) bool {
		line, ok := stream.Next()
		if !ok {
			return false
		}
		fmt.Fprintf(w, "data: %s\n\n", line)
		return true
	})
}

type elicitationResponseRequest struct {
	RequestID      string             `json:"request_id" binding:"required"`
	Payload        map[string]any     `json:"payload"`
	ResponseSchema *jsonschema.Schema `json:"response_schema"`
}

func (s *Server) respondToElicitation(c *gin.Context) {
	var req elicitationResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, controllerValidationErr(err))
		return
	}

	if err := s.ctrl.RespondToElicitation(c.Request.Context(), c.Param("id"), currentUserID(c), controller.ElicitationResponse{
		RequestID: req.RequestID,
		Payload:   req.Payload,
		Schema:    req.ResponseSchema,
	}); err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"success": true, "message": "response submitted"})
}

func (s *Server) serverStatusFeed(c *gin.Context) {
	if err := s.hub.Serve(c.Writer, c.Request, currentUserID(c)); err != nil {
		s.log.Debug().Err(err).Msg("status feed connection closed")
	}
}

func controllerValidationErr(err error) error {
	return &controller.Error{Kind: controller.KindValidation, Message: err.Error()}
}
