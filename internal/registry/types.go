// Package registry persists MCP server metadata in Postgres: configuration,
// lifecycle status, ownership, and port assignment.
package registry

import (
	"time"

	"github.com/langconnect/mcp-control-plane/internal/status"
)

// ServerConfig is the user-supplied and auto-assigned configuration for a
// managed MCP server instance.
type ServerConfig struct {
	Name             string            `json:"name"`
	Description      string            `json:"description"`
	Transport        status.Transport  `json:"transport"`
	Port             int               `json:"port"`
	Environment      map[string]string `json:"environment"`
	DockerImage      string            `json:"docker_image"`
	MemoryLimit      string            `json:"memory_limit"`
	CPULimit         float64           `json:"cpu_limit"`
	RestartPolicy    string            `json:"restart_policy"`
	Volumes          []string          `json:"volumes"`
	Labels           map[string]string `json:"labels"`
	MiddlewareConfig map[string]any    `json:"middleware_config"`
}

// ServerStatus is the runtime status of a managed MCP server instance.
type ServerStatus struct {
	ServerID          string         `json:"server_id"`
	Status            status.State   `json:"status"`
	ContainerID       string         `json:"container_id,omitempty"`
	StartedAt         *time.Time     `json:"started_at,omitempty"`
	StoppedAt         *time.Time     `json:"stopped_at,omitempty"`
	HealthCheckPassed bool           `json:"health_check_passed"`
	LastHealthCheck   *time.Time     `json:"last_health_check,omitempty"`
	ErrorMessage      string         `json:"error_message,omitempty"`
	ResourceUsage     map[string]any `json:"resource_usage,omitempty"`
}

// Server is a complete registry record: configuration, status, and
// ownership metadata.
type Server struct {
	ID        string       `json:"id"`
	Config    ServerConfig `json:"config"`
	Status    ServerStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	CreatedBy string       `json:"created_by"`
}

// ContainerName is the deterministic Docker container name for this server.
func (s *Server) ContainerName() string {
	return "mcp-" + s.Config.Name
}

// CreateRequest is the input to Register.
type CreateRequest struct {
	Name             string
	Description      string
	Transport        status.Transport
	Port             int // 0 = auto-assign
	Environment      map[string]string
	DockerImage      string
	MemoryLimit      string
	CPULimit         float64
	MiddlewareConfig map[string]any
}

// UpdateRequest is the input to UpdateConfig. Nil/zero fields are left
// unchanged on the stored record.
type UpdateRequest struct {
	Description      *string
	Environment      map[string]string
	MemoryLimit      *string
	CPULimit         *float64
	MiddlewareConfig map[string]any
	RestartPolicy    *string
}

// ListFilter narrows List/Count results.
type ListFilter struct {
	CreatedBy string
	Status    status.State // empty = no filter
	Page      int          // 1-based
	PageSize  int
}

// Page is a paginated slice of servers.
type Page struct {
	Servers  []*Server
	Total    int
	Page     int
	PageSize int
}
