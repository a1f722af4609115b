// Package supervisor translates registry configuration into Docker
// containers and keeps their runtime state in sync, using the Docker
// Engine API directly rather than shelling out to the docker CLI.
package supervisor

import "github.com/langconnect/mcp-control-plane/internal/status"

const (
	// LabelType marks every container this supervisor manages.
	LabelType = "com.langconnect.type"
	// LabelServerID carries the owning registry record's ID.
	LabelServerID = "com.langconnect.server-id"
	// LabelServerName carries the owning registry record's name.
	LabelServerName = "com.langconnect.server-name"

	// LabelTypeValue is the fixed value LabelType is set to.
	LabelTypeValue = "mcp-server"
)

// ContainerConfig is the subset of a registry ServerConfig the supervisor
// needs to materialise a container; it is transport-agnostic with respect
// to the registry package to keep the two packages independently testable.
type ContainerConfig struct {
	ServerID      string
	Name          string
	Image         string
	Port          int
	Transport     status.Transport
	Environment   map[string]string
	Labels        map[string]string
	Volumes       []string
	MemoryLimit   string
	CPULimit      float64
	RestartPolicy string
	MiddlewareCfg map[string]any
}

// Result is what every lifecycle operation reports back to the controller.
type Result struct {
	ContainerID  string
	Status       status.State
	ErrorMessage string
}

// HealthResult is the outcome of a one-shot health check.
type HealthResult struct {
	Healthy bool
	Detail  string
}

// Stats is a point-in-time resource usage sample.
type Stats struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryUsageMB float64 `json:"memory_usage_mb"`
	MemoryLimitMB float64 `json:"memory_limit_mb"`
	MemoryPercent float64 `json:"memory_percent"`
}

// ContainerInfo is a single entry in ListManaged's result.
type ContainerInfo struct {
	ID         string
	Name       string
	State      string
	ServerID   string
	ServerName string
}
