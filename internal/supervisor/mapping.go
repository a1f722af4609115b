package supervisor

import (
	"encoding/json"
	"io"

	"github.com/docker/docker/api/types/container"

	"github.com/langconnect/mcp-control-plane/internal/status"
)

// mapContainerState maps a Docker container status word to our lifecycle
// state, matching the original docker-manager's status_map table exactly.
func mapContainerState(dockerStatus string) status.State {
	switch dockerStatus {
	case "running":
		return status.Running
	case "exited", "paused":
		return status.Stopped
	case "restarting":
		return status.Starting
	case "dead":
		return status.Error
	default:
		return status.Error
	}
}

// isHealthy inspects the container's Docker-native health check, falling
// back to "healthy if running" when the container defines none.
func isHealthy(c container.InspectResponse) HealthResult {
	if c.State == nil {
		return HealthResult{Healthy: false, Detail: "no state reported"}
	}
	if c.State.Health != nil {
		healthy := c.State.Health.Status == "healthy"
		detail := ""
		if !healthy && len(c.State.Health.Log) > 0 {
			detail = c.State.Health.Log[len(c.State.Health.Log)-1].Output
		}
		return HealthResult{Healthy: healthy, Detail: detail}
	}
	return HealthResult{Healthy: c.State.Running}
}

// dockerStatsPayload mirrors the subset of the Engine API's stats JSON
// body the CPU/memory percentage formulas below need.
type dockerStatsPayload struct {
	CPUStats struct {
		CPUUsage struct {
			TotalUsage uint64 `json:"total_usage"`
		} `json:"cpu_usage"`
		SystemCPUUsage uint64 `json:"system_cpu_usage"`
	} `json:"cpu_stats"`
	PreCPUStats struct {
		CPUUsage struct {
			TotalUsage uint64 `json:"total_usage"`
		} `json:"cpu_usage"`
		SystemCPUUsage uint64 `json:"system_cpu_usage"`
	} `json:"precpu_stats"`
	MemoryStats struct {
		Usage uint64 `json:"usage"`
		Limit uint64 `json:"limit"`
	} `json:"memory_stats"`
}

// parseStats decodes a one-shot (stream=false) stats response body and
// computes CPU/memory percentages with the same formulas as the original
// implementation: cpu_delta/system_delta*100, usage/limit*100.
func parseStats(body io.Reader) (Stats, error) {
	var payload dockerStatsPayload
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return Stats{}, err
	}

	cpuDelta := float64(payload.CPUStats.CPUUsage.TotalUsage) - float64(payload.PreCPUStats.CPUUsage.TotalUsage)
	systemDelta := float64(payload.CPUStats.SystemCPUUsage) - float64(payload.PreCPUStats.SystemCPUUsage)

	var cpuPercent float64
	if systemDelta > 0 {
		cpuPercent = (cpuDelta / systemDelta) * 100.0
	}

	var memPercent float64
	if payload.MemoryStats.Limit > 0 {
		memPercent = (float64(payload.MemoryStats.Usage) / float64(payload.MemoryStats.Limit)) * 100.0
	}

	return Stats{
		CPUPercent:    round2(cpuPercent),
		MemoryUsageMB: round2(float64(payload.MemoryStats.Usage) / 1024 / 1024),
		MemoryLimitMB: round2(float64(payload.MemoryStats.Limit) / 1024 / 1024),
		MemoryPercent: round2(memPercent),
	}, nil
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
