package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langconnect/mcp-control-plane/internal/status"
)

func testConfig() ContainerConfig {
	return ContainerConfig{
		ServerID:      "srv-1",
		Name:          "weather",
		Image:         "ghcr.io/example/weather-mcp:latest",
		Port:          8765,
		Transport:     status.TransportStdio,
		Environment:   map[string]string{"MCP_SERVER_NAME": "should-be-overwritten"},
		RestartPolicy: "unless-stopped",
		MemoryLimit:   "512m",
		CPULimit:      1.5,
	}
}

func TestCreate_AssignsFixedIdentityEnvOverUserOverrides(t *testing.T) {
	api := newFakeDockerAPI()
	s := newSupervisor(api, "mcp-net")

	result := s.Create(context.Background(), testConfig())

	require.NotEmpty(t, result.ContainerID)
	assert.Equal(t, status.Stopped, result.Status)

	created := api.containers[result.ContainerID]
	require.NotNil(t, created)
	require.NotNil(t, created.Config)
	envByKey := map[string]string{}
	for _, kv := range created.Config.Env {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				envByKey[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	assert.Equal(t, "weather", envByKey["MCP_SERVER_NAME"])
	assert.Equal(t, "srv-1", envByKey["MCP_SERVER_ID"])
}

func TestCreate_RecreatesExistingContainer(t *testing.T) {
	api := newFakeDockerAPI()
	s := newSupervisor(api, "mcp-net")

	first := s.Create(context.Background(), testConfig())
	require.NotEmpty(t, first.ContainerID)

	second := s.Create(context.Background(), testConfig())
	require.NotEmpty(t, second.ContainerID)
	assert.NotEqual(t, first.ContainerID, second.ContainerID)
	_, stillExists := api.containers[first.ContainerID]
	assert.False(t, stillExists, "stale container should have been removed")
}

func TestStart_ReturnsRunningWhenSettled(t *testing.T) {
	api := newFakeDockerAPI()
	s := newSupervisor(api, "mcp-net")
	created := s.Create(context.Background(), testConfig())

	result := s.Start(context.Background(), created.ContainerID)

	assert.Equal(t, status.Running, result.Status)
}

func TestStop_ReturnsStopped(t *testing.T) {
	api := newFakeDockerAPI()
	s := newSupervisor(api, "mcp-net")
	created := s.Create(context.Background(), testConfig())
	s.Start(context.Background(), created.ContainerID)

	result := s.Stop(context.Background(), created.ContainerID, 5*time.Second)

	assert.Equal(t, status.Stopped, result.Status)
}

func TestRemove_MissingContainerIsTreatedAsAlreadyRemoved(t *testing.T) {
	api := newFakeDockerAPI()
	s := newSupervisor(api, "mcp-net")

	removed, err := s.Remove(context.Background(), "does-not-exist", false)

	require.NoError(t, err)
	assert.True(t, removed)
}

func TestInspect_NotFoundMapsToSentinelError(t *testing.T) {
	api := newFakeDockerAPI()
	s := newSupervisor(api, "mcp-net")

	_, _, _, err := s.Inspect(context.Background(), "does-not-exist")

	assert.ErrorIs(t, err, ErrContainerNotFound)
}

func TestInspect_IncludesResourceUsageSample(t *testing.T) {
	api := newFakeDockerAPI()
	api.statsBody = `{
		"cpu_stats": {"cpu_usage": {"total_usage": 300}, "system_cpu_usage": 2000},
		"precpu_stats": {"cpu_usage": {"total_usage": 100}, "system_cpu_usage": 1000},
		"memory_stats": {"usage": 104857600, "limit": 536870912}
	}`
	s := newSupervisor(api, "mcp-net")
	created := s.Create(context.Background(), testConfig())
	s.Start(context.Background(), created.ContainerID)

	_, _, stats, err := s.Inspect(context.Background(), created.ContainerID)

	require.NoError(t, err)
	assert.Equal(t, 20.0, stats.CPUPercent)
	assert.Equal(t, 100.0, stats.MemoryUsageMB)
}

func TestHealthCheck_RunningWithNoHealthCheckIsHealthy(t *testing.T) {
	api := newFakeDockerAPI()
	s := newSupervisor(api, "mcp-net")
	created := s.Create(context.Background(), testConfig())
	s.Start(context.Background(), created.ContainerID)

	healthy, detail := s.HealthCheck(context.Background(), created.ContainerID)

	assert.True(t, healthy)
	assert.Empty(t, detail)
}

func TestStats_ComputesCPUAndMemoryPercentages(t *testing.T) {
	api := newFakeDockerAPI()
	api.statsBody = `{
		"cpu_stats": {"cpu_usage": {"total_usage": 300}, "system_cpu_usage": 2000},
		"precpu_stats": {"cpu_usage": {"total_usage": 100}, "system_cpu_usage": 1000},
		"memory_stats": {"usage": 104857600, "limit": 536870912}
	}`
	s := newSupervisor(api, "mcp-net")

	stats, err := s.Stats(context.Background(), "any-id")

	require.NoError(t, err)
	assert.Equal(t, 20.0, stats.CPUPercent)
	assert.Equal(t, 100.0, stats.MemoryUsageMB)
	assert.Equal(t, 512.0, stats.MemoryLimitMB)
	assert.Equal(t, 19.53, stats.MemoryPercent)
}

func TestListManaged_ReturnsLabeledContainers(t *testing.T) {
	api := newFakeDockerAPI()
	s := newSupervisor(api, "mcp-net")
	s.Create(context.Background(), testConfig())

	containers, err := s.ListManaged(context.Background())

	require.NoError(t, err)
	require.Len(t, containers, 1)
	assert.Equal(t, "mcp-weather", containers[0].Name)
}

func TestMapContainerState(t *testing.T) {
	cases := map[string]status.State{
		"running":    status.Running,
		"exited":     status.Stopped,
		"paused":     status.Stopped,
		"restarting": status.Starting,
		"dead":       status.Error,
		"unknown":    status.Error,
	}
	for dockerStatus, want := range cases {
		assert.Equal(t, want, mapContainerState(dockerStatus), dockerStatus)
	}
}

func TestMergeEnvironment_FixedKeysAlwaysWin(t *testing.T) {
	cfg := testConfig()
	cfg.Environment = map[string]string{
		"MCP_SERVER_NAME": "attacker-supplied",
		"MCP_PORT":        "1",
		"CUSTOM_VAR":      "kept",
	}

	env := mergeEnvironment(cfg)

	byKey := map[string]string{}
	for _, kv := range env {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				byKey[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	assert.Equal(t, "weather", byKey["MCP_SERVER_NAME"])
	assert.Equal(t, "8765", byKey["MCP_PORT"])
	assert.Equal(t, "kept", byKey["CUSTOM_VAR"])
}
