package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/go-connections/nat"

	"github.com/langconnect/mcp-control-plane/internal/status"
)

// Create builds (recreating if a same-named container already exists) a
// Docker container for cfg and returns its ID and initial status, mirroring
// DockerManager.create_container.
func (s *Supervisor) Create(ctx context.Context, cfg ContainerConfig) Result {
	name := containerName(cfg.Name)

	if existing, err := s.api.ContainerInspect(ctx, name); err == nil {
		if _, err := s.Remove(ctx, existing.ID, true); err != nil {
			return Result{Status: status.Error, ErrorMessage: fmt.Sprintf("removing stale container: %v", err)}
		}
	}

	image := cfg.Image
	if normalized, err := validateImage(image); err == nil {
		image = normalized
	}

	env := mergeEnvironment(cfg)
	labels := mergeLabels(cfg)

	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			nat.Port(portBinding(cfg.Port)): []nat.PortBinding{{HostPort: fmt.Sprintf("%d", cfg.Port)}},
		},
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyMode(cfg.RestartPolicy)},
		NetworkMode:   network.NetworkMode(s.networkName),
		Resources: container.Resources{
			Memory:    parseMemoryLimit(cfg.MemoryLimit),
			CPUQuota:  int64(cfg.CPULimit * 100000), // matches cpu_quota = int(cpu_limit * 100000)
			CPUPeriod: 100000,
		},
		Binds: cfg.Volumes,
	}

	resp, err := s.api.ContainerCreate(ctx, &container.Config{
		Image:  image,
		Env:    env,
		Labels: labels,
	}, hostConfig, &network.NetworkingConfig{}, name)
	if err != nil {
		s.log.Error().Err(err).Str("image", image).Msg("failed to create container")
		detail := s.preflightImage(ctx, image)
		msg := fmt.Sprintf("Docker image not found: %s", cfg.Image)
		if detail != "" {
			msg = fmt.Sprintf("%s (%s)", msg, detail)
		}
		return Result{Status: status.Error, ErrorMessage: msg}
	}

	s.log.Info().Str("container", name).Str("id", resp.ID).Msg("created container")
	return Result{ContainerID: resp.ID, Status: status.Stopped}
}

// Start starts an existing container and waits briefly for it to report
// running, mirroring DockerManager.start_container's one-second settle.
func (s *Supervisor) Start(ctx context.Context, containerID string) Result {
	if err := s.api.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		if isNotFound(err) {
			return Result{Status: status.Error, ErrorMessage: "Container not found"}
		}
		return Result{Status: status.Error, ErrorMessage: err.Error()}
	}

	time.Sleep(time.Second)
	return s.settledResult(ctx, containerID, "start")
}

// Restart stops and starts the container, waiting longer (two seconds,
// matching the original) for it to settle.
func (s *Supervisor) Restart(ctx context.Context, containerID string, timeout time.Duration) Result {
	timeoutSeconds := int(timeout.Seconds())
	if err := s.api.ContainerRestart(ctx, containerID, container.StopOptions{Timeout: &timeoutSeconds}); err != nil {
		if isNotFound(err) {
			return Result{Status: status.Error, ErrorMessage: "Container not found"}
		}
		return Result{Status: status.Error, ErrorMessage: err.Error()}
	}

	time.Sleep(2 * time.Second)
	return s.settledResult(ctx, containerID, "restart")
}

func (s *Supervisor) settledResult(ctx context.Context, containerID, verb string) Result {
	info, err := s.api.ContainerInspect(ctx, containerID)
	if err != nil {
		return Result{Status: status.Error, ErrorMessage: err.Error()}
	}
	if info.State != nil && info.State.Running {
		return Result{ContainerID: info.ID, Status: status.Running}
	}
	dockerStatus := "unknown"
	if info.State != nil {
		dockerStatus = info.State.Status
	}
	return Result{
		ContainerID:  info.ID,
		Status:       status.Error,
		ErrorMessage: fmt.Sprintf("Container failed to %s: %s", verb, dockerStatus),
	}
}

// Stop stops a running container.
func (s *Supervisor) Stop(ctx context.Context, containerID string, timeout time.Duration) Result {
	timeoutSeconds := int(timeout.Seconds())
	if err := s.api.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeoutSeconds}); err != nil {
		if isNotFound(err) {
			return Result{Status: status.Error, ErrorMessage: "Container not found"}
		}
		return Result{Status: status.Error, ErrorMessage: err.Error()}
	}
	return Result{ContainerID: containerID, Status: status.Stopped}
}

// Remove deletes a container. A missing container is treated as already
// removed (returns true, nil), matching remove_container's behaviour.
func (s *Supervisor) Remove(ctx context.Context, containerID string, force bool) (bool, error) {
	err := s.api.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: force})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return true, nil
	}
	return false, err
}

// Inspect returns the current lifecycle state, health, and a one-shot
// resource usage sample for containerID, matching get_container_status.
// A stats sampling failure does not fail the inspect: it matches
// _get_container_stats's own try/except, which degrades to an empty
// sample rather than losing the status read.
func (s *Supervisor) Inspect(ctx context.Context, containerID string) (status.State, HealthResult, Stats, error) {
	info, err := s.api.ContainerInspect(ctx, containerID)
	if err != nil {
		if isNotFound(err) {
			return "", HealthResult{}, Stats{}, ErrContainerNotFound
		}
		return "", HealthResult{}, Stats{}, err
	}
	dockerStatus := ""
	if info.State != nil {
		dockerStatus = info.State.Status
	}

	stats, err := s.Stats(ctx, containerID)
	if err != nil {
		s.log.Debug().Err(err).Str("container", containerID).Msg("failed to sample container stats")
	}

	return mapContainerState(dockerStatus), isHealthy(info), stats, nil
}

// HealthCheck reports whether containerID is currently running and, if it
// defines a Docker health check, whether that check currently passes.
func (s *Supervisor) HealthCheck(ctx context.Context, containerID string) (bool, string) {
	info, err := s.api.ContainerInspect(ctx, containerID)
	if err != nil {
		return false, "Container not found"
	}
	if info.State == nil || !info.State.Running {
		st := "unknown"
		if info.State != nil {
			st = info.State.Status
		}
		return false, fmt.Sprintf("Container is %s", st)
	}
	result := isHealthy(info)
	if !result.Healthy && result.Detail != "" {
		return false, fmt.Sprintf("Health check failing: %s", result.Detail)
	}
	return result.Healthy, ""
}

// Stats returns a one-shot resource usage sample, matching
// _get_container_stats.
func (s *Supervisor) Stats(ctx context.Context, containerID string) (Stats, error) {
	resp, err := s.api.ContainerStats(ctx, containerID, false)
	if err != nil {
		return Stats{}, err
	}
	defer resp.Body.Close()
	return parseStats(resp.Body)
}

// ListManaged lists every container this supervisor created, identified by
// LabelType, matching list_mcp_containers.
func (s *Supervisor) ListManaged(ctx context.Context) ([]ContainerInfo, error) {
	summaries, err := s.api.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", LabelType+"="+LabelTypeValue)),
	})
	if err != nil {
		return nil, fmt.Errorf("listing containers: %w", err)
	}

	out := make([]ContainerInfo, 0, len(summaries))
	for _, c := range summaries {
		name := ""
		if len(c.Names) > 0 {
			name = c.Names[0]
		}
		out = append(out, ContainerInfo{
			ID:         c.ID,
			Name:       name,
			State:      c.State,
			ServerID:   c.Labels[LabelServerID],
			ServerName: c.Labels[LabelServerName],
		})
	}
	return out, nil
}

// ErrContainerNotFound is returned by Inspect when the container has been
// removed outside the control plane (e.g. by a manual `docker rm`).
var ErrContainerNotFound = fmt.Errorf("supervisor: container not found")

func mergeEnvironment(cfg ContainerConfig) []string {
	merged := make(map[string]string, len(cfg.Environment)+4)
	for k, v := range cfg.Environment {
		merged[k] = v
	}
	// Fixed identity variables always win over user-supplied overrides.
	merged["MCP_SERVER_NAME"] = cfg.Name
	merged["MCP_SERVER_ID"] = cfg.ServerID
	merged["MCP_TRANSPORT"] = string(cfg.Transport)
	merged["MCP_PORT"] = fmt.Sprintf("%d", cfg.Port)

	if len(cfg.MiddlewareCfg) > 0 {
		if raw, err := json.Marshal(cfg.MiddlewareCfg); err == nil {
			merged["MCP_MIDDLEWARE_CONFIG"] = string(raw)
		}
	}

	env := make([]string, 0, len(merged))
	for k, v := range merged {
		env = append(env, k+"="+v)
	}
	return env
}

func mergeLabels(cfg ContainerConfig) map[string]string {
	labels := make(map[string]string, len(cfg.Labels)+3)
	for k, v := range cfg.Labels {
		labels[k] = v
	}
	labels[LabelType] = LabelTypeValue
	labels[LabelServerID] = cfg.ServerID
	labels[LabelServerName] = cfg.Name
	return labels
}

func parseMemoryLimit(limit string) int64 {
	units := map[string]int64{"k": 1024, "m": 1024 * 1024, "g": 1024 * 1024 * 1024}
	if limit == "" {
		return 0
	}
	n := len(limit)
	suffix := limit[n-1:]
	if mult, ok := units[toLower(suffix)]; ok {
		var value int64
		if _, err := fmt.Sscanf(limit[:n-1], "%d", &value); err == nil {
			return value * mult
		}
	}
	var value int64
	if _, err := fmt.Sscanf(limit, "%d", &value); err == nil {
		return value
	}
	return 0
}

func toLower(s string) string {
	if s >= "A" && s <= "Z" {
		return string(rune(s[0]) + 32)
	}
	return s
}

