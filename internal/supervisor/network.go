package supervisor

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types/network"
)

// ensureNetwork creates the supervisor's bridge network if it does not
// already exist, matching DockerManager._ensure_network.
func (s *Supervisor) ensureNetwork(ctx context.Context) error {
	_, err := s.api.NetworkInspect(ctx, s.networkName, network.InspectOptions{})
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return fmt.Errorf("inspecting docker network %q: %w", s.networkName, err)
	}

	s.log.Info().Str("network", s.networkName).Msg("creating docker network")
	_, err = s.api.NetworkCreate(ctx, s.networkName, network.CreateOptions{
		Driver: "bridge",
		Labels: map[string]string{
			"app":       "mcp-control-plane",
			"component": "mcp",
		},
	})
	if err != nil {
		return fmt.Errorf("creating docker network %q: %w", s.networkName, err)
	}
	return nil
}
