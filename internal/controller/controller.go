// Package controller orchestrates the registry, the container supervisor,
// and the auth token manager into the lifecycle and monitoring operations
// the HTTP layer exposes, integrating Docker management, registry, and
// authentication the way the original MCP controller service did.
package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/rs/zerolog"

	"github.com/langconnect/mcp-control-plane/internal/authtoken"
	"github.com/langconnect/mcp-control-plane/internal/obslog"
	"github.com/langconnect/mcp-control-plane/internal/registry"
	"github.com/langconnect/mcp-control-plane/internal/status"
	"github.com/langconnect/mcp-control-plane/internal/supervisor"
)

// Controller ties the registry, supervisor, and auth token manager
// together behind the operations the API surface needs.
type Controller struct {
	registry   *registry.Service
	supervisor *supervisor.Supervisor
	tokens     *authtoken.Manager
	log        zerolog.Logger
}

// New builds a Controller over already-initialized subsystems.
func New(reg *registry.Service, sup *supervisor.Supervisor, tokens *authtoken.Manager) *Controller {
	return &Controller{registry: reg, supervisor: sup, tokens: tokens, log: obslog.Component("controller")}
}

// ActionResult is returned by every lifecycle-action operation.
type ActionResult struct {
	Success bool
	Message string
	Server  *registry.Server
}

func (c *Controller) ownedServer(ctx context.Context, serverID, userID string) (*registry.Server, error) {
	server, err := c.registry.Get(ctx, serverID)
	if err != nil {
		return nil, newError(KindNotFound, "server not found", err)
	}
	if server.CreatedBy != userID {
		return nil, newError(KindForbidden, "access denied", nil)
	}
	return server, nil
}

// List returns a page of the calling user's servers.
func (c *Controller) List(ctx context.Context, userID string, filter registry.ListFilter) (*registry.Page, error) {
	filter.CreatedBy = userID
	page, err := c.registry.List(ctx, filter)
	if err != nil {
		return nil, newError(KindRuntimeInfra, "listing servers", err)
	}
	return page, nil
}

// Create registers a new server and materialises its container. The
// registry record is rolled back if container creation fails, matching
// create_server's cleanup-on-failure behaviour.
func (c *Controller) Create(ctx context.Context, req registry.CreateRequest, userID string) (*registry.Server, error) {
	server, err := c.registry.Register(ctx, req, userID)
	if err != nil {
		if rerr, ok := registryErrorKind(err); ok {
			return nil, rerr
		}
		return nil, newError(KindRuntimeInfra, "registering server", err)
	}

	result := c.supervisor.Create(ctx, containerConfigFor(server))
	if result.Status == status.Error {
		if _, delErr := c.registry.Delete(ctx, server.ID); delErr != nil {
			c.log.Error().Err(delErr).Str("server", server.ID).Msg("failed to roll back registry entry after container create failure")
		}
		return nil, newError(KindRuntimeInfra, result.ErrorMessage, nil)
	}

	newStatus := server.Status
	newStatus.ContainerID = result.ContainerID
	newStatus.Status = result.Status
	if _, err := c.registry.UpdateStatus(ctx, server.ID, newStatus); err != nil {
		return nil, newError(KindRuntimeInfra, "saving container status", err)
	}

	return c.registry.Get(ctx, server.ID)
}

// Get returns a single server owned by userID.
func (c *Controller) Get(ctx context.Context, serverID, userID string) (*registry.Server, error) {
	return c.ownedServer(ctx, serverID, userID)
}

// Update applies a partial configuration update to an owned server.
func (c *Controller) Update(ctx context.Context, serverID, userID string, req registry.UpdateRequest) (*registry.Server, error) {
	if _, err := c.ownedServer(ctx, serverID, userID); err != nil {
		return nil, err
	}
	server, err := c.registry.UpdateConfig(ctx, serverID, req)
	if err != nil {
		return nil, newError(KindRuntimeInfra, "updating server", err)
	}
	return server, nil
}

// Delete removes an owned server's container and registry record. A failure
// to remove the container is logged and does not stop the registry record
// from being deleted.
func (c *Controller) Delete(ctx context.Context, serverID, userID string) (*ActionResult, error) {
	server, err := c.ownedServer(ctx, serverID, userID)
	if err != nil {
		return nil, err
	}

	if server.Status.ContainerID != "" {
		if _, err := c.supervisor.Remove(ctx, server.Status.ContainerID, true); err != nil {
			c.log.Error().Err(err).Str("server", serverID).Msg("failed to remove container; deleting registry record anyway")
		}
	}

	if _, err := c.registry.Delete(ctx, serverID); err != nil {
		return nil, newError(KindRuntimeInfra, "deleting registry record", err)
	}

	return &ActionResult{Success: true, Message: fmt.Sprintf("server %q deleted successfully", server.Config.Name)}, nil
}

// Start starts (creating the container first if one does not yet exist)
// an owned server, injecting a fresh auth token into its environment when
// one is available for userID.
func (c *Controller) Start(ctx context.Context, serverID, userID string) (*ActionResult, error) {
	server, err := c.ownedServer(ctx, serverID, userID)
	if err != nil {
		return nil, err
	}
	if !server.Status.Status.CanStart() {
		return nil, newError(KindValidation, fmt.Sprintf("server cannot be started from %s state", server.Status.Status), nil)
	}

	c.injectFreshToken(ctx, &server.Config, userID)

	if server.Status.ContainerID == "" {
		result := c.supervisor.Create(ctx, containerConfigFor(server))
		if result.Status == status.Error {
			return nil, newError(KindRuntimeInfra, result.ErrorMessage, nil)
		}
		server.Status.ContainerID = result.ContainerID
	}

	result := c.supervisor.Start(ctx, server.Status.ContainerID)
	updated, err := c.registry.UpdateStatus(ctx, serverID, mergeStatus(server.Status, result))
	if err != nil {
		return nil, newError(KindRuntimeInfra, "saving status", err)
	}

	return &ActionResult{
		Success: result.Status == status.Running,
		Message: startStopMessage(updated.Config.Name, "start", result),
		Server:  updated,
	}, nil
}

// Stop stops an owned, running server's container.
func (c *Controller) Stop(ctx context.Context, serverID, userID string) (*ActionResult, error) {
	server, err := c.ownedServer(ctx, serverID, userID)
	if err != nil {
		return nil, err
	}
	if !server.Status.Status.CanStop() {
		return nil, newError(KindValidation, fmt.Sprintf("server cannot be stopped from %s state", server.Status.Status), nil)
	}
	if server.Status.ContainerID == "" {
		return nil, newError(KindValidation, "no container found for server", nil)
	}

	result := c.supervisor.Stop(ctx, server.Status.ContainerID, 10*time.Second)
	updated, err := c.registry.UpdateStatus(ctx, serverID, mergeStatus(server.Status, result))
	if err != nil {
		return nil, newError(KindRuntimeInfra, "saving status", err)
	}

	return &ActionResult{
		Success: result.Status == status.Stopped,
		Message: startStopMessage(updated.Config.Name, "stop", result),
		Server:  updated,
	}, nil
}

// Restart restarts an owned server's container. Token injection here only
// updates the registry's cached configuration: pushing a refreshed token
// into an already-running container's environment requires a container
// recreation the original implementation also deferred (its own TODO).
func (c *Controller) Restart(ctx context.Context, serverID, userID string) (*ActionResult, error) {
	server, err := c.ownedServer(ctx, serverID, userID)
	if err != nil {
		return nil, err
	}
	if server.Status.ContainerID == "" {
		return nil, newError(KindValidation, "no container found for server", nil)
	}

	c.injectFreshToken(ctx, &server.Config, userID)
	if _, err := c.registry.UpdateConfig(ctx, serverID, registry.UpdateRequest{Environment: server.Config.Environment}); err != nil {
		c.log.Warn().Err(err).Str("server", serverID).Msg("failed to persist refreshed token before restart")
	}

	result := c.supervisor.Restart(ctx, server.Status.ContainerID, 10*time.Second)
	updated, err := c.registry.UpdateStatus(ctx, serverID, mergeStatus(server.Status, result))
	if err != nil {
		return nil, newError(KindRuntimeInfra, "saving status", err)
	}

	return &ActionResult{
		Success: result.Status == status.Running,
		Message: startStopMessage(updated.Config.Name, "restart", result),
		Server:  updated,
	}, nil
}

// Status returns the current, supervisor-refreshed status for an owned
// server, falling back to the last-known registry status if the server
// has no container yet.
func (c *Controller) Status(ctx context.Context, serverID, userID string) (*registry.ServerStatus, error) {
	server, err := c.ownedServer(ctx, serverID, userID)
	if err != nil {
		return nil, err
	}
	if server.Status.ContainerID == "" {
		return &server.Status, nil
	}

	state, health, stats, err := c.supervisor.Inspect(ctx, server.Status.ContainerID)
	if err != nil {
		return &server.Status, nil
	}

	newStatus := server.Status
	newStatus.Status = state
	newStatus.HealthCheckPassed = health.Healthy
	newStatus.ResourceUsage = statsToMap(stats)
	if !health.Healthy && health.Detail != "" {
		newStatus.ErrorMessage = health.Detail
	}
	if _, err := c.registry.UpdateStatus(ctx, serverID, newStatus); err != nil {
		c.log.Warn().Err(err).Str("server", serverID).Msg("failed to persist refreshed status")
	}
	return &newStatus, nil
}

// HealthCheck performs a one-shot health check against an owned server's
// container and persists the result.
func (c *Controller) HealthCheck(ctx context.Context, serverID, userID string) (healthy bool, detail string, err error) {
	server, err := c.ownedServer(ctx, serverID, userID)
	if err != nil {
		return false, "", err
	}
	if server.Status.ContainerID == "" {
		return false, "no container found", nil
	}

	healthy, detail = c.supervisor.HealthCheck(ctx, server.Status.ContainerID)

	newStatus := server.Status
	newStatus.HealthCheckPassed = healthy
	now := time.Now().UTC()
	newStatus.LastHealthCheck = &now
	if detail != "" {
		newStatus.ErrorMessage = detail
	}
	if _, err := c.registry.UpdateStatus(ctx, serverID, newStatus); err != nil {
		c.log.Warn().Err(err).Str("server", serverID).Msg("failed to persist health check result")
	}
	return healthy, detail, nil
}

// StreamLogs opens a log stream for an owned server's container.
func (c *Controller) StreamLogs(ctx context.Context, serverID, userID string, follow bool, tail int) (*supervisor.LogStream, error) {
	server, err := c.ownedServer(ctx, serverID, userID)
	if err != nil {
		return nil, err
	}
	if server.Status.ContainerID == "" {
		return nil, newError(KindValidation, "no container found for server", nil)
	}
	stream, err := c.supervisor.StreamLogs(ctx, server.Status.ContainerID, follow, tail)
	if err != nil {
		return nil, newError(KindRuntimeInfra, "streaming logs", err)
	}
	return stream, nil
}

// ElicitationResponse is the client's reply to a server-initiated
// elicitation request. Schema, when set, is the response_schema the
// server attached to its original elicitation request; the payload is
// validated against it before being accepted.
type ElicitationResponse struct {
	RequestID string
	Payload   map[string]any
	Schema    *jsonschema.Schema
}

// RespondToElicitation accepts a client's response to a server-initiated
// elicitation request. There is no live transport back to the MCP server
// process to deliver it over (stdio/SSE/HTTP sessions are ephemeral and
// owned by the gateway process, not this control plane), so this records
// acceptance only, matching the original's own placeholder behaviour.
func (c *Controller) RespondToElicitation(ctx context.Context, serverID, userID string, resp ElicitationResponse) error {
	if _, err := c.ownedServer(ctx, serverID, userID); err != nil {
		return err
	}
	if resp.Schema != nil {
		resolved, err := resp.Schema.Resolve(nil)
		if err != nil {
			return newError(KindValidation, "invalid response schema", err)
		}
		if err := resolved.Validate(resp.Payload); err != nil {
			return newError(KindValidation, "elicitation response failed schema validation", err)
		}
	}
	c.log.Info().Str("server", serverID).Str("request", resp.RequestID).Msg("elicitation response accepted")
	return nil
}

func (c *Controller) injectFreshToken(ctx context.Context, cfg *registry.ServerConfig, userID string) {
	if c.tokens == nil {
		return
	}
	token, err := c.tokens.Get(ctx, userID)
	if err != nil {
		return
	}
	if cfg.Environment == nil {
		cfg.Environment = map[string]string{}
	}
	cfg.Environment["SUPABASE_JWT_SECRET"] = token
}

func containerConfigFor(server *registry.Server) supervisor.ContainerConfig {
	return supervisor.ContainerConfig{
		ServerID:      server.ID,
		Name:          server.Config.Name,
		Image:         server.Config.DockerImage,
		Port:          server.Config.Port,
		Transport:     server.Config.Transport,
		Environment:   server.Config.Environment,
		Labels:        server.Config.Labels,
		Volumes:       server.Config.Volumes,
		MemoryLimit:   server.Config.MemoryLimit,
		CPULimit:      server.Config.CPULimit,
		RestartPolicy: server.Config.RestartPolicy,
		MiddlewareCfg: server.Config.MiddlewareConfig,
	}
}

func mergeStatus(current registry.ServerStatus, result supervisor.Result) registry.ServerStatus {
	current.ContainerID = result.ContainerID
	current.Status = result.Status
	current.ErrorMessage = result.ErrorMessage
	now := time.Now().UTC()
	switch result.Status {
	case status.Running:
		current.StartedAt = &now
	case status.Stopped:
		current.StoppedAt = &now
	}
	return current
}

// statsToMap renders a resource usage sample into the untyped shape
// ServerStatus.ResourceUsage stores, matching get_container_status's
// resource_usage=stats assignment.
func statsToMap(s supervisor.Stats) map[string]any {
	return map[string]any{
		"cpu_percent":     s.CPUPercent,
		"memory_usage_mb": s.MemoryUsageMB,
		"memory_limit_mb": s.MemoryLimitMB,
		"memory_percent":  s.MemoryPercent,
	}
}

func startStopMessage(name, verb string, result supervisor.Result) string {
	succeeded := (verb == "stop" && result.Status == status.Stopped) || (verb != "stop" && result.Status == status.Running)
	if succeeded {
		return fmt.Sprintf("server %q %sed successfully", name, verb)
	}
	return fmt.Sprintf("failed to %s server: %s", verb, result.ErrorMessage)
}

func registryErrorKind(err error) (*Error, bool) {
	switch {
	case errors.Is(err, registry.ErrNameConflict):
		return newError(KindNameConflict, "server name already in use", err), true
	case errors.Is(err, registry.ErrInvalidName):
		return newError(KindValidation, "invalid server name", err), true
	case errors.Is(err, registry.ErrInvalidPort):
		return newError(KindValidation, "invalid port", err), true
	case errors.Is(err, registry.ErrInvalidCPULimit):
		return newError(KindValidation, "invalid cpu_limit", err), true
	case errors.Is(err, registry.ErrNotFound):
		return newError(KindNotFound, "server not found", err), true
	}
	return nil, false
}
