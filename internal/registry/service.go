package registry

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/langconnect/mcp-control-plane/internal/obslog"
	"github.com/langconnect/mcp-control-plane/internal/status"
)

var nameRE = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Service is the registry's public API: register, read, update, and
// delete server records, with port allocation and name uniqueness.
type Service struct {
	repo      Repository
	cache     idCache
	startPort int
	log       zerolog.Logger
}

// NewService builds a registry Service. startPort is where port
// auto-assignment begins scanning (spec default: 8765).
func NewService(repo Repository, cache idCache, startPort int) *Service {
	if cache == nil {
		cache = noopCache{}
	}
	if startPort <= 0 {
		startPort = 8765
	}
	return &Service{repo: repo, cache: cache, startPort: startPort, log: obslog.Component("registry")}
}

// Register validates and persists a new server, auto-assigning a port
// when req.Port is 0.
func (s *Service) Register(ctx context.Context, req CreateRequest, userID string) (*Server, error) {
	name, err := normalizeName(req.Name)
	if err != nil {
		return nil, err
	}

	port := req.Port
	if port == 0 {
		port, err = s.nextAvailablePort(ctx)
		if err != nil {
			return nil, err
		}
	} else if port < 1024 || port > 65535 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidPort, port)
	}

	transport := req.Transport
	if transport == "" {
		transport = status.TransportSSE
	}
	image := req.DockerImage
	if image == "" {
		image = "mcp-server:latest"
	}
	memLimit := req.MemoryLimit
	if memLimit == "" {
		memLimit = "512m"
	}
	cpuLimit := req.CPULimit
	switch {
	case cpuLimit == 0:
		cpuLimit = 1.0
	case cpuLimit < 0 || cpuLimit > 4:
		return nil, fmt.Errorf("%w: got %g", ErrInvalidCPULimit, cpuLimit)
	}

	now := time.Now().UTC()
	server := &Server{
		ID: uuid.NewString(),
		Config: ServerConfig{
			Name:             name,
			Description:      req.Description,
			Transport:        transport,
			Port:             port,
			Environment:      req.Environment,
			DockerImage:      image,
			MemoryLimit:      memLimit,
			CPULimit:         cpuLimit,
			RestartPolicy:    "unless-stopped",
			Volumes:          nil,
			Labels:           map[string]string{},
			MiddlewareConfig: req.MiddlewareConfig,
		},
		Status: ServerStatus{
			Status: status.Stopped,
		},
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: userID,
	}
	server.Status.ServerID = server.ID

	if err := s.repo.Insert(ctx, server); err != nil {
		return nil, err
	}

	s.log.Info().Str("server", name).Str("id", server.ID).Msg("registered mcp server")
	return s.Get(ctx, server.ID)
}

// Get returns a server by ID, consulting the cache first.
func (s *Service) Get(ctx context.Context, id string) (*Server, error) {
	if cached, ok := s.cache.Get(ctx, id); ok {
		return cached, nil
	}
	server, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, server)
	return server, nil
}

// GetByName returns a server by its unique, case-folded name.
func (s *Service) GetByName(ctx context.Context, name string) (*Server, error) {
	return s.repo.GetByName(ctx, strings.ToLower(name))
}

// List returns a page of servers matching filter.
func (s *Service) List(ctx context.Context, filter ListFilter) (*Page, error) {
	return s.repo.List(ctx, filter)
}

// UpdateConfig applies a partial update to a server's configuration and
// returns the refreshed record.
func (s *Service) UpdateConfig(ctx context.Context, id string, req UpdateRequest) (*Server, error) {
	server, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	cfg := server.Config
	if req.Description != nil {
		cfg.Description = *req.Description
	}
	if req.Environment != nil {
		cfg.Environment = req.Environment
	}
	if req.MemoryLimit != nil {
		cfg.MemoryLimit = *req.MemoryLimit
	}
	if req.CPULimit != nil {
		cfg.CPULimit = *req.CPULimit
	}
	if req.MiddlewareConfig != nil {
		cfg.MiddlewareConfig = req.MiddlewareConfig
	}
	if req.RestartPolicy != nil {
		cfg.RestartPolicy = *req.RestartPolicy
	}

	if err := s.repo.UpdateConfig(ctx, id, cfg); err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, id)
	return s.Get(ctx, id)
}

// UpdateStatus writes a new runtime status for a server.
func (s *Service) UpdateStatus(ctx context.Context, id string, st ServerStatus) (*Server, error) {
	if err := s.repo.UpdateStatus(ctx, id, st); err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, id)
	return s.Get(ctx, id)
}

// Delete removes a server from the registry.
func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	s.cache.Invalidate(ctx, id)
	return deleted, nil
}

// ServersByStatus returns all servers currently in the given status.
func (s *Service) ServersByStatus(ctx context.Context, st status.State) ([]*Server, error) {
	return s.repo.ServersByStatus(ctx, string(st))
}

// nextAvailablePort performs a linear scan from startPort, matching the
// original registry's port allocator exactly.
func (s *Service) nextAvailablePort(ctx context.Context) (int, error) {
	used, err := s.repo.UsedPorts(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing used ports: %w", err)
	}
	taken := make(map[int]bool, len(used))
	for _, p := range used {
		taken[p] = true
	}
	port := s.startPort
	for taken[port] {
		port++
	}
	return port, nil
}

func normalizeName(name string) (string, error) {
	if name == "" || !nameRE.MatchString(name) {
		return "", fmt.Errorf("%w: server name must be alphanumeric with - or _", ErrInvalidName)
	}
	return strings.ToLower(name), nil
}
