package supervisor

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/containerd/errdefs"
	"github.com/distribution/reference"
	dockerclient "github.com/docker/docker/client"
	"github.com/rs/zerolog"

	"github.com/langconnect/mcp-control-plane/internal/obslog"
)

// Supervisor manages the Docker containers backing registered MCP servers.
type Supervisor struct {
	api         dockerAPI
	networkName string
	log         zerolog.Logger
}

// Option configures Dial.
type Option func(*dialOptions)

type dialOptions struct {
	host       string
	apiVersion string
}

// WithHost overrides the Docker daemon socket/URL (defaults to the
// environment, matching docker.from_env() in the original implementation).
func WithHost(host string) Option {
	return func(o *dialOptions) { o.host = host }
}

// WithAPIVersion pins the negotiated Engine API version.
func WithAPIVersion(version string) Option {
	return func(o *dialOptions) { o.apiVersion = version }
}

// Dial connects to the Docker daemon and ensures the supervisor's bridge
// network exists, matching DockerManager.__init__'s _ensure_network call.
func Dial(ctx context.Context, networkName string, opts ...Option) (*Supervisor, error) {
	options := dialOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	clientOpts := []dockerclient.Opt{dockerclient.FromEnv}
	if options.host != "" {
		clientOpts = append(clientOpts, dockerclient.WithHost(options.host))
	}
	if options.apiVersion != "" {
		clientOpts = append(clientOpts, dockerclient.WithVersion(options.apiVersion))
	} else {
		clientOpts = append(clientOpts, dockerclient.WithAPIVersionNegotiation())
	}

	cli, err := dockerclient.NewClientWithOpts(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to docker: %w", err)
	}

	s := newSupervisor(cli, networkName)
	if err := s.ensureNetwork(ctx); err != nil {
		_ = cli.Close()
		return nil, err
	}
	return s, nil
}

// newSupervisor builds a Supervisor around an already-constructed dockerAPI,
// the seam tests use to inject a fake.
func newSupervisor(api dockerAPI, networkName string) *Supervisor {
	return &Supervisor{api: api, networkName: networkName, log: obslog.Component("supervisor")}
}

// Close releases the underlying Docker client connection.
func (s *Supervisor) Close() error {
	return s.api.Close()
}

// validateImage normalises and syntactically validates a Docker image
// reference before it is handed to the Engine API, per the supplemental
// image-reference validation this system adds over the original.
func validateImage(image string) (string, error) {
	ref, err := reference.ParseNormalizedNamed(image)
	if err != nil {
		return "", fmt.Errorf("invalid docker image reference %q: %w", image, err)
	}
	return reference.TagNameOnly(ref).String(), nil
}

func isNotFound(err error) bool {
	return errdefs.IsNotFound(err)
}

func portBinding(port int) string {
	return strconv.Itoa(port) + "/tcp"
}

func containerName(name string) string {
	if strings.HasPrefix(name, "mcp-") {
		return name
	}
	return "mcp-" + name
}
