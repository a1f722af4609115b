package supervisor

import (
	"context"
	"io"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/google/uuid"
)

// fakeDockerAPI is a minimal in-memory stand-in for the Docker Engine
// client, exercised instead of a live daemon in unit tests.
type fakeDockerAPI struct {
	containers map[string]*container.InspectResponse
	networks   map[string]bool
	statsBody  string
	nextID     func() string
}

func newFakeDockerAPI() *fakeDockerAPI {
	return &fakeDockerAPI{
		containers: make(map[string]*container.InspectResponse),
		networks:   make(map[string]bool),
		nextID:     uuid.NewString,
	}
}

func (f *fakeDockerAPI) ContainerCreate(
	_ context.Context,
	cfg *container.Config,
	_ *container.HostConfig,
	_ *network.NetworkingConfig,
	name string,
) (container.CreateResponse, error) {
	id := f.nextID()
	f.containers[id] = &container.InspectResponse{
		ContainerJSONBase: &container.ContainerJSONBase{
			ID:   id,
			Name: name,
			State: &container.State{Status: "created"},
		},
		Config: cfg,
	}
	f.containers[name] = f.containers[id]
	return container.CreateResponse{ID: id}, nil
}

func (f *fakeDockerAPI) ContainerStart(_ context.Context, id string, _ container.StartOptions) error {
	c, ok := f.containers[id]
	if !ok {
		return errNotFoundFake{}
	}
	c.State = &container.State{Status: "running", Running: true}
	return nil
}

func (f *fakeDockerAPI) ContainerStop(_ context.Context, id string, _ container.StopOptions) error {
	c, ok := f.containers[id]
	if !ok {
		return errNotFoundFake{}
	}
	c.State = &container.State{Status: "exited", Running: false}
	return nil
}

func (f *fakeDockerAPI) ContainerRestart(_ context.Context, id string, _ container.StopOptions) error {
	c, ok := f.containers[id]
	if !ok {
		return errNotFoundFake{}
	}
	c.State = &container.State{Status: "running", Running: true}
	return nil
}

func (f *fakeDockerAPI) ContainerRemove(_ context.Context, id string, _ container.RemoveOptions) error {
	if _, ok := f.containers[id]; !ok {
		return errNotFoundFake{}
	}
	delete(f.containers, id)
	return nil
}

func (f *fakeDockerAPI) ContainerInspect(_ context.Context, id string) (container.InspectResponse, error) {
	c, ok := f.containers[id]
	if !ok {
		return container.InspectResponse{}, errNotFoundFake{}
	}
	return *c, nil
}

func (f *fakeDockerAPI) ContainerStats(_ context.Context, _ string, _ bool) (container.StatsResponseReader, error) {
	return container.StatsResponseReader{Body: io.NopCloser(strings.NewReader(f.statsBody))}, nil
}

func (f *fakeDockerAPI) ContainerLogs(_ context.Context, _ string, _ container.LogsOptions) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("hello\nworld\n")), nil
}

func (f *fakeDockerAPI) ContainerList(_ context.Context, _ container.ListOptions) ([]container.Summary, error) {
	var out []container.Summary
	for id, c := range f.containers {
		if id != c.ID {
			continue // skip the name-keyed alias
		}
		out = append(out, container.Summary{ID: c.ID, Names: []string{c.Name}})
	}
	return out, nil
}

func (f *fakeDockerAPI) ImageInspect(_ context.Context, _ string) (image.InspectResponse, error) {
	return image.InspectResponse{}, nil
}

func (f *fakeDockerAPI) NetworkInspect(_ context.Context, name string, _ network.InspectOptions) (network.Inspect, error) {
	if !f.networks[name] {
		return network.Inspect{}, errNotFoundFake{}
	}
	return network.Inspect{Name: name}, nil
}

func (f *fakeDockerAPI) NetworkCreate(_ context.Context, name string, _ network.CreateOptions) (network.CreateResponse, error) {
	f.networks[name] = true
	return network.CreateResponse{ID: name}, nil
}

func (f *fakeDockerAPI) Close() error { return nil }

type errNotFoundFake struct{}

func (errNotFoundFake) Error() string   { return "not found" }
func (errNotFoundFake) NotFound() bool  { return true }
