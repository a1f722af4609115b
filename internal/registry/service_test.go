package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langconnect/mcp-control-plane/internal/status"
)

func newTestService() *Service {
	return NewService(NewFakeRepository(), nil, 8765)
}

func TestRegister_AssignsPortAndNormalizesName(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	server, err := svc.Register(ctx, CreateRequest{Name: "My-Server"}, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "my-server", server.Config.Name)
	assert.Equal(t, 8765, server.Config.Port)
	assert.Equal(t, status.Stopped, server.Status.Status)
	assert.Equal(t, "user-1", server.CreatedBy)
}

func TestRegister_PortAllocationSkipsUsedPorts(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	first, err := svc.Register(ctx, CreateRequest{Name: "first"}, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 8765, first.Config.Port)

	second, err := svc.Register(ctx, CreateRequest{Name: "second"}, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 8766, second.Config.Port)

	// An explicit port request is honoured even if it creates a gap.
	third, err := svc.Register(ctx, CreateRequest{Name: "third", Port: 9000}, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 9000, third.Config.Port)

	fourth, err := svc.Register(ctx, CreateRequest{Name: "fourth"}, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 8767, fourth.Config.Port)
}

func TestRegister_DuplicateNameConflicts(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	_, err := svc.Register(ctx, CreateRequest{Name: "dup"}, "user-1")
	require.NoError(t, err)

	_, err = svc.Register(ctx, CreateRequest{Name: "DUP"}, "user-2")
	assert.ErrorIs(t, err, ErrNameConflict)
}

func TestRegister_RejectsInvalidName(t *testing.T) {
	svc := newTestService()
	_, err := svc.Register(context.Background(), CreateRequest{Name: "bad name!"}, "user-1")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestGet_NotFound(t *testing.T) {
	svc := newTestService()
	_, err := svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestList_PaginatesAndFiltersByStatus(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		name := []string{"alpha", "beta", "gamma"}[i]
		server, err := svc.Register(ctx, CreateRequest{Name: name}, "user-1")
		require.NoError(t, err)
		if name == "beta" {
			_, err := svc.UpdateStatus(ctx, server.ID, ServerStatus{
				ServerID: server.ID,
				Status:   status.Running,
			})
			require.NoError(t, err)
		}
	}

	page, err := svc.List(ctx, ListFilter{Status: status.Running, Page: 1, PageSize: 20})
	require.NoError(t, err)
	require.Len(t, page.Servers, 1)
	assert.Equal(t, "beta", page.Servers[0].Config.Name)

	page, err = svc.List(ctx, ListFilter{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Servers, 2)
}

func TestUpdateConfig_PartialUpdateKeepsOtherFields(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	server, err := svc.Register(ctx, CreateRequest{Name: "configurable", CPULimit: 2}, "user-1")
	require.NoError(t, err)

	newDesc := "updated description"
	updated, err := svc.UpdateConfig(ctx, server.ID, UpdateRequest{Description: &newDesc})
	require.NoError(t, err)
	assert.Equal(t, "updated description", updated.Config.Description)
	assert.Equal(t, 2.0, updated.Config.CPULimit)
}

func TestDelete_RemovesServer(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	server, err := svc.Register(ctx, CreateRequest{Name: "removable"}, "user-1")
	require.NoError(t, err)

	deleted, err := svc.Delete(ctx, server.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = svc.Get(ctx, server.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
