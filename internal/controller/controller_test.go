package controller

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langconnect/mcp-control-plane/internal/registry"
)

func newTestController(t *testing.T) (*Controller, *registry.Service) {
	t.Helper()
	reg := registry.NewService(registry.NewFakeRepository(), nil, 9000)
	return New(reg, nil, nil), reg
}

func TestGet_ForbidsNonOwner(t *testing.T) {
	ctrl, reg := newTestController(t)
	server, err := reg.Register(t.Context(), registry.CreateRequest{Name: "weather"}, "owner-1")
	require.NoError(t, err)

	_, err = ctrl.Get(t.Context(), server.ID, "someone-else")

	cerr, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, KindForbidden, cerr.Kind)
}

func TestGet_NotFoundForUnknownID(t *testing.T) {
	ctrl, _ := newTestController(t)

	_, err := ctrl.Get(t.Context(), "does-not-exist", "owner-1")

	cerr, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, KindNotFound, cerr.Kind)
}

func TestList_ScopesToOwner(t *testing.T) {
	ctrl, reg := newTestController(t)
	_, err := reg.Register(t.Context(), registry.CreateRequest{Name: "mine"}, "owner-1")
	require.NoError(t, err)
	_, err = reg.Register(t.Context(), registry.CreateRequest{Name: "theirs"}, "owner-2")
	require.NoError(t, err)

	page, err := ctrl.List(t.Context(), "owner-1", registry.ListFilter{Page: 1, PageSize: 20})

	require.NoError(t, err)
	require.Len(t, page.Servers, 1)
	assert.Equal(t, "mine", page.Servers[0].Config.Name)
}

func TestDelete_WithoutContainerSkipsSupervisor(t *testing.T) {
	ctrl, reg := newTestController(t)
	server, err := reg.Register(t.Context(), registry.CreateRequest{Name: "ephemeral"}, "owner-1")
	require.NoError(t, err)

	result, err := ctrl.Delete(t.Context(), server.ID, "owner-1")

	require.NoError(t, err)
	assert.True(t, result.Success)

	_, err = reg.Get(t.Context(), server.ID)
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestCreate_RejectsDuplicateNameBeforeTouchingSupervisor(t *testing.T) {
	ctrl, reg := newTestController(t)
	_, err := reg.Register(t.Context(), registry.CreateRequest{Name: "weather"}, "owner-1")
	require.NoError(t, err)

	_, err = ctrl.Create(t.Context(), registry.CreateRequest{Name: "weather"}, "owner-1")

	cerr, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, KindNameConflict, cerr.Kind)
}

func TestStart_RejectsInvalidStateTransition(t *testing.T) {
	ctrl, reg := newTestController(t)
	server, err := reg.Register(t.Context(), registry.CreateRequest{Name: "weather"}, "owner-1")
	require.NoError(t, err)
	_, err = reg.UpdateStatus(t.Context(), server.ID, registry.ServerStatus{Status: "starting"})
	require.NoError(t, err)

	_, err = ctrl.Start(t.Context(), server.ID, "owner-1")

	cerr, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, KindValidation, cerr.Kind)
}
