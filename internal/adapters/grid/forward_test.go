package grid

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/eleven-am/gridboot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hostOf(server *httptest.Server) string {
	return strings.TrimPrefix(server.URL, "http://")
}

func TestForwarder_FollowsLeaderHint(t *testing.T) {
	leader := newFakeBackend(true)
	leaderServer := httptest.NewServer(newTestConnector(leader, nil))
	defer leaderServer.Close()

	follower := newFakeBackend(false)
	follower.leaderAddr = hostOf(leaderServer)
	followerServer := httptest.NewServer(newTestConnector(follower, nil))
	defer followerServer.Close()

	f := newForwarder(5*time.Second, slog.Default())
	var result domain.CommandResult
	err := f.post(context.Background(), hostOf(followerServer), pathCommands,
		domain.NewCreateDatasetCommand(domain.DatasetDefinition{Name: "configuration"}), &result)

	require.NoError(t, err)
	assert.True(t, result.Created)
	assert.True(t, leader.datasets["configuration"])
}

func TestForwarder_NoLeaderAnywhere(t *testing.T) {
	follower := newFakeBackend(false)
	server := httptest.NewServer(newTestConnector(follower, nil))
	defer server.Close()

	f := newForwarder(5*time.Second, slog.Default())
	err := f.post(context.Background(), hostOf(server), pathCommands, domain.NewActivateCommand(true), nil)

	assert.ErrorIs(t, err, domain.ErrNoLeader)
	assert.True(t, isTransient(err))
}

func TestForwarder_UnknownNodeIsTransient(t *testing.T) {
	leader := newFakeBackend(true)
	leader.baselineFn = func(baselineRequest) (domain.BaselineTopology, error) {
		return domain.BaselineTopology{}, domain.NewValidationError("baseline node is not visible", domain.ErrUnknownNode)
	}
	server := httptest.NewServer(newTestConnector(leader, nil))
	defer server.Close()

	f := newForwarder(5*time.Second, slog.Default())
	err := f.post(context.Background(), hostOf(server), pathBaseline, baselineRequest{Nodes: domain.NewNodeSet("Z")}, nil)

	assert.ErrorIs(t, err, domain.ErrUnknownNode)
	assert.True(t, isTransient(err))
}

func TestForwarder_UnreachablePeer(t *testing.T) {
	server := httptest.NewServer(newTestConnector(newFakeBackend(true), nil))
	addr := hostOf(server)
	server.Close()

	f := newForwarder(time.Second, slog.Default())
	err := f.post(context.Background(), addr, pathCommands, domain.NewActivateCommand(true), nil)

	require.Error(t, err)
	assert.Equal(t, domain.CategoryNetwork, domain.GetErrorCategory(err))
}
