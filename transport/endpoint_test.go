package transport_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lukasojd/puregit/transport"
)

func TestNewEndpointParsesScpLike(t *testing.T) {
	ep, err := transport.NewEndpoint("git@github.com:user/repo.git")
	require.NoError(t, err)
	require.Equal(t, "ssh", ep.Protocol)
	require.Equal(t, "git", ep.User)
	require.Equal(t, "github.com", ep.Host)
	require.Equal(t, 22, ep.Port)
	require.Equal(t, "/user/repo.git", ep.Path)
}

func TestNewEndpointParsesBareLocalPath(t *testing.T) {
	ep, err := transport.NewEndpoint("/srv/repos/project.git")
	require.NoError(t, err)
	require.Equal(t, "file", ep.Protocol)
	require.Equal(t, "/srv/repos/project.git", ep.Path)
}

func TestNewEndpointParsesHTTPURL(t *testing.T) {
	ep, err := transport.NewEndpoint("https://example.com:8443/org/repo.git")
	require.NoError(t, err)
	require.Equal(t, "https", ep.Protocol)
	require.Equal(t, "example.com", ep.Host)
	require.Equal(t, 8443, ep.Port)
	require.Equal(t, "/org/repo.git", ep.Path)
}

func TestNewEndpointParsesSSHURL(t *testing.T) {
	ep, err := transport.NewEndpoint("ssh://git@example.com/org/repo.git")
	require.NoError(t, err)
	require.Equal(t, "ssh", ep.Protocol)
	require.Equal(t, "git", ep.User)
	require.Equal(t, "example.com", ep.Host)
	require.Equal(t, 0, ep.Port)
	require.Equal(t, "/org/repo.git", ep.Path)
}

func TestHostWithPortFallsBackToDefault(t *testing.T) {
	ep := &transport.Endpoint{Protocol: "https", Host: "example.com"}
	require.Equal(t, "example.com:443", ep.HostWithPort())
}
