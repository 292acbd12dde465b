package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRelayEndpoint(t *testing.T) {
	e, err := newRelayEndpoint("dev", "relay.local.", 8443, []string{"tls=1", "path=/rpc"}, []string{"10.0.0.2"})
	require.NoError(t, err)
	assert.Equal(t, "wss://10.0.0.2:8443/rpc", e.URL())

	_, err = newRelayEndpoint("dev", "relay.local.", 0, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidPort)
	_, err = newRelayEndpoint("dev", "relay.local.", 70000, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidPort)
}

func TestAddressMerging(t *testing.T) {
	addrs := mergeAddresses([]string{"10.0.0.1"}, []string{"10.0.0.1", "fe80::1"})
	assert.Equal(t, []string{"10.0.0.1", "fe80::1"}, addrs)

	assert.Equal(t, []string{"fe80::1"}, removeAddresses(addrs, []string{"10.0.0.1"}))
	assert.Empty(t, removeAddresses(addrs, addrs))
}
