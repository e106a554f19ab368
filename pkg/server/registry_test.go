package server

import (
	"fmt"
	"net/netip"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func endpoint(port uint16) netip.AddrPort {
	return netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), port)
}

func TestRegistryJoinAndLookup(t *testing.T) {
	r := NewRegistry(MaxClients)

	require.NoError(t, r.Join(endpoint(1001), "alice"))
	require.NoError(t, r.Join(endpoint(1002), "bob"))

	name, ok := r.NameOf(endpoint(1001))
	assert.True(t, ok)
	assert.Equal(t, "alice", name)

	ep, ok := r.EndpointOf("bob")
	assert.True(t, ok)
	assert.Equal(t, endpoint(1002), ep)

	_, ok = r.EndpointOf("carol")
	assert.False(t, ok)
	_, ok = r.NameOf(endpoint(9999))
	assert.False(t, ok)

	assert.Equal(t, 2, r.Len())
	assert.Equal(t, 2, r.Live())
}

func TestRegistryUniqueNames(t *testing.T) {
	r := NewRegistry(MaxClients)

	require.NoError(t, r.Join(endpoint(1001), "alice"))
	err := r.Join(endpoint(1002), "alice")
	assert.ErrorIs(t, err, ErrUsernameUnavailable)
	assert.Equal(t, 1, r.Len())

	// the first session is untouched
	ep, _ := r.EndpointOf("alice")
	assert.Equal(t, endpoint(1001), ep)
}

func TestRegistryCapacity(t *testing.T) {
	r := NewRegistry(MaxClients)

	for i := 0; i < MaxClients; i++ {
		require.NoError(t, r.Join(endpoint(uint16(2000+i)), fmt.Sprintf("user%02d", i)))
	}

	err := r.Join(endpoint(3000), "late")
	assert.ErrorIs(t, err, ErrServerFull)

	// capacity is checked before uniqueness
	err = r.Join(endpoint(3001), "user00")
	assert.ErrorIs(t, err, ErrServerFull)

	assert.Equal(t, MaxClients, r.Len())
	_, ok := r.EndpointOf("late")
	assert.False(t, ok)

	_, err = r.Leave(endpoint(2000))
	require.NoError(t, err)
	assert.NoError(t, r.Join(endpoint(3000), "late"))
}

func TestRegistryDefaultCapacity(t *testing.T) {
	assert.Equal(t, MaxClients, NewRegistry(0).Capacity())
	assert.Equal(t, MaxClients, NewRegistry(-3).Capacity())
	assert.Equal(t, 2, NewRegistry(2).Capacity())
}

func TestRegistryLeave(t *testing.T) {
	r := NewRegistry(MaxClients)
	require.NoError(t, r.Join(endpoint(1001), "alice"))

	name, err := r.Leave(endpoint(1001))
	require.NoError(t, err)
	assert.Equal(t, "alice", name)
	assert.Zero(t, r.Len())
	assert.Zero(t, r.Live())

	_, err = r.Leave(endpoint(1001))
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// the name is free again
	assert.NoError(t, r.Join(endpoint(1005), "alice"))
}

func TestRegistryRejoinFromSameEndpoint(t *testing.T) {
	r := NewRegistry(MaxClients)
	require.NoError(t, r.Join(endpoint(1001), "alice"))

	// own current name is still taken
	assert.ErrorIs(t, r.Join(endpoint(1001), "alice"), ErrUsernameUnavailable)
	assert.Equal(t, []string{"alice"}, r.Names())

	require.NoError(t, r.Join(endpoint(1001), "alicia"))
	assert.Equal(t, []string{"alicia"}, r.Names())
	_, ok := r.EndpointOf("alice")
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())
}

func TestRegistryRejoinWhenFull(t *testing.T) {
	r := NewRegistry(MaxClients)
	for i := 0; i < MaxClients; i++ {
		require.NoError(t, r.Join(endpoint(uint16(2000+i)), fmt.Sprintf("u%d", i)))
	}

	// a registered endpoint gets no capacity exemption
	assert.ErrorIs(t, r.Join(endpoint(2000), "zed"), ErrServerFull)
	assert.ErrorIs(t, r.Join(endpoint(2000), "u0"), ErrServerFull)

	name, ok := r.NameOf(endpoint(2000))
	require.True(t, ok)
	assert.Equal(t, "u0", name)
	_, ok = r.EndpointOf("zed")
	assert.False(t, ok)
	assert.Equal(t, MaxClients, r.Len())
}

func TestRegistryNamesSorted(t *testing.T) {
	r := NewRegistry(MaxClients)
	for i, name := range []string{"zed", "alice", "Bob", "carol"} {
		require.NoError(t, r.Join(endpoint(uint16(1000+i)), name))
	}

	assert.Equal(t, []string{"Bob", "alice", "carol", "zed"}, r.Names())
	assert.Empty(t, NewRegistry(MaxClients).Names())
}

func TestRegistryInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r := NewRegistry(MaxClients)
		names := rapid.SampledFrom([]string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l"})

		ops := rapid.IntRange(1, 60).Draw(t, "ops")
		for i := 0; i < ops; i++ {
			ep := endpoint(uint16(rapid.IntRange(1, 15).Draw(t, "port")))
			if rapid.Bool().Draw(t, "join") {
				_ = r.Join(ep, names.Draw(t, "name"))
			} else {
				_, _ = r.Leave(ep)
			}

			listed := r.Names()
			if len(listed) > MaxClients {
				t.Fatalf("%d sessions exceed capacity", len(listed))
			}
			if !sort.StringsAreSorted(listed) {
				t.Fatalf("names not sorted: %v", listed)
			}
			for j := 1; j < len(listed); j++ {
				if listed[j] == listed[j-1] {
					t.Fatalf("duplicate name %q", listed[j])
				}
			}
			if r.Live() != len(listed) {
				t.Fatalf("live = %d, listed %d", r.Live(), len(listed))
			}
		}
	})
}
