package server

import (
	"errors"
	"net/netip"
	"sort"
	"sync/atomic"

	"github.com/samber/lo"
)

// MaxClients is the default number of concurrent sessions
const MaxClients = 10

var (
	ErrServerFull          = errors.New("server full")
	ErrUsernameUnavailable = errors.New("username unavailable")
	ErrSessionNotFound     = errors.New("session not found")
)

// Registry maps transport endpoints to the usernames joined from them.
//
// A Registry is owned by the server's receive loop and is not safe for
// concurrent use: every mutation happens inside one request cycle.
type Registry struct {
	capacity int
	sessions map[netip.AddrPort]string
	metrics  *Metrics
	live     atomic.Int64 // mirrors len(sessions) for readers outside the loop
}

// NewRegistry creates an empty registry holding at most capacity sessions
func NewRegistry(capacity int) *Registry {
	if capacity <= 0 {
		capacity = MaxClients
	}
	return &Registry{
		capacity: capacity,
		sessions: make(map[netip.AddrPort]string),
	}
}

// SetMetrics attaches metrics to the registry
func (r *Registry) SetMetrics(metrics *Metrics) {
	r.metrics = metrics
}

// Join binds name to ep. Capacity is checked before name uniqueness, and neither
// check exempts an endpoint that already joined. Below capacity, a join under a
// new name from a registered endpoint replaces its old name.
func (r *Registry) Join(ep netip.AddrPort, name string) error {
	if len(r.sessions) >= r.capacity {
		return ErrServerFull
	}
	if _, taken := r.EndpointOf(name); taken {
		return ErrUsernameUnavailable
	}

	r.sessions[ep] = name
	r.recordSessions()
	return nil
}

// Leave removes the session for ep and returns the name it was bound to
func (r *Registry) Leave(ep netip.AddrPort) (string, error) {
	name, ok := r.sessions[ep]
	if !ok {
		return "", ErrSessionNotFound
	}
	delete(r.sessions, ep)
	r.recordSessions()
	return name, nil
}

// Names returns all active usernames in ascending order
func (r *Registry) Names() []string {
	names := lo.Values(r.sessions)
	sort.Strings(names)
	return names
}

// NameOf returns the username joined from ep
func (r *Registry) NameOf(ep netip.AddrPort) (string, bool) {
	name, ok := r.sessions[ep]
	return name, ok
}

// EndpointOf returns the endpoint a username joined from
func (r *Registry) EndpointOf(name string) (netip.AddrPort, bool) {
	return lo.FindKey(r.sessions, name)
}

// Len returns the number of live sessions
func (r *Registry) Len() int {
	return len(r.sessions)
}

// Live returns the session count and, unlike Len, may be called from any goroutine
func (r *Registry) Live() int {
	return int(r.live.Load())
}

// Capacity returns the maximum number of live sessions
func (r *Registry) Capacity() int {
	return r.capacity
}

func (r *Registry) recordSessions() {
	r.live.Store(int64(len(r.sessions)))
	if r.metrics != nil {
		r.metrics.RecordActiveSessions(len(r.sessions))
	}
}
