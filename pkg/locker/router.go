package locker

import (
	"context"
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-rendezvous"
)

// Router maps a lock key and optional routing key to the backend shard that
// owns it. Each shard enforces one holder per key on its own, so routing
// affects load distribution, not correctness.
type Router interface {
	Route(key, routingKey string) Backend
}

// SingleRouter routes everything to one backend.
type SingleRouter struct {
	backend Backend
}

// NewSingleRouter returns a Router that always selects backend.
func NewSingleRouter(backend Backend) *SingleRouter {
	return &SingleRouter{backend: backend}
}

// Route implements Router.
func (r *SingleRouter) Route(_, _ string) Backend {
	return r.backend
}

// ShardedRouter sends locks without a routing key to the default backend and
// spreads the others across named shards with rendezvous hashing on the
// routing key. Adding or removing a shard only moves the routing keys that
// hashed to it.
type ShardedRouter struct {
	defaultName string
	shards      map[string]Backend
	hash        *rendezvous.Rendezvous
}

// NewShardedRouter creates a ShardedRouter. defaultName must be one of the
// shard names; when it is not, the first shard in name order is used.
func NewShardedRouter(defaultName string, shards map[string]Backend) *ShardedRouter {
	names := make([]string, 0, len(shards))
	for name := range shards {
		names = append(names, name)
	}
	sort.Strings(names)

	if _, ok := shards[defaultName]; !ok && len(names) > 0 {
		defaultName = names[0]
	}

	return &ShardedRouter{
		defaultName: defaultName,
		shards:      shards,
		hash:        rendezvous.New(names, xxhash.Sum64String),
	}
}

// Route implements Router.
func (r *ShardedRouter) Route(_ string, routingKey string) Backend {
	return r.shards[r.ShardFor(routingKey)]
}

// ShardFor returns the name of the shard a routing key maps to.
func (r *ShardedRouter) ShardFor(routingKey string) string {
	if routingKey == "" {
		return r.defaultName
	}
	if name := r.hash.Lookup(routingKey); name != "" {
		return name
	}
	return r.defaultName
}

// DefaultShard returns the name of the default shard.
func (r *ShardedRouter) DefaultShard() string {
	return r.defaultName
}

// Shards returns the shards by name. The map must not be modified.
func (r *ShardedRouter) Shards() map[string]Backend {
	return r.shards
}

// Routed returns a Backend that resolves the shard through router on every
// call.
func Routed(router Router) Backend {
	return routedBackend{router: router}
}

type routedBackend struct {
	router Router
}

func (b routedBackend) Acquire(ctx context.Context, key string, duration time.Duration, routingKey string) error {
	return b.router.Route(key, routingKey).Acquire(ctx, key, duration, routingKey)
}

func (b routedBackend) Release(ctx context.Context, key, routingKey string) error {
	return b.router.Route(key, routingKey).Release(ctx, key, routingKey)
}

func (b routedBackend) Locked(ctx context.Context, key, routingKey string) (bool, error) {
	return b.router.Route(key, routingKey).Locked(ctx, key, routingKey)
}
