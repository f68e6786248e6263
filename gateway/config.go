package gateway

import "github.com/go-redis/redis/v8"

// Config gathers every knob the Bot Coordinator needs, grounded on the
// teacher's managerConfiguration (main.go/manager.go) but trimmed to
// what a gateway core — rather than a full caching bot framework — is
// responsible for.
type Config struct {
	Token string

	// ShardCount is the total number of shards across all clusters.
	// Zero means "ask Discord" (spec.md §6 autosharding).
	ShardCount int

	// ShardIDs restricts which of ShardCount shards this process should
	// run. Empty means "every shard this cluster owns" (ClusterID/
	// ClusterCount partitioning still applies).
	ShardIDs []int

	ClusterID    int
	ClusterCount int

	// StopOnFatal mirrors spec.md §7: when true, a fatal close code
	// tears the shard down instead of reconnecting.
	StopOnFatal bool

	// HandleReShard mirrors spec.md §7: when true, a ReShardStopCode
	// close triggers the Coordinator's autonomous re-shard path.
	HandleReShard bool

	// BufferSize caps the size of a single websocket frame as read from
	// the transport, before any zlib decompression. Zero uses
	// defaultBufferSize.
	BufferSize int

	// MaxConcurrentIdentifies overrides Discord's advertised
	// max_concurrency, for operators who want to identify more
	// conservatively than the bucket allows.
	MaxConcurrentIdentifies int

	Forwarding ForwardingSinkConfig

	// RedisOptions, if non-nil, enables the cross-cluster identify
	// lock (SPEC_FULL.md §6 note).
	RedisOptions *redis.Options
}

// DefaultConfig returns sane single-cluster, single-process defaults.
func DefaultConfig(token string) Config {
	return Config{
		Token:         token,
		ClusterCount:  1,
		StopOnFatal:   false,
		HandleReShard: true,
		BufferSize:    defaultBufferSize,
	}
}
