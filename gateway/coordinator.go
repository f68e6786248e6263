package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/TheRockettek/sandwich-gateway/client"
)

// NotEnoughSessionsError mirrors the teacher's safety check: refuse to
// start (or re-shard) if the session_start_limit bucket can't cover
// every shard this process is about to identify (gateway/manager.go
// Open), carrying the context spec.md §7's "Re-shard capacity
// exhaustion" edge case requires: {token, shardsRequested, remainingStarts}.
type NotEnoughSessionsError struct {
	Token           string
	ShardsRequested int
	RemainingStarts int
}

func (e *NotEnoughSessionsError) Error() string {
	return fmt.Sprintf("not enough sessions remaining to start shards: requested %d, %d remaining",
		e.ShardsRequested, e.RemainingStarts)
}

// Coordinator is the Bot Coordinator of spec.md §4.4: it owns every
// Shard Runtime this process runs, staggers their initial Connect
// commands, fans their per-iteration results into a single dispatch
// stream, and reacts to the bot-level effects (dispatched events,
// re-shard requests) individual shards cannot handle themselves.
//
// Grounded on the teacher's Manager/ShardGroup split (gateway/manager.go,
// gateway/shard_group.go): Manager.Open's gateway/bot lookup and
// capacity check, ShardGroup.Start's per-shard spawn loop, Manager.
// WaitForIdentifyRatelimit's concurrency gating.
type Coordinator struct {
	cfg Config
	rc  *client.Client
	log zerolog.Logger

	limiter *ConcurrencyLimiter

	mu       sync.Mutex
	runtimes map[int]*ShardRuntime
	states   map[int]ShardState
	ready    map[int]bool
	wg       sync.WaitGroup

	results  chan shardResult
	outputCh chan OutputEvent
	subs     []chan OutputEvent
	readyCh  chan struct{}
	readyFn  sync.Once
	errCh    chan error
	closeFn  sync.Once

	gatewayURL string
	shardCount int
}

// NewCoordinator builds a Coordinator against cfg. rc may be shared
// across clusters/managers.
func NewCoordinator(cfg Config, rc *client.Client, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		cfg:      cfg,
		rc:       rc,
		log:      log,
		runtimes: make(map[int]*ShardRuntime),
		states:   make(map[int]ShardState),
		ready:    make(map[int]bool),
		results:  make(chan shardResult, 64),
		outputCh: make(chan OutputEvent, 1000),
		readyCh:  make(chan struct{}),
		errCh:    make(chan error, 1),
	}
}

// Output returns the channel every shard's dispatched events are
// forwarded to (spec.md §3 "simple output channel receiving tuples").
func (co *Coordinator) Output() <-chan OutputEvent { return co.outputCh }

// Ready closes once every shard this Coordinator opened has identified
// or resumed at least once (SPEC_FULL.md "ConnectedAllShards").
func (co *Coordinator) Ready() <-chan struct{} { return co.readyCh }

// Subscribe registers an additional, independent consumer of dispatched
// events. Unlike Output(), a subscriber does not compete with the user
// for events on the same channel — used so the optional forwarding sink
// tees off its own copy instead of draining Output() out from under the
// caller. The returned channel is closed when the Coordinator stops.
func (co *Coordinator) Subscribe() <-chan OutputEvent {
	ch := make(chan OutputEvent, 1000)

	co.mu.Lock()
	co.subs = append(co.subs, ch)
	co.mu.Unlock()

	return ch
}

// Errors surfaces the Coordinator's unrecoverable errors (spec.md §7
// "Propagation policy": re-shard capacity exhaustion is the only error
// the Coordinator itself raises rather than logging or turning into an
// output-channel event). Reading it is optional; it is buffered so a
// caller that never reads it cannot block shutdown.
func (co *Coordinator) Errors() <-chan error { return co.errCh }

// Open resolves the shard count and session_start_limit bucket, builds
// one ShardRuntime per owned shard ID, and issues their initial Connect
// commands staggered by identifyStagger (spec.md §8 invariant 7).
func (co *Coordinator) Open(ctx context.Context) error {
	res, err := co.rc.GetGatewayBot()
	if err != nil {
		return err
	}

	shardCount := co.cfg.ShardCount
	if shardCount <= 0 {
		shardCount = res.Shards
	}

	shardIDs := co.cfg.ShardIDs
	if len(shardIDs) == 0 {
		shardIDs = ShardIDsForCluster(shardCount, maxInt(co.cfg.ClusterCount, 1), co.cfg.ClusterID)
	}

	if res.SessionStartLimit.Remaining < len(shardIDs) {
		return &NotEnoughSessionsError{
			Token:           co.cfg.Token,
			ShardsRequested: len(shardIDs),
			RemainingStarts: res.SessionStartLimit.Remaining,
		}
	}

	concurrency := res.SessionStartLimit.MaxConcurrency
	if co.cfg.MaxConcurrentIdentifies > 0 {
		concurrency = co.cfg.MaxConcurrentIdentifies
	}

	co.limiter = NewConcurrencyLimiter(concurrency)
	co.gatewayURL = res.URL + gatewayURLParams
	co.shardCount = shardCount

	co.log.Info().Int("shards", len(shardIDs)).Int("shard_count", shardCount).
		Int("remaining_sessions", res.SessionStartLimit.Remaining).
		Int("max_concurrency", concurrency).Msg("opening shards")

	co.spawnShards(shardIDs, shardCount)

	go co.pump()
	go co.staggerConnects(shardIDs)

	return nil
}

func (co *Coordinator) spawnShards(shardIDs []int, shardCount int) {
	co.mu.Lock()
	defer co.mu.Unlock()

	for _, id := range shardIDs {
		rt := NewShardRuntime(id, shardCount, co.cfg.Token, co.gatewayURL, co.cfg.BufferSize,
			co.cfg.StopOnFatal, co.limiter, co.log)
		co.runtimes[id] = rt

		co.wg.Add(1)

		go func(id int) {
			defer co.wg.Done()
			rt.Run(id, co.results)
		}(id)
	}
}

// staggerConnects issues Connect commands k * identifyStagger apart,
// measured from a single monotonic start time rather than accumulated
// per-shard sleeps, so scheduling jitter cannot drift the spacing
// (spec.md §8 invariant 7 / scenario S7).
func (co *Coordinator) staggerConnects(shardIDs []int) {
	start := time.Now()

	for k, id := range shardIDs {
		target := start.Add(time.Duration(k) * identifyStagger)
		if d := time.Until(target); d > 0 {
			time.Sleep(d)
		}

		co.mu.Lock()
		rt, ok := co.runtimes[id]
		co.mu.Unlock()

		if !ok {
			continue
		}

		func() {
			defer func() { recover() }() //nolint: errcheck // shard may have already been stopped
			rt.CommunicationCh() <- ConnectCmd()
		}()
	}
}

// pump fans per-shard results into the Coordinator's dispatch stream,
// tracks readiness, and reacts to bot-level effects.
func (co *Coordinator) pump() {
	defer func() {
		close(co.outputCh)
		co.closeSubs()
	}()

	for res := range co.results {
		co.mu.Lock()
		co.states[res.idx] = res.state
		allReady := !res.state.Empty && res.state.SessionID != ""

		if allReady {
			co.ready[res.idx] = true
		}

		numReady := len(co.ready)
		numShards := len(co.runtimes)
		co.mu.Unlock()

		if numShards > 0 && numReady == numShards {
			co.readyFn.Do(func() { close(co.readyCh) })
		}

		for _, be := range res.effects {
			co.handleBotEffect(be)
		}
	}
}

func (co *Coordinator) handleBotEffect(be BotEffect) {
	switch be.Kind {
	case BotEffectKindDiscordEvent:
		co.broadcast(OutputEvent{Type: be.EventType, Payload: be.EventPayload})

	case BotEffectKindReShard:
		if co.cfg.HandleReShard {
			go co.reshard()
		} else {
			co.log.Warn().Msg("received re-shard close code but HandleReShard is disabled")
		}
	}
}

// broadcast fans a dispatched event out to Output() and to every
// Subscribe()'d consumer, independently: a full or absent consumer on
// one channel never blocks or drops the event for another.
func (co *Coordinator) broadcast(evt OutputEvent) {
	select {
	case co.outputCh <- evt:
	default:
		co.log.Warn().Str("type", evt.Type).Msg("output channel full, dropping event")
	}

	co.mu.Lock()
	subs := co.subs
	co.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- evt:
		default:
			co.log.Warn().Str("type", evt.Type).Msg("subscriber channel full, dropping event")
		}
	}
}

func (co *Coordinator) closeSubs() {
	co.mu.Lock()
	subs := co.subs
	co.subs = nil
	co.mu.Unlock()

	for _, ch := range subs {
		close(ch)
	}
}

// reshard implements spec.md §7/§8 scenario S6: look up the current
// recommended shard count, verify the bucket has capacity, and replace
// every running shard with a fresh set at the new count. The old
// runtimes are stopped only after the new ones have been spawned, so
// event delivery never goes fully dark during a re-shard.
func (co *Coordinator) reshard() {
	res, err := co.rc.GetGatewayBot()
	if err != nil {
		co.log.Error().Err(err).Msg("error fetching gateway/bot for re-shard")
		return
	}

	shardCount := res.Shards
	shardIDs := ShardIDsForCluster(shardCount, maxInt(co.cfg.ClusterCount, 1), co.cfg.ClusterID)

	if res.SessionStartLimit.Remaining < len(shardIDs) {
		co.fatal(&NotEnoughSessionsError{
			Token:           co.cfg.Token,
			ShardsRequested: len(shardIDs),
			RemainingStarts: res.SessionStartLimit.Remaining,
		})

		return
	}

	co.log.Info().Int("new_shard_count", shardCount).Msg("re-sharding")

	co.mu.Lock()
	old := co.runtimes
	co.runtimes = make(map[int]*ShardRuntime)
	co.states = make(map[int]ShardState)
	co.ready = make(map[int]bool)
	co.gatewayURL = res.URL + gatewayURLParams
	co.shardCount = shardCount
	co.mu.Unlock()

	co.spawnShards(shardIDs, shardCount)
	go co.staggerConnects(shardIDs)

	for _, rt := range old {
		rt.Stop()
	}
}

// Disconnect forcibly tears a single shard down.
func (co *Coordinator) Disconnect(shardID int) {
	co.mu.Lock()
	rt, ok := co.runtimes[shardID]
	co.mu.Unlock()

	if ok {
		rt.Stop()
	}
}

// SendRaw delivers a raw payload to a single shard's websocket
// (spec.md §4.3 "any other command is delivered over the websocket as a
// raw send").
func (co *Coordinator) SendRaw(shardID int, payload interface{}) {
	co.mu.Lock()
	rt, ok := co.runtimes[shardID]
	co.mu.Unlock()

	if !ok {
		return
	}

	defer func() { recover() }() //nolint: errcheck // shard may have already been stopped
	rt.CommunicationCh() <- RawCmd(payload)
}

// fatal implements spec.md §7's re-shard capacity exhaustion case: the
// one error the Coordinator surfaces itself rather than logging or
// turning into an output-channel event. It is unrecoverable — every
// running shard is torn down and the Coordinator stops for good.
func (co *Coordinator) fatal(err error) {
	co.log.Error().Err(err).Msg("coordinator stopping: unrecoverable error")

	select {
	case co.errCh <- err:
	default:
	}

	co.teardown()
}

// Close stops every running shard and closes the output channel once
// every shard goroutine has exited.
func (co *Coordinator) Close() {
	co.teardown()
}

func (co *Coordinator) teardown() {
	co.mu.Lock()
	runtimes := co.runtimes
	co.mu.Unlock()

	for _, rt := range runtimes {
		rt.Stop()
	}

	co.wg.Wait()
	co.closeFn.Do(func() { close(co.results) })
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}

	return b
}
