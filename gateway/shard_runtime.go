package gateway

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Command is the payload carried on a Shard's externally-writable
// communicationCh (spec.md §3, §4.3). ConnectCmd triggers the initial
// websocket attach; any other command's Raw value is written to the
// Gateway verbatim as a raw send, or dropped with a warning when no
// websocket is attached.
type Command struct {
	Connect bool
	Raw     interface{}
}

// ConnectCmd is the internal-only command that triggers a shard's first
// websocket attach.
func ConnectCmd() Command { return Command{Connect: true} }

// RawCmd wraps an arbitrary payload for a raw send over the websocket.
func RawCmd(v interface{}) Command { return Command{Raw: v} }

// shardResult is what a ShardRuntime posts to the Coordinator's fan-in
// channel once per loop iteration: the shard's new state (Empty once the
// shard has terminated) and any bot-level effects produced this
// iteration.
type shardResult struct {
	idx     int
	state   ShardState
	effects []BotEffect
}

// ShardRuntime binds one Shard State Machine to its websocket, heartbeat
// timer, control channel, and stop channel, per spec.md §4.3. It owns no
// shared state with any other shard's runtime.
type ShardRuntime struct {
	token      string
	url        string
	bufferSize int
	log        zerolog.Logger
	limiter    *ConcurrencyLimiter

	state ShardState
	adp   *adapter

	eventCh         chan InboundEvent
	communicationCh chan Command
	stopCh          chan struct{}
	heartbeatCh     chan struct{}
	heartbeatStop   chan struct{}
}

// NewShardRuntime constructs a runtime for a shard that has not yet
// connected. communicationCh capacity mirrors the teacher's preference
// for small, non-blocking command queues.
func NewShardRuntime(id, count int, token, url string, bufferSize int, stopOnFatal bool, limiter *ConcurrencyLimiter, log zerolog.Logger) *ShardRuntime {
	return &ShardRuntime{
		token:           token,
		url:             url,
		bufferSize:      bufferSize,
		log:             log.With().Int("shard", id).Logger(),
		limiter:         limiter,
		state:           NewShardState(id, count, stopOnFatal),
		communicationCh: make(chan Command, 16),
		stopCh:          make(chan struct{}),
	}
}

// CommunicationCh returns the shard's externally-writable command
// channel (spec.md §3: "externally writable command channel").
func (rt *ShardRuntime) CommunicationCh() chan<- Command { return rt.communicationCh }

// Stop triggers terminal shutdown of the shard. Safe to call once.
func (rt *ShardRuntime) Stop() {
	defer func() { recover() }() //nolint: errcheck // closing twice is a caller bug we tolerate defensively
	close(rt.stopCh)
}

// InjectEvent posts a synthetic InboundEvent directly onto the shard's
// current eventCh, for SendDebugEvent (spec.md §4.4 external handlers).
func (rt *ShardRuntime) InjectEvent(e InboundEvent) {
	defer func() { recover() }() //nolint: errcheck // eventCh may be nil/closed across reconnects
	if rt.eventCh != nil {
		rt.eventCh <- e
	}
}

// Run is the shard's single cooperative loop. It posts one shardResult
// per iteration onto results until the shard is stopped, implementing
// the deterministic priority order stop > communication > heartbeat >
// event (spec.md §4.3, §9 Design Notes).
func (rt *ShardRuntime) Run(idx int, results chan<- shardResult) {
	for {
		if rt.checkStop(idx, results) {
			return
		}

		select {
		case <-rt.stopCh:
			rt.checkStop(idx, results)
			return
		case cmd := <-rt.communicationCh:
			rt.handleCommand(cmd)
			results <- shardResult{idx: idx, state: rt.state}
			continue
		default:
		}

		select {
		case <-rt.stopCh:
			rt.checkStop(idx, results)
			return
		case cmd := <-rt.communicationCh:
			rt.handleCommand(cmd)
			results <- shardResult{idx: idx, state: rt.state}
			continue
		case <-rt.heartbeatCh:
			rt.handleHeartbeatTick()
			results <- shardResult{idx: idx, state: rt.state}
			continue
		default:
		}

		select {
		case <-rt.stopCh:
			rt.checkStop(idx, results)
			return
		case cmd := <-rt.communicationCh:
			rt.handleCommand(cmd)
			results <- shardResult{idx: idx, state: rt.state}
		case <-rt.heartbeatCh:
			rt.handleHeartbeatTick()
			results <- shardResult{idx: idx, state: rt.state}
		case ev := <-rt.eventCh:
			effects := rt.step(ev)
			results <- shardResult{idx: idx, state: rt.state, effects: effects}
		}
	}
}

// checkStop non-blockingly tests stopCh; if it has fired, it tears the
// shard down and posts the terminal Empty result (spec.md §4.3 step 1).
func (rt *ShardRuntime) checkStop(idx int, results chan<- shardResult) bool {
	select {
	case <-rt.stopCh:
	default:
		return false
	}

	if rt.heartbeatStop != nil {
		close(rt.heartbeatStop)
		rt.heartbeatStop = nil
	}

	close(rt.communicationCh)
	rt.adp.close()

	rt.state.Empty = true
	results <- shardResult{idx: idx, state: rt.state}

	return true
}

// handleCommand implements spec.md §4.3 step 2.
func (rt *ShardRuntime) handleCommand(cmd Command) {
	if cmd.Connect {
		rt.connect()
		return
	}

	if rt.adp == nil {
		rt.log.Warn().Msg("dropping raw command: no websocket attached")
		return
	}

	if err := rt.adp.write(cmd.Raw); err != nil {
		rt.log.Error().Err(err).Msg("error sending raw command")
	}
}

// connect allocates a fresh eventCh, tears down any existing heartbeat,
// and opens a new websocket via the Adapter. If a ConcurrencyLimiter was
// configured it is waited on here, before dialing (SPEC_FULL.md §4.5).
// Only this Connect-command path consults it: the Reconnect effect, the
// zombie reconnect and the Resume reopen dial without the limiter.
func (rt *ShardRuntime) connect() {
	rt.stopHeartbeatProducer()

	if rt.limiter != nil {
		if err := rt.limiter.Wait(context.Background()); err != nil {
			rt.log.Error().Err(err).Msg("error waiting on identify concurrency limiter")
		}
	}

	rt.eventCh = make(chan InboundEvent, 100)

	adp, err := connectAdapter(rt.log, dialOptions{bufferSize: rt.bufferSize}, rt.url, rt.eventCh)
	if err != nil {
		rt.log.Error().Err(err).Msg("error connecting to gateway")
		rt.eventCh <- ErrorEvent(err)

		return
	}

	rt.adp = adp
}

// handleHeartbeatTick implements spec.md §4.3 step 3.
func (rt *ShardRuntime) handleHeartbeatTick() {
	if rt.state.Ack {
		seq := (*int64)(nil)
		if rt.state.HasSeq {
			s := rt.state.Seq
			seq = &s
		}

		if rt.adp != nil {
			if err := rt.adp.write(newHeartbeat(seq)); err != nil {
				rt.log.Error().Err(err).Msg("error sending heartbeat")
			}
		}

		rt.state.Ack = false

		return
	}

	rt.log.Warn().Msg("zombie connection detected, no HeartbeatACK since last beat; reconnecting")

	rt.stopHeartbeatProducer()
	rt.adp.close()
	rt.eventCh = make(chan InboundEvent, 100)

	adp, err := connectAdapter(rt.log, dialOptions{bufferSize: rt.bufferSize}, rt.url, rt.eventCh)
	if err != nil {
		rt.log.Error().Err(err).Msg("error reconnecting after zombie detection")
		rt.eventCh <- ErrorEvent(err)

		return
	}

	rt.adp = adp
}

// step runs the Shard State Machine once and folds the resulting Effects
// through the runtime's effect handlers, per spec.md §4.3 step 4.
func (rt *ShardRuntime) step(e InboundEvent) []BotEffect {
	newState, effects := Step(rt.state, e)
	rt.state = newState

	var botEffects []BotEffect

	for _, eff := range effects {
		if be, ok := rt.handleEffect(eff); ok {
			botEffects = append(botEffects, be)
		}
	}

	return botEffects
}

// handleEffect executes one Effect and, if it is bot-level, returns it
// for the Coordinator (spec.md §4.3 "Effect handlers").
func (rt *ShardRuntime) handleEffect(eff Effect) (BotEffect, bool) {
	switch eff.Kind {
	case EffectKindIdentify:
		if err := rt.adp.write(newIdentify(rt.token, rt.state.ID, rt.state.Count)); err != nil {
			rt.log.Error().Err(err).Msg("error sending identify")
		}

	case EffectKindResume:
		rt.reopenForResume()

		seq := int64(0)
		if rt.state.HasSeq {
			seq = rt.state.Seq
		}

		if err := rt.adp.write(newResume(rt.token, rt.state.SessionID, seq)); err != nil {
			rt.log.Error().Err(err).Msg("error sending resume")
		}

	case EffectKindStartHeartbeat:
		rt.startHeartbeatProducer(eff.HeartbeatInterval)
		rt.state.Ack = true

	case EffectKindSendHeartbeat:
		sendOnSlidingChan(rt.heartbeatCh)

	case EffectKindReconnect:
		if rt.state.HasStopCode || rt.state.DisconnectMsg != "" {
			rt.log.Info().Int("code", rt.state.StopCode).Str("msg", rt.state.DisconnectMsg).
				Bool("invalid_session", rt.state.InvalidSession).Msg("reconnecting")
		}

		if rt.state.InvalidSession {
			// Discord asks clients to pause before re-identifying after an
			// Invalid Session so the old session has time to fully close.
			time.Sleep(invalidSessionWaitTime)
		}

		rt.stopHeartbeatProducer()
		rt.state.InvalidSession = false
		rt.state.HasStopCode = false
		rt.state.DisconnectMsg = ""
		rt.eventCh = make(chan InboundEvent, 100)

		adp, err := connectAdapter(rt.log, dialOptions{bufferSize: rt.bufferSize}, rt.url, rt.eventCh)
		if err != nil {
			rt.log.Error().Err(err).Msg("error reconnecting")
			rt.eventCh <- ErrorEvent(err)

			break
		}

		rt.adp = adp

	case EffectKindDisconnect:
		rt.log.Warn().Int("code", rt.state.StopCode).Msg("fatal stop code with StopOnFatal, shutting down shard")
		rt.Stop()

	case EffectKindError:
		rt.log.Error().Err(eff.Err).Msg("shard error")

	case EffectKindSendDiscordEvent:
		return botEffectDiscordEvent(eff.EventType, eff.EventPayload), true

	case EffectKindReShard:
		return botEffectReShard(), true
	}

	return BotEffect{}, false
}

// reopenForResume opens a fresh websocket even though Connect already
// attached one. This looks redundant but is intentional per spec.md §9:
// Resume only fires in response to the runtime's own synthetic Connect
// after a fresh attach, so the socket being replaced here is the one
// that attach just opened — reopening is a no-op on a cold attach and
// would be harmful if Resume ever fired on a warm one, which it does not.
func (rt *ShardRuntime) reopenForResume() {
	rt.adp.close()
	rt.eventCh = make(chan InboundEvent, 100)

	adp, err := connectAdapter(rt.log, dialOptions{bufferSize: rt.bufferSize}, rt.url, rt.eventCh)
	if err != nil {
		rt.log.Error().Err(err).Msg("error opening websocket for resume")
		rt.eventCh <- ErrorEvent(err)

		return
	}

	rt.adp = adp

	// connectAdapter has already queued the replacement socket's Connect
	// event; consume it so it does not trigger a second Resume.
	<-rt.eventCh
}

// startHeartbeatProducer allocates the sliding-buffer-of-1 heartbeatCh,
// places one immediate token, and starts the periodic producer
// (spec.md §4.3, §5).
func (rt *ShardRuntime) startHeartbeatProducer(intervalMs int64) {
	rt.heartbeatCh = make(chan struct{}, 1)
	rt.heartbeatStop = make(chan struct{})
	rt.heartbeatCh <- struct{}{}

	interval := time.Duration(intervalMs) * time.Millisecond
	stop := rt.heartbeatStop
	ch := rt.heartbeatCh

	go heartbeatProducer(interval, stop, ch)
}

// heartbeatProducer places a token on ch every interval, coalescing with
// any already-pending token, until stop is closed (spec.md §4.3, §5).
// The producer ends on the separate stop channel rather than on ch being
// closed: the runtime closes stop when it discards ch, so the producer
// never sends on a channel nobody is reading.
func heartbeatProducer(interval time.Duration, stop <-chan struct{}, ch chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			sendOnSlidingChan(ch)
		}
	}
}

// stopHeartbeatProducer terminates the heartbeat producer goroutine
// deterministically and discards the channel, per spec.md §9 Design
// Notes ("do not leak timers across reconnects").
func (rt *ShardRuntime) stopHeartbeatProducer() {
	if rt.heartbeatStop != nil {
		close(rt.heartbeatStop)
		rt.heartbeatStop = nil
	}

	rt.heartbeatCh = nil
}

// sendOnSlidingChan places a token on a capacity-1 channel, discarding
// any already-pending token so a slow consumer cannot accumulate
// backlog (spec.md §5).
func sendOnSlidingChan(ch chan struct{}) {
	if ch == nil {
		return
	}

	select {
	case ch <- struct{}{}:
	default:
		select {
		case <-ch:
		default:
		}

		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
