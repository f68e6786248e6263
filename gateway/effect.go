package gateway

import stdjson "encoding/json"

// EffectKind tags the variant of an Effect produced by the Shard State
// Machine. Effects are a closed union: ShardRuntime's effect handler
// switches over Kind and must handle every case (spec.md §9: "Dynamic
// dispatch tables ... become closed tagged unions with exhaustive
// matching").
type EffectKind int

const (
	EffectKindIdentify EffectKind = iota
	EffectKindResume
	EffectKindStartHeartbeat
	EffectKindSendHeartbeat
	EffectKindReconnect
	EffectKindReShard
	EffectKindError
	EffectKindSendDiscordEvent
	EffectKindDisconnect
)

// Effect is produced by Step and consumed by the Shard Runtime's effect
// handler. Only the fields relevant to Kind are populated.
type Effect struct {
	Kind              EffectKind
	HeartbeatInterval int64 // EffectKindStartHeartbeat
	Err               error // EffectKindError
	EventType         string
	EventPayload      stdjson.RawMessage // EffectKindSendDiscordEvent
}

func effectIdentify() Effect      { return Effect{Kind: EffectKindIdentify} }
func effectResume() Effect        { return Effect{Kind: EffectKindResume} }
func effectSendHeartbeat() Effect { return Effect{Kind: EffectKindSendHeartbeat} }
func effectReconnect() Effect     { return Effect{Kind: EffectKindReconnect} }
func effectReShard() Effect       { return Effect{Kind: EffectKindReShard} }
func effectDisconnect() Effect    { return Effect{Kind: EffectKindDisconnect} }

func effectStartHeartbeat(intervalMs int64) Effect {
	return Effect{Kind: EffectKindStartHeartbeat, HeartbeatInterval: intervalMs}
}

func effectError(err error) Effect {
	return Effect{Kind: EffectKindError, Err: err}
}

func effectSendDiscordEvent(eventType string, payload stdjson.RawMessage) Effect {
	return Effect{Kind: EffectKindSendDiscordEvent, EventType: eventType, EventPayload: payload}
}

// SendDebugEffect wraps a verbatim list of effects, re-emitted unchanged by
// Step. It exists solely so tests can inject effects into a running Shard
// Runtime without fabricating a real transport event (spec.md §4.1).
func SendDebugEffect(effects ...Effect) InboundEvent {
	return InboundEvent{Kind: InboundKindSendDebugEffect, DebugEffects: effects}
}

// BotEffectKind tags the variant of a BotEffect surfaced by the Shard
// Runtime to the Bot Coordinator.
type BotEffectKind int

const (
	BotEffectKindDiscordEvent BotEffectKind = iota
	BotEffectKindReShard
)

// BotEffect is the subset of a shard's effects that the Coordinator, not
// the shard itself, must act on.
type BotEffect struct {
	Kind         BotEffectKind
	EventType    string
	EventPayload stdjson.RawMessage
}

func botEffectDiscordEvent(eventType string, payload stdjson.RawMessage) BotEffect {
	return BotEffect{Kind: BotEffectKindDiscordEvent, EventType: eventType, EventPayload: payload}
}

func botEffectReShard() BotEffect {
	return BotEffect{Kind: BotEffectKindReShard}
}
