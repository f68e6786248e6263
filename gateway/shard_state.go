package gateway

// ShardState is the data a Shard State Machine carries between Step
// calls. It never performs I/O and is safe to copy; Step returns a new
// value rather than mutating in place (spec.md §4.1).
type ShardState struct {
	ID    int
	Count int

	SessionID string
	Seq       int64
	HasSeq    bool
	Ack       bool

	StopCode      int
	HasStopCode   bool
	DisconnectMsg string

	InvalidSession bool

	// Empty marks a Shard that has been torn down (stopCh fired). The
	// Coordinator interprets an Empty ShardState as shard death.
	Empty bool

	// StopOnFatal mirrors Config.StopOnFatal; threaded into the state
	// rather than read from a global so Step stays pure and testable
	// (spec.md §9 Design Notes).
	StopOnFatal bool
}

// NewShardState constructs the initial state for a freshly created shard.
func NewShardState(id, count int, stopOnFatal bool) ShardState {
	return ShardState{ID: id, Count: count, StopOnFatal: stopOnFatal}
}

// canResume is exactly spec.md §8 invariant 2: resume eligibility.
func (s ShardState) canResume() bool {
	if s.SessionID == "" || !s.HasSeq {
		return false
	}

	if s.HasStopCode && NewSessionStopCodes[s.StopCode] {
		return false
	}

	return true
}

// Step is the Shard State Machine's pure reducer: (ShardState,
// InboundEvent) -> (ShardState, []Effect). It is total — every InboundEvent
// variant yields a defined next state and a (possibly empty) effect list
// (spec.md §8 invariant 1).
func Step(s ShardState, e InboundEvent) (ShardState, []Effect) {
	switch e.Kind {
	case InboundKindConnect:
		return stepConnect(s)
	case InboundKindDisconnect:
		return stepDisconnect(s, e)
	case InboundKindError:
		return s, []Effect{effectError(e.Err)}
	case InboundKindMessage:
		return stepMessage(s, e)
	case InboundKindSendDebugEffect:
		return s, e.DebugEffects
	default:
		return s, nil
	}
}

func stepConnect(s ShardState) (ShardState, []Effect) {
	if s.canResume() {
		return s, []Effect{effectResume()}
	}

	return s, []Effect{effectIdentify()}
}

func stepDisconnect(s ShardState, e InboundEvent) (ShardState, []Effect) {
	if s.Empty {
		return s, nil
	}

	s.StopCode = e.Code
	s.HasStopCode = true
	s.DisconnectMsg = e.Msg

	switch {
	case e.Code == ReShardStopCode:
		return s, []Effect{effectReShard()}
	case s.StopOnFatal && FatalStopCodes[e.Code]:
		return s, []Effect{effectDisconnect()}
	default:
		return s, []Effect{effectReconnect()}
	}
}

func stepMessage(s ShardState, e InboundEvent) (ShardState, []Effect) {
	var payload GatewayPayload
	if err := json.Unmarshal(e.Text, &payload); err != nil {
		return s, []Effect{effectError(err)}
	}

	switch payload.Op {
	case OpcodeHello:
		var hello Hello
		if err := json.Unmarshal(payload.Data, &hello); err != nil {
			return s, []Effect{effectError(err)}
		}

		return s, []Effect{effectStartHeartbeat(hello.HeartbeatInterval)}

	case OpcodeHeartbeat:
		return s, []Effect{effectSendHeartbeat()}

	case OpcodeHeartbeatAck:
		s.Ack = true
		return s, nil

	case OpcodeReconnect:
		return s, []Effect{effectReconnect()}

	case OpcodeInvalidSession:
		s.SessionID = ""
		s.HasSeq = false
		s.InvalidSession = true
		return s, []Effect{effectReconnect()}

	case OpcodeDispatch:
		return stepDispatch(s, payload)

	default:
		return s, nil
	}
}

func stepDispatch(s ShardState, payload GatewayPayload) (ShardState, []Effect) {
	if payload.Seq != nil {
		s.Seq = *payload.Seq
		s.HasSeq = true
	}

	eventType := ""
	if payload.Type != nil {
		eventType = *payload.Type
	}

	if eventType == EventNameReady {
		var ready readyData
		if err := json.Unmarshal(payload.Data, &ready); err != nil {
			return s, []Effect{effectError(err)}
		}

		s.SessionID = ready.SessionID

		return s, []Effect{effectSendDiscordEvent(eventType, payload.Data)}
	}

	return s, []Effect{effectSendDiscordEvent(eventType, payload.Data)}
}
