package gateway

import "testing"

func TestStepConnectIdentifiesWithoutSession(t *testing.T) {
	s := NewShardState(0, 1, false)

	_, effects := Step(s, Connect())

	if len(effects) != 1 || effects[0].Kind != EffectKindIdentify {
		t.Fatalf("expected a single Identify effect, got %+v", effects)
	}
}

func TestStepConnectResumesWithSession(t *testing.T) {
	s := NewShardState(0, 1, false)
	s.SessionID = "abc123"
	s.Seq = 5
	s.HasSeq = true

	_, effects := Step(s, Connect())

	if len(effects) != 1 || effects[0].Kind != EffectKindResume {
		t.Fatalf("expected a single Resume effect, got %+v", effects)
	}
}

func TestCanResumeRequiresSessionAndSeq(t *testing.T) {
	cases := []struct {
		name string
		s    ShardState
		want bool
	}{
		{"no session", ShardState{}, false},
		{"session no seq", ShardState{SessionID: "a"}, false},
		{"session and seq", ShardState{SessionID: "a", HasSeq: true}, true},
		{
			"new-session stop code forbids resume",
			ShardState{SessionID: "a", HasSeq: true, HasStopCode: true, StopCode: 4007},
			false,
		},
		{
			"ordinary stop code allows resume",
			ShardState{SessionID: "a", HasSeq: true, HasStopCode: true, StopCode: 4000},
			true,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.s.canResume(); got != c.want {
				t.Fatalf("canResume() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestStepDisconnectOnEmptyIsNoop(t *testing.T) {
	s := NewShardState(0, 1, false)
	s.Empty = true

	next, effects := Step(s, Disconnect(4000, "bye"))

	if len(effects) != 0 {
		t.Fatalf("expected no effects for an already-empty shard, got %+v", effects)
	}

	if next.HasStopCode {
		t.Fatalf("expected state to be left unchanged, got %+v", next)
	}
}

func TestStepDisconnectReShardCode(t *testing.T) {
	s := NewShardState(0, 1, false)

	_, effects := Step(s, Disconnect(ReShardStopCode, "scale up"))

	if len(effects) != 1 || effects[0].Kind != EffectKindReShard {
		t.Fatalf("expected a single ReShard effect, got %+v", effects)
	}
}

func TestStepDisconnectFatalWithStopOnFatal(t *testing.T) {
	s := NewShardState(0, 1, true)

	_, effects := Step(s, Disconnect(4004, "authentication failed"))

	if len(effects) != 1 || effects[0].Kind != EffectKindDisconnect {
		t.Fatalf("expected a single Disconnect effect, got %+v", effects)
	}
}

func TestStepDisconnectFatalWithoutStopOnFatalReconnects(t *testing.T) {
	s := NewShardState(0, 1, false)

	_, effects := Step(s, Disconnect(4004, "authentication failed"))

	if len(effects) != 1 || effects[0].Kind != EffectKindReconnect {
		t.Fatalf("expected a single Reconnect effect, got %+v", effects)
	}
}

func TestStepDisconnectOrdinaryCodeReconnects(t *testing.T) {
	s := NewShardState(0, 1, true)

	_, effects := Step(s, Disconnect(1006, "abnormal"))

	if len(effects) != 1 || effects[0].Kind != EffectKindReconnect {
		t.Fatalf("expected a single Reconnect effect, got %+v", effects)
	}
}

func TestStepMessageHelloStartsHeartbeat(t *testing.T) {
	s := NewShardState(0, 1, false)

	next, effects := Step(s, Message([]byte(`{"op":10,"d":{"heartbeat_interval":41250}}`)))

	if len(effects) != 1 || effects[0].Kind != EffectKindStartHeartbeat {
		t.Fatalf("expected a single StartHeartbeat effect, got %+v", effects)
	}

	if effects[0].HeartbeatInterval != 41250 {
		t.Fatalf("expected interval 41250, got %d", effects[0].HeartbeatInterval)
	}

	_ = next
}

func TestStepMessageHeartbeatAckSetsAck(t *testing.T) {
	s := NewShardState(0, 1, false)

	next, effects := Step(s, Message([]byte(`{"op":11}`)))

	if len(effects) != 0 {
		t.Fatalf("expected no effects from a HeartbeatAck, got %+v", effects)
	}

	if !next.Ack {
		t.Fatalf("expected Ack to be set")
	}
}

func TestStepMessageInvalidSessionClearsSession(t *testing.T) {
	s := NewShardState(0, 1, false)
	s.SessionID = "abc"
	s.Seq = 10
	s.HasSeq = true

	next, effects := Step(s, Message([]byte(`{"op":9,"d":false}`)))

	if len(effects) != 1 || effects[0].Kind != EffectKindReconnect {
		t.Fatalf("expected a single Reconnect effect, got %+v", effects)
	}

	if next.SessionID != "" || next.HasSeq {
		t.Fatalf("expected session to be cleared, got %+v", next)
	}

	if !next.InvalidSession {
		t.Fatalf("expected InvalidSession to be set")
	}
}

func TestStepDispatchReadySetsSessionID(t *testing.T) {
	s := NewShardState(0, 1, false)

	next, effects := Step(s, Message([]byte(`{"op":0,"t":"READY","s":1,"d":{"session_id":"xyz"}}`)))

	if next.SessionID != "xyz" {
		t.Fatalf("expected SessionID xyz, got %q", next.SessionID)
	}

	if !next.HasSeq || next.Seq != 1 {
		t.Fatalf("expected Seq to be tracked, got %+v", next)
	}

	if len(effects) != 1 || effects[0].Kind != EffectKindSendDiscordEvent || effects[0].EventType != "READY" {
		t.Fatalf("expected a single SendDiscordEvent(READY) effect, got %+v", effects)
	}
}

func TestStepDispatchOtherEventForwardsVerbatim(t *testing.T) {
	s := NewShardState(0, 1, false)

	_, effects := Step(s, Message([]byte(`{"op":0,"t":"MESSAGE_CREATE","s":2,"d":{"content":"hi"}}`)))

	if len(effects) != 1 || effects[0].Kind != EffectKindSendDiscordEvent || effects[0].EventType != "MESSAGE_CREATE" {
		t.Fatalf("expected a single SendDiscordEvent(MESSAGE_CREATE) effect, got %+v", effects)
	}
}

func TestStepErrorEventProducesErrorEffect(t *testing.T) {
	s := NewShardState(0, 1, false)

	_, effects := Step(s, ErrorEvent(errBoom))

	if len(effects) != 1 || effects[0].Kind != EffectKindError || effects[0].Err != errBoom {
		t.Fatalf("expected a single Error effect wrapping errBoom, got %+v", effects)
	}
}

func TestStepSendDebugEffectReturnsEffectsVerbatim(t *testing.T) {
	s := NewShardState(0, 1, false)
	want := []Effect{effectReconnect(), effectError(errBoom)}

	_, effects := Step(s, SendDebugEffect(want...))

	if len(effects) != len(want) {
		t.Fatalf("expected %d effects, got %d", len(want), len(effects))
	}

	for i := range want {
		if effects[i].Kind != want[i].Kind {
			t.Fatalf("effect %d: got kind %v, want %v", i, effects[i].Kind, want[i].Kind)
		}
	}
}

var errBoom = testError("boom")

type testError string

func (e testError) Error() string { return string(e) }
