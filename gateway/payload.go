package gateway

import stdjson "encoding/json"

// GatewayPayload is the envelope every Discord Gateway message arrives and
// departs in: {op, d, s?, t?}.
type GatewayPayload struct {
	Op   int                `json:"op"`
	Data stdjson.RawMessage `json:"d"`
	Seq  *int64             `json:"s,omitempty"`
	Type *string            `json:"t,omitempty"`
}

// Hello is the payload of an Opcode 10 Hello event.
type Hello struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}

// Heartbeat is the payload of an Opcode 1 Heartbeat, sent and received.
type Heartbeat struct {
	Op   int    `json:"op"`
	Data *int64 `json:"d"`
}

// newHeartbeat builds the outbound {"op":1,"d":<seq or null>} frame.
func newHeartbeat(seq *int64) Heartbeat {
	return Heartbeat{Op: OpcodeHeartbeat, Data: seq}
}

// Identify is the payload of an Opcode 2 Identify.
type Identify struct {
	Op   int          `json:"op"`
	Data identifyData `json:"d"`
}

type identifyData struct {
	Token          string                       `json:"token"`
	Properties     identifyConnectionProperties `json:"properties"`
	Compress       bool                         `json:"compress"`
	LargeThreshold int                          `json:"large_threshold"`
	Shard          [2]int                       `json:"shard"`
}

type identifyConnectionProperties struct {
	OS      string `json:"$os"`
	Browser string `json:"$browser"`
	Device  string `json:"$device"`
}

// newIdentify builds the outbound Identify frame for a shard, per spec.md §6.
func newIdentify(token string, shardID, shardCount int) Identify {
	return Identify{
		Op: OpcodeIdentify,
		Data: identifyData{
			Token: token,
			Properties: identifyConnectionProperties{
				OS:      "linux",
				Browser: ClientName,
				Device:  ClientName,
			},
			Compress:       false,
			LargeThreshold: maxIdentifyLargeThreshold,
			Shard:          [2]int{shardID, shardCount},
		},
	}
}

// Resume is the payload of an Opcode 6 Resume.
type Resume struct {
	Op   int        `json:"op"`
	Data resumeData `json:"d"`
}

type resumeData struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
}

// newResume builds the outbound Resume frame for a shard, per spec.md §6.
func newResume(token, sessionID string, seq int64) Resume {
	return Resume{
		Op: OpcodeResume,
		Data: resumeData{
			Token:     token,
			SessionID: sessionID,
			Seq:       seq,
		},
	}
}

// readyData is the subset of the Ready dispatch payload the core tracks.
// The full Ready event (user, guilds, private channels, ...) is passed
// through to the event bus verbatim as the Effect's payload; the core
// only needs the session ID out of it.
type readyData struct {
	SessionID string `json:"session_id"`
}
