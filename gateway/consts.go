package gateway

import (
	"time"

	jsoniter "github.com/json-iterator/go"
)

// VERSION of sandwich-gateway, following Semantic Versioning.
const VERSION = "0.1.0"

// ClientName identifies this client to the Discord Gateway within the
// Identify payload's connection properties.
const ClientName = "sandwich-gateway"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// gatewayURLParams is appended to the URL returned by GET /gateway/bot to
// arrive at the actual websocket endpoint (client.GetGatewayBot covers
// the REST call itself; see client/client.go). spec.md §6 pins gateway
// version 6.
const gatewayURLParams = "?v=6&encoding=json"

// https://discord.com/developers/docs/topics/opcodes-and-status-codes#gateway-gateway-opcodes
const (
	OpcodeDispatch       = 0
	OpcodeHeartbeat      = 1
	OpcodeIdentify       = 2
	OpcodeResume         = 6
	OpcodeReconnect      = 7
	OpcodeInvalidSession = 9
	OpcodeHello          = 10
	OpcodeHeartbeatAck   = 11
)

// Event names the core recognizes during dispatch.
const (
	EventNameReady = "READY"
)

// NewSessionStopCodes classifies close codes after which resumption is
// impossible; the next attach must Identify fresh.
var NewSessionStopCodes = map[int]bool{
	4003: true,
	4004: true,
	4007: true,
	4009: true,
}

// FatalStopCodes classifies close codes that, when StopOnFatal is
// configured, shut down the shard that received them instead of
// reconnecting it; the bot's other shards keep running.
var FatalStopCodes = map[int]bool{
	4001: true,
	4002: true,
	4003: true,
	4004: true,
	4005: true,
	4008: true,
	4010: true,
}

// ReShardStopCode is the close code Discord sends to demand a re-shard.
const ReShardStopCode = 4011

// identifyStagger is the minimum spacing between two shards' Identify
// attempts: Discord allows one identify per 5s, plus a safety margin.
const identifyStagger = 5100 * time.Millisecond

// invalidSessionWaitTime is how long the runtime waits after an Opcode 9
// Invalid Session before attempting a fresh attach, to give Discord time
// to fully close the prior session.
const invalidSessionWaitTime = 1 * time.Second

// maxIdentifyLargeThreshold is the largest permitted large_threshold value.
const maxIdentifyLargeThreshold = 50

// defaultBufferSize is the default maximum websocket message size (4 MiB).
const defaultBufferSize = 4 << 20
