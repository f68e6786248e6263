package gateway

import (
	stdjson "encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/stan.go"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack"
)

// ForwardingSinkConfig configures the optional NATS Streaming sink that
// re-publishes every OutputEvent the Bot Coordinator emits (SPEC_FULL.md
// §4.6). Grounded on the teacher's SessionProvider.Receive (sessions.go):
// same nats.Connect/stan.Connect pairing and msgpack wire format, adapted
// from per-event-type marshalers to the gateway's single OutputEvent
// envelope since this module does not carry the teacher's Discord entity
// model (DESIGN.md).
type ForwardingSinkConfig struct {
	NatsAddress string
	ClusterID   string
	ClientID    string
	Channel     string
}

// Enabled reports whether forwarding was configured at all.
func (c ForwardingSinkConfig) Enabled() bool { return c.NatsAddress != "" }

// ForwardingSink publishes OutputEvents onto a NATS Streaming channel.
type ForwardingSink struct {
	cfg  ForwardingSinkConfig
	log  zerolog.Logger
	conn stan.Conn
	nc   *nats.Conn
}

// OutputEvent is the wire envelope published to the forwarding sink:
// the dispatch event type plus its raw payload (SPEC_FULL.md §3).
type OutputEvent struct {
	Type    string             `msgpack:"type"`
	Payload stdjson.RawMessage `msgpack:"payload"`
}

// NewForwardingSink dials NATS and NATS Streaming. It is only called
// when cfg.Enabled().
func NewForwardingSink(cfg ForwardingSinkConfig, log zerolog.Logger) (*ForwardingSink, error) {
	nc, err := nats.Connect(cfg.NatsAddress)
	if err != nil {
		return nil, err
	}

	sc, err := stan.Connect(cfg.ClusterID, cfg.ClientID, stan.NatsConn(nc))
	if err != nil {
		nc.Close()
		return nil, err
	}

	return &ForwardingSink{cfg: cfg, log: log, conn: sc, nc: nc}, nil
}

// Run drains events from ch and publishes each as msgpack until ch is
// closed, mirroring the teacher's for-range Receive loop.
func (f *ForwardingSink) Run(ch <-chan OutputEvent) {
	for evt := range ch {
		v, err := msgpack.Marshal(evt)
		if err != nil {
			f.log.Error().Err(err).Str("type", evt.Type).Msg("error marshaling event for forwarding")
			continue
		}

		if err := f.conn.Publish(f.cfg.Channel, v); err != nil {
			f.log.Error().Err(err).Str("type", evt.Type).Msg("error publishing event")
		}
	}
}

// Close tears down the Streaming and NATS connections.
func (f *ForwardingSink) Close() {
	if f.conn != nil {
		f.conn.Close()
	}

	if f.nc != nil {
		f.nc.Close()
	}
}
