package gateway

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/TheRockettek/sandwich-gateway/client"
)

// Bot wires together the REST client, the Bot Coordinator, and the
// optional forwarding sink into the single object a consuming
// application constructs (grounded on the teacher's top-level Manager,
// which plays the same role).
type Bot struct {
	Config      Config
	Client      *client.Client
	Coordinator *Coordinator
	Log         zerolog.Logger

	forward *ForwardingSink
	lock    *IdentifyLock
}

// NewBot builds a Bot from cfg without opening any connections.
func NewBot(cfg Config, log zerolog.Logger) *Bot {
	rc := client.NewClient(cfg.Token)

	return &Bot{
		Config:      cfg,
		Client:      rc,
		Coordinator: NewCoordinator(cfg, rc, log),
		Log:         log,
	}
}

// Open connects every shard this Bot owns, optionally acquiring the
// cross-cluster identify lock first and starting the forwarding sink.
func (b *Bot) Open(ctx context.Context) error {
	if b.Config.RedisOptions != nil {
		b.lock = NewIdentifyLock(b.Config.RedisOptions, "sandwich-gateway:identify-lock", identifyStagger*10)

		if err := b.lock.Acquire(ctx); err != nil {
			return err
		}
	}

	if b.Config.Forwarding.Enabled() {
		sink, err := NewForwardingSink(b.Config.Forwarding, b.Log)
		if err != nil {
			if b.lock != nil {
				_ = b.lock.Release(ctx)
			}

			return err
		}

		b.forward = sink

		go b.forward.Run(b.Coordinator.Subscribe())
	}

	if err := b.Coordinator.Open(ctx); err != nil {
		if b.lock != nil {
			_ = b.lock.Release(ctx)
		}

		return err
	}

	if b.lock != nil {
		go func() {
			<-b.Coordinator.Ready()
			_ = b.lock.Release(context.Background())
		}()
	}

	return nil
}

// Close stops every shard and tears down optional components.
func (b *Bot) Close() {
	b.Coordinator.Close()

	if b.forward != nil {
		b.forward.Close()
	}

	if b.lock != nil {
		_ = b.lock.Close()
	}
}
