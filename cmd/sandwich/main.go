// Command sandwich runs one or more Discord gateway clusters, printing
// every dispatched event's type and size to stdout. Grounded on the
// teacher's main.go: same flag set, pprof hooks, and signal-driven
// shutdown, trimmed to the one REST-framework-free gateway core this
// module implements.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"syscall"
	"time"

	_ "net/http/pprof"

	"github.com/rs/zerolog"

	"github.com/TheRockettek/sandwich-gateway/gateway"
)

var zlog = zerolog.New(zerolog.ConsoleWriter{
	Out:        os.Stdout,
	TimeFormat: time.Stamp,
}).With().Timestamp().Logger()

func init() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func main() {
	token := flag.String("token", "", "token the bot will use to authenticate")
	shardCount := flag.Int("shards", 0, "shard count to use, 0 to autoshard")
	clusters := flag.Int("clusters", 1, "how many clusters are running")
	stopOnFatal := flag.Bool("stop-on-fatal", false, "tear a shard down instead of reconnecting on a fatal close code")
	cpuprofile := flag.String("cpuprofile", "", "write cpu profile to `file`")
	memprofile := flag.String("memprofile", "", "write memory profile to `file`")
	flag.Parse()

	if *token == "" {
		zlog.Fatal().Msg("no token provided")
	}

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			log.Fatal("could not create CPU profile: ", err)
		}
		defer f.Close()

		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal("could not start CPU profile: ", err)
		}

		defer pprof.StopCPUProfile()
	}

	bots := make([]*gateway.Bot, 0, *clusters)

	for i := 0; i < *clusters; i++ {
		cfg := gateway.DefaultConfig(*token)
		cfg.ShardCount = *shardCount
		cfg.ClusterCount = *clusters
		cfg.ClusterID = i
		cfg.StopOnFatal = *stopOnFatal

		b := gateway.NewBot(cfg, zlog.With().Int("cluster", i).Logger())
		bots = append(bots, b)
	}

	ctx := context.Background()

	for _, b := range bots {
		if err := b.Open(ctx); err != nil {
			zlog.Fatal().Err(err).Msg("could not start cluster")
		}

		go consume(b)
	}

	zlog.Info().Msg("clusters started, press ^C to close")

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM)
	<-sc

	for _, b := range bots {
		b.Close()
	}

	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			log.Fatal("could not create memory profile: ", err)
		}
		defer f.Close()

		runtime.GC()

		if err := pprof.WriteHeapProfile(f); err != nil {
			log.Fatal("could not write memory profile: ", err)
		}
	}
}

// consume logs every dispatched event until the Bot's output channel is
// closed (Close torn down).
func consume(b *gateway.Bot) {
	for evt := range b.Coordinator.Output() {
		zlog.Info().Str("type", evt.Type).Int("bytes", len(evt.Payload)).Msg("dispatch")
	}
}
