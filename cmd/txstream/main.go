package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chenzhangda16/web3-txstream/internal/txstream/frontier"
	"github.com/chenzhangda16/web3-txstream/internal/txstream/hub"
	"github.com/chenzhangda16/web3-txstream/internal/txstream/ingest"
	"github.com/chenzhangda16/web3-txstream/internal/txstream/mirror"
	"github.com/chenzhangda16/web3-txstream/internal/txstream/source"
	"github.com/chenzhangda16/web3-txstream/internal/txstream/sse"
	"github.com/chenzhangda16/web3-txstream/pkg/obs"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
	var (
		listen = flag.String("listen", ":8000", "http listen addr")

		// Source endpoint, e.g. a hypersync instance or a local mocknode.
		// Bearer token comes from SOURCE_BEARER_TOKEN; empty is fine for mocknode.
		sourceURL    = flag.String("source", "http://127.0.0.1:18080", "source rpc base url")
		requireToken = flag.Bool("require-token", false, "refuse to ingest without SOURCE_BEARER_TOKEN even for a loopback source")

		lookback = flag.Int64("lookback", 200, "bootstrap this many blocks behind the tip")
		queueCap = flag.Int("queue", 5000, "per-subscriber queue capacity")

		keepAlive   = flag.Duration("keep-alive", 20*time.Second, "sse keep-alive interval")
		batchWindow = flag.Duration("batch-window", 50*time.Millisecond, "sse batch collection window")
		maxBatch    = flag.Int("max-batch", 150, "max txs per sse frame")

		// Kafka mirror is optional; empty brokers disables it.
		brokers = flag.String("brokers", "", "kafka brokers csv for the mirror (empty = off)")
		topic   = flag.String("topic", "txstream.txs", "kafka topic for mirrored txs")
	)
	flag.Parse()

	obs.Init("txstream")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	token := os.Getenv("SOURCE_BEARER_TOKEN")
	src := source.NewHTTPClient(source.HTTPConfig{
		BaseURL:     *sourceURL,
		BearerToken: token,
	})

	h := hub.New(*queueCap)
	ing := ingest.New(ingest.Config{
		BootstrapLookback: *lookback,
		Frontier:          frontier.Config{},
	}, src, h)

	srv := &http.Server{
		Addr: *listen,
		Handler: sse.NewServer(h, ing, sse.EmitterConfig{
			KeepAlive:   *keepAlive,
			BatchWindow: *batchWindow,
			MaxBatch:    *maxBatch,
		}).Handler(),
	}

	g, ctx := errgroup.WithContext(ctx)

	// Remote endpoints need credentials; rather than grinding through an
	// unauthorized retry loop forever, refuse to start ingestion and keep
	// serving the status surface: /healthz stays 503 until a restart with
	// a token. Loopback sources (the local mocknode) may run anonymous.
	if token == "" && (*requireToken || !source.IsLoopback(*sourceURL)) {
		log.Printf("[main] SOURCE_BEARER_TOKEN missing for source=%s, ingestion disabled", *sourceURL)
	} else {
		g.Go(func() error {
			return ing.Run(ctx)
		})
	}

	if *brokers != "" {
		mir, err := mirror.New(*brokers, *topic)
		if err != nil {
			log.Fatalf("mirror init failed: %v", err)
		}
		sub, unsub := h.Subscribe()
		g.Go(func() error {
			defer unsub()
			defer func() { _ = mir.Close() }()
			return mir.Run(ctx, sub)
		})
		log.Printf("[main] mirror on: brokers=%s topic=%s", *brokers, *topic)
	}

	g.Go(func() error {
		log.Printf("[main] listening on %s source=%s", *listen, *sourceURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutCancel()
		return srv.Shutdown(shutCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
	log.Printf("[main] exit")
}
