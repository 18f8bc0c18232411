package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chenzhangda16/web3-txstream/internal/mocknode/generator"
	"github.com/chenzhangda16/web3-txstream/internal/mocknode/miner"
	"github.com/chenzhangda16/web3-txstream/internal/mocknode/rpc"
	"github.com/chenzhangda16/web3-txstream/internal/mocknode/store"
	"github.com/chenzhangda16/web3-txstream/pkg/obs"
	"github.com/chenzhangda16/web3-txstream/pkg/rng"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
	var (
		dbPath    = flag.String("db", "./data/mocknode.db", "rocksdb path")
		rpcAddr   = flag.String("rpc", ":18080", "rpc listen addr")
		addrCount = flag.Int("addr", 5000, "address pool size")
		det       = flag.Bool("det", false, "deterministic generation (reproducible chain)")
		seed      = flag.Int64("seed", 1, "seed for deterministic generation")
		tick      = flag.Duration("tick", 1*time.Second, "block interval")
		warmup    = flag.Int64("warmup", 300, "blocks to pre-mine at startup")
	)
	flag.Parse()

	obs.Init("mocknode")

	st, err := store.Open(*dbPath)
	if err != nil {
		log.Fatal(err)
	}
	defer st.Close()

	rf := rng.New(map[bool]rng.Mode{true: rng.Deterministic, false: rng.Real}[*det], *seed)

	addrs := generator.GenAddrs(*addrCount, rf.R(rng.AddrPool))
	txgen := generator.NewTxGen(addrs, rf)

	m := miner.NewMiner(st, txgen, rf, *tick)
	if err := m.Warmup(*warmup); err != nil {
		log.Fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// single writer
	go func() {
		if err := m.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("miner stopped: %v", err)
			cancel()
		}
	}()

	// read-only rpc
	srv := &http.Server{
		Addr:    *rpcAddr,
		Handler: rpc.NewServer(st).Handler(),
	}

	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	log.Printf("mocknode rpc listening on %s, db=%s tick=%s", *rpcAddr, *dbPath, *tick)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
