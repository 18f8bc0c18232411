package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"

	"github.com/chenzhangda16/web3-txstream/internal/txstream/archiver"
	"github.com/chenzhangda16/web3-txstream/pkg/obs"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
	var (
		brokers = flag.String("brokers", "127.0.0.1:9092", "kafka brokers csv")
		topic   = flag.String("topic", "txstream.txs", "mirrored tx topic")
		group   = flag.String("group", "txstream.archiver", "consumer group")
	)
	flag.Parse()

	obs.Init("archiver")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pg, err := archiver.NewPGWriterFromEnv()
	if err != nil {
		log.Fatalf("pg init failed: %v", err)
	}
	defer func() { _ = pg.Close() }()

	if err := pg.EnsureSchema(ctx); err != nil {
		log.Fatalf("ensure schema failed: %v", err)
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRange
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest

	cg, err := sarama.NewConsumerGroup(strings.Split(*brokers, ","), *group, cfg)
	if err != nil {
		log.Fatalf("consumer group init failed: %v", err)
	}
	defer func() { _ = cg.Close() }()

	h := archiver.NewHandler(pg)

	log.Printf("[archiver] start: topic=%s group=%s brokers=%s", *topic, *group, *brokers)

	for ctx.Err() == nil {
		if err := cg.Consume(ctx, []string{*topic}, h); err != nil {
			log.Printf("[archiver] consume err: %v", err)
			time.Sleep(300 * time.Millisecond)
		}
	}
	log.Printf("[archiver] exit: %v", ctx.Err())
}
