// Command streamconsumer runs the transactional stream-consumer engine: it
// wires configuration, logging, the broker and document-store connections,
// the handler registry, and the supervisor, then blocks until a shutdown
// signal arrives.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chris-alexander-pop/system-design-library/cmd/streamconsumer/handlers"
	"github.com/chris-alexander-pop/system-design-library/pkg/broker"
	brokerredis "github.com/chris-alexander-pop/system-design-library/pkg/broker/adapters/redis"
	"github.com/chris-alexander-pop/system-design-library/pkg/config"
	"github.com/chris-alexander-pop/system-design-library/pkg/docstore"
	"github.com/chris-alexander-pop/system-design-library/pkg/logger"
	"github.com/chris-alexander-pop/system-design-library/pkg/registry"
	"github.com/chris-alexander-pop/system-design-library/pkg/supervisor"
)

func main() {
	var settings config.Settings
	if err := config.Load(&settings); err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(1)
	}

	log := logger.Init(logger.Config{
		Level:        settings.LogLevel,
		Format:       settings.LogFormat,
		SamplingRate: 1.0,
		Async:        true,
		Redact:       true,
	})

	reg := registry.New()
	handlers.Register(reg)

	consumerID := fmt.Sprintf("streamconsumer-%d-%s", os.Getpid(), time.Now().UTC().Format("20060102150405"))

	sup := supervisor.New(
		brokerFactory(settings),
		storeFactory(settings),
		reg,
		supervisorConfig(settings),
		log,
		consumerID,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting stream consumer", "consumer_id", consumerID)
	if err := sup.Run(ctx); err != nil {
		log.Error("stream consumer exited with error", "error", err.Error())
		os.Exit(1)
	}
	log.Info("stream consumer stopped")
}

func brokerFactory(settings config.Settings) supervisor.BrokerFactory {
	return func(ctx context.Context) (broker.Broker, error) {
		return brokerredis.New(ctx, brokerredis.Config{URL: settings.RedisURL})
	}
}

func storeFactory(settings config.Settings) supervisor.StoreFactory {
	return func(ctx context.Context) (supervisor.Store, error) {
		return docstore.Connect(ctx, docstore.Config{URI: settings.DatabaseURI, Database: settings.DBName})
	}
}

func supervisorConfig(settings config.Settings) supervisor.Config {
	cfg := supervisor.DefaultConfig()
	cfg.InboxStream = settings.InboxStream
	cfg.InternalStream = settings.InternalStream
	cfg.DLQStream = settings.DLQStream
	cfg.ConsumerGroup = settings.ConsumerGroup
	cfg.BatchSize = settings.BatchSize
	cfg.BlockTimeout = time.Duration(settings.BlockTimeoutMS) * time.Millisecond
	cfg.MaxRetries = settings.MaxRetries
	cfg.DedupTTL = time.Duration(settings.DedupTTLSeconds) * time.Second
	return cfg
}
