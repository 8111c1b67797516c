package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OFFIS-RIT/lexgraph/internal/bootstrap"
	"github.com/OFFIS-RIT/lexgraph/internal/config"
	"github.com/OFFIS-RIT/lexgraph/internal/metrics"
	"github.com/OFFIS-RIT/lexgraph/internal/queue"
	"github.com/OFFIS-RIT/lexgraph/internal/timing"
	"github.com/OFFIS-RIT/lexgraph/internal/util"
	"github.com/OFFIS-RIT/lexgraph/pkg/leaselock"
	"github.com/OFFIS-RIT/lexgraph/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	bootstrap.InitLogger(cfg, "worker")
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", "err", err)
	}

	gen, aiClient, err := bootstrap.NewGenerator(cfg.AI)
	if err != nil {
		logger.Fatal("Could not create AI client", "err", err)
	}

	ingester := &bootstrap.Ingester{
		Config:    cfg,
		Generator: gen,
	}

	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = bootstrap.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("Unable to connect to database", "err", err)
		}
		defer pool.Close()
		ingester.Locker = leaselock.New(pool).Guard(leaselock.Options{Wait: true})
	}

	registry, err := bootstrap.NewRegistry(ctx, cfg.Catalog, pool)
	if err != nil {
		logger.Fatal("Could not load type catalog", "err", err)
	}
	ingester.Registry = registry
	ingester.Storage, err = bootstrap.NewGraphStorage(ctx, cfg.Graph, registry)
	if err != nil {
		logger.Fatal("Could not open graph storage", "err", err)
	}
	defer ingester.Storage.Close(context.Background())
	bootstrap.SetupGraphSchema(ctx, ingester.Storage)
	if cfg.Catalog.Source != config.CatalogStatic {
		go func() {
			if err := registry.Watch(ctx, cfg.Catalog.ReloadInterval); err != nil && ctx.Err() == nil {
				logger.Warn("Catalog watch stopped", "err", err)
			}
		}()
	}

	files, err := bootstrap.NewFileLoader(ctx, cfg.S3)
	if err != nil {
		logger.Fatal("Could not create file loader", "err", err)
	}
	ingester.Files = files

	conn, err := queue.Dial(cfg.RabbitMQ)
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", "err", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch, []string{queue.IngestQueue}); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	// One ingest at a time per worker; parallelism lives inside a run.
	if err := ch.Qos(1, 0, false); err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	msgs, err := ch.Consume(
		queue.IngestQueue,
		queue.IngestQueue+"_consumer",
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,   // args
	)
	if err != nil {
		logger.Fatal("Failed to start consuming", "queue", queue.IngestQueue, "err", err)
	}

	logger.Info("Listening for messages", "queue", queue.IngestQueue)
	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutdown signal received, exiting...")
			return
		case msg, ok := <-msgs:
			if !ok {
				logger.Info("Message channel closed", "queue", queue.IngestQueue)
				return
			}
			handle(ctx, ch, ingester, msg)

			usage := aiClient.GetMetrics()
			logger.Info(
				"AI Metrics",
				"input_tokens", usage.InputTokens,
				"output_tokens", usage.OutputTokens,
				"total_tokens", usage.TotalTokens,
				"duration", timing.FormatDuration(time.Duration(usage.DurationMs)*time.Millisecond),
			)
			aiClient.ResetMetrics()
			logger.Info("Waiting for next message")
		}
	}
}

func handle(ctx context.Context, ch *amqp.Channel, ingester *bootstrap.Ingester, msg amqp.Delivery) {
	sw := timing.NewStopwatch()
	logger.Info("Received message", "queue", queue.IngestQueue)

	err := queue.ProcessIngestMessage(ctx, ingester, msg.Body)
	if err != nil {
		logger.Error("Error processing message", "queue", queue.IngestQueue, "err", err)
		if ctx.Err() != nil {
			// shutting down; the broker redelivers, the checkpoint resumes
			_ = msg.Nack(false, true)
			return
		}
		queue.HandleProcessingError(context.WithoutCancel(ctx), ch, msg, queue.IngestQueue, err, queue.DefaultMaxRetries)
		return
	}

	if err := msg.Ack(false); err != nil {
		logger.Error("Failed to ack message", "err", err)
	}
	metrics.QueueMessages.WithLabelValues(queue.IngestQueue, "ack").Inc()
	logger.Info("Message processed successfully", "queue", queue.IngestQueue, "duration", timing.FormatDuration(sw.Elapsed()))
}
