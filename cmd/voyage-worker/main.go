// Package main provides the Voyage worker: it consumes contact and engine
// events and advances journey executions.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
	"github.com/voyage-hq/voyage/pkg/cmd"
	"github.com/voyage-hq/voyage/pkg/dispatcher"
	"github.com/voyage-hq/voyage/pkg/execution"
	"github.com/voyage-hq/voyage/pkg/log"
	"github.com/voyage-hq/voyage/pkg/otelhelper"
	"github.com/voyage-hq/voyage/pkg/trigger"
)

func main() {
	command := &cli.Command{
		Name:                  "voyage-worker",
		EnableShellCompletion: true,
		Usage:                 "Start workers to run journey executions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus type (kafka, gochannel)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the idempotency store (in-memory if empty)",
				Value:   "",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.DurationFlag{
				Name:    "idempotency-ttl",
				Usage:   "How long processed event keys are remembered",
				Value:   24 * time.Hour,
				Sources: cli.EnvVars("IDEMPOTENCY_TTL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("voyage-worker").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing Voyage worker")

			tracerProvider, err := otelhelper.InitTracer(ctx, "voyage-worker")
			if err != nil {
				logger.ErrorContext(ctx, "Failed to initialize tracer", "error", err)

				return err
			}
			defer func() {
				if err := tracerProvider.Shutdown(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to shut down tracer", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), "voyage-worker", logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			store := cmd.NewIdempotencyStore(ctx, logger, command.String("redis-url"), command.Duration("idempotency-ttl"))
			defer func() {
				if err := store.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close idempotency store", "error", err)
				}
			}()

			matcher := trigger.NewMatcher(persistence, logger)
			executor := execution.NewExecutor(persistence, eventBus, execution.DefaultRetryPolicy(), logger)
			worker := dispatcher.NewDispatcher(eventBus, matcher, executor, store, logger)

			if err := worker.Start(ctx); err != nil {
				logger.ErrorContext(ctx, "Failed to start worker", "error", err)

				return err
			}

			logger.InfoContext(ctx, "Worker started successfully")

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			<-sigChan
			logger.InfoContext(ctx, "Shutting down worker...")

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
