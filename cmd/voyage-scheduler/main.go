// Package main provides the Voyage scheduler: it redelivers due delay
// resumes, fires scheduled triggers, and runs the staleness sweep.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/urfave/cli/v3"
	"github.com/voyage-hq/voyage/pkg/cmd"
	"github.com/voyage-hq/voyage/pkg/execution"
	"github.com/voyage-hq/voyage/pkg/log"
	"github.com/voyage-hq/voyage/pkg/otelhelper"
	"github.com/voyage-hq/voyage/pkg/scheduler"
	"github.com/voyage-hq/voyage/pkg/trigger"
)

func main() {
	command := &cli.Command{
		Name:                  "voyage-scheduler",
		EnableShellCompletion: true,
		Usage:                 "Deliver delay resumes, fire scheduled triggers, and sweep stalled executions",
		Flags: []cli.Flag{
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
			&cli.DurationFlag{
				Name:    "poll-interval",
				Usage:   "How often due resume schedules are delivered",
				Value:   scheduler.DefaultPollInterval,
				Sources: cli.EnvVars("POLL_INTERVAL"),
			},
			&cli.DurationFlag{
				Name:    "sweep-interval",
				Usage:   "How often the staleness sweep runs",
				Value:   scheduler.DefaultSweepInterval,
				Sources: cli.EnvVars("SWEEP_INTERVAL"),
			},
			&cli.DurationFlag{
				Name:    "stale-after",
				Usage:   "How long a running step may sit before the sweep reclaims it",
				Value:   execution.DefaultStaleAfter,
				Sources: cli.EnvVars("STALE_AFTER"),
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

			logger := log.WithModule("voyage-scheduler")

			logger.InfoContext(ctx, "Initializing Voyage scheduler")

			tracerProvider, err := otelhelper.InitTracer(ctx, "voyage-scheduler")
			if err != nil {
				logger.ErrorContext(ctx, "Failed to initialize tracer", "error", err)

				return err
			}
			defer func() {
				if err := tracerProvider.Shutdown(context.Background()); err != nil {
					logger.ErrorContext(ctx, "Failed to shut down tracer", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), "voyage-scheduler", logger)
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

			sweeper := execution.NewSweeper(persistence, eventBus, command.Duration("stale-after"), logger)
			matcher := trigger.NewMatcher(persistence, logger)
			sched := scheduler.NewScheduler(
				persistence,
				eventBus,
				sweeper,
				matcher,
				command.Duration("poll-interval"),
				command.Duration("sweep-interval"),
				logger,
			)

			if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.ErrorContext(ctx, "Scheduler stopped with error", "error", err)

				return err
			}

			return nil
		},
	}

	// Context cancellation on SIGINT/SIGTERM is the scheduler's shutdown
	// path.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := command.Run(ctx, os.Args)
	if err != nil {
		panic(err)
	}
}
