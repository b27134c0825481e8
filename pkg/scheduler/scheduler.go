// Package scheduler turns stored resume schedules back into ResumeStep
// messages and runs the periodic staleness sweep.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/voyage-hq/voyage/pkg/eventbus"
	"github.com/voyage-hq/voyage/pkg/events"
	"github.com/voyage-hq/voyage/pkg/execution"
	"github.com/voyage-hq/voyage/pkg/models"
	"github.com/voyage-hq/voyage/pkg/persistence"
	"github.com/voyage-hq/voyage/pkg/trigger"
)

const (
	DefaultPollInterval  = 10 * time.Second
	DefaultSweepInterval = 5 * time.Minute
)

// Scheduler delivers each due schedule at least once. The schedule is
// marked delivered only after the publish succeeds, so a crash in between
// redelivers; the executor drops resumes for steps that already settled.
// It also fires cron occurrences of scheduled triggers: each polling pass
// evaluates every active journey's scheduled triggers against the window
// since the previous pass.
type Scheduler struct {
	persistence   persistence.Persistence
	publisher     eventbus.EventPublisher
	sweeper       *execution.Sweeper
	matcher       *trigger.Matcher
	pollInterval  time.Duration
	sweepInterval time.Duration
	logger        *slog.Logger

	lastCronPass time.Time
}

func NewScheduler(p persistence.Persistence, publisher eventbus.EventPublisher, sweeper *execution.Sweeper, matcher *trigger.Matcher, pollInterval, sweepInterval time.Duration, logger *slog.Logger) *Scheduler {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}

	return &Scheduler{
		persistence:   p,
		publisher:     publisher,
		sweeper:       sweeper,
		matcher:       matcher,
		pollInterval:  pollInterval,
		sweepInterval: sweepInterval,
		logger:        logger.With("module", "scheduler"),
		lastCronPass:  time.Now().UTC(),
	}
}

// Start blocks until the context is canceled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Scheduler starting",
		"poll_interval", s.pollInterval, "sweep_interval", s.sweepInterval)

	pollTicker := time.NewTicker(s.pollInterval)
	defer pollTicker.Stop()

	sweepTicker := time.NewTicker(s.sweepInterval)
	defer sweepTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "Scheduler stopping")

			return ctx.Err()
		case <-pollTicker.C:
			if err := s.DeliverDue(ctx); err != nil {
				s.logger.ErrorContext(ctx, "Resume delivery pass failed", "error", err)
			}

			if err := s.FireScheduledTriggers(ctx, time.Now().UTC()); err != nil {
				s.logger.ErrorContext(ctx, "Scheduled trigger pass failed", "error", err)
			}
		case <-sweepTicker.C:
			if err := s.sweeper.Sweep(ctx); err != nil {
				s.logger.ErrorContext(ctx, "Staleness sweep failed", "error", err)
			}
		}
	}
}

// DeliverDue publishes a ResumeStep for every schedule at or past its
// resume time. Failures on individual schedules are logged and retried on
// the next poll.
func (s *Scheduler) DeliverDue(ctx context.Context) error {
	due, err := s.persistence.Schedules().Due(ctx, time.Now().UTC())
	if err != nil {
		return err
	}

	for _, schedule := range due {
		if err := s.deliver(ctx, schedule); err != nil {
			s.logger.ErrorContext(ctx, "Failed to deliver resume",
				"schedule_id", schedule.ID, "execution_id", schedule.ExecutionID, "error", err)
		}
	}

	return nil
}

// FireScheduledTriggers starts executions for every scheduled trigger whose
// cron expression has an occurrence in the window since the previous pass.
// The window advances even when individual journeys fail, so a bad cron
// expression on one journey never wedges the others; missed occurrences
// within one window collapse into a single fire.
func (s *Scheduler) FireScheduledTriggers(ctx context.Context, now time.Time) error {
	since := s.lastCronPass
	s.lastCronPass = now

	journeys, err := s.persistence.Journeys().ActiveScheduledJourneys(ctx)
	if err != nil {
		return err
	}

	for _, journey := range journeys {
		for _, tr := range journey.Triggers {
			if tr.Type != models.TriggerTypeScheduled {
				continue
			}

			if err := s.fireTrigger(ctx, journey, tr, since, now); err != nil {
				s.logger.ErrorContext(ctx, "Failed to fire scheduled trigger",
					"journey_id", journey.ID, "trigger_id", tr.ID, "error", err)
			}
		}
	}

	return nil
}

func (s *Scheduler) fireTrigger(ctx context.Context, journey *models.Journey, tr *models.Trigger, since, now time.Time) error {
	config, err := models.DecodeScheduledTriggerConfig(tr.Config)
	if err != nil {
		return err
	}

	occurrence, err := config.NextOccurrence(since)
	if err != nil {
		return err
	}

	if occurrence.After(now) {
		return nil
	}

	startEvents, err := s.matcher.StartScheduled(ctx, journey, tr, occurrence)
	if err != nil {
		return err
	}

	for _, event := range startEvents {
		if err := s.publisher.Publish(ctx, journey.ID, event); err != nil {
			return err
		}
	}

	s.logger.InfoContext(ctx, "Fired scheduled trigger",
		"journey_id", journey.ID, "trigger_id", tr.ID,
		"occurrence", occurrence, "events", len(startEvents))

	return nil
}

func (s *Scheduler) deliver(ctx context.Context, schedule *models.ResumeSchedule) error {
	event := events.ResumeStep{
		BaseEvent:   events.NewBaseEvent(events.ResumeStepEvent, schedule.OrganizationID, ""),
		ExecutionID: schedule.ExecutionID,
		StepID:      schedule.StepID,
	}

	if err := s.publisher.Publish(ctx, schedule.ExecutionID, event); err != nil {
		return err
	}

	if err := s.persistence.Schedules().MarkDelivered(ctx, schedule.ID); err != nil {
		return err
	}

	s.logger.DebugContext(ctx, "Resume delivered",
		"schedule_id", schedule.ID, "execution_id", schedule.ExecutionID, "step_id", schedule.StepID)

	return nil
}
