package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/voyage-hq/voyage/pkg/models"
	"github.com/voyage-hq/voyage/pkg/persistence"
)

// ScheduleRepository stores delay-step resume schedules.
type ScheduleRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewScheduleRepository(db *sql.DB, logger *slog.Logger) *ScheduleRepository {
	return &ScheduleRepository{db: db, logger: logger}
}

func (r *ScheduleRepository) Save(ctx context.Context, schedule *models.ResumeSchedule) error {
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO resume_schedules (id, execution_id, step_id, organization_id, resume_at, delivered, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		schedule.ID,
		schedule.ExecutionID,
		schedule.StepID,
		schedule.OrganizationID,
		schedule.ResumeAt,
		schedule.Delivered,
		schedule.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save resume schedule: %w", err)
	}

	return nil
}

func (r *ScheduleRepository) Due(ctx context.Context, now time.Time) ([]*models.ResumeSchedule, error) {
	query := `
		SELECT id, execution_id, step_id, organization_id, resume_at, delivered, created_at
		FROM resume_schedules
		WHERE NOT delivered AND resume_at <= $1
		ORDER BY resume_at
	`

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query due schedules: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	schedules := make([]*models.ResumeSchedule, 0)

	for rows.Next() {
		var schedule models.ResumeSchedule

		err := rows.Scan(
			&schedule.ID,
			&schedule.ExecutionID,
			&schedule.StepID,
			&schedule.OrganizationID,
			&schedule.ResumeAt,
			&schedule.Delivered,
			&schedule.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resume schedule: %w", err)
		}

		schedules = append(schedules, &schedule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating resume schedules: %w", err)
	}

	return schedules, nil
}

func (r *ScheduleRepository) MarkDelivered(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE resume_schedules SET delivered = TRUE WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to mark schedule delivered: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.ErrScheduleNotFound
	}

	return nil
}

func (r *ScheduleRepository) DeleteByExecution(ctx context.Context, executionID string) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM resume_schedules WHERE execution_id = $1", executionID)
	if err != nil {
		return fmt.Errorf("failed to delete resume schedules: %w", err)
	}

	return nil
}
