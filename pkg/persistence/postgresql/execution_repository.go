package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/voyage-hq/voyage/pkg/models"
	"github.com/voyage-hq/voyage/pkg/persistence"
)

// ExecutionRepository handles execution and step execution storage.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

// CreateIfNoneActive inserts the execution unless an active one already
// exists for its (journey, contact) pair. The race resolves on the partial
// unique index, not on application locks.
func (r *ExecutionRepository) CreateIfNoneActive(ctx context.Context, execution *models.Execution) (bool, error) {
	query := `
		INSERT INTO executions (id, journey_id, version_id, organization_id, contact_id, status, current_step_id, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (journey_id, contact_id) WHERE status = 'active' DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, query,
		execution.ID,
		execution.JourneyID,
		execution.VersionID,
		execution.OrganizationID,
		execution.ContactID,
		execution.Status,
		execution.CurrentStepID,
		execution.StartedAt,
		execution.CompletedAt,
	)
	if err != nil {
		return false, persistence.NewExecutionError("create", execution.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	query := executionSelect + " WHERE id = $1"

	execution, err := scanExecution(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("get", id, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return execution, nil
}

func (r *ExecutionRepository) Update(ctx context.Context, execution *models.Execution) error {
	query := `
		UPDATE executions
		SET status = $2, current_step_id = $3, completed_at = $4
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		execution.ID,
		execution.Status,
		execution.CurrentStepID,
		execution.CompletedAt,
	)
	if err != nil {
		return persistence.NewExecutionError("update", execution.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewExecutionError("update", execution.ID, persistence.ErrExecutionNotFound)
	}

	return nil
}

func (r *ExecutionRepository) ActiveByJourneyAndContact(ctx context.Context, journeyID, contactID string) (*models.Execution, error) {
	query := executionSelect + " WHERE journey_id = $1 AND contact_id = $2 AND status = 'active'"

	execution, err := scanExecution(r.db.QueryRowContext(ctx, query, journeyID, contactID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrExecutionNotFound
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return execution, nil
}

func (r *ExecutionRepository) ActiveByContact(ctx context.Context, organizationID, contactID string) ([]*models.Execution, error) {
	query := executionSelect + `
		WHERE organization_id = $1 AND contact_id = $2 AND status = 'active'
		ORDER BY started_at
	`

	rows, err := r.db.QueryContext(ctx, query, organizationID, contactID)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer r.closeRows(ctx, rows)

	return collectExecutions(rows)
}

func (r *ExecutionRepository) List(ctx context.Context, organizationID string, status *models.ExecutionStatus, page models.PageRequest) ([]*models.Execution, int, error) {
	page = page.Normalize()

	countQuery := "SELECT COUNT(*) FROM executions WHERE organization_id = $1"
	listQuery := executionSelect + " WHERE organization_id = $1"
	args := []any{organizationID}

	if status != nil {
		countQuery += " AND status = $2"
		listQuery += " AND status = $2"
		args = append(args, *status)
	}

	var total int

	err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count executions: %w", err)
	}

	listQuery += fmt.Sprintf(" ORDER BY started_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, page.Limit, page.Offset())

	rows, err := r.db.QueryContext(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query executions: %w", err)
	}

	defer r.closeRows(ctx, rows)

	executions, err := collectExecutions(rows)
	if err != nil {
		return nil, 0, err
	}

	return executions, total, nil
}

func (r *ExecutionRepository) SaveStep(ctx context.Context, step *models.StepExecution) error {
	resultJSON, err := json.Marshal(step.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal step result: %w", err)
	}

	query := `
		INSERT INTO step_executions (id, execution_id, step_id, status, attempts, result, error, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			attempts = EXCLUDED.attempts,
			result = EXCLUDED.result,
			error = EXCLUDED.error,
			completed_at = EXCLUDED.completed_at
	`

	_, err = r.db.ExecContext(ctx, query,
		step.ID,
		step.ExecutionID,
		step.StepID,
		step.Status,
		step.Attempts,
		resultJSON,
		step.Error,
		step.StartedAt,
		step.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save step execution: %w", err)
	}

	return nil
}

func (r *ExecutionRepository) StepByID(ctx context.Context, id string) (*models.StepExecution, error) {
	query := stepExecutionSelect + " WHERE id = $1"

	step, err := scanStepExecution(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrStepExecutionNotFound
		}

		return nil, fmt.Errorf("failed to scan step execution: %w", err)
	}

	return step, nil
}

func (r *ExecutionRepository) StepsByExecution(ctx context.Context, executionID string) ([]*models.StepExecution, error) {
	query := stepExecutionSelect + " WHERE execution_id = $1 ORDER BY started_at"

	rows, err := r.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query step executions: %w", err)
	}

	defer r.closeRows(ctx, rows)

	return collectStepExecutions(rows)
}

func (r *ExecutionRepository) LatestStep(ctx context.Context, executionID, stepID string) (*models.StepExecution, error) {
	query := stepExecutionSelect + `
		WHERE execution_id = $1 AND step_id = $2
		ORDER BY started_at DESC
		LIMIT 1
	`

	step, err := scanStepExecution(r.db.QueryRowContext(ctx, query, executionID, stepID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrStepExecutionNotFound
		}

		return nil, fmt.Errorf("failed to scan step execution: %w", err)
	}

	return step, nil
}

func (r *ExecutionRepository) StalledSteps(ctx context.Context, cutoff time.Time) ([]*models.StepExecution, error) {
	query := stepExecutionSelect + `
		WHERE status = 'pending' OR (status = 'running' AND started_at < $1)
		ORDER BY started_at
	`

	rows, err := r.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query stalled steps: %w", err)
	}

	defer r.closeRows(ctx, rows)

	return collectStepExecutions(rows)
}

func (r *ExecutionRepository) closeRows(ctx context.Context, rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}

const executionSelect = `
	SELECT
		id
	  , journey_id
	  , version_id
	  , organization_id
	  , contact_id
	  , status
	  , current_step_id
	  , started_at
	  , completed_at
	FROM executions
`

const stepExecutionSelect = `
	SELECT
		id
	  , execution_id
	  , step_id
	  , status
	  , attempts
	  , result
	  , error
	  , started_at
	  , completed_at
	FROM step_executions
`

func scanExecution(row rowScanner) (*models.Execution, error) {
	var (
		execution   models.Execution
		completedAt sql.NullTime
	)

	err := row.Scan(
		&execution.ID,
		&execution.JourneyID,
		&execution.VersionID,
		&execution.OrganizationID,
		&execution.ContactID,
		&execution.Status,
		&execution.CurrentStepID,
		&execution.StartedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		execution.CompletedAt = &completedAt.Time
	}

	return &execution, nil
}

func collectExecutions(rows *sql.Rows) ([]*models.Execution, error) {
	executions := make([]*models.Execution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

func scanStepExecution(row rowScanner) (*models.StepExecution, error) {
	var (
		step        models.StepExecution
		resultJSON  []byte
		errorText   sql.NullString
		completedAt sql.NullTime
	)

	err := row.Scan(
		&step.ID,
		&step.ExecutionID,
		&step.StepID,
		&step.Status,
		&step.Attempts,
		&resultJSON,
		&errorText,
		&step.StartedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if resultJSON != nil {
		if err := json.Unmarshal(resultJSON, &step.Result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal step result: %w", err)
		}
	}

	if errorText.Valid {
		step.Error = errorText.String
	}

	if completedAt.Valid {
		step.CompletedAt = &completedAt.Time
	}

	return &step, nil
}

func collectStepExecutions(rows *sql.Rows) ([]*models.StepExecution, error) {
	steps := make([]*models.StepExecution, 0)

	for rows.Next() {
		step, err := scanStepExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step execution: %w", err)
		}

		steps = append(steps, step)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating step executions: %w", err)
	}

	return steps, nil
}
