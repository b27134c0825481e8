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

// JourneyRepository handles journey-related database operations.
type JourneyRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewJourneyRepository(db *sql.DB, logger *slog.Logger) *JourneyRepository {
	return &JourneyRepository{db: db, logger: logger}
}

func (r *JourneyRepository) List(ctx context.Context, organizationID string, page models.PageRequest) ([]*models.Journey, int, error) {
	page = page.Normalize()

	var total int

	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM journeys WHERE organization_id = $1", organizationID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count journeys: %w", err)
	}

	query := `
		SELECT
			id
		  , organization_id
		  , name
		  , status
		  , created_by
		  , created_at
		  , updated_at
		  , archived_at
		FROM journeys
		WHERE organization_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, organizationID, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query journeys: %w", err)
	}

	defer r.closeRows(ctx, rows)

	journeys := make([]*models.Journey, 0)

	for rows.Next() {
		journey, err := scanJourney(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan journey: %w", err)
		}

		if err := r.loadGraph(ctx, journey); err != nil {
			return nil, 0, err
		}

		journeys = append(journeys, journey)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating journeys: %w", err)
	}

	return journeys, total, nil
}

func (r *JourneyRepository) GetByID(ctx context.Context, organizationID, id string) (*models.Journey, error) {
	query := `
		SELECT
			id
		  , organization_id
		  , name
		  , status
		  , created_by
		  , created_at
		  , updated_at
		  , archived_at
		FROM journeys
		WHERE organization_id = $1 AND id = $2
	`

	row := r.db.QueryRowContext(ctx, query, organizationID, id)

	journey, err := scanJourney(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewJourneyError("get", id, persistence.ErrJourneyNotFound)
		}

		return nil, fmt.Errorf("failed to scan journey: %w", err)
	}

	if err := r.loadGraph(ctx, journey); err != nil {
		return nil, err
	}

	return journey, nil
}

// Save upserts the journey base row and rewrites its draft graph in one
// transaction.
func (r *JourneyRepository) Save(ctx context.Context, journey *models.Journey) error {
	now := time.Now().UTC()

	if journey.CreatedAt.IsZero() {
		journey.CreatedAt = now
	}

	journey.UpdatedAt = now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	journeyQuery := `
		INSERT INTO journeys (id, organization_id, name, status, created_by, created_at, updated_at, archived_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at,
			archived_at = EXCLUDED.archived_at
	`

	_, err = tx.ExecContext(ctx, journeyQuery,
		journey.ID,
		journey.OrganizationID,
		journey.Name,
		journey.Status,
		journey.CreatedBy,
		journey.CreatedAt,
		journey.UpdatedAt,
		journey.ArchivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save journey base: %w", err)
	}

	for _, table := range []string{"journey_connections", "journey_triggers", "journey_steps"} {
		_, err = tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE journey_id = $1", journey.ID)
		if err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	err = saveGraph(ctx, tx, journey)
	if err != nil {
		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (r *JourneyRepository) Delete(ctx context.Context, organizationID, id string) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM journeys WHERE organization_id = $1 AND id = $2", organizationID, id)
	if err != nil {
		return fmt.Errorf("failed to delete journey: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewJourneyError("delete", id, persistence.ErrJourneyNotFound)
	}

	return nil
}

func (r *JourneyRepository) ActiveScheduledJourneys(ctx context.Context) ([]*models.Journey, error) {
	query := `
		SELECT DISTINCT
			j.id
		  , j.organization_id
		  , j.name
		  , j.status
		  , j.created_by
		  , j.created_at
		  , j.updated_at
		  , j.archived_at
		FROM journeys j
		JOIN journey_triggers t ON t.journey_id = j.id
		WHERE j.status = $1 AND t.trigger_type = $2
	`

	rows, err := r.db.QueryContext(ctx, query, models.JourneyStatusActive, models.TriggerTypeScheduled)
	if err != nil {
		return nil, fmt.Errorf("failed to query scheduled journeys: %w", err)
	}

	defer r.closeRows(ctx, rows)

	journeys := make([]*models.Journey, 0)

	for rows.Next() {
		journey, err := scanJourney(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan journey: %w", err)
		}

		if err := r.loadGraph(ctx, journey); err != nil {
			return nil, err
		}

		journeys = append(journeys, journey)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scheduled journeys: %w", err)
	}

	return journeys, nil
}

func (r *JourneyRepository) ActiveTriggersByType(ctx context.Context, organizationID string, triggerType models.TriggerType) ([]*models.Trigger, error) {
	query := `
		SELECT t.journey_id, t.id, t.trigger_type, t.config
		FROM journey_triggers t
		JOIN journeys j ON j.id = t.journey_id
		WHERE j.organization_id = $1 AND t.trigger_type = $2
		ORDER BY t.created_at
	`

	rows, err := r.db.QueryContext(ctx, query, organizationID, triggerType)
	if err != nil {
		return nil, fmt.Errorf("failed to query triggers: %w", err)
	}

	defer r.closeRows(ctx, rows)

	triggers := make([]*models.Trigger, 0)

	for rows.Next() {
		var (
			trigger    models.Trigger
			configJSON []byte
		)

		err := rows.Scan(&trigger.JourneyID, &trigger.ID, &trigger.Type, &configJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trigger: %w", err)
		}

		if configJSON != nil {
			if err := json.Unmarshal(configJSON, &trigger.Config); err != nil {
				return nil, fmt.Errorf("failed to unmarshal trigger config: %w", err)
			}
		}

		triggers = append(triggers, &trigger)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating triggers: %w", err)
	}

	return triggers, nil
}

func (r *JourneyRepository) loadGraph(ctx context.Context, journey *models.Journey) error {
	stepsQuery := `
		SELECT id, step_type, config, position_x, position_y
		FROM journey_steps
		WHERE journey_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, stepsQuery, journey.ID)
	if err != nil {
		return fmt.Errorf("failed to query journey steps: %w", err)
	}

	defer r.closeRows(ctx, rows)

	journey.Steps = make([]*models.Step, 0)

	for rows.Next() {
		var (
			step       models.Step
			configJSON []byte
		)

		err := rows.Scan(&step.ID, &step.Type, &configJSON, &step.PositionX, &step.PositionY)
		if err != nil {
			return fmt.Errorf("failed to scan step: %w", err)
		}

		if configJSON != nil {
			if err := json.Unmarshal(configJSON, &step.Config); err != nil {
				return fmt.Errorf("failed to unmarshal step config: %w", err)
			}
		}

		step.JourneyID = journey.ID
		journey.Steps = append(journey.Steps, &step)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating steps: %w", err)
	}

	connectionsQuery := `
		SELECT id, from_step_id, to_step_id, label
		FROM journey_connections
		WHERE journey_id = $1
		ORDER BY created_at
	`

	rows, err = r.db.QueryContext(ctx, connectionsQuery, journey.ID)
	if err != nil {
		return fmt.Errorf("failed to query journey connections: %w", err)
	}

	defer r.closeRows(ctx, rows)

	journey.Connections = make([]*models.Connection, 0)

	for rows.Next() {
		var conn models.Connection

		err := rows.Scan(&conn.ID, &conn.FromStepID, &conn.ToStepID, &conn.Label)
		if err != nil {
			return fmt.Errorf("failed to scan connection: %w", err)
		}

		journey.Connections = append(journey.Connections, &conn)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating connections: %w", err)
	}

	triggersQuery := `
		SELECT id, trigger_type, config
		FROM journey_triggers
		WHERE journey_id = $1
		ORDER BY created_at
	`

	rows, err = r.db.QueryContext(ctx, triggersQuery, journey.ID)
	if err != nil {
		return fmt.Errorf("failed to query journey triggers: %w", err)
	}

	defer r.closeRows(ctx, rows)

	journey.Triggers = make([]*models.Trigger, 0)

	for rows.Next() {
		var (
			trigger    models.Trigger
			configJSON []byte
		)

		err := rows.Scan(&trigger.ID, &trigger.Type, &configJSON)
		if err != nil {
			return fmt.Errorf("failed to scan trigger: %w", err)
		}

		if configJSON != nil {
			if err := json.Unmarshal(configJSON, &trigger.Config); err != nil {
				return fmt.Errorf("failed to unmarshal trigger config: %w", err)
			}
		}

		trigger.JourneyID = journey.ID
		journey.Triggers = append(journey.Triggers, &trigger)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating triggers: %w", err)
	}

	return nil
}

func saveGraph(ctx context.Context, tx *sql.Tx, journey *models.Journey) error {
	for _, step := range journey.Steps {
		configJSON, err := json.Marshal(step.Config)
		if err != nil {
			return fmt.Errorf("failed to marshal step config: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO journey_steps (journey_id, id, step_type, config, position_x, position_y)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, journey.ID, step.ID, step.Type, configJSON, step.PositionX, step.PositionY)
		if err != nil {
			return fmt.Errorf("failed to save step %s: %w", step.ID, err)
		}
	}

	for _, conn := range journey.Connections {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO journey_connections (journey_id, id, from_step_id, to_step_id, label)
			VALUES ($1, $2, $3, $4, $5)
		`, journey.ID, conn.ID, conn.FromStepID, conn.ToStepID, conn.Label)
		if err != nil {
			return fmt.Errorf("failed to save connection %s: %w", conn.ID, err)
		}
	}

	for _, trigger := range journey.Triggers {
		configJSON, err := json.Marshal(trigger.Config)
		if err != nil {
			return fmt.Errorf("failed to marshal trigger config: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO journey_triggers (journey_id, id, trigger_type, config)
			VALUES ($1, $2, $3, $4)
		`, journey.ID, trigger.ID, trigger.Type, configJSON)
		if err != nil {
			return fmt.Errorf("failed to save trigger %s: %w", trigger.ID, err)
		}
	}

	return nil
}

func (r *JourneyRepository) closeRows(ctx context.Context, rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJourney(row rowScanner) (*models.Journey, error) {
	var (
		journey    models.Journey
		archivedAt sql.NullTime
	)

	err := row.Scan(
		&journey.ID,
		&journey.OrganizationID,
		&journey.Name,
		&journey.Status,
		&journey.CreatedBy,
		&journey.CreatedAt,
		&journey.UpdatedAt,
		&archivedAt,
	)
	if err != nil {
		return nil, err
	}

	if archivedAt.Valid {
		journey.ArchivedAt = &archivedAt.Time
	}

	return &journey, nil
}
