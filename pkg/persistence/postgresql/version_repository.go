package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/voyage-hq/voyage/pkg/models"
	"github.com/voyage-hq/voyage/pkg/persistence"
)

// VersionRepository stores immutable published journey versions. The frozen
// graph is one JSONB document; versions are never updated after insert.
type VersionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewVersionRepository(db *sql.DB, logger *slog.Logger) *VersionRepository {
	return &VersionRepository{db: db, logger: logger}
}

func (r *VersionRepository) Save(ctx context.Context, version *models.JourneyVersion) error {
	definitionJSON, err := json.Marshal(version.Definition)
	if err != nil {
		return fmt.Errorf("failed to marshal version definition: %w", err)
	}

	query := `
		INSERT INTO journey_versions (id, journey_id, organization_id, version_number, definition, published_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err = r.db.ExecContext(ctx, query,
		version.ID,
		version.JourneyID,
		version.OrganizationID,
		version.VersionNumber,
		definitionJSON,
		version.PublishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save journey version: %w", err)
	}

	return nil
}

func (r *VersionRepository) GetByID(ctx context.Context, id string) (*models.JourneyVersion, error) {
	query := `
		SELECT id, journey_id, organization_id, version_number, definition, published_at
		FROM journey_versions
		WHERE id = $1
	`

	return r.scanVersion(r.db.QueryRowContext(ctx, query, id))
}

func (r *VersionRepository) LatestByJourney(ctx context.Context, journeyID string) (*models.JourneyVersion, error) {
	query := `
		SELECT id, journey_id, organization_id, version_number, definition, published_at
		FROM journey_versions
		WHERE journey_id = $1
		ORDER BY version_number DESC
		LIMIT 1
	`

	return r.scanVersion(r.db.QueryRowContext(ctx, query, journeyID))
}

func (r *VersionRepository) MaxVersionNumber(ctx context.Context, journeyID string) (int, error) {
	var max int

	err := r.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version_number), 0) FROM journey_versions WHERE journey_id = $1",
		journeyID).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("failed to query max version number: %w", err)
	}

	return max, nil
}

func (r *VersionRepository) scanVersion(row *sql.Row) (*models.JourneyVersion, error) {
	var (
		version        models.JourneyVersion
		definitionJSON []byte
	)

	err := row.Scan(
		&version.ID,
		&version.JourneyID,
		&version.OrganizationID,
		&version.VersionNumber,
		&definitionJSON,
		&version.PublishedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrVersionNotFound
		}

		return nil, fmt.Errorf("failed to scan journey version: %w", err)
	}

	if err := json.Unmarshal(definitionJSON, &version.Definition); err != nil {
		return nil, fmt.Errorf("failed to unmarshal version definition: %w", err)
	}

	return &version, nil
}
