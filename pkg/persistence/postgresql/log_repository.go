package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/voyage-hq/voyage/pkg/models"
)

// LogRepository stores append-only execution logs. Rows are never updated
// or deleted individually; they go away with their execution.
type LogRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewLogRepository(db *sql.DB, logger *slog.Logger) *LogRepository {
	return &LogRepository{db: db, logger: logger}
}

func (r *LogRepository) Append(ctx context.Context, entry *models.ExecutionLog) error {
	metadataJSON, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal log metadata: %w", err)
	}

	query := `
		INSERT INTO execution_logs (id, execution_id, level, message, metadata, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err = r.db.ExecContext(ctx, query,
		entry.ID,
		entry.ExecutionID,
		entry.Level,
		entry.Message,
		metadataJSON,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append execution log: %w", err)
	}

	return nil
}

func (r *LogRepository) ByExecution(ctx context.Context, executionID string, page models.PageRequest) ([]*models.ExecutionLog, int, error) {
	page = page.Normalize()

	var total int

	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM execution_logs WHERE execution_id = $1", executionID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count execution logs: %w", err)
	}

	query := `
		SELECT id, execution_id, level, message, metadata, timestamp
		FROM execution_logs
		WHERE execution_id = $1
		ORDER BY timestamp
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, executionID, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query execution logs: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	entries := make([]*models.ExecutionLog, 0)

	for rows.Next() {
		var (
			entry        models.ExecutionLog
			metadataJSON []byte
		)

		err := rows.Scan(
			&entry.ID,
			&entry.ExecutionID,
			&entry.Level,
			&entry.Message,
			&metadataJSON,
			&entry.Timestamp,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan execution log: %w", err)
		}

		if metadataJSON != nil {
			if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
				return nil, 0, fmt.Errorf("failed to unmarshal log metadata: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating execution logs: %w", err)
	}

	return entries, total, nil
}
