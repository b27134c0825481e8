// Package postgresql provides the PostgreSQL persistence implementation for
// journeys, versions, executions and logs.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq" // postgres driver
	"github.com/voyage-hq/voyage/pkg/persistence"
	"github.com/voyage-hq/voyage/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger

	journeys   *JourneyRepository
	versions   *VersionRepository
	executions *ExecutionRepository
	logs       *LogRepository
	schedules  *ScheduleRepository
}

// NewPersistence opens the database, runs migrations and wires the
// repositories.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:         database,
		logger:     logger,
		journeys:   NewJourneyRepository(database, logger),
		versions:   NewVersionRepository(database, logger),
		executions: NewExecutionRepository(database, logger),
		logs:       NewLogRepository(database, logger),
		schedules:  NewScheduleRepository(database, logger),
	}, nil
}

func (p *Persistence) Journeys() persistence.JourneyRepository     { return p.journeys }
func (p *Persistence) Versions() persistence.VersionRepository     { return p.versions }
func (p *Persistence) Executions() persistence.ExecutionRepository { return p.executions }
func (p *Persistence) Logs() persistence.LogRepository             { return p.logs }
func (p *Persistence) Schedules() persistence.ScheduleRepository   { return p.schedules }

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}
