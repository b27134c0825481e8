package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE journeys (
				id UUID PRIMARY KEY,
				organization_id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('draft', 'active', 'paused', 'archived')),
				created_by VARCHAR(255),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				archived_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_journeys_organization ON journeys(organization_id);
			CREATE INDEX idx_journeys_org_status ON journeys(organization_id, status);
			CREATE INDEX idx_journeys_created_at ON journeys(created_at);

			CREATE TABLE journey_steps (
				journey_id UUID NOT NULL REFERENCES journeys(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				step_type VARCHAR(50) NOT NULL,
				config JSONB DEFAULT '{}',
				position_x INT DEFAULT 0,
				position_y INT DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (journey_id, id)
			);

			CREATE INDEX idx_journey_steps_journey ON journey_steps(journey_id);

			CREATE TABLE journey_connections (
				journey_id UUID NOT NULL REFERENCES journeys(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				from_step_id VARCHAR(255) NOT NULL,
				to_step_id VARCHAR(255) NOT NULL,
				label VARCHAR(50) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (journey_id, id)
			);

			CREATE INDEX idx_journey_connections_journey ON journey_connections(journey_id);

			CREATE TABLE journey_triggers (
				journey_id UUID NOT NULL REFERENCES journeys(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				trigger_type VARCHAR(50) NOT NULL,
				config JSONB DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (journey_id, id)
			);

			CREATE INDEX idx_journey_triggers_type ON journey_triggers(trigger_type);
		`,
		2: `
			-- Published versions freeze the whole graph as one document so
			-- running executions never observe later edits.
			CREATE TABLE journey_versions (
				id UUID PRIMARY KEY,
				journey_id UUID NOT NULL REFERENCES journeys(id) ON DELETE CASCADE,
				organization_id VARCHAR(255) NOT NULL,
				version_number INT NOT NULL,
				definition JSONB NOT NULL,
				published_at TIMESTAMP WITH TIME ZONE NOT NULL,
				UNIQUE (journey_id, version_number)
			);

			CREATE INDEX idx_journey_versions_journey ON journey_versions(journey_id, version_number DESC);
		`,
		3: `
			CREATE TABLE executions (
				id UUID PRIMARY KEY,
				journey_id UUID NOT NULL,
				version_id UUID NOT NULL REFERENCES journey_versions(id),
				organization_id VARCHAR(255) NOT NULL,
				contact_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('active', 'completed', 'failed', 'canceled')),
				current_step_id VARCHAR(255) NOT NULL DEFAULT '',
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			-- The single-active-execution invariant: the conditional insert
			-- races resolve on this index.
			CREATE UNIQUE INDEX idx_executions_one_active
				ON executions(journey_id, contact_id) WHERE status = 'active';

			CREATE INDEX idx_executions_org_status ON executions(organization_id, status);
			CREATE INDEX idx_executions_contact ON executions(organization_id, contact_id);
			CREATE INDEX idx_executions_started_at ON executions(started_at);

			CREATE TABLE step_executions (
				id UUID PRIMARY KEY,
				execution_id UUID NOT NULL REFERENCES executions(id) ON DELETE CASCADE,
				step_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL,
				attempts INT NOT NULL DEFAULT 0,
				result JSONB,
				error TEXT,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_step_executions_execution ON step_executions(execution_id, step_id, started_at DESC);
			CREATE INDEX idx_step_executions_unsettled
				ON step_executions(started_at) WHERE status IN ('pending', 'running');

			CREATE TABLE execution_logs (
				id UUID PRIMARY KEY,
				execution_id UUID NOT NULL REFERENCES executions(id) ON DELETE CASCADE,
				level VARCHAR(20) NOT NULL,
				message TEXT NOT NULL,
				metadata JSONB,
				timestamp TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_execution_logs_execution ON execution_logs(execution_id, timestamp);

			CREATE TABLE resume_schedules (
				id UUID PRIMARY KEY,
				execution_id UUID NOT NULL REFERENCES executions(id) ON DELETE CASCADE,
				step_id VARCHAR(255) NOT NULL,
				organization_id VARCHAR(255) NOT NULL,
				resume_at TIMESTAMP WITH TIME ZONE NOT NULL,
				delivered BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_resume_schedules_due
				ON resume_schedules(resume_at) WHERE NOT delivered;
			CREATE INDEX idx_resume_schedules_execution ON resume_schedules(execution_id);
		`,
	}
}
