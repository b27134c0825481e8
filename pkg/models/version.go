package models

import "time"

// JourneyVersion is an immutable published snapshot of a journey's graph.
// Later draft edits never retroactively change a running execution's
// behavior because executions are pinned to the version they started on.
type JourneyVersion struct {
	ID             string    `json:"id"`
	JourneyID      string    `json:"journey_id"      validate:"required"`
	OrganizationID string    `json:"organization_id" validate:"required"`
	VersionNumber  int       `json:"version_number"  validate:"required,min=1"`
	Definition     Graph     `json:"definition"`
	PublishedAt    time.Time `json:"published_at"`
}
