// Package memory provides an in-memory persistence implementation for tests
// and local development. The conditional execution insert is guarded by the
// store mutex, mirroring the atomic conditional write a database provides.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/voyage-hq/voyage/pkg/models"
	"github.com/voyage-hq/voyage/pkg/persistence"
)

type Persistence struct {
	mu sync.RWMutex

	journeys   map[string]*models.Journey
	versions   map[string]*models.JourneyVersion
	executions map[string]*models.Execution
	steps      map[string]*models.StepExecution
	logs       map[string][]*models.ExecutionLog
	schedules  map[string]*models.ResumeSchedule
}

func NewPersistence() *Persistence {
	return &Persistence{
		journeys:   make(map[string]*models.Journey),
		versions:   make(map[string]*models.JourneyVersion),
		executions: make(map[string]*models.Execution),
		steps:      make(map[string]*models.StepExecution),
		logs:       make(map[string][]*models.ExecutionLog),
		schedules:  make(map[string]*models.ResumeSchedule),
	}
}

func (p *Persistence) Journeys() persistence.JourneyRepository     { return &journeyRepo{p} }
func (p *Persistence) Versions() persistence.VersionRepository     { return &versionRepo{p} }
func (p *Persistence) Executions() persistence.ExecutionRepository { return &executionRepo{p} }
func (p *Persistence) Logs() persistence.LogRepository             { return &logRepo{p} }
func (p *Persistence) Schedules() persistence.ScheduleRepository   { return &scheduleRepo{p} }

func (p *Persistence) HealthCheck(_ context.Context) error { return nil }

func (p *Persistence) Close(_ context.Context) error { return nil }

type journeyRepo struct{ p *Persistence }

func (r *journeyRepo) List(_ context.Context, organizationID string, page models.PageRequest) ([]*models.Journey, int, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	var all []*models.Journey

	for _, j := range r.p.journeys {
		if j.OrganizationID == organizationID {
			all = append(all, j)
		}
	}

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	page = page.Normalize()
	total := len(all)

	start := page.Offset()
	if start > total {
		start = total
	}

	end := start + page.Limit
	if end > total {
		end = total
	}

	return all[start:end], total, nil
}

func (r *journeyRepo) GetByID(_ context.Context, organizationID, id string) (*models.Journey, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	journey, ok := r.p.journeys[id]
	if !ok || journey.OrganizationID != organizationID {
		return nil, persistence.NewJourneyError("GetByID", id, persistence.ErrJourneyNotFound)
	}

	return journey, nil
}

func (r *journeyRepo) Save(_ context.Context, journey *models.Journey) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.journeys[journey.ID] = journey

	return nil
}

func (r *journeyRepo) Delete(_ context.Context, organizationID, id string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	journey, ok := r.p.journeys[id]
	if !ok || journey.OrganizationID != organizationID {
		return persistence.NewJourneyError("Delete", id, persistence.ErrJourneyNotFound)
	}

	delete(r.p.journeys, id)

	return nil
}

func (r *journeyRepo) ActiveTriggersByType(_ context.Context, organizationID string, triggerType models.TriggerType) ([]*models.Trigger, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	var triggers []*models.Trigger

	for _, journey := range r.p.journeys {
		if journey.OrganizationID != organizationID {
			continue
		}

		for _, trigger := range journey.Triggers {
			if trigger.Type == triggerType {
				triggers = append(triggers, trigger)
			}
		}
	}

	return triggers, nil
}

func (r *journeyRepo) ActiveScheduledJourneys(_ context.Context) ([]*models.Journey, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	var journeys []*models.Journey

	for _, journey := range r.p.journeys {
		if journey.Status != models.JourneyStatusActive {
			continue
		}

		for _, trigger := range journey.Triggers {
			if trigger.Type == models.TriggerTypeScheduled {
				journeys = append(journeys, journey)

				break
			}
		}
	}

	return journeys, nil
}

type versionRepo struct{ p *Persistence }

func (r *versionRepo) Save(_ context.Context, version *models.JourneyVersion) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.versions[version.ID] = version

	return nil
}

func (r *versionRepo) GetByID(_ context.Context, id string) (*models.JourneyVersion, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	version, ok := r.p.versions[id]
	if !ok {
		return nil, persistence.ErrVersionNotFound
	}

	return version, nil
}

func (r *versionRepo) LatestByJourney(_ context.Context, journeyID string) (*models.JourneyVersion, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	var latest *models.JourneyVersion

	for _, version := range r.p.versions {
		if version.JourneyID != journeyID {
			continue
		}

		if latest == nil || version.VersionNumber > latest.VersionNumber {
			latest = version
		}
	}

	if latest == nil {
		return nil, persistence.ErrVersionNotFound
	}

	return latest, nil
}

func (r *versionRepo) MaxVersionNumber(_ context.Context, journeyID string) (int, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	maxVersion := 0

	for _, version := range r.p.versions {
		if version.JourneyID == journeyID && version.VersionNumber > maxVersion {
			maxVersion = version.VersionNumber
		}
	}

	return maxVersion, nil
}

type executionRepo struct{ p *Persistence }

func (r *executionRepo) CreateIfNoneActive(_ context.Context, execution *models.Execution) (bool, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	for _, existing := range r.p.executions {
		if existing.JourneyID == execution.JourneyID &&
			existing.ContactID == execution.ContactID &&
			existing.Status == models.ExecutionStatusActive {
			return false, nil
		}
	}

	r.p.executions[execution.ID] = execution

	return true, nil
}

func (r *executionRepo) GetByID(_ context.Context, id string) (*models.Execution, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	execution, ok := r.p.executions[id]
	if !ok {
		return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
	}

	return execution, nil
}

func (r *executionRepo) Update(_ context.Context, execution *models.Execution) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if _, ok := r.p.executions[execution.ID]; !ok {
		return persistence.NewExecutionError("Update", execution.ID, persistence.ErrExecutionNotFound)
	}

	r.p.executions[execution.ID] = execution

	return nil
}

func (r *executionRepo) ActiveByJourneyAndContact(_ context.Context, journeyID, contactID string) (*models.Execution, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	for _, execution := range r.p.executions {
		if execution.JourneyID == journeyID &&
			execution.ContactID == contactID &&
			execution.Status == models.ExecutionStatusActive {
			return execution, nil
		}
	}

	return nil, persistence.ErrExecutionNotFound
}

func (r *executionRepo) ActiveByContact(_ context.Context, organizationID, contactID string) ([]*models.Execution, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	var active []*models.Execution

	for _, execution := range r.p.executions {
		if execution.OrganizationID == organizationID &&
			execution.ContactID == contactID &&
			execution.Status == models.ExecutionStatusActive {
			active = append(active, execution)
		}
	}

	return active, nil
}

func (r *executionRepo) List(_ context.Context, organizationID string, status *models.ExecutionStatus, page models.PageRequest) ([]*models.Execution, int, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	var all []*models.Execution

	for _, execution := range r.p.executions {
		if execution.OrganizationID != organizationID {
			continue
		}

		if status != nil && execution.Status != *status {
			continue
		}

		all = append(all, execution)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].StartedAt.After(all[j].StartedAt) })

	page = page.Normalize()
	total := len(all)

	start := page.Offset()
	if start > total {
		start = total
	}

	end := start + page.Limit
	if end > total {
		end = total
	}

	return all[start:end], total, nil
}

func (r *executionRepo) SaveStep(_ context.Context, step *models.StepExecution) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.steps[step.ID] = step

	return nil
}

func (r *executionRepo) StepByID(_ context.Context, id string) (*models.StepExecution, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	step, ok := r.p.steps[id]
	if !ok {
		return nil, persistence.ErrStepExecutionNotFound
	}

	return step, nil
}

func (r *executionRepo) StepsByExecution(_ context.Context, executionID string) ([]*models.StepExecution, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	var steps []*models.StepExecution

	for _, step := range r.p.steps {
		if step.ExecutionID == executionID {
			steps = append(steps, step)
		}
	}

	sort.Slice(steps, func(i, j int) bool { return steps[i].StartedAt.Before(steps[j].StartedAt) })

	return steps, nil
}

func (r *executionRepo) LatestStep(_ context.Context, executionID, stepID string) (*models.StepExecution, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	var latest *models.StepExecution

	for _, step := range r.p.steps {
		if step.ExecutionID != executionID || step.StepID != stepID {
			continue
		}

		if latest == nil || step.StartedAt.After(latest.StartedAt) {
			latest = step
		}
	}

	if latest == nil {
		return nil, persistence.ErrStepExecutionNotFound
	}

	return latest, nil
}

func (r *executionRepo) StalledSteps(_ context.Context, cutoff time.Time) ([]*models.StepExecution, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	var stalled []*models.StepExecution

	for _, step := range r.p.steps {
		switch {
		case step.Status == models.StepExecutionStatusPending:
			stalled = append(stalled, step)
		case step.Status == models.StepExecutionStatusRunning && step.StartedAt.Before(cutoff):
			stalled = append(stalled, step)
		}
	}

	sort.Slice(stalled, func(i, j int) bool { return stalled[i].StartedAt.Before(stalled[j].StartedAt) })

	return stalled, nil
}

type logRepo struct{ p *Persistence }

func (r *logRepo) Append(_ context.Context, entry *models.ExecutionLog) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.logs[entry.ExecutionID] = append(r.p.logs[entry.ExecutionID], entry)

	return nil
}

func (r *logRepo) ByExecution(_ context.Context, executionID string, page models.PageRequest) ([]*models.ExecutionLog, int, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	all := r.p.logs[executionID]

	page = page.Normalize()
	total := len(all)

	start := page.Offset()
	if start > total {
		start = total
	}

	end := start + page.Limit
	if end > total {
		end = total
	}

	return all[start:end], total, nil
}

type scheduleRepo struct{ p *Persistence }

func (r *scheduleRepo) Save(_ context.Context, schedule *models.ResumeSchedule) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.schedules[schedule.ID] = schedule

	return nil
}

func (r *scheduleRepo) Due(_ context.Context, now time.Time) ([]*models.ResumeSchedule, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	var due []*models.ResumeSchedule

	for _, schedule := range r.p.schedules {
		if schedule.IsDue(now) {
			due = append(due, schedule)
		}
	}

	sort.Slice(due, func(i, j int) bool { return due[i].ResumeAt.Before(due[j].ResumeAt) })

	return due, nil
}

func (r *scheduleRepo) MarkDelivered(_ context.Context, id string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	schedule, ok := r.p.schedules[id]
	if !ok {
		return persistence.ErrScheduleNotFound
	}

	schedule.Delivered = true

	return nil
}

func (r *scheduleRepo) DeleteByExecution(_ context.Context, executionID string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	for id, schedule := range r.p.schedules {
		if schedule.ExecutionID == executionID {
			delete(r.p.schedules, id)
		}
	}

	return nil
}
