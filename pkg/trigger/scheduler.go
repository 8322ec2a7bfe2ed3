package trigger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pipeboard/automation/pkg/logging"
)

// CronScheduler fires time_based triggers. Schedules are persisted so a
// restarted process rebuilds its cron entries from the store; the cron
// library guarantees at most one tick per scheduled instant per entry.
type CronScheduler struct {
	cron    *cron.Cron
	store   ScheduleStore
	service *Service
	logger  logging.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID // tenantID/workflowID -> entry
}

// NewCronScheduler creates a scheduler over the given store
func NewCronScheduler(store ScheduleStore, service *Service, logger logging.Logger) *CronScheduler {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &CronScheduler{
		cron:    cron.New(),
		store:   store,
		service: service,
		logger:  logger,
		entries: make(map[string]cron.EntryID),
	}
}

// Start rebuilds schedules from the store and starts the cron loop
func (s *CronScheduler) Start() error {
	schedules, err := s.store.ListSchedules()
	if err != nil {
		return fmt.Errorf("failed to load schedules: %w", err)
	}
	for _, sched := range schedules {
		if err := s.add(sched); err != nil {
			s.logger.Warn("skipping invalid stored schedule",
				logField("workflow_id", sched.WorkflowID), logField("error", err.Error()))
		}
	}

	s.cron.Start()
	return nil
}

// Stop halts the cron loop; running tick handlers finish
func (s *CronScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Register persists and arms a workflow's schedule, replacing any
// previous one. Called when a time_based workflow activates.
func (s *CronScheduler) Register(tenantID, workflowID, expression string) error {
	if _, err := cron.ParseStandard(expression); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expression, err)
	}

	sched := Schedule{
		TenantID:   tenantID,
		WorkflowID: workflowID,
		Expression: expression,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.SaveSchedule(sched); err != nil {
		return fmt.Errorf("failed to persist schedule: %w", err)
	}

	s.remove(tenantID, workflowID)
	return s.add(sched)
}

// Unregister removes a workflow's schedule. Called on pause/delete.
func (s *CronScheduler) Unregister(tenantID, workflowID string) error {
	if err := s.store.DeleteSchedule(tenantID, workflowID); err != nil {
		return err
	}
	s.remove(tenantID, workflowID)
	return nil
}

func (s *CronScheduler) add(sched Schedule) error {
	id, err := s.cron.AddFunc(sched.Expression, func() {
		ev := Event{
			Type:       EventTimerTick,
			TenantID:   sched.TenantID,
			WorkflowID: sched.WorkflowID,
			OccurredAt: time.Now().UTC(),
		}
		if _, err := s.service.OnEvent(context.Background(), ev); err != nil {
			s.logger.Error("timer tick failed",
				logField("workflow_id", sched.WorkflowID), logField("error", err.Error()))
		}
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.entries[scheduleKey(sched.TenantID, sched.WorkflowID)] = id
	s.mu.Unlock()
	return nil
}

func (s *CronScheduler) remove(tenantID, workflowID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := scheduleKey(tenantID, workflowID)
	if id, ok := s.entries[key]; ok {
		s.cron.Remove(id)
		delete(s.entries, key)
	}
}

func scheduleKey(tenantID, workflowID string) string {
	return tenantID + "/" + workflowID
}
