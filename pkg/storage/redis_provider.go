package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/pipeboard/automation/pkg/engine"
	"github.com/pipeboard/automation/pkg/graph"
	"github.com/pipeboard/automation/pkg/trigger"
	"github.com/pipeboard/automation/pkg/workflow"
)

// Key layout:
//
//	workflow:{tenant}:{id}              workflow record (JSON)
//	workflows:{tenant}                  set of workflow ids
//	graphversion:{tenant}:{id}:{n}      immutable graph version (JSON)
//	run:{id}                            run record without steps (JSON)
//	runs:{tenant}                       set of run ids
//	runsteps:{id}                       list of step records (JSON)
//	continuation:{run}                  continuation record (JSON)
//	continuations:due                   zset of run ids scored by resume_at
//	schedule:{tenant}:{workflow}        schedule record (JSON)
//	schedules                           set of schedule keys

// RedisProviderConfig holds connection settings for Redis
type RedisProviderConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisProvider implements the StorageProvider interface using Redis
type RedisProvider struct {
	config RedisProviderConfig
	client *redis.Client

	workflowStore     *RedisWorkflowStore
	runStore          *RedisRunStore
	continuationStore *RedisContinuationStore
	scheduleStore     *RedisScheduleStore
}

// NewRedisProvider creates a new Redis storage provider
func NewRedisProvider(config RedisProviderConfig) *RedisProvider {
	return &RedisProvider{config: config}
}

// Initialize connects to Redis
func (p *RedisProvider) Initialize() error {
	client := redis.NewClient(&redis.Options{
		Addr:     p.config.Addr,
		Password: p.config.Password,
		DB:       p.config.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	p.client = client
	p.workflowStore = &RedisWorkflowStore{client: client}
	p.runStore = &RedisRunStore{client: client}
	p.continuationStore = &RedisContinuationStore{client: client}
	p.scheduleStore = &RedisScheduleStore{client: client}
	return nil
}

// Close closes the Redis connection
func (p *RedisProvider) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}

// GetWorkflowStore returns a store for workflow definitions
func (p *RedisProvider) GetWorkflowStore() workflow.WorkflowStore { return p.workflowStore }

// GetRunStore returns a store for run history
func (p *RedisProvider) GetRunStore() engine.RunStore { return p.runStore }

// GetContinuationStore returns a store for delay continuations
func (p *RedisProvider) GetContinuationStore() engine.ContinuationStore {
	return p.continuationStore
}

// GetScheduleStore returns a store for time_based trigger schedules
func (p *RedisProvider) GetScheduleStore() trigger.ScheduleStore { return p.scheduleStore }

// RedisWorkflowStore implements workflow.WorkflowStore on Redis
type RedisWorkflowStore struct {
	client *redis.Client
}

func workflowKey(tenantID, id string) string  { return "workflow:" + tenantID + ":" + id }
func workflowIndexKey(tenantID string) string { return "workflows:" + tenantID }
func graphVersionKey(tenantID, workflowID string, version int) string {
	return "graphversion:" + tenantID + ":" + workflowID + ":" + strconv.Itoa(version)
}

// SaveWorkflow persists a new workflow
func (s *RedisWorkflowStore) SaveWorkflow(wf workflow.Workflow) error {
	ctx := context.Background()
	data, err := json.Marshal(wf)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, workflowKey(wf.TenantID, wf.ID), data, 0)
	pipe.SAdd(ctx, workflowIndexKey(wf.TenantID), wf.ID)
	_, err = pipe.Exec(ctx)
	return err
}

// UpdateWorkflow replaces a workflow record under optimistic concurrency.
// The check-and-set runs inside a WATCH transaction so a concurrent save
// either loses cleanly or surfaces as ErrConflict.
func (s *RedisWorkflowStore) UpdateWorkflow(wf workflow.Workflow, expectedUpdatedAt time.Time) error {
	ctx := context.Background()
	key := workflowKey(wf.TenantID, wf.ID)
	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return workflow.ErrNotFound
		}
		if err != nil {
			return err
		}
		var current workflow.Workflow
		if err := json.Unmarshal(data, &current); err != nil {
			return fmt.Errorf("failed to unmarshal workflow: %w", err)
		}
		if !current.UpdatedAt.Equal(expectedUpdatedAt) {
			return workflow.ErrConflict
		}
		updated, err := json.Marshal(wf)
		if err != nil {
			return fmt.Errorf("failed to marshal workflow: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, 0)
			return nil
		})
		return err
	}, key)
}

// GetWorkflow retrieves a workflow
func (s *RedisWorkflowStore) GetWorkflow(tenantID, id string) (workflow.Workflow, error) {
	data, err := s.client.Get(context.Background(), workflowKey(tenantID, id)).Bytes()
	if err == redis.Nil {
		return workflow.Workflow{}, workflow.ErrNotFound
	}
	if err != nil {
		return workflow.Workflow{}, err
	}
	var wf workflow.Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return workflow.Workflow{}, fmt.Errorf("failed to unmarshal workflow: %w", err)
	}
	return wf, nil
}

// ListWorkflows returns all workflows for a tenant
func (s *RedisWorkflowStore) ListWorkflows(tenantID string) ([]workflow.Workflow, error) {
	ctx := context.Background()
	ids, err := s.client.SMembers(ctx, workflowIndexKey(tenantID)).Result()
	if err != nil {
		return nil, err
	}
	var out []workflow.Workflow
	for _, id := range ids {
		wf, err := s.GetWorkflow(tenantID, id)
		if err == workflow.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, wf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// DeleteWorkflow removes a workflow and its graph versions
func (s *RedisWorkflowStore) DeleteWorkflow(tenantID, id string) error {
	ctx := context.Background()
	wf, err := s.GetWorkflow(tenantID, id)
	if err != nil {
		return err
	}
	keys := []string{workflowKey(tenantID, id)}
	for v := 1; v <= wf.GraphVersion; v++ {
		keys = append(keys, graphVersionKey(tenantID, id, v))
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, keys...)
	pipe.SRem(ctx, workflowIndexKey(tenantID), id)
	_, err = pipe.Exec(ctx)
	return err
}

// SaveGraphVersion persists one immutable graph version
func (s *RedisWorkflowStore) SaveGraphVersion(tenantID, workflowID string, version int, g graph.Graph) error {
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("failed to marshal graph: %w", err)
	}
	return s.client.Set(context.Background(), graphVersionKey(tenantID, workflowID, version), data, 0).Err()
}

// GetGraphVersion retrieves a specific graph version
func (s *RedisWorkflowStore) GetGraphVersion(tenantID, workflowID string, version int) (graph.Graph, error) {
	data, err := s.client.Get(context.Background(), graphVersionKey(tenantID, workflowID, version)).Bytes()
	if err == redis.Nil {
		return graph.Graph{}, workflow.ErrNotFound
	}
	if err != nil {
		return graph.Graph{}, err
	}
	var g graph.Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return graph.Graph{}, fmt.Errorf("failed to unmarshal graph: %w", err)
	}
	return g, nil
}

// RecordExecution bumps the execution counter and last-executed time
func (s *RedisWorkflowStore) RecordExecution(tenantID, id string, at time.Time) error {
	ctx := context.Background()
	key := workflowKey(tenantID, id)
	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return workflow.ErrNotFound
		}
		if err != nil {
			return err
		}
		var wf workflow.Workflow
		if err := json.Unmarshal(data, &wf); err != nil {
			return fmt.Errorf("failed to unmarshal workflow: %w", err)
		}
		wf.ExecutionCount++
		wf.LastExecutedAt = &at
		updated, err := json.Marshal(wf)
		if err != nil {
			return fmt.Errorf("failed to marshal workflow: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, 0)
			return nil
		})
		return err
	}, key)
}

// RedisRunStore implements engine.RunStore on Redis
type RedisRunStore struct {
	client *redis.Client
}

func runKey(runID string) string         { return "run:" + runID }
func runIndexKey(tenantID string) string { return "runs:" + tenantID }
func runStepsKey(runID string) string    { return "runsteps:" + runID }

// SaveRun inserts or replaces a non-terminal run's state
func (s *RedisRunStore) SaveRun(run engine.Run) error {
	ctx := context.Background()
	key := runKey(run.ID)
	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil && err != redis.Nil {
			return err
		}
		if err == nil {
			var current engine.Run
			if err := json.Unmarshal(data, &current); err != nil {
				return fmt.Errorf("failed to unmarshal run: %w", err)
			}
			if current.Terminal() {
				return nil
			}
		}
		run.Steps = nil // steps live in their own list
		updated, err := json.Marshal(run)
		if err != nil {
			return fmt.Errorf("failed to marshal run: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, 0)
			pipe.SAdd(ctx, runIndexKey(run.TenantID), run.ID)
			return nil
		})
		return err
	}, key)
}

// GetRun retrieves a run with its steps
func (s *RedisRunStore) GetRun(runID string) (engine.Run, error) {
	ctx := context.Background()
	data, err := s.client.Get(ctx, runKey(runID)).Bytes()
	if err == redis.Nil {
		return engine.Run{}, engine.ErrRunNotFound
	}
	if err != nil {
		return engine.Run{}, err
	}
	var run engine.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return engine.Run{}, fmt.Errorf("failed to unmarshal run: %w", err)
	}
	steps, err := s.loadSteps(ctx, runID)
	if err != nil {
		return engine.Run{}, err
	}
	run.Steps = steps
	return run, nil
}

// ListRuns returns runs for a tenant, optionally filtered by workflow
func (s *RedisRunStore) ListRuns(tenantID, workflowID string) ([]engine.Run, error) {
	ctx := context.Background()
	ids, err := s.client.SMembers(ctx, runIndexKey(tenantID)).Result()
	if err != nil {
		return nil, err
	}
	var out []engine.Run
	for _, id := range ids {
		run, err := s.GetRun(id)
		if err == engine.ErrRunNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		if workflowID != "" && run.WorkflowID != workflowID {
			continue
		}
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (s *RedisRunStore) loadSteps(ctx context.Context, runID string) ([]engine.StepRecord, error) {
	items, err := s.client.LRange(ctx, runStepsKey(runID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	var steps []engine.StepRecord
	for _, item := range items {
		var step engine.StepRecord
		if err := json.Unmarshal([]byte(item), &step); err != nil {
			return nil, fmt.Errorf("failed to unmarshal step: %w", err)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// AppendStep appends one finished step record to a run's history
func (s *RedisRunStore) AppendStep(runID string, step engine.StepRecord) error {
	ctx := context.Background()
	data, err := s.client.Get(ctx, runKey(runID)).Bytes()
	if err == redis.Nil {
		return engine.ErrRunNotFound
	}
	if err != nil {
		return err
	}
	var run engine.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return fmt.Errorf("failed to unmarshal run: %w", err)
	}
	if run.Terminal() {
		return engine.ErrRunTerminal
	}
	stepData, err := json.Marshal(step)
	if err != nil {
		return fmt.Errorf("failed to marshal step: %w", err)
	}
	return s.client.RPush(ctx, runStepsKey(runID), stepData).Err()
}

// Finalize sets the terminal status; a second call is a no-op
func (s *RedisRunStore) Finalize(runID string, status string, errMsg string, at time.Time) error {
	ctx := context.Background()
	key := runKey(runID)
	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return engine.ErrRunNotFound
		}
		if err != nil {
			return err
		}
		var run engine.Run
		if err := json.Unmarshal(data, &run); err != nil {
			return fmt.Errorf("failed to unmarshal run: %w", err)
		}
		if run.Terminal() {
			return nil
		}
		run.Status = status
		run.Error = errMsg
		run.Suspended = false
		run.SuspendedNode = ""
		run.CompletedAt = &at
		updated, err := json.Marshal(run)
		if err != nil {
			return fmt.Errorf("failed to marshal run: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, 0)
			return nil
		})
		return err
	}, key)
}

// RedisContinuationStore implements engine.ContinuationStore on Redis.
// Due lookup uses a sorted set keyed by the resume timestamp.
type RedisContinuationStore struct {
	client *redis.Client
}

const continuationDueKey = "continuations:due"

func continuationKey(runID string) string { return "continuation:" + runID }

// SaveContinuation stores the continuation for a suspended run
func (s *RedisContinuationStore) SaveContinuation(c engine.Continuation) error {
	ctx := context.Background()
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal continuation: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, continuationKey(c.RunID), data, 0)
	pipe.ZAdd(ctx, continuationDueKey, &redis.Z{
		Score:  float64(c.ResumeAt.UnixNano()),
		Member: c.RunID,
	})
	_, err = pipe.Exec(ctx)
	return err
}

// GetContinuation retrieves a run's continuation
func (s *RedisContinuationStore) GetContinuation(runID string) (engine.Continuation, error) {
	data, err := s.client.Get(context.Background(), continuationKey(runID)).Bytes()
	if err == redis.Nil {
		return engine.Continuation{}, engine.ErrContinuationGone
	}
	if err != nil {
		return engine.Continuation{}, err
	}
	var c engine.Continuation
	if err := json.Unmarshal(data, &c); err != nil {
		return engine.Continuation{}, fmt.Errorf("failed to unmarshal continuation: %w", err)
	}
	return c, nil
}

// DueContinuations returns every continuation with ResumeAt <= now
func (s *RedisContinuationStore) DueContinuations(now time.Time) ([]engine.Continuation, error) {
	ctx := context.Background()
	ids, err := s.client.ZRangeByScore(ctx, continuationDueKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixNano(), 10),
	}).Result()
	if err != nil {
		return nil, err
	}
	var due []engine.Continuation
	for _, id := range ids {
		c, err := s.GetContinuation(id)
		if err == engine.ErrContinuationGone {
			// Claimed by a concurrent resume between the range scan
			// and the fetch
			continue
		}
		if err != nil {
			return nil, err
		}
		due = append(due, c)
	}
	return due, nil
}

// DeleteContinuation removes a continuation
func (s *RedisContinuationStore) DeleteContinuation(runID string) error {
	ctx := context.Background()
	deleted, err := s.client.Del(ctx, continuationKey(runID)).Result()
	if err != nil {
		return err
	}
	s.client.ZRem(ctx, continuationDueKey, runID)
	if deleted == 0 {
		return engine.ErrContinuationGone
	}
	return nil
}

// RedisScheduleStore implements trigger.ScheduleStore on Redis
type RedisScheduleStore struct {
	client *redis.Client
}

const scheduleIndexKey = "schedules"

func scheduleKey(tenantID, workflowID string) string {
	return "schedule:" + tenantID + ":" + workflowID
}

// SaveSchedule stores or replaces a workflow's schedule
func (s *RedisScheduleStore) SaveSchedule(sched trigger.Schedule) error {
	ctx := context.Background()
	data, err := json.Marshal(sched)
	if err != nil {
		return fmt.Errorf("failed to marshal schedule: %w", err)
	}
	key := scheduleKey(sched.TenantID, sched.WorkflowID)
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, key, data, 0)
	pipe.SAdd(ctx, scheduleIndexKey, key)
	_, err = pipe.Exec(ctx)
	return err
}

// DeleteSchedule removes a workflow's schedule
func (s *RedisScheduleStore) DeleteSchedule(tenantID, workflowID string) error {
	ctx := context.Background()
	key := scheduleKey(tenantID, workflowID)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, scheduleIndexKey, key)
	_, err := pipe.Exec(ctx)
	return err
}

// ListSchedules returns every stored schedule
func (s *RedisScheduleStore) ListSchedules() ([]trigger.Schedule, error) {
	ctx := context.Background()
	keys, err := s.client.SMembers(ctx, scheduleIndexKey).Result()
	if err != nil {
		return nil, err
	}
	var out []trigger.Schedule
	for _, key := range keys {
		data, err := s.client.Get(ctx, key).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, err
		}
		var sched trigger.Schedule
		if err := json.Unmarshal(data, &sched); err != nil {
			return nil, fmt.Errorf("failed to unmarshal schedule: %w", err)
		}
		out = append(out, sched)
	}
	return out, nil
}
