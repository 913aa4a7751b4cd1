// Package coordinator schedules workflows: it resolves dependency graphs,
// admits tasks against resource pools and provider quotas, resolves
// contention, and drives execution with retry and provider failover.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/taskweave/taskweave/internal/allocator"
	"github.com/taskweave/taskweave/internal/analyzer"
	"github.com/taskweave/taskweave/internal/backend"
	"github.com/taskweave/taskweave/internal/conflict"
	"github.com/taskweave/taskweave/internal/distributor"
	"github.com/taskweave/taskweave/internal/graph"
	"github.com/taskweave/taskweave/internal/metrics"
	"github.com/taskweave/taskweave/internal/registry"
	"github.com/taskweave/taskweave/pkg/models"
)

// Store is the persistence surface the coordinator needs. A nil store
// disables persistence; scheduling state then lives in memory only.
type Store interface {
	CreateWorkflow(w *models.Workflow) error
	GetWorkflow(id string) (*models.Workflow, error)
	UpdateWorkflowStatus(id string, status models.WorkflowStatus) error
	UpdateTask(t *models.Task) error
	UpdatePlanStatus(id string, status models.PlanStatus) error
	LatestPlanByTask(taskID string) (*models.ExecutionPlan, error)
	AppendCost(c *models.CostRecord) error
}

// Config bounds the coordinator's concurrency and retry behavior.
type Config struct {
	// MaxConcurrent caps simultaneously executing tasks.
	MaxConcurrent int
	// MaxRetries caps execution attempts per subtask.
	MaxRetries int
	// AllocRetries caps admission attempts while resource pools are contended.
	AllocRetries int
	// RetryBaseDelay seeds the exponential backoff between attempts.
	RetryBaseDelay time.Duration
}

// DefaultConfig returns the default scheduling bounds.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:  4,
		MaxRetries:     3,
		AllocRetries:   5,
		RetryBaseDelay: 500 * time.Millisecond,
	}
}

// Deps are the collaborators a Coordinator schedules with.
type Deps struct {
	Store    Store
	Alloc    *allocator.Allocator
	Registry *registry.Registry
	Resolver *conflict.Resolver
	Engine   *distributor.Engine
	Backend  backend.Backend
	Metrics  *metrics.Metrics
}

// Coordinator owns workflow scheduling. One run loop exists per submitted
// workflow; task execution fans out under a shared concurrency ceiling.
type Coordinator struct {
	store    Store
	alloc    *allocator.Allocator
	registry *registry.Registry
	resolver *conflict.Resolver
	engine   *distributor.Engine
	backend  backend.Backend
	metrics  *metrics.Metrics
	analyzer *analyzer.Analyzer
	emitter  *Emitter
	sem      *semaphore.Weighted
	cfg      Config

	mu         sync.Mutex
	executions map[string]*execution
}

// execution is the live state of one running workflow. Task state is owned
// by the graph: mutation and reads after Submit go through its lock, never
// through the workflow's task pointers directly.
type execution struct {
	workflow *models.Workflow
	graph    *graph.DependencyGraph
	// names holds the task names in submission order, for stable iteration
	// and snapshots. Immutable after Submit.
	names   []string
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	trigger chan struct{}

	mu       sync.Mutex
	status   models.WorkflowStatus
	inflight int
	// skipped tracks tasks already surfaced as skipped; run-loop only.
	skipped map[string]bool
}

// New creates a Coordinator. Alloc and Resolver default when nil; Backend
// and Registry must be provided for tasks to execute. Without an Engine
// every task runs as a single required subtask.
func New(deps Deps, cfg Config) *Coordinator {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultConfig().MaxConcurrent
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultConfig().MaxRetries
	}
	if cfg.AllocRetries <= 0 {
		cfg.AllocRetries = DefaultConfig().AllocRetries
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = DefaultConfig().RetryBaseDelay
	}
	if deps.Alloc == nil {
		deps.Alloc = allocator.New(nil, nil)
	}
	if deps.Resolver == nil {
		deps.Resolver = conflict.NewResolver(nil)
	}

	return &Coordinator{
		store:      deps.Store,
		alloc:      deps.Alloc,
		registry:   deps.Registry,
		resolver:   deps.Resolver,
		engine:     deps.Engine,
		backend:    deps.Backend,
		metrics:    deps.Metrics,
		analyzer:   analyzer.New(),
		emitter:    NewEmitter(256),
		sem:        semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		cfg:        cfg,
		executions: make(map[string]*execution),
	}
}

// Events returns the coordinator's event stream.
func (c *Coordinator) Events() <-chan Event {
	return c.emitter.Events()
}

// Submit validates and accepts a workflow, then starts executing it
// asynchronously. Returns the execution ID (the workflow ID). Structural
// problems (cycles, unknown prerequisites, duplicate names) are rejected
// here, before anything runs.
func (c *Coordinator) Submit(ctx context.Context, wf *models.Workflow) (string, error) {
	if wf == nil || len(wf.Tasks) == 0 {
		return "", structuralErr(errors.New("workflow has no tasks"))
	}

	now := time.Now().UTC()
	if wf.ID == "" {
		wf.ID = uuid.New().String()[:8]
	}
	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = now
	}
	wf.Status = models.WorkflowPending

	names := make([]string, 0, len(wf.Tasks))
	for i, t := range wf.Tasks {
		if t.ID == "" {
			t.ID = uuid.New().String()[:8]
		}
		t.WorkflowID = wf.ID
		if t.Status == "" {
			t.Status = models.TaskStatusPending
		}
		if t.CreatedAt.IsZero() {
			// Preserve submission order for priority tie-breaking.
			t.CreatedAt = now.Add(time.Duration(i) * time.Microsecond)
		}
		names = append(names, t.Name)
	}
	for i := range wf.Edges {
		wf.Edges[i].WorkflowID = wf.ID
	}

	g := graph.New()
	if err := g.Build(wf); err != nil {
		return "", structuralErr(err)
	}
	for _, t := range wf.Tasks {
		g.SetDuration(t.Name, c.analyzer.Analyze(t.Payload).EstimatedSeconds)
	}

	if c.store != nil {
		if err := c.store.CreateWorkflow(wf); err != nil {
			return "", fmt.Errorf("persist workflow: %w", err)
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	ex := &execution{
		workflow: wf,
		graph:    g,
		names:    names,
		ctx:      runCtx,
		cancel:   cancel,
		done:     make(chan struct{}),
		trigger:  make(chan struct{}, 1),
		status:   models.WorkflowPending,
		skipped:  make(map[string]bool),
	}

	c.mu.Lock()
	c.executions[wf.ID] = ex
	c.mu.Unlock()

	go c.run(ex)
	return wf.ID, nil
}

// Status returns the workflow with its current task states. Without a store
// the result is a snapshot copy; mutating it does not touch scheduling state.
func (c *Coordinator) Status(id string) (*models.Workflow, error) {
	if c.store != nil {
		return c.store.GetWorkflow(id)
	}
	c.mu.Lock()
	ex, ok := c.executions[id]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("workflow %s not found", id)
	}
	return ex.snapshot(), nil
}

// Cancel stops a running workflow. In-flight tasks are interrupted through
// their context; tasks that never started are skipped.
func (c *Coordinator) Cancel(id string) error {
	c.mu.Lock()
	ex, ok := c.executions[id]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("workflow %s not found or already finished", id)
	}
	ex.cancel()
	<-ex.done
	return nil
}

// Wait blocks until a workflow finishes.
func (c *Coordinator) Wait(id string) error {
	c.mu.Lock()
	ex, ok := c.executions[id]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("workflow %s not found or already finished", id)
	}
	<-ex.done
	return nil
}

// ExecutionPlan returns the latest plan version for a task, building one
// through the distribution engine if none exists yet.
func (c *Coordinator) ExecutionPlan(taskID string) (*models.ExecutionPlan, error) {
	if c.store != nil {
		if plan, err := c.store.LatestPlanByTask(taskID); err == nil {
			return plan, nil
		}
	}
	if c.engine == nil {
		return nil, fmt.Errorf("no plan for task %s", taskID)
	}

	task := c.findTask(taskID)
	if task == nil {
		return nil, fmt.Errorf("task %s not found", taskID)
	}
	return c.engine.Distribute(task, "")
}

func (c *Coordinator) findTask(taskID string) *models.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ex := range c.executions {
		for _, name := range ex.names {
			if snap, ok := ex.graph.TaskCopy(name); ok && snap.ID == taskID {
				return &snap
			}
		}
	}
	return nil
}

// run is the scheduling loop for one workflow. It dispatches tasks whose
// dependency edges are satisfied, bounded by the shared concurrency ceiling,
// until every task is terminal or the workflow is cancelled.
func (c *Coordinator) run(ex *execution) {
	defer close(ex.done)

	c.setWorkflowStatus(ex, models.WorkflowRunning)
	c.emitter.Emit(Event{Type: EventWorkflowStarted, WorkflowID: ex.workflow.ID})

	var g errgroup.Group
	for {
		if ex.ctx.Err() != nil {
			break
		}

		c.sweepReservations(ex)

		ready := ex.graph.NextReady()
		c.syncSkips(ex)

		if len(ready) == 0 {
			if ex.inflightCount() == 0 {
				break
			}
			ex.wait()
			continue
		}

		for _, name := range ready {
			name := name
			snap, ok := ex.graph.TaskCopy(name)
			if !ok {
				continue
			}
			ex.graph.MarkStatus(name, models.TaskStatusQueued)
			c.persistTask(ex, name)
			c.emitter.Emit(Event{Type: EventTaskQueued, WorkflowID: ex.workflow.ID, TaskID: snap.ID})

			// Predictive hold while the task waits for a slot; admission
			// re-checks for real once execution starts.
			resID := c.reserveQueued(&snap)

			ex.addInflight(1)
			g.Go(func() error {
				defer ex.addInflight(-1)
				defer ex.signal()

				if err := c.sem.Acquire(ex.ctx, 1); err != nil {
					// Cancelled while waiting for a slot.
					c.alloc.CancelReservation(resID)
					c.finishTask(ex, name, models.TaskStatusSkipped, nil)
					return nil
				}
				defer c.sem.Release(1)

				c.alloc.CancelReservation(resID)
				c.runTask(ex, name)
				return nil
			})
		}
	}
	g.Wait()

	c.finish(ex)
}

// finish rolls the workflow up to a terminal status.
func (c *Coordinator) finish(ex *execution) {
	cancelled := ex.ctx.Err() != nil

	var completed, failed int
	statuses := ex.graph.Statuses()
	for _, name := range ex.names {
		switch statuses[name] {
		case models.TaskStatusCompleted:
			completed++
		case models.TaskStatusFailed:
			failed++
		default:
			if cancelled && !statuses[name].Terminal() {
				ex.graph.MarkStatus(name, models.TaskStatusSkipped)
				c.persistTask(ex, name)
			}
		}
	}

	status := models.WorkflowCompleted
	switch {
	case cancelled:
		status = models.WorkflowCancelled
	case failed > 0 && completed > 0:
		status = models.WorkflowDegraded
	case failed > 0:
		status = models.WorkflowFailed
	}

	c.setWorkflowStatus(ex, status)
	c.emitter.Emit(Event{
		Type:       EventWorkflowDone,
		WorkflowID: ex.workflow.ID,
		Message:    string(status),
	})
	// The execution stays registered so Status and Wait keep answering
	// after completion; the process is CLI-lifetime scoped.
}

// reserveQueued places a time-bounded token hold for a queued task over its
// estimated execution window. The hold is advisory: failure to reserve never
// blocks dispatch, and the hold is cancelled when admission takes over.
func (c *Coordinator) reserveQueued(task *models.Task) string {
	analysis := c.analyzer.Analyze(task.Payload)
	now := time.Now().UTC()
	window := time.Duration(analysis.EstimatedSeconds) * time.Second
	res, err := c.alloc.Reserve(task.ID, models.ResourceTokens,
		analysis.EstimatedTokens, now, now.Add(window))
	if err != nil {
		return ""
	}
	return res.ID
}

// sweepReservations drops predictive holds whose window has lapsed so they
// stop counting against admission.
func (c *Coordinator) sweepReservations(ex *execution) {
	n := c.alloc.ExpireReservations(time.Now().UTC())
	if n == 0 {
		return
	}
	c.emitter.Emit(Event{
		Type:       EventReservationExpired,
		WorkflowID: ex.workflow.ID,
		Message:    fmt.Sprintf("%d predictive holds expired", n),
	})
}

// runTask executes one task by running its plan's subtasks in order, then
// rolls the subtask outcomes up into a plan status and a task status.
func (c *Coordinator) runTask(ex *execution, name string) {
	snap, ok := ex.graph.TaskCopy(name)
	if !ok {
		return
	}
	plan := c.planFor(&snap)

	started := false
	outcomes := make(map[string]models.TaskStatus, len(plan.Subtasks))
	var requiredErr, lastErr error
	for _, sub := range plan.Subtasks {
		if ex.ctx.Err() != nil {
			outcomes[sub.Name] = models.TaskStatusSkipped
			continue
		}
		if !subtaskRunnable(sub, outcomes) {
			outcomes[sub.Name] = models.TaskStatusSkipped
			continue
		}

		err := c.runSubtask(ex, &snap, plan, sub, &started)
		if err == nil {
			outcomes[sub.Name] = models.TaskStatusCompleted
			continue
		}
		outcomes[sub.Name] = models.TaskStatusFailed
		lastErr = err
		if sub.Required && requiredErr == nil {
			requiredErr = err
		}
	}

	var completed, failed int
	for _, st := range outcomes {
		switch st {
		case models.TaskStatusCompleted:
			completed++
		case models.TaskStatusFailed:
			failed++
		}
	}

	planStatus := models.PlanStatusCompleted
	taskStatus := models.TaskStatusCompleted
	var cause error
	switch {
	case ex.ctx.Err() != nil:
		planStatus = models.PlanStatusCancelled
		taskStatus = models.TaskStatusFailed
		cause = providerErr(snap.ID, "", ex.ctx.Err())
		if requiredErr != nil {
			cause = requiredErr
		}
	case requiredErr != nil:
		planStatus = models.PlanStatusFailed
		taskStatus = models.TaskStatusFailed
		cause = requiredErr
	case failed > 0 && completed > 0:
		// Optional subtasks failed while the rest landed: the task
		// stands, the plan is marked degraded.
		planStatus = models.PlanStatusDegraded
	case failed > 0:
		planStatus = models.PlanStatusFailed
		taskStatus = models.TaskStatusFailed
		cause = lastErr
	}

	c.setPlanStatus(plan, planStatus)
	if planStatus == models.PlanStatusDegraded {
		c.emitter.Emit(Event{
			Type: EventPlanDegraded, WorkflowID: ex.workflow.ID, TaskID: snap.ID,
			Message: fmt.Sprintf("%d of %d subtasks failed", failed, len(plan.Subtasks)),
		})
	}
	c.finishTask(ex, name, taskStatus, cause)
}

// planFor builds or fetches the execution plan for a task at dispatch time.
// Without an engine the task runs as a single required subtask.
func (c *Coordinator) planFor(task *models.Task) *models.ExecutionPlan {
	if c.engine != nil {
		if plan, err := c.engine.Distribute(task, ""); err == nil {
			return plan
		}
	}
	analysis := c.analyzer.Analyze(task.Payload)
	return &models.ExecutionPlan{
		TaskID:   task.ID,
		Version:  1,
		Strategy: models.StrategyNoSplit,
		Status:   models.PlanStatusPending,
		Subtasks: []models.SubtaskSpec{{
			Name:             task.Name,
			Payload:          task.Payload,
			Tier:             analysis.Tier,
			EstimatedSeconds: analysis.EstimatedSeconds,
			EstimatedTokens:  analysis.EstimatedTokens,
			Required:         true,
		}},
		CreatedAt: time.Now().UTC(),
	}
}

// subtaskRunnable reports whether every dependency edge of the subtask is
// satisfied by the outcomes recorded so far. Plans list subtasks in
// dependency order, so prerequisites always settle before dependents.
func subtaskRunnable(sub models.SubtaskSpec, outcomes map[string]models.TaskStatus) bool {
	for _, edge := range sub.DependsOn {
		if !edge.Type.Satisfied(outcomes[edge.Prerequisite]) {
			return false
		}
	}
	return true
}

// runSubtask executes one subtask: admission against pools and quota,
// backend execution, and retry with provider failover. No coordinator lock
// is held across the backend call.
func (c *Coordinator) runSubtask(ex *execution, task *models.Task, plan *models.ExecutionPlan, sub models.SubtaskSpec, started *bool) error {
	estUnits := sub.EstimatedTokens

	excluded := make(map[string]bool)
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.RetryBaseDelay
	bo.MaxElapsedTime = 0

	attempts := 0
	for {
		if ex.ctx.Err() != nil {
			return providerErr(task.ID, "", ex.ctx.Err())
		}

		provider, ok := c.nextProvider(excluded, estUnits)
		if !ok {
			return quotaErr(task.ID, "", errors.New("no eligible provider with quota headroom"))
		}

		if err := c.admit(ex, task, sub, plan.Strategy, provider); err != nil {
			return err
		}

		// Quota admission is atomic: two tasks racing for the last units
		// cannot both win. The loser fails over immediately, without
		// burning a retry attempt.
		if err := c.registry.TryConsume(provider, estUnits); err != nil {
			c.alloc.Release(task.ID)
			if errors.Is(err, registry.ErrQuotaExhausted) {
				c.recordQuotaRace(ex, task, provider, estUnits, excluded)
				excluded[provider] = true
				continue
			}
			return quotaErr(task.ID, provider, err)
		}

		err := c.execute(ex, task, plan, sub, provider, started)
		if err == nil {
			return nil
		}

		c.registry.RecordFailure(provider)
		c.alloc.Release(task.ID)
		attempts++
		if attempts >= c.cfg.MaxRetries {
			return providerErr(task.ID, provider, err)
		}

		ex.graph.Update(task.Name, func(t *models.Task) {
			t.Status = models.TaskStatusRetry
			t.RetryCount++
			t.Error = err.Error()
		})
		c.persistTask(ex, task.Name)
		c.emitter.Emit(Event{
			Type: EventProviderFailover, WorkflowID: ex.workflow.ID,
			TaskID: task.ID, Provider: provider,
			Message: fmt.Sprintf("attempt %d failed, retrying", attempts),
			Error:   err,
		})

		select {
		case <-ex.ctx.Done():
		case <-time.After(bo.NextBackOff()):
		}
	}
}

// nextProvider picks the cheapest eligible provider outside the excluded set.
func (c *Coordinator) nextProvider(excluded map[string]bool, estUnits int64) (string, bool) {
	if c.registry == nil {
		return "", false
	}
	skip := make([]string, 0, len(excluded))
	for id := range excluded {
		skip = append(skip, id)
	}
	return c.registry.NextHealthiest(skip, estUnits)
}

// admit reserves all resource kinds for the subtask at the plan's strategy,
// all-or-nothing. Pool contention is surfaced as an over-allocation conflict
// and resolved before waiting for capacity; admission gives up after the
// configured number of attempts.
func (c *Coordinator) admit(ex *execution, task *models.Task, sub models.SubtaskSpec, strategy models.Strategy, provider string) error {
	var conf *models.ResourceConflict

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.RetryBaseDelay
	bo.MaxElapsedTime = 0

	for try := 0; try <= c.cfg.AllocRetries; try++ {
		_, err := c.alloc.Allocate(task.ID, provider, sub.Tier, strategy)
		if err == nil {
			return nil
		}
		if !errors.Is(err, allocator.ErrInsufficient) {
			return resourceErr(task.ID, "", err)
		}

		if conf == nil {
			conf = c.resolver.Detect(models.ConflictOverAllocation,
				[]string{task.ID}, "", models.ResourceTokens)
			if c.metrics != nil {
				c.metrics.ConflictsDetected.WithLabelValues(string(conf.Type)).Inc()
			}
			c.emitter.Emit(Event{
				Type: EventConflictDetected, WorkflowID: ex.workflow.ID,
				TaskID: task.ID, ConflictID: conf.ID,
				Message: string(models.ConflictOverAllocation),
			})

			// Free capacity for the resolver discounts predictive holds
			// overlapping this subtask's window, not just current usage.
			now := time.Now().UTC()
			window := now.Add(time.Duration(sub.EstimatedSeconds) * time.Second)
			free := c.alloc.Free(models.ResourceTokens) -
				c.alloc.ReservedDuring(models.ResourceTokens, now, window)
			if free < 0 {
				free = 0
			}

			claims := []conflict.Claim{{
				TaskID:    task.ID,
				Priority:  task.Priority,
				CreatedAt: task.CreatedAt,
				Amount:    allocator.AmountFor(sub.Tier, strategy, models.ResourceTokens),
			}}
			_, rerr := c.resolver.Resolve(conf, conflict.Input{
				Claims: claims,
				Free:   free,
			})
			if c.metrics != nil {
				c.metrics.ConflictsResolved.WithLabelValues(string(conf.Status)).Inc()
			}
			c.emitter.Emit(Event{
				Type: EventConflictResolved, WorkflowID: ex.workflow.ID,
				TaskID: task.ID, ConflictID: conf.ID,
				Message: conf.Outcome, Error: rerr,
			})
		}

		// Blocked until holders release capacity.
		ex.graph.Update(task.Name, func(t *models.Task) {
			t.Status = models.TaskStatusBlocked
		})
		c.persistTask(ex, task.Name)
		c.emitter.Emit(Event{Type: EventTaskBlocked, WorkflowID: ex.workflow.ID, TaskID: task.ID})

		select {
		case <-ex.ctx.Done():
			return resourceErr(task.ID, conflictID(conf), ex.ctx.Err())
		case <-time.After(bo.NextBackOff()):
		}
	}

	return resourceErr(task.ID, conflictID(conf),
		fmt.Errorf("%w: pools stayed contended after %d admission attempts",
			allocator.ErrInsufficient, c.cfg.AllocRetries+1))
}

func conflictID(c *models.ResourceConflict) string {
	if c == nil {
		return ""
	}
	return c.ID
}

// recordQuotaRace audits a lost race for a provider's remaining quota and
// resolves it through the registry-backed ranker.
func (c *Coordinator) recordQuotaRace(ex *execution, task *models.Task, provider string, estUnits int64, excluded map[string]bool) {
	conf := c.resolver.Detect(models.ConflictQuotaRace, []string{task.ID}, provider, models.ResourceTokens)
	if c.metrics != nil {
		c.metrics.ConflictsDetected.WithLabelValues(string(conf.Type)).Inc()
		c.metrics.QuotaExhausted.WithLabelValues(provider).Inc()
	}
	c.emitter.Emit(Event{
		Type: EventConflictDetected, WorkflowID: ex.workflow.ID,
		TaskID: task.ID, Provider: provider, ConflictID: conf.ID,
		Message: string(models.ConflictQuotaRace),
	})

	var headroom int64
	if p, ok := c.registry.Get(provider); ok {
		headroom = p.Headroom()
	}
	_, err := c.resolver.Resolve(conf, conflict.Input{
		Claims: []conflict.Claim{{
			TaskID: task.ID, Priority: task.Priority,
			CreatedAt: task.CreatedAt, Amount: estUnits,
		}},
		Free:   headroom,
		Ranker: c.registry,
	})
	if c.metrics != nil {
		c.metrics.ConflictsResolved.WithLabelValues(string(conf.Status)).Inc()
	}
	c.emitter.Emit(Event{
		Type: EventConflictResolved, WorkflowID: ex.workflow.ID,
		TaskID: task.ID, Provider: provider, ConflictID: conf.ID,
		Message: conf.Outcome, Error: err,
	})
	c.emitter.Emit(Event{
		Type: EventProviderFailover, WorkflowID: ex.workflow.ID,
		TaskID: task.ID, Provider: provider,
		Message: "quota exhausted, failing over",
	})
}

// execute runs one subtask on the chosen provider and settles the
// bookkeeping on success: cost audit row, quota health, resource release.
func (c *Coordinator) execute(ex *execution, task *models.Task, plan *models.ExecutionPlan, sub models.SubtaskSpec, provider string, started *bool) error {
	begun := time.Now().UTC()
	ex.graph.Update(task.Name, func(t *models.Task) {
		t.Status = models.TaskStatusInProgress
		t.Provider = provider
		if t.StartedAt == nil {
			t.StartedAt = &begun
		}
	})
	c.persistTask(ex, task.Name)
	if !*started {
		*started = true
		c.setPlanStatus(plan, models.PlanStatusRunning)
		c.emitter.Emit(Event{Type: EventTaskStarted, WorkflowID: ex.workflow.ID, TaskID: task.ID, Provider: provider})
	}
	if c.metrics != nil {
		c.metrics.TasksScheduled.WithLabelValues(provider).Inc()
		c.metrics.ObserveUtilization(c.alloc.Utilization())
	}

	var model string
	var costPerUnit float64
	if p, ok := c.registry.Get(provider); ok {
		model = p.Model
		costPerUnit = p.CostPerUnit
	}

	res, err := c.backend.Execute(ex.ctx, backend.Spec{
		TaskID:    task.ID,
		Provider:  provider,
		Model:     model,
		Payload:   sub.Payload,
		MaxTokens: sub.EstimatedTokens,
	})
	if err != nil {
		return err
	}

	c.registry.RecordSuccess(provider)
	if c.store != nil {
		_ = c.store.AppendCost(&models.CostRecord{
			ID:            uuid.New().String()[:8],
			TaskID:        task.ID,
			Provider:      provider,
			Model:         model,
			InputTokens:   res.InputTokens,
			OutputTokens:  res.OutputTokens,
			EstimatedCost: float64(res.Units()) * costPerUnit,
			Duration:      res.Duration,
			RecordedAt:    time.Now().UTC(),
		})
	}
	if c.metrics != nil {
		c.metrics.ExecutionSeconds.Observe(res.Duration.Seconds())
	}

	c.alloc.Release(task.ID)
	return nil
}

// finishTask settles a task into a terminal state and notifies the loop.
func (c *Coordinator) finishTask(ex *execution, name string, status models.TaskStatus, cause error) {
	now := time.Now().UTC()
	ex.graph.Update(name, func(t *models.Task) {
		t.Status = status
		t.CompletedAt = &now
		if cause != nil {
			t.Error = cause.Error()
		}
	})
	c.persistTask(ex, name)
	if c.metrics != nil {
		c.metrics.TasksCompleted.WithLabelValues(string(status)).Inc()
		c.metrics.ObserveUtilization(c.alloc.Utilization())
	}

	snap, ok := ex.graph.TaskCopy(name)
	if !ok {
		return
	}
	switch status {
	case models.TaskStatusCompleted:
		c.emitter.Emit(Event{Type: EventTaskCompleted, WorkflowID: ex.workflow.ID, TaskID: snap.ID, Provider: snap.Provider})
	case models.TaskStatusFailed:
		c.emitter.Emit(Event{Type: EventTaskFailed, WorkflowID: ex.workflow.ID, TaskID: snap.ID, Provider: snap.Provider, Error: cause})
	case models.TaskStatusSkipped:
		c.emitter.Emit(Event{Type: EventTaskSkipped, WorkflowID: ex.workflow.ID, TaskID: snap.ID})
	}
}

// syncSkips persists tasks the graph newly marked skipped and emits events
// for them. Skip propagation happens inside NextReady.
func (c *Coordinator) syncSkips(ex *execution) {
	statuses := ex.graph.Statuses()
	for _, name := range ex.names {
		if statuses[name] != models.TaskStatusSkipped || ex.skipped[name] {
			continue
		}
		ex.skipped[name] = true
		ex.graph.Update(name, func(t *models.Task) {
			if t.CompletedAt == nil {
				now := time.Now().UTC()
				t.CompletedAt = &now
			}
		})
		c.persistTask(ex, name)
		if snap, ok := ex.graph.TaskCopy(name); ok {
			c.emitter.Emit(Event{Type: EventTaskSkipped, WorkflowID: ex.workflow.ID, TaskID: snap.ID})
		}
	}
}

func (c *Coordinator) persistTask(ex *execution, name string) {
	if c.store == nil {
		return
	}
	snap, ok := ex.graph.TaskCopy(name)
	if !ok {
		return
	}
	if err := c.store.UpdateTask(&snap); err != nil {
		// In-memory state is authoritative mid-run.
		log.Printf("[coordinator] persist task %s failed: %v", snap.ID, err)
	}
}

func (c *Coordinator) setPlanStatus(plan *models.ExecutionPlan, status models.PlanStatus) {
	plan.Status = status
	if c.store == nil || plan.ID == "" {
		return
	}
	_ = c.store.UpdatePlanStatus(plan.ID, status)
}

func (c *Coordinator) setWorkflowStatus(ex *execution, status models.WorkflowStatus) {
	ex.mu.Lock()
	ex.status = status
	ex.workflow.Status = status
	ex.mu.Unlock()
	if c.store != nil {
		_ = c.store.UpdateWorkflowStatus(ex.workflow.ID, status)
	}
}

// snapshot builds a consistent copy of the workflow for Status callers.
func (ex *execution) snapshot() *models.Workflow {
	ex.mu.Lock()
	status := ex.status
	ex.mu.Unlock()

	wf := &models.Workflow{
		ID:        ex.workflow.ID,
		Name:      ex.workflow.Name,
		Edges:     ex.workflow.Edges,
		Status:    status,
		CreatedAt: ex.workflow.CreatedAt,
	}
	for _, name := range ex.names {
		if snap, ok := ex.graph.TaskCopy(name); ok {
			wf.Tasks = append(wf.Tasks, &snap)
		}
	}
	return wf
}

func (ex *execution) addInflight(delta int) {
	ex.mu.Lock()
	ex.inflight += delta
	ex.mu.Unlock()
}

func (ex *execution) inflightCount() int {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	return ex.inflight
}

// signal nudges the run loop to re-check readiness.
func (ex *execution) signal() {
	select {
	case ex.trigger <- struct{}{}:
	default:
	}
}

// wait blocks until something changes or a poll interval passes.
func (ex *execution) wait() {
	select {
	case <-ex.trigger:
	case <-ex.ctx.Done():
	case <-time.After(250 * time.Millisecond):
	}
}
