package coordinator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/taskweave/taskweave/internal/allocator"
	"github.com/taskweave/taskweave/internal/backend"
	"github.com/taskweave/taskweave/internal/distributor"
	"github.com/taskweave/taskweave/internal/registry"
	"github.com/taskweave/taskweave/pkg/models"
)

// recordingBackend tracks execution order and concurrency, and fails
// executions whose task ID appears in failTasks or whose payload contains
// failPayload. Subtasks of one plan share a task ID, so payload matching is
// what singles out one subtask.
type recordingBackend struct {
	mu            sync.Mutex
	order         []string
	payloads      []string
	concurrent    int
	maxConcurrent int
	failTasks     map[string]bool
	failPayload   string
	delay         time.Duration
}

func (b *recordingBackend) Execute(ctx context.Context, spec backend.Spec) (*backend.Result, error) {
	b.mu.Lock()
	b.concurrent++
	if b.concurrent > b.maxConcurrent {
		b.maxConcurrent = b.concurrent
	}
	b.order = append(b.order, spec.TaskID)
	b.payloads = append(b.payloads, spec.Payload)
	fail := b.failTasks[spec.TaskID] ||
		(b.failPayload != "" && strings.Contains(spec.Payload, b.failPayload))
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.concurrent--
		b.mu.Unlock()
	}()

	if b.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(b.delay):
		}
	}
	if fail {
		return nil, errors.New("execution failed")
	}
	return &backend.Result{Output: "ok", InputTokens: 100, OutputTokens: 50, Duration: time.Millisecond}, nil
}

func (b *recordingBackend) executed() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string{}, b.order...)
}

func (b *recordingBackend) executedPayloads() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string{}, b.payloads...)
}

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r := registry.New()
	r.Upsert(models.Provider{
		ID: "p1", Model: "claude-sonnet-4", QuotaLimit: 10_000_000,
		CostPerUnit: 0.00001, Active: true,
	})
	return r
}

func testCoordinator(t *testing.T, b backend.Backend, r *registry.Registry) *Coordinator {
	t.Helper()
	cfg := DefaultConfig()
	cfg.MaxRetries = 2
	cfg.RetryBaseDelay = time.Millisecond
	return New(Deps{Registry: r, Backend: b}, cfg)
}

func task(id, name, payload string) *models.Task {
	return &models.Task{ID: id, Name: name, Type: models.TaskTypeFeature, Payload: payload, Priority: 1}
}

func TestSubmitRejectsCycle(t *testing.T) {
	c := testCoordinator(t, &recordingBackend{}, testRegistry(t))

	wf := &models.Workflow{
		Name:  "cyclic",
		Tasks: []*models.Task{task("t1", "a", "do a"), task("t2", "b", "do b")},
		Edges: []models.DependencyEdge{
			{Dependent: "a", Prerequisite: "b", Type: models.EdgeSequence},
			{Dependent: "b", Prerequisite: "a", Type: models.EdgeSequence},
		},
	}

	_, err := c.Submit(context.Background(), wf)
	if err == nil {
		t.Fatal("expected cycle rejection")
	}
	if KindOf(err) != KindStructural {
		t.Errorf("expected structural error kind, got %q", KindOf(err))
	}
	// The error names the cycle members.
	if !strings.Contains(err.Error(), "a") || !strings.Contains(err.Error(), "b") {
		t.Errorf("cycle error should name participants: %v", err)
	}
}

func TestSubmitRejectsEmptyWorkflow(t *testing.T) {
	c := testCoordinator(t, &recordingBackend{}, testRegistry(t))
	if _, err := c.Submit(context.Background(), &models.Workflow{Name: "empty"}); err == nil {
		t.Fatal("expected rejection of empty workflow")
	}
}

func TestWorkflowRunsDependenciesInOrder(t *testing.T) {
	b := &recordingBackend{failTasks: map[string]bool{}}
	c := testCoordinator(t, b, testRegistry(t))

	wf := &models.Workflow{
		Name: "ordered",
		Tasks: []*models.Task{
			task("t1", "build", "compile the service"),
			task("t2", "deploy", "ship the service"),
		},
		Edges: []models.DependencyEdge{
			{Dependent: "deploy", Prerequisite: "build", Type: models.EdgeOnSuccess},
		},
	}

	id, err := c.Submit(context.Background(), wf)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := c.Wait(id); err != nil {
		t.Fatalf("wait: %v", err)
	}

	got, err := c.Status(id)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if got.Status != models.WorkflowCompleted {
		t.Errorf("expected completed workflow, got %s", got.Status)
	}

	order := b.executed()
	if len(order) != 2 || order[0] != "t1" || order[1] != "t2" {
		t.Errorf("expected build before deploy, got %v", order)
	}
	for _, tk := range got.Tasks {
		if tk.Status != models.TaskStatusCompleted {
			t.Errorf("task %s not completed: %s", tk.Name, tk.Status)
		}
		if tk.Provider != "p1" {
			t.Errorf("task %s missing provider assignment", tk.Name)
		}
	}
}

// A failed prerequisite skips on_success dependents but still runs always
// dependents.
func TestFailureSkipsOnSuccessDependents(t *testing.T) {
	b := &recordingBackend{failTasks: map[string]bool{"ta": true}}
	c := testCoordinator(t, b, testRegistry(t))

	wf := &models.Workflow{
		Name: "branching",
		Tasks: []*models.Task{
			task("ta", "a", "do a"),
			task("tb", "b", "do b"),
			task("tc", "c", "do c"),
		},
		Edges: []models.DependencyEdge{
			{Dependent: "b", Prerequisite: "a", Type: models.EdgeOnSuccess},
			{Dependent: "c", Prerequisite: "a", Type: models.EdgeAlways},
		},
	}

	id, err := c.Submit(context.Background(), wf)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := c.Wait(id); err != nil {
		t.Fatalf("wait: %v", err)
	}

	got, _ := c.Status(id)
	byName := map[string]models.TaskStatus{}
	for _, tk := range got.Tasks {
		byName[tk.Name] = tk.Status
	}
	if byName["a"] != models.TaskStatusFailed {
		t.Errorf("a should fail, got %s", byName["a"])
	}
	if byName["b"] != models.TaskStatusSkipped {
		t.Errorf("b should be skipped, got %s", byName["b"])
	}
	if byName["c"] != models.TaskStatusCompleted {
		t.Errorf("c should complete, got %s", byName["c"])
	}
	if got.Status != models.WorkflowDegraded {
		t.Errorf("expected degraded workflow, got %s", got.Status)
	}

	// b never reached the backend.
	for _, id := range b.executed() {
		if id == "tb" {
			t.Error("skipped task must never execute")
		}
	}
}

func TestRetryExhaustionFailsTask(t *testing.T) {
	b := &recordingBackend{failTasks: map[string]bool{"t1": true}}
	c := testCoordinator(t, b, testRegistry(t))

	wf := &models.Workflow{
		Name:  "doomed",
		Tasks: []*models.Task{task("t1", "only", "do the thing")},
	}

	id, err := c.Submit(context.Background(), wf)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := c.Wait(id); err != nil {
		t.Fatalf("wait: %v", err)
	}

	got, _ := c.Status(id)
	if got.Status != models.WorkflowFailed {
		t.Errorf("expected failed workflow, got %s", got.Status)
	}
	tk := got.Tasks[0]
	if tk.Status != models.TaskStatusFailed {
		t.Errorf("expected failed task, got %s", tk.Status)
	}
	if tk.Error == "" {
		t.Error("failed task must carry the failure message")
	}
	// MaxRetries=2: two backend attempts, no more.
	if n := len(b.executed()); n != 2 {
		t.Errorf("expected 2 attempts, got %d", n)
	}
}

func TestConcurrencyCeiling(t *testing.T) {
	b := &recordingBackend{delay: 30 * time.Millisecond}
	cfg := DefaultConfig()
	cfg.MaxConcurrent = 1
	cfg.RetryBaseDelay = time.Millisecond
	c := New(Deps{Registry: testRegistry(t), Backend: b}, cfg)

	wf := &models.Workflow{
		Name: "parallel",
		Tasks: []*models.Task{
			task("t1", "a", "do a"),
			task("t2", "b", "do b"),
			task("t3", "c", "do c"),
		},
	}

	id, err := c.Submit(context.Background(), wf)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := c.Wait(id); err != nil {
		t.Fatalf("wait: %v", err)
	}

	if b.maxConcurrent > 1 {
		t.Errorf("concurrency ceiling 1 violated: observed %d", b.maxConcurrent)
	}
	if len(b.executed()) != 3 {
		t.Errorf("expected all 3 tasks executed, got %v", b.executed())
	}
}

// Cheaper providers are preferred; when their quota runs out later tasks
// fail over to the next candidate.
func TestProviderSelectionAndExhaustionFailover(t *testing.T) {
	r := registry.New()
	// The payload below estimates at 10k tokens, so a 15k quota covers
	// exactly one task per cycle.
	r.Upsert(models.Provider{ID: "cheap", QuotaLimit: 15_000, CostPerUnit: 0.000001, Active: true})
	r.Upsert(models.Provider{ID: "pricey", QuotaLimit: 10_000_000, CostPerUnit: 0.0001, Active: true})

	b := &recordingBackend{}
	c := testCoordinator(t, b, r)

	payload := "create the parser and update the schema with a new migration module"

	wf := &models.Workflow{
		Name: "failover",
		Tasks: []*models.Task{
			task("t1", "first", payload),
			task("t2", "second", payload),
		},
		Edges: []models.DependencyEdge{
			{Dependent: "second", Prerequisite: "first", Type: models.EdgeSequence},
		},
	}

	id, err := c.Submit(context.Background(), wf)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := c.Wait(id); err != nil {
		t.Fatalf("wait: %v", err)
	}

	got, _ := c.Status(id)
	if got.Status != models.WorkflowCompleted {
		t.Fatalf("expected completed workflow, got %s", got.Status)
	}

	providers := map[string]string{}
	for _, tk := range got.Tasks {
		providers[tk.Name] = tk.Provider
	}
	if providers["first"] != "cheap" {
		t.Errorf("first task should take the cheaper provider, got %s", providers["first"])
	}
	if providers["second"] != "pricey" {
		t.Errorf("second task should fail over after exhaustion, got %s", providers["second"])
	}

	// Quota was never exceeded on the cheap provider.
	if p, _ := r.Get("cheap"); p.QuotaUsed > p.QuotaLimit {
		t.Errorf("cheap provider over quota: %d > %d", p.QuotaUsed, p.QuotaLimit)
	}
}

func TestNoEligibleProviderFailsWithQuotaKind(t *testing.T) {
	r := registry.New() // empty: nothing to run on
	b := &recordingBackend{}
	c := testCoordinator(t, b, r)

	wf := &models.Workflow{
		Name:  "starved",
		Tasks: []*models.Task{task("t1", "only", "do the thing")},
	}

	id, err := c.Submit(context.Background(), wf)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := c.Wait(id); err != nil {
		t.Fatalf("wait: %v", err)
	}

	got, _ := c.Status(id)
	if got.Tasks[0].Status != models.TaskStatusFailed {
		t.Errorf("expected failed task, got %s", got.Tasks[0].Status)
	}
	if !strings.Contains(got.Tasks[0].Error, "no eligible provider") {
		t.Errorf("error should explain provider starvation: %q", got.Tasks[0].Error)
	}
	if len(b.executed()) != 0 {
		t.Error("nothing should execute without a provider")
	}
}

func TestCancelStopsWorkflow(t *testing.T) {
	b := &recordingBackend{delay: 5 * time.Second}
	c := testCoordinator(t, b, testRegistry(t))

	wf := &models.Workflow{
		Name: "cancellable",
		Tasks: []*models.Task{
			task("t1", "slow", "do the slow thing"),
			task("t2", "after", "do the next thing"),
		},
		Edges: []models.DependencyEdge{
			{Dependent: "after", Prerequisite: "slow", Type: models.EdgeSequence},
		},
	}

	id, err := c.Submit(context.Background(), wf)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Let the first task reach the backend, then cancel.
	deadline := time.Now().Add(2 * time.Second)
	for len(b.executed()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := c.Cancel(id); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	got, _ := c.Status(id)
	if got.Status != models.WorkflowCancelled {
		t.Errorf("expected cancelled workflow, got %s", got.Status)
	}
	for _, tk := range got.Tasks {
		if tk.Status == models.TaskStatusCompleted {
			t.Errorf("task %s should not have completed", tk.Name)
		}
	}
}

func TestEventsCarryLifecycle(t *testing.T) {
	b := &recordingBackend{}
	c := testCoordinator(t, b, testRegistry(t))

	wf := &models.Workflow{
		Name:  "observed",
		Tasks: []*models.Task{task("t1", "only", "do the thing")},
	}

	id, err := c.Submit(context.Background(), wf)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := c.Wait(id); err != nil {
		t.Fatalf("wait: %v", err)
	}

	seen := map[EventType]bool{}
	timeout := time.After(time.Second)
	for !seen[EventWorkflowDone] {
		select {
		case ev := <-c.Events():
			seen[ev.Type] = true
		case <-timeout:
			t.Fatalf("timed out waiting for events, saw %v", seen)
		}
	}
	for _, want := range []EventType{EventWorkflowStarted, EventTaskQueued, EventTaskStarted, EventTaskCompleted, EventWorkflowDone} {
		if !seen[want] {
			t.Errorf("missing %s event", want)
		}
	}
}

// Concurrent workers settle tasks while the run loop reads statuses and
// Status callers snapshot the workflow. Run with -race: every task field
// mutation must stay behind the graph lock.
func TestConcurrentExecutionWithStatusReaders(t *testing.T) {
	b := &recordingBackend{delay: 5 * time.Millisecond, failTasks: map[string]bool{"tf": true}}
	cfg := DefaultConfig()
	cfg.MaxConcurrent = 4
	cfg.MaxRetries = 2
	cfg.RetryBaseDelay = time.Millisecond
	c := New(Deps{Registry: testRegistry(t), Backend: b}, cfg)

	wf := &models.Workflow{
		Name: "churn",
		Tasks: []*models.Task{
			task("t1", "a", "do a"),
			task("t2", "b", "do b"),
			task("t3", "c", "do c"),
			task("t4", "d", "do d"),
			task("t5", "e", "do e"),
			task("tf", "flaky", "do the flaky thing"),
			task("tg", "gated", "do the gated thing"),
		},
		Edges: []models.DependencyEdge{
			// The failure forces skip propagation while other workers
			// are still completing.
			{Dependent: "gated", Prerequisite: "flaky", Type: models.EdgeOnSuccess},
		},
	}

	id, err := c.Submit(context.Background(), wf)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap, err := c.Status(id)
				if err != nil {
					continue
				}
				for _, tk := range snap.Tasks {
					if !tk.Status.Valid() {
						t.Errorf("observed invalid task status %q", tk.Status)
					}
				}
				time.Sleep(time.Millisecond)
			}
		}()
	}

	if err := c.Wait(id); err != nil {
		t.Fatalf("wait: %v", err)
	}
	close(stop)
	wg.Wait()

	got, _ := c.Status(id)
	byName := map[string]models.TaskStatus{}
	for _, tk := range got.Tasks {
		byName[tk.Name] = tk.Status
	}
	if byName["flaky"] != models.TaskStatusFailed {
		t.Errorf("flaky should fail, got %s", byName["flaky"])
	}
	if byName["gated"] != models.TaskStatusSkipped {
		t.Errorf("gated should be skipped, got %s", byName["gated"])
	}
	if got.Status != models.WorkflowDegraded {
		t.Errorf("expected degraded workflow, got %s", got.Status)
	}
}

func testCoordinatorWithEngine(t *testing.T, b backend.Backend, r *registry.Registry) *Coordinator {
	t.Helper()
	cfg := DefaultConfig()
	cfg.MaxRetries = 2
	cfg.RetryBaseDelay = time.Millisecond
	eng := distributor.NewEngine(nil, nil, nil, distributor.DefaultConfig())
	return New(Deps{Registry: r, Backend: b, Engine: eng}, cfg)
}

// An optional subtask failure degrades the plan but the task stands.
func TestOptionalSubtaskFailureDegradesPlan(t *testing.T) {
	b := &recordingBackend{failPayload: "dashboards"}
	c := testCoordinatorWithEngine(t, b, testRegistry(t))

	// Four declared steps and no coordination language: a complex tier
	// parallel_split plan whose chunks are all optional.
	payload := "build the exporter rollout:\n" +
		"- create the collector\n" +
		"- update the dashboards\n" +
		"- refactor the alert rules\n" +
		"- document the runbook"

	wf := &models.Workflow{
		Name:  "partial",
		Tasks: []*models.Task{task("t1", "export", payload)},
	}

	id, err := c.Submit(context.Background(), wf)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := c.Wait(id); err != nil {
		t.Fatalf("wait: %v", err)
	}

	got, _ := c.Status(id)
	if got.Status != models.WorkflowCompleted {
		t.Errorf("expected completed workflow, got %s", got.Status)
	}
	if got.Tasks[0].Status != models.TaskStatusCompleted {
		t.Errorf("task should stand on optional failures, got %s", got.Tasks[0].Status)
	}

	// Three chunks succeed, the failing one is retried MaxRetries times.
	if n := len(b.executed()); n != 5 {
		t.Errorf("expected 5 backend calls (3 ok + 2 attempts), got %d", n)
	}
	for _, p := range b.executedPayloads() {
		if p == payload {
			t.Error("subtasks should carry chunk payloads, not the whole task")
		}
	}

	seen := map[EventType]bool{}
	timeout := time.After(time.Second)
	for !seen[EventWorkflowDone] {
		select {
		case ev := <-c.Events():
			seen[ev.Type] = true
		case <-timeout:
			t.Fatalf("timed out waiting for events, saw %v", seen)
		}
	}
	if !seen[EventPlanDegraded] {
		t.Error("missing plan_degraded event")
	}
}

// A required subtask failure fails the plan and the task; downstream
// pipeline stages never run.
func TestRequiredSubtaskFailureFailsPlanAndSkipsDownstream(t *testing.T) {
	b := &recordingBackend{failPayload: "changelog"}
	c := testCoordinatorWithEngine(t, b, testRegistry(t))

	// Two declared steps: a moderate tier pipeline plan whose stages are
	// required and gated on_success.
	payload := "ship the docs refresh:\n" +
		"1. create the changelog\n" +
		"2. update the install guide"

	wf := &models.Workflow{
		Name:  "staged",
		Tasks: []*models.Task{task("t1", "docs", payload)},
	}

	id, err := c.Submit(context.Background(), wf)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := c.Wait(id); err != nil {
		t.Fatalf("wait: %v", err)
	}

	got, _ := c.Status(id)
	if got.Status != models.WorkflowFailed {
		t.Errorf("expected failed workflow, got %s", got.Status)
	}
	tk := got.Tasks[0]
	if tk.Status != models.TaskStatusFailed {
		t.Errorf("expected failed task, got %s", tk.Status)
	}
	if tk.Error == "" {
		t.Error("failed task must carry the failure message")
	}

	// Only the first stage reached the backend: two attempts, then the
	// dependent stage was skipped.
	if n := len(b.executed()); n != 2 {
		t.Errorf("expected 2 backend calls for the failing stage, got %d", n)
	}
	for _, p := range b.executedPayloads() {
		if strings.Contains(p, "install guide") {
			t.Error("downstream stage must not run after a required failure")
		}
	}
}

// Lapsed predictive holds are swept by the run loop, and a queued task's
// own hold is handed off to admission rather than left behind.
func TestReservationSweepAndHandoff(t *testing.T) {
	a := allocator.New(nil, nil)
	now := time.Now().UTC()
	if _, err := a.Reserve("stale-task", models.ResourceTokens, 5_000,
		now.Add(-2*time.Hour), now.Add(-time.Hour)); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	b := &recordingBackend{}
	cfg := DefaultConfig()
	cfg.RetryBaseDelay = time.Millisecond
	c := New(Deps{Registry: testRegistry(t), Backend: b, Alloc: a}, cfg)

	wf := &models.Workflow{
		Name:  "swept",
		Tasks: []*models.Task{task("t1", "only", "do the thing")},
	}

	id, err := c.Submit(context.Background(), wf)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := c.Wait(id); err != nil {
		t.Fatalf("wait: %v", err)
	}

	if held := a.ReservedDuring(models.ResourceTokens,
		now.Add(-3*time.Hour), now.Add(time.Hour)); held != 0 {
		t.Errorf("expected no holds after the run, still holding %d", held)
	}

	seen := map[EventType]bool{}
	timeout := time.After(time.Second)
	for !seen[EventWorkflowDone] {
		select {
		case ev := <-c.Events():
			seen[ev.Type] = true
		case <-timeout:
			t.Fatalf("timed out waiting for events, saw %v", seen)
		}
	}
	if !seen[EventReservationExpired] {
		t.Error("missing reservation_expired event")
	}
}
