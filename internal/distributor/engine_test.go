package distributor

import (
	"testing"

	"github.com/taskweave/taskweave/pkg/models"
)

// fakePlanStore is an in-memory PlanStore.
type fakePlanStore struct {
	plans []models.ExecutionPlan
}

func (f *fakePlanStore) CreatePlan(p *models.ExecutionPlan) error {
	f.plans = append(f.plans, *p)
	return nil
}

func (f *fakePlanStore) ListPlansByTask(taskID string) ([]models.ExecutionPlan, error) {
	var out []models.ExecutionPlan
	for _, p := range f.plans {
		if p.TaskID == taskID {
			out = append(out, p)
		}
	}
	return out, nil
}

func task(id, payload string) *models.Task {
	return &models.Task{
		ID:      id,
		Name:    id,
		Type:    models.TaskTypeFeature,
		Payload: payload,
		Status:  models.TaskStatusPending,
	}
}

const complexPayload = `Rebuild the export pipeline.
1. implement the new extractor
2. add schema validation
3. build the transformer
4. write integration tests
5. document the output format`

// A simple task always yields a single-subtask no_split plan, regardless of
// the requested strategy.
func TestDistributeSimpleOverridesRequest(t *testing.T) {
	e := NewEngine(nil, nil, nil, DefaultConfig())

	for _, requested := range []models.Strategy{
		models.StrategyParallelSplit,
		models.StrategyHierarchicalSplit,
		models.StrategyPipeline,
		models.StrategyHybrid,
		"",
	} {
		plan, err := e.Distribute(task("t1", "Fix typo in README"), requested)
		if err != nil {
			t.Fatalf("distribute(%q): %v", requested, err)
		}
		if plan.Strategy != models.StrategyNoSplit {
			t.Errorf("requested %q: expected no_split, got %s", requested, plan.Strategy)
		}
		if len(plan.Subtasks) != 1 {
			t.Errorf("requested %q: expected 1 subtask, got %d", requested, len(plan.Subtasks))
		}
	}
}

func TestDistributeRejectsUnknownStrategy(t *testing.T) {
	e := NewEngine(nil, nil, nil, DefaultConfig())
	if _, err := e.Distribute(task("t1", complexPayload), "fork_bomb"); err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}

func TestDistributePipelineWiresSequentially(t *testing.T) {
	e := NewEngine(nil, nil, nil, DefaultConfig())
	plan, err := e.Distribute(task("t1", complexPayload), models.StrategyPipeline)
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}

	if len(plan.Subtasks) != 5 {
		t.Fatalf("expected 5 stages, got %d", len(plan.Subtasks))
	}
	if len(plan.Subtasks[0].DependsOn) != 0 {
		t.Error("first stage should have no dependencies")
	}
	for i := 1; i < len(plan.Subtasks); i++ {
		deps := plan.Subtasks[i].DependsOn
		if len(deps) != 1 || deps[0].Prerequisite != plan.Subtasks[i-1].Name {
			t.Errorf("stage %d should depend on stage %d, got %v", i, i-1, deps)
		}
		if deps[0].Type != models.EdgeOnSuccess {
			t.Errorf("stage %d edge should be on_success, got %s", i, deps[0].Type)
		}
	}
}

func TestDistributeParallelHasNoEdges(t *testing.T) {
	e := NewEngine(nil, nil, nil, DefaultConfig())
	plan, err := e.Distribute(task("t1", complexPayload), models.StrategyParallelSplit)
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	for _, st := range plan.Subtasks {
		if len(st.DependsOn) != 0 {
			t.Errorf("parallel subtask %s should have no dependencies", st.Name)
		}
	}
}

func TestDistributeHierarchicalTree(t *testing.T) {
	e := NewEngine(nil, nil, nil, DefaultConfig())
	plan, err := e.Distribute(task("t1", complexPayload), models.StrategyHierarchicalSplit)
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}

	// root + 5 children + integrate
	if len(plan.Subtasks) != 7 {
		t.Fatalf("expected 7 subtasks, got %d", len(plan.Subtasks))
	}

	root := plan.Subtasks[0]
	if len(root.DependsOn) != 0 {
		t.Error("root should have no dependencies")
	}

	last := plan.Subtasks[len(plan.Subtasks)-1]
	if len(last.DependsOn) != 5 {
		t.Errorf("integrate step should wait on all 5 children, got %d deps", len(last.DependsOn))
	}
	for _, st := range plan.Subtasks[1 : len(plan.Subtasks)-1] {
		if len(st.DependsOn) != 1 || st.DependsOn[0].Prerequisite != root.Name {
			t.Errorf("child %s should depend only on root", st.Name)
		}
	}
}

// Parallel coordination is cheaper than hierarchical coordination.
func TestOverheadOrdering(t *testing.T) {
	if overheadMultiplier[models.StrategyParallelSplit] >= overheadMultiplier[models.StrategyHierarchicalSplit] {
		t.Error("parallel overhead must be below hierarchical overhead")
	}
	if overheadMultiplier[models.StrategyNoSplit] != 1.0 {
		t.Error("no_split must carry no overhead")
	}
}

func TestDistributeVersionsAccumulate(t *testing.T) {
	store := &fakePlanStore{}
	e := NewEngine(nil, nil, store, DefaultConfig())

	first, err := e.Distribute(task("t1", complexPayload), models.StrategyPipeline)
	if err != nil {
		t.Fatalf("distribute v1: %v", err)
	}
	second, err := e.Distribute(task("t1", complexPayload), models.StrategyParallelSplit)
	if err != nil {
		t.Fatalf("distribute v2: %v", err)
	}

	if first.Version != 1 || second.Version != 2 {
		t.Errorf("expected versions 1 and 2, got %d and %d", first.Version, second.Version)
	}
	// History is retained, not replaced.
	if len(store.plans) != 2 {
		t.Errorf("expected 2 stored plan versions, got %d", len(store.plans))
	}
}

func TestValidateWarningsAreActionable(t *testing.T) {
	e := NewEngine(nil, nil, nil, Config{CostWarnThreshold: 0.0001, TimeWarnSeconds: 1, MaxSubtasks: 1})
	plan, err := e.Distribute(task("t1", complexPayload), models.StrategyPipeline)
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}

	if len(plan.Warnings) == 0 {
		t.Fatal("expected warnings with tight thresholds")
	}
	for _, w := range plan.Warnings {
		if w.Message == "" {
			t.Errorf("warning %s carries no actionable text", w.Code)
		}
		if w.Code == "" {
			t.Error("warning has no code")
		}
	}
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	for _, s := range []models.Strategy{
		models.StrategyNoSplit,
		models.StrategyParallelSplit,
		models.StrategyHierarchicalSplit,
		models.StrategyPipeline,
		models.StrategyHybrid,
	} {
		if _, ok := r.Lookup(s); !ok {
			t.Errorf("expected built-in splitter for %s", s)
		}
	}
	if _, ok := r.Lookup("bogus"); ok {
		t.Error("unexpected splitter for unknown strategy")
	}
}
