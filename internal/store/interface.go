package store

import (
	"io"
	"time"

	"github.com/taskweave/taskweave/internal/allocator"
	"github.com/taskweave/taskweave/internal/conflict"
	"github.com/taskweave/taskweave/internal/coordinator"
	"github.com/taskweave/taskweave/internal/distributor"
	"github.com/taskweave/taskweave/pkg/models"
)

// WorkflowStore handles workflow and task persistence.
type WorkflowStore interface {
	CreateWorkflow(w *models.Workflow) error
	GetWorkflow(id string) (*models.Workflow, error)
	UpdateWorkflowStatus(id string, status models.WorkflowStatus) error
	GetTask(id string) (*models.Task, error)
	UpdateTask(t *models.Task) error
	ListTasksByWorkflow(workflowID string) ([]*models.Task, error)
}

// PlanStore handles execution plan persistence.
type PlanStore interface {
	CreatePlan(p *models.ExecutionPlan) error
	UpdatePlanStatus(id string, status models.PlanStatus) error
	ListPlansByTask(taskID string) ([]models.ExecutionPlan, error)
	LatestPlanByTask(taskID string) (*models.ExecutionPlan, error)
}

// CostStore handles the append-only cost audit trail.
type CostStore interface {
	AppendCost(c *models.CostRecord) error
	ListCostsByTask(taskID string) ([]models.CostRecord, error)
	SummarizeCosts() ([]CostSummary, error)
}

// Migrator applies pending schema migrations.
type Migrator interface {
	Migrate() error
}

// Store is the full persistence surface the coordinator uses.
type Store interface {
	io.Closer
	Migrator
	WorkflowStore
	PlanStore
	CostStore

	CreateAllocation(a *models.ResourceAllocation) error
	ReleaseAllocations(taskID string, at time.Time) error
	CreateConflict(c *models.ResourceConflict) error
	UpdateConflict(c *models.ResourceConflict) error
}

// Compile-time verification that DB implements every consumer interface.
var (
	_ Store                     = (*DB)(nil)
	_ WorkflowStore             = (*DB)(nil)
	_ PlanStore                 = (*DB)(nil)
	_ CostStore                 = (*DB)(nil)
	_ distributor.PlanStore     = (*DB)(nil)
	_ allocator.AllocationStore = (*DB)(nil)
	_ conflict.Store            = (*DB)(nil)
	_ coordinator.Store         = (*DB)(nil)
)
