// Package distributor turns complexity analysis into versioned execution plans.
package distributor

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/taskweave/taskweave/pkg/models"
)

// Splitter implements one distribution strategy. Splitters are registered by
// name and resolved by key at plan-build time; there is no runtime loading.
type Splitter interface {
	// Strategy returns the key this splitter is registered under.
	Strategy() models.Strategy
	// Split breaks the task into subtask specs with their dependency edges.
	Split(task *models.Task, analysis models.ComplexityAnalysis) []models.SubtaskSpec
}

// Registry holds named splitter implementations.
type Registry struct {
	mu        sync.RWMutex
	splitters map[models.Strategy]Splitter
}

// NewRegistry creates a registry with every built-in strategy registered.
func NewRegistry() *Registry {
	r := &Registry{splitters: make(map[models.Strategy]Splitter)}
	r.Register(noSplit{})
	r.Register(pipelineSplit{})
	r.Register(parallelSplit{})
	r.Register(hierarchicalSplit{})
	r.Register(hybridSplit{})
	return r
}

// Register adds or replaces a splitter under its strategy key.
func (r *Registry) Register(s Splitter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.splitters[s.Strategy()] = s
}

// Lookup returns the splitter for a strategy key.
func (r *Registry) Lookup(strategy models.Strategy) (Splitter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.splitters[strategy]
	return s, ok
}

// stepRe matches a declared step line: numbered or bulleted.
var stepRe = regexp.MustCompile(`(?m)^\s*(?:\d+[.)]|[-*])\s+(.+)$`)

// declaredSteps extracts the step texts a payload declares, in order.
func declaredSteps(payload string) []string {
	var steps []string
	for _, m := range stepRe.FindAllStringSubmatch(payload, -1) {
		steps = append(steps, strings.TrimSpace(m[1]))
	}
	return steps
}

// chunkPayloads returns per-subtask payloads: the declared steps when the
// payload has them, otherwise n labeled slices of the whole payload.
func chunkPayloads(payload string, n int) []string {
	if steps := declaredSteps(payload); len(steps) > 0 {
		return steps
	}
	if n < 1 {
		n = 1
	}
	chunks := make([]string, n)
	for i := range chunks {
		chunks[i] = fmt.Sprintf("part %d of %d: %s", i+1, n, payload)
	}
	return chunks
}

// subtaskEstimates spreads the task-level estimates evenly over n subtasks.
func subtaskEstimates(analysis models.ComplexityAnalysis, n int) (seconds int, tokens int64) {
	if n < 1 {
		n = 1
	}
	return analysis.EstimatedSeconds / n, analysis.EstimatedTokens / int64(n)
}

type noSplit struct{}

func (noSplit) Strategy() models.Strategy { return models.StrategyNoSplit }

func (noSplit) Split(task *models.Task, analysis models.ComplexityAnalysis) []models.SubtaskSpec {
	return []models.SubtaskSpec{{
		Name:             task.Name,
		Payload:          task.Payload,
		Tier:             analysis.Tier,
		EstimatedSeconds: analysis.EstimatedSeconds,
		EstimatedTokens:  analysis.EstimatedTokens,
		Required:         true,
	}}
}

type pipelineSplit struct{}

func (pipelineSplit) Strategy() models.Strategy { return models.StrategyPipeline }

// Split produces one subtask per declared step, each gated on the success of
// the previous one.
func (pipelineSplit) Split(task *models.Task, analysis models.ComplexityAnalysis) []models.SubtaskSpec {
	chunks := chunkPayloads(task.Payload, analysis.EstimatedSteps)
	seconds, tokens := subtaskEstimates(analysis, len(chunks))

	specs := make([]models.SubtaskSpec, 0, len(chunks))
	for i, chunk := range chunks {
		spec := models.SubtaskSpec{
			Name:             fmt.Sprintf("%s-stage-%02d", task.Name, i+1),
			Payload:          chunk,
			Tier:             analysis.Tier,
			EstimatedSeconds: seconds,
			EstimatedTokens:  tokens,
			Required:         true,
		}
		if i > 0 {
			spec.DependsOn = []models.DependencyEdge{{
				Dependent:    spec.Name,
				Prerequisite: specs[i-1].Name,
				Type:         models.EdgeOnSuccess,
			}}
		}
		specs = append(specs, spec)
	}
	return specs
}

type parallelSplit struct{}

func (parallelSplit) Strategy() models.Strategy { return models.StrategyParallelSplit }

// Split produces independent chunks with no inter-subtask edges.
func (parallelSplit) Split(task *models.Task, analysis models.ComplexityAnalysis) []models.SubtaskSpec {
	chunks := chunkPayloads(task.Payload, analysis.EstimatedSteps)
	seconds, tokens := subtaskEstimates(analysis, len(chunks))

	specs := make([]models.SubtaskSpec, 0, len(chunks))
	for i, chunk := range chunks {
		specs = append(specs, models.SubtaskSpec{
			Name:             fmt.Sprintf("%s-chunk-%02d", task.Name, i+1),
			Payload:          chunk,
			Tier:             analysis.Tier,
			EstimatedSeconds: seconds,
			EstimatedTokens:  tokens,
			Required:         false,
		})
	}
	return specs
}

type hierarchicalSplit struct{}

func (hierarchicalSplit) Strategy() models.Strategy { return models.StrategyHierarchicalSplit }

// Split produces a tree: a root coordination subtask, child subtasks gated on
// the root, and an integration subtask gated on every child.
func (hierarchicalSplit) Split(task *models.Task, analysis models.ComplexityAnalysis) []models.SubtaskSpec {
	chunks := chunkPayloads(task.Payload, analysis.EstimatedSteps)
	seconds, tokens := subtaskEstimates(analysis, len(chunks)+2)

	root := models.SubtaskSpec{
		Name:             task.Name + "-plan",
		Payload:          "Break down and sequence the following work:\n" + task.Payload,
		Tier:             analysis.Tier,
		EstimatedSeconds: seconds,
		EstimatedTokens:  tokens,
		Required:         true,
	}
	specs := []models.SubtaskSpec{root}

	integrate := models.SubtaskSpec{
		Name:             task.Name + "-integrate",
		Payload:          "Integrate and verify the combined results of all subtasks.",
		Tier:             analysis.Tier,
		EstimatedSeconds: seconds,
		EstimatedTokens:  tokens,
		Required:         true,
	}

	for i, chunk := range chunks {
		child := models.SubtaskSpec{
			Name:             fmt.Sprintf("%s-child-%02d", task.Name, i+1),
			Payload:          chunk,
			Tier:             analysis.Tier,
			EstimatedSeconds: seconds,
			EstimatedTokens:  tokens,
			Required:         true,
			DependsOn: []models.DependencyEdge{{
				Dependent:    fmt.Sprintf("%s-child-%02d", task.Name, i+1),
				Prerequisite: root.Name,
				Type:         models.EdgeOnSuccess,
			}},
		}
		specs = append(specs, child)
		integrate.DependsOn = append(integrate.DependsOn, models.DependencyEdge{
			Dependent:    integrate.Name,
			Prerequisite: child.Name,
			Type:         models.EdgeOnSuccess,
		})
	}

	return append(specs, integrate)
}

type hybridSplit struct{}

func (hybridSplit) Strategy() models.Strategy { return models.StrategyHybrid }

// Split pipelines across paragraph groups and parallelizes declared steps
// inside each group.
func (hybridSplit) Split(task *models.Task, analysis models.ComplexityAnalysis) []models.SubtaskSpec {
	groups := splitParagraphs(task.Payload)
	if len(groups) < 2 {
		// Nothing to stage: degrade to a parallel split.
		return parallelSplit{}.Split(task, analysis)
	}

	var specs []models.SubtaskSpec
	var prevGroup []string

	for gi, group := range groups {
		chunks := chunkPayloads(group, 1)
		seconds, tokens := subtaskEstimates(analysis, len(groups)*len(chunks))

		var names []string
		for ci, chunk := range chunks {
			spec := models.SubtaskSpec{
				Name:             fmt.Sprintf("%s-g%02d-%02d", task.Name, gi+1, ci+1),
				Payload:          chunk,
				Tier:             analysis.Tier,
				EstimatedSeconds: seconds,
				EstimatedTokens:  tokens,
				Required:         true,
			}
			// Each member of a stage waits on every member of the
			// previous stage.
			for _, p := range prevGroup {
				spec.DependsOn = append(spec.DependsOn, models.DependencyEdge{
					Dependent:    spec.Name,
					Prerequisite: p,
					Type:         models.EdgeOnSuccess,
				})
			}
			names = append(names, spec.Name)
			specs = append(specs, spec)
		}
		prevGroup = names
	}
	return specs
}

// splitParagraphs breaks a payload on blank lines, dropping empties.
func splitParagraphs(payload string) []string {
	var groups []string
	for _, p := range strings.Split(payload, "\n\n") {
		if t := strings.TrimSpace(p); t != "" {
			groups = append(groups, t)
		}
	}
	return groups
}
