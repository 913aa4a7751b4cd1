package analyzer

import (
	"regexp"
	"strings"

	"github.com/taskweave/taskweave/pkg/models"
)

// Per-step estimate bases. Estimates are deliberately coarse; they feed
// relative ordering decisions, not billing.
const (
	secondsPerStep = 90
	tokensPerStep  = 4000
	baseSeconds    = 60
	baseTokens     = 2000
)

// listItemRe matches numbered or bulleted list items, one per line.
var listItemRe = regexp.MustCompile(`(?m)^\s*(?:\d+[.)]|[-*])\s+\S`)

// Analyzer performs deterministic, rule-based complexity analysis of task
// payloads. The same payload always produces the same analysis.
type Analyzer struct {
	verbs        []string
	deliverables []string
	coordination []string
}

// New creates an Analyzer with the default signal tables.
func New() *Analyzer {
	return &Analyzer{
		verbs:        actionVerbs,
		deliverables: deliverableMarkers,
		coordination: coordinationKeywords,
	}
}

// Analyze classifies a task payload into a complexity tier, estimates effort,
// and recommends a distribution strategy.
func (a *Analyzer) Analyze(payload string) models.ComplexityAnalysis {
	signals := a.countSignals(payload)
	steps := estimatedSteps(signals)
	tier := classify(steps, signals)

	analysis := models.ComplexityAnalysis{
		Tier:             tier,
		EstimatedSteps:   steps,
		EstimatedSeconds: baseSeconds + steps*secondsPerStep,
		EstimatedTokens:  int64(baseTokens + steps*tokensPerStep),
		Strategy:         recommendStrategy(tier, signals),
		Confidence:       confidence(tier, steps, signals),
		Signals:          signals,
	}
	return analysis
}

// countSignals extracts the raw evidence counts from a payload.
func (a *Analyzer) countSignals(payload string) models.ComplexitySignals {
	lower := strings.ToLower(payload)
	words := strings.Fields(lower)

	// Count distinct action verbs present as whole words.
	wordSet := make(map[string]bool, len(words))
	for _, w := range words {
		wordSet[strings.Trim(w, ".,;:!?()[]\"'")] = true
	}
	verbCount := 0
	for _, v := range a.verbs {
		if wordSet[v] || wordSet[v+"s"] || wordSet[v+"ing"] {
			verbCount++
		}
	}

	deliverables := 0
	for _, m := range a.deliverables {
		deliverables += strings.Count(lower, m)
	}

	coordination := 0
	for _, k := range a.coordination {
		coordination += strings.Count(lower, k)
	}

	// Explicit list items are the strongest step signal.
	listItems := len(listItemRe.FindAllString(payload, -1))
	if listItems > deliverables {
		deliverables = listItems
	}

	return models.ComplexitySignals{
		ActionVerbs:  verbCount,
		Deliverables: deliverables,
		Coordination: coordination,
		Words:        len(words),
	}
}

// estimatedSteps derives the step count from the strongest of the counted
// signals. Every task has at least one step.
func estimatedSteps(s models.ComplexitySignals) int {
	steps := s.ActionVerbs
	if s.Deliverables > steps {
		steps = s.Deliverables
	}
	if steps < 1 {
		steps = 1
	}
	return steps
}

// classify maps step count and coordination signals to a tier.
func classify(steps int, s models.ComplexitySignals) models.ComplexityTier {
	switch {
	case steps >= 7, steps >= 5 && s.Coordination > 0:
		return models.TierHighlyComplex
	case steps >= 4, s.Coordination > 0:
		return models.TierComplex
	case steps >= 2, s.Words >= 60:
		return models.TierModerate
	default:
		return models.TierSimple
	}
}

// recommendStrategy picks a distribution strategy for the tier.
// Deliverable-heavy complex tasks with coordination needs get a hierarchy;
// independent chunks parallelize; ordered moderate work pipelines.
func recommendStrategy(tier models.ComplexityTier, s models.ComplexitySignals) models.Strategy {
	switch tier {
	case models.TierSimple:
		return models.StrategyNoSplit
	case models.TierModerate:
		if s.Deliverables >= 2 {
			return models.StrategyPipeline
		}
		return models.StrategyNoSplit
	case models.TierComplex:
		if s.Coordination > 0 {
			return models.StrategyHierarchicalSplit
		}
		return models.StrategyParallelSplit
	default:
		return models.StrategyHierarchicalSplit
	}
}

// confidence reflects agreement between the counted signals. Each signal
// votes for a tier bucket; confidence is the weighted share of votes that
// agree with the chosen tier, floored at 0.5 since classify always follows
// the strongest signal.
func confidence(tier models.ComplexityTier, steps int, s models.ComplexitySignals) float64 {
	votes := 0
	agree := 0

	vote := func(t models.ComplexityTier) {
		votes++
		if t == tier {
			agree++
		}
	}

	if s.ActionVerbs > 0 {
		vote(classify(s.ActionVerbs, models.ComplexitySignals{}))
	}
	if s.Deliverables > 0 {
		vote(classify(s.Deliverables, models.ComplexitySignals{}))
	}
	if s.Coordination > 0 {
		// Coordination alone argues for at least complex.
		if tier == models.TierComplex || tier == models.TierHighlyComplex {
			votes, agree = votes+1, agree+1
		} else {
			votes++
		}
	}

	if votes == 0 {
		// No signals at all: a short, plain payload. The simple
		// classification is solid, anything else is a guess.
		if tier == models.TierSimple {
			return 0.9
		}
		return 0.5
	}

	c := 0.5 + 0.5*float64(agree)/float64(votes)
	if c > 1.0 {
		c = 1.0
	}
	return c
}
