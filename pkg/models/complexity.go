package models

// ComplexityTier classifies how involved a task is.
type ComplexityTier string

const (
	// TierSimple is a single-step task that never gets split.
	TierSimple ComplexityTier = "simple"
	// TierModerate is a small multi-step task.
	TierModerate ComplexityTier = "moderate"
	// TierComplex is a task with several deliverables or coordination needs.
	TierComplex ComplexityTier = "complex"
	// TierHighlyComplex is a task with many steps and cross-team dependencies.
	TierHighlyComplex ComplexityTier = "highly_complex"
)

// Valid returns true if the tier is a known value.
func (t ComplexityTier) Valid() bool {
	switch t {
	case TierSimple, TierModerate, TierComplex, TierHighlyComplex:
		return true
	default:
		return false
	}
}

// Rank returns the tier's position in the ordering simple < moderate <
// complex < highly_complex. Unknown tiers rank below simple.
func (t ComplexityTier) Rank() int {
	switch t {
	case TierSimple:
		return 1
	case TierModerate:
		return 2
	case TierComplex:
		return 3
	case TierHighlyComplex:
		return 4
	default:
		return 0
	}
}

// ComplexityAnalysis is the deterministic result of analyzing a task payload.
type ComplexityAnalysis struct {
	// Tier is the assigned complexity tier.
	Tier ComplexityTier `json:"tier"`
	// EstimatedSteps is the predicted number of discrete work steps.
	EstimatedSteps int `json:"estimated_steps"`
	// EstimatedSeconds is the predicted wall-clock execution time.
	EstimatedSeconds int `json:"estimated_seconds"`
	// EstimatedTokens is the predicted token volume.
	EstimatedTokens int64 `json:"estimated_tokens"`
	// Strategy is the recommended distribution strategy.
	Strategy Strategy `json:"strategy"`
	// Confidence is in [0,1] and reflects how strongly the counted
	// signals agree on the tier.
	Confidence float64 `json:"confidence"`
	// Signals records the counted evidence behind the classification.
	Signals ComplexitySignals `json:"signals"`
}

// ComplexitySignals are the raw counts the analyzer derives from a payload.
type ComplexitySignals struct {
	// ActionVerbs is the count of distinct action verbs found.
	ActionVerbs int `json:"action_verbs"`
	// Deliverables is the count of named sub-deliverables found.
	Deliverables int `json:"deliverables"`
	// Coordination is the count of cross-team or approval keywords found.
	Coordination int `json:"coordination"`
	// Words is the payload word count.
	Words int `json:"words"`
}
