package analyzer

import (
	"testing"

	"github.com/taskweave/taskweave/pkg/models"
)

func TestAnalyzeSimpleTask(t *testing.T) {
	a := New()
	got := a.Analyze("Fix typo in README")

	if got.Tier != models.TierSimple {
		t.Errorf("expected simple tier, got %s", got.Tier)
	}
	if got.Strategy != models.StrategyNoSplit {
		t.Errorf("expected no_split strategy, got %s", got.Strategy)
	}
	if got.EstimatedSteps != 1 {
		t.Errorf("expected 1 step, got %d", got.EstimatedSteps)
	}
}

func TestAnalyzeModerateTask(t *testing.T) {
	a := New()
	got := a.Analyze("Add a retry helper and update the client to use it, then test the error paths")

	if got.Tier != models.TierModerate && got.Tier != models.TierComplex {
		t.Errorf("expected moderate or complex tier, got %s", got.Tier)
	}
	if got.EstimatedSteps < 2 {
		t.Errorf("expected at least 2 steps, got %d", got.EstimatedSteps)
	}
}

// Ten distinct action steps plus cross-team approval language classifies
// highly_complex with hierarchical_split and confidence >= 0.8.
func TestAnalyzeHighlyComplexTask(t *testing.T) {
	payload := `Rework the billing subsystem. Requires cross-team approval from platform.
1. design the new invoice schema
2. migrate existing invoice rows
3. implement the proration engine
4. add webhook delivery
5. build the reconciliation job
6. write contract tests
7. update the admin endpoints
8. document the new flows
9. integrate with the ledger service
10. deploy behind a feature flag`

	a := New()
	got := a.Analyze(payload)

	if got.Tier != models.TierHighlyComplex {
		t.Fatalf("expected highly_complex, got %s (signals %+v)", got.Tier, got.Signals)
	}
	if got.Strategy != models.StrategyHierarchicalSplit {
		t.Errorf("expected hierarchical_split, got %s", got.Strategy)
	}
	if got.Confidence < 0.8 {
		t.Errorf("expected confidence >= 0.8, got %f", got.Confidence)
	}
	if got.EstimatedSteps < 10 {
		t.Errorf("expected at least 10 steps, got %d", got.EstimatedSteps)
	}
}

func TestAnalyzeDeterministic(t *testing.T) {
	a := New()
	payload := "Implement the importer, add validation, and document the format"

	first := a.Analyze(payload)
	for i := 0; i < 5; i++ {
		if got := a.Analyze(payload); got != first {
			t.Fatalf("analysis not deterministic: %+v vs %+v", got, first)
		}
	}
}

func TestConfidenceBounds(t *testing.T) {
	a := New()
	payloads := []string{
		"",
		"do the thing",
		"implement add create build write test deploy fix update remove",
		"Requires approval. Fix typo.",
	}
	for _, p := range payloads {
		got := a.Analyze(p)
		if got.Confidence < 0 || got.Confidence > 1 {
			t.Errorf("confidence out of range for %q: %f", p, got.Confidence)
		}
	}
}

func TestCoordinationRaisesTier(t *testing.T) {
	a := New()
	plain := a.Analyze("Update the parser and add a test")
	coord := a.Analyze("Update the parser and add a test, needs sign-off from the security stakeholder")

	if coord.Tier.Rank() <= plain.Tier.Rank() {
		t.Errorf("coordination language should raise tier: %s vs %s", coord.Tier, plain.Tier)
	}
}

func TestEstimatesScaleWithSteps(t *testing.T) {
	a := New()
	small := a.Analyze("Fix typo")
	big := a.Analyze(`1. implement parsing
2. add validation
3. build the cache
4. write tests
5. document usage`)

	if big.EstimatedSeconds <= small.EstimatedSeconds {
		t.Error("expected larger task to have larger time estimate")
	}
	if big.EstimatedTokens <= small.EstimatedTokens {
		t.Error("expected larger task to have larger token estimate")
	}
}
