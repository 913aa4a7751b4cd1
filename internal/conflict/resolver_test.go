package conflict

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/taskweave/taskweave/pkg/models"
)

var t0 = time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)

func claim(id string, priority int, created time.Time, amount int64) Claim {
	return Claim{TaskID: id, Priority: priority, CreatedAt: created, Amount: amount}
}

func TestSortClaimsTotalOrder(t *testing.T) {
	claims := []Claim{
		claim("t-c", 1, t0, 10),
		claim("t-a", 1, t0, 10),                   // same priority and time: id breaks tie
		claim("t-b", 5, t0.Add(time.Minute), 10),  // highest priority wins despite later creation
		claim("t-d", 1, t0.Add(-time.Minute), 10), // earlier created_at beats same priority
	}

	sorted := sortClaims(claims)
	want := []string{"t-b", "t-d", "t-a", "t-c"}
	for i, w := range want {
		if sorted[i].TaskID != w {
			t.Fatalf("position %d: expected %s, got %s", i, w, sorted[i].TaskID)
		}
	}
}

func TestOverAllocationDelaysLowerPriority(t *testing.T) {
	r := NewResolver(nil)
	c := r.Detect(models.ConflictOverAllocation, []string{"t1", "t2"}, "", models.ResourceTokens)

	d, err := r.Resolve(c, Input{
		Free: 100,
		Claims: []Claim{
			claim("t1", 1, t0, 80),
			claim("t2", 9, t0, 80),
		},
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if len(d.Admitted) != 1 || d.Admitted[0] != "t2" {
		t.Errorf("expected high-priority t2 admitted, got %v", d.Admitted)
	}
	if len(d.Deferred) != 1 || d.Deferred[0] != "t1" {
		t.Errorf("expected t1 deferred, got %v", d.Deferred)
	}
	if c.Status != models.ConflictResolved {
		t.Errorf("expected resolved status, got %s", c.Status)
	}
	if c.Strategy != models.ResolutionDelay {
		t.Errorf("expected delay strategy, got %s", c.Strategy)
	}
	if c.Outcome == "" {
		t.Error("resolution must record an outcome for audit")
	}
	if c.ResolvedAt == nil {
		t.Error("resolved conflict must carry a resolution timestamp")
	}
}

// Two tasks racing for a provider's last quota unit: exactly one admitted.
func TestQuotaRaceAdmitsExactlyOne(t *testing.T) {
	r := NewResolver(nil)
	c := r.Detect(models.ConflictQuotaRace, []string{"t1", "t2"}, "p1", "")

	d, err := r.Resolve(c, Input{
		Free: 1,
		Claims: []Claim{
			claim("t1", 3, t0, 1),
			claim("t2", 3, t0, 1),
		},
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if len(d.Admitted) != 1 {
		t.Fatalf("expected exactly one admission, got %v", d.Admitted)
	}
	if len(d.Deferred) != 1 {
		t.Fatalf("expected exactly one deferral, got %v", d.Deferred)
	}
	// True tie resolves by ascending task id.
	if d.Admitted[0] != "t1" || d.Deferred[0] != "t2" {
		t.Errorf("tie should admit t1 and defer t2, got %v / %v", d.Admitted, d.Deferred)
	}
}

type fakeRanker struct {
	provider string
	ok       bool
}

func (f fakeRanker) NextHealthiest(exclude []string, estTokens int64) (string, bool) {
	return f.provider, f.ok
}

func TestDoubleBookingReassigns(t *testing.T) {
	r := NewResolver(nil)
	c := r.Detect(models.ConflictDoubleBooking, []string{"t1", "t2"}, "p1", "")

	d, err := r.Resolve(c, Input{
		Ranker: fakeRanker{provider: "p2", ok: true},
		Claims: []Claim{
			claim("t1", 5, t0, 10),
			claim("t2", 1, t0, 10),
		},
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if d.Admitted[0] != "t1" {
		t.Errorf("expected t1 to keep the slot, got %v", d.Admitted)
	}
	if d.Reassigned["t2"] != "p2" {
		t.Errorf("expected t2 reassigned to p2, got %v", d.Reassigned)
	}
	if c.Strategy != models.ResolutionReassign {
		t.Errorf("expected reassign strategy, got %s", c.Strategy)
	}
}

func TestDoubleBookingQueuesWithoutAlternative(t *testing.T) {
	r := NewResolver(nil)
	c := r.Detect(models.ConflictDoubleBooking, []string{"t1", "t2"}, "p1", "")

	d, err := r.Resolve(c, Input{
		Ranker: fakeRanker{ok: false},
		Claims: []Claim{
			claim("t1", 5, t0, 10),
			claim("t2", 1, t0, 10),
		},
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if len(d.Deferred) != 1 || d.Deferred[0] != "t2" {
		t.Errorf("expected t2 queued, got %v", d.Deferred)
	}
	if c.Strategy != models.ResolutionQueue {
		t.Errorf("expected queue strategy, got %s", c.Strategy)
	}
}

// Identical conflicting state re-resolves identically.
func TestResolutionDeterministic(t *testing.T) {
	input := Input{
		Free: 50,
		Claims: []Claim{
			claim("t3", 2, t0, 30),
			claim("t1", 2, t0, 30),
			claim("t2", 7, t0, 30),
		},
	}

	var first *Decision
	for i := 0; i < 5; i++ {
		r := NewResolver(nil)
		c := r.Detect(models.ConflictOverAllocation, []string{"t1", "t2", "t3"}, "", models.ResourceCPU)
		d, err := r.Resolve(c, input)
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if first == nil {
			first = d
			continue
		}
		if fmt.Sprint(d.Admitted) != fmt.Sprint(first.Admitted) ||
			fmt.Sprint(d.Deferred) != fmt.Sprint(first.Deferred) {
			t.Fatalf("resolution not deterministic: %v/%v vs %v/%v",
				d.Admitted, d.Deferred, first.Admitted, first.Deferred)
		}
	}
}

// failingHandler always errors, driving the resolver toward escalation.
type failingHandler struct{}

func (failingHandler) Type() models.ConflictType { return models.ConflictOverAllocation }
func (failingHandler) Resolve(*models.ResourceConflict, Input) (*Decision, error) {
	return nil, errors.New("strategy does not apply")
}

func TestEscalateAfterMaxAttempts(t *testing.T) {
	r := NewResolver(nil)
	r.Register(failingHandler{})
	r.SetMaxAttempts(2)

	c := r.Detect(models.ConflictOverAllocation, []string{"t1"}, "", models.ResourceCPU)

	// First attempt fails but stays retryable.
	if _, err := r.Resolve(c, Input{Claims: []Claim{claim("t1", 1, t0, 1)}}); err == nil {
		t.Fatal("expected first attempt to fail")
	}
	if c.Status.Terminal() {
		t.Fatalf("conflict should not be terminal after first failure, got %s", c.Status)
	}

	// Second failure exhausts the budget: escalated, terminal.
	_, err := r.Resolve(c, Input{Claims: []Claim{claim("t1", 1, t0, 1)}})
	if !errors.Is(err, ErrEscalated) {
		t.Fatalf("expected ErrEscalated, got %v", err)
	}
	if c.Status != models.ConflictEscalated {
		t.Errorf("expected escalated status, got %s", c.Status)
	}
	if c.ResolvedAt == nil {
		t.Error("escalated conflict must carry a terminal timestamp")
	}
}

func TestUnknownTypeEscalates(t *testing.T) {
	r := NewResolver(nil)
	c := &models.ResourceConflict{ID: "c1", Type: "mystery", Status: models.ConflictDetected}

	_, err := r.Resolve(c, Input{})
	if !errors.Is(err, ErrEscalated) {
		t.Fatalf("expected ErrEscalated for unknown type, got %v", err)
	}
}
