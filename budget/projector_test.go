package budget

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"bitbucket.org/mmdatafocus/workspace_backend/models"
)

func projBudget(amount, spent string, start, end time.Time) *models.Budget {
	return &models.Budget{
		ID:          "b1",
		Name:        "Engineering",
		WorkspaceId: "w1",
		Amount:      dec(amount),
		Spent:       dec(spent),
		StartDate:   start,
		EndDate:     end,
		IsActive:    true,
	}
}

func TestProjectOverrunLinearRunRate(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) // 60 days
	now := start.AddDate(0, 0, 30)                     // halfway

	// 900 spent at the halfway mark projects to 1800 against 1000.
	p := ProjectOverrun(projBudget("1000", "900", start, end), now)
	if !p.ProjectedSpend.Equal(dec("1800")) {
		t.Fatalf("projected spend = %s, want 1800", p.ProjectedSpend)
	}
	if !p.ProjectedOverrun.Equal(dec("800")) {
		t.Fatalf("projected overrun = %s, want 800", p.ProjectedOverrun)
	}
}

func TestProjectOverrunNeverNegative(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	now := start.AddDate(0, 0, 30)

	// On pace to land exactly under budget: overrun clamps to zero.
	p := ProjectOverrun(projBudget("1000", "400", start, end), now)
	if !p.ProjectedOverrun.IsZero() {
		t.Fatalf("projected overrun = %s, want 0", p.ProjectedOverrun)
	}
}

func TestProjectOverrunUnknownTimeline(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	// Period has not started yet.
	p := ProjectOverrun(projBudget("1000", "100", start, end), start.AddDate(0, 0, -1))
	if p.Timeline != TimelineUnknown {
		t.Fatalf("timeline before period start = %q, want %q", p.Timeline, TimelineUnknown)
	}

	// Nothing spent yet: no run-rate to extrapolate.
	p = ProjectOverrun(projBudget("1000", "0", start, end), start.AddDate(0, 0, 10))
	if p.Timeline != TimelineUnknown {
		t.Fatalf("timeline with zero spend = %q, want %q", p.Timeline, TimelineUnknown)
	}
}

func TestProjectOverrunAlreadyExceeded(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	p := ProjectOverrun(projBudget("1000", "1200", start, end), start.AddDate(0, 0, 30))
	if p.Timeline != TimelineAlreadyExceeded {
		t.Fatalf("timeline = %q, want %q", p.Timeline, TimelineAlreadyExceeded)
	}
}

func TestOverrunTimelineBuckets(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name        string
		spent       string
		elapsedDays int
		periodDays  int
		want        string
	}{
		// 10 days in, 900/1000 spent: ~1.1 more days at that rate.
		{"days", "900", 10, 60, "2 days"},
		// 30 days in, 500/1000 spent: 30 more days = 1 month.
		{"months", "500", 30, 365, "1 months"},
		// 365 days in, 500/1000 spent: 365 more days = 1 year.
		{"years", "500", 365, 1460, "1 years"},
	}
	for _, c := range cases {
		end := start.AddDate(0, 0, c.periodDays)
		now := start.AddDate(0, 0, c.elapsedDays)
		p := ProjectOverrun(projBudget("1000", c.spent, start, end), now)
		if p.Timeline != c.want {
			t.Errorf("%s: timeline = %q, want %q", c.name, p.Timeline, c.want)
		}
	}
}

func TestAtRiskProjectionsThreshold(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	now := start.AddDate(0, 0, 30)

	atRisk := projBudget("1000", "900", start, end)
	atExactly80 := projBudget("1000", "800", start, end)
	atExactly80.ID = "b2"
	inactive := projBudget("1000", "950", start, end)
	inactive.ID = "b3"
	inactive.IsActive = false

	out := AtRiskProjections([]*models.Budget{atRisk, atExactly80, inactive}, now)
	if len(out) != 1 {
		t.Fatalf("got %d projections, want 1", len(out))
	}
	if out[0].BudgetId != "b1" {
		t.Fatalf("wrong budget projected: %s", out[0].BudgetId)
	}
}

func TestAtRiskProjectionsDropsZeroOverrun(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	// 85% spent but the period is nearly over: projection lands under the
	// allocation, so the budget is not reported.
	onTrack := projBudget("1000", "850", start, end)
	out := AtRiskProjections([]*models.Budget{onTrack}, end.AddDate(0, 0, -1))
	if len(out) != 0 {
		t.Fatalf("under-allocation projection reported: %+v", out[0])
	}
}

func TestUtilizationZeroAmountBudget(t *testing.T) {
	b := &models.Budget{Amount: decimal.Zero, Spent: dec("50")}
	if !b.Utilization().IsZero() {
		t.Fatalf("zero-amount utilization = %s, want 0", b.Utilization())
	}
	if !b.SpentRatio().IsZero() {
		t.Fatalf("zero-amount spent ratio = %s, want 0", b.SpentRatio())
	}
}
