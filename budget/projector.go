package budget

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"bitbucket.org/mmdatafocus/workspace_backend/models"
)

// overrunRiskRatio is the spent/amount ratio above which a budget is
// projected at all.
var overrunRiskRatio = decimal.NewFromFloat(0.8)

const TimelineUnknown = "Unknown"
const TimelineAlreadyExceeded = "Already exceeded"

// OverrunProjection is a linear run-rate estimate: spend-to-date divided by
// the elapsed fraction of the budget period, extrapolated to the full
// period. It assumes constant spend velocity; it is not a forecast.
type OverrunProjection struct {
	BudgetId         string          `json:"budget_id"`
	BudgetName       string          `json:"budget_name"`
	WorkspaceId      string          `json:"workspace_id"`
	ProjectedSpend   decimal.Decimal `json:"projected_spend"`
	ProjectedOverrun decimal.Decimal `json:"projected_overrun"`
	Timeline         string          `json:"timeline"`
}

// ProjectOverrun extrapolates one budget's run-rate as of now.
func ProjectOverrun(b *models.Budget, now time.Time) *OverrunProjection {
	p := &OverrunProjection{
		BudgetId:    b.ID,
		BudgetName:  b.Name,
		WorkspaceId: b.WorkspaceId,
	}

	period := b.EndDate.Sub(b.StartDate)
	elapsed := now.Sub(b.StartDate)
	var elapsedRatio float64
	if period > 0 {
		elapsedRatio = float64(elapsed) / float64(period)
	}

	if elapsedRatio <= 0 || !b.Spent.IsPositive() {
		p.ProjectedSpend = b.Spent
		p.ProjectedOverrun = maxDecimal(decimal.Zero, b.Spent.Sub(b.Amount))
		p.Timeline = TimelineUnknown
		return p
	}

	p.ProjectedSpend = b.Spent.Div(decimal.NewFromFloat(elapsedRatio)).Round(4)
	p.ProjectedOverrun = maxDecimal(decimal.Zero, p.ProjectedSpend.Sub(b.Amount))
	p.Timeline = overrunTimeline(b, elapsed)
	return p
}

// overrunTimeline buckets the time until cumulative spend reaches the
// allocation, at the current run-rate.
func overrunTimeline(b *models.Budget, elapsed time.Duration) string {
	spent, _ := b.Spent.Float64()
	amount, _ := b.Amount.Float64()
	elapsedDays := elapsed.Hours() / 24

	// rate = spent/elapsed; overrun when rate*t == amount
	daysToOverrun := elapsedDays*(amount/spent) - elapsedDays
	if daysToOverrun <= 0 {
		return TimelineAlreadyExceeded
	}
	days := int(math.Ceil(daysToOverrun))
	switch {
	case days < 30:
		return fmt.Sprintf("%d days", days)
	case days < 365:
		return fmt.Sprintf("%d months", days/30)
	default:
		return fmt.Sprintf("%d years", days/365)
	}
}

// AtRiskProjections projects every active budget past the 80% risk threshold
// and keeps only those actually projected to overrun.
func AtRiskProjections(budgets []*models.Budget, now time.Time) []*OverrunProjection {
	var out []*OverrunProjection
	for _, b := range budgets {
		if !b.IsActive {
			continue
		}
		if b.SpentRatio().LessThanOrEqual(overrunRiskRatio) {
			continue
		}
		p := ProjectOverrun(b, now)
		if !p.ProjectedOverrun.IsPositive() {
			continue
		}
		out = append(out, p)
	}
	return out
}

func maxDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThanOrEqual(b) {
		return a
	}
	return b
}
