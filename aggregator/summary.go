package aggregator

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"bitbucket.org/mmdatafocus/workspace_backend/budget"
	"bitbucket.org/mmdatafocus/workspace_backend/models"
	"bitbucket.org/mmdatafocus/workspace_backend/utils"
)

type WorkspaceSummary struct {
	WorkspaceId   string          `json:"workspace_id"`
	WorkspaceName string          `json:"workspace_name"`
	IsMain        bool            `json:"is_main"`
	ExpenseCount  int             `json:"expense_count"`
	TotalExpenses decimal.Decimal `json:"total_expenses"`
	BudgetCount   int             `json:"budget_count"`
	TotalBudget   decimal.Decimal `json:"total_budget"`
	TotalSpent    decimal.Decimal `json:"total_spent"`
	Utilization   decimal.Decimal `json:"utilization"` // percent
}

// OwnerSummary is the owner's hierarchy-wide overview: per-workspace totals
// plus budgets projected to overrun at their current run-rate.
type OwnerSummary struct {
	MainWorkspaceId string                     `json:"main_workspace_id"`
	Workspaces      []*WorkspaceSummary        `json:"workspaces"`
	TotalExpenses   decimal.Decimal            `json:"total_expenses"`
	TotalBudget     decimal.Decimal            `json:"total_budget"`
	TotalSpent      decimal.Decimal            `json:"total_spent"`
	AtRisk          []*budget.OverrunProjection `json:"at_risk"`
	GeneratedAt     time.Time                  `json:"generated_at"`
}

// OwnerWorkspaceSummary rolls up expenses and budgets for a main workspace
// and every sub-workspace it owns.
func (s *Service) OwnerWorkspaceSummary(ctx context.Context, mainWorkspaceId string) (*OwnerSummary, []*ChunkError, error) {
	if err := s.requireOwnerVisibility(ctx, mainWorkspaceId); err != nil {
		return nil, nil, err
	}

	main, err := s.hierarchy.GetWorkspace(ctx, mainWorkspaceId)
	if err != nil {
		return nil, nil, utils.UpstreamError(err, "resolve workspace %s", mainWorkspaceId)
	}
	if main == nil {
		return nil, nil, utils.NotFoundError("workspace %s not found", mainWorkspaceId)
	}
	subs, err := s.hierarchy.GetSubWorkspaces(ctx, mainWorkspaceId)
	if err != nil {
		return nil, nil, utils.UpstreamError(err, "resolve sub-workspaces of %s", mainWorkspaceId)
	}

	workspaces := append([]*models.Workspace{main}, subs...)
	ids := make([]string, 0, len(workspaces))
	summaries := make(map[string]*WorkspaceSummary, len(workspaces))
	ordered := make([]*WorkspaceSummary, 0, len(workspaces))
	for _, w := range workspaces {
		ids = append(ids, w.ID)
		ws := &WorkspaceSummary{
			WorkspaceId:   w.ID,
			WorkspaceName: w.Name,
			IsMain:        w.ID == mainWorkspaceId,
		}
		summaries[w.ID] = ws
		ordered = append(ordered, ws)
	}

	expenses, expenseErrs := s.ExpensesForWorkspaces(ctx, ids, nil)
	budgets, budgetErrs := s.BudgetsForWorkspaces(ctx, ids)
	chunkErrs := append(expenseErrs, budgetErrs...)

	summary := &OwnerSummary{
		MainWorkspaceId: mainWorkspaceId,
		Workspaces:      ordered,
		GeneratedAt:     time.Now(),
	}
	for _, e := range expenses {
		ws := summaries[e.WorkspaceId]
		if ws == nil {
			continue
		}
		ws.ExpenseCount++
		ws.TotalExpenses = ws.TotalExpenses.Add(e.AmountInBaseCurrency)
		summary.TotalExpenses = summary.TotalExpenses.Add(e.AmountInBaseCurrency)
	}
	var activeBudgets []*models.Budget
	for _, b := range budgets {
		if !b.IsActive {
			continue
		}
		activeBudgets = append(activeBudgets, b)
		ws := summaries[b.WorkspaceId]
		if ws == nil {
			continue
		}
		ws.BudgetCount++
		ws.TotalBudget = ws.TotalBudget.Add(b.Amount)
		ws.TotalSpent = ws.TotalSpent.Add(b.Spent)
		summary.TotalBudget = summary.TotalBudget.Add(b.Amount)
		summary.TotalSpent = summary.TotalSpent.Add(b.Spent)
	}
	for _, ws := range ordered {
		if ws.TotalBudget.IsPositive() {
			ws.Utilization = ws.TotalSpent.Div(ws.TotalBudget).Mul(decimal.NewFromInt(100)).Round(2)
		}
	}
	summary.AtRisk = budget.AtRiskProjections(activeBudgets, time.Now())
	return summary, chunkErrs, nil
}
