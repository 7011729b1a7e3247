// Package budget maintains budget consumption (spent/committed/remaining),
// evaluates alert thresholds and projects overruns.
package budget

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/workspace_backend/cache"
	"bitbucket.org/mmdatafocus/workspace_backend/config"
	"bitbucket.org/mmdatafocus/workspace_backend/models"
	"bitbucket.org/mmdatafocus/workspace_backend/store"
	"bitbucket.org/mmdatafocus/workspace_backend/utils"
)

// Notifier delivers budget alerts. Delivery is fire-and-forget: failures are
// logged, never raised to the caller.
type Notifier interface {
	SendBudgetAlert(ctx context.Context, b *models.Budget, a *models.BudgetAlert) error
}

type Ledger struct {
	store    store.Store
	cache    cache.ResultCache
	notifier Notifier
	logger   *logrus.Logger
	now      func() time.Time
}

func NewLedger(st store.Store, rc cache.ResultCache, n Notifier) *Ledger {
	return &Ledger{
		store:    st,
		cache:    rc,
		notifier: n,
		logger:   config.GetLogger(),
		now:      time.Now,
	}
}

func (l *Ledger) Create(ctx context.Context, input *models.NewBudget) (*models.Budget, error) {
	if err := models.ValidateInput(input); err != nil {
		return nil, err
	}
	if !input.Amount.IsPositive() {
		return nil, utils.ValidationError(nil, "budget amount must be positive")
	}
	entityId := input.EntityId
	if input.Type == models.BudgetTypeWorkspace && entityId == "" {
		entityId = input.WorkspaceId
	}
	if entityId == "" {
		return nil, utils.ValidationError(nil, "entity_id is required for %s budgets", input.Type)
	}

	now := l.now()
	b := &models.Budget{
		ID:          uuid.NewString(),
		Name:        input.Name,
		Type:        input.Type,
		EntityId:    entityId,
		WorkspaceId: input.WorkspaceId,
		Amount:      input.Amount,
		Currency:    input.Currency,
		Period:      input.Period,
		StartDate:   input.StartDate,
		EndDate:     input.EndDate,
		Spent:       decimal.Zero,
		Committed:   decimal.Zero,
		Remaining:   input.Amount,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, a := range input.Alerts {
		if err := models.ValidateInput(a); err != nil {
			return nil, err
		}
		b.Alerts = append(b.Alerts, &models.BudgetAlert{
			ID:          uuid.NewString(),
			BudgetId:    b.ID,
			Threshold:   a.Threshold,
			Type:        a.Type,
			NotifyUsers: a.NotifyUsers,
		})
	}

	if err := l.store.Set(ctx, models.CollectionBudgets, b.ID, b.ToRecord()); err != nil {
		return nil, utils.UpstreamError(err, "persist budget")
	}
	l.invalidateCache(b.WorkspaceId)
	return b, nil
}

func (l *Ledger) Get(ctx context.Context, id string) (*models.Budget, error) {
	rec, err := l.store.Get(ctx, models.CollectionBudgets, id)
	if err != nil {
		return nil, utils.UpstreamError(err, "read budget %s", id)
	}
	if rec == nil {
		return nil, utils.NotFoundError("budget %s not found", id)
	}
	return models.BudgetFromRecord(rec), nil
}

// Deactivate soft-deletes a budget. Budgets are never hard-deleted while
// alerts or history reference them.
func (l *Ledger) Deactivate(ctx context.Context, id string) error {
	b, err := l.Get(ctx, id)
	if err != nil {
		return err
	}
	err = l.store.Update(ctx, models.CollectionBudgets, id, store.Record{
		"is_active":  false,
		"updated_at": l.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return utils.UpstreamError(err, "deactivate budget %s", id)
	}
	l.invalidateCache(b.WorkspaceId)
	return nil
}

// UpdateSpending applies spend deltas and evaluates alert thresholds.
//
// Known consistency gap: this is a read-modify-write with no optimistic
// concurrency control. Two concurrent calls on the same budget can race and
// one delta may be lost; the store offers no cross-document transaction that
// would close this without a lock, and this engine does no distributed
// locking.
func (l *Ledger) UpdateSpending(ctx context.Context, budgetId string, spentDelta, committedDelta decimal.Decimal) error {
	b, err := l.Get(ctx, budgetId)
	if err != nil {
		return err
	}

	b.Spent = b.Spent.Add(spentDelta)
	b.Committed = b.Committed.Add(committedDelta)
	b.Remaining = b.Amount.Sub(b.Spent).Sub(b.Committed)
	b.UpdatedAt = l.now()

	err = l.store.Update(ctx, models.CollectionBudgets, b.ID, store.Record{
		"spent":      b.Spent.String(),
		"committed":  b.Committed.String(),
		"remaining":  b.Remaining.String(),
		"updated_at": b.UpdatedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return utils.UpstreamError(err, "persist spending on budget %s", b.ID)
	}

	l.evaluateAlerts(ctx, b)
	l.invalidateCache(b.WorkspaceId)
	return nil
}

// evaluateAlerts triggers every untriggered alert whose threshold the new
// utilization reaches. A jump across several thresholds in one update
// triggers all of them; a triggered alert never resets when utilization
// later drops.
func (l *Ledger) evaluateAlerts(ctx context.Context, b *models.Budget) {
	utilization := b.Utilization()
	triggeredAny := false
	for _, a := range b.Alerts {
		if a.Triggered || utilization.LessThan(a.Threshold) {
			continue
		}
		now := l.now()
		a.Triggered = true
		a.TriggeredAt = &now
		triggeredAny = true
		config.BudgetAlertsTriggered.WithLabelValues(string(a.Type)).Inc()

		if l.notifier != nil {
			if err := l.notifier.SendBudgetAlert(ctx, b, a); err != nil {
				config.LogError(l.logger, "budget", "evaluateAlerts", "sending budget alert", a.ID, err)
			}
		}
	}
	if !triggeredAny {
		return
	}
	rec := b.ToRecord()
	err := l.store.Update(ctx, models.CollectionBudgets, b.ID, store.Record{
		"alerts": rec["alerts"],
	})
	if err != nil {
		// Alert state is advisory; spending is already persisted.
		config.LogError(l.logger, "budget", "evaluateAlerts", "persisting triggered alerts", b.ID, err)
	}
}

// TrackExpense charges a new expense to at most one budget, picked by strict
// priority: department, then project, then cost center, then the
// workspace-level budget when the expense carries none of the three ids.
// Callers treat this as best-effort: a NotFound here must not roll back the
// expense itself.
func (l *Ledger) TrackExpense(ctx context.Context, e *models.Expense) error {
	budgetType, entityId := budgetTargetForExpense(e)
	b, err := l.findBudget(ctx, e.WorkspaceId, budgetType, entityId)
	if err != nil {
		return err
	}
	return l.UpdateSpending(ctx, b.ID, e.AmountInBaseCurrency, decimal.Zero)
}

// budgetTargetForExpense is the single authoritative priority rule for
// which budget an expense updates.
func budgetTargetForExpense(e *models.Expense) (models.BudgetType, string) {
	switch {
	case e.DepartmentId != "":
		return models.BudgetTypeDepartment, e.DepartmentId
	case e.ProjectId != "":
		return models.BudgetTypeProject, e.ProjectId
	case e.CostCenterId != "":
		return models.BudgetTypeCostCenter, e.CostCenterId
	}
	return models.BudgetTypeWorkspace, e.WorkspaceId
}

func (l *Ledger) findBudget(ctx context.Context, workspaceId string, budgetType models.BudgetType, entityId string) (*models.Budget, error) {
	recs, err := l.store.Query(ctx, models.CollectionBudgets, []store.Filter{
		{Field: "workspace_id", Op: store.OpEqual, Value: workspaceId},
		{Field: "type", Op: store.OpEqual, Value: string(budgetType)},
		{Field: "entity_id", Op: store.OpEqual, Value: entityId},
		{Field: "is_active", Op: store.OpEqual, Value: true},
	}, nil, 1)
	if err != nil {
		return nil, utils.UpstreamError(err, "query %s budget for %s", budgetType, entityId)
	}
	if len(recs) == 0 {
		return nil, utils.NotFoundError("no active %s budget for entity %s in workspace %s", budgetType, entityId, workspaceId)
	}
	return models.BudgetFromRecord(recs[0]), nil
}

// ActiveBudgets lists a workspace's active budgets.
func (l *Ledger) ActiveBudgets(ctx context.Context, workspaceId string) ([]*models.Budget, error) {
	recs, err := l.store.Query(ctx, models.CollectionBudgets, []store.Filter{
		{Field: "workspace_id", Op: store.OpEqual, Value: workspaceId},
		{Field: "is_active", Op: store.OpEqual, Value: true},
	}, nil, 0)
	if err != nil {
		return nil, utils.UpstreamError(err, "query budgets for workspace %s", workspaceId)
	}
	budgets := make([]*models.Budget, 0, len(recs))
	for _, rec := range recs {
		budgets = append(budgets, models.BudgetFromRecord(rec))
	}
	return budgets, nil
}

// Recalculate rebuilds spent/remaining for every active budget of a
// workspace from raw approved and paid expenses. This is the one path where
// spent may decrease; triggered alerts stay triggered regardless.
func (l *Ledger) Recalculate(ctx context.Context, workspaceId string) error {
	budgets, err := l.ActiveBudgets(ctx, workspaceId)
	if err != nil {
		return err
	}
	recs, err := l.store.Query(ctx, models.CollectionExpenses, []store.Filter{
		{Field: "workspace_id", Op: store.OpEqual, Value: workspaceId},
		{Field: "status", Op: store.OpIn, Value: []string{
			string(models.ExpenseStatusApproved),
			string(models.ExpenseStatusPaid),
		}},
	}, nil, 0)
	if err != nil {
		return utils.UpstreamError(err, "query expenses for workspace %s", workspaceId)
	}

	spentByTarget := make(map[string]decimal.Decimal)
	for _, rec := range recs {
		e := models.ExpenseFromRecord(rec)
		budgetType, entityId := budgetTargetForExpense(e)
		key := string(budgetType) + "|" + entityId
		spentByTarget[key] = spentByTarget[key].Add(e.AmountInBaseCurrency)
	}

	for _, b := range budgets {
		spent := spentByTarget[string(b.Type)+"|"+b.EntityId]
		remaining := b.Amount.Sub(spent).Sub(b.Committed)
		if spent.Equal(b.Spent) && remaining.Equal(b.Remaining) {
			continue
		}
		err := l.store.Update(ctx, models.CollectionBudgets, b.ID, store.Record{
			"spent":      spent.String(),
			"remaining":  remaining.String(),
			"updated_at": l.now().UTC().Format(time.RFC3339),
		})
		if err != nil {
			return utils.UpstreamError(err, "persist recalculated budget %s", b.ID)
		}
	}
	l.invalidateCache(workspaceId)
	return nil
}

// invalidateCache drops the workspace's cached results. Cache trouble must
// never fail the mutation that already succeeded.
func (l *Ledger) invalidateCache(workspaceId string) {
	if l.cache == nil {
		return
	}
	if err := l.cache.InvalidateWorkspace(workspaceId); err != nil {
		config.LogError(l.logger, "budget", "invalidateCache", "invalidating workspace cache", workspaceId, err)
	}
}
