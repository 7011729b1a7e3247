package budget

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"bitbucket.org/mmdatafocus/workspace_backend/cache"
	"bitbucket.org/mmdatafocus/workspace_backend/models"
	"bitbucket.org/mmdatafocus/workspace_backend/store"
	"bitbucket.org/mmdatafocus/workspace_backend/utils"
)

type fakeNotifier struct {
	sent []models.AlertType
	err  error
}

func (f *fakeNotifier) SendBudgetAlert(ctx context.Context, b *models.Budget, a *models.BudgetAlert) error {
	f.sent = append(f.sent, a.Type)
	return f.err
}

func testClock() func() time.Time {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return now }
}

func newTestLedger(st store.Store, n Notifier) *Ledger {
	l := NewLedger(st, cache.NewResults(5*time.Minute, nil, nil), n)
	l.now = testClock()
	return l
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func seedBudget(t *testing.T, st store.Store, b *models.Budget) {
	t.Helper()
	if err := st.Set(context.Background(), models.CollectionBudgets, b.ID, b.ToRecord()); err != nil {
		t.Fatalf("seed budget: %v", err)
	}
}

func engBudget(alerts ...*models.BudgetAlert) *models.Budget {
	return &models.Budget{
		ID:          "b1",
		Name:        "Engineering Q1",
		Type:        models.BudgetTypeDepartment,
		EntityId:    "d1",
		WorkspaceId: "w1",
		Amount:      dec("1000"),
		Currency:    "USD",
		Period:      models.BudgetPeriodQuarterly,
		StartDate:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		Spent:       decimal.Zero,
		Committed:   decimal.Zero,
		Remaining:   dec("1000"),
		Alerts:      alerts,
		IsActive:    true,
	}
}

func TestCreateBudget(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	l := newTestLedger(st, nil)

	b, err := l.Create(ctx, &models.NewBudget{
		Name:        "Marketing",
		Type:        models.BudgetTypeDepartment,
		EntityId:    "d-mkt",
		WorkspaceId: "w1",
		Amount:      dec("5000"),
		Currency:    "USD",
		Period:      models.BudgetPeriodMonthly,
		StartDate:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		Alerts: []*models.NewBudgetAlert{
			{Threshold: dec("75"), Type: models.AlertTypeWarning},
		},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if b.ID == "" {
		t.Fatalf("no id assigned")
	}
	if !b.Remaining.Equal(dec("5000")) {
		t.Fatalf("remaining = %s, want full amount", b.Remaining)
	}
	if len(b.Alerts) != 1 || b.Alerts[0].BudgetId != b.ID || b.Alerts[0].Triggered {
		t.Fatalf("alert not initialized: %+v", b.Alerts)
	}

	got, err := l.Get(ctx, b.ID)
	if err != nil {
		t.Fatalf("Get after Create: %v", err)
	}
	if !got.Amount.Equal(dec("5000")) || got.Name != "Marketing" {
		t.Fatalf("persisted budget mismatch: %+v", got)
	}
}

func TestCreateBudgetRejectsNonPositiveAmount(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(store.NewMemoryStore(), nil)

	_, err := l.Create(ctx, &models.NewBudget{
		Name:        "Zero",
		Type:        models.BudgetTypeWorkspace,
		WorkspaceId: "w1",
		Amount:      decimal.Zero,
		Currency:    "USD",
		Period:      models.BudgetPeriodMonthly,
		StartDate:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	})
	if !utils.IsValidation(err) {
		t.Fatalf("zero amount: got %v, want validation error", err)
	}
}

func TestCreateWorkspaceBudgetDefaultsEntityId(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(store.NewMemoryStore(), nil)

	b, err := l.Create(ctx, &models.NewBudget{
		Name:        "Whole workspace",
		Type:        models.BudgetTypeWorkspace,
		WorkspaceId: "w1",
		Amount:      dec("100"),
		Currency:    "USD",
		Period:      models.BudgetPeriodMonthly,
		StartDate:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if b.EntityId != "w1" {
		t.Fatalf("entity id = %s, want workspace id", b.EntityId)
	}
}

func TestGetMissingBudgetIsNotFound(t *testing.T) {
	l := newTestLedger(store.NewMemoryStore(), nil)
	_, err := l.Get(context.Background(), "nope")
	if !utils.IsNotFound(err) {
		t.Fatalf("got %v, want not-found", err)
	}
}

func TestUpdateSpendingMaintainsRemaining(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	l := newTestLedger(st, nil)
	seedBudget(t, st, engBudget())

	if err := l.UpdateSpending(ctx, "b1", dec("300"), dec("150")); err != nil {
		t.Fatalf("UpdateSpending: %v", err)
	}
	b, _ := l.Get(ctx, "b1")
	if !b.Spent.Equal(dec("300")) || !b.Committed.Equal(dec("150")) {
		t.Fatalf("spent=%s committed=%s", b.Spent, b.Committed)
	}
	if !b.Remaining.Equal(dec("550")) {
		t.Fatalf("remaining = %s, want 550", b.Remaining)
	}

	// Negative deltas (voided expense, released commitment) flow back.
	if err := l.UpdateSpending(ctx, "b1", dec("-100"), dec("-150")); err != nil {
		t.Fatalf("UpdateSpending: %v", err)
	}
	b, _ = l.Get(ctx, "b1")
	if !b.Remaining.Equal(dec("800")) {
		t.Fatalf("remaining after reversal = %s, want 800", b.Remaining)
	}
}

func TestAlertJumpAcrossSeveralThresholdsTriggersAll(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	n := &fakeNotifier{}
	l := newTestLedger(st, n)
	seedBudget(t, st, engBudget(
		&models.BudgetAlert{ID: "a75", BudgetId: "b1", Threshold: dec("75"), Type: models.AlertTypeWarning},
		&models.BudgetAlert{ID: "a90", BudgetId: "b1", Threshold: dec("90"), Type: models.AlertTypeCritical},
	))

	// 0% -> 60%: nothing crosses.
	if err := l.UpdateSpending(ctx, "b1", dec("600"), decimal.Zero); err != nil {
		t.Fatalf("UpdateSpending: %v", err)
	}
	if len(n.sent) != 0 {
		t.Fatalf("alerts fired at 60%%: %v", n.sent)
	}

	// 60% -> 95% in one update: both 75 and 90 fire.
	if err := l.UpdateSpending(ctx, "b1", dec("350"), decimal.Zero); err != nil {
		t.Fatalf("UpdateSpending: %v", err)
	}
	if len(n.sent) != 2 {
		t.Fatalf("got %d alerts, want both thresholds: %v", len(n.sent), n.sent)
	}

	b, _ := l.Get(ctx, "b1")
	for _, a := range b.Alerts {
		if !a.Triggered || a.TriggeredAt == nil {
			t.Fatalf("alert %s not persisted as triggered", a.ID)
		}
	}
}

func TestTriggeredAlertNeverResets(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	n := &fakeNotifier{}
	l := newTestLedger(st, n)
	seedBudget(t, st, engBudget(
		&models.BudgetAlert{ID: "a75", BudgetId: "b1", Threshold: dec("75"), Type: models.AlertTypeWarning},
	))

	if err := l.UpdateSpending(ctx, "b1", dec("800"), decimal.Zero); err != nil {
		t.Fatalf("UpdateSpending: %v", err)
	}
	if len(n.sent) != 1 {
		t.Fatalf("got %d alerts, want 1", len(n.sent))
	}

	// Utilization drops below the threshold, then crosses it again: the
	// alert stays triggered and does not re-fire.
	if err := l.UpdateSpending(ctx, "b1", dec("-300"), decimal.Zero); err != nil {
		t.Fatalf("UpdateSpending: %v", err)
	}
	if err := l.UpdateSpending(ctx, "b1", dec("400"), decimal.Zero); err != nil {
		t.Fatalf("UpdateSpending: %v", err)
	}
	if len(n.sent) != 1 {
		t.Fatalf("alert re-fired after dropping below threshold: %v", n.sent)
	}
	b, _ := l.Get(ctx, "b1")
	if !b.Alerts[0].Triggered {
		t.Fatalf("alert reset after utilization dropped")
	}
}

func TestNotifierFailureDoesNotFailSpendingUpdate(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	n := &fakeNotifier{err: errors.New("pubsub down")}
	l := newTestLedger(st, n)
	seedBudget(t, st, engBudget(
		&models.BudgetAlert{ID: "a75", BudgetId: "b1", Threshold: dec("75"), Type: models.AlertTypeWarning},
	))

	if err := l.UpdateSpending(ctx, "b1", dec("900"), decimal.Zero); err != nil {
		t.Fatalf("notifier failure surfaced: %v", err)
	}
	b, _ := l.Get(ctx, "b1")
	if !b.Spent.Equal(dec("900")) {
		t.Fatalf("spending not persisted: %s", b.Spent)
	}
	if !b.Alerts[0].Triggered {
		t.Fatalf("alert state lost on notifier failure")
	}
}

func TestTrackExpensePicksBudgetByPriority(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	l := newTestLedger(st, nil)

	dept := engBudget()
	project := engBudget()
	project.ID = "b2"
	project.Type = models.BudgetTypeProject
	project.EntityId = "p1"
	workspace := engBudget()
	workspace.ID = "b3"
	workspace.Type = models.BudgetTypeWorkspace
	workspace.EntityId = "w1"
	seedBudget(t, st, dept)
	seedBudget(t, st, project)
	seedBudget(t, st, workspace)

	// Department wins over project when both ids are present.
	err := l.TrackExpense(ctx, &models.Expense{
		ID: "e1", WorkspaceId: "w1", DepartmentId: "d1", ProjectId: "p1",
		AmountInBaseCurrency: dec("250"),
	})
	if err != nil {
		t.Fatalf("TrackExpense: %v", err)
	}
	b, _ := l.Get(ctx, "b1")
	if !b.Spent.Equal(dec("250")) {
		t.Fatalf("department budget spent = %s, want 250", b.Spent)
	}
	if b2, _ := l.Get(ctx, "b2"); !b2.Spent.IsZero() {
		t.Fatalf("project budget charged alongside department: %s", b2.Spent)
	}

	// Second expense accumulates on the same budget.
	err = l.TrackExpense(ctx, &models.Expense{
		ID: "e2", WorkspaceId: "w1", DepartmentId: "d1",
		AmountInBaseCurrency: dec("250"),
	})
	if err != nil {
		t.Fatalf("TrackExpense: %v", err)
	}
	b, _ = l.Get(ctx, "b1")
	if !b.Spent.Equal(dec("500")) {
		t.Fatalf("department budget spent = %s, want 500", b.Spent)
	}
	if !b.Remaining.Equal(dec("500")) {
		t.Fatalf("department budget remaining = %s, want 500", b.Remaining)
	}

	// No dept/project/cost-center ids: the workspace budget is the target.
	err = l.TrackExpense(ctx, &models.Expense{
		ID: "e3", WorkspaceId: "w1",
		AmountInBaseCurrency: dec("100"),
	})
	if err != nil {
		t.Fatalf("TrackExpense: %v", err)
	}
	if b3, _ := l.Get(ctx, "b3"); !b3.Spent.Equal(dec("100")) {
		t.Fatalf("workspace budget spent = %s, want 100", b3.Spent)
	}
}

// An expense that names a department does not fall through to the workspace
// budget when no department budget exists.
func TestTrackExpenseDoesNotFallThrough(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	l := newTestLedger(st, nil)

	workspace := engBudget()
	workspace.Type = models.BudgetTypeWorkspace
	workspace.EntityId = "w1"
	seedBudget(t, st, workspace)

	err := l.TrackExpense(ctx, &models.Expense{
		ID: "e1", WorkspaceId: "w1", DepartmentId: "d-unbudgeted",
		AmountInBaseCurrency: dec("100"),
	})
	if !utils.IsNotFound(err) {
		t.Fatalf("got %v, want not-found", err)
	}
	if b, _ := l.Get(ctx, "b1"); !b.Spent.IsZero() {
		t.Fatalf("workspace budget was charged on fall-through: %s", b.Spent)
	}
}

func TestTrackExpenseIgnoresInactiveBudgets(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	l := newTestLedger(st, nil)

	inactive := engBudget()
	inactive.IsActive = false
	seedBudget(t, st, inactive)

	err := l.TrackExpense(ctx, &models.Expense{
		ID: "e1", WorkspaceId: "w1", DepartmentId: "d1",
		AmountInBaseCurrency: dec("100"),
	})
	if !utils.IsNotFound(err) {
		t.Fatalf("got %v, want not-found for inactive budget", err)
	}
}

func TestDeactivate(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	l := newTestLedger(st, nil)
	seedBudget(t, st, engBudget())

	if err := l.Deactivate(ctx, "b1"); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	b, err := l.Get(ctx, "b1")
	if err != nil {
		t.Fatalf("deactivated budget should still be readable: %v", err)
	}
	if b.IsActive {
		t.Fatalf("budget still active after Deactivate")
	}

	active, err := l.ActiveBudgets(ctx, "w1")
	if err != nil {
		t.Fatalf("ActiveBudgets: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("deactivated budget still listed as active")
	}
}

func TestRecalculateRebuildsSpentFromApprovedAndPaid(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	l := newTestLedger(st, nil)

	drifted := engBudget(
		&models.BudgetAlert{ID: "a75", BudgetId: "b1", Threshold: dec("75"), Type: models.AlertTypeWarning, Triggered: true},
	)
	drifted.Spent = dec("999")
	drifted.Remaining = dec("1")
	seedBudget(t, st, drifted)

	seed := func(id string, status models.ExpenseStatus, amount string) {
		e := &models.Expense{
			ID: id, WorkspaceId: "w1", DepartmentId: "d1",
			Status: status, AmountInBaseCurrency: dec(amount),
			ExpenseDate: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		}
		if err := st.Set(ctx, models.CollectionExpenses, id, e.ToRecord()); err != nil {
			t.Fatalf("seed expense: %v", err)
		}
	}
	seed("e1", models.ExpenseStatusApproved, "200")
	seed("e2", models.ExpenseStatusPaid, "100")
	seed("e3", models.ExpenseStatusDraft, "50")
	seed("e4", models.ExpenseStatusRejected, "70")

	if err := l.Recalculate(ctx, "w1"); err != nil {
		t.Fatalf("Recalculate: %v", err)
	}
	b, _ := l.Get(ctx, "b1")
	if !b.Spent.Equal(dec("300")) {
		t.Fatalf("recalculated spent = %s, want 300 (approved + paid only)", b.Spent)
	}
	if !b.Remaining.Equal(dec("700")) {
		t.Fatalf("recalculated remaining = %s, want 700", b.Remaining)
	}
	// This is the one path where spent decreases; alert history still holds.
	if !b.Alerts[0].Triggered {
		t.Fatalf("triggered alert was reset by recalculation")
	}
}
