package models

import (
	"time"

	"bitbucket.org/mmdatafocus/workspace_backend/store"
	"github.com/shopspring/decimal"
)

type BudgetAlert struct {
	ID          string          `json:"id"`
	BudgetId    string          `json:"budget_id"`
	Threshold   decimal.Decimal `json:"threshold"` // percent of amount
	Type        AlertType       `json:"type"`
	NotifyUsers []string        `json:"notify_users"`
	Triggered   bool            `json:"triggered"`
	TriggeredAt *time.Time      `json:"triggered_at,omitempty"`
}

type Budget struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Type        BudgetType      `json:"type"`
	EntityId    string          `json:"entity_id"`
	WorkspaceId string          `json:"workspace_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Period      BudgetPeriod    `json:"period"`
	StartDate   time.Time       `json:"start_date"`
	EndDate     time.Time       `json:"end_date"`
	Spent       decimal.Decimal `json:"spent"`
	Committed   decimal.Decimal `json:"committed"`
	Remaining   decimal.Decimal `json:"remaining"`
	Alerts      []*BudgetAlert  `json:"alerts"`
	IsActive    bool            `json:"is_active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type NewBudget struct {
	Name        string          `json:"name" validate:"required"`
	Type        BudgetType      `json:"type" validate:"required,oneof=workspace department project costCenter team"`
	EntityId    string          `json:"entity_id"`
	WorkspaceId string          `json:"workspace_id" validate:"required"`
	Amount      decimal.Decimal `json:"amount" validate:"required"`
	Currency    string          `json:"currency" validate:"required,len=3"`
	Period      BudgetPeriod    `json:"period" validate:"required,oneof=monthly quarterly yearly custom"`
	StartDate   time.Time       `json:"start_date" validate:"required"`
	EndDate     time.Time       `json:"end_date" validate:"required,gtfield=StartDate"`
	Alerts      []*NewBudgetAlert `json:"alerts"`
}

type NewBudgetAlert struct {
	Threshold   decimal.Decimal `json:"threshold" validate:"required"`
	Type        AlertType       `json:"type" validate:"required,oneof=warning critical"`
	NotifyUsers []string        `json:"notify_users"`
}

// Utilization is (spent + committed) / amount as a percentage. Zero-amount
// budgets report zero so alert evaluation never divides by zero.
func (b *Budget) Utilization() decimal.Decimal {
	if b.Amount.IsZero() {
		return decimal.Zero
	}
	return b.Spent.Add(b.Committed).Div(b.Amount).Mul(decimal.NewFromInt(100))
}

// SpentRatio is spent / amount, the overrun projector's risk input.
func (b *Budget) SpentRatio() decimal.Decimal {
	if b.Amount.IsZero() {
		return decimal.Zero
	}
	return b.Spent.Div(b.Amount)
}

func BudgetFromRecord(rec store.Record) *Budget {
	b := &Budget{
		ID:          recString(rec, "id"),
		Name:        recString(rec, "name"),
		Type:        BudgetType(recString(rec, "type")),
		EntityId:    recString(rec, "entity_id"),
		WorkspaceId: recString(rec, "workspace_id"),
		Amount:      recDecimal(rec, "amount"),
		Currency:    recString(rec, "currency"),
		Period:      BudgetPeriod(recString(rec, "period")),
		StartDate:   recTime(rec, "start_date"),
		EndDate:     recTime(rec, "end_date"),
		Spent:       recDecimal(rec, "spent"),
		Committed:   recDecimal(rec, "committed"),
		Remaining:   recDecimal(rec, "remaining"),
		IsActive:    recBool(rec, "is_active"),
		CreatedAt:   recTime(rec, "created_at"),
		UpdatedAt:   recTime(rec, "updated_at"),
	}
	for _, alertRec := range recRecordSlice(rec, "alerts") {
		a := &BudgetAlert{
			ID:          recString(alertRec, "id"),
			BudgetId:    recString(alertRec, "budget_id"),
			Threshold:   recDecimal(alertRec, "threshold"),
			Type:        AlertType(recString(alertRec, "type")),
			NotifyUsers: recStringSlice(alertRec, "notify_users"),
			Triggered:   recBool(alertRec, "triggered"),
		}
		if t := recTime(alertRec, "triggered_at"); !t.IsZero() {
			a.TriggeredAt = &t
		}
		b.Alerts = append(b.Alerts, a)
	}
	return b
}

func (b *Budget) ToRecord() store.Record {
	alerts := make([]interface{}, 0, len(b.Alerts))
	for _, a := range b.Alerts {
		alertRec := store.Record{
			"id":           a.ID,
			"budget_id":    a.BudgetId,
			"threshold":    a.Threshold.String(),
			"type":         string(a.Type),
			"notify_users": a.NotifyUsers,
			"triggered":    a.Triggered,
		}
		if a.TriggeredAt != nil {
			alertRec["triggered_at"] = timeValue(*a.TriggeredAt)
		}
		alerts = append(alerts, map[string]interface{}(alertRec))
	}
	return store.Record{
		"id":           b.ID,
		"name":         b.Name,
		"type":         string(b.Type),
		"entity_id":    b.EntityId,
		"workspace_id": b.WorkspaceId,
		"amount":       b.Amount.String(),
		"currency":     b.Currency,
		"period":       string(b.Period),
		"start_date":   timeValue(b.StartDate),
		"end_date":     timeValue(b.EndDate),
		"spent":        b.Spent.String(),
		"committed":    b.Committed.String(),
		"remaining":    b.Remaining.String(),
		"alerts":       alerts,
		"is_active":    b.IsActive,
		"created_at":   timeValue(b.CreatedAt),
		"updated_at":   timeValue(b.UpdatedAt),
	}
}
