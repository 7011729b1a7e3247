package models

import (
	"time"

	"bitbucket.org/mmdatafocus/workspace_backend/store"
	"github.com/shopspring/decimal"
)

type Expense struct {
	ID                   string          `json:"id"`
	WorkspaceId          string          `json:"workspace_id"`
	DepartmentId         string          `json:"department_id,omitempty"`
	ProjectId            string          `json:"project_id,omitempty"`
	CostCenterId         string          `json:"cost_center_id,omitempty"`
	SubmittedBy          string          `json:"submitted_by"`
	Amount               decimal.Decimal `json:"amount"`
	Currency             string          `json:"currency"`
	AmountInBaseCurrency decimal.Decimal `json:"amount_in_base_currency"`
	Status               ExpenseStatus   `json:"status"`
	ExpenseDate          time.Time       `json:"expense_date"`
	Category             string          `json:"category"`
	Description          string          `json:"description,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`

	// WorkspaceName is denormalized onto cross-workspace results only.
	// It is never persisted.
	WorkspaceName string `json:"workspace_name,omitempty"`
}

type NewExpense struct {
	WorkspaceId  string          `json:"workspace_id" validate:"required"`
	DepartmentId string          `json:"department_id"`
	ProjectId    string          `json:"project_id"`
	CostCenterId string          `json:"cost_center_id"`
	SubmittedBy  string          `json:"submitted_by" validate:"required"`
	Amount       decimal.Decimal `json:"amount" validate:"required"`
	Currency     string          `json:"currency" validate:"required,len=3"`
	Status       ExpenseStatus   `json:"status" validate:"omitempty,oneof=draft submitted approved rejected paid"`
	ExpenseDate  time.Time       `json:"expense_date" validate:"required"`
	Category     string          `json:"category" validate:"required"`
	Description  string          `json:"description"`
}

func ExpenseFromRecord(rec store.Record) *Expense {
	return &Expense{
		ID:                   recString(rec, "id"),
		WorkspaceId:          recString(rec, "workspace_id"),
		DepartmentId:         recString(rec, "department_id"),
		ProjectId:            recString(rec, "project_id"),
		CostCenterId:         recString(rec, "cost_center_id"),
		SubmittedBy:          recString(rec, "submitted_by"),
		Amount:               recDecimal(rec, "amount"),
		Currency:             recString(rec, "currency"),
		AmountInBaseCurrency: recDecimal(rec, "amount_in_base_currency"),
		Status:               ExpenseStatus(recString(rec, "status")),
		ExpenseDate:          recTime(rec, "expense_date"),
		Category:             recString(rec, "category"),
		Description:          recString(rec, "description"),
		CreatedAt:            recTime(rec, "created_at"),
		UpdatedAt:            recTime(rec, "updated_at"),
	}
}

func (e *Expense) ToRecord() store.Record {
	return store.Record{
		"id":                      e.ID,
		"workspace_id":            e.WorkspaceId,
		"department_id":           e.DepartmentId,
		"project_id":              e.ProjectId,
		"cost_center_id":          e.CostCenterId,
		"submitted_by":            e.SubmittedBy,
		"amount":                  e.Amount.String(),
		"currency":                e.Currency,
		"amount_in_base_currency": e.AmountInBaseCurrency.String(),
		"status":                  string(e.Status),
		"expense_date":            timeValue(e.ExpenseDate),
		"category":                e.Category,
		"description":             e.Description,
		"created_at":              timeValue(e.CreatedAt),
		"updated_at":              timeValue(e.UpdatedAt),
	}
}
