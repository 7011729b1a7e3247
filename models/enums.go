package models

// Collection names in the document store.
const (
	CollectionWorkspaces       = "workspaces"
	CollectionWorkspaceMembers = "workspaceMembers"
	CollectionBudgets          = "budgets"
	CollectionExpenses         = "expenses"
	CollectionCategories       = "expenseCategories"
)

type BudgetType string

const (
	BudgetTypeWorkspace  = BudgetType("workspace")
	BudgetTypeDepartment = BudgetType("department")
	BudgetTypeProject    = BudgetType("project")
	BudgetTypeCostCenter = BudgetType("costCenter")
	BudgetTypeTeam       = BudgetType("team")
)

type BudgetPeriod string

const (
	BudgetPeriodMonthly   = BudgetPeriod("monthly")
	BudgetPeriodQuarterly = BudgetPeriod("quarterly")
	BudgetPeriodYearly    = BudgetPeriod("yearly")
	BudgetPeriodCustom    = BudgetPeriod("custom")
)

type AlertType string

const (
	AlertTypeWarning  = AlertType("warning")
	AlertTypeCritical = AlertType("critical")
)

type ExpenseStatus string

const (
	ExpenseStatusDraft     = ExpenseStatus("draft")
	ExpenseStatusSubmitted = ExpenseStatus("submitted")
	ExpenseStatusApproved  = ExpenseStatus("approved")
	ExpenseStatusRejected  = ExpenseStatus("rejected")
	ExpenseStatusPaid      = ExpenseStatus("paid")
)

type MemberRole string

const (
	MemberRoleOwner   = MemberRole("owner")
	MemberRoleAdmin   = MemberRole("admin")
	MemberRoleManager = MemberRole("manager")
	MemberRoleMember  = MemberRole("member")
)
