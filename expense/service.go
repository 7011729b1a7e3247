// Package expense orchestrates expense reads and writes: payload validation,
// best-effort currency conversion and budget tracking, result caching with
// synchronous invalidation, and access-filtered listing.
package expense

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/workspace_backend/access"
	"bitbucket.org/mmdatafocus/workspace_backend/budget"
	"bitbucket.org/mmdatafocus/workspace_backend/cache"
	"bitbucket.org/mmdatafocus/workspace_backend/config"
	"bitbucket.org/mmdatafocus/workspace_backend/models"
	"bitbucket.org/mmdatafocus/workspace_backend/store"
	"bitbucket.org/mmdatafocus/workspace_backend/utils"
)

// CurrencyConverter is the external rate service. Conversion happens once per
// expense creation; failures fall back to the unconverted amount.
type CurrencyConverter interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to, workspaceId string) (decimal.Decimal, error)
}

type QueryOptions struct {
	Status       models.ExpenseStatus `json:"status,omitempty"`
	Category     string               `json:"category,omitempty"`
	DepartmentId string               `json:"department_id,omitempty"`
	SubmittedBy  string               `json:"submitted_by,omitempty"`
	From         time.Time            `json:"from,omitempty"`
	To           time.Time            `json:"to,omitempty"`
	Limit        int                  `json:"limit,omitempty"`
}

// UserScoped reports whether the options narrow to one submitter. Such
// result sets bypass the cache on both read and write.
func (o *QueryOptions) UserScoped() bool {
	return o != nil && o.SubmittedBy != ""
}

// Qualifier is the serialized options string used in cache keys.
func (o *QueryOptions) Qualifier() string {
	if o == nil {
		return "{}"
	}
	raw, err := json.Marshal(o)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

// StoreFilters maps the options onto store predicates. Shared by the
// single-workspace list and the cross-workspace fan-out.
func (o *QueryOptions) StoreFilters() []store.Filter {
	if o == nil {
		return nil
	}
	var filters []store.Filter
	if o.Status != "" {
		filters = append(filters, store.Filter{Field: "status", Op: store.OpEqual, Value: string(o.Status)})
	}
	if o.Category != "" {
		filters = append(filters, store.Filter{Field: "category", Op: store.OpEqual, Value: o.Category})
	}
	if o.DepartmentId != "" {
		filters = append(filters, store.Filter{Field: "department_id", Op: store.OpEqual, Value: o.DepartmentId})
	}
	if o.SubmittedBy != "" {
		filters = append(filters, store.Filter{Field: "submitted_by", Op: store.OpEqual, Value: o.SubmittedBy})
	}
	if !o.From.IsZero() {
		filters = append(filters, store.Filter{Field: "expense_date", Op: store.OpGreaterEqual, Value: o.From.UTC().Format(time.RFC3339)})
	}
	if !o.To.IsZero() {
		filters = append(filters, store.Filter{Field: "expense_date", Op: store.OpLessEqual, Value: o.To.UTC().Format(time.RFC3339)})
	}
	return filters
}

type Service struct {
	store     store.Store
	cache     cache.ResultCache
	ledger    *budget.Ledger
	converter CurrencyConverter
	logger    *logrus.Logger
	now       func() time.Time
}

func NewService(st store.Store, rc cache.ResultCache, ledger *budget.Ledger, converter CurrencyConverter) *Service {
	return &Service{
		store:     st,
		cache:     rc,
		ledger:    ledger,
		converter: converter,
		logger:    config.GetLogger(),
		now:       time.Now,
	}
}

// Create persists a new expense. Budget tracking and currency conversion are
// best-effort side effects: their failure never blocks the expense itself.
// The workspace's cached results are invalidated before Create returns.
func (s *Service) Create(ctx context.Context, input *models.NewExpense) (*models.Expense, error) {
	e, err := s.buildExpense(ctx, input)
	if err != nil {
		return nil, err
	}
	if err := s.store.Set(ctx, models.CollectionExpenses, e.ID, e.ToRecord()); err != nil {
		return nil, utils.UpstreamError(err, "persist expense")
	}

	if err := s.ledger.TrackExpense(ctx, e); err != nil {
		config.LogError(s.logger, "expense", "Create", "tracking budget spend", e.ID, err)
	}
	s.invalidateCache(ctx, e.WorkspaceId)
	return e, nil
}

// ImportBatch persists a pre-chunked batch of expenses atomically: either
// every document commits or none does. Budget tracking then runs per expense,
// best-effort, exactly as in Create.
func (s *Service) ImportBatch(ctx context.Context, inputs []*models.NewExpense) ([]*models.Expense, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	if len(inputs) > store.MaxBatchWrite {
		return nil, utils.ValidationError(nil, "batch of %d exceeds store limit %d; pre-chunk the import", len(inputs), store.MaxBatchWrite)
	}

	expenses := make([]*models.Expense, 0, len(inputs))
	ops := make([]store.WriteOp, 0, len(inputs))
	for _, input := range inputs {
		e, err := s.buildExpense(ctx, input)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
		ops = append(ops, store.WriteOp{
			Kind:       store.WriteKindSet,
			Collection: models.CollectionExpenses,
			ID:         e.ID,
			Data:       e.ToRecord(),
		})
	}
	if err := s.store.BatchWrite(ctx, ops); err != nil {
		return nil, utils.UpstreamError(err, "batch write of %d expenses", len(ops))
	}

	workspaces := make(map[string]bool)
	for _, e := range expenses {
		if err := s.ledger.TrackExpense(ctx, e); err != nil {
			config.LogError(s.logger, "expense", "ImportBatch", "tracking budget spend", e.ID, err)
		}
		workspaces[e.WorkspaceId] = true
	}
	for workspaceId := range workspaces {
		s.invalidateCache(ctx, workspaceId)
	}
	return expenses, nil
}

func (s *Service) buildExpense(ctx context.Context, input *models.NewExpense) (*models.Expense, error) {
	if err := models.ValidateInput(input); err != nil {
		return nil, err
	}
	if !input.Amount.IsPositive() {
		return nil, utils.ValidationError(nil, "expense amount must be positive")
	}
	status := input.Status
	if status == "" {
		status = models.ExpenseStatusSubmitted
	}

	now := s.now()
	e := &models.Expense{
		ID:                   uuid.NewString(),
		WorkspaceId:          input.WorkspaceId,
		DepartmentId:         input.DepartmentId,
		ProjectId:            input.ProjectId,
		CostCenterId:         input.CostCenterId,
		SubmittedBy:          input.SubmittedBy,
		Amount:               input.Amount,
		Currency:             input.Currency,
		AmountInBaseCurrency: s.convertToBase(ctx, input),
		Status:               status,
		ExpenseDate:          input.ExpenseDate,
		Category:             input.Category,
		Description:          input.Description,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	return e, nil
}

// convertToBase resolves the workspace's base currency and converts once.
// Any failure falls back to the unconverted amount.
func (s *Service) convertToBase(ctx context.Context, input *models.NewExpense) decimal.Decimal {
	rec, err := s.store.Get(ctx, models.CollectionWorkspaces, input.WorkspaceId)
	if err != nil || rec == nil {
		if err != nil {
			config.LogError(s.logger, "expense", "convertToBase", "reading workspace", input.WorkspaceId, err)
		}
		return input.Amount
	}
	ws := models.WorkspaceFromRecord(rec)
	if ws.BaseCurrency == "" || ws.BaseCurrency == input.Currency || s.converter == nil {
		return input.Amount
	}
	converted, err := s.converter.Convert(ctx, input.Amount, input.Currency, ws.BaseCurrency, input.WorkspaceId)
	if err != nil {
		config.LogError(s.logger, "expense", "convertToBase", "converting currency", input.Currency+"->"+ws.BaseCurrency, err)
		return input.Amount
	}
	return converted
}

// Get returns one expense, re-checking visibility for the calling user.
func (s *Service) Get(ctx context.Context, id string) (*models.Expense, error) {
	rec, err := s.store.Get(ctx, models.CollectionExpenses, id)
	if err != nil {
		return nil, utils.UpstreamError(err, "read expense %s", id)
	}
	if rec == nil {
		return nil, utils.NotFoundError("expense %s not found", id)
	}
	e := models.ExpenseFromRecord(rec)

	userId, _ := utils.GetUserIdFromContext(ctx)
	vis, err := access.Compute(ctx, s.store, userId, e.WorkspaceId)
	if err != nil {
		return nil, utils.UpstreamError(err, "compute visibility for %s", userId)
	}
	if !vis.AllowsExpense(e) {
		return nil, utils.AccessDeniedError("user %s cannot view expense %s", userId, id)
	}
	return e, nil
}

// List returns the workspace's expenses visible to the calling user. Callers
// with no role in the workspace get an empty set without a store read.
// submittedBy-scoped queries bypass the cache entirely.
func (s *Service) List(ctx context.Context, workspaceId string, opts *QueryOptions) ([]*models.Expense, error) {
	userId, _ := utils.GetUserIdFromContext(ctx)
	vis, err := access.Compute(ctx, s.store, userId, workspaceId)
	if err != nil {
		return nil, utils.UpstreamError(err, "compute visibility for %s", userId)
	}
	if vis.Type == access.FilterNone {
		return []*models.Expense{}, nil
	}

	// Own-scope results are a per-user projection too; caching them would
	// never amortize and would leak between users sharing a workspace key.
	cacheable := !opts.UserScoped() && vis.Type == access.FilterAll
	qualifier := opts.Qualifier()
	if cacheable {
		var cached []*models.Expense
		found, err := s.cache.Get(cache.PartitionExpenses, workspaceId, qualifier, &cached)
		if err != nil {
			config.LogError(s.logger, "expense", "List", "reading result cache", workspaceId, err)
		} else if found {
			return cached, nil
		}
	}

	filters := []store.Filter{
		{Field: "workspace_id", Op: store.OpEqual, Value: workspaceId},
	}
	filters = append(filters, vis.StoreFilters()...)
	filters = append(filters, opts.StoreFilters()...)
	limit := 0
	if opts != nil {
		limit = opts.Limit
	}

	recs, err := s.store.Query(ctx, models.CollectionExpenses, filters,
		&store.Order{Field: "expense_date", Desc: true}, limit)
	if err != nil {
		return nil, utils.UpstreamError(err, "query expenses for workspace %s", workspaceId)
	}

	expenses := make([]*models.Expense, 0, len(recs))
	for _, rec := range recs {
		expenses = append(expenses, models.ExpenseFromRecord(rec))
	}
	// Defense in depth: every record re-passes the visibility predicate even
	// when a store-level filter was applied.
	expenses = vis.FilterExpenses(expenses)

	if cacheable {
		if err := s.cache.Set(cache.PartitionExpenses, workspaceId, qualifier, expenses); err != nil {
			config.LogError(s.logger, "expense", "List", "writing result cache", workspaceId, err)
		}
	}
	return expenses, nil
}

// Categories returns the workspace's active expense categories, cached by
// workspace id alone.
func (s *Service) Categories(ctx context.Context, workspaceId string) ([]*models.ExpenseCategory, error) {
	userId, _ := utils.GetUserIdFromContext(ctx)
	vis, err := access.Compute(ctx, s.store, userId, workspaceId)
	if err != nil {
		return nil, utils.UpstreamError(err, "compute visibility for %s", userId)
	}
	if vis.Type == access.FilterNone {
		return []*models.ExpenseCategory{}, nil
	}

	var cached []*models.ExpenseCategory
	found, err := s.cache.Get(cache.PartitionCategories, workspaceId, "", &cached)
	if err != nil {
		config.LogError(s.logger, "expense", "Categories", "reading result cache", workspaceId, err)
	} else if found {
		return cached, nil
	}

	recs, err := s.store.Query(ctx, models.CollectionCategories, []store.Filter{
		{Field: "workspace_id", Op: store.OpEqual, Value: workspaceId},
		{Field: "is_active", Op: store.OpEqual, Value: true},
	}, &store.Order{Field: "name"}, 0)
	if err != nil {
		return nil, utils.UpstreamError(err, "query categories for workspace %s", workspaceId)
	}
	categories := make([]*models.ExpenseCategory, 0, len(recs))
	for _, rec := range recs {
		categories = append(categories, models.CategoryFromRecord(rec))
	}

	if err := s.cache.Set(cache.PartitionCategories, workspaceId, "", categories); err != nil {
		config.LogError(s.logger, "expense", "Categories", "writing result cache", workspaceId, err)
	}
	return categories, nil
}

// CreateCategory adds a category and synchronously invalidates the
// workspace's cached category list.
func (s *Service) CreateCategory(ctx context.Context, workspaceId, name string) (*models.ExpenseCategory, error) {
	if name == "" {
		return nil, utils.ValidationError(nil, "category name is required")
	}
	c := &models.ExpenseCategory{
		ID:          uuid.NewString(),
		WorkspaceId: workspaceId,
		Name:        name,
		IsActive:    true,
	}
	if err := s.store.Set(ctx, models.CollectionCategories, c.ID, c.ToRecord()); err != nil {
		return nil, utils.UpstreamError(err, "persist category")
	}
	s.invalidateCache(ctx, workspaceId)
	return c, nil
}

// invalidateCache drops the workspace's cached results. Writes in a
// sub-workspace also feed the owner's cross-workspace aggregates, which are
// cached under the main workspace's id, so the main workspace is invalidated
// too whenever the written workspace has one.
func (s *Service) invalidateCache(ctx context.Context, workspaceId string) {
	if err := s.cache.InvalidateWorkspace(workspaceId); err != nil {
		config.LogError(s.logger, "expense", "invalidateCache", "invalidating workspace cache", workspaceId, err)
	}

	rec, err := s.store.Get(ctx, models.CollectionWorkspaces, workspaceId)
	if err != nil {
		config.LogError(s.logger, "expense", "invalidateCache", "reading workspace", workspaceId, err)
		return
	}
	if rec == nil {
		return
	}
	ws := models.WorkspaceFromRecord(rec)
	if !ws.IsSubWorkspace() {
		return
	}
	if err := s.cache.InvalidateWorkspace(ws.MainWorkspaceId); err != nil {
		config.LogError(s.logger, "expense", "invalidateCache", "invalidating main workspace cache", ws.MainWorkspaceId, err)
	}
}
