package aggregator

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"bitbucket.org/mmdatafocus/workspace_backend/cache"
	"bitbucket.org/mmdatafocus/workspace_backend/config"
	"bitbucket.org/mmdatafocus/workspace_backend/models"
)

type Rollup struct {
	Count int             `json:"count"`
	Total decimal.Decimal `json:"total"`
}

type WorkspaceRollup struct {
	WorkspaceId   string          `json:"workspace_id"`
	WorkspaceName string          `json:"workspace_name"`
	Count         int             `json:"count"`
	Total         decimal.Decimal `json:"total"`
}

// Analytics is the cross-workspace expense breakdown. Every grouping is an
// independent pass over the same materialized record set; the store is never
// re-queried per dimension.
type Analytics struct {
	TotalCount   int                              `json:"total_count"`
	TotalAmount  decimal.Decimal                  `json:"total_amount"`
	ByStatus     map[models.ExpenseStatus]*Rollup `json:"by_status"`
	ByWorkspace  map[string]*WorkspaceRollup      `json:"by_workspace"`
	ByCategory   map[string]*Rollup               `json:"by_category"`
	ByDepartment map[string]*Rollup               `json:"by_department"`
	ByMonth      map[string]*Rollup               `json:"by_month"` // "2006-01"
	GeneratedAt  time.Time                        `json:"generated_at"`
}

// OwnerCrossWorkspaceAnalytics aggregates the merged expense set of a main
// workspace and its subs into per-dimension rollups.
func (s *Service) OwnerCrossWorkspaceAnalytics(ctx context.Context, mainWorkspaceId string) (*Analytics, []*ChunkError, error) {
	if err := s.requireOwnerVisibility(ctx, mainWorkspaceId); err != nil {
		return nil, nil, err
	}

	var cached Analytics
	found, err := s.cache.Get(cache.PartitionAnalytics, mainWorkspaceId, "cross-workspace", &cached)
	if err != nil {
		config.LogError(s.logger, "aggregator", "OwnerCrossWorkspaceAnalytics", "reading result cache", mainWorkspaceId, err)
	} else if found {
		return &cached, nil, nil
	}

	ids, err := s.workspaceSet(ctx, mainWorkspaceId)
	if err != nil {
		return nil, nil, err
	}
	expenses, chunkErrs := s.ExpensesForWorkspaces(ctx, ids, nil)
	s.attachWorkspaceNames(ctx, expenses)

	a := buildAnalytics(expenses, time.Now())

	if len(chunkErrs) == 0 {
		if err := s.cache.Set(cache.PartitionAnalytics, mainWorkspaceId, "cross-workspace", a); err != nil {
			config.LogError(s.logger, "aggregator", "OwnerCrossWorkspaceAnalytics", "writing result cache", mainWorkspaceId, err)
		}
	}
	return a, chunkErrs, nil
}

func buildAnalytics(expenses []*models.Expense, now time.Time) *Analytics {
	a := &Analytics{
		ByStatus:     make(map[models.ExpenseStatus]*Rollup),
		ByWorkspace:  make(map[string]*WorkspaceRollup),
		ByCategory:   make(map[string]*Rollup),
		ByDepartment: make(map[string]*Rollup),
		ByMonth:      make(map[string]*Rollup),
		GeneratedAt:  now,
	}

	for _, e := range expenses {
		a.TotalCount++
		a.TotalAmount = a.TotalAmount.Add(e.AmountInBaseCurrency)
	}
	for _, e := range expenses {
		addRollup(a.ByStatus, e.Status, e.AmountInBaseCurrency)
	}
	for _, e := range expenses {
		r := a.ByWorkspace[e.WorkspaceId]
		if r == nil {
			r = &WorkspaceRollup{WorkspaceId: e.WorkspaceId, WorkspaceName: e.WorkspaceName}
			a.ByWorkspace[e.WorkspaceId] = r
		}
		r.Count++
		r.Total = r.Total.Add(e.AmountInBaseCurrency)
	}
	for _, e := range expenses {
		if e.Category != "" {
			addRollup(a.ByCategory, e.Category, e.AmountInBaseCurrency)
		}
	}
	for _, e := range expenses {
		if e.DepartmentId != "" {
			addRollup(a.ByDepartment, e.DepartmentId, e.AmountInBaseCurrency)
		}
	}
	for _, e := range expenses {
		if !e.ExpenseDate.IsZero() {
			addRollup(a.ByMonth, e.ExpenseDate.UTC().Format("2006-01"), e.AmountInBaseCurrency)
		}
	}
	return a
}

func addRollup[K comparable](m map[K]*Rollup, key K, amount decimal.Decimal) {
	r := m[key]
	if r == nil {
		r = &Rollup{}
		m[key] = r
	}
	r.Count++
	r.Total = r.Total.Add(amount)
}
