// Package aggregator fans reads out across a main workspace and its
// sub-workspaces, merging, deduplicating and re-aggregating the results.
// The store's multi-value filter accepts at most store.InFilterLimit ids,
// so every fan-out partitions the workspace id set into chunks; merged
// ordering is always applied in memory because the store cannot order
// across partitioned queries.
package aggregator

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/graph-gophers/dataloader/v7"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"bitbucket.org/mmdatafocus/workspace_backend/access"
	"bitbucket.org/mmdatafocus/workspace_backend/cache"
	"bitbucket.org/mmdatafocus/workspace_backend/config"
	"bitbucket.org/mmdatafocus/workspace_backend/expense"
	"bitbucket.org/mmdatafocus/workspace_backend/models"
	"bitbucket.org/mmdatafocus/workspace_backend/store"
	"bitbucket.org/mmdatafocus/workspace_backend/utils"
)

// HierarchyResolver supplies the workspace hierarchy. The aggregator
// consumes it; it does not own membership or ownership rules.
type HierarchyResolver interface {
	GetSubWorkspaces(ctx context.Context, mainWorkspaceId string) ([]*models.Workspace, error)
	// GetWorkspace returns nil (no error) when the workspace does not exist.
	GetWorkspace(ctx context.Context, id string) (*models.Workspace, error)
}

// ChunkError records one failed chunk of a fan-out. A bad workspace id fails
// its own chunk; the rest of the fan-out still returns data.
type ChunkError struct {
	WorkspaceIds []string
	Err          error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %v: %v", e.WorkspaceIds, e.Err)
}

const fanOutConcurrency = 4

type Service struct {
	store           store.Store
	hierarchy       HierarchyResolver
	cache           cache.ResultCache
	logger          *logrus.Logger
	tracer          trace.Tracer
	workspaceLoader *dataloader.Loader[string, *models.Workspace]
}

func NewService(st store.Store, hierarchy HierarchyResolver, rc cache.ResultCache) *Service {
	s := &Service{
		store:     st,
		hierarchy: hierarchy,
		cache:     rc,
		logger:    config.GetLogger(),
		tracer:    otel.Tracer("aggregator"),
	}
	s.workspaceLoader = dataloader.NewBatchedLoader(s.batchGetWorkspaces,
		dataloader.WithClearCacheOnBatch[string, *models.Workspace]())
	return s
}

// workspaceSet resolves main + subs into the id list a fan-out covers.
func (s *Service) workspaceSet(ctx context.Context, mainWorkspaceId string) ([]string, error) {
	subs, err := s.hierarchy.GetSubWorkspaces(ctx, mainWorkspaceId)
	if err != nil {
		return nil, utils.UpstreamError(err, "resolve sub-workspaces of %s", mainWorkspaceId)
	}
	ids := make([]string, 0, len(subs)+1)
	ids = append(ids, mainWorkspaceId)
	for _, w := range subs {
		ids = append(ids, w.ID)
	}
	return utils.UniqueSlice(ids), nil
}

// fanOut queries one collection across every workspace chunk and
// concatenates the results. Chunk failures are collected, not fatal.
func (s *Service) fanOut(ctx context.Context, collection string, workspaceIds []string, extra []store.Filter) ([]store.Record, []*ChunkError) {
	ids := utils.UniqueSlice(workspaceIds)
	chunks := utils.ChunkSlice(ids, store.InFilterLimit)

	ctx, span := s.tracer.Start(ctx, "aggregator.fanOut", trace.WithAttributes(
		attribute.String("collection", collection),
		attribute.Int("workspaces", len(ids)),
		attribute.Int("chunks", len(chunks)),
	))
	defer span.End()

	var (
		mu        sync.Mutex
		merged    []store.Record
		chunkErrs []*ChunkError
	)
	var g errgroup.Group
	g.SetLimit(fanOutConcurrency)
	for _, chunk := range chunks {
		chunk := chunk
		g.Go(func() error {
			filters := make([]store.Filter, 0, len(extra)+1)
			filters = append(filters, store.Filter{Field: "workspace_id", Op: store.OpIn, Value: chunk})
			filters = append(filters, extra...)
			recs, err := s.store.Query(ctx, collection, filters, nil, 0)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				config.AggregatorChunkErrors.Inc()
				config.LogError(s.logger, "aggregator", "fanOut", "querying chunk of "+collection, chunk, err)
				chunkErrs = append(chunkErrs, &ChunkError{WorkspaceIds: chunk, Err: err})
				return nil
			}
			merged = append(merged, recs...)
			return nil
		})
	}
	_ = g.Wait()
	return merged, chunkErrs
}

// BudgetsForWorkspaces returns every budget across the given workspaces,
// deduplicated by id.
func (s *Service) BudgetsForWorkspaces(ctx context.Context, workspaceIds []string) ([]*models.Budget, []*ChunkError) {
	recs, chunkErrs := s.fanOut(ctx, models.CollectionBudgets, workspaceIds, nil)
	seen := make(map[string]bool, len(recs))
	budgets := make([]*models.Budget, 0, len(recs))
	for _, rec := range recs {
		b := models.BudgetFromRecord(rec)
		if b.ID == "" || seen[b.ID] {
			continue
		}
		seen[b.ID] = true
		budgets = append(budgets, b)
	}
	return budgets, chunkErrs
}

// ExpensesForWorkspaces returns every matching expense across the given
// workspaces, deduplicated by id.
func (s *Service) ExpensesForWorkspaces(ctx context.Context, workspaceIds []string, opts *expense.QueryOptions) ([]*models.Expense, []*ChunkError) {
	recs, chunkErrs := s.fanOut(ctx, models.CollectionExpenses, workspaceIds, opts.StoreFilters())
	seen := make(map[string]bool, len(recs))
	expenses := make([]*models.Expense, 0, len(recs))
	for _, rec := range recs {
		e := models.ExpenseFromRecord(rec)
		if e.ID == "" || seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		expenses = append(expenses, e)
	}
	return expenses, chunkErrs
}

// OwnerCrossWorkspaceExpenses returns the merged expense set over a main
// workspace and its subs, newest first, with workspace names attached.
// Only a caller with full visibility over the main workspace may use it.
func (s *Service) OwnerCrossWorkspaceExpenses(ctx context.Context, mainWorkspaceId string, opts *expense.QueryOptions) ([]*models.Expense, []*ChunkError, error) {
	if err := s.requireOwnerVisibility(ctx, mainWorkspaceId); err != nil {
		return nil, nil, err
	}

	cacheable := !opts.UserScoped()
	qualifier := "owner|" + opts.Qualifier()
	if cacheable {
		var cached []*models.Expense
		found, err := s.cache.Get(cache.PartitionExpenses, mainWorkspaceId, qualifier, &cached)
		if err != nil {
			config.LogError(s.logger, "aggregator", "OwnerCrossWorkspaceExpenses", "reading result cache", mainWorkspaceId, err)
		} else if found {
			return cached, nil, nil
		}
	}

	ids, err := s.workspaceSet(ctx, mainWorkspaceId)
	if err != nil {
		return nil, nil, err
	}
	expenses, chunkErrs := s.ExpensesForWorkspaces(ctx, ids, opts)
	s.attachWorkspaceNames(ctx, expenses)

	sort.SliceStable(expenses, func(i, j int) bool {
		return expenses[i].ExpenseDate.After(expenses[j].ExpenseDate)
	})
	if opts != nil && opts.Limit > 0 && len(expenses) > opts.Limit {
		expenses = expenses[:opts.Limit]
	}

	// Partial results are returned but never cached.
	if cacheable && len(chunkErrs) == 0 {
		if err := s.cache.Set(cache.PartitionExpenses, mainWorkspaceId, qualifier, expenses); err != nil {
			config.LogError(s.logger, "aggregator", "OwnerCrossWorkspaceExpenses", "writing result cache", mainWorkspaceId, err)
		}
	}
	return expenses, chunkErrs, nil
}

func (s *Service) requireOwnerVisibility(ctx context.Context, mainWorkspaceId string) error {
	// Trusted internal callers (ops tools, the auth layer) may pre-assert
	// ownership via context. The flag only counts for the workspace it was
	// set alongside; any other id goes through the membership check.
	if utils.GetIsOwnerFromContext(ctx) {
		if wsId, ok := utils.GetWorkspaceIdFromContext(ctx); ok && wsId == mainWorkspaceId {
			return nil
		}
	}
	userId, _ := utils.GetUserIdFromContext(ctx)
	vis, err := access.Compute(ctx, s.store, userId, mainWorkspaceId)
	if err != nil {
		return utils.UpstreamError(err, "compute visibility for %s", userId)
	}
	if vis.Type != access.FilterAll {
		return utils.AccessDeniedError("user %s is not an owner/admin of workspace %s", userId, mainWorkspaceId)
	}
	return nil
}

// attachWorkspaceNames denormalizes workspace names onto merged records,
// resolving each distinct workspace once, never per record.
func (s *Service) attachWorkspaceNames(ctx context.Context, expenses []*models.Expense) {
	var ids []string
	for _, e := range expenses {
		ids = append(ids, e.WorkspaceId)
	}
	ids = utils.UniqueSlice(ids)
	if len(ids) == 0 {
		return
	}

	workspaces, errs := s.workspaceLoader.LoadMany(ctx, ids)()
	for _, err := range errs {
		if err != nil {
			config.LogError(s.logger, "aggregator", "attachWorkspaceNames", "loading workspaces", ids, err)
		}
	}
	names := make(map[string]string, len(ids))
	for _, w := range workspaces {
		if w != nil {
			names[w.ID] = w.Name
		}
	}
	for _, e := range expenses {
		e.WorkspaceName = names[e.WorkspaceId]
	}
}
