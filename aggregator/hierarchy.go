package aggregator

import (
	"context"

	"bitbucket.org/mmdatafocus/workspace_backend/models"
	"bitbucket.org/mmdatafocus/workspace_backend/store"
)

// StoreHierarchy is the default HierarchyResolver, reading the hierarchy
// straight from the workspaces collection. Deployments with a dedicated
// membership service plug in their own resolver.
type StoreHierarchy struct {
	store store.Store
}

func NewStoreHierarchy(st store.Store) *StoreHierarchy {
	return &StoreHierarchy{store: st}
}

func (h *StoreHierarchy) GetSubWorkspaces(ctx context.Context, mainWorkspaceId string) ([]*models.Workspace, error) {
	recs, err := h.store.Query(ctx, models.CollectionWorkspaces, []store.Filter{
		{Field: "main_workspace_id", Op: store.OpEqual, Value: mainWorkspaceId},
		{Field: "is_active", Op: store.OpEqual, Value: true},
	}, nil, 0)
	if err != nil {
		return nil, err
	}
	workspaces := make([]*models.Workspace, 0, len(recs))
	for _, rec := range recs {
		workspaces = append(workspaces, models.WorkspaceFromRecord(rec))
	}
	return workspaces, nil
}

func (h *StoreHierarchy) GetWorkspace(ctx context.Context, id string) (*models.Workspace, error) {
	rec, err := h.store.Get(ctx, models.CollectionWorkspaces, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	return models.WorkspaceFromRecord(rec), nil
}
