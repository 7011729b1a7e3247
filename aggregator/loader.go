package aggregator

import (
	"context"

	"github.com/graph-gophers/dataloader/v7"

	"bitbucket.org/mmdatafocus/workspace_backend/models"
	"bitbucket.org/mmdatafocus/workspace_backend/store"
	"bitbucket.org/mmdatafocus/workspace_backend/utils"
)

// batchGetWorkspaces is the dataloader batch function behind workspace-name
// denormalization. Lookups are chunked like every other multi-id read.
func (s *Service) batchGetWorkspaces(ctx context.Context, ids []string) []*dataloader.Result[*models.Workspace] {
	found := make(map[string]*models.Workspace, len(ids))
	for _, chunk := range utils.ChunkSlice(utils.UniqueSlice(ids), store.InFilterLimit) {
		recs, err := s.store.Query(ctx, models.CollectionWorkspaces, []store.Filter{
			{Field: "id", Op: store.OpIn, Value: chunk},
		}, nil, 0)
		if err != nil {
			return loaderErrors[*models.Workspace](len(ids), err)
		}
		for _, rec := range recs {
			w := models.WorkspaceFromRecord(rec)
			found[w.ID] = w
		}
	}
	results := make([]*dataloader.Result[*models.Workspace], 0, len(ids))
	for _, id := range ids {
		// missing workspaces resolve to nil data, not an error
		results = append(results, &dataloader.Result[*models.Workspace]{Data: found[id]})
	}
	return results
}

func loaderErrors[T any](n int, err error) []*dataloader.Result[T] {
	results := make([]*dataloader.Result[T], 0, n)
	for i := 0; i < n; i++ {
		results = append(results, &dataloader.Result[T]{Error: err})
	}
	return results
}
