// Package access computes record-level visibility for a user within a
// workspace and re-checks every record read back from the store. The same
// pure predicate backs both the query-time narrowing and the post-fetch
// filter, so the two paths cannot drift apart.
package access

import (
	"context"

	"bitbucket.org/mmdatafocus/workspace_backend/models"
	"bitbucket.org/mmdatafocus/workspace_backend/store"
)

type FilterType string

const (
	FilterNone       = FilterType("none")
	FilterOwn        = FilterType("own")
	FilterDepartment = FilterType("department")
	FilterAll        = FilterType("all")
)

// Visibility is the resolved scope for one user/workspace pair.
type Visibility struct {
	Type          FilterType
	UserId        string
	DepartmentIds []string
}

// Compute resolves the caller's visibility from workspace membership.
// Role mapping: owner/admin see everything, managers see their department
// allow-list plus their own records, members see only their own records,
// non-members see nothing.
func Compute(ctx context.Context, st store.Store, userId, workspaceId string) (*Visibility, error) {
	recs, err := st.Query(ctx, models.CollectionWorkspaceMembers, []store.Filter{
		{Field: "workspace_id", Op: store.OpEqual, Value: workspaceId},
		{Field: "user_id", Op: store.OpEqual, Value: userId},
	}, nil, 1)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return &Visibility{Type: FilterNone, UserId: userId}, nil
	}
	member := models.WorkspaceMemberFromRecord(recs[0])
	if !member.IsActive {
		return &Visibility{Type: FilterNone, UserId: userId}, nil
	}

	switch member.Role {
	case models.MemberRoleOwner, models.MemberRoleAdmin:
		return &Visibility{Type: FilterAll, UserId: userId}, nil
	case models.MemberRoleManager:
		if len(member.DepartmentIds) == 0 {
			return &Visibility{Type: FilterOwn, UserId: userId}, nil
		}
		return &Visibility{Type: FilterDepartment, UserId: userId, DepartmentIds: member.DepartmentIds}, nil
	case models.MemberRoleMember:
		return &Visibility{Type: FilterOwn, UserId: userId}, nil
	}
	return &Visibility{Type: FilterNone, UserId: userId}, nil
}

// AllowsExpense is the per-record visibility predicate. Department scope is
// the union of the allow-list and the caller's own records; the store cannot
// express that union in one query, so every bulk read re-passes records
// through here before they are surfaced.
func (v *Visibility) AllowsExpense(e *models.Expense) bool {
	if v == nil || e == nil {
		return false
	}
	switch v.Type {
	case FilterAll:
		return true
	case FilterOwn:
		return e.SubmittedBy == v.UserId
	case FilterDepartment:
		if e.SubmittedBy == v.UserId {
			return true
		}
		for _, id := range v.DepartmentIds {
			if e.DepartmentId == id {
				return true
			}
		}
		return false
	}
	return false
}

// FilterExpenses applies AllowsExpense to a fetched batch.
func (v *Visibility) FilterExpenses(list []*models.Expense) []*models.Expense {
	out := make([]*models.Expense, 0, len(list))
	for _, e := range list {
		if v.AllowsExpense(e) {
			out = append(out, e)
		}
	}
	return out
}

// StoreFilters returns the query-time narrowing that IS expressible in a
// single store query. Department scope returns nothing extra: the
// own-OR-allow-list union has to be resolved post-fetch.
func (v *Visibility) StoreFilters() []store.Filter {
	switch v.Type {
	case FilterOwn:
		return []store.Filter{{Field: "submitted_by", Op: store.OpEqual, Value: v.UserId}}
	case FilterDepartment:
		if len(v.DepartmentIds) == 1 {
			// A single-department allow-list still cannot be pushed down:
			// it would drop the caller's own records outside that department.
			return nil
		}
	}
	return nil
}
