package models

import (
	"time"

	"bitbucket.org/mmdatafocus/workspace_backend/store"
)

type Workspace struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	OwnerId         string    `json:"owner_id"`
	MainWorkspaceId string    `json:"main_workspace_id,omitempty"` // empty for main workspaces
	BaseCurrency    string    `json:"base_currency"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
}

func (w *Workspace) IsSubWorkspace() bool {
	return w.MainWorkspaceId != ""
}

func WorkspaceFromRecord(rec store.Record) *Workspace {
	return &Workspace{
		ID:              recString(rec, "id"),
		Name:            recString(rec, "name"),
		OwnerId:         recString(rec, "owner_id"),
		MainWorkspaceId: recString(rec, "main_workspace_id"),
		BaseCurrency:    recString(rec, "base_currency"),
		IsActive:        recBool(rec, "is_active"),
		CreatedAt:       recTime(rec, "created_at"),
	}
}

func (w *Workspace) ToRecord() store.Record {
	return store.Record{
		"id":                w.ID,
		"name":              w.Name,
		"owner_id":          w.OwnerId,
		"main_workspace_id": w.MainWorkspaceId,
		"base_currency":     w.BaseCurrency,
		"is_active":         w.IsActive,
		"created_at":        timeValue(w.CreatedAt),
	}
}

// WorkspaceMember links a user to a workspace with a role; the access filter
// derives record visibility from it.
type WorkspaceMember struct {
	ID            string     `json:"id"`
	WorkspaceId   string     `json:"workspace_id"`
	UserId        string     `json:"user_id"`
	Role          MemberRole `json:"role"`
	DepartmentIds []string   `json:"department_ids,omitempty"` // manager allow-list
	IsActive      bool       `json:"is_active"`
}

func WorkspaceMemberFromRecord(rec store.Record) *WorkspaceMember {
	return &WorkspaceMember{
		ID:            recString(rec, "id"),
		WorkspaceId:   recString(rec, "workspace_id"),
		UserId:        recString(rec, "user_id"),
		Role:          MemberRole(recString(rec, "role")),
		DepartmentIds: recStringSlice(rec, "department_ids"),
		IsActive:      recBool(rec, "is_active"),
	}
}

func (m *WorkspaceMember) ToRecord() store.Record {
	return store.Record{
		"id":             m.ID,
		"workspace_id":   m.WorkspaceId,
		"user_id":        m.UserId,
		"role":           string(m.Role),
		"department_ids": m.DepartmentIds,
		"is_active":      m.IsActive,
	}
}

type ExpenseCategory struct {
	ID          string `json:"id"`
	WorkspaceId string `json:"workspace_id"`
	Name        string `json:"name"`
	IsActive    bool   `json:"is_active"`
}

func CategoryFromRecord(rec store.Record) *ExpenseCategory {
	return &ExpenseCategory{
		ID:          recString(rec, "id"),
		WorkspaceId: recString(rec, "workspace_id"),
		Name:        recString(rec, "name"),
		IsActive:    recBool(rec, "is_active"),
	}
}

func (c *ExpenseCategory) ToRecord() store.Record {
	return store.Record{
		"id":           c.ID,
		"workspace_id": c.WorkspaceId,
		"name":         c.Name,
		"is_active":    c.IsActive,
	}
}
