package utils

import (
	"context"

	"bitbucket.org/mmdatafocus/workspace_backend/appctx"
)

// Alias the shared context key type so callers only import utils.
type contextKey = appctx.ContextKey

var (
	ContextKeyUserId        = appctx.ContextKeyUserId
	ContextKeyWorkspaceId   = appctx.ContextKeyWorkspaceId
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
	ContextKeyIsOwner       = appctx.ContextKeyIsOwner
)

func GetUserIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyUserId)
}

func GetWorkspaceIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyWorkspaceId)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func GetIsOwnerFromContext(ctx context.Context) bool {
	v, ok := appctx.GetBool(ctx, ContextKeyIsOwner)
	return ok && v
}

func SetUserIdInContext(ctx context.Context, userId string) context.Context {
	return appctx.Set(ctx, ContextKeyUserId, userId)
}

func SetWorkspaceIdInContext(ctx context.Context, workspaceId string) context.Context {
	return appctx.Set(ctx, ContextKeyWorkspaceId, workspaceId)
}

func SetIsOwnerInContext(ctx context.Context, isOwner bool) context.Context {
	return appctx.Set(ctx, ContextKeyIsOwner, isOwner)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}
