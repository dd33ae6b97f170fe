package tools

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey int

const (
	ctxKeyOrgID ctxKey = iota
	ctxKeyUserID
	ctxKeyDataSourceSyntax
)

// WithCaller attaches the organization and user ids that scope every tool
// call in a conversation.
func WithCaller(ctx context.Context, orgID, userID uuid.UUID) context.Context {
	ctx = context.WithValue(ctx, ctxKeyOrgID, orgID)
	return context.WithValue(ctx, ctxKeyUserID, userID)
}

// OrgID returns the organization id attached by WithCaller, or the zero UUID.
func OrgID(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(ctxKeyOrgID).(uuid.UUID)
	return id
}

// UserID returns the user id attached by WithCaller, or the zero UUID.
func UserID(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(ctxKeyUserID).(uuid.UUID)
	return id
}

// WithDataSourceSyntax attaches the conversation's SQL dialect so
// create_metrics/update_metrics can validate against the right grammar.
func WithDataSourceSyntax(ctx context.Context, syntax string) context.Context {
	return context.WithValue(ctx, ctxKeyDataSourceSyntax, syntax)
}
