package repositorycache

import (
	"context"
)

type skipInvalidationKey struct{}

// WithoutInvalidation marks ctx so writes made with it do not invalidate.
// Bulk loaders use it and invalidate once when they finish.
func WithoutInvalidation(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, skipInvalidationKey{}, true)
}

func invalidationSkipped(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	skip, _ := ctx.Value(skipInvalidationKey{}).(bool)
	return skip
}
