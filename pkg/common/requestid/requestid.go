// Package requestid carries the correlation id between the gateway
// middleware and outbound upstream calls.
package requestid

import (
	"context"

	"github.com/google/uuid"
)

const Header = "X-Request-ID"

type contextKey struct{}

func NewContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the id stored in ctx, or a fresh one.
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(contextKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.New().String()
}
