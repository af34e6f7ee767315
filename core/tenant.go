package core

import (
	"context"

	"github.com/pkg/errors"
)

// Every local read/write performed on behalf of an integration is scoped to one
// tenant. The tenant is carried explicitly on the context; it is set once at a
// connector entry point and released by function scope, so it can never bleed
// into whatever a worker executes next.

type tenantCtxKey struct{}

var ErrNoTenant = errors.New("no tenant in context")

// WithTenant returns a context carrying the given tenant ID.
func WithTenant(ctx context.Context, tenant string) context.Context {
	return context.WithValue(ctx, tenantCtxKey{}, tenant)
}

// TenantFromContext returns the tenant ID set on ctx, or ErrNoTenant.
func TenantFromContext(ctx context.Context) (string, error) {
	tenant, ok := ctx.Value(tenantCtxKey{}).(string)
	if !ok || tenant == "" {
		return "", ErrNoTenant
	}
	return tenant, nil
}
