// Package tenant implements the Tenant Guard (C1) helpers: every entity
// carries a non-null tenant id, which the request/job entry point pins on a
// context.Context with WithID. The db layer does not read the context: its
// methods take the tenant id as an explicit argument, which callers pass in.
// Downstream components assume tenant consistency once past this guard.
package tenant

import (
	"context"

	"github.com/orderflow/orderflow/internal/coreerr"
)

type ctxKey struct{}

// ID is a tenant identifier. It is an opaque string (the tenant's internal
// id), distinct from the URL-facing slug used by the SMTP/upload intake
// contract.
type ID string

// WithID returns a context carrying the tenant id, pinned at job enqueue or
// request entry. Nothing downstream may overwrite it.
func WithID(ctx context.Context, id ID) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext extracts the tenant id and fails closed if it's absent —
// there is no implicit "default tenant."
func FromContext(ctx context.Context) (ID, error) {
	id, ok := ctx.Value(ctxKey{}).(ID)
	if !ok || id == "" {
		return "", coreerr.New(coreerr.TenantUnknown, "no tenant id in context")
	}
	return id, nil
}

// MustFromContext panics if no tenant id is present. Reserved for code paths
// that are only ever reached after WithID has already been validated
// upstream (e.g. deep inside a single request's call graph) — never call
// this at a boundary that accepts external input.
func MustFromContext(ctx context.Context) ID {
	id, err := FromContext(ctx)
	if err != nil {
		panic(err)
	}
	return id
}

// Require fails with a NotFound-flavored error, not Forbidden, whenever a
// fetched row's tenant id doesn't match the context's tenant id, so that the
// existence of data in other tenants is never distinguishable from its
// absence.
func Require(ctx context.Context, rowTenantID string) error {
	id, err := FromContext(ctx)
	if err != nil {
		return err
	}
	if string(id) != rowTenantID {
		return coreerr.New(coreerr.NotFound, "row does not belong to caller's tenant")
	}
	return nil
}
