// Package mongo implements the repository interfaces on a MongoDB
// database: one collection per repository, the same semantics as the
// Postgres adapter, and a 10 second timeout on every operation.
package mongo

import (
	"context"
	"time"
)

const opTimeout = 10 * time.Second

func opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, opTimeout)
}
