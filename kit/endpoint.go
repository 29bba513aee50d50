// Package kit provides transport-agnostic endpoint plumbing: a service
// operation is an Endpoint, middleware composes around it, and adapters
// expose the same endpoint over HTTP and MCP without duplicating logic.
package kit

import "context"

// Endpoint is one service operation: typed request in, typed response out.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint with cross-cutting behaviour.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares so the first one listed is outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
