package domain

import "context"

// SystemActor is recorded as changedBy when no authenticated operator is known.
const SystemActor = "system"

// RequestContext carries authenticated operator info when available.
type RequestContext struct {
	ActorID   string `json:"actorId"`
	Role      string `json:"role"`
	RequestID string `json:"requestId"`
}

type requestContextKey struct{}

// WithRequestContext attaches rc to ctx.
func WithRequestContext(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// FromContext returns the RequestContext stored in ctx, if any.
func FromContext(ctx context.Context) (RequestContext, bool) {
	if ctx == nil {
		return RequestContext{}, false
	}
	rc, ok := ctx.Value(requestContextKey{}).(RequestContext)
	return rc, ok
}

// ActorFromContext returns the operator id or SystemActor.
func ActorFromContext(ctx context.Context) string {
	if rc, ok := FromContext(ctx); ok && rc.ActorID != "" {
		return rc.ActorID
	}
	return SystemActor
}
