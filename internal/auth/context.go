package auth

import "context"

type payloadContextKey struct{}

// ContextWithPayload attaches the verified token payload to the context.
func ContextWithPayload(ctx context.Context, p *Payload) context.Context {
	if p == nil {
		return ctx
	}
	return context.WithValue(ctx, payloadContextKey{}, p)
}

// PayloadFromContext extracts the verified token payload from the context.
func PayloadFromContext(ctx context.Context) (*Payload, bool) {
	if ctx == nil {
		return nil, false
	}
	v, ok := ctx.Value(payloadContextKey{}).(*Payload)
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// UsernameFromContext returns the authenticated username, if any.
func UsernameFromContext(ctx context.Context) (string, bool) {
	p, ok := PayloadFromContext(ctx)
	if !ok || p.Username == "" {
		return "", false
	}
	return p.Username, true
}
