package authsession

import "context"

type requestIDContextKey struct{}

// WithRequestID attaches a request identifier to ctx. The manager stamps
// it into audit events so transitions can be correlated with the UI action
// that triggered them.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	requestID, _ := ctx.Value(requestIDContextKey{}).(string)
	return requestID
}
