// Package ctxutil carries per-request values through context.Context.
package ctxutil

import "context"

type (
	traceDataKey   struct{}
	requestDataKey struct{}
)

// TraceData ties log lines of one request to its trace.
type TraceData struct {
	TraceID   string
	RequestID string
}

// RequestData carries the authenticated caller for one request.
type RequestData struct {
	Subject string
	Scopes  []string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	return value[*TraceData](ctx, traceDataKey{})
}

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey{}, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
	return value[*RequestData](ctx, requestDataKey{})
}

// Subject returns the authenticated subject, or "" for none.
func Subject(ctx context.Context) string {
	if rd := GetRequestData(ctx); rd != nil {
		return rd.Subject
	}
	return ""
}

func value[T any](ctx context.Context, key any) T {
	v, _ := ctx.Value(key).(T)
	return v
}
