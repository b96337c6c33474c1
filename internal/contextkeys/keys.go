package contextkeys

import (
	"context"
	"log/slog"
)

type requestIDKey struct{}
type sessionIDKey struct{}
type sourceKey struct{}

// Source names the webhook an event arrived through.
type Source string

const (
	SourceChat    Source = "chat"
	SourcePayment Source = "payment"
)

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func GetRequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(requestIDKey{}).(string)
	return v, ok && v != ""
}

func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, sessionID)
}

func GetSessionID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(sessionIDKey{}).(string)
	return v, ok && v != ""
}

func WithSource(ctx context.Context, src Source) context.Context {
	return context.WithValue(ctx, sourceKey{}, src)
}

func GetSource(ctx context.Context) (Source, bool) {
	v, ok := ctx.Value(sourceKey{}).(Source)
	return v, ok
}

// LogHandler adds the request-scoped values of the record's context to every
// log record.
type LogHandler struct {
	slog.Handler
}

func NewLogHandler(h slog.Handler) *LogHandler {
	return &LogHandler{Handler: h}
}

func (h *LogHandler) Handle(ctx context.Context, r slog.Record) error {
	if id, ok := GetRequestID(ctx); ok {
		r.AddAttrs(slog.String("request_id", id))
	}
	if src, ok := GetSource(ctx); ok {
		r.AddAttrs(slog.String("source", string(src)))
	}
	if id, ok := GetSessionID(ctx); ok {
		r.AddAttrs(slog.String("session", id))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LogHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *LogHandler) WithGroup(name string) slog.Handler {
	return &LogHandler{Handler: h.Handler.WithGroup(name)}
}
