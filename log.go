package corosched

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/nsmith5/corosched/internal/prettylog"
)

// newDefaultLogger builds the console logger a Runtime uses when none is
// supplied via WithLogger: a slog.Logger over prettylog's console writer,
// tagged with the firing coroutine's id and the scheduler tick it fired
// on (prettylog.NewWriter auto-detects whether stdout is a terminal and
// turns off ANSI colors when it isn't; the output stays in console form).
func newDefaultLogger(rt *Runtime) *slog.Logger {
	handler := slog.NewJSONHandler(prettylog.NewWriter(os.Stdout), &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return slog.New(runtimeLogHandler{inner: handler, rt: rt})
}

// runtimeLogHandler decorates every record with the current coroutine id
// and the scheduler tick it fired on.
type runtimeLogHandler struct {
	inner slog.Handler
	rt    *Runtime
}

func (h runtimeLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h runtimeLogHandler) Handle(ctx context.Context, r slog.Record) error {
	r.Time = time.Unix(0, int64(h.rt.Now()))
	if cur := h.rt.current; cur != nil {
		r.AddAttrs(slog.Int("coroutine", cur.id))
	}
	r.AddAttrs(slog.Int64("tick", h.rt.tick))
	return h.inner.Handle(ctx, r)
}

func (h runtimeLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return runtimeLogHandler{inner: h.inner.WithAttrs(attrs), rt: h.rt}
}

func (h runtimeLogHandler) WithGroup(name string) slog.Handler {
	return runtimeLogHandler{inner: h.inner.WithGroup(name), rt: h.rt}
}
