package observe

import (
	"context"
	"log/slog"
	"time"

	"github.com/byte4ever/chcommon"
)

// Logger returns hooks that log every attempt at debug level, waits at
// warn level and terminal failures at error level. Each record carries a
// "policy" attribute set to name. A nil l uses slog.Default.
func Logger(l *slog.Logger, name string) *chcommon.Hooks {
	if l == nil {
		l = slog.Default()
	}

	l = l.With(slog.String("policy", name))
	ctx := context.Background()

	return &chcommon.Hooks{
		OnAttempt: func(a chcommon.CallAttempt) {
			attrs := []slog.Attr{
				slog.Int("attempt", a.Number),
				slog.Duration("elapsed", a.Elapsed),
			}

			if a.Err != nil {
				attrs = append(attrs,
					slog.String("kind", string(a.Kind)),
					slog.Bool("retryable", a.Retryable),
					slog.Any("error", a.Err),
				)
			}

			l.LogAttrs(ctx, slog.LevelDebug, "attempt finished", attrs...)
		},
		OnWait: func(attempt int, delay time.Duration) {
			l.LogAttrs(ctx, slog.LevelWarn, "retrying",
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
			)
		},
		OnFatal: func(attempts int, err error) {
			l.LogAttrs(ctx, slog.LevelError, "call failed",
				slog.Int("attempts", attempts),
				slog.String("kind", string(chcommon.KindOf(err))),
				slog.Any("error", err),
			)
		},
		OnExhausted: func(attempts int, err error) {
			l.LogAttrs(ctx, slog.LevelError, "retries exhausted",
				slog.Int("attempts", attempts),
				slog.Any("error", err),
			)
		},
		OnCancelled: func(attempts int, cause error) {
			l.LogAttrs(ctx, slog.LevelError, "call cancelled",
				slog.Int("attempts", attempts),
				slog.Any("cause", cause),
			)
		},
	}
}
