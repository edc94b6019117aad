package libav

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/asticode/go-astiav"

	"github.com/jmylchreest/muxarr/internal/observability"
)

var bridgeOnce sync.Once

// Bridge routes libav's log output into logger. libav only has one process
// wide callback, so the first call wins.
func Bridge(logger *slog.Logger) {
	bridgeOnce.Do(func() {
		l := observability.WithComponent(logger, "libav")
		astiav.SetLogLevel(libavLevel(l))
		astiav.SetLogCallback(func(c astiav.Classer, level astiav.LogLevel, _, msg string) {
			msg = strings.TrimSpace(msg)
			if msg == "" {
				return
			}
			attrs := []slog.Attr{}
			if c != nil {
				if cl := c.Class(); cl != nil {
					attrs = append(attrs, slog.String("class", cl.Name()))
				}
			}
			l.LogAttrs(context.Background(), slogLevel(level), msg, attrs...)
		})
	})
}

func slogLevel(level astiav.LogLevel) slog.Level {
	switch {
	case level <= astiav.LogLevelError:
		return slog.LevelError
	case level <= astiav.LogLevelWarning:
		return slog.LevelWarn
	case level <= astiav.LogLevelInfo:
		return slog.LevelInfo
	case level <= astiav.LogLevelVerbose:
		return slog.LevelDebug
	default:
		return observability.LevelTrace
	}
}

// libavLevel keeps libav from formatting messages the logger would drop.
func libavLevel(l *slog.Logger) astiav.LogLevel {
	ctx := context.Background()
	switch {
	case l.Enabled(ctx, observability.LevelTrace):
		return astiav.LogLevelDebug
	case l.Enabled(ctx, slog.LevelDebug):
		return astiav.LogLevelVerbose
	case l.Enabled(ctx, slog.LevelInfo):
		return astiav.LogLevelInfo
	case l.Enabled(ctx, slog.LevelWarn):
		return astiav.LogLevelWarning
	default:
		return astiav.LogLevelError
	}
}
