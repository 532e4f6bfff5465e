package telemetry

import (
	"go.uber.org/zap"
)

// Logger is the structured logger every server component accepts at
// construction, used in a one-log-statement-per-state-transition
// style and backed by zap's SugaredLogger instead of
// the standard library's log.Printf.
type Logger struct {
	s *zap.SugaredLogger
}

// NewLogger builds a production zap configuration (JSON encoding,
// info level) and wraps it. Callers that want a different
// configuration (development console encoding, debug level) should
// build their own *zap.Logger and pass it to Wrap instead.
func NewLogger() (*Logger, error) {
	z, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return Wrap(z), nil
}

// Wrap adapts an already-configured *zap.Logger.
func Wrap(z *zap.Logger) *Logger {
	return &Logger{s: z.Sugar()}
}

// Noop returns a Logger that discards everything, for tests and
// embeddings that don't want log output.
func Noop() *Logger {
	return Wrap(zap.NewNop())
}

// Named returns a child logger tagged with name, the way the node and
// index servers tag their per-connection and per-subsystem loggers
// ("worker-conn", "control-conn", "reorg", ...).
func (l *Logger) Named(name string) *Logger {
	return &Logger{s: l.s.Named(name)}
}

// With returns a child logger with the given structured key/value
// pairs attached to every subsequent entry.
func (l *Logger) With(kv ...any) *Logger {
	return &Logger{s: l.s.With(kv...)}
}

func (l *Logger) Debugw(msg string, kv ...any) { l.s.Debugw(msg, kv...) }
func (l *Logger) Infow(msg string, kv ...any)  { l.s.Infow(msg, kv...) }
func (l *Logger) Warnw(msg string, kv ...any)  { l.s.Warnw(msg, kv...) }
func (l *Logger) Errorw(msg string, kv ...any) { l.s.Errorw(msg, kv...) }

// Sync flushes any buffered log entries. Call it once on clean
// shutdown, mirroring the defer logger.Sync() idiom zap's own docs
// recommend.
func (l *Logger) Sync() error { return l.s.Sync() }
