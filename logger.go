package rescache

// Fields is a minimal structured field map for logs.
type Fields map[string]any

// Logger is a tiny leveled logger. Adapters for zap, logrus and slog live
// under log/. If Options.Logger is nil, logging is disabled.
type Logger interface {
	Debug(msg string, f Fields)
	Info(msg string, f Fields)
	Warn(msg string, f Fields)
	Error(msg string, f Fields)
}

type NopLogger struct{}

func (NopLogger) Debug(string, Fields) {}
func (NopLogger) Info(string, Fields)  {}
func (NopLogger) Warn(string, Fields)  {}
func (NopLogger) Error(string, Fields) {}

type level uint8

const (
	levelDebug level = iota
	levelInfo
	levelWarn
	levelError
)

func logAt(l Logger, lv level, msg string, f Fields) {
	switch lv {
	case levelDebug:
		l.Debug(msg, f)
	case levelInfo:
		l.Info(msg, f)
	case levelWarn:
		l.Warn(msg, f)
	default:
		l.Error(msg, f)
	}
}
