package core

import "github.com/hupe1980/agentruntime/logging"

// loggerAdapter gives run and tool contexts their Log* helpers over an
// always non-nil logging.Logger.
type loggerAdapter struct {
	logger logging.Logger
}

func newLoggerAdapter(l logging.Logger) *loggerAdapter {
	if l == nil {
		l = logging.NoOpLogger{}
	}
	return &loggerAdapter{logger: l}
}

// Logger exposes the wrapped logger for callers that pass it on.
func (l *loggerAdapter) Logger() logging.Logger { return l.logger }

// LogDebug forwards to the wrapped logger.
func (l *loggerAdapter) LogDebug(msg string, args ...any) { l.logger.Debug(msg, args...) }

// LogInfo forwards to the wrapped logger.
func (l *loggerAdapter) LogInfo(msg string, args ...any) { l.logger.Info(msg, args...) }

// LogWarn forwards to the wrapped logger.
func (l *loggerAdapter) LogWarn(msg string, args ...any) { l.logger.Warn(msg, args...) }

// LogError forwards to the wrapped logger.
func (l *loggerAdapter) LogError(msg string, args ...any) { l.logger.Error(msg, args...) }
