package taskrt

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var logger atomic.Pointer[zap.Logger]

// Logger returns the package logger. It is a no-op logger unless SetLogger
// has been called.
func Logger() *zap.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	return zap.NewNop()
}

// SetLogger sets the logger used by Build and the Run functions, and given
// to builders that have no logger of their own.
func SetLogger(l *zap.Logger) {
	logger.Store(l)
}
