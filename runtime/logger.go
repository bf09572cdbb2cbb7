package runtime

import (
	"sync"

	"go.uber.org/zap"
)

var (
	pkgLogger  *zap.Logger
	loggerOnce sync.Once
)

// logger returns the runtime package's logger instance.
// It uses a no-op logger by default.
func logger() *zap.Logger {
	loggerOnce.Do(func() {
		if pkgLogger == nil {
			pkgLogger = zap.NewNop()
		}
	})
	return pkgLogger
}

// SetLogger configures the runtime package's logger.
// This must be called before any runtime operations.
func SetLogger(l *zap.Logger) {
	pkgLogger = l
}
