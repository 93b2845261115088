// Package logging provides the process-wide structured logger used by every
// component of the scheduling core.
package logging

import (
	"os"
	"sync"

	"go.uber.org/zap"
)

var (
	once sync.Once
	base *zap.SugaredLogger
)

// Root returns the process-wide sugared logger, initialising it on first
// use from LOG_LEVEL / LOG_FORMAT environment hints.
func Root() *zap.SugaredLogger {
	once.Do(func() {
		cfg := zap.NewProductionConfig()
		if os.Getenv("LOG_FORMAT") == "console" {
			cfg = zap.NewDevelopmentConfig()
		}
		logger, err := cfg.Build()
		if err != nil {
			logger = zap.NewNop()
		}
		base = logger.Sugar()
	})
	return base
}

// Component returns a named child logger, the preferred way for a
// subsystem to obtain a logger via dependency injection.
func Component(name string) *zap.SugaredLogger {
	return Root().Named(name)
}
