package logger

import (
	"go.uber.org/zap"
)

var log *zap.Logger

// DefaultConfig returns a standard zap.Config object with custom settings.
func DefaultConfig() zap.Config {
	return zap.Config{
		Level:            zap.NewAtomicLevelAt(zap.InfoLevel),
		Development:      false,
		Encoding:         "json",
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig:    zap.NewProductionEncoderConfig(),
	}
}

// InitializeWithConfig builds the global logger from the given config,
// falling back to console-only output if file logging fails.
func InitializeWithConfig(cfg zap.Config) {
	var err error
	log, err = cfg.Build()
	if err != nil {
		cfg.OutputPaths = []string{"stdout"}
		log, err = cfg.Build()
		if err != nil {
			panic("failed to initialize logger with fallback config: " + err.Error())
		}
	}
	zap.ReplaceGlobals(log)
}

// Initialize initializes the logger with the default configuration.
func Initialize() {
	InitializeWithConfig(DefaultConfig())
}

// L returns the global logger, initializing it if needed.
func L() *zap.Logger {
	if log == nil {
		Initialize()
	}
	return log
}

// GetLogger returns the global logger instance.
func GetLogger() *zap.Logger {
	return L()
}

// Sync flushes any buffered log entries. Should be called before the application exits.
func Sync() error {
	if log != nil {
		return log.Sync()
	}
	return nil
}
