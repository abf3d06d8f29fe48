package internal

import (
	"sync"
)

var (
	globalLogger *SecureLogger
	loggerOnce   sync.Once
)

// InitLogger installs the process logger. Only the first call has an effect;
// verbosity cannot be changed afterwards.
func InitLogger(verbosity Verbosity) *SecureLogger {
	loggerOnce.Do(func() {
		globalLogger = NewVerbosityLogger(verbosity)
	})
	return globalLogger
}

// GetLogger returns the process logger, installing a default one if InitLogger was never called
func GetLogger() *SecureLogger {
	return InitLogger(VerbosityNormal)
}

// LogError logs an error message using the global logger
func LogError(format string, args ...interface{}) {
	GetLogger().Error(format, args...)
}

// LogWarn logs a warning message using the global logger
func LogWarn(format string, args ...interface{}) {
	GetLogger().Warn(format, args...)
}

// LogInfo logs an info message using the global logger
func LogInfo(format string, args ...interface{}) {
	GetLogger().Info(format, args...)
}

// LogDebug logs a debug message using the global logger
func LogDebug(format string, args ...interface{}) {
	GetLogger().Debug(format, args...)
}
