package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
)

const (
	defaultLogDir  = ".sidekick/logs"
	defaultLogFile = "sidekick.log"
)

var (
	globalLogger *log.Logger
	logFile      *os.File
	once         sync.Once
)

// Initialize sets up the global logger writing under projectDir. The TUI owns
// stdout/stderr, so log output goes to a file.
func Initialize(projectDir string) error {
	var initErr error
	once.Do(func() {
		logDir := filepath.Join(projectDir, defaultLogDir)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			initErr = fmt.Errorf("failed to create log directory: %w", err)
			return
		}

		path := filepath.Join(logDir, defaultLogFile)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			initErr = fmt.Errorf("failed to open log file: %w", err)
			return
		}
		logFile = f

		globalLogger = log.NewWithOptions(f, log.Options{
			ReportTimestamp: true,
			TimeFormat:      "15:04:05.000",
			ReportCaller:    true,
			CallerOffset:    1,
		})
		globalLogger.SetLevel(log.InfoLevel)
	})
	return initErr
}

func logger() *log.Logger {
	if globalLogger == nil {
		Initialize(".")
	}
	if globalLogger == nil {
		globalLogger = log.New(io.Discard)
	}
	return globalLogger
}

// SetVerbose lowers the level to debug.
func SetVerbose(verbose bool) {
	if verbose {
		logger().SetLevel(log.DebugLevel)
	} else {
		logger().SetLevel(log.InfoLevel)
	}
}

// Debug logs a debug message using the global logger.
func Debug(format string, v ...interface{}) {
	logger().Debugf(format, v...)
}

// Info logs an info message using the global logger.
func Info(format string, v ...interface{}) {
	logger().Infof(format, v...)
}

// Warn logs a warning message using the global logger.
func Warn(format string, v ...interface{}) {
	logger().Warnf(format, v...)
}

// Error logs an error message using the global logger.
func Error(format string, v ...interface{}) {
	logger().Errorf(format, v...)
}

// Close closes the underlying log file.
func Close() error {
	if logFile != nil {
		return logFile.Close()
	}
	return nil
}
