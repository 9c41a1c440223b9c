package common

import (
	"fmt"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/rs/zerolog"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Logger names used across the module
const (
	LoggerClient  = "vst/client"
	LoggerChannel = "vst/channel"
	LoggerPool    = "vst/pool"
	LoggerCache   = "vst/cache"
	LoggerServer  = "vst/server"
)

var allLoggers = []string{LoggerClient, LoggerChannel, LoggerPool, LoggerCache, LoggerServer}

// --------------------------------------------------------------------------
// Custom Logger (implements dragonboats logger.ILogger)
// --------------------------------------------------------------------------

// vstLogger implements the ILogger interface on top of a zerolog logger
type vstLogger struct {
	level logger.LogLevel
	zl    zerolog.Logger
}

func (l *vstLogger) SetLevel(level logger.LogLevel) {
	l.level = level
}

func (l *vstLogger) Debugf(format string, args ...interface{}) {
	if l.level >= logger.DEBUG {
		l.zl.Debug().Msgf(format, args...)
	}
}

func (l *vstLogger) Infof(format string, args ...interface{}) {
	if l.level >= logger.INFO {
		l.zl.Info().Msgf(format, args...)
	}
}

func (l *vstLogger) Warningf(format string, args ...interface{}) {
	if l.level >= logger.WARNING {
		l.zl.Warn().Msgf(format, args...)
	}
}

func (l *vstLogger) Errorf(format string, args ...interface{}) {
	if l.level >= logger.ERROR {
		l.zl.Error().Msgf(format, args...)
	}
}

func (l *vstLogger) Panicf(format string, args ...interface{}) {
	if l.level >= logger.CRITICAL {
		l.zl.Error().Msgf(format, args...)
		panic(fmt.Sprintf(format, args...))
	}
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

var (
	sinkMu     sync.Mutex
	sinkWriter io.Writer = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.DateTime}
)

// CreateLogger implements the dragonboat logger.Factory
func CreateLogger(pkgName string) logger.ILogger {
	sinkMu.Lock()
	w := sinkWriter
	sinkMu.Unlock()

	return &vstLogger{
		level: logger.INFO,
		zl:    zerolog.New(w).With().Timestamp().Str("pkg", pkgName).Logger(),
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// ParseLogLevel converts a string level to logger.LogLevel
func ParseLogLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG, nil
	case "info":
		return logger.INFO, nil
	case "warning", "warn":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
}

// --------------------------------------------------------------------------
// Logger initialization
// --------------------------------------------------------------------------

// InitLoggers installs the zerolog backed factory and sets the level of all
// loggers of this module. format is either "console" or "json".
func InitLoggers(level, format string, out io.Writer) error {
	lvl, err := ParseLogLevel(level)
	if err != nil {
		return err
	}
	if out == nil {
		out = os.Stdout
	}

	sinkMu.Lock()
	switch strings.ToLower(format) {
	case "", "console":
		sinkWriter = zerolog.ConsoleWriter{Out: out, TimeFormat: time.DateTime}
	case "json":
		sinkWriter = out
	default:
		sinkMu.Unlock()
		return fmt.Errorf("invalid log format: %s. must be one of console, json", format)
	}
	sinkMu.Unlock()

	// Set as the global logger factory
	logger.SetLoggerFactory(CreateLogger)

	for _, name := range allLoggers {
		logger.GetLogger(name).SetLevel(lvl)
	}
	return nil
}
