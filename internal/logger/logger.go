// Package logger holds the process-wide zerolog logger. Human output goes
// through a console writer; the server can switch to JSON lines.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Options configures Init.
type Options struct {
	Level   string // debug, info, warn, error; empty means info
	JSON    bool
	NoColor bool
	Out     io.Writer // nil splits output: debug..warn to stdout, error and above to stderr
}

var (
	mu     sync.RWMutex
	logger = zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.InfoLevel)
)

// Init replaces the process logger.
func Init(opts Options) zerolog.Logger {
	var w io.Writer
	switch {
	case opts.Out != nil && opts.JSON:
		w = opts.Out
	case opts.Out != nil:
		w = console(opts.Out, opts.NoColor)
	case opts.JSON:
		w = zerolog.MultiLevelWriter(
			SpecificLevelWriter{Writer: os.Stdout, Levels: lowLevels},
			SpecificLevelWriter{Writer: os.Stderr, Levels: highLevels},
		)
	default:
		w = zerolog.MultiLevelWriter(
			SpecificLevelWriter{Writer: console(os.Stdout, opts.NoColor), Levels: lowLevels},
			SpecificLevelWriter{Writer: console(os.Stderr, opts.NoColor), Levels: highLevels},
		)
	}
	l := zerolog.New(w).With().Timestamp().Logger().Level(ParseLevel(opts.Level))

	mu.Lock()
	logger = l
	mu.Unlock()
	return l
}

// L returns the current process logger.
func L() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// With returns a child of the process logger tagged with component.
func With(component string) zerolog.Logger {
	return L().With().Str("component", component).Logger()
}

// ParseLevel maps a level name onto zerolog, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func Info(msg string) {
	l := L()
	l.Info().Msg(msg)
}

func Infof(format string, args ...interface{}) {
	l := L()
	l.Info().Msgf(format, args...)
}

func Warn(msg string) {
	l := L()
	l.Warn().Msg(msg)
}

func Warnf(format string, args ...interface{}) {
	l := L()
	l.Warn().Msgf(format, args...)
}

func Error(msg string) {
	l := L()
	l.Error().Msg(msg)
}

func Errorf(format string, args ...interface{}) {
	l := L()
	l.Error().Msgf(format, args...)
}

func Debug(msg string) {
	l := L()
	l.Debug().Msg(msg)
}

func Debugf(format string, args ...interface{}) {
	l := L()
	l.Debug().Msgf(format, args...)
}

var (
	lowLevels  = []zerolog.Level{zerolog.DebugLevel, zerolog.InfoLevel, zerolog.WarnLevel}
	highLevels = []zerolog.Level{zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel}
)

func console(out io.Writer, noColor bool) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: noColor}
}

// SpecificLevelWriter forwards only events whose level is listed.
type SpecificLevelWriter struct {
	io.Writer
	Levels []zerolog.Level
}

func (w SpecificLevelWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	for _, l := range w.Levels {
		if l == level {
			return w.Write(p)
		}
	}
	return len(p), nil
}
