package log

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelError Level = "ERROR"
)

var (
	mu     sync.RWMutex
	logger = newLogger(os.Stderr, false, zerolog.InfoLevel)
)

func newLogger(w io.Writer, jsonOutput bool, lvl zerolog.Level) zerolog.Logger {
	if !jsonOutput {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339Nano}
	}
	return zerolog.New(w).With().Timestamp().Logger().Level(lvl)
}

// ParseLevel maps a config string to a Level. Unknown values yield INFO.
func ParseLevel(s string) Level {
	switch Level(strings.ToUpper(strings.TrimSpace(s))) {
	case LevelDebug:
		return LevelDebug
	case LevelError:
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) zerologLevel() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetLevel changes the level of the current logger, keeping its output.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	logger = logger.Level(l.zerologLevel())
}

// Setup replaces the process logger. format "json" writes one JSON object per
// line; anything else uses the human-readable console format.
func Setup(w io.Writer, format string, l Level) {
	if w == nil {
		w = os.Stderr
	}
	mu.Lock()
	defer mu.Unlock()
	logger = newLogger(w, strings.EqualFold(format, "json"), l.zerologLevel())
}

// Logger returns the current zerolog logger for libraries that take their own
// logger, such as the cron runner.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func Debug(msg string, kv ...any) {
	l := Logger()
	withKVs(l.Debug(), kv).Msg(msg)
}

func Info(msg string, kv ...any) {
	l := Logger()
	withKVs(l.Info(), kv).Msg(msg)
}

func Error(msg string, err error, kv ...any) {
	l := Logger()
	withKVs(l.Error().Err(err), kv).Msg(msg)
}

// withKVs expects kv as pairs: key, value, key, value, ...
// Non-string keys are skipped; a trailing odd value is ignored.
func withKVs(e *zerolog.Event, kv []any) *zerolog.Event {
	if e == nil {
		return e
	}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, kv[i+1])
	}
	return e
}
