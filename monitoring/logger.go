// Package monitoring carries the matcher's diagnostic logging, phase timing
// and runtime statistics.
package monitoring

import (
	"log"
	"os"
	"sync/atomic"
)

type logFunc func(format string, v ...interface{})

var logger atomic.Pointer[logFunc]

func init() { SetLogger(log.Printf) }

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger at any time, including while matching goroutines log.
func Logf(format string, v ...interface{}) {
	(*logger.Load())(format, v...)
}

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		f = func(string, ...interface{}) {}
	}
	lf := logFunc(f)
	logger.Store(&lf)
}

// CurrentLogger returns the function Logf writes through.
func CurrentLogger() func(format string, v ...interface{}) {
	return *logger.Load()
}

// InitLogging sends the standard logger to stdout with microsecond stamps.
func InitLogging() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
}

// Level gates which messages reach Logf.
type Level int32

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

var level atomic.Int32

// SetLevel changes the active level.
func SetLevel(l Level) { level.Store(int32(l)) }

// CurrentLevel returns the active level.
func CurrentLevel() Level { return Level(level.Load()) }

// LevelFromVerbosity maps a -v count: 0 errors, 1 warnings, 2 info, 3+ debug.
func LevelFromVerbosity(n int) Level {
	switch {
	case n <= 0:
		return LevelError
	case n == 1:
		return LevelWarn
	case n == 2:
		return LevelInfo
	default:
		return LevelDebug
	}
}

func logAt(l Level, prefix, format string, v ...interface{}) {
	if CurrentLevel() < l {
		return
	}
	Logf(prefix+format, v...)
}

func Errorf(format string, v ...interface{}) { logAt(LevelError, "[error] ", format, v...) }
func Warnf(format string, v ...interface{})  { logAt(LevelWarn, "[warn] ", format, v...) }
func Infof(format string, v ...interface{})  { logAt(LevelInfo, "[info] ", format, v...) }
func Debugf(format string, v ...interface{}) { logAt(LevelDebug, "[debug] ", format, v...) }
