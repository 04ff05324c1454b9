package logx

import (
	"io"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"
)

type Level = zerolog.Level

const (
	LevelDebug = zerolog.DebugLevel
	LevelInfo  = zerolog.InfoLevel
	LevelWarn  = zerolog.WarnLevel
	LevelError = zerolog.ErrorLevel
)

// Logger writes structured events. Loggers handed out by a Service follow
// its Apply calls; With derives a logger carrying extra fields. The zero
// value discards everything.
type Logger struct {
	sink   *atomic.Pointer[zerolog.Logger]
	fields []Field
}

var nop = func() *atomic.Pointer[zerolog.Logger] {
	p := new(atomic.Pointer[zerolog.Logger])
	zl := zerolog.Nop()
	p.Store(&zl)
	return p
}()

// Nop returns a logger that never writes anything.
func Nop() Logger { return Logger{sink: nop} }

// NewWriter returns a JSON logger on w.
func NewWriter(w io.Writer, level string) Logger {
	p := new(atomic.Pointer[zerolog.Logger])
	zl := zerolog.New(w).Level(parseLevel(level)).With().Timestamp().Logger()
	p.Store(&zl)
	return Logger{sink: p}
}

func (l Logger) IsZero() bool { return l.sink == nil && len(l.fields) == 0 }

func (l Logger) zl() *zerolog.Logger {
	if l.sink == nil {
		return nil
	}
	return l.sink.Load()
}

// Enabled reports whether events at level would be written.
func (l Logger) Enabled(level Level) bool {
	zl := l.zl()
	return zl != nil && zl.GetLevel() <= level
}

func (l Logger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	out := l
	out.fields = append(append(make([]Field, 0, len(l.fields)+len(fields)), l.fields...), fields...)
	return out
}

func (l Logger) Debug(msg string, fields ...Field) { l.write(zerolog.DebugLevel, msg, fields) }
func (l Logger) Info(msg string, fields ...Field)  { l.write(zerolog.InfoLevel, msg, fields) }
func (l Logger) Warn(msg string, fields ...Field)  { l.write(zerolog.WarnLevel, msg, fields) }
func (l Logger) Error(msg string, fields ...Field) { l.write(zerolog.ErrorLevel, msg, fields) }

func (l Logger) write(level zerolog.Level, msg string, fields []Field) {
	zl := l.zl()
	if zl == nil {
		return
	}
	e := zl.WithLevel(level)
	if e == nil {
		return
	}
	if _, file, line, ok := runtime.Caller(2); ok {
		e.Str(zerolog.CallerFieldName, filepath.Base(file)+":"+strconv.Itoa(line))
	}
	for _, set := range [][]Field{l.fields, fields} {
		for _, f := range set {
			if f != nil {
				f(e)
			}
		}
	}
	e.Msg(msg)
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	}
	return zerolog.InfoLevel
}

// ValidLevel reports whether s names a level; empty means the default.
func ValidLevel(s string) bool {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "TRACE", "DEBUG", "INFO", "WARN", "WARNING", "ERROR":
		return true
	}
	return false
}
