package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// DefaultFile is used when file logging is on without a path.
const DefaultFile = "./reminderd.log"

type Config struct {
	Level   string
	Console bool
	File    FileConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// Service owns the process log sinks and swaps them when the logging config
// changes. The log file stays open across Apply calls that keep its path.
type Service struct {
	mu       sync.Mutex
	file     *os.File
	filePath string

	sink atomic.Pointer[zerolog.Logger]
}

// New builds the service, applies cfg and returns its root logger.
func New(cfg Config) (*Service, Logger) {
	zerolog.ErrorFieldName = "err"
	zerolog.TimeFieldFormat = consoleTimeFormat
	s := &Service{}
	s.Apply(cfg)
	return s, s.Logger()
}

func (s *Service) Logger() Logger { return Logger{sink: &s.sink} }

// Apply rebuilds the sinks for cfg. Console output is used when nothing else
// is enabled or the log file cannot be opened.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []io.Writer
	if cfg.Console {
		out = append(out, console(os.Stdout))
	}

	path := strings.TrimSpace(cfg.File.Path)
	if path == "" {
		path = DefaultFile
	}
	if !cfg.File.Enabled || path != s.filePath {
		s.closeFile()
	}
	if cfg.File.Enabled {
		if s.file == nil {
			f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				fmt.Fprintf(os.Stderr, "logx: open %s: %v\n", path, err)
			} else {
				s.file, s.filePath = f, path
			}
		}
		if s.file != nil {
			out = append(out, zerolog.SyncWriter(s.file))
		}
	}
	if len(out) == 0 {
		out = append(out, console(os.Stdout))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(out...)).Level(parseLevel(cfg.Level)).With().Timestamp().Logger()
	s.sink.Store(&zl)
}

// Close closes the log file. Loggers keep writing to any console sink.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeFile()
}

func (s *Service) closeFile() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file, s.filePath = nil, ""
	return err
}

func console(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{
		Out:          w,
		TimeFormat:   consoleTimeFormat,
		FormatCaller: func(i any) string { s, _ := i.(string); return s },
	}
}
