package grid

import (
	"context"
	"io"
	"log"
	"log/slog"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// hcLogger feeds raft and snapshot logging into slog. A quiet logger drops
// everything below warn.
type hcLogger struct {
	logger  *slog.Logger
	implied []interface{}
	floor   slog.Level
}

var _ hclog.Logger = (*hcLogger)(nil)

func newHCLogger(logger *slog.Logger, quiet bool) hclog.Logger {
	return &hcLogger{logger: logger, floor: quietFloor(quiet)}
}

func (s *hcLogger) isEnabled(level slog.Level) bool {
	return level >= s.floor && s.logger.Enabled(context.Background(), level)
}

func (s *hcLogger) Log(level hclog.Level, msg string, args ...interface{}) {
	switch level {
	case hclog.Trace:
		s.Trace(msg, args...)
	case hclog.Debug:
		s.Debug(msg, args...)
	case hclog.Warn:
		s.Warn(msg, args...)
	case hclog.Error:
		s.Error(msg, args...)
	default:
		s.Info(msg, args...)
	}
}

func (s *hcLogger) Trace(msg string, args ...interface{}) {
	if s.IsTrace() {
		s.logger.Debug(msg, args...)
	}
}

func (s *hcLogger) Debug(msg string, args ...interface{}) {
	if s.IsDebug() {
		s.logger.Debug(msg, args...)
	}
}

func (s *hcLogger) Info(msg string, args ...interface{}) {
	if s.IsInfo() {
		s.logger.Info(msg, args...)
	}
}

func (s *hcLogger) Warn(msg string, args ...interface{}) {
	if s.IsWarn() {
		s.logger.Warn(msg, args...)
	}
}

func (s *hcLogger) Error(msg string, args ...interface{}) {
	if s.IsError() {
		s.logger.Error(msg, args...)
	}
}

func (s *hcLogger) IsTrace() bool { return s.isEnabled(slog.LevelDebug - 4) }
func (s *hcLogger) IsDebug() bool { return s.isEnabled(slog.LevelDebug) }
func (s *hcLogger) IsInfo() bool  { return s.isEnabled(slog.LevelInfo) }
func (s *hcLogger) IsWarn() bool  { return s.isEnabled(slog.LevelWarn) }
func (s *hcLogger) IsError() bool { return s.isEnabled(slog.LevelError) }

func (s *hcLogger) ImpliedArgs() []interface{} {
	return s.implied
}

func (s *hcLogger) With(args ...interface{}) hclog.Logger {
	return &hcLogger{
		logger:  s.logger.With(args...),
		implied: append(append([]interface{}(nil), s.implied...), args...),
		floor:   s.floor,
	}
}

func (s *hcLogger) Name() string {
	return "slog"
}

func (s *hcLogger) Named(name string) hclog.Logger {
	return &hcLogger{
		logger:  s.logger.With("subsystem", name),
		implied: s.implied,
		floor:   s.floor,
	}
}

func (s *hcLogger) ResetNamed(name string) hclog.Logger {
	return &hcLogger{
		logger: s.logger.With("subsystem", name),
		floor:  s.floor,
	}
}

func (s *hcLogger) SetLevel(hclog.Level) {}

func (s *hcLogger) GetLevel() hclog.Level {
	switch {
	case s.IsTrace():
		return hclog.Trace
	case s.IsDebug():
		return hclog.Debug
	case s.IsInfo():
		return hclog.Info
	case s.IsWarn():
		return hclog.Warn
	case s.IsError():
		return hclog.Error
	default:
		return hclog.Off
	}
}

func (s *hcLogger) StandardLogger(*hclog.StandardLoggerOptions) *log.Logger {
	return newStdLogger(s.logger, s.floor)
}

func (s *hcLogger) StandardWriter(*hclog.StandardLoggerOptions) io.Writer {
	return newStdLogger(s.logger, s.floor).Writer()
}

// newStdLogger bridges libraries that only accept a *log.Logger. Lines carry
// their level as a "[WARN]" style tag; lines below floor are dropped.
func newStdLogger(logger *slog.Logger, floor slog.Level) *log.Logger {
	return log.New(&levelWriter{logger: logger, floor: floor}, "", 0)
}

var levelTags = []struct {
	tag   string
	level slog.Level
}{
	{"[TRACE]", slog.LevelDebug - 4},
	{"[DEBUG]", slog.LevelDebug},
	{"[INFO]", slog.LevelInfo},
	{"[WARN]", slog.LevelWarn},
	{"[ERR]", slog.LevelError},
	{"[ERROR]", slog.LevelError},
}

type levelWriter struct {
	logger *slog.Logger
	floor  slog.Level
}

func (w *levelWriter) Write(p []byte) (int, error) {
	line := strings.TrimSpace(string(p))
	level := slog.LevelInfo
	for _, t := range levelTags {
		if i := strings.Index(line, t.tag); i >= 0 {
			level = t.level
			line = strings.TrimSpace(line[i+len(t.tag):])
			break
		}
	}
	if level >= w.floor {
		w.logger.Log(context.Background(), level, line)
	}
	return len(p), nil
}
