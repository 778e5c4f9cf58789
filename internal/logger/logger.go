package logger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default logging configuration constants
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// EnvLogDir overrides the default log directory.
const EnvLogDir = "UPDATE_SOFTWARES_LOG_DIR"

type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// SlogConfig controls the terminal logger.
type SlogConfig struct {
	Level      Level
	Format     Format
	Color      bool
	TimeStamps bool
	Source     bool
}

// FileConfig controls the daily log file. Rotation parameters follow
// lumberjack semantics. An empty Dir disables file logging.
type FileConfig struct {
	Dir        string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Config is the unified logging configuration.
type Config struct {
	Slog SlogConfig
	File FileConfig
}

func DefaultConfig() Config {
	return Config{
		Slog: SlogConfig{Level: LevelInfo, Format: FormatText, TimeStamps: true},
		File: FileConfig{Dir: DefaultDir()},
	}
}

// DefaultDir returns the log directory used when none is configured.
func DefaultDir() string {
	if d := strings.TrimSpace(os.Getenv(EnvLogDir)); d != "" {
		return d
	}
	if runtime.GOOS == "windows" {
		home := os.Getenv("USERPROFILE")
		if home == "" {
			home, _ = os.UserHomeDir()
		}
		return filepath.Join(home, "update-softwares", "logs")
	}
	return "/opt/update-softwares/logs"
}

// ParseLevel maps a level name to slog; unknown names fall back to info.
func ParseLevel(l Level) slog.Level {
	switch Level(strings.ToLower(string(l))) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn, "warning":
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// FilePath is the daily log file for the given day.
func (c Config) FilePath(day time.Time) string {
	if c.File.Dir == "" {
		return ""
	}
	return filepath.Join(c.File.Dir, day.Format("2006-01-02")+".log")
}

// FileWriter returns a rotating writer for the day's log file, or nil when
// file logging is disabled.
func (c Config) FileWriter(day time.Time) io.WriteCloser {
	p := c.FilePath(day)
	if p == "" {
		return nil
	}
	return &lj.Logger{
		Filename:   p,
		MaxSize:    valOr(c.File.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.File.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.File.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.File.Compress,
	}
}

// TerminalHandler builds the handler writing to w at the configured level.
func (c Config) TerminalHandler(w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: ParseLevel(c.Slog.Level), AddSource: c.Slog.Source}
	if c.Slog.Format == FormatJSON {
		return slog.NewJSONHandler(w, opts)
	}
	if c.Slog.Color {
		return NewColorTextHandler(w, opts, c.Slog.TimeStamps)
	}
	if !c.Slog.TimeStamps {
		opts.ReplaceAttr = dropTime
	}
	return slog.NewTextHandler(w, opts)
}

// NewSlogger returns a logger writing to stderr and, when a directory is
// configured, to today's log file at debug level.
func (c Config) NewSlogger() *slog.Logger {
	l, _ := c.Open(os.Stderr, time.Now())
	return l
}

// Open is NewSlogger with an explicit terminal writer. The returned closer
// releases the log file.
func (c Config) Open(w io.Writer, day time.Time) (*slog.Logger, io.Closer) {
	term := c.TerminalHandler(w)
	fw := c.FileWriter(day)
	if fw == nil {
		return slog.New(term), nopCloser{}
	}
	if err := os.MkdirAll(c.File.Dir, 0o750); err != nil {
		l := slog.New(term)
		l.Warn("log directory unavailable", "dir", c.File.Dir, "error", err)
		return l, nopCloser{}
	}
	file := slog.NewTextHandler(fw, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(fanout{term, file}), fw
}

// fanout sends each record to every handler that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func dropTime(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.TimeKey {
		return slog.Attr{}
	}
	return a
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
