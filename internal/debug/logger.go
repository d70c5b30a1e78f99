// Package debug holds the process-wide slog logger used by the migration
// engine and the CLI.
package debug

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	logger  *slog.Logger
	enabled bool
	mu      sync.RWMutex
)

func init() {
	Init(false)
}

// Options select the handler built by Configure.
type Options struct {
	// Debug lowers the level to debug; otherwise only warnings and errors are written.
	Debug bool
	// JSON switches from the text to the JSON handler.
	JSON   bool
	Writer io.Writer
}

// Init installs a text handler on stderr. With enable set, DDL statements and
// grain decisions are logged at debug level.
func Init(enable bool) {
	Configure(Options{Debug: enable})
}

// Configure installs a handler built from opts.
func Configure(opts Options) {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	level := slog.LevelWarn
	if opts.Debug {
		level = slog.LevelDebug
	}
	ho := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if opts.JSON {
		h = slog.NewJSONHandler(w, ho)
	} else {
		h = slog.NewTextHandler(w, ho)
	}

	mu.Lock()
	defer mu.Unlock()
	enabled = opts.Debug
	logger = slog.New(h)
}

// Discard silences the logger; tests use it.
func Discard() {
	mu.Lock()
	defer mu.Unlock()
	enabled = false
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Enabled reports whether debug logging is on.
func Enabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func Debug(msg string, args ...any) { current().Debug(msg, args...) }

func Info(msg string, args ...any) { current().Info(msg, args...) }

func Warn(msg string, args ...any) { current().Warn(msg, args...) }

func Error(msg string, args ...any) { current().Error(msg, args...) }

// With returns the logger tagged with args.
func With(args ...any) *slog.Logger {
	return current().With(args...)
}

// Logger returns the installed logger.
func Logger() *slog.Logger {
	return current()
}
