package log

import (
	"fmt"
	stdlog "log"
	"os"
	"strings"
)

// Config describes a logger declaratively.
type Config struct {
	// Level is one of debug, info, warn, error, fatal.
	Level string `json:"level" yaml:"level"`
	// Format is "text" or "json".
	Format string `json:"format" yaml:"format"`
	// Output is "stderr", "stdout", "none" or a file path.
	Output string `json:"output" yaml:"output"`
	// Color is "auto", "always" or "never"; it applies to the text format.
	Color string `json:"color" yaml:"color"`
	// Redact lists field keys whose values are replaced.
	Redact []string `json:"redact,omitempty" yaml:"redact,omitempty"`
	// SampleInitial and SampleThereafter enable per-message sampling when
	// SampleThereafter is positive.
	SampleInitial    int `json:"sampleInitial,omitempty" yaml:"sampleInitial,omitempty"`
	SampleThereafter int `json:"sampleThereafter,omitempty" yaml:"sampleThereafter,omitempty"`
}

// ParseLevel maps a level name to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "", "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	default:
		return InfoLevel, fmt.Errorf("log: unknown level %q", s)
	}
}

// ApplyConfig builds a logger from cfg.
func ApplyConfig(cfg Config) (Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var (
		out      Output
		terminal bool
	)
	switch strings.ToLower(cfg.Output) {
	case "", "stderr":
		c := NewConsoleOutput()
		out, terminal = c, c.IsTerminal()
	case "stdout":
		c := NewWriterOutput(os.Stdout)
		out, terminal = c, c.IsTerminal()
	case "none":
		out = NullOutput{}
	default:
		fo, err := NewFileOutput(cfg.Output)
		if err != nil {
			return nil, err
		}
		out = fo
	}

	var formatter Formatter
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		tf := &TextFormatter{}
		switch strings.ToLower(cfg.Color) {
		case "always":
		case "never":
			tf.DisableColors = true
		case "", "auto":
			tf.DisableColors = !terminal
		default:
			return nil, fmt.Errorf("log: unknown color mode %q", cfg.Color)
		}
		formatter = tf
	case "json":
		formatter = &JSONFormatter{}
	default:
		return nil, fmt.Errorf("log: unknown format %q", cfg.Format)
	}

	opts := []LoggerOption{
		WithLevel(level),
		WithFormatter(formatter),
		WithOutput(out),
	}
	if len(cfg.Redact) > 0 {
		opts = append(opts, WithRedactions(cfg.Redact...))
	}
	if cfg.SampleThereafter > 0 {
		opts = append(opts, WithSampling(cfg.SampleInitial, cfg.SampleThereafter))
	}
	return NewLogger(opts...), nil
}

// stdWriter adapts a Logger to io.Writer for the standard library logger.
type stdWriter struct {
	l     Logger
	level Level
}

func (w stdWriter) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n")
	switch w.level {
	case DebugLevel:
		w.l.Debug(msg)
	case WarnLevel:
		w.l.Warn(msg)
	case ErrorLevel, FatalLevel:
		w.l.Error(msg)
	default:
		w.l.Info(msg)
	}
	return len(p), nil
}

// ToStdLogger returns a *log.Logger that writes through l at level.
func ToStdLogger(l Logger, level Level) *stdlog.Logger {
	return stdlog.New(stdWriter{l: l, level: level}, "", 0)
}

// RedirectStdLog routes the standard library's default logger through l at
// info level and returns a function restoring the previous destination.
func RedirectStdLog(l Logger) func() {
	prevOut := stdlog.Writer()
	prevFlags := stdlog.Flags()
	prevPrefix := stdlog.Prefix()
	stdlog.SetOutput(stdWriter{l: l, level: InfoLevel})
	stdlog.SetFlags(0)
	stdlog.SetPrefix("")
	return func() {
		stdlog.SetOutput(prevOut)
		stdlog.SetFlags(prevFlags)
		stdlog.SetPrefix(prevPrefix)
	}
}
