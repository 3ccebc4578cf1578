package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Encodings accepted by FormatterConfig.
const (
	EncodingText = "text"
	EncodingJSON = "json"
)

// Handler types accepted by HandlerConfig.
const (
	HandlerConsole = "console"
	HandlerFile    = "file"
)

// Named loggers configured by DefaultConfig.
const (
	LoggerClient        = "obz_client"
	LoggerDataInspector = "data_inspector"
	LoggerXAI           = "xai"
)

// LevelCritical sits above slog.LevelError for messages that used to be
// logged as CRITICAL.
const LevelCritical = slog.LevelError + 4

// FormatterConfig describes how records are rendered.
type FormatterConfig struct {
	Encoding string `yaml:"encoding"`
	Time     bool   `yaml:"time"`
	Source   bool   `yaml:"source"`
	Name     bool   `yaml:"name"` // include the "logger" attribute
}

// HandlerConfig describes an output. File handlers rotate at MaxSizeMB and
// keep MaxBackups old files.
type HandlerConfig struct {
	Type       string `yaml:"type"`
	Formatter  string `yaml:"formatter"`
	Filename   string `yaml:"filename"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// LoggerConfig binds a level to a set of handlers.
type LoggerConfig struct {
	Level    string   `yaml:"level"`
	Handlers []string `yaml:"handlers"`
}

// Config is the complete logging setup passed to Setup.
type Config struct {
	Formatters map[string]FormatterConfig `yaml:"formatters"`
	Handlers   map[string]HandlerConfig   `yaml:"handlers"`
	Root       LoggerConfig               `yaml:"root"`
	Loggers    map[string]LoggerConfig    `yaml:"loggers"`

	// Console is where console handlers write. Defaults to os.Stderr.
	Console io.Writer `yaml:"-"`
}

// DefaultConfig mirrors the SDK's standard setup: a terse console handler,
// a detailed rotating file in logDir/obz.log (10 MB, 5 backups), and levels
// read from LOG_LEVEL, OBZ_CLIENT_LOG_LEVEL, DATA_INSPECTOR_LOG_LEVEL and
// XAI_LOG_LEVEL (default INFO).
func DefaultConfig(logDir string) Config {
	both := []string{HandlerConsole, HandlerFile}
	return Config{
		Formatters: map[string]FormatterConfig{
			"default": {Encoding: EncodingText, Time: true, Source: true, Name: true},
			"simple":  {Encoding: EncodingText},
		},
		Handlers: map[string]HandlerConfig{
			HandlerConsole: {Type: HandlerConsole, Formatter: "simple"},
			HandlerFile: {
				Type:       HandlerFile,
				Formatter:  "default",
				Filename:   filepath.Join(logDir, "obz.log"),
				MaxSizeMB:  10,
				MaxBackups: 5,
			},
		},
		Root: LoggerConfig{Level: envLevel("LOG_LEVEL"), Handlers: both},
		Loggers: map[string]LoggerConfig{
			LoggerClient:        {Level: envLevel("OBZ_CLIENT_LOG_LEVEL"), Handlers: both},
			LoggerDataInspector: {Level: envLevel("DATA_INSPECTOR_LOG_LEVEL"), Handlers: both},
			LoggerXAI:           {Level: envLevel("XAI_LOG_LEVEL"), Handlers: both},
		},
	}
}

func envLevel(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return "INFO"
}

// ParseLevel accepts slog level names plus WARNING and CRITICAL, case-insensitively.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "INFO":
		return slog.LevelInfo, nil
	case "DEBUG":
		return slog.LevelDebug, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	case "CRITICAL", "FATAL":
		return LevelCritical, nil
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return l, nil
}
