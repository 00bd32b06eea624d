package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sunbk201/tilespoof/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// SetLogConf installs the process-wide slog logger. Every line goes to
// stdout, the rotated log file and, when given, the broadcaster feeding the
// API log stream.
func SetLogConf(level string, broadcaster *Broadcaster) {
	writers := []io.Writer{
		os.Stdout,
		&lumberjack.Logger{
			Filename:   GetLogFilePath(),
			MaxSize:    5, // megabytes
			MaxBackups: 5,
			MaxAge:     7, // days
			LocalTime:  true,
			Compress:   true,
		},
	}
	if broadcaster != nil {
		writers = append(writers, broadcaster)
	}

	loc := LoadLocalLocation()
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				t := a.Value.Time().In(loc)
				return slog.String(slog.TimeKey, t.Format("2006-01-02 15:04:05"))
			}
			return a
		},
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(io.MultiWriter(writers...), opts)))
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func LogHeader(version string, cfg *config.Config) {
	slog.Info("tilespoof started", "version", version, "", cfg)
	slog.Info("system", GetOSInfo()...)
}

// LoadLocalLocation tries to detect and load the system local timezone from
// `/etc/localtime` or `/etc/TZ`.
func LoadLocalLocation() *time.Location {
	if _, err := os.Stat("/etc/localtime"); err == nil {
		if loc, _ := time.LoadLocation("Local"); loc != nil {
			return loc
		}
	}
	if data, err := os.ReadFile("/etc/TZ"); err == nil {
		tz := strings.TrimSpace(string(data))
		if strings.HasPrefix(tz, "UTC") {
			return time.UTC
		}
	}
	return time.UTC
}
