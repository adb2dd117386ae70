package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

type Log struct {
	*slog.LevelVar
	*slog.Logger
}

// Logger 全局日志实例,默认只输出 error 级别
var Logger *Log

func init() {
	Logger = New(os.Stderr)
	Logger.SetLogLevel("error")
}

// New 创建写入 w 的文本日志,time 字段统一改名为 timestamp
func New(w io.Writer) *Log {
	level := &slog.LevelVar{}
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{Key: "timestamp", Value: slog.TimeValue(a.Value.Time())}
			}
			return a
		},
	}
	return &Log{
		LevelVar: level,
		Logger:   slog.New(slog.NewTextHandler(w, opts)),
	}
}

// SetLogLevel 设置日志级别,无法识别的级别保持不变并返回 false
func (l *Log) SetLogLevel(level string) bool {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		l.Set(slog.LevelDebug)
	case "info":
		l.Set(slog.LevelInfo)
	case "warn", "warning":
		l.Set(slog.LevelWarn)
	case "error":
		l.Set(slog.LevelError)
	default:
		return false
	}
	return true
}

func (l *Log) Fatal(msg string, args ...any) {
	l.Error(msg, args...)
	os.Exit(1)
}
