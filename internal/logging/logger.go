package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/opsxjacky/spread-forecast/internal/apperr"
	"github.com/opsxjacky/spread-forecast/internal/config"
)

// New 按配置创建 slog 日志器并设为默认日志器.
// 返回的 closer 用于关闭日志文件, 输出到标准流时为空操作.
func New(cfg config.LoggingConfig) (*slog.Logger, func() error, error) {
	output, closer, err := openOutput(cfg)
	if err != nil {
		return nil, nil, err
	}

	logger := NewWithWriter(output, cfg)
	slog.SetDefault(logger)
	return logger, closer, nil
}

// NewWithWriter 创建写入指定 writer 的日志器, 不修改默认日志器
func NewWithWriter(w io.Writer, cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

func openOutput(cfg config.LoggingConfig) (io.Writer, func() error, error) {
	noop := func() error { return nil }

	switch strings.ToLower(cfg.Output) {
	case "stdout":
		return os.Stdout, noop, nil
	case "file":
		if cfg.FilePath == "" {
			return nil, nil, apperr.NewConfigError("log file path is required", nil)
		}
		if dir := filepath.Dir(cfg.FilePath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, nil, apperr.NewConfigError("failed to create log directory", err).
					WithContext("path", dir)
			}
		}
		f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, apperr.NewConfigError("failed to open log file", err).
				WithContext("path", cfg.FilePath)
		}
		return f, f.Close, nil
	default:
		return os.Stderr, noop, nil
	}
}

// ParseLevel 解析日志级别, 未知值按 info 处理
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
