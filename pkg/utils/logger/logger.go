package logger

import (
	"io"
	"os"
	"path/filepath"
	"reelcache/pkg/models"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	zl           *zap.Logger
	file         *os.File
	debugEnabled bool
}

func NewLogger(cfg *models.LogConfig) (*Logger, error) {
	var writers []io.Writer

	if cfg.ToStdout {
		writers = append(writers, os.Stdout)
	}

	var file *os.File
	if cfg.ToFile {
		if cfg.FilePath == "" {
			cfg.FilePath = "reelcache.log"
		}
		dir := filepath.Dir(cfg.FilePath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}

		f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, err
		}
		file = f
		writers = append(writers, f)
	}

	level := zapcore.InfoLevel
	if cfg.DebugEnabled {
		level = zapcore.DebugLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(io.MultiWriter(writers...)),
		level,
	)

	zl := zap.New(core)
	if cfg.Prefix != "" {
		zl = zl.Named(cfg.Prefix)
	}

	return &Logger{
		zl:           zl,
		file:         file,
		debugEnabled: cfg.DebugEnabled,
	}, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zap.NewNop()}
}

func (l *Logger) Info(msg string) {
	l.zl.Info(msg)
}

func (l *Logger) Warn(msg string) {
	l.zl.Warn(msg)
}

func (l *Logger) Debug(msg string) {
	if l.debugEnabled {
		l.zl.Debug(msg)
	}
}

func (l *Logger) Error(msg string) {
	l.zl.Error(msg)
}

func (l *Logger) Close() error {
	_ = l.zl.Sync()
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
