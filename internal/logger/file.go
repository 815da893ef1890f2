package logger

import (
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultLogPath   = "./logs/newsletter.log"
	defaultMaxSizeMB = 100
)

// NewFileWriter returns a gzip-rotating writer for cfg.FilePath, by default
// ./logs/newsletter.log rotated at 100 MB. Backups use local time in their
// names so they line up with the operator's clock.
func NewFileWriter(cfg LoggingConfig) *lumberjack.Logger {
	w := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxFiles,
		LocalTime:  true,
		Compress:   true,
	}
	if w.Filename == "" {
		w.Filename = defaultLogPath
	}
	if w.MaxSize <= 0 {
		w.MaxSize = defaultMaxSizeMB
	}
	return w
}
