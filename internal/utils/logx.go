package utils

import (
	"log"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process logger. Events go to stdout; when
// logPath is set an identical JSON stream is appended there as well.
func NewLogger(logPath string, debug bool) *zap.Logger {
	level := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		if debug {
			return true
		}
		return l >= zapcore.InfoLevel
	})

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(os.Stdout), level),
	}

	if logPath != "" {
		if f := openLogFile(logPath); f != nil {
			cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), level))
		}
	}

	return zap.New(zapcore.NewTee(cores...))
}

func openLogFile(path string) *os.File {
	if err := os.MkdirAll(filepath.Dir(path), 0o744); err != nil {
		log.Printf("failed to create log dir for %s: %v", path, err)
		return nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Printf("failed to open log file %s: %v", path, err)
		return nil
	}
	return f
}
