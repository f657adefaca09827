// Copyright (C) 2024  wwhai
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License along
// with this program; if not, see <https://www.gnu.org/licenses/>.

package logging

import (
	"io"
	"os"
	"strings"
	"time"

	tmcm "github.com/hootrhino/gotmcm"
	"github.com/hootrhino/gotmcm/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zapio"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ParseLevel maps a config level name to a zap level. Unknown names are info.
func ParseLevel(name string) zapcore.Level {
	switch strings.ToLower(name) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// InitLogger builds the console logger: stdout plus an optional rolling file.
func InitLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	return newLogger(cfg, zapcore.AddSync(os.Stdout))
}

func newLogger(cfg config.LoggingConfig, out zapcore.WriteSyncer) (*zap.Logger, error) {
	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stack",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     func(t time.Time, enc zapcore.PrimitiveArrayEncoder) { enc.AppendString(t.Format(time.RFC3339Nano)) },
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if strings.ToLower(cfg.Format) == "json" {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	ws := out
	if cfg.File.Filename != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File.Filename,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		}
		ws = zapcore.NewMultiWriteSyncer(out, zapcore.AddSync(lj))
	}
	core := zapcore.NewCore(encoder, ws, ParseLevel(cfg.Level))

	return zap.New(core, zap.AddCaller()), nil
}

// Bridge is an io.Writer for the library's SetLogger hooks. Each write is one
// "[LEVEL] message" line and is forwarded to the zap logger at that level.
type Bridge struct {
	writers map[tmcm.LogLevel]*zapio.Writer
}

// NewBridge wraps logger. The returned Bridge must be closed to flush.
func NewBridge(logger *zap.Logger) *Bridge {
	logger = logger.WithOptions(zap.AddCallerSkip(3))
	return &Bridge{writers: map[tmcm.LogLevel]*zapio.Writer{
		tmcm.LevelDebug:   {Log: logger, Level: zapcore.DebugLevel},
		tmcm.LevelInfo:    {Log: logger, Level: zapcore.InfoLevel},
		tmcm.LevelWarning: {Log: logger, Level: zapcore.WarnLevel},
		tmcm.LevelError:   {Log: logger, Level: zapcore.ErrorLevel},
	}}
}

func (b *Bridge) Write(p []byte) (int, error) {
	level, body := tmcm.SplitLevel(string(p))
	w, ok := b.writers[level]
	if !ok {
		return len(p), nil
	}
	if _, err := io.WriteString(w, body+"\n"); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close flushes any buffered partial line.
func (b *Bridge) Close() error {
	for _, w := range b.writers {
		if err := w.Close(); err != nil {
			return err
		}
	}
	return nil
}
