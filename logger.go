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

package tmcm

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel type defines the severity of a log message.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarning
	LevelError
	LevelNone // Disables logging
)

// LevelToString maps LogLevel to its string representation.
var LevelToString = map[LogLevel]string{
	LevelDebug:   "DEBUG",
	LevelInfo:    "INFO",
	LevelWarning: "WARNING",
	LevelError:   "ERROR",
	LevelNone:    "NONE",
}

// StringToLevel maps string representation of LogLevel to its value.
var StringToLevel = map[string]LogLevel{
	"DEBUG":   LevelDebug,
	"INFO":    LevelInfo,
	"WARNING": LevelWarning,
	"WARN":    LevelWarning,
	"ERROR":   LevelError,
	"NONE":    LevelNone,
}

// SimpleLogger is a leveled io.Writer. Library components write lines
// prefixed with "[LEVEL]"; the logger stamps them and drops the ones below
// its level.
//
// It is the standalone logger for programs that use this package without a
// logging library of their own:
//
//	logger := tmcm.NewSimpleLogger(os.Stderr, tmcm.LevelInfo, "tmcm")
//	client.SetLogger(logger)
//
// Applications that already have a structured logger can pass any io.Writer
// to SetLogger instead and use SplitLevel to recover the level.
type SimpleLogger struct {
	mu         sync.Mutex
	level      LogLevel
	output     io.Writer
	timeFormat string
	prefix     string
}

// NewSimpleLogger creates a new SimpleLogger instance.
// If output is nil, it defaults to os.Stdout.
func NewSimpleLogger(output io.Writer, level LogLevel, prefix string) *SimpleLogger {
	if output == nil {
		output = os.Stdout
	}
	return &SimpleLogger{
		level:      level,
		output:     output,
		timeFormat: time.RFC3339,
		prefix:     prefix,
	}
}

// SetLevel sets the logging level of the SimpleLogger.
func (l *SimpleLogger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// GetLevel returns the current logging level of the SimpleLogger.
func (l *SimpleLogger) GetLevel() LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// SetLevelFromString sets the logging level from a string such as "debug".
func (l *SimpleLogger) SetLevelFromString(levelStr string) error {
	if level, ok := StringToLevel[strings.ToUpper(levelStr)]; ok {
		l.SetLevel(level)
		return nil
	}
	return fmt.Errorf("invalid log level: %s", levelStr)
}

// Write implements io.Writer. Every call is treated as one message.
func (l *SimpleLogger) Write(p []byte) (n int, err error) {
	message := string(p)
	level, body := SplitLevel(message)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.level == LevelNone || level < l.level {
		return len(p), nil
	}
	line := fmt.Sprintf("%s [%s] <%s> %s\n", time.Now().Format(l.timeFormat), LevelToString[level], l.prefix, body)
	if _, err := io.WriteString(l.output, line); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close closes the underlying output unless it is os.Stdout or os.Stderr.
func (l *SimpleLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.output == os.Stdout || l.output == os.Stderr {
		return nil
	}
	if closer, ok := l.output.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// SplitLevel strips a "[LEVEL]" or "LEVEL:" prefix and returns the level it
// named. Messages without a known prefix are LevelInfo.
func SplitLevel(message string) (LogLevel, string) {
	trimmed := strings.TrimSpace(message)
	upper := strings.ToUpper(trimmed)
	for name, level := range StringToLevel {
		if level == LevelNone {
			continue
		}
		for _, tag := range []string{"[" + name + "]", name + ":"} {
			if strings.HasPrefix(upper, tag) {
				return level, strings.TrimSpace(trimmed[len(tag):])
			}
		}
	}
	return LevelInfo, trimmed
}

// logf writes a leveled line to w. A nil writer discards the message.
func logf(w io.Writer, level LogLevel, format string, args ...any) {
	if w == nil {
		return
	}
	fmt.Fprintf(w, "[%s] %s", LevelToString[level], fmt.Sprintf(format, args...))
}
