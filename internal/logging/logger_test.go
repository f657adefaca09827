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
	"os"
	"path/filepath"
	"testing"

	"github.com/hootrhino/gotmcm/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for name, want := range tests {
		assert.Equal(t, want, ParseLevel(name), name)
	}
}

func TestInitLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tmcmctl.log")
	cfg := config.LoggingConfig{
		Level:  "debug",
		Format: "json",
		File:   config.LumberjackConfig{Filename: path, MaxSizeMB: 1},
	}
	logger, err := InitLogger(cfg)
	require.NoError(t, err)

	logger.Info("port opened", zap.String("address", "/dev/ttyACM0"))
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"port opened"`)
	assert.Contains(t, string(data), `"address":"/dev/ttyACM0"`)
}

func TestBridgeLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	bridge := NewBridge(zap.New(core))

	_, err := bridge.Write([]byte("[DEBUG] tx SAP addr=0 type=4 motor=0 value=1000"))
	require.NoError(t, err)
	_, err = bridge.Write([]byte("[WARNING] reply status 4"))
	require.NoError(t, err)
	_, err = bridge.Write([]byte("[ERROR] poll actual_position: timeout"))
	require.NoError(t, err)
	_, err = bridge.Write([]byte("no level tag"))
	require.NoError(t, err)
	require.NoError(t, bridge.Close())

	entries := logs.AllUntimed()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "tx SAP addr=0 type=4 motor=0 value=1000", entries[0].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, "poll actual_position: timeout", entries[2].Message)
	assert.Equal(t, zapcore.InfoLevel, entries[3].Level)
}
