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

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// SerialConfig selects the line to the module. Address is a device path or
// tcp://host:port for a serial-to-Ethernet bridge.
type SerialConfig struct {
	Address  string        `mapstructure:"address"`
	BaudRate int           `mapstructure:"baudRate"`
	DataBits int           `mapstructure:"dataBits"`
	StopBits int           `mapstructure:"stopBits"`
	Parity   string        `mapstructure:"parity"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ModuleConfig addresses the controlled module.
type ModuleConfig struct {
	Address uint8 `mapstructure:"address"`
	Motor   uint8 `mapstructure:"motor"`
}

// LumberjackConfig configures the rolling log file. An empty filename
// disables file output.
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig sets log level and output.
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// MetricsConfig exposes Prometheus metrics over HTTP.
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Addr   string `mapstructure:"addr"`
	Path   string `mapstructure:"path"`
}

// MQTTConfig publishes poll samples. An empty broker disables publishing.
type MQTTConfig struct {
	Broker      string `mapstructure:"broker"`
	ClientID    string `mapstructure:"clientId"`
	TopicPrefix string `mapstructure:"topicPrefix"`
	QoS         byte   `mapstructure:"qos"`
	Retained    bool   `mapstructure:"retained"`
}

// PollerConfig lists the parameters the monitor reads.
type PollerConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	Rate       float64       `mapstructure:"rate"`
	Parameters []string      `mapstructure:"parameters"`
}

// CatalogConfig points to an optional CSV parameter table that replaces
// the built-in one.
type CatalogConfig struct {
	File string `mapstructure:"file"`
}

// Config is the top-level tmcmctl configuration.
type Config struct {
	Serial  SerialConfig  `mapstructure:"serial"`
	Module  ModuleConfig  `mapstructure:"module"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	MQTT    MQTTConfig    `mapstructure:"mqtt"`
	Poller  PollerConfig  `mapstructure:"poller"`
	Catalog CatalogConfig `mapstructure:"catalog"`
}

// Load reads configuration from a YAML/TOML/JSON file and TMCM_* environment
// variables. With an empty path it looks for tmcmctl.yaml in . and ./configs
// and falls back to the defaults when none exists.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.SetConfigName("tmcmctl")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.SetEnvPrefix("TMCM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("serial.address", "/dev/ttyACM0")
	v.SetDefault("serial.baudRate", 9600)
	v.SetDefault("serial.dataBits", 8)
	v.SetDefault("serial.stopBits", 1)
	v.SetDefault("serial.parity", "N")
	v.SetDefault("serial.timeout", "1s")

	v.SetDefault("module.address", 0)
	v.SetDefault("module.motor", 0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.filename", "")
	v.SetDefault("logging.file.maxSize", 10)
	v.SetDefault("logging.file.maxBackups", 3)
	v.SetDefault("logging.file.maxAge", 7)
	v.SetDefault("logging.file.compress", false)

	v.SetDefault("metrics.enable", false)
	v.SetDefault("metrics.addr", ":9105")
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.clientId", "tmcmctl")
	v.SetDefault("mqtt.topicPrefix", "tmcm")
	v.SetDefault("mqtt.qos", 0)
	v.SetDefault("mqtt.retained", false)

	v.SetDefault("poller.interval", "1s")
	v.SetDefault("poller.rate", 20)
	v.SetDefault("poller.parameters", []string{"actual_position", "actual_velocity", "actual_current"})

	v.SetDefault("catalog.file", "")
}
