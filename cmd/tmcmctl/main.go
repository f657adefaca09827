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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tmcm "github.com/hootrhino/gotmcm"
	"github.com/hootrhino/gotmcm/internal/config"
	"github.com/hootrhino/gotmcm/internal/console"
	"github.com/hootrhino/gotmcm/internal/logging"
	"github.com/hootrhino/gotmcm/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	configPath string
	evalOnly   bool
	outputJSON bool
)

func init() {
	flag.StringVar(&configPath, "config", "", "Path to the configuration file.")
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

func main() {
	flag.Parse()
	if err := run(flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync()
	bridge := logging.NewBridge(logger)
	defer bridge.Close()

	catalog, err := loadCatalog(cfg.Catalog.File)
	if err != nil {
		return err
	}

	transport, err := openTransport(cfg.Serial)
	if err != nil {
		return err
	}
	logger.Info("line opened", zap.String("address", cfg.Serial.Address), zap.Int("baudRate", cfg.Serial.BaudRate))

	client := tmcm.NewClient(transport, tmcm.NewCodec(
		tmcm.WithModuleAddress(cfg.Module.Address),
		tmcm.WithMotor(cfg.Module.Motor),
	))
	defer client.Close()
	client.SetLogger(bridge)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	client.SetMetrics(tmcm.NewMetrics(reg))
	if cfg.Metrics.Enable {
		srv := serveMetrics(cfg.Metrics, reg, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	var publisher console.Publisher
	if cfg.MQTT.Broker != "" {
		p, err := telemetry.NewPublisher(telemetry.Config{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         cfg.MQTT.QoS,
			Retained:    cfg.MQTT.Retained,
		})
		if err != nil {
			return err
		}
		defer p.Close()
		publisher = p
		logger.Info("mqtt connected", zap.String("broker", cfg.MQTT.Broker))
	}

	sh := console.New(ctx, client, console.Options{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,
		Timeout:     cfg.Serial.Timeout + time.Second,
		Poller: tmcm.PollerConfig{
			Interval: cfg.Poller.Interval,
			Rate:     cfg.Poller.Rate,
		},
		Monitor:   cfg.Poller.Parameters,
		Catalog:   catalog,
		Publisher: publisher,
		Logger:    logger,
		PollerLog: bridge,
	})
	return sh.Run(args...)
}

func loadCatalog(path string) (*tmcm.Catalog, error) {
	if path == "" {
		return tmcm.DefaultCatalog(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	catalog, err := tmcm.NewCSVCatalogParser().LoadCatalog(f)
	if err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", path, err)
	}
	return catalog, nil
}

// openTransport opens a serial device, or a TCP connection to a serial
// bridge when the address is tcp://host:port.
func openTransport(cfg config.SerialConfig) (*tmcm.StreamTransport, error) {
	if host, ok := strings.CutPrefix(cfg.Address, "tcp://"); ok {
		conn, err := net.DialTimeout("tcp", host, 5*time.Second)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", host, err)
		}
		return tmcm.NewStreamTransport(conn, cfg.Timeout, cfg.Timeout), nil
	}
	return tmcm.NewSerialTransport(tmcm.SerialConfig{
		Address:  cfg.Address,
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		StopBits: cfg.StopBits,
		Parity:   cfg.Parity,
		Timeout:  cfg.Timeout,
	})
}

func serveMetrics(cfg config.MetricsConfig, reg *prometheus.Registry, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: cfg.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", zap.Error(err))
		}
	}()
	logger.Info("metrics listening", zap.String("addr", cfg.Addr), zap.String("path", cfg.Path))
	return srv
}
