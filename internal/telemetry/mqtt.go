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

// Package telemetry publishes poller samples to an MQTT broker.
package telemetry

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	tmcm "github.com/hootrhino/gotmcm"
)

// Config selects the broker and topic layout.
type Config struct {
	Broker         string
	ClientID       string
	TopicPrefix    string
	QoS            byte
	Retained       bool
	ConnectTimeout time.Duration
}

// Payload is the JSON body of one sample message.
type Payload struct {
	Module    uint8      `json:"module"`
	Name      string     `json:"name"`
	Scope     tmcm.Scope `json:"scope"`
	Parameter uint8      `json:"parameter"`
	Value     int32      `json:"value"`
	Time      time.Time  `json:"ts"`
}

type client interface {
	Connect() paho.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// Publisher sends samples as JSON messages to <prefix>/<module>/<name>.
type Publisher struct {
	client   client
	prefix   string
	qos      byte
	retained bool
}

// NewPublisher connects to the broker in cfg.Broker.
func NewPublisher(cfg Config) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt broker not configured")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker).
		SetAutoReconnect(true).
		SetCleanSession(true)
	if cfg.ClientID != "" {
		opts.SetClientID(cfg.ClientID)
	}

	c := paho.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("mqtt connect %s: timeout", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, err)
	}
	return newPublisher(c, cfg), nil
}

func newPublisher(c client, cfg Config) *Publisher {
	return &Publisher{
		client:   c,
		prefix:   strings.Trim(cfg.TopicPrefix, "/"),
		qos:      cfg.QoS,
		retained: cfg.Retained,
	}
}

// Topic returns the topic a sample of module is published on.
func (p *Publisher) Topic(module uint8, name string) string {
	parts := make([]string, 0, 3)
	if p.prefix != "" {
		parts = append(parts, p.prefix)
	}
	parts = append(parts, strconv.Itoa(int(module)), name)
	return strings.Join(parts, "/")
}

// Publish sends one message per sample and waits for each to be handed to
// the broker. The first failure stops the batch.
func (p *Publisher) Publish(module uint8, samples []tmcm.Sample) error {
	for _, s := range samples {
		body, err := json.Marshal(Payload{
			Module:    module,
			Name:      s.Name,
			Scope:     s.Scope,
			Parameter: uint8(s.Parameter),
			Value:     s.Value,
			Time:      s.Time,
		})
		if err != nil {
			return err
		}
		token := p.client.Publish(p.Topic(module, s.Name), p.qos, p.retained, body)
		token.Wait()
		if err := token.Error(); err != nil {
			return fmt.Errorf("publish %s: %w", s.Name, err)
		}
	}
	return nil
}

// Close disconnects from the broker.
func (p *Publisher) Close() error {
	p.client.Disconnect(250)
	return nil
}
