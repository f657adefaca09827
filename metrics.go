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
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Reply results recorded by Metrics.
const (
	resultOK          = "ok"
	resultChecksum    = "checksum"
	resultStatus      = "status"
	resultMismatch    = "mismatch"
	resultTransport   = "transport"
	resultFrameLength = "length"
)

// Metrics counts client exchanges. A nil *Metrics records nothing.
type Metrics struct {
	FramesSent       *prometheus.CounterVec   // labels: command
	Replies          *prometheus.CounterVec   // labels: result
	ExchangeDuration *prometheus.HistogramVec // labels: command
}

// NewMetrics creates the client metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tmcm",
			Name:      "frames_sent_total",
			Help:      "TMCL command frames written to the line.",
		}, []string{"command"}),
		Replies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tmcm",
			Name:      "replies_total",
			Help:      "TMCL replies by outcome.",
		}, []string{"result"}),
		ExchangeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tmcm",
			Name:      "exchange_duration_seconds",
			Help:      "Time from sending a command to decoding its reply.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2},
		}, []string{"command"}),
	}
	reg.MustRegister(m.FramesSent, m.Replies, m.ExchangeDuration)
	return m
}

func (m *Metrics) sent(cmd Command) {
	if m == nil {
		return
	}
	m.FramesSent.WithLabelValues(cmd.String()).Inc()
}

func (m *Metrics) reply(result string) {
	if m == nil {
		return
	}
	m.Replies.WithLabelValues(result).Inc()
}

func (m *Metrics) observe(cmd Command, start time.Time) {
	if m == nil {
		return
	}
	m.ExchangeDuration.WithLabelValues(cmd.String()).Observe(time.Since(start).Seconds())
}
