/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package rendezvous

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics counts channel activity. It implements prometheus.Collector and
// optionally mirrors completed rendezvous to an OpenTelemetry meter.
// A nil *Metrics records nothing.
type Metrics struct {
	writes   prometheus.Counter
	reads    prometheus.Counter
	selects  prometheus.Counter
	claims   prometheus.Counter
	poisons  prometheus.Counter
	bytes    prometheus.Counter
	blocked  *prometheus.GaugeVec
	errors   *prometheus.CounterVec
	handoffs metric.Int64Counter
}

// NewMetrics builds collectors under namespace. meter may be nil.
func NewMetrics(namespace string, meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("")
	}
	handoffs, err := meter.Int64Counter("rendezvous.handoffs",
		metric.WithDescription("Messages handed from a writer to a reader."))
	if err != nil {
		return nil, err
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rendezvous",
			Name:      name,
			Help:      help,
		})
	}
	return &Metrics{
		writes:  counter("writes_total", "Completed writes."),
		reads:   counter("reads_total", "Completed plain reads."),
		selects: counter("selects_total", "Completed alternation selects."),
		claims:  counter("claims_total", "Enable calls that claimed a pending message."),
		poisons: counter("poisons_total", "Poison calls."),
		bytes:   counter("read_bytes_total", "Payload bytes delivered to readers."),
		blocked: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rendezvous",
			Name:      "blocked",
			Help:      "Goroutines of this process blocked on a channel semaphore.",
		}, []string{"op"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rendezvous",
			Name:      "errors_total",
			Help:      "Failed operations by error kind.",
		}, []string{"kind"}),
		handoffs: handoffs,
	}, nil
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.writes, m.reads, m.selects, m.claims, m.poisons, m.bytes, m.blocked, m.errors}
}

func (m *Metrics) wrote() {
	if m != nil {
		m.writes.Inc()
	}
}

func (m *Metrics) received(selected bool, n int) {
	if m == nil {
		return
	}
	if selected {
		m.selects.Inc()
	} else {
		m.reads.Inc()
	}
	m.bytes.Add(float64(n))
	m.handoffs.Add(context.Background(), 1)
}

func (m *Metrics) claimed() {
	if m != nil {
		m.claims.Inc()
	}
}

func (m *Metrics) poisoned() {
	if m != nil {
		m.poisons.Inc()
	}
}

func (m *Metrics) block(op string, delta float64) {
	if m != nil {
		m.blocked.WithLabelValues(op).Add(delta)
	}
}

func (m *Metrics) failed(err error) error {
	if m != nil && err != nil {
		m.errors.WithLabelValues(errorKind(err)).Inc()
	}
	return err
}
