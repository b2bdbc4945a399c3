// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Thermoquad/webcontrol/pkg/desk"
	"github.com/Thermoquad/webcontrol/pkg/deskproto"
)

const namespace = "webcontrol"

// NewRegistry creates a registry with the Go and process collectors
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves reg in the Prometheus exposition format
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics are the desk-level metrics. It implements desk.Observer.
type AppMetrics struct {
	RequestsTotal   *prometheus.CounterVec   // labels: desk, command, result
	FramesSentTotal *prometheus.CounterVec   // labels: desk, opcode
	SendErrorsTotal *prometheus.CounterVec   // labels: desk
	SendDuration    *prometheus.HistogramVec // labels: desk
	LinkUp          *prometheus.GaugeVec     // labels: desk
	RateLimited     *prometheus.CounterVec   // labels: desk
}

var _ desk.Observer = (*AppMetrics)(nil)

// NewAppMetrics registers and returns the desk metrics
func NewAppMetrics(reg prometheus.Registerer) *AppMetrics {
	m := &AppMetrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Desk requests by command and result.",
		}, []string{"desk", "command", "result"}),
		FramesSentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Frames written to desk links by opcode.",
		}, []string{"desk", "opcode"}),
		SendErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_errors_total",
			Help:      "Failed frame writes.",
		}, []string{"desk"}),
		SendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "send_duration_seconds",
			Help:      "Time to write one frame.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 3},
		}, []string{"desk"}),
		LinkUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "link_up",
			Help:      "1 when the desk link is connected.",
		}, []string{"desk"}),
		RateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-desk rate limiter.",
		}, []string{"desk"}),
	}
	reg.MustRegister(m.RequestsTotal, m.FramesSentTotal, m.SendErrorsTotal, m.SendDuration, m.LinkUp, m.RateLimited)
	return m
}

// FrameSent implements desk.Observer
func (m *AppMetrics) FrameSent(deskName string, frame deskproto.Frame, elapsed time.Duration) {
	m.FramesSentTotal.WithLabelValues(deskName, deskproto.FormatOpcode(frame.Opcode)).Inc()
	m.SendDuration.WithLabelValues(deskName).Observe(elapsed.Seconds())
	m.LinkUp.WithLabelValues(deskName).Set(1)
}

// SendFailed implements desk.Observer
func (m *AppMetrics) SendFailed(deskName string, err error) {
	m.SendErrorsTotal.WithLabelValues(deskName).Inc()
	if errors.Is(err, desk.ErrLinkClosed) {
		m.LinkUp.WithLabelValues(deskName).Set(0)
	}
}

// RequestHandled implements desk.Observer
func (m *AppMetrics) RequestHandled(deskName, command, result string) {
	m.RequestsTotal.WithLabelValues(deskName, command, result).Inc()
}

// SetLinkUp records the connection state reported by a link
func (m *AppMetrics) SetLinkUp(deskName string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	m.LinkUp.WithLabelValues(deskName).Set(v)
}
