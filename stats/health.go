// Package stats implements the C9 component: a Prometheus registry for the
// scheduler and pd gauges and counters described throughout SPEC_FULL.md,
// plus a minimal fasthttp surface exposing /metrics (Prometheus text
// format) and /healthz (current runlevel and barrier ack state as JSON).
/*
 * Copyright (c) 2024, OCR-CORE contributors.
 */
package stats

import (
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/valyala/fasthttp"

	"github.com/open-ocr/ocr-core/cmn/nlog"
	"github.com/open-ocr/ocr-core/runlevel"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// HealthDoc is the JSON document served at /healthz: the current runlevel
// and the shutdown barrier's ack count, ack target and completion. The
// runlevel phase is not reported.
type HealthDoc struct {
	Runlevel string `json:"runlevel"`
	Acks     int    `json:"acks"`
	Needed   int    `json:"needed"`
	Done     bool   `json:"barrier_done"`
}

// Server is the stats/health HTTP surface for one PD.
type Server struct {
	reg     *prometheus.Registry
	machine *runlevel.Machine

	mu     sync.RWMutex
	server *fasthttp.Server
}

func NewServer(reg *prometheus.Registry, machine *runlevel.Machine) *Server {
	return &Server{reg: reg, machine: machine}
}

func (s *Server) ListenAndServe(addr string) error {
	s.mu.Lock()
	s.server = &fasthttp.Server{Handler: s.handle}
	srv := s.server
	s.mu.Unlock()
	nlog.Infof("stats: listening on %s", addr)
	return srv.ListenAndServe(addr)
}

func (s *Server) Shutdown() error {
	s.mu.RLock()
	srv := s.server
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown()
}

func (s *Server) handle(ctx *fasthttp.RequestCtx) {
	switch string(ctx.Path()) {
	case "/metrics":
		s.serveMetrics(ctx)
	case "/healthz":
		s.serveHealth(ctx)
	default:
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	}
}

// serveMetrics renders the registry in Prometheus's plain text exposition
// format -- not the full Gatherer HTTP helper (that's built on net/http's
// ResponseWriter, which fasthttp doesn't implement), just the family dump
// rendered by hand into the fasthttp response body.
func (s *Server) serveMetrics(ctx *fasthttp.RequestCtx) {
	families, err := s.reg.Gather()
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetBodyString(err.Error())
		return
	}
	ctx.SetContentType("text/plain; version=0.0.4")
	for _, mf := range families {
		writeFamily(ctx, mf)
	}
}

func writeFamily(ctx *fasthttp.RequestCtx, mf *dto.MetricFamily) {
	name := mf.GetName()
	ctx.WriteString("# HELP " + name + " " + mf.GetHelp() + "\n")
	ctx.WriteString("# TYPE " + name + " " + metricTypeString(mf.GetType()) + "\n")
	for _, m := range mf.Metric {
		ctx.WriteString(name)
		writeLabels(ctx, m.GetLabel())
		ctx.WriteString(" ")
		ctx.WriteString(metricValueString(m))
		ctx.WriteString("\n")
	}
}

func writeLabels(ctx *fasthttp.RequestCtx, labels []*dto.LabelPair) {
	if len(labels) == 0 {
		return
	}
	ctx.WriteString("{")
	for i, l := range labels {
		if i > 0 {
			ctx.WriteString(",")
		}
		ctx.WriteString(l.GetName() + "=\"" + l.GetValue() + "\"")
	}
	ctx.WriteString("}")
}

func metricTypeString(t dto.MetricType) string {
	switch t {
	case dto.MetricType_COUNTER:
		return "counter"
	case dto.MetricType_GAUGE:
		return "gauge"
	default:
		return "untyped"
	}
}

func metricValueString(m *dto.Metric) string {
	switch {
	case m.Counter != nil:
		return floatString(m.Counter.GetValue())
	case m.Gauge != nil:
		return floatString(m.Gauge.GetValue())
	default:
		return "0"
	}
}

func floatString(v float64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func (s *Server) serveHealth(ctx *fasthttp.RequestCtx) {
	acks, needed := 0, 0
	if b := s.machine.Barrier(); b != nil {
		acks, needed = b.Acks()
	}
	doc := HealthDoc{
		Runlevel: s.machine.Current().String(),
		Acks:     acks,
		Needed:   needed,
		Done:     s.machine.Barrier() != nil && s.machine.Barrier().IsDone(),
	}
	b, err := json.Marshal(doc)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetBody(b)
}
