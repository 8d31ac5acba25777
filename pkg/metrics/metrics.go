// Metrics collection for the winder host
//
// Counters, gauges and histograms rendered in the Prometheus text
// exposition format. The registry preserves registration order so the
// scrape output is stable.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Labels identify one series of a metric, e.g. {"axis": "z"}.
type Labels map[string]string

// key produces a canonical identity for a label set. Series lookup
// must not depend on map iteration order.
func (l Labels) key() string {
	if len(l) == 0 {
		return ""
	}
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(l[k])
	}
	return sb.String()
}

// render writes the label set in exposition format, {} elided.
func (l Labels) render(sb *strings.Builder) {
	if len(l) == 0 {
		return
	}
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteString(`="`)
		sb.WriteString(escapeLabel(l[k]))
		sb.WriteByte('"')
	}
	sb.WriteByte('}')
}

func (l Labels) clone() Labels {
	out := make(Labels, len(l)+1)
	for k, v := range l {
		out[k] = v
	}
	return out
}

func escapeLabel(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return strings.ReplaceAll(s, "\n", `\n`)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Metric is one named metric with any number of labeled series.
type Metric interface {
	Name() string
	Write(sb *strings.Builder)
}

func writeHeader(sb *strings.Builder, name, help, kind string) {
	fmt.Fprintf(sb, "# HELP %s %s\n# TYPE %s %s\n", name, help, name, kind)
}

// Counter is a monotonically increasing metric.
type Counter struct {
	name string
	help string

	mu     sync.Mutex
	series map[string]*counterSeries
}

type counterSeries struct {
	labels Labels
	value  uint64
}

// NewCounter creates an unregistered counter.
func NewCounter(name, help string) *Counter {
	return &Counter{name: name, help: help, series: make(map[string]*counterSeries)}
}

func (c *Counter) Name() string { return c.name }

// Inc increments the labeled series by 1.
func (c *Counter) Inc(labels Labels) { c.Add(labels, 1) }

// Add increments the labeled series by delta.
func (c *Counter) Add(labels Labels, delta uint64) {
	key := labels.key()
	c.mu.Lock()
	s, ok := c.series[key]
	if !ok {
		s = &counterSeries{labels: labels.clone()}
		c.series[key] = s
	}
	s.value += delta
	c.mu.Unlock()
}

// Get returns the current value of the labeled series.
func (c *Counter) Get(labels Labels) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.series[labels.key()]; ok {
		return s.value
	}
	return 0
}

func (c *Counter) Write(sb *strings.Builder) {
	writeHeader(sb, c.name, c.help, "counter")
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range sortedKeys(c.series) {
		s := c.series[key]
		sb.WriteString(c.name)
		s.labels.render(sb)
		sb.WriteByte(' ')
		sb.WriteString(strconv.FormatUint(s.value, 10))
		sb.WriteByte('\n')
	}
}

// Gauge is a metric that moves in both directions.
type Gauge struct {
	name string
	help string

	mu     sync.Mutex
	series map[string]*gaugeSeries
}

type gaugeSeries struct {
	labels Labels
	value  float64
}

// NewGauge creates an unregistered gauge.
func NewGauge(name, help string) *Gauge {
	return &Gauge{name: name, help: help, series: make(map[string]*gaugeSeries)}
}

func (g *Gauge) Name() string { return g.name }

// Set stores value into the labeled series.
func (g *Gauge) Set(labels Labels, value float64) {
	g.update(labels, func(s *gaugeSeries) { s.value = value })
}

// Add shifts the labeled series by delta.
func (g *Gauge) Add(labels Labels, delta float64) {
	g.update(labels, func(s *gaugeSeries) { s.value += delta })
}

// Inc increments the labeled series by 1.
func (g *Gauge) Inc(labels Labels) { g.Add(labels, 1) }

// Dec decrements the labeled series by 1.
func (g *Gauge) Dec(labels Labels) { g.Add(labels, -1) }

// Get returns the current value of the labeled series.
func (g *Gauge) Get(labels Labels) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if s, ok := g.series[labels.key()]; ok {
		return s.value
	}
	return 0
}

func (g *Gauge) update(labels Labels, apply func(*gaugeSeries)) {
	key := labels.key()
	g.mu.Lock()
	s, ok := g.series[key]
	if !ok {
		s = &gaugeSeries{labels: labels.clone()}
		g.series[key] = s
	}
	apply(s)
	g.mu.Unlock()
}

func (g *Gauge) Write(sb *strings.Builder) {
	writeHeader(sb, g.name, g.help, "gauge")
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, key := range sortedKeys(g.series) {
		s := g.series[key]
		sb.WriteString(g.name)
		s.labels.render(sb)
		sb.WriteByte(' ')
		sb.WriteString(formatFloat(s.value))
		sb.WriteByte('\n')
	}
}

// Histogram records the distribution of observations in cumulative
// buckets.
type Histogram struct {
	name   string
	help   string
	bounds []float64

	mu     sync.Mutex
	series map[string]*histogramSeries
}

type histogramSeries struct {
	labels  Labels
	counts  []uint64
	sum     float64
	samples uint64
}

// NewHistogram creates an unregistered histogram with the given
// bucket upper bounds.
func NewHistogram(name, help string, bounds []float64) *Histogram {
	sorted := append([]float64(nil), bounds...)
	sort.Float64s(sorted)
	return &Histogram{
		name:   name,
		help:   help,
		bounds: sorted,
		series: make(map[string]*histogramSeries),
	}
}

// DefaultBuckets suits sub-second latency measurements.
func DefaultBuckets() []float64 {
	return []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
}

func (h *Histogram) Name() string { return h.name }

// Observe records one value into the labeled series.
func (h *Histogram) Observe(labels Labels, value float64) {
	key := labels.key()
	h.mu.Lock()
	s, ok := h.series[key]
	if !ok {
		s = &histogramSeries{labels: labels.clone(), counts: make([]uint64, len(h.bounds))}
		h.series[key] = s
	}
	s.samples++
	s.sum += value
	for i, bound := range h.bounds {
		if value <= bound {
			s.counts[i]++
		}
	}
	h.mu.Unlock()
}

// Timer returns a function that observes the elapsed seconds when
// called, for deferred use.
func (h *Histogram) Timer(labels Labels) func() {
	start := time.Now()
	return func() {
		h.Observe(labels, time.Since(start).Seconds())
	}
}

// Count returns the number of observations in the labeled series.
func (h *Histogram) Count(labels Labels) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.series[labels.key()]; ok {
		return s.samples
	}
	return 0
}

func (h *Histogram) Write(sb *strings.Builder) {
	writeHeader(sb, h.name, h.help, "histogram")
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, key := range sortedKeys(h.series) {
		s := h.series[key]
		cumulative := uint64(0)
		for i, bound := range h.bounds {
			cumulative += s.counts[i]
			bucket := s.labels.clone()
			bucket["le"] = formatFloat(bound)
			sb.WriteString(h.name)
			sb.WriteString("_bucket")
			bucket.render(sb)
			fmt.Fprintf(sb, " %d\n", cumulative)
		}
		inf := s.labels.clone()
		inf["le"] = "+Inf"
		sb.WriteString(h.name)
		sb.WriteString("_bucket")
		inf.render(sb)
		fmt.Fprintf(sb, " %d\n", s.samples)

		sb.WriteString(h.name)
		sb.WriteString("_sum")
		s.labels.render(sb)
		fmt.Fprintf(sb, " %s\n", formatFloat(s.sum))

		sb.WriteString(h.name)
		sb.WriteString("_count")
		s.labels.render(sb)
		fmt.Fprintf(sb, " %d\n", s.samples)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Registry holds registered metrics in registration order.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]Metric
	ordered []Metric
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Metric)}
}

// Register adds a metric. Names must be unique within the registry.
func (r *Registry) Register(m Metric) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[m.Name()]; exists {
		return fmt.Errorf("metrics: %q already registered", m.Name())
	}
	r.byName[m.Name()] = m
	r.ordered = append(r.ordered, m)
	return nil
}

// MustRegister adds a metric and panics on a duplicate name.
func (r *Registry) MustRegister(m Metric) {
	if err := r.Register(m); err != nil {
		panic(err)
	}
}

// Gather renders every registered metric in exposition format.
func (r *Registry) Gather() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var sb strings.Builder
	for _, m := range r.ordered {
		m.Write(&sb)
	}
	return sb.String()
}

// Handler serves the registry contents for scraping.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		fmt.Fprint(w, r.Gather())
	})
}

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the process-wide registry.
func DefaultRegistry() *Registry { return defaultRegistry }

// Handler serves the default registry.
func Handler() http.Handler { return defaultRegistry.Handler() }

// Gather renders the default registry.
func Gather() string { return defaultRegistry.Gather() }
