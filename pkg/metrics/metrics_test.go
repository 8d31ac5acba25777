// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCounterSeriesAreIndependent(t *testing.T) {
	c := NewCounter("test_steps_total", "steps")
	c.Add(Labels{"axis": "x"}, 60)
	c.Add(Labels{"axis": "z"}, 40)
	c.Inc(Labels{"axis": "x"})

	if got := c.Get(Labels{"axis": "x"}); got != 61 {
		t.Errorf("x series = %d, want 61", got)
	}
	if got := c.Get(Labels{"axis": "z"}); got != 40 {
		t.Errorf("z series = %d, want 40", got)
	}
	if got := c.Get(Labels{"axis": "c"}); got != 0 {
		t.Errorf("untouched series = %d, want 0", got)
	}
}

func TestLabelKeyOrderIndependent(t *testing.T) {
	c := NewCounter("test_total", "")
	c.Inc(Labels{"a": "1", "b": "2"})
	c.Inc(Labels{"b": "2", "a": "1"})
	if got := c.Get(Labels{"a": "1", "b": "2"}); got != 2 {
		t.Errorf("value = %d, want 2 (same series)", got)
	}
}

func TestGaugeSetAddDec(t *testing.T) {
	g := NewGauge("test_position_mm", "position")
	axis := Labels{"axis": "z"}
	g.Set(axis, 12.5)
	g.Add(axis, 0.5)
	g.Dec(axis)
	if got := g.Get(axis); got != 12 {
		t.Errorf("gauge = %v, want 12", got)
	}
}

func TestHistogramBucketsCumulative(t *testing.T) {
	h := NewHistogram("test_seconds", "latency", []float64{0.1, 1, 10})
	for _, v := range []float64{0.05, 0.5, 0.5, 5, 50} {
		h.Observe(nil, v)
	}
	if got := h.Count(nil); got != 5 {
		t.Fatalf("count = %d, want 5", got)
	}

	var sb strings.Builder
	h.Write(&sb)
	out := sb.String()
	for _, want := range []string{
		`test_seconds_bucket{le="0.1"} 1`,
		`test_seconds_bucket{le="1"} 3`,
		`test_seconds_bucket{le="10"} 4`,
		`test_seconds_bucket{le="+Inf"} 5`,
		`test_seconds_count 5`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(NewCounter("dup_total", "")); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := reg.Register(NewGauge("dup_total", "")); err == nil {
		t.Error("duplicate name accepted")
	}
}

func TestGatherPreservesRegistrationOrder(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(NewCounter("zzz_total", "last name, first registered"))
	reg.MustRegister(NewCounter("aaa_total", "first name, last registered"))
	out := reg.Gather()
	if strings.Index(out, "zzz_total") > strings.Index(out, "aaa_total") {
		t.Errorf("output not in registration order:\n%s", out)
	}
}

func TestLabelValuesEscaped(t *testing.T) {
	c := NewCounter("test_total", "")
	c.Inc(Labels{"reason": `bad "quote"`})
	var sb strings.Builder
	c.Write(&sb)
	if !strings.Contains(sb.String(), `reason="bad \"quote\""`) {
		t.Errorf("quotes not escaped:\n%s", sb.String())
	}
}

func TestHandlerServesExposition(t *testing.T) {
	reg := NewRegistry()
	c := NewCounter("test_requests_total", "requests")
	reg.MustRegister(c)
	c.Inc(nil)

	srv := httptest.NewServer(reg.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("content type = %q", ct)
	}
	if !strings.Contains(string(body), "test_requests_total 1") {
		t.Errorf("body missing counter:\n%s", body)
	}

	post, err := http.Post(srv.URL, "text/plain", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	post.Body.Close()
	if post.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d, want 405", post.StatusCode)
	}
}

func TestWinderMetricsRegisterInOneRegistry(t *testing.T) {
	reg := NewRegistry()
	wm := NewWinderMetrics(reg)
	wm.StepsEmitted.Add(Labels{"axis": "c"}, 1000)
	wm.CommandsExecuted.Inc(Labels{"code": "G1"})

	out := reg.Gather()
	for _, want := range []string{
		`winder_steps_emitted_total{axis="c"} 1000`,
		`winder_commands_executed_total{code="G1"} 1`,
		"winder_queue_depth",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("gather missing %q", want)
		}
	}
}
