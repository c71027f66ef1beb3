// SPDX-License-Identifier: MIT
// Package cdi: per-phase timing.
//
// When enabled, every public entry point records its wall-clock duration in a
// Prometheus histogram labelled by phase. Report renders the collected
// counts and sums as text; hosts may also register the collector with their
// own registry (WithRegisterer).

package cdi

import (
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Phase label values.
const (
	phaseDiffusion = "diffusion"
	phasePostOrder = "postorder"
	phasePreOrder  = "preorder"
	phaseRoot      = "root"
)

type timer struct {
	registry *prometheus.Registry
	hist     *prometheus.HistogramVec
}

// newTimer returns nil when timing is disabled; a nil *timer is a valid no-op.
func newTimer(o Options) (*timer, error) {
	if !o.Timing {
		return nil, nil
	}
	hist := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cdi",
		Name:      "phase_duration_seconds",
		Help:      "Wall-clock duration of integrator phases.",
		Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 12),
	}, []string{"phase"})

	reg := prometheus.NewRegistry()
	if err := reg.Register(hist); err != nil {
		return nil, fmt.Errorf("timing: %w", err)
	}
	if o.Registerer != nil {
		if err := o.Registerer.Register(hist); err != nil {
			return nil, fmt.Errorf("timing: %w", err)
		}
	}

	return &timer{registry: reg, hist: hist}, nil
}

// track starts a measurement of phase and returns the function that ends it.
//
//	defer in.timer.track(phasePostOrder)()
func (t *timer) track(phase string) func() {
	if t == nil {
		return func() {}
	}
	start := time.Now()

	return func() {
		t.hist.WithLabelValues(phase).Observe(time.Since(start).Seconds())
	}
}

// report renders one line per phase: call count and total seconds.
func (t *timer) report() string {
	if t == nil {
		return ""
	}
	families, err := t.registry.Gather()
	if err != nil {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("TIMING:\n")
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			phase := ""
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "phase" {
					phase = lp.GetValue()
				}
			}
			h := m.GetHistogram()
			fmt.Fprintf(&sb, "%-10s calls=%-8d seconds=%.6f\n", phase, h.GetSampleCount(), h.GetSampleSum())
		}
	}

	return sb.String()
}
