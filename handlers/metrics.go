package handlers

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ignis-ml/ignis"
)

// Metrics instruments an engine with Prometheus collectors:
//
//	ignis_engine_epochs_total            counter
//	ignis_engine_iterations_total        counter
//	ignis_engine_epoch_duration_seconds  histogram
//	ignis_engine_running                 gauge (1 while a run is active)
//
// Collectors are registered on the Registerer passed to NewMetrics, so
// callers control the registry (and tests can use a private one).
type Metrics struct {
	epochsTotal     prometheus.Counter
	iterationsTotal prometheus.Counter
	epochDuration   prometheus.Histogram
	running         prometheus.Gauge

	handles []*ignis.RemovableHandle
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		epochsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ignis",
			Subsystem: "engine",
			Name:      "epochs_total",
			Help:      "Total number of completed epochs",
		}),
		iterationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ignis",
			Subsystem: "engine",
			Name:      "iterations_total",
			Help:      "Total number of completed iterations",
		}),
		epochDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ignis",
			Subsystem: "engine",
			Name:      "epoch_duration_seconds",
			Help:      "Duration of completed epochs in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ignis",
			Subsystem: "engine",
			Name:      "running",
			Help:      "1 while a run is active",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.epochsTotal, m.iterationsTotal, m.epochDuration, m.running,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Attach registers the instrumentation handlers on e. Call Detach to remove
// them.
func (m *Metrics) Attach(e *ignis.Engine) error {
	for _, reg := range []struct {
		kind ignis.EventKind
		name string
		fn   ignis.HandlerFunc
	}{
		{ignis.Started, "started", m.onStarted},
		{ignis.IterationCompleted, "iteration", m.onIterationCompleted},
		{ignis.EpochCompleted, "epoch", m.onEpochCompleted},
		{ignis.Completed, "completed", m.onCompleted},
	} {
		handle, err := e.AddEventHandler(reg.kind, ignis.NewHandler("metrics:"+reg.name, reg.fn))
		if err != nil {
			return err
		}
		m.handles = append(m.handles, handle)
	}
	return nil
}

// Detach removes every handler Attach registered. Safe to call more than
// once.
func (m *Metrics) Detach() {
	for _, h := range m.handles {
		h.Remove()
	}
	m.handles = nil
}

func (m *Metrics) onStarted(ctx context.Context, e *ignis.Engine) error {
	m.running.Set(1)
	return nil
}

func (m *Metrics) onIterationCompleted(ctx context.Context, e *ignis.Engine) error {
	m.iterationsTotal.Inc()
	return nil
}

func (m *Metrics) onEpochCompleted(ctx context.Context, e *ignis.Engine) error {
	m.epochsTotal.Inc()
	if took, ok := e.State().Times[string(ignis.EpochCompleted)]; ok {
		m.epochDuration.Observe(took.Seconds())
	}
	return nil
}

func (m *Metrics) onCompleted(ctx context.Context, e *ignis.Engine) error {
	m.running.Set(0)
	return nil
}
