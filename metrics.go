package keymerge

import (
	"github.com/jetkvm/keymerge/internal/merge"
	"github.com/prometheus/client_golang/prometheus"
)

func stageCounter(name, help, stage string, read func() float64) prometheus.CounterFunc {
	return prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name:        name,
		Help:        help,
		ConstLabels: prometheus.Labels{"stage": stage},
	}, read)
}

func stageCollectors(stage string, stats func() merge.StageStats, registry *merge.Registry) []prometheus.Collector {
	return []prometheus.Collector{
		stageCounter("keymerge_events_forwarded_total", "Events forwarded by a merge stage", stage,
			func() float64 { return float64(stats().Forwarded) }),
		stageCounter("keymerge_events_suppressed_total", "Duplicate events swallowed by a merge stage", stage,
			func() float64 { return float64(stats().Suppressed) }),
		stageCounter("keymerge_events_bypassed_total", "Events that did not take part in merging", stage,
			func() float64 { return float64(stats().Bypassed) }),
		stageCounter("keymerge_registry_full_total", "Activations dropped because the registry was full", stage,
			func() float64 { return float64(stats().Full) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "keymerge_registry_active_keys",
			Help:        "Keys with outstanding activations",
			ConstLabels: prometheus.Labels{"stage": stage},
		}, func() float64 { return float64(registry.Len()) }),
	}
}

// registerPipelineMetrics exposes pipeline counters. Values are read from the
// stages on every scrape.
func registerPipelineMetrics(reg prometheus.Registerer, p *Pipeline) error {
	collectors := stageCollectors("position", p.positions.Stats, p.positions.Registry())
	collectors = append(collectors, stageCollectors("keycode", p.keycodes.Stats, p.keycodes.Registry())...)
	collectors = append(collectors,
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "keymerge_scan_queue_dropped_total",
			Help: "Scan events dropped because the queue was full",
		}, func() float64 { return float64(p.scanner.Stats().Dropped) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "keymerge_scan_unmapped_total",
			Help: "Scan events with no position in the matrix transform",
		}, func() float64 { return float64(p.scanner.Stats().Unmapped) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "keymerge_bus_published_total",
			Help: "Events published on the event bus",
		}, func() float64 { return float64(p.bus.Stats().Published) }),
	)

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
