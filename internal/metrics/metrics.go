// Package metrics counts generation activity in a Prometheus registry that
// is written to a node_exporter textfile when a run ends.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zjrosen/layerforge/internal/ledger"
)

const namespace = "layerforge"

// Recorder owns the generation metrics.
type Recorder struct {
	registry       *prometheus.Registry
	editions       *prometheus.CounterVec
	duplicates     *prometheus.CounterVec
	runs           *prometheus.CounterVec
	editionSeconds prometheus.Histogram
	assetLoads     *prometheus.GaugeVec
}

// New registers the metrics on a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		editions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "editions_created_total",
			Help:      "Editions accepted, by layer configuration.",
		}, []string{"configuration"}),
		duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_draws_total",
			Help:      "Draws rejected because their DNA already existed, by layer configuration.",
		}, []string{"configuration"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished runs, by final status.",
		}, []string{"status"}),
		editionSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "edition_duration_seconds",
			Help:      "Time to compose and persist one edition.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		assetLoads: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "asset_loads",
			Help:      "Layer image lookups of the last run, by cache result.",
		}, []string{"result"}),
	}
	r.registry.MustRegister(r.editions, r.duplicates, r.runs, r.editionSeconds, r.assetLoads)
	return r
}

func (r *Recorder) EditionCreated(configuration int, elapsed time.Duration) {
	r.editions.WithLabelValues(strconv.Itoa(configuration)).Inc()
	r.editionSeconds.Observe(elapsed.Seconds())
}

func (r *Recorder) DuplicateDrawn(configuration int) {
	r.duplicates.WithLabelValues(strconv.Itoa(configuration)).Inc()
}

func (r *Recorder) RunFinished(status ledger.RunStatus) {
	r.runs.WithLabelValues(status.String()).Inc()
}

// AssetCache records how layer image lookups were served.
func (r *Recorder) AssetCache(hits, misses uint64) {
	r.assetLoads.WithLabelValues("hit").Set(float64(hits))
	r.assetLoads.WithLabelValues("miss").Set(float64(misses))
}

// Gatherer exposes the registry.
func (r *Recorder) Gatherer() prometheus.Gatherer { return r.registry }

// WriteTextfile writes the current values to path in text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
