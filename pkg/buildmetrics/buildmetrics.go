// Package buildmetrics exposes Prometheus counters/summaries for
// program build and query durations, grounded on npm/metrics/
// prometheus-metrics.go's package-level-registerer/createGauge(Vec)/
// createSummary shape — generalized here to the two build-time
// concerns spec.md §4.J/§5 names instead of ACL/IPSet dataplane counts.
package buildmetrics

import (
	"time"

	"k8s.io/klog/v2"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "netreach"

// Metrics, mirroring the teacher's package-level Gauge/Summary vars.
var (
	BuildCount    prometheus.Counter
	BuildDuration prometheus.Summary
	QueryDuration *prometheus.SummaryVec
)

const (
	buildCountName = "build_count"
	buildCountHelp = "The number of program builds completed"

	buildDurationName = "build_duration_seconds"
	buildDurationHelp = "Build duration in seconds"

	queryDurationName = "query_duration_seconds"
	queryDurationHelp = "Query duration in seconds by query kind"

	// QueryKindLabel is the QueryDuration vector's label key.
	QueryKindLabel = "query_kind"
)

var registry = prometheus.NewRegistry()
var haveInitialized = false

// InitializeAll creates all the Prometheus metrics. The metrics are nil
// before this is called.
func InitializeAll() {
	if haveInitialized {
		return
	}
	BuildCount = createCounter(buildCountName, buildCountHelp)
	BuildDuration = createSummary(buildDurationName, buildDurationHelp)
	QueryDuration = createSummaryVec(queryDurationName, queryDurationHelp, QueryKindLabel)
	klog.V(2).Infof("buildmetrics: finished initializing Prometheus metrics")
	haveInitialized = true
}

// Registry exposes the metrics registry for an HTTP handler to serve.
func Registry() *prometheus.Registry {
	return registry
}

// ObserveBuild records one program build's duration, a no-op until
// InitializeAll has been called (e.g. by cmd/reach at startup) so that
// library callers who never wire up a metrics endpoint — tests included
// — never dereference a nil collector.
func ObserveBuild(d time.Duration) {
	if !haveInitialized {
		return
	}
	BuildCount.Inc()
	BuildDuration.Observe(d.Seconds())
}

// ObserveQuery records one query's duration under its kind label
// ("edges", "reach-isolate", "crosscheck", "system-isolation", "shadow",
// "conflict"),
// equally a no-op before InitializeAll.
func ObserveQuery(kind string, d time.Duration) {
	if !haveInitialized {
		return
	}
	QueryDuration.With(prometheus.Labels{QueryKindLabel: kind}).Observe(d.Seconds())
}

func register(collector prometheus.Collector, name string) {
	if err := registry.Register(collector); err != nil {
		klog.Errorf("buildmetrics: error creating metric %s: %v", name, err)
	}
}

func createCounter(name, help string) prometheus.Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help})
	register(c, name)
	return c
}

func createSummary(name, help string) prometheus.Summary {
	s := prometheus.NewSummary(prometheus.SummaryOpts{
		Namespace:  namespace,
		Name:       name,
		Help:       help,
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
	})
	register(s, name)
	return s
}

func createSummaryVec(name, help string, labels ...string) *prometheus.SummaryVec {
	v := prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace:  namespace,
		Name:       name,
		Help:       help,
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
	}, labels)
	register(v, name)
	return v
}
