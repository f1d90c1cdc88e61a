// Package prom implements the observability hook interfaces on top of
// Prometheus collectors.
//
// A single [Hooks] value satisfies every hook interface, so wiring it up is
// one call:
//
//	h := prom.New(prometheus.DefaultRegisterer)
//	h.Install()
package prom

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/matzehuels/canvasgraph/pkg/observability"
)

const namespace = "canvasgraph"

// Hooks records document, layout, cache and transport events as metrics.
type Hooks struct {
	commits         *prometheus.CounterVec
	ops             *prometheus.CounterVec
	rollbacks       *prometheus.CounterVec
	observerPanics  *prometheus.CounterVec
	layoutDuration  *prometheus.HistogramVec
	layoutNodes     *prometheus.HistogramVec
	layoutErrors    *prometheus.CounterVec
	cyclesBroken    prometheus.Counter
	cacheRequests   *prometheus.CounterVec
	cacheBytes      *prometheus.CounterVec
	transportBytes  *prometheus.CounterVec
	transportErrors prometheus.Counter
}

var (
	_ observability.DocumentHooks  = (*Hooks)(nil)
	_ observability.LayoutHooks    = (*Hooks)(nil)
	_ observability.CacheHooks     = (*Hooks)(nil)
	_ observability.TransportHooks = (*Hooks)(nil)
)

// New creates the collectors and registers them with reg.
// Canvas ids are never used as labels.
func New(reg prometheus.Registerer) *Hooks {
	f := promauto.With(reg)
	return &Hooks{
		commits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "document",
			Name:      "commits_total",
			Help:      "Committed document transactions",
		}, []string{"origin"}),
		ops: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "document",
			Name:      "ops_total",
			Help:      "Sequence operations carried by committed transactions",
		}, []string{"sequence"}),
		rollbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "document",
			Name:      "rollbacks_total",
			Help:      "Discarded document transactions",
		}, []string{"reason"}),
		observerPanics: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "document",
			Name:      "observer_panics_total",
			Help:      "Observer callbacks that panicked",
		}, []string{"observer"}),
		layoutDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "layout",
			Name:      "duration_seconds",
			Help:      "Layout computation latency in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"kind"}),
		layoutNodes: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "layout",
			Name:      "nodes",
			Help:      "Number of nodes per layout computation",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 7),
		}, []string{"kind"}),
		layoutErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "layout",
			Name:      "errors_total",
			Help:      "Layout computations that failed",
		}, []string{"kind"}),
		cyclesBroken: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "layout",
			Name:      "back_edges_total",
			Help:      "Back-edges ignored while ranking cyclic graphs",
		}),
		cacheRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Cache lookups by result",
		}, []string{"key_type", "result"}),
		cacheBytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "written_bytes_total",
			Help:      "Bytes written to the cache",
		}, []string{"key_type"}),
		transportBytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collab",
			Name:      "bytes_total",
			Help:      "Update payload bytes moved through the transport",
		}, []string{"direction"}),
		transportErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collab",
			Name:      "errors_total",
			Help:      "Transport failures",
		}),
	}
}

// Install registers h as the global document, layout, cache and transport hooks.
func (h *Hooks) Install() {
	observability.SetDocumentHooks(h)
	observability.SetLayoutHooks(h)
	observability.SetCacheHooks(h)
	observability.SetTransportHooks(h)
}

func (h *Hooks) OnCommit(_ string, nodeOps, edgeOps int, remote bool) {
	origin := "local"
	if remote {
		origin = "remote"
	}
	h.commits.WithLabelValues(origin).Inc()
	h.ops.WithLabelValues("nodes").Add(float64(nodeOps))
	h.ops.WithLabelValues("edges").Add(float64(edgeOps))
}

func (h *Hooks) OnRollback(_ string, err error) {
	reason := "error"
	if err == nil {
		reason = "unknown"
	}
	h.rollbacks.WithLabelValues(reason).Inc()
}

func (h *Hooks) OnObserverPanic(_ string, observer string, _ any) {
	h.observerPanics.WithLabelValues(observer).Inc()
}

func (h *Hooks) OnLayoutStart(_ context.Context, kind string, nodeCount int) {
	h.layoutNodes.WithLabelValues(kind).Observe(float64(nodeCount))
}

func (h *Hooks) OnLayoutComplete(_ context.Context, kind string, d time.Duration, err error) {
	h.layoutDuration.WithLabelValues(kind).Observe(d.Seconds())
	if err != nil {
		h.layoutErrors.WithLabelValues(kind).Inc()
	}
}

func (h *Hooks) OnCycleBroken(_ context.Context, backEdges int) {
	h.cyclesBroken.Add(float64(backEdges))
}

func (h *Hooks) OnCacheHit(_ context.Context, keyType string) {
	h.cacheRequests.WithLabelValues(keyType, "hit").Inc()
}

func (h *Hooks) OnCacheMiss(_ context.Context, keyType string) {
	h.cacheRequests.WithLabelValues(keyType, "miss").Inc()
}

func (h *Hooks) OnCacheSet(_ context.Context, keyType string, size int) {
	h.cacheBytes.WithLabelValues(keyType).Add(float64(size))
}

func (h *Hooks) OnPublish(_ context.Context, _ string, size int) {
	h.transportBytes.WithLabelValues("out").Add(float64(size))
}

func (h *Hooks) OnReceive(_ context.Context, _ string, size int) {
	h.transportBytes.WithLabelValues("in").Add(float64(size))
}

func (h *Hooks) OnTransportError(_ context.Context, _ string, err error) {
	if err == nil {
		return
	}
	h.transportErrors.Inc()
}

// String is used in debug logs.
func (h *Hooks) String() string {
	return fmt.Sprintf("prom.Hooks{namespace=%s}", namespace)
}
