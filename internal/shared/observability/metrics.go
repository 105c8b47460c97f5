package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	ModulesResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pklsense_modules_resolved_total",
		Help: "Module resolutions by URI scheme and outcome.",
	}, []string{"scheme", "outcome"})

	FetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pklsense_fetch_seconds",
		Help:    "Time spent fetching remote module content.",
		Buckets: prometheus.DefBuckets,
	})

	NegativeCacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pklsense_negative_cache_entries",
		Help: "URIs remembered as unresolvable for the process lifetime.",
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pklsense_memo_hits_total",
		Help: "Memoization layer hits by cache kind.",
	}, []string{"kind"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pklsense_memo_misses_total",
		Help: "Memoization layer recomputations by cache kind.",
	}, []string{"kind"})

	MemberTableBuilds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pklsense_member_table_builds_total",
		Help: "Flattened member tables computed, including rebuilds after invalidation.",
	})

	AnalysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pklsense_analysis_seconds",
		Help:    "Time spent analyzing a single module.",
		Buckets: prometheus.DefBuckets,
	})

	WatcherEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pklsense_watcher_events_total",
		Help: "File system events received by the watcher.",
	})

	BuildsSuperseded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pklsense_builds_superseded_total",
		Help: "Analysis results discarded because the file version advanced mid-build.",
	})
)
