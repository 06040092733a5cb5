package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ArticlesGenerated counts finished generation jobs by outcome (completed/failed)
var ArticlesGenerated = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "lamontai_articles_generated_total",
		Help: "Total number of article generation jobs finished",
	},
	[]string{"outcome"},
)

// GenerationLatency records latency distribution for full article generation
var GenerationLatency = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "lamontai_generation_latency_seconds",
		Help:    "Latency in seconds to generate one article end to end",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	},
)

// LLMTokens counts tokens reported by the completion API by kind (prompt/completion)
var LLMTokens = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "lamontai_llm_tokens_total",
		Help: "Total tokens consumed against the completion API",
	},
	[]string{"kind"},
)

// LLMRequestRetries counts retried completion API calls
var LLMRequestRetries = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "lamontai_llm_request_retries_total",
		Help: "Total completion API requests that were retried",
	},
)

// CacheOps counts cache operations by layer (redis/memory) and result (hit/miss/error)
var CacheOps = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "lamontai_cache_ops_total",
		Help: "Cache operations by layer and result",
	},
	[]string{"layer", "result"},
)

// RateLimited counts requests rejected by the per-plan limiter
var RateLimited = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "lamontai_rate_limited_total",
		Help: "Requests rejected with 429 by route class",
	},
	[]string{"class"},
)

// Database connection pool metrics
var (
	DBOpenConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lamontai_db_open_connections",
			Help: "Number of open connections in the DB pool",
		},
		[]string{"db"},
	)

	DBIdleConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lamontai_db_idle_connections",
			Help: "Number of idle connections in the DB pool",
		},
		[]string{"db"},
	)

	DBInUseConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lamontai_db_in_use_connections",
			Help: "Number of in-use connections in the DB pool",
		},
		[]string{"db"},
	)
)

func init() {
	prometheus.MustRegister(ArticlesGenerated, GenerationLatency, LLMTokens, LLMRequestRetries)
	prometheus.MustRegister(CacheOps, RateLimited)
	prometheus.MustRegister(DBOpenConns, DBIdleConns, DBInUseConns)
}
