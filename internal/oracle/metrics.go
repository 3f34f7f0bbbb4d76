package oracle

import "github.com/prometheus/client_golang/prometheus"

const (
	labelRecommendation = "recommendation"
	labelArticle        = "article"
	labelStatus         = "status"
)

// EvaluationsTotal counts Oracle evaluations by the recommendation they
// produced.
var EvaluationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "trustcore_oracle_evaluations_total",
		Help: "Total number of Trust Oracle evaluations by recommendation",
	},
	[]string{labelRecommendation},
)

// ArticleResultsTotal counts per-article outcomes across all evaluations.
var ArticleResultsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "trustcore_oracle_article_results_total",
		Help: "Total number of Trust Article check outcomes by article and status",
	},
	[]string{labelArticle, labelStatus},
)

// EvaluationDuration tracks wall-clock time spent in Evaluate.
var EvaluationDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "trustcore_oracle_evaluation_duration_seconds",
		Help:    "Duration of Trust Oracle evaluations",
		Buckets: prometheus.DefBuckets,
	},
	[]string{},
)

// RegisterMetrics registers all Oracle metrics with reg.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(EvaluationsTotal)
	reg.MustRegister(ArticleResultsTotal)
	reg.MustRegister(EvaluationDuration)
}

// Observe records verdict's recommendation and per-article outcomes. Kept
// separate from Evaluate so Evaluate itself stays free of metrics/global
// state and remains a pure function, per spec.md §4.4's purity
// requirement; callers that want metrics call Observe alongside Evaluate.
func Observe(verdict Verdict) {
	EvaluationsTotal.WithLabelValues(string(verdict.Recommendation)).Inc()
	for _, r := range verdict.Passed {
		ArticleResultsTotal.WithLabelValues(string(r.ArticleID), string(r.Status)).Inc()
	}
	for _, r := range verdict.Warnings {
		ArticleResultsTotal.WithLabelValues(string(r.ArticleID), string(r.Status)).Inc()
	}
	for _, r := range verdict.Violations {
		ArticleResultsTotal.WithLabelValues(string(r.ArticleID), string(r.Status)).Inc()
	}
}
