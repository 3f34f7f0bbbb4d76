package oracle

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getCounterValue(counter *prometheus.CounterVec, labels ...string) float64 {
	m := &dto.Metric{}
	if err := counter.WithLabelValues(labels...).Write(m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

func TestRegisterMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	RegisterMetrics(reg)

	EvaluationsTotal.WithLabelValues("allow").Inc()
	ArticleResultsTotal.WithLabelValues("A1", "pass").Inc()
	EvaluationDuration.WithLabelValues().Observe(0.001)

	families, err := reg.Gather()
	require.NoError(t, err)

	expected := map[string]bool{
		"trustcore_oracle_evaluations_total":           false,
		"trustcore_oracle_article_results_total":       false,
		"trustcore_oracle_evaluation_duration_seconds": false,
	}
	for _, f := range families {
		if _, ok := expected[f.GetName()]; ok {
			expected[f.GetName()] = true
		}
	}
	for name, found := range expected {
		assert.True(t, found, "metric %q not registered", name)
	}

	EvaluationsTotal.Reset()
	ArticleResultsTotal.Reset()
	EvaluationDuration.Reset()
}

func TestObserveRecordsRecommendationAndArticles(t *testing.T) {
	EvaluationsTotal.Reset()
	ArticleResultsTotal.Reset()

	verdict := Verdict{
		Passed:         []ArticleResult{{ArticleID: ArticleA1, Status: StatusPass}},
		Warnings:       []ArticleResult{{ArticleID: ArticleA3, Status: StatusWarning}},
		Violations:     []ArticleResult{{ArticleID: ArticleA5, Status: StatusViolation}},
		Recommendation: RecommendationBlock,
	}
	Observe(verdict)

	assert.Equal(t, float64(1), getCounterValue(EvaluationsTotal, "block"))
	assert.Equal(t, float64(1), getCounterValue(ArticleResultsTotal, "A1", "pass"))
	assert.Equal(t, float64(1), getCounterValue(ArticleResultsTotal, "A3", "warning"))
	assert.Equal(t, float64(1), getCounterValue(ArticleResultsTotal, "A5", "violation"))

	EvaluationsTotal.Reset()
	ArticleResultsTotal.Reset()
}
