package stats

import (
	"context"
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus keeps stats as metrics labeled by stat name.
type Prometheus struct {
	registry *prom.Registry
	counts   *prom.CounterVec
	values   *prom.SummaryVec
}

// NewPrometheus registers its metrics in reg, or in a new registry when reg is nil.
func NewPrometheus(reg *prom.Registry) *Prometheus {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	p := &Prometheus{
		registry: reg,
		counts: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "pblbuild",
			Name:      "stat_count_total",
			Help:      "Counted pipeline events by stat name",
		}, []string{"stat"}),
		values: prom.NewSummaryVec(prom.SummaryOpts{
			Namespace:  "pblbuild",
			Name:       "stat_value",
			Help:       "Recorded pipeline values by stat name",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}, []string{"stat"}),
	}
	reg.MustRegister(p.counts, p.values)
	return p
}

func (p *Prometheus) CountMetric(_ context.Context, name string, count int) (int, error) {
	p.counts.WithLabelValues(name).Add(float64(count))
	return http.StatusOK, nil
}

func (p *Prometheus) ValueMetric(_ context.Context, name string, value float64) (int, error) {
	p.values.WithLabelValues(name).Observe(value)
	return http.StatusOK, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
