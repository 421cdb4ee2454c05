// Package metrics exposes classifier system activity to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"xcsgo/internal/xcs"
)

const namespace = "xcs"

var (
	// steps counts engine steps.
	// Labels: run, phase (explore, exploit)
	steps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "steps_total",
		Help:      "Classifier system steps by phase",
	}, []string{"run", "phase"})

	covered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "covered_total",
		Help:      "Classifiers created by covering",
	}, []string{"run"})

	geneticAlgorithm = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "ga_total",
		Help:      "Genetic algorithm invocations",
	}, []string{"run"})

	subsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "subsumed_total",
		Help:      "Micro-classifiers absorbed by subsumption",
	}, []string{"run"})

	// deleted counts deletions.
	// Labels: run, kind (micro when numerosity dropped, macro when the entry went away)
	deleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "deleted_total",
		Help:      "Deletions by kind",
	}, []string{"run", "kind"})

	populationSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "population_size",
		Help:      "Micro-classifiers in the population",
	}, []string{"run"})

	macroSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "macro_size",
		Help:      "Macro-classifiers in the population",
	}, []string{"run"})

	systemError = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "system_error",
		Help:      "Absolute prediction error of the last single-step problem",
	}, []string{"run"})

	// problems counts finished problems.
	// Labels: run, phase (learning, condensation, testing)
	problems = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "experiment",
		Name:      "problems_total",
		Help:      "Finished problems by phase",
	}, []string{"run", "phase"})

	problemSteps = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "experiment",
		Name:      "problem_steps",
		Help:      "Steps needed to finish a problem",
		Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 50, 100, 500, 1500},
	}, []string{"run"})
)

// Recorder forwards engine events of one run to the package collectors.
type Recorder struct {
	run string
}

var _ xcs.Observer = (*Recorder)(nil)

func NewRecorder(run string) *Recorder {
	return &Recorder{run: run}
}

func (r *Recorder) Covered(n int) {
	covered.WithLabelValues(r.run).Add(float64(n))
}

func (r *Recorder) GeneticAlgorithm() {
	geneticAlgorithm.WithLabelValues(r.run).Inc()
}

func (r *Recorder) Subsumed(n int) {
	subsumed.WithLabelValues(r.run).Add(float64(n))
}

func (r *Recorder) Deleted(entryRemoved bool) {
	kind := "micro"
	if entryRemoved {
		kind = "macro"
	}
	deleted.WithLabelValues(r.run, kind).Inc()
}

func (r *Recorder) Stepped(explore bool, size, macro int, err float64) {
	phase := "exploit"
	if explore {
		phase = "explore"
	}
	steps.WithLabelValues(r.run, phase).Inc()
	populationSize.WithLabelValues(r.run).Set(float64(size))
	macroSize.WithLabelValues(r.run).Set(float64(macro))
	systemError.WithLabelValues(r.run).Set(err)
}

// Problem records a finished problem.
func (r *Recorder) Problem(phase string, steps int) {
	problems.WithLabelValues(r.run, phase).Inc()
	problemSteps.WithLabelValues(r.run).Observe(float64(steps))
}

// Forget drops the gauges of the run once it is over.
func (r *Recorder) Forget() {
	populationSize.DeleteLabelValues(r.run)
	macroSize.DeleteLabelValues(r.run)
	systemError.DeleteLabelValues(r.run)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
