package metrics

import (
	"errors"
	"fmt"
	"slices"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vexxhost/tempest-pushgateway/types"
)

const (
	MetricsNamespace = "tempest"

	InstanceLabel = "instance"
	// ResultLabel carries the enum state, named after the metric as
	// Prometheus enum metrics are.
	ResultLabel = MetricsNamespace + "_last_run_result"
)

var ErrMissingTimestamps = errors.New("test has no start or end timestamp")

// Registry holds the per-test metrics of a single run. It is not safe for
// concurrent use.
type Registry struct {
	log log.Logger
	reg *prometheus.Registry

	lastRunResult   *prometheus.GaugeVec
	lastRunUnixtime *prometheus.GaugeVec
	lastRunTime     *prometheus.GaugeVec

	seen map[string]struct{}
}

// NewRegistry creates an empty registry backed by its own
// prometheus.Registry.
func NewRegistry(logger log.Logger) *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		log: logger,
		reg: reg,
		lastRunResult: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Name:      "last_run_result",
			Help:      "Result of the last Tempest run",
		}, []string{
			InstanceLabel,
			ResultLabel,
		}),
		lastRunUnixtime: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Name:      "last_run_unixtime",
			Help:      "Time of the last Tempest test run",
		}, []string{
			InstanceLabel,
		}),
		lastRunTime: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Name:      "last_run_time",
			Help:      "Run-time for the last Tempest run",
		}, []string{
			InstanceLabel,
		}),
		seen: make(map[string]struct{}),
	}
}

// Record writes the three values for a completed test. A test reported
// twice overwrites its earlier values.
func (r *Registry) Record(rec *types.TestOutcome) error {
	if rec.ID == "" {
		return errors.New("test outcome has no id")
	}
	if !rec.Outcome.IsValid() {
		return fmt.Errorf("test %s: invalid outcome %q", rec.ID, rec.Outcome)
	}
	if !rec.HasTimestamps() {
		return fmt.Errorf("test %s: %w", rec.ID, ErrMissingTimestamps)
	}

	if _, ok := r.seen[rec.ID]; ok {
		r.log.Warn("test reported more than once, overwriting", "test", rec.ID, "outcome", rec.Outcome)
	}
	r.seen[rec.ID] = struct{}{}

	end := float64(rec.End.UnixNano()) / 1e9
	r.lastRunUnixtime.WithLabelValues(rec.ID).Set(end)
	r.lastRunTime.WithLabelValues(rec.ID).Set(rec.Duration().Seconds())
	for _, state := range types.Outcomes {
		value := 0.0
		if state == rec.Outcome {
			value = 1
		}
		r.lastRunResult.WithLabelValues(rec.ID, string(state)).Set(value)
	}

	r.log.Debug("metric set",
		"m", "last_run_result",
		"test", rec.ID,
		"result", rec.Outcome,
		"duration", rec.Duration())
	return nil
}

// Instances returns the sorted test ids recorded so far.
func (r *Registry) Instances() []string {
	ids := make([]string, 0, len(r.seen))
	for id := range r.seen {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Len is the number of distinct tests recorded.
func (r *Registry) Len() int {
	return len(r.seen)
}

// Gatherer exposes the underlying registry for pushing or scraping.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}
