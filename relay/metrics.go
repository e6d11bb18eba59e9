package relay

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/franksops/filerelay/engine"
)

// PrometheusObserver exports relay metrics to Prometheus.
type PrometheusObserver struct {
	relays   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	bytes    prometheus.Counter
	inFlight prometheus.Gauge
}

var _ Observer = (*PrometheusObserver)(nil)

// NewPrometheusObserver registers the relay metrics on reg. Metrics already
// registered by another observer are shared.
func NewPrometheusObserver(namespace string, reg prometheus.Registerer) (*PrometheusObserver, error) {
	if namespace == "" {
		namespace = "filerelay"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	var err error
	o := &PrometheusObserver{}
	if o.relays, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "relays_total",
		Help:      "Finished relays by status and error kind.",
	}, []string{"status", "error_kind"})); err != nil {
		return nil, fmt.Errorf("register relays counter: %w", err)
	}
	if o.duration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "relay_duration_seconds",
		Help:      "Wall time of a relay from size check to result.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"status"})); err != nil {
		return nil, fmt.Errorf("register relay histogram: %w", err)
	}
	if o.bytes, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "relayed_bytes_total",
		Help:      "Bytes forwarded to the destination, including failed relays.",
	})); err != nil {
		return nil, fmt.Errorf("register relayed bytes counter: %w", err)
	}
	if o.inFlight, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "relays_in_flight",
		Help:      "Relays currently running.",
	})); err != nil {
		return nil, fmt.Errorf("register in-flight gauge: %w", err)
	}
	return o, nil
}

// register adds c to reg, or returns the collector registered before it.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (o *PrometheusObserver) RelayStarted(string, engine.FileReference) {
	o.inFlight.Inc()
}

func (o *PrometheusObserver) StateChanged(string, State) {}

func (o *PrometheusObserver) Progress(string, int64, int64) {}

func (o *PrometheusObserver) RelayFinished(res Result) {
	o.inFlight.Dec()
	o.relays.WithLabelValues(string(res.Status), string(res.Kind())).Inc()
	o.duration.WithLabelValues(string(res.Status)).Observe(res.Duration().Seconds())
	o.bytes.Add(float64(res.BytesTransferred))
}
