package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const namespace = "capwatch"

// Cycle outcomes.
const (
	OutcomeOK           = "ok"
	OutcomeIdle         = "idle"
	OutcomeSkipped      = "skipped"
	OutcomeNotFound     = "not_found"
	OutcomeMalformed    = "malformed"
	OutcomeDivideByZero = "division_by_zero"
	OutcomeStoreError   = "store_error"
)

// Delivery results.
const (
	DeliverySent   = "sent"
	DeliveryFailed = "failed"
	DeliveryPanic  = "panic"
)

// Metrics holds the dispatcher collectors. A nil *Metrics records nothing.
type Metrics struct {
	Cycles            *prometheus.CounterVec
	Deliveries        *prometheus.CounterVec
	Retired           *prometheus.CounterVec
	AvailableCapacity *prometheus.GaugeVec
	CycleDuration     *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg when reg is non-nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Dispatch cycles by asset and outcome.",
		}, []string{"asset", "outcome"}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Notification attempts by asset and result.",
		}, []string{"asset", "result"}),
		Retired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_retired_total",
			Help:      "Alerts deleted after a delivery attempt.",
		}, []string{"asset"}),
		AvailableCapacity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "available_capacity",
			Help:      "Last observed available deposit capacity in human units.",
		}, []string{"asset"}),
		CycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one asset cycle.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"asset"}),
	}
	if reg != nil {
		reg.MustRegister(m.Cycles, m.Deliveries, m.Retired, m.AvailableCapacity, m.CycleDuration)
	}
	return m
}

// ObserveCycle records one finished cycle.
func (m *Metrics) ObserveCycle(asset, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Cycles.WithLabelValues(asset, outcome).Inc()
	m.CycleDuration.WithLabelValues(asset).Observe(elapsed.Seconds())
}

// ObserveDelivery records one notification attempt.
func (m *Metrics) ObserveDelivery(asset, result string) {
	if m == nil {
		return
	}
	m.Deliveries.WithLabelValues(asset, result).Inc()
}

// ObserveRetired adds n retired alerts.
func (m *Metrics) ObserveRetired(asset string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.Retired.WithLabelValues(asset).Add(float64(n))
}

// SetAvailable publishes the latest capacity reading.
func (m *Metrics) SetAvailable(asset string, human decimal.Decimal) {
	if m == nil {
		return
	}
	m.AvailableCapacity.WithLabelValues(asset).Set(human.InexactFloat64())
}

// Serve exposes gatherer on addr at /metrics until ctx is cancelled.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("listen", addr).Msg("metrics listener started")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
