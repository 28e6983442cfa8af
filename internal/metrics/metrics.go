// Package metrics exposes Prometheus instrumentation for the alert engine.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

var (
	CyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dipsentinel_cycles_total",
		Help: "The total number of completed evaluation cycles",
	})
	CyclesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dipsentinel_cycles_skipped_total",
		Help: "Cycles not started because the previous one was still running",
	})
	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dipsentinel_cycle_duration_seconds",
		Help:    "Wall time of one evaluation cycle",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})
	SnapshotFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dipsentinel_snapshot_fetches_total",
		Help: "Snapshot fetches by result",
	}, []string{"result"})
	IntentsFired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dipsentinel_intents_total",
		Help: "Notification intents produced, by alert class",
	}, []string{"class"})
	DeliveryFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dipsentinel_delivery_failures_total",
		Help: "Intents whose delivery failed after state was persisted",
	})
	PersistenceFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dipsentinel_persistence_failures_total",
		Help: "Records whose state could not be persisted; their intents were dropped",
	})
	RulesEvaluated = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dipsentinel_rules_evaluated",
		Help: "Rule records evaluated in the last cycle",
	})
)

// Serve exposes /metrics and /health on port until ctx is cancelled.
func Serve(ctx context.Context, port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.WithField("port", port).Info("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
