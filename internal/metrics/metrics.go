// Package metrics counts lifecycle events and serves them over /metrics.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ampere/internal/core"
)

// Collector is an event sink incrementing one counter per event kind.
type Collector struct {
	events *prometheus.CounterVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ampere_events_total",
				Help: "Total lifecycle events emitted, by kind",
			},
			[]string{"kind"},
		),
	}
	reg.MustRegister(c.events)
	return c
}

func (c *Collector) Publish(_ context.Context, events []core.Event) error {
	for _, e := range events {
		c.events.WithLabelValues(e.Kind()).Inc()
	}
	return nil
}

func (c *Collector) Close() error { return nil }

// Serve exposes the registry on /metrics until the context ends.
func Serve(ctx context.Context, addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
