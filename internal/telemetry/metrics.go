// Copyright (c) 2026 Keymaster Team
// gitkeeper - SSH credential management for gitolite
// This source code is licensed under the MIT license found in the LICENSE file.

// Package telemetry registers the Prometheus metrics of gitkeeper.
//
// Metrics are registered against the default registry and exposed by
// `gitkeeper resync run --metrics-listen :9090` on /metrics.
package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CredentialsCreatedTotal counts committed credentials by kind (user, deploy).
	CredentialsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gitkeeper_credentials_created_total",
			Help: "Total number of SSH credentials committed, by kind.",
		},
		[]string{"kind"},
	)

	// CredentialsDestroyedTotal counts destroyed credentials.
	CredentialsDestroyedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gitkeeper_credentials_destroyed_total",
			Help: "Total number of SSH credentials destroyed.",
		},
	)

	// ValidationFailuresTotal counts rejected saves by offending field.
	ValidationFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gitkeeper_validation_failures_total",
			Help: "Total number of validation failures, by field.",
		},
		[]string{"field"},
	)

	// KeyConflictsTotal counts payload collisions by conflict reason.
	KeyConflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gitkeeper_key_conflicts_total",
			Help: "Total number of rejected keys whose payload is already in use, by reason.",
		},
		[]string{"reason"},
	)

	// ResyncDeliveriesTotal counts resync event deliveries by command and result.
	ResyncDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gitkeeper_resync_deliveries_total",
			Help: "Total number of resync event deliveries, by command and result (ok, failed).",
		},
		[]string{"command", "result"},
	)

	// ResyncPending is the number of undelivered events seen by the last flush.
	ResyncPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gitkeeper_resync_pending_events",
			Help: "Undelivered resync events found by the most recent dispatch pass.",
		},
	)
)

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
