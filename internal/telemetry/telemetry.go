// Package telemetry exposes counters for the degradation paths the UI
// never sees: crypto fallback, unreadable stored sessions, storage
// fallback, gateway failures, and forced session teardowns. These paths
// are silent by contract, so the counters are the only visibility.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"codeberg.org/algorave/passage/internal/logger"
)

var (
	// incremented when a value is persisted unencrypted because sealing failed
	CryptoFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "passage_crypto_fallback_total",
		Help: "Writes that fell back to unencrypted serialization.",
	})

	// incremented when a stored blob cannot be decrypted or parsed
	DecryptFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "passage_decrypt_failure_total",
		Help: "Stored blobs discarded as unreadable.",
	})

	// incremented when the session store degrades to its plaintext path
	StorageFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "passage_storage_fallback_total",
		Help: "Session store operations that used the unencrypted fallback path.",
	})

	// incremented per failed gateway call, labeled by operation family
	GatewayErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "passage_gateway_error_total",
		Help: "Failed auth gateway calls by operation.",
	}, []string{"operation"})

	// incremented when a 401 forces a global session teardown
	ForcedTeardowns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "passage_forced_teardown_total",
		Help: "Session teardowns forced by an unauthorized response.",
	})
)

// starts the debug metrics listener when an address is configured.
// Best effort: a client must keep working without it.
func Serve(addr string) {
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("metrics listener started", "addr", addr)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.ErrorErr(err, "metrics listener stopped")
		}
	}()
}
