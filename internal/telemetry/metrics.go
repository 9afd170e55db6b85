package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Samehadar/telegram-bot/internal/logging"
	"github.com/Samehadar/telegram-bot/internal/telegram"
)

// ListenerMetrics exports listener progress. It implements telegram.Observer.
type ListenerMetrics struct {
	fetchFailures prometheus.Counter
	handled       prometheus.Counter
	lastUpdateID  prometheus.Gauge
	confirmed     prometheus.Gauge
}

var _ telegram.Observer = (*ListenerMetrics)(nil)

// NewListenerMetrics creates the collectors and registers them with reg.
func NewListenerMetrics(reg prometheus.Registerer) *ListenerMetrics {
	m := &ListenerMetrics{
		fetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "telegram",
			Subsystem: "listener",
			Name:      "fetch_failures_total",
			Help:      "getUpdates calls that failed and were retried.",
		}),
		handled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "telegram",
			Subsystem: "listener",
			Name:      "updates_handled_total",
			Help:      "Updates whose handler returned without error.",
		}),
		lastUpdateID: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "telegram",
			Subsystem: "listener",
			Name:      "last_update_id",
			Help:      "Id of the most recently handled update.",
		}),
		confirmed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "telegram",
			Subsystem: "listener",
			Name:      "confirmed_offset",
			Help:      "Last offset communicated to the Bot API.",
		}),
	}
	reg.MustRegister(m.fetchFailures, m.handled, m.lastUpdateID, m.confirmed)
	return m
}

func (m *ListenerMetrics) FetchFailed(error) {
	m.fetchFailures.Inc()
}

func (m *ListenerMetrics) UpdateHandled(updateID int64) {
	m.handled.Inc()
	m.lastUpdateID.Set(float64(updateID))
}

func (m *ListenerMetrics) Confirmed(offset int64) {
	m.confirmed.Set(float64(offset))
}

// Handler serves gatherer under /metrics and a liveness probe under /health.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", handleHealth)
	return mux
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "ok")
}

// Serve exposes Handler on addr until ctx is done.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer) error {
	srv := &http.Server{
		Handler:           Handler(gatherer),
		ReadHeaderTimeout: 10 * time.Second,
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listen: %w", err)
	}
	logging.L().Info("metrics listening", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
