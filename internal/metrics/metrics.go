package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	LLMRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_llm_requests_total",
			Help: "Total number of model invocations by outcome.",
		},
		[]string{"model", "outcome"},
	)

	LLMRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assistant_llm_request_duration_seconds",
			Help:    "Model invocation duration in seconds, retries included.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 90},
		},
		[]string{"model"},
	)

	LLMRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_llm_retries_total",
			Help: "Total number of retried model requests.",
		},
		[]string{"model"},
	)

	MessagesHandledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_messages_handled_total",
			Help: "Total number of inbound chat updates by kind.",
		},
		[]string{"kind"},
	)

	EventLogErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_event_log_errors_total",
			Help: "Total number of failed event log operations.",
		},
		[]string{"op"},
	)
)

func init() {
	prometheus.MustRegister(
		LLMRequestsTotal,
		LLMRequestDuration,
		LLMRetriesTotal,
		MessagesHandledTotal,
		EventLogErrorsTotal,
	)
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, log zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
