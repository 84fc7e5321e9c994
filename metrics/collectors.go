package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/relab/ofcons"
	"github.com/relab/ofcons/network"
)

const namespace = "ofcons"

// Collectors holds the Prometheus metrics of an experiment.
type Collectors struct {
	Messages        *prometheus.CounterVec
	Proposals       prometheus.Counter
	Aborts          prometheus.Counter
	Decisions       *prometheus.CounterVec
	Crashes         prometheus.Counter
	DecisionLatency prometheus.Histogram
}

// NewCollectors creates the collectors and registers them with reg.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	factory := promauto.With(reg)
	return &Collectors{
		Messages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Messages delivered to replicas, by type",
		}, []string{"type"}),
		Proposals: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proposals_total",
			Help:      "Rounds started by all replicas",
		}),
		Aborts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aborts_total",
			Help:      "Rounds aborted",
		}),
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Decisions, by decided value",
		}, []string{"value"}),
		Crashes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crashes_total",
			Help:      "Replicas that went silent",
		}),
		DecisionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decision_latency_seconds",
			Help:      "Time from the start of the run until a replica decides",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
	}
}

// ObserveMessage counts a delivered message. It can be used as a network.Observer.
func (c *Collectors) ObserveMessage(_ ofcons.ID, msg any) {
	c.Messages.WithLabelValues(network.MessageType(msg)).Inc()
}

// Serve exposes the metrics gathered by g at addr/metrics until ctx is canceled.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errC := make(chan error, 1)
	go func() {
		errC <- srv.ListenAndServe()
	}()
	select {
	case err := <-errC:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errC; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
