// Package orchestration drives consensus experiments.
//
// An experiment starts a network of replicas, makes a random subset of them fault-prone,
// launches every replica and, once the run window has elapsed, puts every replica except
// a single surviving leader on hold.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/relab/ofcons"
	"github.com/relab/ofcons/internal/config"
	"github.com/relab/ofcons/logging"
	"github.com/relab/ofcons/metrics"
	"github.com/relab/ofcons/network"
	"github.com/relab/ofcons/replica"
	"golang.org/x/exp/rand"
	"golang.org/x/time/rate"
)

// ErrDisagreement is returned when two replicas decided different values.
var ErrDisagreement = errors.New("replicas decided different values")

// Experiment holds the settings of a single run.
type Experiment struct {
	Config config.ExperimentConfig

	Logger        logging.Logger
	MetricsLogger metrics.Logger
	// Registerer receives the Prometheus collectors of the run, if set.
	Registerer prometheus.Registerer
	// LogDest is where the replicas log to. Defaults to stderr.
	LogDest io.Writer
}

// Result is the outcome of an experiment.
type Result struct {
	RunID string
	Seed  int64
	// Leader is the replica that was not put on hold, or ofcons.NoID if every replica was fault-prone.
	Leader ofcons.ID
	// FaultProne lists the replicas that were made fault-prone, in the order they were chosen.
	FaultProne []ofcons.ID
	Nodes      []replica.Status
	Decided    int
	Value      ofcons.Value
	Agreement  bool
	Latency    metrics.LatencyStats
}

// Silent returns the number of replicas that crashed.
func (r *Result) Silent() (n int) {
	for _, s := range r.Nodes {
		if s.Silent {
			n++
		}
	}
	return n
}

// Run runs the experiment. It returns ErrDisagreement, along with the result,
// if two replicas decided different values.
func (e *Experiment) Run(ctx context.Context) (*Result, error) {
	cfg := e.Config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if e.Logger == nil {
		e.Logger = logging.New("driver")
	}
	if e.MetricsLogger == nil {
		e.MetricsLogger = metrics.NopLogger()
	}
	if !cfg.Tolerable() {
		e.Logger.Warnf("%d faulty of %d replicas: progress is not guaranteed", cfg.Faulty, cfg.Nodes)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rnd := rand.New(rand.NewSource(uint64(seed)))
	res := &Result{RunID: uuid.NewString(), Seed: seed, Leader: ofcons.NoID}
	e.Logger.Infof("run %s: %d replicas, %d faulty, seed %d", res.RunID, cfg.Nodes, cfg.Faulty, seed)

	confs := make([]replica.Config, cfg.Nodes)
	for i := range confs {
		confs[i] = replica.Config{
			ID:               ofcons.ID(i),
			N:                cfg.Nodes,
			CrashProbability: cfg.CrashProbability,
			RetryInterval:    cfg.RetryInterval,
			RetryJitter:      cfg.RetryJitter,
			ValueWeights:     cfg.ValueWeights,
			Seed:             rnd.Int63(),
		}
	}

	var (
		netOpts    []network.Option
		collectors *metrics.Collectors
	)
	if e.Registerer != nil {
		collectors = metrics.NewCollectors(e.Registerer)
		netOpts = append(netOpts, network.WithObserver(collectors.ObserveMessage))
	}
	if e.LogDest != nil {
		netOpts = append(netOpts, network.WithLogDestination(e.LogDest))
	}
	net, err := network.New(confs, netOpts...)
	if err != nil {
		return nil, err
	}
	recorder := metrics.NewRecorder(res.RunID, collectors, e.MetricsLogger, e.Logger)
	for i := 0; i < net.Size(); i++ {
		recorder.Attach(net.Replica(ofcons.ID(i)).EventLoop())
	}

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		net.Run(runCtx)
		close(done)
	}()
	defer func() {
		stop()
		<-done
	}()

	start := time.Now()
	run, err := metrics.NewRunRecord(metrics.RunInfo{RunID: res.RunID, Nodes: cfg.Nodes, Faulty: cfg.Faulty, Start: start})
	if err != nil {
		return nil, err
	}
	e.MetricsLogger.Log(run)

	net.Broadcast(ofcons.MembershipMsg{Peers: net.Membership()})
	net.Broadcast(ofcons.StartTimeMsg{Time: start})

	order := net.Membership().IDs()
	rnd.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	res.FaultProne = append([]ofcons.ID(nil), order[:cfg.Faulty]...)
	for _, id := range res.FaultProne {
		net.Send(id, ofcons.CrashMsg{})
	}
	net.Broadcast(ofcons.LaunchMsg{})

	if err := sleep(ctx, cfg.Duration); err != nil {
		return nil, err
	}

	if cfg.Faulty < len(order) {
		res.Leader = order[cfg.Faulty]
		e.Logger.Infof("leader: %v", res.Leader)
	} else {
		e.Logger.Warn("every replica is fault-prone, there is no leader")
	}
	for _, id := range order {
		if id != res.Leader {
			net.Send(id, ofcons.HoldMsg{})
		}
	}

	res.Nodes, err = e.settle(ctx, net)
	if err != nil {
		return nil, err
	}
	res.Latency = recorder.Latency()
	if err := summarize(res); err != nil {
		return res, err
	}
	e.Logger.Infof("%d of %d replicas decided %d, %d crashed (latency %v)", res.Decided, cfg.Nodes, res.Value, res.Silent(), &res.Latency)
	return res, nil
}

// settle waits until every live replica has decided or the settle window has elapsed,
// and returns the final status of every replica.
func (e *Experiment) settle(ctx context.Context, net *network.Network) ([]replica.Status, error) {
	deadline := time.Now().Add(e.Config.Settle)
	polls := rate.NewLimiter(rate.Every(e.Config.RetryInterval), 1)
	for {
		if err := polls.Wait(ctx); err != nil {
			return nil, err
		}
		statuses, err := net.Status(ctx)
		if err != nil {
			return nil, err
		}
		if allLiveDecided(statuses) || !time.Now().Before(deadline) {
			return statuses, nil
		}
	}
}

func allLiveDecided(statuses []replica.Status) bool {
	for _, s := range statuses {
		if !s.Silent && !s.Decided {
			return false
		}
	}
	return true
}

func summarize(res *Result) error {
	res.Agreement = true
	for _, s := range res.Nodes {
		if !s.Decided {
			continue
		}
		if res.Decided > 0 && s.Decision != res.Value {
			res.Agreement = false
		}
		if res.Decided == 0 {
			res.Value = s.Decision
		}
		res.Decided++
	}
	if !res.Agreement {
		return ErrDisagreement
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
