package orchestration

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/relab/ofcons"
	"github.com/relab/ofcons/internal/config"
	"github.com/relab/ofcons/logging"
	"github.com/relab/ofcons/metrics"
	"github.com/relab/ofcons/metrics/plotting"
	"github.com/relab/ofcons/replica"
)

func testConfig(nodes, faulty int) config.ExperimentConfig {
	cfg := config.Default()
	cfg.Nodes = nodes
	cfg.Faulty = faulty
	cfg.Duration = 200 * time.Millisecond
	cfg.Settle = 2 * time.Second
	cfg.RetryInterval = 10 * time.Millisecond
	cfg.RetryJitter = 10 * time.Millisecond
	cfg.Seed = 1
	return cfg
}

func TestExperiment(t *testing.T) {
	reg := prometheus.NewRegistry()
	var buf bytes.Buffer
	mLogger, err := metrics.NewJSONLogger(&buf, logging.Nop())
	if err != nil {
		t.Fatal(err)
	}
	e := &Experiment{
		Config:        testConfig(5, 2),
		Logger:        logging.Nop(),
		MetricsLogger: mLogger,
		Registerer:    reg,
		LogDest:       io.Discard,
	}
	res, err := e.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if err := mLogger.Close(); err != nil {
		t.Fatal(err)
	}

	if len(res.FaultProne) != 2 {
		t.Errorf("%d fault-prone replicas, want 2", len(res.FaultProne))
	}
	for _, id := range res.FaultProne {
		if id == res.Leader {
			t.Errorf("leader %v is fault-prone", id)
		}
	}
	if !res.Agreement {
		t.Error("replicas disagree")
	}
	if res.Decided < 3 {
		t.Errorf("%d replicas decided, want at least 3", res.Decided)
	}
	for _, s := range res.Nodes {
		if !s.Silent && !s.Decided {
			t.Errorf("live replica %v did not decide", s.ID)
		}
		if s.ID != res.Leader && !s.Silent && !s.Hold {
			t.Errorf("replica %v was not put on hold", s.ID)
		}
	}
	if res.RunID == "" {
		t.Error("missing run id")
	}
	// decisions are counted by the replicas' event loops and may trail the collected status
	if got := counterSum(t, reg, "ofcons_decisions_total"); got < 1 || got > float64(len(res.Nodes)) {
		t.Errorf("decisions metric = %v", got)
	}
	if n, err := testutil.GatherAndCount(reg, "ofcons_messages_total"); err != nil || n == 0 {
		t.Errorf("no messages were counted (err: %v)", err)
	}

	p := plotting.NewLatencyPlot()
	if err := plotting.NewReader(&buf, p).ReadAll(); err != nil {
		t.Fatal(err)
	}
	if len(p.Decisions()) == 0 {
		t.Error("no decisions in the measurement log")
	}
}

// counterSum returns the sum of all series of the named counter in reg.
func counterSum(t *testing.T, reg *prometheus.Registry, name string) (sum float64) {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			sum += m.GetCounter().GetValue()
		}
	}
	return sum
}

func TestExperimentWithoutQuorum(t *testing.T) {
	cfg := testConfig(4, 2)
	cfg.CrashProbability = 1
	cfg.Duration = 100 * time.Millisecond
	cfg.Settle = 100 * time.Millisecond
	e := &Experiment{Config: cfg, Logger: logging.Nop(), LogDest: io.Discard}
	res, err := e.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Decided != 0 {
		t.Errorf("%d replicas decided without a quorum", res.Decided)
	}
	if res.Silent() != 2 {
		t.Errorf("%d replicas crashed, want 2", res.Silent())
	}
}

func TestExperimentWithBareMajority(t *testing.T) {
	cfg := testConfig(5, 2)
	cfg.CrashProbability = 1
	e := &Experiment{Config: cfg, Logger: logging.Nop(), LogDest: io.Discard}
	res, err := e.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Silent() != 2 {
		t.Errorf("%d replicas crashed, want 2", res.Silent())
	}
	if res.Decided != 3 {
		t.Errorf("%d replicas decided, want 3", res.Decided)
	}
	if !res.Agreement {
		t.Error("replicas disagree")
	}
	for _, id := range res.FaultProne {
		if !res.Nodes[id].Silent {
			t.Errorf("fault-prone replica %v did not crash", id)
		}
	}
}

func TestExperimentReproducible(t *testing.T) {
	run := func() *Result {
		cfg := testConfig(7, 3)
		cfg.Duration = 50 * time.Millisecond
		e := &Experiment{Config: cfg, Logger: logging.Nop(), LogDest: io.Discard}
		res, err := e.Run(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		return res
	}
	a, b := run(), run()
	if a.Leader != b.Leader {
		t.Errorf("same seed chose leaders %v and %v", a.Leader, b.Leader)
	}
	for i := range a.FaultProne {
		if a.FaultProne[i] != b.FaultProne[i] {
			t.Errorf("same seed chose fault-prone replicas %v and %v", a.FaultProne, b.FaultProne)
			break
		}
	}
}

func TestExperimentErrors(t *testing.T) {
	cfg := testConfig(3, 5)
	e := &Experiment{Config: cfg, Logger: logging.Nop(), LogDest: io.Discard}
	if _, err := e.Run(context.Background()); err == nil {
		t.Error("expected an error for an invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e.Config = testConfig(3, 1)
	if _, err := e.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want %v", err, context.Canceled)
	}
}

func TestSummarize(t *testing.T) {
	decided := func(id ofcons.ID, v ofcons.Value) replica.Status {
		s := replica.Status{}
		s.ID, s.Decided, s.Decision = id, true, v
		return s
	}
	res := &Result{Nodes: []replica.Status{decided(0, 1), {}, decided(2, 1)}}
	if err := summarize(res); err != nil || res.Decided != 2 || res.Value != 1 {
		t.Errorf("summarize() = %v, decided %d value %d", err, res.Decided, res.Value)
	}
	res = &Result{Nodes: []replica.Status{decided(0, 1), decided(1, 0)}}
	if err := summarize(res); !errors.Is(err, ErrDisagreement) || res.Agreement {
		t.Errorf("summarize() = %v, want %v", err, ErrDisagreement)
	}
}
