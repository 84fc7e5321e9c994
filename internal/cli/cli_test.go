package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/relab/ofcons"
	"github.com/relab/ofcons/consensus"
	"github.com/relab/ofcons/internal/config"
	"github.com/relab/ofcons/internal/orchestration"
	"github.com/relab/ofcons/logging"
	"github.com/relab/ofcons/metrics"
	"github.com/relab/ofcons/replica"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func TestRunFlagsDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	flags := pflag.NewFlagSet("run", pflag.ContinueOnError)
	addRunFlags(flags)
	if err := flags.Parse(nil); err != nil {
		t.Fatal(err)
	}
	if err := viper.BindPFlags(flags); err != nil {
		t.Fatal(err)
	}
	viper.Set("log-level", "info")

	cfg, err := config.NewViper()
	if err != nil {
		t.Fatal(err)
	}
	want := config.Default()
	if diff := cmp.Diff(&want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestRunFlags(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	flags := pflag.NewFlagSet("run", pflag.ContinueOnError)
	addRunFlags(flags)
	args := []string{"--nodes=5", "--faulty=2", "--duration=200ms", "--seed=42", "--value-weights=3,1"}
	if err := flags.Parse(args); err != nil {
		t.Fatal(err)
	}
	if err := viper.BindPFlags(flags); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.NewViper()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Nodes != 5 || cfg.Faulty != 2 || cfg.Duration != 200*time.Millisecond || cfg.Seed != 42 {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if diff := cmp.Diff([]uint{3, 1}, cfg.ValueWeights); diff != "" {
		t.Errorf("value weights mismatch (-want +got):\n%s", diff)
	}
}

func TestPrintResult(t *testing.T) {
	res := &orchestration.Result{
		RunID:      "run",
		Seed:       1,
		Leader:     1,
		FaultProne: []ofcons.ID{0},
		Nodes: []replica.Status{
			{Status: consensus.Status{ID: 0, Proposal: ofcons.Some(0)}, FaultProne: true, Silent: true},
			{Status: consensus.Status{ID: 1, Proposal: ofcons.Some(1), Decided: true, Decision: 1, Rounds: 2, Latency: time.Millisecond}},
			{Status: consensus.Status{ID: 2, Proposal: ofcons.Some(1), Decided: true, Decision: 1, Rounds: 1, Latency: 2 * time.Millisecond}},
		},
		Decided:   2,
		Value:     1,
		Agreement: true,
	}
	var buf bytes.Buffer
	printResult(&buf, res)
	out := buf.String()

	for _, want := range []string{"leader: p1", "2 of 3 replicas decided 1", "agreement: true"} {
		if !strings.Contains(out, want) {
			t.Errorf("output does not contain %q:\n%s", want, out)
		}
	}
	// two header lines, the table header, one row per node and the summary
	if got := strings.Count(out, "\n"); got != 7 {
		t.Errorf("got %d lines, want 7:\n%s", got, out)
	}
}

func TestPrintResultWithoutLeader(t *testing.T) {
	res := &orchestration.Result{Leader: ofcons.NoID}
	var buf bytes.Buffer
	printResult(&buf, res)
	out := buf.String()
	if !strings.Contains(out, "leader: none") || !strings.Contains(out, "no replica decided") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestPlot(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "measurements.json")
	f, err := os.Create(in)
	if err != nil {
		t.Fatal(err)
	}
	l, err := metrics.NewJSONLogger(f, logging.Nop())
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		rec, err := metrics.NewDecisionRecord("run", ofcons.DecisionEvent{
			ID:      ofcons.ID(i),
			Value:   0,
			Latency: time.Duration(i+1) * time.Millisecond,
			Time:    time.Now(),
		})
		if err != nil {
			t.Fatal(err)
		}
		l.Log(rec)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	hist := filepath.Join(dir, "hist.png")
	scatter := filepath.Join(dir, "scatter.png")
	plotBins, plotByReplica = 5, scatter
	t.Cleanup(func() { plotBins, plotByReplica = 20, "" })

	if err := runPlot([]string{in, hist}); err != nil {
		t.Fatal(err)
	}
	for _, file := range []string{hist, scatter} {
		if _, err := os.Stat(file); err != nil {
			t.Error(err)
		}
	}
}
