package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/relab/ofcons"
	"github.com/relab/ofcons/internal/config"
	"github.com/relab/ofcons/internal/orchestration"
	"github.com/relab/ofcons/internal/profiling"
	"github.com/relab/ofcons/logging"
	"github.com/relab/ofcons/metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an experiment.",
	Long: `The run command runs a consensus experiment in a single process.
Every replica proposes a random value. After the configured duration,
every replica except a single correct leader is put on hold, and the
experiment waits for the remaining replicas to learn the decision.

Use '--output' to write the measurements to a JSON file that can be
plotted with 'ofcons plot', and '--metrics-addr' to expose Prometheus
metrics while the experiment runs.`,
	Run: func(_ *cobra.Command, _ []string) {
		runController()
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	addRunFlags(runCmd.Flags())
	cobra.CheckErr(viper.BindPFlags(runCmd.Flags()))
}

func addRunFlags(flags *pflag.FlagSet) {
	def := config.Default()

	flags.Int("nodes", def.Nodes, "number of replicas to run")
	flags.Int("faulty", def.Faulty, "number of replicas that may crash")
	flags.Duration("duration", def.Duration, "how long to run before putting all but the leader on hold")
	flags.Duration("settle", def.Settle, "how long to wait for the decision to reach every live replica after the hold")
	flags.Float64("crash-probability", def.CrashProbability, "probability that a fault-prone replica crashes on a given message")
	flags.Duration("retry-interval", def.RetryInterval, "period of the retry timer")
	flags.Duration("retry-jitter", def.RetryJitter, "upper bound on the random delay before a replica's first retry")
	flags.Int64("seed", def.Seed, "random number generator seed (0 picks a time-based seed)")
	flags.IntSlice("value-weights", []int{1, 1}, "relative probabilities of proposing each value")

	flags.String("output", "", "the file to write measurements to (disabled by default)")
	flags.String("metrics-addr", "", "address to expose Prometheus metrics on (disabled by default)")
	flags.String("cpu-profile", "", "file to write a cpu profile to")
	flags.String("mem-profile", "", "file to write a memory profile to")
	flags.String("trace", "", "file to write an execution trace to")
	flags.String("fgprof-profile", "", "file to write an fgprof profile to")
}

func runController() {
	cfg, err := config.NewViper()
	checkf("config error: %v", err)

	stopProfilers, err := profiling.Start(profiling.Paths{
		CPU:    cfg.CpuProfile,
		Mem:    cfg.MemProfile,
		Trace:  cfg.Trace,
		FgProf: cfg.FgProfProfile,
	})
	checkf("failed to start profilers: %v", err)
	defer func() { checkf("failed to stop profilers: %v", stopProfilers()) }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	res, err := runExperiment(ctx, cfg)
	if res != nil {
		printResult(os.Stdout, res)
	}
	checkf("failed to run experiment: %v", err)
}

func runExperiment(ctx context.Context, cfg *config.ExperimentConfig) (*orchestration.Result, error) {
	logger := logging.New("ctrl")
	experiment := orchestration.Experiment{
		Config: *cfg,
		Logger: logger,
	}

	if cfg.Output != "" {
		f, err := os.OpenFile(cfg.Output, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file: %w", err)
		}
		defer func() { checkf("failed to close output file: %v", f.Close()) }()

		wr := bufio.NewWriter(f)
		defer func() { checkf("failed to flush writer: %v", wr.Flush()) }()

		mLogger, err := metrics.NewJSONLogger(wr, logging.New("metrics"))
		if err != nil {
			return nil, err
		}
		defer func() { checkf("failed to close logger: %v", mLogger.Close()) }()
		experiment.MetricsLogger = mLogger
	}

	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		experiment.Registerer = reg

		srvCtx, stop := context.WithCancel(ctx)
		errC := make(chan error, 1)
		go func() { errC <- metrics.Serve(srvCtx, cfg.MetricsAddr, reg) }()
		defer func() {
			stop()
			if err := <-errC; err != nil {
				logger.Errorf("metrics server: %v", err)
			}
		}()
		logger.Infof("serving metrics on %s/metrics", cfg.MetricsAddr)
	}

	return experiment.Run(ctx)
}

func printResult(w io.Writer, res *orchestration.Result) {
	fmt.Fprintf(w, "run %s (seed %d)\n", res.RunID, res.Seed)
	leader := "none"
	if res.Leader != ofcons.NoID {
		leader = res.Leader.String()
	}
	fmt.Fprintf(w, "leader: %s, fault-prone: %v\n", leader, res.FaultProne)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "node\tfault-prone\tcrashed\tproposal\tdecided\tdecision\trounds\tlatency")
	for _, s := range res.Nodes {
		decision := "-"
		latency := "-"
		if s.Decided {
			decision = fmt.Sprint(s.Decision)
			latency = s.Latency.String()
		}
		fmt.Fprintf(tw, "%v\t%t\t%t\t%v\t%t\t%s\t%d\t%s\n",
			s.ID, s.FaultProne, s.Silent, s.Proposal, s.Decided, decision, s.Rounds, latency)
	}
	tw.Flush()

	if res.Decided == 0 {
		fmt.Fprintln(w, "no replica decided")
		return
	}
	fmt.Fprintf(w, "%d of %d replicas decided %v, agreement: %t, latency: %v\n",
		res.Decided, len(res.Nodes), res.Value, res.Agreement, &res.Latency)
}

func checkf(format string, args ...any) {
	for _, arg := range args {
		if err, _ := arg.(error); err != nil {
			log.Fatalf(format, args...)
		}
	}
}
