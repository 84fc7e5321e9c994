package cli

import (
	"fmt"
	"os"

	"github.com/relab/ofcons/metrics/plotting"
	"github.com/spf13/cobra"
)

var (
	plotBins      int
	plotByReplica string
	plotStatsOnly bool
)

var plotCmd = &cobra.Command{
	Use:   "plot <measurements.json> <histogram.png>",
	Short: "Plot the decision latencies of an experiment.",
	Long: `The plot command reads the measurements written by 'ofcons run --output'
and saves a histogram of the decision latencies.
The image format is chosen from the file extension.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if plotStatsOnly {
			return cobra.ExactArgs(1)(cmd, args)
		}
		return cobra.ExactArgs(2)(cmd, args)
	},
	RunE: func(_ *cobra.Command, args []string) error {
		return runPlot(args)
	},
}

func init() {
	rootCmd.AddCommand(plotCmd)

	plotCmd.Flags().IntVar(&plotBins, "bins", 20, "number of histogram bins")
	plotCmd.Flags().StringVar(&plotByReplica, "by-replica", "", "also save a scatter plot of the latency of each replica to this file")
	plotCmd.Flags().BoolVar(&plotStatsOnly, "stats", false, "only print latency statistics")
}

func runPlot(args []string) (err error) {
	file, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()

	latencyPlot := plotting.NewLatencyPlot()
	if err := plotting.NewReader(file, latencyPlot).ReadAll(); err != nil {
		return fmt.Errorf("failed to read measurements: %w", err)
	}
	stats := latencyPlot.Stats()
	fmt.Printf("%d decisions, latency %v\n", stats.Count(), &stats)
	if plotStatsOnly {
		return nil
	}

	if err := latencyPlot.PlotHistogram(args[1], plotBins); err != nil {
		return err
	}
	if plotByReplica != "" {
		return latencyPlot.PlotByReplica(plotByReplica)
	}
	return nil
}
