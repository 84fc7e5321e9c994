package plotting

import (
	"fmt"
	"image/color"
	"time"

	"github.com/relab/ofcons/metrics"
	"go-hep.org/x/hep/hplot"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"google.golang.org/protobuf/types/known/structpb"
)

// LatencyPlot plots decision latencies.
type LatencyPlot struct {
	decisions []metrics.Decision
	stats     metrics.LatencyStats
}

// NewLatencyPlot returns a new decision latency plotter.
func NewLatencyPlot() *LatencyPlot {
	return &LatencyPlot{}
}

// Add adds a record to the plot. Records other than decisions are skipped.
func (p *LatencyPlot) Add(record *structpb.Struct) error {
	if metrics.RecordKind(record) != metrics.KindDecision {
		return nil
	}
	d, err := metrics.ParseDecision(record)
	if err != nil {
		return err
	}
	p.decisions = append(p.decisions, d)
	p.stats.Add(d.Latency)
	return nil
}

// Decisions returns the decisions added so far.
func (p *LatencyPlot) Decisions() []metrics.Decision {
	return p.decisions
}

// Stats returns the latency statistics of the decisions added so far.
func (p *LatencyPlot) Stats() metrics.LatencyStats {
	return p.stats
}

// PlotHistogram saves a histogram of the decision latencies to filename.
// The image format is chosen from the file extension.
func (p *LatencyPlot) PlotHistogram(filename string, bins int) error {
	if len(p.decisions) == 0 {
		return fmt.Errorf("no decisions to plot")
	}
	values := make(plotter.Values, len(p.decisions))
	for i, d := range p.decisions {
		values[i] = toMillis(d.Latency)
	}
	hist, err := plotter.NewHist(values, bins)
	if err != nil {
		return fmt.Errorf("failed to create histogram: %w", err)
	}

	plt := newPlot("Decision latency (ms)", "Decisions")
	plt.Title.Text = fmt.Sprintf("Decision latency (%v)", &p.stats)
	plt.Add(hist)
	return save(plt, filename)
}

// PlotByReplica saves a scatter plot of the decision latency of each replica to filename.
func (p *LatencyPlot) PlotByReplica(filename string) error {
	if len(p.decisions) == 0 {
		return fmt.Errorf("no decisions to plot")
	}
	points := make(plotter.XYs, len(p.decisions))
	for i, d := range p.decisions {
		points[i].X = float64(d.ID)
		points[i].Y = toMillis(d.Latency)
	}
	plt := newPlot("Replica", "Decision latency (ms)")
	if err := plotutil.AddScatters(plt, "decisions", points); err != nil {
		return fmt.Errorf("failed to add scatter plot: %w", err)
	}
	return save(plt, filename)
}

func newPlot(xLabel, yLabel string) *plot.Plot {
	plt := plot.New()

	grid := plotter.NewGrid()
	grid.Horizontal.Color = color.Gray{Y: 200}
	grid.Horizontal.Dashes = plotutil.Dashes(2)
	grid.Vertical.Color = color.Gray{Y: 200}
	grid.Vertical.Dashes = plotutil.Dashes(2)
	plt.Add(grid)

	plt.X.Label.Text = xLabel
	plt.X.Tick.Marker = hplot.Ticks{N: 10}
	plt.Y.Label.Text = yLabel
	plt.Y.Tick.Marker = hplot.Ticks{N: 10}
	return plt
}

func save(plt *plot.Plot, filename string) error {
	if err := plt.Save(6*vg.Inch, 6*vg.Inch, filename); err != nil {
		return fmt.Errorf("failed to save plot: %w", err)
	}
	return nil
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
