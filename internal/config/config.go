// Package config holds the configuration of a consensus experiment.
package config

import (
	"fmt"
	"time"

	"github.com/relab/ofcons"
	"go.uber.org/multierr"
)

// ExperimentConfig holds the configuration for an experiment.
type ExperimentConfig struct {
	// Nodes is the number of replicas.
	Nodes int
	// Faulty is the number of replicas that are made fault-prone.
	Faulty int
	// Duration is how long the replicas run before all but the leader are put on hold.
	Duration time.Duration
	// Settle bounds how long the replicas keep running after the hold, waiting for every live replica to decide.
	Settle time.Duration
	// CrashProbability is the probability that a fault-prone replica crashes on a given message.
	CrashProbability float64
	// RetryInterval is the period of every replica's retry timer.
	RetryInterval time.Duration
	// RetryJitter bounds the random delay before the first retry of each replica.
	RetryJitter time.Duration
	// Seed seeds all random choices. Zero means a time-based seed.
	Seed int64
	// ValueWeights holds the relative probabilities of proposing 0 and 1.
	ValueWeights []uint
	// Output is the path of the JSON measurement log, if any.
	Output string
	// MetricsAddr is the address of the Prometheus endpoint, if any.
	MetricsAddr string

	LogLevel      string
	CpuProfile    string
	MemProfile    string
	Trace         string
	FgProfProfile string
}

// Default returns the default experiment configuration.
func Default() ExperimentConfig {
	return ExperimentConfig{
		Nodes:            10,
		Faulty:           4,
		Duration:         time.Second,
		Settle:           time.Second,
		CrashProbability: 0.2,
		RetryInterval:    50 * time.Millisecond,
		ValueWeights:     []uint{1, 1},
		LogLevel:         "info",
	}
}

// Validate checks the configuration and returns all violations.
func (c *ExperimentConfig) Validate() (err error) {
	if c.Nodes < 1 {
		err = multierr.Append(err, fmt.Errorf("nodes must be at least 1, got %d", c.Nodes))
	}
	if c.Faulty < 0 || c.Faulty > c.Nodes {
		err = multierr.Append(err, fmt.Errorf("faulty must be in [0, %d], got %d", c.Nodes, c.Faulty))
	}
	if c.Duration <= 0 {
		err = multierr.Append(err, fmt.Errorf("duration must be positive, got %v", c.Duration))
	}
	if c.Settle < 0 {
		err = multierr.Append(err, fmt.Errorf("settle must not be negative, got %v", c.Settle))
	}
	if c.CrashProbability < 0 || c.CrashProbability > 1 {
		err = multierr.Append(err, fmt.Errorf("crash probability must be in [0, 1], got %v", c.CrashProbability))
	}
	if c.RetryInterval <= 0 {
		err = multierr.Append(err, fmt.Errorf("retry interval must be positive, got %v", c.RetryInterval))
	}
	if c.RetryJitter < 0 {
		err = multierr.Append(err, fmt.Errorf("retry jitter must not be negative, got %v", c.RetryJitter))
	}
	var total uint
	for _, w := range c.ValueWeights {
		total += w
	}
	if len(c.ValueWeights) != 2 || total == 0 {
		err = multierr.Append(err, fmt.Errorf("value weights must be two weights that are not both zero, got %v", c.ValueWeights))
	}
	return err
}

// Tolerable returns true if the system can make progress with Faulty crashed replicas.
// Experiments with more faulty replicas are still valid, but only exercise safety.
func (c *ExperimentConfig) Tolerable() bool {
	return c.Faulty <= ofcons.MaxFaulty(c.Nodes)
}
