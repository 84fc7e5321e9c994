package config

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"
)

// NewViper reads the experiment configuration from viper.
func NewViper() (*ExperimentConfig, error) {
	weights := viper.GetIntSlice("value-weights")
	cfg := &ExperimentConfig{
		Nodes:            viper.GetInt("nodes"),
		Faulty:           viper.GetInt("faulty"),
		Duration:         viper.GetDuration("duration"),
		Settle:           viper.GetDuration("settle"),
		CrashProbability: viper.GetFloat64("crash-probability"),
		RetryInterval:    viper.GetDuration("retry-interval"),
		RetryJitter:      viper.GetDuration("retry-jitter"),
		Seed:             viper.GetInt64("seed"),
		Output:           viper.GetString("output"),
		MetricsAddr:      viper.GetString("metrics-addr"),
		LogLevel:         viper.GetString("log-level"),
		CpuProfile:       viper.GetString("cpu-profile"),
		MemProfile:       viper.GetString("mem-profile"),
		Trace:            viper.GetString("trace"),
		FgProfProfile:    viper.GetString("fgprof-profile"),
	}
	for _, w := range weights {
		if w < 0 {
			return nil, fmt.Errorf("negative value weight: %d", w)
		}
		cfg.ValueWeights = append(cfg.ValueWeights, uint(w))
	}

	if cfg.Output != "" {
		var err error
		cfg.Output, err = filepath.Abs(cfg.Output)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
