// Package profiling starts and stops the runtime profilers of an experiment.
package profiling

import (
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"

	"github.com/felixge/fgprof"
	"go.uber.org/multierr"
)

// Paths holds the output files of the profilers. Profilers with an empty path are not started.
type Paths struct {
	CPU    string
	Mem    string
	Trace  string
	FgProf string
}

// Start starts the profilers. The returned function stops them and writes the memory profile.
func Start(paths Paths) (stop func() error, err error) {
	var stoppers []func() error
	stopAll := func() (err error) {
		for i := len(stoppers) - 1; i >= 0; i-- {
			err = multierr.Append(err, stoppers[i]())
		}
		return err
	}

	if paths.CPU != "" {
		f, err := os.Create(paths.CPU)
		if err != nil {
			return nil, multierr.Append(err, stopAll())
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			return nil, multierr.Combine(err, f.Close(), stopAll())
		}
		stoppers = append(stoppers, func() error {
			pprof.StopCPUProfile()
			return f.Close()
		})
	}

	if paths.FgProf != "" {
		f, err := os.Create(paths.FgProf)
		if err != nil {
			return nil, multierr.Append(err, stopAll())
		}
		fgprofStop := fgprof.Start(f, fgprof.FormatPprof)
		stoppers = append(stoppers, func() error {
			return multierr.Append(fgprofStop(), f.Close())
		})
	}

	if paths.Trace != "" {
		f, err := os.Create(paths.Trace)
		if err != nil {
			return nil, multierr.Append(err, stopAll())
		}
		if err := trace.Start(f); err != nil {
			return nil, multierr.Combine(err, f.Close(), stopAll())
		}
		stoppers = append(stoppers, func() error {
			trace.Stop()
			return f.Close()
		})
	}

	if paths.Mem != "" {
		stoppers = append(stoppers, func() error {
			f, err := os.Create(paths.Mem)
			if err != nil {
				return err
			}
			runtime.GC() // get up-to-date statistics
			if err := pprof.WriteHeapProfile(f); err != nil {
				return multierr.Append(fmt.Errorf("failed to write memory profile: %w", err), f.Close())
			}
			return f.Close()
		})
	}

	return stopAll, nil
}
