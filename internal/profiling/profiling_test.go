package profiling

import (
	"os"
	"path/filepath"
	"testing"
)

func TestProfilers(t *testing.T) {
	dir := t.TempDir()
	paths := Paths{
		CPU:    filepath.Join(dir, "cpu.prof"),
		Mem:    filepath.Join(dir, "mem.prof"),
		Trace:  filepath.Join(dir, "trace.out"),
		FgProf: filepath.Join(dir, "fgprof.prof"),
	}
	stop, err := Start(paths)
	if err != nil {
		t.Fatal(err)
	}
	if err := stop(); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{paths.CPU, paths.Mem, paths.Trace, paths.FgProf} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("missing profile: %v", err)
		}
	}
}

func TestNoProfilers(t *testing.T) {
	stop, err := Start(Paths{})
	if err != nil {
		t.Fatal(err)
	}
	if err := stop(); err != nil {
		t.Error(err)
	}
}

func TestInvalidPath(t *testing.T) {
	if _, err := Start(Paths{CPU: filepath.Join(t.TempDir(), "missing", "cpu.prof")}); err == nil {
		t.Error("expected an error")
	}
}
