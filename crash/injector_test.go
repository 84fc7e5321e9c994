package crash_test

import (
	"math/rand"
	"testing"

	"github.com/relab/ofcons/crash"
)

func TestNeverCrashesUnlessFaultProne(t *testing.T) {
	inj := crash.New(1, rand.New(rand.NewSource(1)))
	for i := 0; i < 100; i++ {
		if !inj.Admit() {
			t.Fatal("a correct node crashed")
		}
	}
	if inj.Draws() != 0 {
		t.Errorf("a correct node drew %d random numbers", inj.Draws())
	}
}

func TestProbabilityBounds(t *testing.T) {
	tests := []struct {
		name        string
		probability float64
		wantSilent  bool
	}{
		{name: "Zero", probability: 0, wantSilent: false},
		{name: "One", probability: 1, wantSilent: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inj := crash.New(tt.probability, rand.New(rand.NewSource(1)))
			inj.MarkFaultProne()
			for i := 0; i < 1000; i++ {
				inj.Admit()
			}
			if inj.Silent() != tt.wantSilent {
				t.Errorf("Silent() = %t, want %t", inj.Silent(), tt.wantSilent)
			}
			if tt.wantSilent && inj.Draws() != 1 {
				t.Errorf("crashed after %d draws, want 1", inj.Draws())
			}
		})
	}
}

func TestSilenceIsPermanent(t *testing.T) {
	crashes := 0
	inj := crash.New(0.5, rand.New(rand.NewSource(42)), crash.OnCrash(func() { crashes++ }))
	inj.MarkFaultProne()
	for inj.Admit() {
	}
	draws := inj.Draws()
	for i := 0; i < 10; i++ {
		if inj.Admit() {
			t.Fatal("a silent node admitted a message")
		}
	}
	if inj.Draws() != draws {
		t.Error("a silent node kept drawing random numbers")
	}
	if crashes != 1 {
		t.Errorf("crash callback ran %d times, want 1", crashes)
	}
}

func TestReproducible(t *testing.T) {
	run := func(seed int64) int {
		inj := crash.New(0.2, rand.New(rand.NewSource(seed)))
		inj.MarkFaultProne()
		for inj.Admit() {
		}
		return inj.Draws()
	}
	for seed := int64(0); seed < 20; seed++ {
		if a, b := run(seed), run(seed); a != b {
			t.Errorf("seed %d: crashed after %d and %d messages", seed, a, b)
		}
	}
}
