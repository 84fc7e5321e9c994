// Package crash implements crash-stop fault injection.
//
// A fault-prone node draws a random number for every message it receives;
// once a draw falls below the crash probability the node goes silent for good.
package crash

import (
	"math/rand"

	"github.com/relab/ofcons/logging"
)

// DefaultProbability is the probability that a fault-prone node crashes on a given message.
const DefaultProbability = 0.2

// Injector decides when a node crashes. It is not safe for concurrent use.
type Injector struct {
	probability float64
	rnd         *rand.Rand
	logger      logging.Logger
	onCrash     func()

	faultProne bool
	silent     bool
	draws      int
}

// Option configures an Injector.
type Option func(*Injector)

// WithLogger sets the logger of the injector.
func WithLogger(logger logging.Logger) Option {
	return func(inj *Injector) {
		inj.logger = logger
	}
}

// OnCrash sets a function that is called once when the node goes silent.
func OnCrash(fn func()) Option {
	return func(inj *Injector) {
		inj.onCrash = fn
	}
}

// New returns an injector that silences a fault-prone node with the given probability
// per message, drawing from rnd.
func New(probability float64, rnd *rand.Rand, opts ...Option) *Injector {
	inj := &Injector{
		probability: probability,
		rnd:         rnd,
		logger:      logging.Nop(),
		onCrash:     func() {},
	}
	for _, opt := range opts {
		opt(inj)
	}
	return inj
}

// MarkFaultProne makes the node eligible for crashing.
func (inj *Injector) MarkFaultProne() {
	inj.faultProne = true
}

// FaultProne returns true if the node may crash.
func (inj *Injector) FaultProne() bool {
	return inj.faultProne
}

// Silent returns true if the node has crashed.
func (inj *Injector) Silent() bool {
	return inj.silent
}

// Draws returns the number of random draws made so far.
func (inj *Injector) Draws() int {
	return inj.draws
}

// Admit must be called once for every incoming message before it is handled.
// It returns false if the message must be discarded because the node is silent.
func (inj *Injector) Admit() bool {
	if inj.silent {
		return false
	}
	if !inj.faultProne {
		return true
	}
	inj.draws++
	if inj.rnd.Float64() < inj.probability {
		inj.silent = true
		inj.logger.Warnf("crashed after %d messages", inj.draws)
		inj.onCrash()
		return false
	}
	return true
}
