// Package replica runs a single node: an event loop that feeds incoming messages and
// retry timer events through the crash injector into the consensus engine.
package replica

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	wr "github.com/mroth/weightedrand"
	"github.com/relab/ofcons"
	"github.com/relab/ofcons/consensus"
	"github.com/relab/ofcons/crash"
	"github.com/relab/ofcons/eventloop"
	"github.com/relab/ofcons/logging"
)

// Config holds the settings of a replica.
type Config struct {
	ID ofcons.ID
	// N is the number of replicas in the system.
	N int
	// CrashProbability is the probability that a fault-prone replica crashes on a given message.
	CrashProbability float64
	// RetryInterval is the period of the retry timer.
	RetryInterval time.Duration
	// RetryJitter bounds a random delay added before the first tick of the retry timer.
	RetryJitter time.Duration
	// ValueWeights[v] is the relative probability of proposing the value v when launched.
	ValueWeights []uint
	// Seed seeds the replica's random number generator.
	Seed int64
}

// DefaultConfig returns the configuration of replica id in a system of n replicas.
func DefaultConfig(id ofcons.ID, n int) Config {
	return Config{
		ID:               id,
		N:                n,
		CrashProbability: crash.DefaultProbability,
		RetryInterval:    50 * time.Millisecond,
		ValueWeights:     []uint{1, 1},
		Seed:             int64(id),
	}
}

// Option configures a replica.
type Option func(*Replica)

// WithLogger sets the logger of the replica.
func WithLogger(logger logging.Logger) Option {
	return func(r *Replica) {
		r.logger = logger
	}
}

// Status is a snapshot of a replica.
type Status struct {
	consensus.Status
	FaultProne bool
	Silent     bool
}

type statusRequest struct {
	c chan<- Status
}

// Replica is a node taking part in the consensus protocol.
type Replica struct {
	conf      Config
	logger    logging.Logger
	eventLoop *eventloop.EventLoop
	process   *consensus.Process
	injector  *crash.Injector
	view      *view
	rnd       *rand.Rand
	chooser   *wr.Chooser
}

// New returns a new replica. The replica does nothing until Run is called.
func New(conf Config, opts ...Option) (*Replica, error) {
	if conf.N < 1 || conf.ID < 0 || int(conf.ID) >= conf.N {
		return nil, fmt.Errorf("invalid replica id %v for %d replicas", conf.ID, conf.N)
	}
	choices := make([]wr.Choice, 0, len(conf.ValueWeights))
	for v, w := range conf.ValueWeights {
		choices = append(choices, wr.Choice{Item: ofcons.Value(v), Weight: w})
	}
	chooser, err := wr.NewChooser(choices...)
	if err != nil {
		return nil, fmt.Errorf("invalid value weights %v: %w", conf.ValueWeights, err)
	}

	r := &Replica{
		conf:      conf,
		logger:    logging.New(conf.ID.String()),
		eventLoop: eventloop.New(100),
		rnd:       rand.New(rand.NewSource(conf.Seed)),
		chooser:   chooser,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.view = &view{self: conf.ID, logger: r.logger}
	r.injector = crash.New(conf.CrashProbability, r.rnd,
		crash.WithLogger(r.logger),
		crash.OnCrash(func() { r.eventLoop.AddEvent(ofcons.CrashEvent{ID: conf.ID}) }),
	)
	r.process = consensus.NewProcess(conf.ID, conf.N, r.view,
		consensus.WithLogger(r.logger),
		consensus.WithEventSink(r.eventLoop.AddEvent),
	)
	r.registerHandlers()

	var delay time.Duration
	if conf.RetryJitter > 0 {
		delay = time.Duration(r.rnd.Int63n(int64(conf.RetryJitter)))
	}
	r.eventLoop.AddTicker(conf.RetryInterval, func(time.Time) any {
		return ofcons.ProposeAgainEvent{}
	}, eventloop.WithInitialDelay(delay))
	return r, nil
}

// on registers a handler for messages of type T that only runs if the crash injector admits the message.
func on[T any](r *Replica, handler func(T)) {
	eventloop.Register(r.eventLoop, func(msg T) {
		if !r.injector.Admit() {
			return
		}
		handler(msg)
	})
}

func (r *Replica) registerHandlers() {
	on(r, func(m ofcons.MembershipMsg) {
		if r.view.install(m.Peers, r.conf.N) {
			r.logger.Debugf("installed membership of %d replicas", len(m.Peers))
		}
	})
	on(r, func(m ofcons.StartTimeMsg) { r.process.SetStartTime(m.Time) })
	on(r, func(ofcons.CrashMsg) {
		r.logger.Debug("fault-prone")
		r.injector.MarkFaultProne()
	})
	on(r, func(ofcons.LaunchMsg) { r.launch() })
	on(r, func(ofcons.HoldMsg) { r.process.Hold() })
	on(r, func(ofcons.ProposeAgainEvent) { r.process.Retry() })
	on(r, r.process.OnRead)
	on(r, r.process.OnGather)
	on(r, r.process.OnImpose)
	on(r, r.process.OnAck)
	on(r, r.process.OnAbort)
	on(r, r.process.OnDecide)

	eventloop.Register(r.eventLoop, func(req statusRequest) {
		req.c <- Status{
			Status:     r.process.Status(),
			FaultProne: r.injector.FaultProne(),
			Silent:     r.injector.Silent(),
		}
	})
}

func (r *Replica) launch() {
	if !r.view.installed() {
		r.logger.Warn("launched before the membership was installed")
		return
	}
	v := r.chooser.PickSource(r.rnd).(ofcons.Value)
	r.process.Propose(v)
}

// ID returns the ID of the replica.
func (r *Replica) ID() ofcons.ID {
	return r.conf.ID
}

// Deliver queues msg on the replica's event loop.
func (r *Replica) Deliver(msg any) {
	r.eventLoop.AddEvent(msg)
}

// EventLoop returns the event loop of the replica.
// Handlers for the events raised by the replica can be registered on it.
func (r *Replica) EventLoop() *eventloop.EventLoop {
	return r.eventLoop
}

// Run runs the replica until the context is canceled.
func (r *Replica) Run(ctx context.Context) {
	r.eventLoop.Run(ctx)
}

// Status returns a snapshot of the replica's state.
// The replica must be running for the request to be answered.
func (r *Replica) Status(ctx context.Context) (Status, error) {
	c := make(chan Status, 1)
	r.eventLoop.AddEvent(statusRequest{c})
	select {
	case s := <-c:
		return s, nil
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}
