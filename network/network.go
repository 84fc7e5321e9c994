// Package network connects a set of replicas running in the same process.
//
// Every replica runs on its own goroutine. A message is delivered by pushing it onto the
// receiver's event queue, which preserves FIFO order between any sender and receiver and never drops.
package network

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/relab/ofcons"
	"github.com/relab/ofcons/logging"
	"github.com/relab/ofcons/replica"
	"go.uber.org/multierr"
)

// Observer is called for every message delivered through the network, on the sender's goroutine.
type Observer func(to ofcons.ID, msg any)

type options struct {
	observers []Observer
	logDest   io.Writer
}

// Option configures a network.
type Option func(*options)

// WithObserver adds an observer of delivered messages.
func WithObserver(o Observer) Option {
	return func(opts *options) {
		opts.observers = append(opts.observers, o)
	}
}

// WithLogDestination makes the replicas log to w instead of stderr.
func WithLogDestination(w io.Writer) Option {
	return func(opts *options) {
		opts.logDest = w
	}
}

// Network is a set of replicas that can send messages to each other.
type Network struct {
	opts     options
	replicas []*replica.Replica
	members  ofcons.Membership
	logger   logging.Logger
}

// peer is the handle other replicas use to reach a replica.
type peer struct {
	net *Network
	r   *replica.Replica
}

func (p peer) ID() ofcons.ID {
	return p.r.ID()
}

func (p peer) Deliver(msg any) {
	for _, o := range p.net.opts.observers {
		o(p.r.ID(), msg)
	}
	p.r.Deliver(msg)
}

// New creates a replica for each of the given configurations.
// The configuration at index i must have ID i.
func New(confs []replica.Config, opts ...Option) (*Network, error) {
	n := &Network{}
	for _, opt := range opts {
		opt(&n.opts)
	}
	if n.opts.logDest != nil {
		n.logger = logging.NewWithDest(n.opts.logDest, "network")
	} else {
		n.logger = logging.New("network")
	}

	var errs error
	for i, conf := range confs {
		if conf.ID != ofcons.ID(i) {
			errs = multierr.Append(errs, fmt.Errorf("configuration %d has id %v", i, conf.ID))
			continue
		}
		var replicaOpts []replica.Option
		if n.opts.logDest != nil {
			replicaOpts = append(replicaOpts, replica.WithLogger(logging.NewWithDest(n.opts.logDest, conf.ID.String())))
		}
		r, err := replica.New(conf, replicaOpts...)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		n.replicas = append(n.replicas, r)
		n.members = append(n.members, peer{net: n, r: r})
	}
	if errs != nil {
		return nil, fmt.Errorf("failed to create network: %w", errs)
	}
	return n, nil
}

// Size returns the number of replicas.
func (n *Network) Size() int {
	return len(n.replicas)
}

// Replica returns the replica with the given ID.
func (n *Network) Replica(id ofcons.ID) *replica.Replica {
	return n.replicas[id]
}

// Membership returns the handles of all replicas, ordered by ID.
func (n *Network) Membership() ofcons.Membership {
	return n.members
}

// Send delivers msg to the replica with the given ID.
func (n *Network) Send(to ofcons.ID, msg any) {
	n.members[to].Deliver(msg)
}

// Broadcast delivers msg to every replica.
func (n *Network) Broadcast(msg any) {
	for _, p := range n.members {
		p.Deliver(msg)
	}
}

// Run runs all replicas until ctx is canceled.
func (n *Network) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, r := range n.replicas {
		wg.Add(1)
		go func(r *replica.Replica) {
			defer wg.Done()
			r.Run(ctx)
		}(r)
	}
	n.logger.Debugf("running %d replicas", len(n.replicas))
	wg.Wait()
}

// Status collects the status of every replica. The network must be running.
func (n *Network) Status(ctx context.Context) ([]replica.Status, error) {
	statuses := make([]replica.Status, len(n.replicas))
	for i, r := range n.replicas {
		s, err := r.Status(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get status of %v: %w", r.ID(), err)
		}
		statuses[i] = s
	}
	return statuses, nil
}

// MessageType returns a short name for the type of a message, for use in logs and metrics.
func MessageType(msg any) string {
	switch msg.(type) {
	case ofcons.MembershipMsg:
		return "membership"
	case ofcons.StartTimeMsg:
		return "start_time"
	case ofcons.ReadMsg:
		return "read"
	case ofcons.GatherMsg:
		return "gather"
	case ofcons.ImposeMsg:
		return "impose"
	case ofcons.AckMsg:
		return "ack"
	case ofcons.AbortMsg:
		return "abort"
	case ofcons.DecideMsg:
		return "decide"
	case ofcons.CrashMsg:
		return "crash"
	case ofcons.LaunchMsg:
		return "launch"
	case ofcons.HoldMsg:
		return "hold"
	default:
		return "other"
	}
}
