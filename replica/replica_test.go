package replica_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/relab/ofcons"
	"github.com/relab/ofcons/eventloop"
	"github.com/relab/ofcons/logging"
	"github.com/relab/ofcons/replica"
)

func createReplicas(t *testing.T, n int, modify func(*replica.Config)) ([]*replica.Replica, ofcons.Membership) {
	t.Helper()
	replicas := make([]*replica.Replica, n)
	members := make(ofcons.Membership, n)
	for i := range replicas {
		conf := replica.DefaultConfig(ofcons.ID(i), n)
		conf.RetryInterval = 10 * time.Millisecond
		conf.RetryJitter = 10 * time.Millisecond
		if modify != nil {
			modify(&conf)
		}
		r, err := replica.New(conf, replica.WithLogger(logging.Nop()))
		if err != nil {
			t.Fatal(err)
		}
		replicas[i] = r
		members[i] = r
	}
	return replicas, members
}

func run(t *testing.T, replicas []*replica.Replica) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	for _, r := range replicas {
		go r.Run(ctx)
	}
	return ctx
}

func waitFor(ctx context.Context, t *testing.T, r *replica.Replica, cond func(replica.Status) bool) replica.Status {
	t.Helper()
	for {
		s, err := r.Status(ctx)
		if err != nil {
			t.Fatalf("%v: %v", r.ID(), err)
		}
		if cond(s) {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*replica.Config)
	}{
		{name: "IDOutOfRange", modify: func(c *replica.Config) { c.ID = 3 }},
		{name: "NegativeID", modify: func(c *replica.Config) { c.ID = -1 }},
		{name: "ZeroWeights", modify: func(c *replica.Config) { c.ValueWeights = []uint{0, 0} }},
		{name: "NoWeights", modify: func(c *replica.Config) { c.ValueWeights = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := replica.DefaultConfig(0, 3)
			tt.modify(&conf)
			if _, err := replica.New(conf, replica.WithLogger(logging.Nop())); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestReplicasDecide(t *testing.T) {
	const n = 3
	replicas, members := createReplicas(t, n, nil)
	decisions := make(chan ofcons.DecisionEvent, n)
	for _, r := range replicas {
		eventloop.Register(r.EventLoop(), func(e ofcons.DecisionEvent) { decisions <- e })
	}
	ctx := run(t, replicas)

	for _, r := range replicas {
		r.Deliver(ofcons.MembershipMsg{Peers: members})
		r.Deliver(ofcons.StartTimeMsg{Time: time.Now()})
		r.Deliver(ofcons.LaunchMsg{})
	}

	var first ofcons.DecisionEvent
	for i := 0; i < n; i++ {
		select {
		case e := <-decisions:
			if i == 0 {
				first = e
			} else if e.Value != first.Value {
				t.Errorf("%v decided %d, %v decided %d", e.ID, e.Value, first.ID, first.Value)
			}
			if e.Value != 0 && e.Value != 1 {
				t.Errorf("%v decided %d, which no replica could propose", e.ID, e.Value)
			}
		case <-ctx.Done():
			t.Fatalf("only %d of %d replicas decided", i, n)
		}
	}
}

func TestLaunchWithoutMembership(t *testing.T) {
	replicas, _ := createReplicas(t, 1, nil)
	ctx := run(t, replicas)
	replicas[0].Deliver(ofcons.LaunchMsg{})
	s, err := replicas[0].Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if s.Rounds != 0 {
		t.Errorf("replica proposed without a membership: %+v", s)
	}
}

func TestMembershipInstalledOnce(t *testing.T) {
	replicas, members := createReplicas(t, 1, func(c *replica.Config) {
		c.ValueWeights = []uint{0, 0, 1}
	})
	ctx := run(t, replicas)
	r := replicas[0]
	r.Deliver(ofcons.MembershipMsg{Peers: ofcons.Membership{}})
	r.Deliver(ofcons.MembershipMsg{Peers: members})
	r.Deliver(ofcons.MembershipMsg{Peers: ofcons.Membership{nil}})
	r.Deliver(ofcons.LaunchMsg{})

	s := waitFor(ctx, t, r, func(s replica.Status) bool { return s.Decided })
	if s.Decision != 2 {
		t.Errorf("decided %d, want 2", s.Decision)
	}
}

func TestCrashedReplicaIsSilent(t *testing.T) {
	replicas, members := createReplicas(t, 1, func(c *replica.Config) {
		c.CrashProbability = 1
	})
	r := replicas[0]
	crashed := make(chan ofcons.CrashEvent, 1)
	eventloop.Register(r.EventLoop(), func(e ofcons.CrashEvent) { crashed <- e })
	ctx := run(t, replicas)

	r.Deliver(ofcons.MembershipMsg{Peers: members})
	r.Deliver(ofcons.CrashMsg{})
	r.Deliver(ofcons.LaunchMsg{})

	select {
	case e := <-crashed:
		if e.ID != r.ID() {
			t.Errorf("got crash event for %v, want %v", e.ID, r.ID())
		}
	case <-ctx.Done():
		t.Fatal("replica did not crash")
	}
	s, err := r.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !s.FaultProne || !s.Silent || s.Rounds != 0 || s.Decided {
		t.Errorf("unexpected status of crashed replica: %+v", s)
	}
}

func TestHeldReplicaStopsRetrying(t *testing.T) {
	const n = 3
	replicas, members := createReplicas(t, n, nil)
	ctx := run(t, replicas[:1])
	r := replicas[0]

	// the other replicas never run, so the first round can never finish
	r.Deliver(ofcons.MembershipMsg{Peers: members})
	r.Deliver(ofcons.HoldMsg{})
	r.Deliver(ofcons.LaunchMsg{})
	s := waitFor(ctx, t, r, func(s replica.Status) bool { return s.Rounds > 0 })
	if !s.Hold || s.Rounds != 1 {
		t.Errorf("unexpected status: %+v", s)
	}
}

func TestStatusRequiresRunningReplica(t *testing.T) {
	replicas, _ := createReplicas(t, 1, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := replicas[0].Status(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Status() error = %v, want %v", err, context.DeadlineExceeded)
	}
}
