// Package consensus implements the ballot-based uniform consensus engine run by every node.
//
// A Process is a passive state machine. It is driven by a single goroutine, usually a node's
// event loop, which calls Propose, Retry and the On* handlers as messages arrive.
// Outgoing messages go through a Sender; notable transitions are reported to an event sink.
package consensus

import (
	"time"

	"github.com/relab/ofcons"
	"github.com/relab/ofcons/logging"
)

// Phase is the stage of the current round.
type Phase int

// The phases of a round.
const (
	Idle Phase = iota
	Proposing
	Gathering
	Imposing
	Acking
	Decided
	Aborted
)

var phaseNames = [...]string{"idle", "proposing", "gathering", "imposing", "acking", "decided", "aborted"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// Option configures a Process.
type Option func(*Process)

// WithLogger sets the logger used by the process.
func WithLogger(logger logging.Logger) Option {
	return func(p *Process) {
		p.logger = logger
	}
}

// WithEventSink sets the function that receives ProposeEvent, AbortEvent and DecisionEvent.
func WithEventSink(sink func(event any)) Option {
	return func(p *Process) {
		p.sink = sink
	}
}

// WithClock replaces time.Now as the source of time.
func WithClock(now func() time.Time) Option {
	return func(p *Process) {
		p.now = now
	}
}

// Process is the consensus state of a single node.
type Process struct {
	id     ofcons.ID
	n      int
	sender Sender
	logger logging.Logger
	sink   func(any)
	now    func() time.Time

	ballot       ofcons.Ballot
	readBallot   ofcons.Ballot
	imposeBallot ofcons.Ballot
	estimate     ofcons.Estimate

	proposal    ofcons.Value
	hasProposal bool

	states   stateVector
	ackCount int

	// ballots whose quorum or abort has already been handled
	oldGatherBallot ofcons.Ballot
	oldAckBallot    ofcons.Ballot
	oldAbortBallot  ofcons.Ballot

	proposing bool
	hold      bool
	decided   bool
	decision  ofcons.Value

	startTime    time.Time
	hasStartTime bool
	latency      time.Duration

	phase  Phase
	rounds int
}

// NewProcess returns the consensus state of node id in a system of n nodes.
func NewProcess(id ofcons.ID, n int, sender Sender, opts ...Option) *Process {
	p := &Process{
		id:              id,
		n:               n,
		sender:          sender,
		logger:          logging.Nop(),
		sink:            func(any) {},
		now:             time.Now,
		ballot:          ofcons.FirstBallot(id, n),
		imposeBallot:    ofcons.FirstBallot(id, n),
		states:          newStateVector(n),
		oldGatherBallot: ofcons.Ballot(-2 * n),
		oldAckBallot:    ofcons.Ballot(-2 * n),
		oldAbortBallot:  ofcons.Ballot(-2 * n),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ID returns the ID of the node.
func (p *Process) ID() ofcons.ID {
	return p.id
}

// Phase returns the phase of the current round.
func (p *Process) Phase() Phase {
	return p.phase
}

// SetStartTime installs the baseline from which decision latency is measured.
func (p *Process) SetStartTime(t time.Time) {
	p.startTime = t
	p.hasStartTime = true
}

// Hold stops the process from starting new rounds. The current round and all state are kept.
func (p *Process) Hold() {
	p.hold = true
	p.logger.Debug("hold")
}

// Propose starts a new round proposing v.
func (p *Process) Propose(v ofcons.Value) {
	if p.decided {
		return
	}
	if !p.hasStartTime {
		p.SetStartTime(p.now())
	}
	p.proposal = v
	p.hasProposal = true
	p.ballot = p.ballot.Next(p.n)
	p.states.reset()
	p.ackCount = 0
	p.proposing = true
	p.phase = Proposing
	p.rounds++

	p.logger.Debugf("propose %d with ballot %d", v, p.ballot)
	p.sink(ofcons.ProposeEvent{ID: p.id, Ballot: p.ballot, Value: v})
	p.sender.Broadcast(ofcons.ReadMsg{ID: p.id, Ballot: p.ballot})
}

// Retry proposes the current proposal again if the last round was aborted
// and the process is neither held nor decided.
func (p *Process) Retry() {
	if p.hold || p.proposing || p.decided || !p.hasProposal {
		return
	}
	p.Propose(p.proposal)
}

// promised returns true if the process has seen a read or impose with a ballot above b.
func (p *Process) promised(b ofcons.Ballot) bool {
	return p.readBallot > b || p.imposeBallot > b
}

// OnRead handles a read request.
func (p *Process) OnRead(m ofcons.ReadMsg) {
	if p.decided {
		return
	}
	if p.promised(m.Ballot) {
		p.sender.Send(m.ID, ofcons.AbortMsg{ID: p.id, Ballot: m.Ballot})
		return
	}
	p.readBallot = m.Ballot
	p.sender.Send(m.ID, ofcons.GatherMsg{
		ID:           p.id,
		Ballot:       m.Ballot,
		ImposeBallot: p.imposeBallot,
		Estimate:     p.estimate,
	})
}

// OnGather handles a response to one of the process' reads.
func (p *Process) OnGather(m ofcons.GatherMsg) {
	if p.decided {
		return
	}
	if m.Ballot != p.ballot {
		p.logger.Debugf("ignoring stale %v, current ballot is %d", m, p.ballot)
		return
	}
	if !p.states.record(m.ID, m.Estimate, m.ImposeBallot) {
		p.logger.Warnf("dropping %v from unknown sender", m)
		return
	}
	if p.phase == Proposing {
		p.phase = Gathering
	}
	if !ofcons.IsQuorum(p.states.responses(), p.n) || p.oldGatherBallot == m.Ballot {
		return
	}
	if v, ok := p.states.highest(); ok {
		p.proposal = v
	}
	p.states.reset()
	p.oldGatherBallot = m.Ballot
	p.phase = Imposing

	p.logger.Debugf("impose %d with ballot %d", p.proposal, p.ballot)
	p.sender.Broadcast(ofcons.ImposeMsg{ID: p.id, Ballot: p.ballot, Value: p.proposal})
}

// OnImpose handles a request to accept a value.
func (p *Process) OnImpose(m ofcons.ImposeMsg) {
	if p.decided {
		return
	}
	if p.promised(m.Ballot) {
		p.sender.Send(m.ID, ofcons.AbortMsg{ID: p.id, Ballot: m.Ballot})
		return
	}
	p.estimate = ofcons.Some(m.Value)
	p.imposeBallot = m.Ballot
	p.sender.Send(m.ID, ofcons.AckMsg{ID: p.id, Ballot: m.Ballot})
}

// OnAck handles an acknowledgement of one of the process' imposes.
func (p *Process) OnAck(m ofcons.AckMsg) {
	if p.decided {
		return
	}
	if m.Ballot != p.ballot || p.oldAckBallot == m.Ballot {
		p.logger.Debugf("ignoring %v, current ballot is %d", m, p.ballot)
		return
	}
	p.ackCount++
	p.phase = Acking
	if !ofcons.IsQuorum(p.ackCount, p.n) {
		return
	}
	p.ackCount = 0
	p.oldAckBallot = m.Ballot

	p.logger.Debugf("quorum of acks for ballot %d", m.Ballot)
	p.sender.Broadcast(ofcons.DecideMsg{ID: p.id, Value: p.proposal})
}

// OnDecide handles a decision. The first decision is adopted and flooded to all nodes;
// the process ignores every protocol message after that.
func (p *Process) OnDecide(m ofcons.DecideMsg) {
	if p.decided {
		return
	}
	now := p.now()
	p.decided = true
	p.decision = m.Value
	p.proposing = false
	p.phase = Decided
	if p.hasStartTime {
		p.latency = now.Sub(p.startTime)
	}

	p.logger.Infof("decided %d after %v (ballot %d, %d rounds)", m.Value, p.latency, p.ballot, p.rounds)
	p.sink(ofcons.DecisionEvent{
		ID:      p.id,
		Value:   m.Value,
		Ballot:  p.ballot,
		Latency: p.latency,
		Time:    now,
	})
	p.sender.Broadcast(ofcons.DecideMsg{ID: p.id, Value: m.Value})
}

// OnAbort handles the rejection of one of the process' reads or imposes.
func (p *Process) OnAbort(m ofcons.AbortMsg) {
	if p.decided || m.Ballot == p.oldAbortBallot || m.Ballot != p.ballot {
		return
	}
	p.oldAbortBallot = m.Ballot
	if p.hold {
		return
	}
	p.proposing = false
	p.phase = Aborted

	p.logger.Debugf("ballot %d aborted by %v", m.Ballot, m.ID)
	p.sink(ofcons.AbortEvent{ID: p.id, Ballot: m.Ballot})
}

// Status is a snapshot of the state of a process.
type Status struct {
	ID           ofcons.ID
	Ballot       ofcons.Ballot
	ReadBallot   ofcons.Ballot
	ImposeBallot ofcons.Ballot
	Estimate     ofcons.Estimate
	Proposal     ofcons.Estimate
	Decided      bool
	Decision     ofcons.Value
	Hold         bool
	Proposing    bool
	Phase        Phase
	Rounds       int
	Latency      time.Duration
}

// Status returns a snapshot of the state of the process.
func (p *Process) Status() Status {
	s := Status{
		ID:           p.id,
		Ballot:       p.ballot,
		ReadBallot:   p.readBallot,
		ImposeBallot: p.imposeBallot,
		Estimate:     p.estimate,
		Decided:      p.decided,
		Decision:     p.decision,
		Hold:         p.hold,
		Proposing:    p.proposing,
		Phase:        p.phase,
		Rounds:       p.rounds,
		Latency:      p.latency,
	}
	if p.hasProposal {
		s.Proposal = ofcons.Some(p.proposal)
	}
	return s
}
