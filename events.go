package ofcons

import (
	"fmt"
	"time"
)

// MembershipMsg installs the membership view on a node. It is delivered once.
type MembershipMsg struct {
	Peers Membership
}

func (m MembershipMsg) String() string {
	return fmt.Sprintf("Membership{%v}", m.Peers.IDs())
}

// StartTimeMsg sets the baseline from which decision latency is measured.
type StartTimeMsg struct {
	Time time.Time
}

func (m StartTimeMsg) String() string {
	return fmt.Sprintf("StartTime{%s}", m.Time.Format(time.StampMicro))
}

// ReadMsg asks the receiver to promise not to accept anything below Ballot.
type ReadMsg struct {
	ID     ID // the sender
	Ballot Ballot
}

func (m ReadMsg) String() string {
	return fmt.Sprintf("Read{%v, b=%d}", m.ID, m.Ballot)
}

// AbortMsg rejects a read or impose for Ballot.
type AbortMsg struct {
	ID     ID // the sender
	Ballot Ballot
}

func (m AbortMsg) String() string {
	return fmt.Sprintf("Abort{%v, b=%d}", m.ID, m.Ballot)
}

// GatherMsg answers a read with the receiver's last accepted estimate.
type GatherMsg struct {
	ID           ID // the sender
	Ballot       Ballot
	ImposeBallot Ballot // the ballot under which Estimate was accepted
	Estimate     Estimate
}

func (m GatherMsg) String() string {
	return fmt.Sprintf("Gather{%v, b=%d, est=%v@%d}", m.ID, m.Ballot, m.Estimate, m.ImposeBallot)
}

// ImposeMsg asks the receiver to accept Value under Ballot.
type ImposeMsg struct {
	ID     ID // the sender
	Ballot Ballot
	Value  Value
}

func (m ImposeMsg) String() string {
	return fmt.Sprintf("Impose{%v, b=%d, v=%d}", m.ID, m.Ballot, m.Value)
}

// AckMsg acknowledges an impose for Ballot.
type AckMsg struct {
	ID     ID // the sender
	Ballot Ballot
}

func (m AckMsg) String() string {
	return fmt.Sprintf("Ack{%v, b=%d}", m.ID, m.Ballot)
}

// DecideMsg announces the decided value. It is flooded by every node that decides.
type DecideMsg struct {
	ID    ID // the sender
	Value Value
}

func (m DecideMsg) String() string {
	return fmt.Sprintf("Decide{%v, v=%d}", m.ID, m.Value)
}

// CrashMsg makes the receiver fault-prone.
type CrashMsg struct{}

func (CrashMsg) String() string { return "Crash" }

// LaunchMsg makes the receiver propose a value for the first time.
type LaunchMsg struct{}

func (LaunchMsg) String() string { return "Launch" }

// HoldMsg stops the receiver from starting any further rounds.
type HoldMsg struct{}

func (HoldMsg) String() string { return "Hold" }

// ProposeAgainEvent is raised by a node's retry timer.
type ProposeAgainEvent struct{}

func (ProposeAgainEvent) String() string { return "ProposeAgain" }

// ProposeEvent is raised when a node starts a new round.
type ProposeEvent struct {
	ID     ID
	Ballot Ballot
	Value  Value
}

func (e ProposeEvent) String() string {
	return fmt.Sprintf("Propose{%v, b=%d, v=%d}", e.ID, e.Ballot, e.Value)
}

// AbortEvent is raised when a node's current round is aborted.
type AbortEvent struct {
	ID     ID
	Ballot Ballot
}

func (e AbortEvent) String() string {
	return fmt.Sprintf("Aborted{%v, b=%d}", e.ID, e.Ballot)
}

// DecisionEvent is raised once when a node decides.
type DecisionEvent struct {
	ID      ID
	Value   Value
	Ballot  Ballot        // the deciding node's ballot at the time of the decision
	Latency time.Duration // time since the start time baseline
	Time    time.Time
}

func (e DecisionEvent) String() string {
	return fmt.Sprintf("Decision{%v, v=%d, latency=%v}", e.ID, e.Value, e.Latency)
}

// CrashEvent is raised when a fault-prone node goes silent.
type CrashEvent struct {
	ID ID
}

func (e CrashEvent) String() string {
	return fmt.Sprintf("Crashed{%v}", e.ID)
}
