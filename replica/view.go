package replica

import (
	"github.com/relab/ofcons"
	"github.com/relab/ofcons/logging"
)

// view is the membership known to a replica. It sends messages on behalf of the consensus engine.
type view struct {
	self    ofcons.ID
	members ofcons.Membership
	logger  logging.Logger
}

// install sets the membership. Only the first valid membership is accepted.
func (v *view) install(m ofcons.Membership, n int) bool {
	if v.members != nil {
		v.logger.Warn("membership already installed")
		return false
	}
	if err := m.Validate(n); err != nil {
		v.logger.Errorf("rejecting membership: %v", err)
		return false
	}
	v.members = m
	return true
}

func (v *view) installed() bool {
	return v.members != nil
}

// Send delivers msg to the replica with the given ID.
func (v *view) Send(to ofcons.ID, msg any) {
	if to < 0 || int(to) >= len(v.members) {
		v.logger.Warnf("cannot send %v to unknown replica %v", msg, to)
		return
	}
	v.members[to].Deliver(msg)
}

// Broadcast delivers msg to every replica, including this one.
func (v *view) Broadcast(msg any) {
	if !v.installed() {
		v.logger.Warnf("cannot broadcast %v without a membership", msg)
		return
	}
	for _, p := range v.members {
		p.Deliver(msg)
	}
}
