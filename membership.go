package ofcons

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

// ErrInvalidMembership is returned when a membership list does not describe n dense peers.
var ErrInvalidMembership = errors.New("invalid membership")

// Peer is a handle that messages can be delivered to.
// Deliver must not block and must preserve the order of messages delivered by a single caller.
type Peer interface {
	ID() ID
	Deliver(msg any)
}

// Membership is the ordered list of all nodes in the system, such that m[i].ID() == i.
// It is installed once on every node and never changes.
type Membership []Peer

// Validate checks that the membership contains exactly n peers ordered by their IDs.
func (m Membership) Validate(n int) (err error) {
	if len(m) != n {
		err = multierr.Append(err, fmt.Errorf("got %d peers, want %d", len(m), n))
	}
	for i, p := range m {
		if p == nil {
			err = multierr.Append(err, fmt.Errorf("peer %d is nil", i))
			continue
		}
		if p.ID() != ID(i) {
			err = multierr.Append(err, fmt.Errorf("peer at index %d has id %v", i, p.ID()))
		}
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMembership, err)
	}
	return nil
}

// IDs returns the IDs of the peers in order.
func (m Membership) IDs() []ID {
	ids := make([]ID, len(m))
	for i, p := range m {
		ids[i] = p.ID()
	}
	return ids
}
