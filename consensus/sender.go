package consensus

import "github.com/relab/ofcons"

// Sender delivers protocol messages to the members of the system.
// Implementations must not block and must preserve per-receiver FIFO order.
type Sender interface {
	// Send delivers msg to the node with the given ID.
	Send(to ofcons.ID, msg any)
	// Broadcast delivers msg to every node in the membership, including the caller.
	Broadcast(msg any)
}

//go:generate mockgen -destination=../internal/mocks/sender_mock.go -package=mocks . Sender
