// Package ofcons contains the types shared by the consensus engine, the node runtime
// and the message router: node identities, ballots, values and the messages exchanged
// between nodes.
package ofcons

import (
	"fmt"
	"strconv"
)

// ID is the dense identifier of a node. IDs range over [0, N) and are used directly as
// indices into state vectors and the membership list.
type ID int

// NoID is used as the sender of messages that do not originate from a node.
const NoID ID = -1

func (id ID) String() string {
	if id == NoID {
		return "driver"
	}
	return "p" + strconv.Itoa(int(id))
}

// Ballot is a round number. Ballots of different nodes never collide:
// node id only ever uses ballots congruent to id+1 modulo N.
type Ballot int

// FirstBallot returns the ballot a node starts out with, before its first proposal.
func FirstBallot(id ID, n int) Ballot {
	return Ballot(int(id) + 1 - n)
}

// Next returns the ballot of the next round of the ballot's owner.
func (b Ballot) Next(n int) Ballot {
	return b + Ballot(n)
}

// Owner returns the ID of the node that uses ballot b in a system of n nodes.
func (b Ballot) Owner(n int) ID {
	r := (int(b) - 1) % n
	if r < 0 {
		r += n
	}
	return ID(r)
}

// Value is a value that can be proposed and decided.
type Value int

// Estimate is an optional value. The zero Estimate holds no value.
type Estimate struct {
	value Value
	ok    bool
}

// Some returns an estimate holding v.
func Some(v Value) Estimate {
	return Estimate{value: v, ok: true}
}

// None returns an empty estimate.
func None() Estimate {
	return Estimate{}
}

// Get returns the value and whether the estimate holds one.
func (e Estimate) Get() (Value, bool) {
	return e.value, e.ok
}

// IsSet returns true if the estimate holds a value.
func (e Estimate) IsSet() bool {
	return e.ok
}

func (e Estimate) String() string {
	if !e.ok {
		return "⊥"
	}
	return fmt.Sprint(e.value)
}
