package consensus

import "github.com/relab/ofcons"

type slot struct {
	estimate  ofcons.Estimate
	estBallot ofcons.Ballot
	responded bool
}

// stateVector holds the gather responses of the current round, indexed by sender ID.
type stateVector []slot

func newStateVector(n int) stateVector {
	return make(stateVector, n)
}

// record stores the response of id. It returns false if id is out of range.
func (sv stateVector) record(id ofcons.ID, est ofcons.Estimate, estBallot ofcons.Ballot) bool {
	if id < 0 || int(id) >= len(sv) {
		return false
	}
	sv[id] = slot{estimate: est, estBallot: estBallot, responded: true}
	return true
}

func (sv stateVector) responses() (count int) {
	for _, s := range sv {
		if s.responded {
			count++
		}
	}
	return count
}

// highest returns the estimate with the strictly greatest ballot among the slots
// that hold an estimate. Ties go to the lowest index.
func (sv stateVector) highest() (v ofcons.Value, ok bool) {
	var best ofcons.Ballot
	for _, s := range sv {
		if !s.responded {
			continue
		}
		val, set := s.estimate.Get()
		if !set {
			continue
		}
		if !ok || s.estBallot > best {
			v, best, ok = val, s.estBallot, true
		}
	}
	return v, ok
}

func (sv stateVector) reset() {
	for i := range sv {
		sv[i] = slot{}
	}
}
