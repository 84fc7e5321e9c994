package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/relab/ofcons"
	"github.com/relab/ofcons/eventloop"
	"github.com/relab/ofcons/logging"
)

// Recorder collects the events raised by a set of replicas.
// It is safe to attach it to the event loops of several replicas.
type Recorder struct {
	runID      string
	collectors *Collectors
	mLogger    Logger
	logger     logging.Logger

	mut       sync.Mutex
	latency   LatencyStats
	decisions map[ofcons.ID]ofcons.DecisionEvent
	crashes   int
}

// NewRecorder returns a recorder for the run with the given ID.
// Collectors may be nil.
func NewRecorder(runID string, collectors *Collectors, mLogger Logger, logger logging.Logger) *Recorder {
	return &Recorder{
		runID:      runID,
		collectors: collectors,
		mLogger:    mLogger,
		logger:     logger,
		decisions:  make(map[ofcons.ID]ofcons.DecisionEvent),
	}
}

// Attach registers the recorder's handlers on a replica's event loop.
func (r *Recorder) Attach(el *eventloop.EventLoop) {
	eventloop.Register(el, r.onPropose)
	eventloop.Register(el, r.onAbort)
	eventloop.Register(el, r.onDecision)
	eventloop.Register(el, r.onCrash)
}

func (r *Recorder) onPropose(ofcons.ProposeEvent) {
	if r.collectors != nil {
		r.collectors.Proposals.Inc()
	}
}

func (r *Recorder) onAbort(ofcons.AbortEvent) {
	if r.collectors != nil {
		r.collectors.Aborts.Inc()
	}
}

func (r *Recorder) onDecision(e ofcons.DecisionEvent) {
	r.mut.Lock()
	r.decisions[e.ID] = e
	r.latency.Add(e.Latency)
	r.mut.Unlock()

	if r.collectors != nil {
		r.collectors.Decisions.WithLabelValues(strconv.Itoa(int(e.Value))).Inc()
		r.collectors.DecisionLatency.Observe(e.Latency.Seconds())
	}
	rec, err := NewDecisionRecord(r.runID, e)
	if err != nil {
		r.logger.Error(err)
		return
	}
	r.mLogger.Log(rec)
}

func (r *Recorder) onCrash(e ofcons.CrashEvent) {
	r.mut.Lock()
	r.crashes++
	r.mut.Unlock()

	if r.collectors != nil {
		r.collectors.Crashes.Inc()
	}
	rec, err := NewCrashRecord(r.runID, e.ID, time.Now())
	if err != nil {
		r.logger.Error(err)
		return
	}
	r.mLogger.Log(rec)
}

// Latency returns the statistics of the decision latencies recorded so far.
func (r *Recorder) Latency() LatencyStats {
	r.mut.Lock()
	defer r.mut.Unlock()
	return r.latency
}

// Decisions returns the decisions recorded so far, by replica.
func (r *Recorder) Decisions() map[ofcons.ID]ofcons.DecisionEvent {
	r.mut.Lock()
	defer r.mut.Unlock()
	decisions := make(map[ofcons.ID]ofcons.DecisionEvent, len(r.decisions))
	for id, e := range r.decisions {
		decisions[id] = e
	}
	return decisions
}

// Crashes returns the number of crashes recorded so far.
func (r *Recorder) Crashes() int {
	r.mut.Lock()
	defer r.mut.Unlock()
	return r.crashes
}
