package metrics

import (
	"fmt"
	"time"

	"github.com/relab/ofcons"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Record kinds.
const (
	KindRun      = "run"
	KindDecision = "decision"
	KindCrash    = "crash"
)

// Decision is a decision read back from a measurement log.
type Decision struct {
	RunID   string
	ID      ofcons.ID
	Value   ofcons.Value
	Ballot  ofcons.Ballot
	Latency time.Duration
	Time    time.Time
}

// RunInfo describes an experiment.
type RunInfo struct {
	RunID  string
	Nodes  int
	Faulty int
	Start  time.Time
}

// NewRunRecord returns the record that opens the measurements of a run.
func NewRunRecord(info RunInfo) (*structpb.Struct, error) {
	return newRecord(KindRun, info.RunID, map[string]any{
		"nodes":  info.Nodes,
		"faulty": info.Faulty,
	}, map[string]proto.Message{
		"start": timestamppb.New(info.Start),
	})
}

// NewDecisionRecord returns the record of a decision.
func NewDecisionRecord(runID string, e ofcons.DecisionEvent) (*structpb.Struct, error) {
	return newRecord(KindDecision, runID, map[string]any{
		"replica": int(e.ID),
		"value":   int(e.Value),
		"ballot":  int(e.Ballot),
	}, map[string]proto.Message{
		"latency": durationpb.New(e.Latency),
		"time":    timestamppb.New(e.Time),
	})
}

// NewCrashRecord returns the record of a crash.
func NewCrashRecord(runID string, id ofcons.ID, t time.Time) (*structpb.Struct, error) {
	return newRecord(KindCrash, runID, map[string]any{
		"replica": int(id),
	}, map[string]proto.Message{
		"time": timestamppb.New(t),
	})
}

// newRecord builds a record from plain fields and well-known types.
// Well-known types are stored in their canonical JSON form.
func newRecord(kind, runID string, fields map[string]any, wellKnown map[string]proto.Message) (*structpb.Struct, error) {
	fields["kind"] = kind
	fields["run"] = runID
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s record: %w", kind, err)
	}
	for name, msg := range wellKnown {
		b, err := protojson.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s of %s record: %w", name, kind, err)
		}
		v := &structpb.Value{}
		if err := protojson.Unmarshal(b, v); err != nil {
			return nil, fmt.Errorf("failed to convert %s of %s record: %w", name, kind, err)
		}
		s.Fields[name] = v
	}
	return s, nil
}

// RecordKind returns the kind of a record.
func RecordKind(s *structpb.Struct) string {
	return s.GetFields()["kind"].GetStringValue()
}

// ParseDecision reads a decision record.
func ParseDecision(s *structpb.Struct) (Decision, error) {
	if kind := RecordKind(s); kind != KindDecision {
		return Decision{}, fmt.Errorf("not a decision record: %q", kind)
	}
	f := s.GetFields()
	d := Decision{
		RunID:  f["run"].GetStringValue(),
		ID:     ofcons.ID(f["replica"].GetNumberValue()),
		Value:  ofcons.Value(f["value"].GetNumberValue()),
		Ballot: ofcons.Ballot(f["ballot"].GetNumberValue()),
	}
	var (
		latency durationpb.Duration
		ts      timestamppb.Timestamp
	)
	if err := unmarshalWellKnown(f["latency"], &latency); err != nil {
		return Decision{}, fmt.Errorf("invalid latency: %w", err)
	}
	if err := unmarshalWellKnown(f["time"], &ts); err != nil {
		return Decision{}, fmt.Errorf("invalid time: %w", err)
	}
	d.Latency = latency.AsDuration()
	d.Time = ts.AsTime()
	return d, nil
}

func unmarshalWellKnown(v *structpb.Value, msg proto.Message) error {
	if v == nil {
		return fmt.Errorf("missing field")
	}
	b, err := protojson.Marshal(v)
	if err != nil {
		return err
	}
	return protojson.Unmarshal(b, msg)
}
