// Package plotting reads measurement logs and plots them.
package plotting

import (
	"encoding/json"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Plotter processes records from a reader.
type Plotter interface {
	// Add adds a record to the plotter.
	Add(record *structpb.Struct) error
}

// Reader reads records from a JSON measurement log.
type Reader struct {
	plotters []Plotter
	rd       io.Reader
}

// NewReader returns a new reader that reads from rd and adds the records to the plotters.
func NewReader(rd io.Reader, plotters ...Plotter) *Reader {
	return &Reader{
		plotters: plotters,
		rd:       rd,
	}
}

// ReadAll reads all records in the source.
func (r *Reader) ReadAll() error {
	decoder := json.NewDecoder(r.rd)

	t, err := decoder.Token()
	if err != nil {
		return fmt.Errorf("failed to read first JSON token: %w", err)
	}
	if d, ok := t.(json.Delim); !ok || d != '[' {
		return fmt.Errorf("expected first JSON token to be the start of an array")
	}

	for decoder.More() {
		var b json.RawMessage
		if err := decoder.Decode(&b); err != nil {
			return err
		}
		if err := r.read(b); err != nil {
			return err
		}
	}

	t, err = decoder.Token()
	if err != nil {
		return fmt.Errorf("failed to read last JSON token: %w", err)
	}
	if d, ok := t.(json.Delim); !ok || d != ']' {
		return fmt.Errorf("expected last JSON token to be the end of an array")
	}
	return nil
}

func (r *Reader) read(b []byte) error {
	anyMsg := &anypb.Any{}
	if err := protojson.Unmarshal(b, anyMsg); err != nil {
		return fmt.Errorf("failed to unmarshal JSON message: %w", err)
	}
	record := &structpb.Struct{}
	if err := anyMsg.UnmarshalTo(record); err != nil {
		return fmt.Errorf("failed to unmarshal Any message: %w", err)
	}
	for _, p := range r.plotters {
		if err := p.Add(record); err != nil {
			return err
		}
	}
	return nil
}
