// Package export delivers the iteration log to its destinations.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/NethermindEth/chaosfeed/core"
)

// DefaultFilename is the name used for file exports and downloads.
const DefaultFilename = "openai-responses.json"

// Sink receives the whole iteration log. Every call carries the complete log of
// the current run, so sinks overwrite rather than append.
type Sink interface {
	Export(ctx context.Context, records []core.IterationRecord) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, records []core.IterationRecord) error

func (f SinkFunc) Export(ctx context.Context, records []core.IterationRecord) error {
	return f(ctx, records)
}

// Multi fans out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Export(ctx context.Context, records []core.IterationRecord) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Export(ctx, records); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Marshal renders records the way every sink writes them: an indented JSON
// array, empty logs included.
func Marshal(records []core.IterationRecord) ([]byte, error) {
	if records == nil {
		records = []core.IterationRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal iterations: %w", err)
	}
	return append(data, '\n'), nil
}
