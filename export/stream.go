package export

import (
	"context"
	"fmt"
	"io"

	"github.com/NethermindEth/chaosfeed/core"
)

// StreamSink writes the log to W. Used for downloads and stdout.
type StreamSink struct {
	W io.Writer
}

func (s StreamSink) Export(ctx context.Context, records []core.IterationRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := Marshal(records)
	if err != nil {
		return err
	}
	if _, err := s.W.Write(data); err != nil {
		return fmt.Errorf("stream export: %w", err)
	}
	return nil
}

// ContentDisposition is the header value for a download of the log.
func ContentDisposition() string {
	return fmt.Sprintf("attachment; filename=%s", DefaultFilename)
}
