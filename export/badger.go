package export

import (
	"context"
	"sync"
	"time"

	"github.com/NethermindEth/chaosfeed/core"
	"github.com/NethermindEth/chaosfeed/storage"
)

// BadgerSink keeps each run's log in the key/value store. A run is identified
// by the timestamp of its first record, so a restarted simulation lands in a
// new run without any coordination with the loop. Each export only writes the
// records the run has gained since the previous one.
type BadgerSink struct {
	repo  *storage.IterationRepository
	topic func() string

	mu  sync.Mutex
	run storage.RunInfo
}

// NewBadgerSink creates a sink. topic, when set, labels new runs.
func NewBadgerSink(repo *storage.IterationRepository, topic func() string) *BadgerSink {
	return &BadgerSink{repo: repo, topic: topic}
}

// RunID returns the run last written to.
func (s *BadgerSink) RunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run.ID
}

func (s *BadgerSink) Export(ctx context.Context, records []core.IterationRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	first := records[0].Timestamp.UTC()
	id := RunID(first)
	if s.run.ID != id {
		s.run = storage.RunInfo{ID: id, StartedAt: first}
		if s.topic != nil {
			s.run.Topic = s.topic()
		}
	}

	info := s.run
	info.UpdatedAt = records[len(records)-1].Timestamp.UTC()
	if len(records) < info.Count {
		// the log shrank under the same run id; store it whole
		if err := s.repo.SaveRun(info, records); err != nil {
			return err
		}
		info.Count = len(records)
		s.run = info
		return nil
	}

	next, err := s.repo.AppendRun(info, records[info.Count:])
	if err != nil {
		return err
	}
	s.run = next
	return nil
}

// RunID derives a sortable run id from the time of a run's first turn.
func RunID(first time.Time) string {
	return first.UTC().Format("20060102T150405.000000000Z")
}
