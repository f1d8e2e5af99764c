package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/NethermindEth/chaosfeed/core"
)

const (
	iterationPrefix = "iteration:"
	runPrefix       = "run:"
)

// RunInfo describes one stored simulation run.
type RunInfo struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	StartedAt time.Time `json:"startedAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Count     int       `json:"count"`
}

type IterationRepository struct {
	db Storage
}

func NewIterationRepository(db Storage) *IterationRepository {
	return &IterationRepository{db: db}
}

func iterationKey(runID string, n int) string {
	return fmt.Sprintf("%s%s:%08d", iterationPrefix, runID, n)
}

// SaveRun stores the full iteration log of a run, replacing what was there.
func (r *IterationRepository) SaveRun(info RunInfo, records []core.IterationRecord) error {
	if info.ID == "" {
		return fmt.Errorf("save run: empty run id")
	}
	if err := r.db.DeleteByPrefix(iterationPrefix + info.ID + ":"); err != nil {
		return fmt.Errorf("save run %s: %w", info.ID, err)
	}

	entries := make(map[string][]byte, len(records)+1)
	for i, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal iteration %d: %w", rec.Iteration, err)
		}
		entries[iterationKey(info.ID, i+1)] = data
	}

	info.Count = len(records)
	meta, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal run info: %w", err)
	}
	entries[runPrefix+info.ID] = meta
	return r.db.PutBatch(entries)
}

// AppendRun stores records as the iterations following the info.Count already
// stored for the run and returns the updated run info. Nothing is rewritten.
func (r *IterationRepository) AppendRun(info RunInfo, records []core.IterationRecord) (RunInfo, error) {
	if info.ID == "" {
		return info, fmt.Errorf("append run: empty run id")
	}

	entries := make(map[string][]byte, len(records)+1)
	for i, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return info, fmt.Errorf("marshal iteration %d: %w", rec.Iteration, err)
		}
		entries[iterationKey(info.ID, info.Count+i+1)] = data
	}

	next := info
	next.Count = info.Count + len(records)
	meta, err := json.Marshal(next)
	if err != nil {
		return info, fmt.Errorf("marshal run info: %w", err)
	}
	entries[runPrefix+info.ID] = meta
	if err := r.db.PutBatch(entries); err != nil {
		return info, fmt.Errorf("append run %s: %w", info.ID, err)
	}
	return next, nil
}

// Records returns a run's iterations in turn order.
func (r *IterationRepository) Records(runID string) ([]core.IterationRecord, error) {
	records := []core.IterationRecord{}
	err := r.db.IteratePrefix(iterationPrefix+runID+":", func(key string, value []byte) error {
		var rec core.IterationRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Run returns the metadata of one run.
func (r *IterationRepository) Run(runID string) (RunInfo, error) {
	var info RunInfo
	err := r.db.GetObject(runPrefix+runID, &info)
	return info, err
}

// Runs lists stored runs, most recently started first.
func (r *IterationRepository) Runs() ([]RunInfo, error) {
	var runs []RunInfo
	err := r.db.IteratePrefix(runPrefix, func(key string, value []byte) error {
		var info RunInfo
		if err := json.Unmarshal(value, &info); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		if info.ID == "" {
			info.ID = strings.TrimPrefix(key, runPrefix)
		}
		runs = append(runs, info)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	return runs, nil
}

// Latest returns the most recently started run, or ErrNotFound.
func (r *IterationRepository) Latest() (RunInfo, error) {
	runs, err := r.Runs()
	if err != nil {
		return RunInfo{}, err
	}
	if len(runs) == 0 {
		return RunInfo{}, fmt.Errorf("%w: no stored runs", ErrNotFound)
	}
	return runs[0], nil
}

// DeleteRun removes a run and its iterations.
func (r *IterationRepository) DeleteRun(runID string) error {
	if err := r.db.DeleteByPrefix(iterationPrefix + runID + ":"); err != nil {
		return err
	}
	return r.db.Delete(runPrefix + runID)
}
