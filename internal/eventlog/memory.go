package eventlog

import (
	"context"
	"slices"
	"sync"

	"github.com/gabapcia/mintwatch/internal/pkg/types"
)

// Memory is an in-process Log.
type Memory struct {
	mu      sync.Mutex
	records []Record
	keys    types.Set[string]
}

var _ Log = (*Memory)(nil)

// NewMemory returns an empty in-memory log.
func NewMemory() *Memory {
	return &Memory{keys: types.NewSet[string]()}
}

func (m *Memory) Append(_ context.Context, records ...Record) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return n, err
		}
		if m.keys.Add(r.Key()) == 0 {
			continue
		}
		m.records = append(m.records, r)
		n++
	}
	return n, nil
}

func (m *Memory) Iterate(ctx context.Context, fn func(Record) error) error {
	m.mu.Lock()
	snapshot := slices.Clone(m.records)
	m.mu.Unlock()

	for _, r := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

// Records returns a copy of everything appended so far.
func (m *Memory) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	return slices.Clone(m.records)
}
