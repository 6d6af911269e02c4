package file

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/gabapcia/mintwatch/internal/eventlog"
	"github.com/gabapcia/mintwatch/internal/pkg/logger"
	"github.com/gabapcia/mintwatch/internal/pkg/types"
)

// maxLineSize bounds a single record line.
const maxLineSize = 1 << 20

// EventLog is an append-only JSON-lines file. The keys of every stored record
// are indexed at open so Append can skip duplicates.
type EventLog struct {
	path string

	mu   sync.Mutex
	file *os.File
	keys types.Set[string]
}

var _ eventlog.Log = (*EventLog)(nil)

// OpenEventLog opens or creates the log at path.
func OpenEventLog(path string) (*EventLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	l := &EventLog{path: path, file: f, keys: types.NewSet[string]()}
	if err := l.index(); err != nil {
		return nil, errors.Join(fmt.Errorf("index %s: %w", path, err), f.Close())
	}

	return l, nil
}

// index loads the keys of every stored record. A final line that is torn or
// undecodable is what an interrupted Append leaves behind, so it is cut off; a
// bad line followed by more records is corruption and fails the open.
func (l *EventLog) index() error {
	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		return err
	}

	var (
		reader  = bufio.NewReader(l.file)
		intact  int64
		size    int64
		line    int
		badLine error
	)
	for {
		raw, err := reader.ReadBytes('\n')
		if len(raw) > 0 {
			line++
			size += int64(len(raw))

			if badLine != nil {
				return badLine
			}

			if raw[len(raw)-1] != '\n' {
				if err != nil && !errors.Is(err, io.EOF) {
					return err
				}
				break
			}

			if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 {
				var rec eventlog.Record
				if err := json.Unmarshal(trimmed, &rec); err != nil {
					badLine = fmt.Errorf("line %d: %w", line, err)
					continue
				}
				l.keys.Add(rec.Key())
			}
			intact = size
		}

		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
	}

	if intact == size {
		return nil
	}

	if err := l.file.Truncate(intact); err != nil {
		return fmt.Errorf("truncate incomplete tail: %w", err)
	}
	logger.Warn(context.Background(), "event log tail truncated", "path", l.path, "offset", intact, "dropped_bytes", size-intact)
	return nil
}

func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.file.Close()
}

// Append writes the new records and syncs the file before returning. A failed
// write is rolled back to the previous size so no partial line stays behind.
func (l *EventLog) Append(_ context.Context, records ...eventlog.Record) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var (
		buf   []byte
		added []string
		batch = types.NewSet[string]()
	)
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return 0, err
		}

		key := r.Key()
		if l.keys.Has(key) || batch.Add(key) == 0 {
			continue
		}

		line, err := json.Marshal(r)
		if err != nil {
			return 0, err
		}
		buf = append(append(buf, line...), '\n')
		added = append(added, key)
	}

	if len(added) == 0 {
		return 0, nil
	}

	info, err := l.file.Stat()
	if err != nil {
		return 0, err
	}

	if _, err := l.file.Write(buf); err != nil {
		return 0, errors.Join(err, l.file.Truncate(info.Size()))
	}
	if err := l.file.Sync(); err != nil {
		return 0, errors.Join(err, l.file.Truncate(info.Size()))
	}

	l.keys.Add(added...)
	return len(added), nil
}

// Iterate reads the file from the start. Records appended during iteration may
// or may not be visited.
func (l *EventLog) Iterate(ctx context.Context, fn func(eventlog.Record) error) error {
	f, err := os.Open(l.path)
	if err != nil {
		return err
	}
	defer f.Close()

	return scan(f, func(r eventlog.Record) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fn(r)
	})
}

func scan(r io.Reader, fn func(eventlog.Record) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}

		var rec eventlog.Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return scanner.Err()
}
