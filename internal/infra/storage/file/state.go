// Package file implements the default storage: the sync state as one JSON
// document and the event log as JSON lines.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gabapcia/mintwatch/internal/pkg/types"
	"github.com/gabapcia/mintwatch/internal/syncstate"
)

// stateDocument is the on-disk layout. The greylist is kept sorted so the file
// diffs cleanly between runs.
type stateDocument struct {
	Cursors  map[string]syncstate.Cursor `json:"cursors"`
	Greylist []string                    `json:"greylist"`
}

// StateStore persists the sync state in a JSON file.
type StateStore struct {
	path string
}

var _ syncstate.Store = (*StateStore)(nil)

// NewStateStore returns a store backed by path. The file is created on the
// first Save.
func NewStateStore(path string) *StateStore {
	return &StateStore{path: path}
}

// Load reads the state. A missing file is an empty state.
func (s *StateStore) Load(context.Context) (syncstate.State, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return syncstate.New(), nil
	}
	if err != nil {
		return syncstate.State{}, err
	}

	var doc stateDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return syncstate.State{}, fmt.Errorf("decode %s: %w", s.path, err)
	}

	return syncstate.State{
		Cursors:  doc.Cursors,
		Greylist: types.NewSet(doc.Greylist...),
	}.Normalize(), nil
}

// Save writes the state to a temporary file in the same directory and renames
// it over the previous one, so a crash leaves either the old or the new state.
func (s *StateStore) Save(_ context.Context, state syncstate.State) error {
	state = state.Normalize()

	raw, err := json.MarshalIndent(stateDocument{
		Cursors:  state.Cursors,
		Greylist: types.Sorted(state.Greylist),
	}, "", "  ")
	if err != nil {
		return err
	}

	return writeAtomic(s.path, raw)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		return errors.Join(err, tmp.Close())
	}
	if err := tmp.Sync(); err != nil {
		return errors.Join(err, tmp.Close())
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), path)
}
