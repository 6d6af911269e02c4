// Package syncstate holds the durable progress of the audit: a per-address
// cursor (last processed signature and last observed balance) and the greylist
// of dynamically discovered holders. State is loaded once at run start and saved
// as a whole when a run converges.
package syncstate

import (
	"context"
	"maps"

	"github.com/gabapcia/mintwatch/internal/pkg/types"

	"github.com/shopspring/decimal"
)

// Cursor is the sync position of one address.
type Cursor struct {
	// LastSignature is the newest processed signature. Empty means the address was
	// never synced and its whole history is pending.
	LastSignature string `json:"last_signature,omitempty"`

	// LastBalance is the token balance observed at the end of the last run.
	LastBalance decimal.Decimal `json:"last_balance"`

	// HasBalance distinguishes a persisted zero balance from no observation.
	HasBalance bool `json:"has_balance"`
}

// State is the persisted audit progress.
type State struct {
	Cursors  map[string]Cursor
	Greylist types.Set[string]
}

// New returns an empty State.
func New() State {
	return State{
		Cursors:  make(map[string]Cursor),
		Greylist: types.NewSet[string](),
	}
}

// Cursor returns the cursor of address, the zero Cursor when unknown.
func (s State) Cursor(address string) Cursor {
	return s.Cursors[address]
}

// SetCursor stores c for address.
func (s State) SetCursor(address string, c Cursor) {
	s.Cursors[address] = c
}

// ResetCursor rewinds address to the start of its history.
func (s State) ResetCursor(address string) {
	s.Cursors[address] = Cursor{}
}

// AddGreylist adds address to the greylist and reports whether it was new.
func (s State) AddGreylist(address string) bool {
	return s.Greylist.Add(address) == 1
}

// Clone returns a deep copy.
func (s State) Clone() State {
	return State{
		Cursors:  maps.Clone(s.Cursors),
		Greylist: s.Greylist.Clone(),
	}
}

// Normalize replaces nil collections with empty ones.
func (s State) Normalize() State {
	if s.Cursors == nil {
		s.Cursors = make(map[string]Cursor)
	}
	if s.Greylist == nil {
		s.Greylist = types.NewSet[string]()
	}
	return s
}

// Store persists State.
type Store interface {
	// Load returns the persisted state, or an empty one when nothing was saved.
	Load(ctx context.Context) (State, error)

	// Save replaces the persisted state atomically.
	Save(ctx context.Context, s State) error
}

// MemoryStore keeps State in memory. It backs tests and dry runs.
type MemoryStore struct {
	state State
	saves int
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns a store preloaded with initial.
func NewMemoryStore(initial State) *MemoryStore {
	return &MemoryStore{state: initial.Normalize().Clone()}
}

func (m *MemoryStore) Load(context.Context) (State, error) {
	return m.state.Normalize().Clone(), nil
}

func (m *MemoryStore) Save(_ context.Context, s State) error {
	m.state = s.Normalize().Clone()
	m.saves++
	return nil
}

// Saves returns how many times Save was called.
func (m *MemoryStore) Saves() int {
	return m.saves
}
