package watchset

import (
	"github.com/gabapcia/mintwatch/internal/pkg/types"

	"github.com/shopspring/decimal"
)

// Phase is the position of a run in its state machine.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseScanning    Phase = "scanning"
	PhaseClassifying Phase = "classifying"
	PhaseConverged   Phase = "converged"
)

// runState is process scoped: it lives for one Run and is never persisted.
type runState struct {
	id    string
	phase Phase
	pass  int

	// scanned holds every address synced (or attempted) this run.
	scanned types.Set[string]

	// analyzed holds every signature already fetched and analyzed this run, so a
	// transaction seen from two addresses is derived once.
	analyzed types.Set[string]

	// synced are the addresses whose sync fully completed. Only they get their
	// cursor advanced and their balance refreshed.
	synced types.Set[string]

	// balances observed during the skip check, reused by the balance refresh.
	balances map[string]decimal.Decimal

	failed          types.Set[string]
	skipped         int
	newlyGreylisted []string

	transactions int
	transfers    int
	violations   int
	freezes      int
	appended     int
}

func newRunState(id string) *runState {
	return &runState{
		id:       id,
		phase:    PhaseIdle,
		scanned:  types.NewSet[string](),
		analyzed: types.NewSet[string](),
		synced:   types.NewSet[string](),
		balances: make(map[string]decimal.Decimal),
		failed:   types.NewSet[string](),
	}
}

// pending returns the addresses of candidates not scanned yet, sorted.
func (rs *runState) pending(candidates types.Set[string]) []string {
	out := types.NewSet[string]()
	for addr := range candidates {
		if !rs.scanned.Has(addr) {
			out.Add(addr)
		}
	}
	return types.Sorted(out)
}
