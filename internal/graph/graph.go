// Package graph aggregates the event log into a holder graph: who sent how much
// to whom, which transfers were violations and who is currently frozen.
package graph

import (
	"cmp"
	"context"
	"encoding/json"
	"io"
	"slices"
	"strings"

	"github.com/gabapcia/mintwatch/internal/eventlog"
	"github.com/gabapcia/mintwatch/internal/pkg/types"
	"github.com/gabapcia/mintwatch/internal/transfer"

	"github.com/shopspring/decimal"
)

// Role is how the audit sees an address.
type Role string

const (
	RolePayer      Role = "payer"
	RoleAllowed    Role = "allow-listed"
	RoleGreylisted Role = "greylisted"
	RoleExternal   Role = "external"
	// RoleAmbiguous is the synthetic node standing for a set of possible senders.
	RoleAmbiguous Role = "ambiguous"
)

const ambiguousPrefix = "ambiguous:"

// Node is one address of the graph.
type Node struct {
	Address string          `json:"address"`
	Role    Role            `json:"role"`
	Balance decimal.Decimal `json:"balance"` // net flow observed in the log
	Frozen  bool            `json:"frozen"`

	// ProgramDerived marks addresses off the ed25519 curve, which no private
	// key controls.
	ProgramDerived bool `json:"program_derived"`
}

// Edge aggregates every transfer from one node to another.
type Edge struct {
	From       string          `json:"from"`
	To         string          `json:"to"`
	Amount     decimal.Decimal `json:"amount"`
	Transfers  int             `json:"transfers"`
	Violations int             `json:"violations"`
}

// Graph is the exported document.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Roles are the address sets known at build time.
type Roles struct {
	Payer    string
	Allowed  types.Set[string]
	Greylist types.Set[string]
}

func (r Roles) of(address string) Role {
	switch {
	case strings.HasPrefix(address, ambiguousPrefix):
		return RoleAmbiguous
	case address == r.Payer:
		return RolePayer
	case r.Allowed.Has(address):
		return RoleAllowed
	case r.Greylist.Has(address):
		return RoleGreylisted
	default:
		return RoleExternal
	}
}

type edgeKey struct{ from, to string }

// senderNode names the node a transfer leaves from.
func senderNode(s transfer.Sender) string {
	if addr, ok := s.Exact(); ok {
		return addr
	}
	return ambiguousPrefix + strings.Join(s.Candidates(), ",")
}

func programDerived(address string) bool {
	addr, err := types.ParseAddress(address)
	if err != nil {
		return false
	}
	return !addr.IsOnCurve()
}

// Build reads the whole log.
func Build(ctx context.Context, log eventlog.Log, roles Roles) (Graph, error) {
	var (
		flows  = types.NewDefaultMap[string, decimal.Decimal](func() decimal.Decimal { return decimal.Zero })
		edges  = types.NewDefaultMap[edgeKey, Edge](func() Edge { return Edge{Amount: decimal.Zero} })
		frozen = make(map[string]bool)
	)

	err := log.Iterate(ctx, func(r eventlog.Record) error {
		switch r.Type {
		case eventlog.TypeFreeze, eventlog.TypeThaw:
			holder := cmp.Or(r.Owner, r.Account)
			frozen[holder] = r.Type == eventlog.TypeFreeze
			flows.Get(holder)
			return nil
		}

		ev, ok := r.Transfer()
		if !ok {
			return nil
		}

		from := senderNode(ev.Sender)
		flows.Update(from, func(v decimal.Decimal) decimal.Decimal { return v.Sub(ev.Amount) })
		flows.Update(ev.Recipient, func(v decimal.Decimal) decimal.Decimal { return v.Add(ev.Amount) })
		edges.Update(edgeKey{from, ev.Recipient}, func(e Edge) Edge {
			e.From, e.To = from, ev.Recipient
			e.Amount = e.Amount.Add(ev.Amount)
			e.Transfers++
			if ev.Classification == transfer.Violation {
				e.Violations++
			}
			return e
		})
		return nil
	})
	if err != nil {
		return Graph{}, err
	}

	g := Graph{Nodes: make([]Node, 0, flows.Len()), Edges: make([]Edge, 0, edges.Len())}
	for addr, balance := range flows.ToMap() {
		g.Nodes = append(g.Nodes, Node{
			Address:        addr,
			Role:           roles.of(addr),
			Balance:        balance,
			Frozen:         frozen[addr],
			ProgramDerived: programDerived(addr),
		})
	}
	for _, e := range edges.ToMap() {
		g.Edges = append(g.Edges, e)
	}

	slices.SortFunc(g.Nodes, func(a, b Node) int { return cmp.Compare(a.Address, b.Address) })
	slices.SortFunc(g.Edges, func(a, b Edge) int {
		return cmp.Or(cmp.Compare(a.From, b.From), cmp.Compare(a.To, b.To))
	})
	return g, nil
}

// WriteJSON writes g indented.
func (g Graph) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(g)
}
