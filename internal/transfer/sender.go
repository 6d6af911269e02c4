package transfer

import (
	"encoding/json"
	"fmt"
	"slices"
)

type senderKind string

const (
	senderExact     senderKind = "exact"
	senderAmbiguous senderKind = "ambiguous"
)

// Sender attributes the origin of a transfer: either one exact address or the
// set of candidates when several accounts lost tokens in the same transaction.
type Sender struct {
	kind       senderKind
	address    string
	candidates []string
}

// ExactSender attributes a transfer to a single address.
func ExactSender(address string) Sender {
	return Sender{kind: senderExact, address: address}
}

// AmbiguousSenders attributes a transfer to one of several candidates. The
// candidates are kept sorted.
func AmbiguousSenders(candidates ...string) Sender {
	c := slices.Clone(candidates)
	slices.Sort(c)
	return Sender{kind: senderAmbiguous, candidates: slices.Compact(c)}
}

// Exact returns the sender address and true when attribution is exact.
func (s Sender) Exact() (string, bool) {
	return s.address, s.kind == senderExact
}

// IsAmbiguous reports whether the sender is a candidate set.
func (s Sender) IsAmbiguous() bool {
	return s.kind == senderAmbiguous
}

// Candidates returns every possible sender: the exact one or the candidate set.
func (s Sender) Candidates() []string {
	if s.kind == senderExact {
		return []string{s.address}
	}
	return slices.Clone(s.candidates)
}

// Is reports whether the sender is exactly address.
func (s Sender) Is(address string) bool {
	return s.kind == senderExact && s.address == address
}

func (s Sender) String() string {
	switch s.kind {
	case senderExact:
		return s.address
	case senderAmbiguous:
		return fmt.Sprintf("ambiguous%v", s.candidates)
	default:
		return ""
	}
}

type senderJSON struct {
	Kind       senderKind `json:"kind"`
	Address    string     `json:"address,omitempty"`
	Candidates []string   `json:"candidates,omitempty"`
}

func (s Sender) MarshalJSON() ([]byte, error) {
	return json.Marshal(senderJSON{Kind: s.kind, Address: s.address, Candidates: s.candidates})
}

func (s *Sender) UnmarshalJSON(data []byte) error {
	var raw senderJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch raw.Kind {
	case senderExact:
		*s = ExactSender(raw.Address)
	case senderAmbiguous:
		*s = AmbiguousSenders(raw.Candidates...)
	default:
		return fmt.Errorf("unknown sender kind %q", raw.Kind)
	}
	return nil
}
