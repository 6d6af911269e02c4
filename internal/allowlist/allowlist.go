// Package allowlist reads the static set of addresses authorized to hold the
// monitored token.
package allowlist

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gabapcia/mintwatch/internal/pkg/types"
	"github.com/gabapcia/mintwatch/internal/pkg/validator"
)

// ErrInvalidEntry is returned for a line that is not a valid address.
var ErrInvalidEntry = errors.New("invalid allow-list entry")

// Parse reads one address per line. Blank lines and everything after a '#' are
// ignored. Every invalid line is reported.
func Parse(r io.Reader) (types.Set[string], error) {
	var (
		set     = types.NewSet[string]()
		errs    []error
		scanner = bufio.NewScanner(r)
		line    int
	)

	for scanner.Scan() {
		line++

		entry, _, _ := strings.Cut(scanner.Text(), "#")
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		if err := validator.Var(entry, "solana_address"); err != nil {
			errs = append(errs, fmt.Errorf("%w: line %d: %q", ErrInvalidEntry, line, entry))
			continue
		}
		set.Add(entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return set, nil
}

// File loads the allow-list from a path on every Load, so edits are picked up
// by the next run.
type File struct {
	Path string
}

// Load reads and parses the file. A missing path yields an empty allow-list.
func (f File) Load(context.Context) (types.Set[string], error) {
	if f.Path == "" {
		return types.NewSet[string](), nil
	}

	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("open allow-list: %w", err)
	}
	defer file.Close()

	set, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("parse allow-list %s: %w", f.Path, err)
	}
	return set, nil
}
