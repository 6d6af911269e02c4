// Package sigsync fetches, for one address, every signature newer than the last
// processed one. Pages are walked backward from the present and the result is
// returned oldest first, so consecutive fetches concatenate into the complete
// history with neither gaps nor duplicates.
package sigsync

import (
	"context"
	"fmt"
	"slices"

	"github.com/gabapcia/mintwatch/internal/ledger"
	"github.com/gabapcia/mintwatch/internal/pkg/resilience/retry"
)

// SignatureLister is the part of the ledger facade the fetcher needs.
type SignatureLister interface {
	ListSignatures(ctx context.Context, address, before string, limit int) ([]ledger.SignatureInfo, error)
}

type config struct {
	pageSize int
	retry    retry.Retry
}

// Option configures a Fetcher.
type Option func(*config)

// Fetcher walks signature histories.
type Fetcher struct {
	lister   SignatureLister
	pageSize int
	retry    retry.Retry
}

// New returns a Fetcher over lister. Defaults: pages of
// ledger.MaxSignaturesPerPage, 3 attempts per page with exponential backoff
// honouring ledger.IsRetryable.
func New(lister SignatureLister, opts ...Option) *Fetcher {
	cfg := config{
		pageSize: ledger.MaxSignaturesPerPage,
		retry:    retry.New(retry.WithRetryIf(ledger.IsRetryable)),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Fetcher{
		lister:   lister,
		pageSize: cfg.pageSize,
		retry:    cfg.retry,
	}
}

// WithPageSize sets the page size, capped to ledger.MaxSignaturesPerPage.
func WithPageSize(n int) Option {
	return func(c *config) {
		c.pageSize = min(max(n, 1), ledger.MaxSignaturesPerPage)
	}
}

// WithRetry sets the retry policy applied to every page request.
func WithRetry(r retry.Retry) Option {
	return func(c *config) {
		c.retry = r
	}
}

func (f *Fetcher) page(ctx context.Context, address, before string, limit int) ([]ledger.SignatureInfo, error) {
	var page []ledger.SignatureInfo
	err := f.retry.Execute(ctx, func() error {
		var err error
		page, err = f.lister.ListSignatures(ctx, address, before, limit)
		return err
	})
	return page, err
}

// FetchNewSignatures returns the signatures of address strictly newer than
// lastKnown, oldest first, together with the newest signature now known (which
// is lastKnown when nothing new happened). An empty lastKnown yields the full
// history.
//
// Paging stops when lastKnown shows up in a page or when a page comes back
// shorter than requested. On error nothing is returned, so the caller keeps its
// cursor untouched.
func (f *Fetcher) FetchNewSignatures(ctx context.Context, address, lastKnown string) ([]ledger.SignatureInfo, string, error) {
	var (
		collected []ledger.SignatureInfo
		before    string
	)

	for {
		page, err := f.page(ctx, address, before, f.pageSize)
		if err != nil {
			return nil, lastKnown, fmt.Errorf("list signatures of %s before %q: %w", address, before, err)
		}

		found := false
		for _, info := range page {
			if lastKnown != "" && info.Signature == lastKnown {
				found = true
				break
			}
			collected = append(collected, info)
		}

		if found || len(page) < f.pageSize {
			break
		}

		before = page[len(page)-1].Signature
	}

	slices.Reverse(collected)

	newest := lastKnown
	if len(collected) > 0 {
		newest = collected[len(collected)-1].Signature
	}

	return collected, newest, nil
}

// LatestSignature returns the most recent signature of address, or an empty
// string when it has no history.
func (f *Fetcher) LatestSignature(ctx context.Context, address string) (string, error) {
	page, err := f.page(ctx, address, "", 1)
	if err != nil {
		return "", fmt.Errorf("latest signature of %s: %w", address, err)
	}

	if len(page) == 0 {
		return "", nil
	}

	return page[0].Signature, nil
}
