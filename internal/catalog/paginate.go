package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// selNextPage is the canonical next-page hint emitted by the shop.
const selNextPage = `link[rel="next"]`

// Pagination anomalies. Both terminate the page sequence and are
// reported to the consumer rather than silently truncating.
var (
	ErrPageCeiling    = errors.New("page ceiling exceeded")
	ErrPaginationLoop = errors.New("pagination loop detected")
)

// PageResult is one element of the lazy page sequence.
type PageResult struct {
	Page ListingPage
	Err  error
}

// Paginator walks a leaf category's listing pages one at a time.
type Paginator struct {
	fetcher  Fetcher
	maxPages int
	logger   *zap.Logger
}

// NewPaginator builds a Paginator. maxPages caps the pages fetched per
// category; a non-positive value falls back to a conservative default.
func NewPaginator(fetcher Fetcher, maxPages int, logger *zap.Logger) *Paginator {
	if maxPages <= 0 {
		maxPages = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Paginator{
		fetcher:  fetcher,
		maxPages: maxPages,
		logger:   logger,
	}
}

// Pages returns a lazy, finite sequence of listing pages for category.
// It terminates when a page carries no next link, lists zero products,
// or the page ceiling is hit (reported as ErrPageCeiling). Page indexes
// increase strictly by one and no URL is fetched twice per invocation.
func (p *Paginator) Pages(ctx context.Context, category *Category) <-chan PageResult {
	out := make(chan PageResult)
	go func() {
		defer close(out)

		seen := make(map[string]struct{})
		current := category.URL
		for index := 0; current != ""; index++ {
			if ctx.Err() != nil {
				return
			}
			if index >= p.maxPages {
				p.send(ctx, out, PageResult{Err: fmt.Errorf("category %q: %w after %d pages", category.Path(), ErrPageCeiling, p.maxPages)})
				return
			}
			key := normalizeURL(current)
			if _, ok := seen[key]; ok {
				p.send(ctx, out, PageResult{Err: fmt.Errorf("category %q: %w at %s", category.Path(), ErrPaginationLoop, current)})
				return
			}
			seen[key] = struct{}{}

			body, err := p.fetcher.Fetch(ctx, current)
			if err != nil {
				p.send(ctx, out, PageResult{Err: fmt.Errorf("fetch page %d of %q: %w", index, category.Path(), err)})
				return
			}

			page := ListingPage{
				Category: category,
				Index:    index,
				URL:      current,
				Body:     body,
			}
			nextURL, productCount := p.inspect(category, body)
			if productCount > 0 {
				page.NextURL = nextURL
			}
			p.send(ctx, out, PageResult{Page: page})

			// A page with zero entries ends the category even when a
			// next link is present.
			if productCount == 0 {
				return
			}
			current = page.NextURL
		}
	}()
	return out
}

// inspect pulls the next-page link and the product entry count out of a
// listing payload. Parse failures are left for the extractor to report;
// here they simply end pagination.
func (p *Paginator) inspect(category *Category, body []byte) (nextURL string, productCount int) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		p.logger.Warn("unparseable listing page during pagination",
			zap.String("category", category.Path()),
			zap.Error(err),
		)
		return "", 0
	}
	productCount = doc.Find(selProductItem).Length()
	if href, ok := doc.Find(selNextPage).Attr("href"); ok {
		nextURL = resolveAgainst(category.URL, href)
	}
	return nextURL, productCount
}

func (p *Paginator) send(ctx context.Context, out chan<- PageResult, result PageResult) {
	select {
	case <-ctx.Done():
	case out <- result:
	}
}
