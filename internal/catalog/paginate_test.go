package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// listingHTML renders a listing page with products items and an
// optional rel=next hint.
func listingHTML(products int, nextHref string) string {
	var b strings.Builder
	b.WriteString(`<html><head>`)
	if nextHref != "" {
		fmt.Fprintf(&b, `<link rel="next" href="%s"/>`, nextHref)
	}
	b.WriteString(`</head><body><div class="page-wrapper"><div class="product-listing">`)
	for i := 0; i < products; i++ {
		fmt.Fprintf(&b, `<div class="product-listing__item"><a class="product-card__name" href="/p/%d">P%d</a></div>`, i, i)
	}
	b.WriteString(`</div></div></body></html>`)
	return b.String()
}

func collectPages(t *testing.T, paginator *Paginator, category *Category) (pages []ListingPage, errs []error) {
	t.Helper()
	for result := range paginator.Pages(context.Background(), category) {
		if result.Err != nil {
			errs = append(errs, result.Err)
			continue
		}
		pages = append(pages, result.Page)
	}
	return pages, errs
}

func TestPagesFollowsNextLinks(t *testing.T) {
	t.Parallel()

	category := &Category{Name: "Dozen", URL: "https://webshop.example/dozen"}
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://webshop.example/dozen":        listingHTML(3, "/dozen?page=2"),
		"https://webshop.example/dozen?page=2": listingHTML(3, "/dozen?page=3"),
		"https://webshop.example/dozen?page=3": listingHTML(1, ""),
	}}
	paginator := NewPaginator(fetcher, 0, nil)

	pages, errs := collectPages(t, paginator, category)
	require.Empty(t, errs)
	require.Len(t, pages, 3)
	for i, page := range pages {
		require.Equal(t, i, page.Index)
		require.Same(t, category, page.Category)
	}
	require.True(t, pages[0].HasNext())
	require.False(t, pages[2].HasNext())
	require.Len(t, fetcher.visited, 3)
}

func TestPagesStopsOnEmptyPageDespiteNextLink(t *testing.T) {
	t.Parallel()

	category := &Category{Name: "Dozen", URL: "https://webshop.example/dozen"}
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://webshop.example/dozen":        listingHTML(2, "/dozen?page=2"),
		"https://webshop.example/dozen?page=2": listingHTML(0, "/dozen?page=3"),
	}}
	paginator := NewPaginator(fetcher, 0, nil)

	pages, errs := collectPages(t, paginator, category)
	require.Empty(t, errs)
	require.Len(t, pages, 2)
	require.False(t, pages[1].HasNext())
	require.Len(t, fetcher.visited, 2, "the advertised third page must not be fetched")
}

func TestPagesDetectsLoop(t *testing.T) {
	t.Parallel()

	category := &Category{Name: "Dozen", URL: "https://webshop.example/dozen"}
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://webshop.example/dozen":        listingHTML(2, "/dozen?page=2"),
		"https://webshop.example/dozen?page=2": listingHTML(2, "/dozen?page=2"),
	}}
	paginator := NewPaginator(fetcher, 0, nil)

	pages, errs := collectPages(t, paginator, category)
	require.Len(t, pages, 2)
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], ErrPaginationLoop)
}

func TestPagesEnforcesCeiling(t *testing.T) {
	t.Parallel()

	category := &Category{Name: "Dozen", URL: "https://webshop.example/dozen?page=1"}
	fetcher := &fakeFetcher{pages: map[string]string{}}
	for i := 1; i <= 10; i++ {
		url := fmt.Sprintf("https://webshop.example/dozen?page=%d", i)
		fetcher.pages[url] = listingHTML(1, fmt.Sprintf("/dozen?page=%d", i+1))
	}
	paginator := NewPaginator(fetcher, 3, nil)

	pages, errs := collectPages(t, paginator, category)
	require.Len(t, pages, 3)
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], ErrPageCeiling)
}

func TestPagesReportsFetchFailure(t *testing.T) {
	t.Parallel()

	category := &Category{Name: "Dozen", URL: "https://webshop.example/dozen"}
	fetcher := &fakeFetcher{
		pages: map[string]string{
			"https://webshop.example/dozen": listingHTML(2, "/dozen?page=2"),
		},
		failures: map[string]error{
			"https://webshop.example/dozen?page=2": errors.New("504 from upstream"),
		},
	}
	paginator := NewPaginator(fetcher, 0, nil)

	pages, errs := collectPages(t, paginator, category)
	require.Len(t, pages, 1)
	require.Len(t, errs, 1)
	require.Contains(t, errs[0].Error(), "page 1")
}
