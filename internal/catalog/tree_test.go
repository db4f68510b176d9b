package catalog

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeFetcher serves canned bodies by URL and records every request.
type fakeFetcher struct {
	pages    map[string]string
	failures map[string]error
	visited  []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.visited = append(f.visited, url)
	if err, ok := f.failures[url]; ok {
		return nil, err
	}
	body, ok := f.pages[url]
	if !ok {
		return nil, fmt.Errorf("no canned page for %s", url)
	}
	return []byte(body), nil
}

const rootNavHTML = `<html><body>
<div class="sections nav-sections">
  <div class="navigation-menu__column">
    <h3><a href="/dozen">Dozen</a></h3>
    <ul>
      <li><a href="/dozen/palletdozen">Palletdozen</a></li>
      <li><a href="/dozen/vouwdozen">Vouwdozen</a></li>
      <li><a href="#">Bekijk alles</a></li>
    </ul>
  </div>
  <div class="navigation-menu__column">
    <h3><a href="/enveloppen">Enveloppen</a></h3>
  </div>
</div>
</body></html>`

func subcategoryPage(links ...string) string {
	body := `<html><body><div class="category-overview">`
	for _, link := range links {
		body += fmt.Sprintf(`<a class="category-card__link" href="%s">%s</a>`, link, link)
	}
	return body + `</div></body></html>`
}

const leafPageHTML = `<html><body><div class="page-wrapper"><div class="product-listing"></div></div></body></html>`

func collectLeaves(t *testing.T, walker *Walker) (leaves []*Category, errs []error) {
	t.Helper()
	for result := range walker.Leaves(context.Background()) {
		if result.Err != nil {
			errs = append(errs, result.Err)
			continue
		}
		leaves = append(leaves, result.Leaf)
	}
	return leaves, errs
}

func TestLeavesWalksTreeInDocumentOrder(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{
		"https://webshop.example/":                   rootNavHTML,
		"https://webshop.example/dozen/palletdozen":  leafPageHTML,
		"https://webshop.example/dozen/vouwdozen":    subcategoryPage("/dozen/vouwdozen/a4", "/dozen/vouwdozen/a5"),
		"https://webshop.example/dozen/vouwdozen/a4": leafPageHTML,
		"https://webshop.example/dozen/vouwdozen/a5": leafPageHTML,
		"https://webshop.example/enveloppen":         leafPageHTML,
	}}
	walker := NewWalker(fetcher, "https://webshop.example/", nil)

	leaves, errs := collectLeaves(t, walker)
	require.Empty(t, errs)

	var paths []string
	for _, leaf := range leaves {
		paths = append(paths, leaf.Path())
	}
	require.Equal(t, []string{
		"Dozen > Palletdozen",
		"Dozen > Vouwdozen > /dozen/vouwdozen/a4",
		"Dozen > Vouwdozen > /dozen/vouwdozen/a5",
		"Enveloppen",
	}, paths)
}

func TestLeavesSkipsDuplicateURLs(t *testing.T) {
	t.Parallel()

	nav := `<html><body>
<div class="sections nav-sections">
  <div class="navigation-menu__column">
    <h3><a href="/dozen">Dozen</a></h3>
    <ul>
      <li><a href="/dozen/palletdozen">Palletdozen</a></li>
      <li><a href="/dozen/palletdozen/">Palletdozen (alias)</a></li>
    </ul>
  </div>
</div>
</body></html>`
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://webshop.example/":                  nav,
		"https://webshop.example/dozen/palletdozen": leafPageHTML,
	}}
	walker := NewWalker(fetcher, "https://webshop.example/", nil)

	leaves, errs := collectLeaves(t, walker)
	require.Empty(t, errs)
	require.Len(t, leaves, 1)
	require.Equal(t, "Dozen > Palletdozen", leaves[0].Path())
}

func TestLeavesReportsSubtreeFailureAndContinues(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{
		pages: map[string]string{
			"https://webshop.example/":                rootNavHTML,
			"https://webshop.example/dozen/vouwdozen": leafPageHTML,
			"https://webshop.example/enveloppen":      leafPageHTML,
		},
		failures: map[string]error{
			"https://webshop.example/dozen/palletdozen": errors.New("503 from upstream"),
		},
	}
	walker := NewWalker(fetcher, "https://webshop.example/", nil)

	leaves, errs := collectLeaves(t, walker)
	require.Len(t, errs, 1)
	require.Contains(t, errs[0].Error(), "Palletdozen")

	var paths []string
	for _, leaf := range leaves {
		paths = append(paths, leaf.Path())
	}
	require.Equal(t, []string{"Dozen > Vouwdozen", "Enveloppen"}, paths)
}

func TestLeavesRootFailureIsFatal(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{failures: map[string]error{
		"https://webshop.example/": errors.New("connection refused"),
	}}
	walker := NewWalker(fetcher, "https://webshop.example/", nil)

	leaves, errs := collectLeaves(t, walker)
	require.Empty(t, leaves)
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], ErrRootUnreachable)
}

func TestLeavesUnrecognizedHomepageIsFatal(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{
		"https://webshop.example/": `<html><body><p>onderhoudsmodus</p></body></html>`,
	}}
	walker := NewWalker(fetcher, "https://webshop.example/", nil)

	leaves, errs := collectLeaves(t, walker)
	require.Empty(t, leaves)
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], ErrRootUnreachable)
}

func TestCategoryPath(t *testing.T) {
	t.Parallel()

	root := &Category{URL: "https://webshop.example/"}
	section := &Category{Name: "Dozen", Parent: root}
	leaf := &Category{Name: "Palletdozen", Parent: section}

	require.Equal(t, "Dozen > Palletdozen", leaf.Path())
	require.Equal(t, "Dozen", section.Path())
	require.True(t, leaf.IsLeaf())
	section.Children = []*Category{leaf}
	require.False(t, section.IsLeaf())
}
