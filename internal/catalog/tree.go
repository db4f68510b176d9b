package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// Selectors for the webshop's category navigation markup.
const (
	selNavContainer = ".sections.nav-sections"
	selNavColumn    = ".navigation-menu__column"
	selNavSection   = "h3 a"
	selNavChildren  = "ul li a"
	selSubcategory  = ".category-overview a.category-card__link"
)

// ErrRootUnreachable marks a discovery failure on the catalog root
// itself, which aborts the whole run rather than a single subtree.
var ErrRootUnreachable = errors.New("catalog root unreachable")

// Fetcher retrieves a single URL. Satisfied by fetch.Client.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// LeafResult is one element of the lazy leaf sequence: either a leaf
// category or a subtree discovery failure. Failed subtrees are reported,
// not silently dropped, and do not stop sibling subtrees.
type LeafResult struct {
	Leaf *Category
	Err  error
}

// Walker discovers the category tree and yields its leaves.
type Walker struct {
	fetcher Fetcher
	rootURL string
	logger  *zap.Logger
}

// NewWalker builds a Walker rooted at the catalog homepage.
func NewWalker(fetcher Fetcher, rootURL string, logger *zap.Logger) *Walker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Walker{
		fetcher: fetcher,
		rootURL: rootURL,
		logger:  logger,
	}
}

// Leaves returns a lazy, finite sequence of leaf categories in document
// order. The sequence is not restartable: each call re-fetches the tree.
// A fetch failure on an interior node surfaces as a LeafResult with Err
// set and skips that subtree only; a failure on the root yields a single
// result wrapping ErrRootUnreachable.
func (w *Walker) Leaves(ctx context.Context) <-chan LeafResult {
	out := make(chan LeafResult)
	go func() {
		defer close(out)

		body, err := w.fetcher.Fetch(ctx, w.rootURL)
		if err != nil {
			w.send(ctx, out, LeafResult{Err: fmt.Errorf("%w: fetch %s: %v", ErrRootUnreachable, w.rootURL, err)})
			return
		}

		root, err := w.parseNavigation(body)
		if err != nil {
			w.send(ctx, out, LeafResult{Err: fmt.Errorf("%w: %v", ErrRootUnreachable, err)})
			return
		}

		seen := map[string]struct{}{normalizeURL(w.rootURL): {}}
		for _, child := range root.Children {
			w.walk(ctx, child, seen, out)
		}
	}()
	return out
}

// walk performs a depth-first descent. A node whose page lists no
// subcategories is a leaf and is emitted even when it has zero products.
func (w *Walker) walk(ctx context.Context, node *Category, seen map[string]struct{}, out chan<- LeafResult) {
	if ctx.Err() != nil {
		return
	}
	key := normalizeURL(node.URL)
	if _, ok := seen[key]; ok {
		return
	}
	seen[key] = struct{}{}

	// Children already discovered from the navigation menu take
	// precedence over a page fetch.
	if len(node.Children) > 0 {
		for _, child := range node.Children {
			w.walk(ctx, child, seen, out)
		}
		return
	}

	body, err := w.fetcher.Fetch(ctx, node.URL)
	if err != nil {
		w.logger.Warn("subtree discovery failed",
			zap.String("category", node.Path()),
			zap.String("url", node.URL),
			zap.Error(err),
		)
		w.send(ctx, out, LeafResult{Err: fmt.Errorf("discover subtree %q: %w", node.Path(), err)})
		return
	}

	children, err := w.parseSubcategories(node, body)
	if err != nil {
		w.send(ctx, out, LeafResult{Err: fmt.Errorf("discover subtree %q: %w", node.Path(), err)})
		return
	}
	if len(children) == 0 {
		w.send(ctx, out, LeafResult{Leaf: node})
		return
	}

	node.Children = children
	for _, child := range children {
		w.walk(ctx, child, seen, out)
	}
}

// parseNavigation builds the first levels of the tree from the homepage
// navigation menu: column headings are sections, list entries below a
// heading are that section's children.
func (w *Walker) parseNavigation(body []byte) (*Category, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse navigation: %w", err)
	}

	menu := doc.Find(selNavContainer)
	if menu.Length() == 0 {
		return nil, fmt.Errorf("navigation menu container not found")
	}

	root := &Category{URL: w.rootURL}
	menu.Find(selNavColumn).Each(func(_ int, column *goquery.Selection) {
		section := root
		head := column.Find(selNavSection).First()
		if name, href, ok := linkParts(head); ok {
			section = &Category{
				Name:   name,
				URL:    w.resolve(href),
				Parent: root,
			}
			root.Children = append(root.Children, section)
		}
		column.Find(selNavChildren).Each(func(_ int, link *goquery.Selection) {
			name, href, ok := linkParts(link)
			if !ok {
				return
			}
			child := &Category{
				Name:   name,
				URL:    w.resolve(href),
				Parent: section,
			}
			section.Children = append(section.Children, child)
		})
	})

	if len(root.Children) == 0 {
		return nil, fmt.Errorf("no category links in navigation menu")
	}
	return root, nil
}

// parseSubcategories extracts child category links from a category
// page. No matches means the node is a leaf.
func (w *Walker) parseSubcategories(parent *Category, body []byte) ([]*Category, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse category page: %w", err)
	}

	var children []*Category
	doc.Find(selSubcategory).Each(func(_ int, link *goquery.Selection) {
		name, href, ok := linkParts(link)
		if !ok {
			return
		}
		children = append(children, &Category{
			Name:   name,
			URL:    w.resolve(href),
			Parent: parent,
		})
	})
	return children, nil
}

func (w *Walker) send(ctx context.Context, out chan<- LeafResult, result LeafResult) {
	select {
	case <-ctx.Done():
	case out <- result:
	}
}

func (w *Walker) resolve(href string) string {
	return resolveAgainst(w.rootURL, href)
}

// resolveAgainst resolves href relative to baseRaw, falling back to the
// raw href when either side fails to parse.
func resolveAgainst(baseRaw, href string) string {
	base, err := url.Parse(baseRaw)
	if err != nil {
		return href
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// linkParts returns the trimmed text and href of an anchor, rejecting
// placeholder links the menu uses for styling.
func linkParts(link *goquery.Selection) (name, href string, ok bool) {
	href, exists := link.Attr("href")
	href = strings.TrimSpace(href)
	if !exists || href == "" || href == "#" || href == "/" || strings.HasPrefix(href, "javascript:") {
		return "", "", false
	}
	name = strings.TrimSpace(link.Text())
	if name == "" {
		return "", "", false
	}
	return name, href, true
}

func normalizeURL(rawURL string) string {
	return strings.ToLower(strings.TrimRight(rawURL, "/"))
}
