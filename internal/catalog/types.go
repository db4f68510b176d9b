// Package catalog defines the catalog domain model and the components
// that discover categories, page through listings, and extract products.
package catalog

import (
	"strings"
)

// Category is a node in the webshop's category tree. Children are owned
// by their parent; the parent pointer exists only so Path can be
// reconstructed and must never drive traversal.
type Category struct {
	Name     string
	URL      string
	Parent   *Category
	Children []*Category
}

// IsLeaf reports whether the category has no subcategories. Leaves are
// the unit at which product listings are fetched; a leaf with zero
// products is still visited.
func (c *Category) IsLeaf() bool {
	return len(c.Children) == 0
}

// Path returns the display path from the root to this category,
// e.g. "Kartonnen dozen > Palletdozen".
func (c *Category) Path() string {
	var names []string
	for node := c; node != nil; node = node.Parent {
		if node.Name == "" {
			continue
		}
		names = append(names, node.Name)
	}
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return strings.Join(names, " > ")
}

// ListingPage is one page of a category's product listing. Pages are
// transient: produced by the Paginator, consumed by the Extractor, never
// persisted.
type ListingPage struct {
	Category *Category
	Index    int // 0-based
	URL      string
	Body     []byte
	NextURL  string // empty when the page reports no further pages
}

// HasNext reports whether the page advertises a following page.
func (p ListingPage) HasNext() bool {
	return p.NextURL != ""
}

// Product is a single extracted product record. IdentityKey is derived
// from a stable site attribute (canonical URL or SKU, never the display
// name) and is identical for every occurrence of the same physical
// product, whichever category page it was found on.
type Product struct {
	IdentityKey  string
	Name         string
	PriceExclTax *float64
	CategoryPath string
	ImageURL     string
	SourceURL    string
	SKU          string
	WebsiteName  string
}
