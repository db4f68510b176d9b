package catalog

import (
	"bytes"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"webshop/crawler/internal/metrics"
)

// Selectors for the webshop's listing markup.
const (
	selProductItem  = "div.product-listing__item"
	selProductName  = "a.product-card__name"
	selProductPrice = ".price-wrapper.price-excluding-tax .price"
	selProductImage = "img.product-image-photo"
	selPageFrame    = ".product-listing, .page-wrapper, .sections.nav-sections, main"
)

// ExtractionError reports a listing page whose structure was not
// recognized at all. Individual malformed entries are skipped and
// counted instead.
type ExtractionError struct {
	URL    string
	Reason string
}

// Error implements the error interface.
func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %s", e.URL, e.Reason)
}

// KeyFunc derives a product's identity key from its stable attributes.
// The display name is never part of the key since titles may collide
// across categories.
type KeyFunc func(sourceURL, sku string) string

// KeyFromURL uses the canonical product URL as the identity key.
func KeyFromURL(sourceURL, _ string) string {
	return sourceURL
}

// KeyFromSKU uses the site SKU (last URL path segment) as the identity key.
func KeyFromSKU(_, sku string) string {
	return sku
}

// KeyFuncFor resolves a configured identity source name to a KeyFunc.
func KeyFuncFor(source string) (KeyFunc, error) {
	switch source {
	case "", "url":
		return KeyFromURL, nil
	case "sku":
		return KeyFromSKU, nil
	default:
		return nil, fmt.Errorf("unknown identity source %q (want url or sku)", source)
	}
}

// Extractor parses listing page payloads into product records. It is
// pure relative to the payload: the same bytes always yield the same
// records.
type Extractor struct {
	baseURL     *url.URL
	websiteName string
	key         KeyFunc
}

// NewExtractor builds an Extractor. key defaults to KeyFromURL.
func NewExtractor(baseURL *url.URL, websiteName string, key KeyFunc) *Extractor {
	if key == nil {
		key = KeyFromURL
	}
	return &Extractor{
		baseURL:     baseURL,
		websiteName: websiteName,
		key:         key,
	}
}

// Extract returns the products on a listing page plus the number of
// malformed entries that were skipped. A page whose markup contains no
// recognizable frame at all fails with *ExtractionError; a recognized
// page with zero products returns an empty slice.
func (e *Extractor) Extract(page ListingPage) ([]Product, int, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, 0, &ExtractionError{URL: page.URL, Reason: fmt.Sprintf("parse HTML: %v", err)}
	}

	items := doc.Find(selProductItem)
	if items.Length() == 0 {
		if doc.Find(selPageFrame).Length() == 0 {
			return nil, 0, &ExtractionError{URL: page.URL, Reason: "page structure not recognized"}
		}
		return nil, 0, nil
	}

	categoryPath := page.Category.Path()
	products := make([]Product, 0, items.Length())
	skipped := 0

	items.Each(func(_ int, item *goquery.Selection) {
		nameLink := item.Find(selProductName).First()
		href, ok := nameLink.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			skipped++
			return
		}

		sourceURL := e.resolve(href)
		sku := skuFromURL(sourceURL)
		key := e.key(sourceURL, sku)
		if key == "" {
			skipped++
			return
		}

		product := Product{
			IdentityKey:  key,
			Name:         strings.TrimSpace(nameLink.Text()),
			PriceExclTax: parsePrice(item.Find(selProductPrice).First().Text()),
			CategoryPath: categoryPath,
			SourceURL:    sourceURL,
			SKU:          sku,
			WebsiteName:  e.websiteName,
		}
		if src, ok := item.Find(selProductImage).First().Attr("src"); ok {
			product.ImageURL = src
		}
		products = append(products, product)
	})

	metrics.ProductsFound.Add(float64(len(products)))
	metrics.RecordsSkipped.Add(float64(skipped))
	return products, skipped, nil
}

// resolve joins href against the shop base URL, mirroring how the site
// links relative product pages.
func (e *Extractor) resolve(href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	if e.baseURL == nil {
		return ref.String()
	}
	return e.baseURL.ResolveReference(ref).String()
}

// skuFromURL extracts the last path segment of a product URL, the
// site's stable product slug.
func skuFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	path := strings.Trim(u.Path, "/")
	if path == "" {
		return ""
	}
	segments := strings.Split(path, "/")
	return segments[len(segments)-1]
}

// parsePrice normalizes a Dutch-formatted price such as "€ 1.234,56"
// to its numeric value. Unparseable prices yield nil, not an error.
func parsePrice(text string) *float64 {
	cleaned := strings.NewReplacer("€", "", ".", "", ",", ".", " ", " ").Replace(text)
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return nil
	}
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return &value
}
