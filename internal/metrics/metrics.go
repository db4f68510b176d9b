// Package metrics exposes Prometheus counters for the crawl pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PagesFetched counts every HTTP request attempt made by the fetch client.
	PagesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_pages_fetched_total",
		Help: "The total number of HTTP page fetch attempts.",
	})
	// FetchErrors counts attempts that resulted in an error response or transport failure.
	FetchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_fetch_errors_total",
		Help: "The total number of failed page fetch attempts.",
	})
	// ProductsFound counts product records extracted from listing pages, duplicates included.
	ProductsFound = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_products_found_total",
		Help: "The total number of product records extracted from listing pages.",
	})
	// ProductsAdded counts products newly inserted into the database.
	ProductsAdded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_products_added_total",
		Help: "The total number of unique products inserted into the database.",
	})
	// DuplicatesSkipped counts products dropped by the dedup ledger or the database constraint.
	DuplicatesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_duplicates_skipped_total",
		Help: "The total number of product records skipped as duplicates.",
	})
	// RecordsSkipped counts malformed product entries dropped during extraction.
	RecordsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_records_skipped_total",
		Help: "The total number of malformed product entries skipped during extraction.",
	})
)
