// Package pipeline composes the crawl stages into a single run: leaf
// discovery, pagination, extraction, deduplication, and persistence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"webshop/crawler/internal/catalog"
	"webshop/crawler/internal/metrics"
	"webshop/crawler/internal/store"
)

// LeafSource yields leaf categories. Satisfied by catalog.Walker.
type LeafSource interface {
	Leaves(ctx context.Context) <-chan catalog.LeafResult
}

// PageSource yields a category's listing pages. Satisfied by
// catalog.Paginator.
type PageSource interface {
	Pages(ctx context.Context, category *catalog.Category) <-chan catalog.PageResult
}

// Extractor turns a listing page into product records.
type Extractor interface {
	Extract(page catalog.ListingPage) ([]catalog.Product, int, error)
}

// Ledger decides insert-vs-skip for identity keys.
type Ledger interface {
	CheckAndMark(key, categoryPath string) bool
}

// Writer persists unique products. Satisfied by store.ProductStore.
type Writer interface {
	Upsert(ctx context.Context, product catalog.Product) (store.Outcome, error)
}

// Config controls orchestration behavior.
type Config struct {
	Concurrency int
}

// Pipeline drives a full crawl run and owns all cross-worker state:
// the dedup ledger, the stats tracker, and the progress writer.
type Pipeline struct {
	walker     LeafSource
	paginator  PageSource
	extractor  Extractor
	ledger     Ledger
	writer     Writer
	cfg        Config
	progress   io.Writer
	progressMu sync.Mutex
	logger     *zap.Logger
	runID      string
	tracker    *tracker
}

// New constructs a Pipeline. progress receives the per-category and
// final summary lines; it is the run's observable output contract.
func New(
	walker LeafSource,
	paginator PageSource,
	extractor Extractor,
	ledger Ledger,
	writer Writer,
	cfg Config,
	progress io.Writer,
	logger *zap.Logger,
) *Pipeline {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if progress == nil {
		progress = io.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	runID := uuid.NewString()
	return &Pipeline{
		walker:    walker,
		paginator: paginator,
		extractor: extractor,
		ledger:    ledger,
		writer:    writer,
		cfg:       cfg,
		progress:  progress,
		logger:    logger.With(zap.String("run_id", runID)),
		runID:     runID,
		tracker:   newTracker(runID),
	}
}

// RunID identifies this run in logs and progress snapshots.
func (p *Pipeline) RunID() string {
	return p.runID
}

// Snapshot returns the current run counters. Safe to call concurrently
// with Run.
func (p *Pipeline) Snapshot() Stats {
	return p.tracker.snapshot()
}

// Run executes the crawl and blocks until Finalizing is done. The final
// summary line is emitted even when the run fails, reflecting partial
// totals; callers must check the returned error, not the printed total,
// to decide success. Category-level failures do not abort the run; a
// root discovery failure or a fatal persistence error does.
func (p *Pipeline) Run(ctx context.Context) error {
	p.tracker.setState(StateDiscovering)
	p.logger.Info("starting crawl run")

	leaves := p.walker.Leaves(ctx)
	p.tracker.setState(StateProcessing)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(p.cfg.Concurrency)

	var fatalErr error
collect:
	for {
		select {
		case <-groupCtx.Done():
			break collect
		case result, ok := <-leaves:
			if !ok {
				break collect
			}
			if result.Err != nil {
				if errors.Is(result.Err, catalog.ErrRootUnreachable) {
					fatalErr = result.Err
					break collect
				}
				p.logger.Error("category discovery failed", zap.Error(result.Err))
				p.tracker.recordCategory(CategoryStats{Path: "", Failed: true})
				continue
			}
			leaf := result.Leaf
			group.Go(func() error {
				return p.processCategory(groupCtx, leaf)
			})
		}
	}

	if err := group.Wait(); err != nil {
		fatalErr = err
	}

	p.tracker.setState(StateFinalizing)
	totals := p.tracker.snapshot()
	p.emit("Total unique products added to DB: %d\n", totals.TotalAdded)

	switch {
	case fatalErr != nil:
		p.tracker.setState(StateFailed)
		p.logger.Error("crawl run failed",
			zap.Int("total_added", totals.TotalAdded),
			zap.Error(fatalErr),
		)
		return fmt.Errorf("crawl run: %w", fatalErr)
	case ctx.Err() != nil:
		p.tracker.setState(StateCompleted)
		p.logger.Warn("crawl run canceled, partial totals reported",
			zap.Int("total_added", totals.TotalAdded),
		)
		return ctx.Err()
	default:
		p.tracker.setState(StateCompleted)
		p.logger.Info("crawl run completed",
			zap.Int("categories", len(totals.Categories)),
			zap.Int("total_added", totals.TotalAdded),
		)
		return nil
	}
}

// processCategory runs one leaf through paginate → extract → dedup →
// persist. Only fatal persistence errors propagate; everything else is
// recorded on the category and the run moves on.
func (p *Pipeline) processCategory(ctx context.Context, leaf *catalog.Category) error {
	path := leaf.Path()
	cs := CategoryStats{Path: path}

	for result := range p.paginator.Pages(ctx, leaf) {
		if result.Err != nil {
			p.tracker.recordFetchFailure()
			cs.Failed = !isAnomaly(result.Err)
			p.logger.Error("category page sequence ended abnormally",
				zap.String("category", path),
				zap.Error(result.Err),
			)
			break
		}
		p.tracker.recordPage()

		products, skipped, err := p.extractor.Extract(result.Page)
		if err != nil {
			cs.Failed = true
			p.logger.Error("page extraction failed",
				zap.String("category", path),
				zap.Int("page", result.Page.Index),
				zap.Error(err),
			)
			break
		}
		p.tracker.recordSkips(skipped)

		cs.Found += len(products)
		for _, product := range products {
			if !p.ledger.CheckAndMark(product.IdentityKey, path) {
				p.tracker.recordDuplicate()
				metrics.DuplicatesSkipped.Inc()
				continue
			}
			outcome, err := p.writer.Upsert(ctx, product)
			if err != nil {
				if store.IsFatal(err) {
					return err
				}
				cs.Failed = true
				p.logger.Error("product upsert failed",
					zap.String("category", path),
					zap.String("identity_key", product.IdentityKey),
					zap.Error(err),
				)
				continue
			}
			switch outcome {
			case store.Inserted:
				cs.Added++
				metrics.ProductsAdded.Inc()
			case store.AlreadyExists:
				p.tracker.recordDuplicate()
				metrics.DuplicatesSkipped.Inc()
			}
		}
	}

	p.tracker.recordCategory(cs)
	p.emit("%s. Found: %d. Added to DB: %d\n", path, cs.Found, cs.Added)
	p.logger.Info("category completed",
		zap.String("category", path),
		zap.Int("found", cs.Found),
		zap.Int("added", cs.Added),
		zap.Bool("failed", cs.Failed),
	)
	return nil
}

// emit serializes progress lines so concurrent workers never interleave
// partial lines on the shared writer.
func (p *Pipeline) emit(format string, args ...any) {
	p.progressMu.Lock()
	defer p.progressMu.Unlock()
	fmt.Fprintf(p.progress, format, args...)
}

// isAnomaly separates reported pagination anomalies (ceiling, loop)
// from genuine category failures. Anomalies truncate the category but
// keep its counts valid.
func isAnomaly(err error) bool {
	return errors.Is(err, catalog.ErrPageCeiling) || errors.Is(err, catalog.ErrPaginationLoop)
}
