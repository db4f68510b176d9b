package pipeline

import (
	"sync"
)

// State is the lifecycle phase of a run.
type State string

// Run states.
const (
	StateInit        State = "init"
	StateDiscovering State = "discovering_tree"
	StateProcessing  State = "processing_categories"
	StateFinalizing  State = "finalizing"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
)

// CategoryStats is the completion summary of one leaf category.
type CategoryStats struct {
	Path   string `json:"path"`
	Found  int    `json:"found"`
	Added  int    `json:"added"`
	Failed bool   `json:"failed,omitempty"`
}

// Stats is a point-in-time snapshot of run counters. Snapshots taken
// after Run returns are final.
type Stats struct {
	RunID             string          `json:"run_id"`
	State             State           `json:"state"`
	Categories        []CategoryStats `json:"categories"`
	TotalFound        int             `json:"total_found"`
	TotalAdded        int             `json:"total_added"`
	PagesFetched      int             `json:"pages_fetched"`
	FetchFailures     int             `json:"fetch_failures"`
	RecordsSkipped    int             `json:"records_skipped"`
	DuplicatesSkipped int             `json:"duplicates_skipped"`
	CategoryFailures  int             `json:"category_failures"`
}

// tracker aggregates counters reported by workers. Workers only ever
// call the record methods; reads go through snapshot.
type tracker struct {
	mu    sync.Mutex
	stats Stats
}

func newTracker(runID string) *tracker {
	return &tracker{stats: Stats{RunID: runID, State: StateInit}}
}

func (t *tracker) setState(s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.State = s
}

func (t *tracker) recordCategory(cs CategoryStats) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.Categories = append(t.stats.Categories, cs)
	t.stats.TotalFound += cs.Found
	t.stats.TotalAdded += cs.Added
	if cs.Failed {
		t.stats.CategoryFailures++
	}
}

func (t *tracker) recordPage() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.PagesFetched++
}

func (t *tracker) recordFetchFailure() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.FetchFailures++
}

func (t *tracker) recordSkips(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.RecordsSkipped += n
}

func (t *tracker) recordDuplicate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.DuplicatesSkipped++
}

func (t *tracker) snapshot() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.stats
	out.Categories = append([]CategoryStats(nil), t.stats.Categories...)
	return out
}
