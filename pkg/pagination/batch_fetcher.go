package pagination

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/go24so/pkg/apierror"
)

// Config holds batch fetcher configuration
type Config struct {
	// MaxConcurrency is the maximum number of parallel requests.
	// The client's rate limiter still gates every request, so more workers
	// than the per-second budget only queue inside the limiter.
	MaxConcurrency int
	// Timeout per page fetch attempt
	Timeout time.Duration
	// PageSize is the page size requested from the endpoint. A page with
	// fewer items marks the end of the collection.
	PageSize int
	// MaxPages caps the walk for endpoints that never return a short page
	MaxPages int
	// Requeue reports whether a failed page fetch should be attempted again.
	// Defaults to apierror.IsAdmissionDenied: workers sharing one limiter
	// are refused while another worker holds the token they waited for.
	Requeue func(error) bool
	// Logger defaults to the global logger.
	Logger *zerolog.Logger
}

// DefaultConfig returns safe default configuration for the default
// 100 requests per minute budget
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		Timeout:        30 * time.Second,
		PageSize:       50,
		MaxPages:       1000,
		Requeue:        apierror.IsAdmissionDenied,
	}
}

// PageFunc fetches a single page (1-based) and returns its items
type PageFunc[T any] func(ctx context.Context, page int) ([]T, error)

// PageResult represents the result of fetching a single page
type PageResult[T any] struct {
	PageNumber int
	Items      []T
	Error      error
}

// BatchFetcher handles parallel fetching of multiple pages
type BatchFetcher[T any] struct {
	fetch  PageFunc[T]
	config Config
	logger zerolog.Logger
}

// NewBatchFetcher creates a new batch fetcher
func NewBatchFetcher[T any](fetch PageFunc[T], config Config) *BatchFetcher[T] {
	defaults := DefaultConfig()
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = defaults.MaxConcurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.PageSize <= 0 {
		config.PageSize = defaults.PageSize
	}
	if config.MaxPages <= 0 {
		config.MaxPages = defaults.MaxPages
	}
	if config.Requeue == nil {
		config.Requeue = defaults.Requeue
	}

	logger := log.Logger
	if config.Logger != nil {
		logger = *config.Logger
	}

	return &BatchFetcher[T]{
		fetch:  fetch,
		config: config,
		logger: logger.With().Str("component", "pagination").Logger(),
	}
}

// Config returns the effective configuration.
func (bf *BatchFetcher[T]) Config() Config {
	return bf.config
}

// FetchAllPages fetches every page of an endpoint in parallel using a worker pool.
// The total page count is unknown up front: workers keep pulling page numbers
// until one of them sees a short page, and pages past that one are discarded.
// Returns map of pageNumber -> items for the pages that make up the collection.
// On error the pages fetched so far are returned together with the error.
func (bf *BatchFetcher[T]) FetchAllPages(ctx context.Context, endpoint string) (map[int][]T, error) {
	start := time.Now()

	firstPage, err := bf.fetchPage(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch first page: %w", err)
	}

	results := map[int][]T{1: firstPage}

	// Single page optimization
	if len(firstPage) < bf.config.PageSize || bf.config.MaxPages == 1 {
		bf.logger.Debug().
			Str("endpoint", endpoint).
			Int("pages", 1).
			Dur("duration", time.Since(start)).
			Msg("Fetch complete (single page)")
		return results, nil
	}

	bf.logger.Info().
		Str("endpoint", endpoint).
		Int("workers", bf.config.MaxConcurrency).
		Int("page_size", bf.config.PageSize).
		Msg("Starting parallel page fetch")

	walkCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// lastPage shrinks to the first short page any worker observes.
	var lastPage atomic.Int64
	lastPage.Store(int64(bf.config.MaxPages))

	pageQueue := make(chan int, bf.config.MaxConcurrency)
	pageResults := make(chan PageResult[T], bf.config.MaxConcurrency)

	// Feed page numbers until the end is known (skip page 1, already fetched)
	go func() {
		defer close(pageQueue)
		for page := 2; int64(page) <= lastPage.Load(); page++ {
			select {
			case pageQueue <- page:
			case <-walkCtx.Done():
				return
			}
		}
	}()

	// Start worker pool
	var wg sync.WaitGroup
	for i := 0; i < bf.config.MaxConcurrency; i++ {
		wg.Add(1)
		go bf.worker(walkCtx, pageQueue, pageResults, &lastPage, &wg, i)
	}

	// Close results channel when all workers done
	go func() {
		wg.Wait()
		close(pageResults)
	}()

	// Collect results; the first error cancels the remaining work
	var failures []PageResult[T]
	for result := range pageResults {
		if result.Error != nil {
			failures = append(failures, result)
			cancel()
			continue
		}
		results[result.PageNumber] = result.Items

		if len(results)%50 == 0 {
			bf.logger.Info().
				Str("endpoint", endpoint).
				Int("fetched", len(results)).
				Msg("Fetch progress")
		}
	}

	last := int(lastPage.Load())
	for page := range results {
		if page > last {
			delete(results, page)
		}
	}

	if failure, ok := rootCause(ctx, failures, last); ok {
		bf.logger.Warn().
			Err(failure.Error).
			Str("endpoint", endpoint).
			Int("page", failure.PageNumber).
			Int("fetched_pages", len(results)).
			Msg("Page fetch failed - returning partial results")
		return results, fmt.Errorf("page %d failed (partial data: %d pages): %w", failure.PageNumber, len(results), failure.Error)
	}
	if !bf.reachedEnd(results, last) {
		if err := ctx.Err(); err != nil {
			return results, fmt.Errorf("fetch cancelled (partial data: %d pages): %w", len(results), err)
		}
		// A failure past the end stopped workers before every page was read.
		if len(failures) > 0 {
			return results, fmt.Errorf("page %d failed (partial data: %d pages): %w", failures[0].PageNumber, len(results), failures[0].Error)
		}
		bf.logger.Warn().
			Str("endpoint", endpoint).
			Int("max_pages", bf.config.MaxPages).
			Msg("Page limit reached before end of collection")
	}

	bf.logger.Info().
		Str("endpoint", endpoint).
		Int("pages", len(results)).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return results, nil
}

// FetchAll returns the items of every page concatenated in page order.
func (bf *BatchFetcher[T]) FetchAll(ctx context.Context, endpoint string) ([]T, error) {
	pages, err := bf.FetchAllPages(ctx, endpoint)
	return Flatten(pages), err
}

// Flatten concatenates pages in ascending page order, stopping at the first
// gap so the result is always a prefix of the collection.
func Flatten[T any](pages map[int][]T) []T {
	numbers := make([]int, 0, len(pages))
	for page := range pages {
		numbers = append(numbers, page)
	}
	sort.Ints(numbers)

	items := []T{}
	for i, page := range numbers {
		if page != i+1 {
			break
		}
		items = append(items, pages[page]...)
	}
	return items
}

// reachedEnd reports whether every page up to last is present and last is short.
func (bf *BatchFetcher[T]) reachedEnd(results map[int][]T, last int) bool {
	for page := 1; page <= last; page++ {
		if _, ok := results[page]; !ok {
			return false
		}
	}
	return len(results[last]) < bf.config.PageSize
}

// rootCause picks the failure to report for pages up to last, in arrival
// order. Cancellations caused by the walk stopping itself only count when
// nothing else failed.
func rootCause[T any](parent context.Context, failures []PageResult[T], last int) (PageResult[T], bool) {
	var induced *PageResult[T]
	for i := range failures {
		f := &failures[i]
		if f.PageNumber > last {
			continue
		}
		if errors.Is(f.Error, context.Canceled) && parent.Err() == nil {
			if induced == nil {
				induced = f
			}
			continue
		}
		return *f, true
	}
	if induced != nil {
		return *induced, true
	}
	return PageResult[T]{}, false
}

// fetchPage fetches one page, attempting it again while Requeue accepts the
// error. Each attempt gets its own timeout.
func (bf *BatchFetcher[T]) fetchPage(ctx context.Context, page int) ([]T, error) {
	for attempt := 1; ; attempt++ {
		pageCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
		items, err := bf.fetch(pageCtx, page)
		cancel()

		if err == nil || ctx.Err() != nil || !bf.config.Requeue(err) {
			return items, err
		}
		bf.logger.Debug().
			Err(err).
			Int("page", page).
			Int("attempt", attempt).
			Msg("Page not admitted, trying again")
	}
}

// worker processes pages from the queue
func (bf *BatchFetcher[T]) worker(ctx context.Context, pageQueue <-chan int, results chan<- PageResult[T], lastPage *atomic.Int64, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	pagesProcessed := 0

	for pageNum := range pageQueue {
		// Check context cancellation
		if ctx.Err() != nil {
			bf.logger.Debug().
				Int("worker_id", workerID).
				Int("pages_processed", pagesProcessed).
				Msg("Worker stopping (context cancelled)")
			return
		}
		if int64(pageNum) > lastPage.Load() {
			continue
		}

		items, err := bf.fetchPage(ctx, pageNum)
		if err == nil && len(items) < bf.config.PageSize {
			shrink(lastPage, int64(pageNum))
		}

		// Results are always delivered; the collector drains until close.
		results <- PageResult[T]{PageNumber: pageNum, Items: items, Error: err}
		if err != nil {
			bf.logger.Debug().
				Err(err).
				Int("worker_id", workerID).
				Int("page", pageNum).
				Msg("Page fetch failed")
			return
		}
		pagesProcessed++
	}

	if pagesProcessed > 0 {
		bf.logger.Debug().
			Int("worker_id", workerID).
			Int("pages_processed", pagesProcessed).
			Msg("Worker completed")
	}
}

func shrink(v *atomic.Int64, page int64) {
	for {
		cur := v.Load()
		if page >= cur || v.CompareAndSwap(cur, page) {
			return
		}
	}
}
