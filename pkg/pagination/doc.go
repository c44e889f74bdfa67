// Package pagination provides parallel fetching for paginated list endpoints.
//
// List endpoints take page and pageSize query parameters and do not report
// the total number of pages. The collection ends at the first page holding
// fewer than pageSize items. This package implements a worker pool that
// speculatively fetches the following pages and stops handing out page
// numbers once a short page has been seen.
//
// Example usage:
//
//	config := pagination.DefaultConfig()
//	fetcher := pagination.NewBatchFetcher(func(ctx context.Context, page int) ([]resources.Customer, error) {
//		return customers.List(ctx, resources.ListOptions{Page: page, PageSize: config.PageSize})
//	}, config)
//	all, err := fetcher.FetchAll(ctx, "/customers")
//
// The batch fetcher:
//   - Fetches the first page and returns early if it is short
//   - Spawns a worker pool (default 4 workers)
//   - Feeds page numbers until a short page is found or MaxPages is reached
//   - Drops pages fetched past the end of the collection
//   - Returns partial data together with the first page error
//
// Every page request still goes through the client's rate limiter, so the
// worker count only bounds how many requests wait there at once.
package pagination
