package pagination

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/go24so/pkg/apierror"
	"github.com/Sternrassler/go24so/pkg/ratelimit"
)

// pagesOf serves total items split into pages of size.
func pagesOf(total, size int, calls *atomic.Int32) PageFunc[int] {
	return func(ctx context.Context, page int) ([]int, error) {
		calls.Add(1)
		start := (page - 1) * size
		if start >= total {
			return []int{}, nil
		}
		end := start + size
		if end > total {
			end = total
		}
		items := make([]int, 0, end-start)
		for i := start; i < end; i++ {
			items = append(items, i)
		}
		return items, nil
	}
}

func TestNewBatchFetcher_Defaults(t *testing.T) {
	bf := NewBatchFetcher[int](nil, Config{})
	got, want := bf.Config(), DefaultConfig()
	if got.MaxConcurrency != want.MaxConcurrency || got.Timeout != want.Timeout ||
		got.PageSize != want.PageSize || got.MaxPages != want.MaxPages {
		t.Errorf("Config() = %+v, want %+v", got, want)
	}
	if got.Requeue == nil || !got.Requeue(apierror.New(apierror.KindRateLimit, "denied")) {
		t.Error("default Requeue should accept local admission denials")
	}
}

func TestFetchAll(t *testing.T) {
	tests := []struct {
		name      string
		total     int
		pageSize  int
		wantPages int
	}{
		{"empty collection", 0, 10, 1},
		{"single short page", 7, 10, 1},
		{"exact multiple needs empty page", 30, 10, 4},
		{"several pages", 95, 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			bf := NewBatchFetcher(pagesOf(tt.total, tt.pageSize, &calls), Config{
				MaxConcurrency: 3,
				PageSize:       tt.pageSize,
			})

			pages, err := bf.FetchAllPages(context.Background(), "/customers")
			if err != nil {
				t.Fatalf("FetchAllPages() error = %v", err)
			}
			if len(pages) != tt.wantPages {
				t.Errorf("pages = %d, want %d", len(pages), tt.wantPages)
			}

			items := Flatten(pages)
			if len(items) != tt.total {
				t.Fatalf("items = %d, want %d", len(items), tt.total)
			}
			for i, v := range items {
				if v != i {
					t.Fatalf("items[%d] = %d, want %d (out of order)", i, v, i)
				}
			}
		})
	}
}

func TestFetchAll_BoundedOverfetch(t *testing.T) {
	var calls atomic.Int32
	bf := NewBatchFetcher(pagesOf(45, 10, &calls), Config{MaxConcurrency: 2, PageSize: 10})

	items, err := bf.FetchAll(context.Background(), "/products")
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(items) != 45 {
		t.Errorf("items = %d, want 45", len(items))
	}
	// Five pages are needed; workers only run a few pages ahead of the
	// short page, far from the MaxPages default.
	if n := calls.Load(); n < 5 || n > 20 {
		t.Errorf("page calls = %d, want between 5 and 20", n)
	}
}

func TestFetchAll_MaxPages(t *testing.T) {
	var calls atomic.Int32
	bf := NewBatchFetcher(pagesOf(1000, 10, &calls), Config{MaxConcurrency: 2, PageSize: 10, MaxPages: 3})

	items, err := bf.FetchAll(context.Background(), "/invoices")
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(items) != 30 {
		t.Errorf("items = %d, want 30", len(items))
	}
}

func TestFetchAll_FirstPageError(t *testing.T) {
	boom := errors.New("boom")
	bf := NewBatchFetcher(func(ctx context.Context, page int) ([]int, error) {
		return nil, boom
	}, Config{PageSize: 10})

	pages, err := bf.FetchAllPages(context.Background(), "/customers")
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want boom", err)
	}
	if pages != nil {
		t.Errorf("pages = %v, want nil", pages)
	}
}

func TestFetchAll_PartialResultsOnError(t *testing.T) {
	boom := errors.New("boom")
	var calls atomic.Int32
	ok := pagesOf(100, 10, &calls)
	bf := NewBatchFetcher(func(ctx context.Context, page int) ([]int, error) {
		if page == 3 {
			return nil, boom
		}
		return ok(ctx, page)
	}, Config{MaxConcurrency: 1, PageSize: 10})

	pages, err := bf.FetchAllPages(context.Background(), "/customers")
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want boom", err)
	}
	if _, ok := pages[1]; !ok {
		t.Error("page 1 missing from partial results")
	}
	if _, ok := pages[2]; !ok {
		t.Error("page 2 missing from partial results")
	}
	if got := len(Flatten(pages)); got != 20 {
		t.Errorf("Flatten() = %d items, want 20", got)
	}
}

func TestFetchAll_PageTimeout(t *testing.T) {
	bf := NewBatchFetcher(func(ctx context.Context, page int) ([]int, error) {
		if page == 1 {
			return make([]int, 10), nil
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}, Config{MaxConcurrency: 2, PageSize: 10, Timeout: 20 * time.Millisecond})

	_, err := bf.FetchAllPages(context.Background(), "/customers")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want DeadlineExceeded", err)
	}
}

func TestFetchAll_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	bf := NewBatchFetcher(func(ctx context.Context, page int) ([]int, error) {
		if page == 2 {
			cancel()
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return make([]int, 10), nil
	}, Config{MaxConcurrency: 1, PageSize: 10})

	_, err := bf.FetchAllPages(ctx, "/customers")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want Canceled", err)
	}
}

func TestFlatten_StopsAtGap(t *testing.T) {
	got := Flatten(map[int][]string{1: {"a"}, 2: {"b"}, 4: {"d"}})
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Flatten() = %v, want [a b]", got)
	}
}

func TestFetchAll_RequeuesAdmissionDenials(t *testing.T) {
	var calls, denials atomic.Int32
	ok := pagesOf(25, 10, &calls)
	bf := NewBatchFetcher(func(ctx context.Context, page int) ([]int, error) {
		if page == 2 && denials.Add(1) <= 2 {
			return nil, apierror.New(apierror.KindRateLimit, "rate limit exceeded")
		}
		return ok(ctx, page)
	}, Config{MaxConcurrency: 2, PageSize: 10})

	items, err := bf.FetchAll(context.Background(), "/customers")
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(items) != 25 {
		t.Errorf("items = %d, want 25", len(items))
	}
	if n := denials.Load(); n != 3 {
		t.Errorf("page 2 attempts = %d, want 3", n)
	}
}

func TestFetchAll_ServerRateLimitIsFatal(t *testing.T) {
	var calls atomic.Int32
	ok := pagesOf(100, 10, &calls)
	bf := NewBatchFetcher(func(ctx context.Context, page int) ([]int, error) {
		if page == 2 {
			return nil, &apierror.Error{Kind: apierror.KindRateLimit, StatusCode: http.StatusTooManyRequests}
		}
		return ok(ctx, page)
	}, Config{MaxConcurrency: 1, PageSize: 10})

	_, err := bf.FetchAll(context.Background(), "/customers")
	if !errors.Is(err, apierror.ErrRateLimit) {
		t.Errorf("error = %v, want rate limit", err)
	}
}

func TestFetchAll_SharedLimiter(t *testing.T) {
	limiter, err := ratelimit.New(2, 100*time.Millisecond, ratelimit.WithLogger(zerolog.Nop()))
	if err != nil {
		t.Fatalf("ratelimit.New() error = %v", err)
	}

	var calls atomic.Int32
	ok := pagesOf(24, 2, &calls)
	bf := NewBatchFetcher(func(ctx context.Context, page int) ([]int, error) {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return ok(ctx, page)
	}, Config{MaxConcurrency: 4, PageSize: 2})

	items, err := bf.FetchAll(context.Background(), "/customers")
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(items) != 24 {
		t.Fatalf("items = %d, want 24", len(items))
	}
	for i, v := range items {
		if v != i {
			t.Fatalf("items[%d] = %d, want %d", i, v, i)
		}
	}
}

func TestFetchAll_ReportsRootCauseOverCancellation(t *testing.T) {
	limited := &apierror.Error{Kind: apierror.KindRateLimit, StatusCode: http.StatusTooManyRequests, Message: "slow down"}
	bf := NewBatchFetcher(func(ctx context.Context, page int) ([]int, error) {
		switch {
		case page == 1:
			return make([]int, 10), nil
		case page == 5:
			return nil, limited
		default:
			// Lower pages are still in flight when page 5 fails.
			<-ctx.Done()
			return nil, ctx.Err()
		}
	}, Config{MaxConcurrency: 4, PageSize: 10})

	_, err := bf.FetchAllPages(context.Background(), "/customers")
	if !errors.Is(err, apierror.ErrRateLimit) {
		t.Fatalf("error = %v, want rate limit", err)
	}
	if errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, cancellation must not replace the cause", err)
	}
	if !strings.Contains(err.Error(), "page 5") {
		t.Errorf("error = %v, want page 5", err)
	}
}

func TestFetchAll_UsesConfiguredLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	var calls atomic.Int32
	bf := NewBatchFetcher(pagesOf(30, 10, &calls), Config{MaxConcurrency: 2, PageSize: 10, Logger: &logger})

	if _, err := bf.FetchAll(context.Background(), "/customers"); err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"component":"pagination"`) || !strings.Contains(out, "Fetch complete") {
		t.Errorf("log output = %q, want pagination entries", out)
	}
}
