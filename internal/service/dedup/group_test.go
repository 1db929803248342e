package dedup

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kapu/trendscope-go/internal/util"
	"go.uber.org/zap"
)

func newTestGroup(ttl time.Duration) (*Group[string], *util.ManualClock) {
	clock := util.NewManualClock(time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC))
	return New[string](ttl, clock, zap.NewNop()), clock
}

func TestConcurrentIdenticalCallsShareOneUpstreamCall(t *testing.T) {
	group, _ := newTestGroup(5 * time.Second)

	var calls atomic.Int32
	release := make(chan struct{})
	fn := func(context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "result", nil
	}

	const callers = 20
	var wg sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _, errs[i] = group.Do(context.Background(), "iPhone|2025-01-01|2025-03-01|50|100", fn)
		}(i)
	}

	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("expected exactly one upstream call, got %d", got)
	}
	for i := range results {
		if errs[i] != nil || results[i] != "result" {
			t.Fatalf("caller %d got (%q, %v)", i, results[i], errs[i])
		}
	}
}

func TestSettledResultIsReusedWithinTTL(t *testing.T) {
	group, clock := newTestGroup(5 * time.Second)

	var calls atomic.Int32
	fn := func(context.Context) (string, error) {
		calls.Add(1)
		return "fresh", nil
	}

	if _, shared, err := group.Do(context.Background(), "k", fn); err != nil || shared {
		t.Fatalf("first call: shared=%v err=%v", shared, err)
	}

	clock.Advance(4 * time.Second)
	if _, shared, _ := group.Do(context.Background(), "k", fn); !shared {
		t.Fatalf("expected second call within ttl to be shared")
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected one upstream call within ttl, got %d", got)
	}
}

func TestExpiredEntryIssuesNewCall(t *testing.T) {
	group, clock := newTestGroup(5 * time.Second)

	var calls atomic.Int32
	fn := func(context.Context) (string, error) {
		calls.Add(1)
		return "value", nil
	}

	if _, _, err := group.Do(context.Background(), "k", fn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if group.Len() != 1 {
		t.Fatalf("expected settled entry to be retained, got %d entries", group.Len())
	}

	clock.Advance(5 * time.Second)
	if group.Len() != 0 {
		t.Fatalf("expected entry to be evicted after ttl, got %d entries", group.Len())
	}

	if _, shared, err := group.Do(context.Background(), "k", fn); err != nil || shared {
		t.Fatalf("expected fresh call after expiry: shared=%v err=%v", shared, err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected two upstream calls, got %d", got)
	}
}

func TestFailureIsSharedAndRetryableAfterTTL(t *testing.T) {
	group, clock := newTestGroup(5 * time.Second)

	upstreamErr := errors.New("upstream unavailable")
	var calls atomic.Int32
	release := make(chan struct{})
	failing := func(context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "", upstreamErr
	}

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = group.Do(context.Background(), "k", failing)
		}(i)
	}
	close(release)
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, upstreamErr) {
			t.Fatalf("waiter %d expected upstream error, got %v", i, err)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected one upstream call, got %d", got)
	}

	clock.Advance(5 * time.Second)

	ok := func(context.Context) (string, error) {
		calls.Add(1)
		return "recovered", nil
	}
	value, _, err := group.Do(context.Background(), "k", ok)
	if err != nil || value != "recovered" {
		t.Fatalf("expected retry to succeed, got (%q, %v)", value, err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected retry to reach upstream, got %d calls", got)
	}
}

func TestCallerCancellationDoesNotAbortSharedCall(t *testing.T) {
	group, _ := newTestGroup(5 * time.Second)

	release := make(chan struct{})
	var upstreamCtxErr atomic.Value
	fn := func(ctx context.Context) (string, error) {
		<-release
		if err := ctx.Err(); err != nil {
			upstreamCtxErr.Store(err)
		}
		return "done", nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	impatient := make(chan error, 1)
	go func() {
		_, _, err := group.Do(ctx, "k", fn)
		impatient <- err
	}()

	// Wait for the call to be registered before joining it.
	deadline := time.Now().Add(time.Second)
	for group.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	patient := make(chan string, 1)
	go func() {
		v, _, _ := group.Do(context.Background(), "k", fn)
		patient <- v
	}()

	cancel()
	if err := <-impatient; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancelled caller to get context.Canceled, got %v", err)
	}

	close(release)
	if v := <-patient; v != "done" {
		t.Fatalf("expected patient caller to receive result, got %q", v)
	}
	if v := upstreamCtxErr.Load(); v != nil {
		t.Fatalf("upstream call must not observe caller cancellation, got %v", v)
	}
}

func TestDistinctKeysDoNotShare(t *testing.T) {
	group, _ := newTestGroup(5 * time.Second)

	var calls atomic.Int32
	fn := func(context.Context) (string, error) {
		calls.Add(1)
		return "v", nil
	}

	for _, key := range []string{"a", "b", "c"} {
		if _, _, err := group.Do(context.Background(), key, fn); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected one call per key, got %d", got)
	}
}

func TestPanicIsReportedToWaiters(t *testing.T) {
	group, _ := newTestGroup(0)

	_, _, err := group.Do(context.Background(), "k", func(context.Context) (string, error) {
		panic("boom")
	})

	var panicErr *PanicError
	if !errors.As(err, &panicErr) || panicErr.Value != "boom" {
		t.Fatalf("expected PanicError, got %v", err)
	}
	if group.Len() != 0 {
		t.Fatalf("zero ttl must evict immediately")
	}
}
