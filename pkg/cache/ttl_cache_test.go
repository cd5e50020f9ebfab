package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.now = f.now.Add(d)
}

func identity(s string) string { return s }

func TestNewTTLCache_rejects_non_positive_ttl(t *testing.T) {
	for _, ttl := range []time.Duration{0, -time.Second} {
		if _, err := NewTTLCache[string, string](10, ttl, identity); !errors.Is(err, ErrInvalidTTL) {
			t.Errorf("ttl %v: got err %v", ttl, err)
		}
	}
}

func TestTTLCache_GetOrLoad_miss_then_hit(t *testing.T) {
	loads := atomic.Int32{}

	c, err := NewTTLCache[string, string](10, time.Minute, identity)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	load := func(_ context.Context, key string) (string, error) {
		loads.Add(1)

		return "v-" + key, nil
	}

	v, hit, err := c.GetOrLoad(ctx, "a", load)
	if err != nil {
		t.Fatal(err)
	}

	if hit {
		t.Error("expected miss")
	}

	if v != "v-a" {
		t.Errorf("got %q", v)
	}

	v, hit, err = c.GetOrLoad(ctx, "a", load)
	if err != nil {
		t.Fatal(err)
	}

	if !hit {
		t.Error("expected hit")
	}

	if v != "v-a" {
		t.Errorf("got %q", v)
	}

	if loads.Load() != 1 {
		t.Errorf("loads = %d", loads.Load())
	}
}

func TestTTLCache_expiry(t *testing.T) {
	clock := newFakeClock()

	c, err := NewTTLCache[string, int](10, 5*time.Minute, identity, WithClock(clock.Now))
	if err != nil {
		t.Fatal(err)
	}

	c.Set("k", 1)

	clock.Advance(5*time.Minute - time.Nanosecond)

	if v, ok := c.Get("k"); !ok || v != 1 {
		t.Errorf("expected fresh hit just before ttl, got %d %v", v, ok)
	}

	clock.Advance(time.Nanosecond)

	if _, ok := c.Get("k"); ok {
		t.Error("entry exactly ttl old must be expired")
	}

	if c.Len() != 0 {
		t.Errorf("expired entry should be removed on read, Len = %d", c.Len())
	}
}

func TestTTLCache_GetOrLoad_reloads_after_expiry(t *testing.T) {
	clock := newFakeClock()
	loads := atomic.Int32{}

	c, err := NewTTLCache[string, int32](10, time.Hour, identity, WithClock(clock.Now))
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	load := func(_ context.Context, _ string) (int32, error) {
		return loads.Add(1), nil
	}

	v, _, _ := c.GetOrLoad(ctx, "idx", load)
	if v != 1 {
		t.Errorf("got %d", v)
	}

	clock.Advance(59 * time.Minute)

	v, hit, _ := c.GetOrLoad(ctx, "idx", load)
	if !hit || v != 1 {
		t.Errorf("expected cached value 1, got %d hit=%v", v, hit)
	}

	clock.Advance(time.Minute)

	v, hit, _ = c.GetOrLoad(ctx, "idx", load)
	if hit || v != 2 {
		t.Errorf("expected reload to 2, got %d hit=%v", v, hit)
	}
}

func TestTTLCache_GetOrLoad_singleflight(t *testing.T) {
	loads := atomic.Int32{}

	c, err := NewTTLCache[string, int](10, time.Minute, identity)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	release := make(chan struct{})

	//nolint:unparam // load always returns nil error for this test.
	load := func(_ context.Context, _ string) (int, error) {
		loads.Add(1)
		<-release

		return 42, nil
	}

	var started sync.WaitGroup

	var wg sync.WaitGroup
	for range 10 {
		started.Add(1)
		wg.Go(func() {
			started.Done()

			val, _, err := c.GetOrLoad(ctx, "x", load)
			if err != nil {
				t.Error(err)

				return
			}

			if val != 42 {
				t.Errorf("got %d", val)
			}
		})
	}

	started.Wait()
	close(release)
	wg.Wait()

	// Callers that arrive after the first load finished hit the cache instead of loading,
	// so every path yields a single load once the first caller holds the flight.
	if n := loads.Load(); n < 1 || n > 10 {
		t.Errorf("expected 1-10 loads (singleflight coalescing), got %d", n)
	}
}

func TestTTLCache_Invalidate(t *testing.T) {
	c, err := NewTTLCache[string, string](10, time.Minute, identity)
	if err != nil {
		t.Fatal(err)
	}

	c.Set("a", "1")
	c.Set("b", "2")
	c.Invalidate("a")

	if _, ok := c.Get("a"); ok {
		t.Error("expected miss after Invalidate")
	}

	if _, ok := c.Get("b"); !ok {
		t.Error("other keys must survive Invalidate")
	}
}

func TestTTLCache_InvalidateAll(t *testing.T) {
	c, err := NewTTLCache[string, string](10, time.Minute, identity)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	load := func(_ context.Context, key string) (string, error) { return "v-" + key, nil }

	_, _, _ = c.GetOrLoad(ctx, "a", load)
	_, _, _ = c.GetOrLoad(ctx, "b", load)

	if c.Len() != 2 {
		t.Errorf("Len = %d", c.Len())
	}

	c.InvalidateAll()

	if c.Len() != 0 {
		t.Errorf("Len = %d", c.Len())
	}

	_, hit, _ := c.GetOrLoad(ctx, "a", load)
	if hit {
		t.Error("expected miss after InvalidateAll")
	}
}

func TestTTLCache_InvalidateAll_during_load(t *testing.T) {
	c, err := NewTTLCache[string, string](10, time.Minute, identity)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	load := func(_ context.Context, key string) (string, error) {
		c.InvalidateAll()

		return "stale-" + key, nil
	}

	v, _, err := c.GetOrLoad(ctx, "a", load)
	if err != nil {
		t.Fatal(err)
	}

	if v != "stale-a" {
		t.Errorf("got %q", v)
	}

	if c.Len() != 0 {
		t.Error("a load that straddles InvalidateAll must not repopulate the cache")
	}
}

func TestTTLCache_GetOrLoad_load_error(t *testing.T) {
	c, err := NewTTLCache[string, string](10, time.Minute, identity)
	if err != nil {
		t.Fatal(err)
	}

	loadErr := context.DeadlineExceeded
	load := func(_ context.Context, _ string) (string, error) {
		return "", loadErr
	}

	_, _, err = c.GetOrLoad(context.Background(), "a", load)
	if !errors.Is(err, loadErr) {
		t.Errorf("got err %v", err)
	}

	if c.Len() != 0 {
		t.Error("failed load should not be cached")
	}
}

// blockingLoader blocks its first load until release is closed; later loads return at once.
// Each load returns its own sequence number.
type blockingLoader struct {
	loads   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func newBlockingLoader() *blockingLoader {
	return &blockingLoader{started: make(chan struct{}), release: make(chan struct{})}
}

func (l *blockingLoader) load(_ context.Context, _ string) (int32, error) {
	n := l.loads.Add(1)
	if n == 1 {
		close(l.started)
		<-l.release
	}

	return n, nil
}

func TestTTLCache_InvalidateAll_while_loading(t *testing.T) {
	c, err := NewTTLCache[string, int32](10, time.Minute, identity)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	loader := newBlockingLoader()

	first := make(chan int32, 1)

	go func() {
		v, _, _ := c.GetOrLoad(ctx, "k", loader.load)
		first <- v
	}()

	<-loader.started
	c.InvalidateAll()

	v, hit, err := c.GetOrLoad(ctx, "k", loader.load)
	if err != nil {
		t.Fatal(err)
	}

	if hit || v != 2 {
		t.Errorf("a query after InvalidateAll must recompute, got %d hit=%v", v, hit)
	}

	close(loader.release)

	if got := <-first; got != 1 {
		t.Errorf("first caller got %d", got)
	}

	if n := loader.loads.Load(); n != 2 {
		t.Errorf("loads = %d, want 2", n)
	}

	if cached, ok := c.Get("k"); !ok || cached != 2 {
		t.Errorf("cache must hold the post-clear value, got %d ok=%v", cached, ok)
	}
}

func TestTTLCache_Invalidate_while_loading(t *testing.T) {
	c, err := NewTTLCache[string, int32](10, time.Minute, identity)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	loader := newBlockingLoader()

	done := make(chan struct{})

	go func() {
		defer close(done)

		_, _, _ = c.GetOrLoad(ctx, "k", loader.load)
	}()

	<-loader.started
	c.Invalidate("k")
	close(loader.release)
	<-done

	if v, ok := c.Get("k"); ok {
		t.Errorf("load that straddles Invalidate must not be stored, got %d", v)
	}

	v, hit, err := c.GetOrLoad(ctx, "k", loader.load)
	if err != nil {
		t.Fatal(err)
	}

	if hit || v != 2 {
		t.Errorf("expected fresh load 2, got %d hit=%v", v, hit)
	}
}

func TestTTLCache_Invalidate_leaves_other_loads(t *testing.T) {
	c, err := NewTTLCache[string, int32](10, time.Minute, identity)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	loader := newBlockingLoader()

	done := make(chan struct{})

	go func() {
		defer close(done)

		_, _, _ = c.GetOrLoad(ctx, "a", loader.load)
	}()

	<-loader.started
	c.Invalidate("b")
	close(loader.release)
	<-done

	if _, ok := c.Get("a"); !ok {
		t.Error("invalidating another key must not discard an in-flight load")
	}
}
