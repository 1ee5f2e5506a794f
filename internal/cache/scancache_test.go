package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cortexshield/llmguard/internal/scanner"
)

func TestFingerprint_DistinguishesSideAndText(t *testing.T) {
	a := Fingerprint(scanner.SideInput, "hello")
	b := Fingerprint(scanner.SideOutput, "hello")
	c := Fingerprint(scanner.SideInput, "world")

	if a == b {
		t.Error("fingerprints for different sides must differ")
	}
	if a == c {
		t.Error("fingerprints for different text must differ")
	}
	if Fingerprint(scanner.SideInput, "hello") != a {
		t.Error("fingerprint must be deterministic")
	}
}

func TestCache_StoreThenLookupHitsLocal(t *testing.T) {
	c := New(Config{Backend: BackendLocalOnly})
	fp := Fingerprint(scanner.SideInput, "hi")
	verdict := &scanner.Result{Allowed: true, Sanitized: "hi"}

	c.Store(context.Background(), fp, verdict, time.Minute)

	got, ok, err := c.Lookup(context.Background(), fp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected a cache hit")
	}
	if got.Sanitized != "hi" {
		t.Fatalf("Sanitized = %q, want %q", got.Sanitized, "hi")
	}
}

func TestCache_LookupMissReturnsFalse(t *testing.T) {
	c := New(Config{Backend: BackendLocalOnly})
	_, ok, err := c.Lookup(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected a cache miss")
	}
}

func TestCache_ExpiredEntryIsTreatedAsMiss(t *testing.T) {
	c := New(Config{Backend: BackendLocalOnly})
	fp := "fp"
	c.Store(context.Background(), fp, &scanner.Result{Allowed: true}, -time.Second)

	_, ok, _ := c.Lookup(context.Background(), fp)
	if ok {
		t.Fatal("expected an expired entry to be reported as a miss")
	}
}

func TestCache_ComputeCoalescesConcurrentCallers(t *testing.T) {
	c := New(Config{Backend: BackendLocalOnly})
	fp := "shared"
	var calls int32
	release := make(chan struct{})

	compute := func() (*scanner.Result, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return &scanner.Result{Allowed: true, Sanitized: "computed"}, nil
	}

	var wg sync.WaitGroup
	results := make([]*scanner.Result, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.Compute(context.Background(), fp, time.Minute, compute)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			results[i] = v
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("compute fn called %d times, want 1", got)
	}
	for i, r := range results {
		if r == nil || r.Sanitized != "computed" {
			t.Fatalf("result %d = %+v, want Sanitized=computed", i, r)
		}
	}
}

func TestCache_ComputeDetachesOnContextCancel(t *testing.T) {
	c := New(Config{Backend: BackendLocalOnly})
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_, _ = c.Compute(context.Background(), "fp", time.Minute, func() (*scanner.Result, error) {
			close(started)
			<-release
			return &scanner.Result{Allowed: true}, nil
		})
	}()
	<-started

	cancel()
	_, err := c.Compute(ctx, "fp", time.Minute, func() (*scanner.Result, error) {
		t.Fatal("a canceled waiter must not run its own computation while one is already in flight")
		return nil, nil
	})
	if err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	close(release)
}

func TestCache_ClearEmptiesLocalTier(t *testing.T) {
	c := New(Config{Backend: BackendLocalOnly})
	c.Store(context.Background(), "fp", &scanner.Result{Allowed: true}, time.Minute)
	if c.LocalLen() != 1 {
		t.Fatalf("LocalLen = %d, want 1", c.LocalLen())
	}
	c.Clear()
	if c.LocalLen() != 0 {
		t.Fatalf("LocalLen after Clear = %d, want 0", c.LocalLen())
	}
}

func TestCache_SweepRemovesExpiredEntries(t *testing.T) {
	c := New(Config{Backend: BackendLocalOnly})
	c.Store(context.Background(), "expired", &scanner.Result{Allowed: true}, -time.Second)
	c.Store(context.Background(), "fresh", &scanner.Result{Allowed: true}, time.Minute)

	removed := c.Sweep()
	if removed != 1 {
		t.Fatalf("Sweep removed = %d, want 1", removed)
	}
	if c.LocalLen() != 1 {
		t.Fatalf("LocalLen after Sweep = %d, want 1", c.LocalLen())
	}
}

func TestCache_RemoteOnlyWithoutRemoteReturnsError(t *testing.T) {
	c := New(Config{Backend: BackendRemoteOnly})
	_, _, err := c.Lookup(context.Background(), "fp")
	if err != ErrRemoteUnavailable {
		t.Fatalf("err = %v, want ErrRemoteUnavailable", err)
	}
}
