package search

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/trip-capture/internal/geo"
	"github.com/example/trip-capture/internal/geocode"
)

// fakeGeocoder records every Search call. In manual mode each call blocks
// until its release channel is closed, letting tests control completion
// order.
type fakeCall struct {
	term    string
	bias    geo.Coordinate
	ctx     context.Context
	release chan struct{}
	results []geocode.Result
	err     error
}

type fakeGeocoder struct {
	mu     sync.Mutex
	manual bool
	fail   error
	calls  []*fakeCall
}

func (f *fakeGeocoder) Search(ctx context.Context, term string, bias geo.Coordinate) ([]geocode.Result, error) {
	f.mu.Lock()
	c := &fakeCall{term: term, bias: bias, ctx: ctx, release: make(chan struct{})}
	f.calls = append(f.calls, c)
	manual, fail := f.manual, f.fail
	f.mu.Unlock()
	if fail != nil {
		return nil, fail
	}
	if !manual {
		return []geocode.Result{{Title: term}}, nil
	}
	<-c.release
	return c.results, c.err
}

func (f *fakeGeocoder) Reverse(ctx context.Context, c geo.Coordinate) (string, error) {
	return "", nil
}

func (f *fakeGeocoder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeGeocoder) call(i int) *fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func fastConfig() Config {
	return Config{MinQueryRunes: 3, ShortQueryMax: 4, ShortDebounce: 60 * time.Millisecond, NormalDebounce: 20 * time.Millisecond}
}

func TestShortQueryNeverFires(t *testing.T) {
	f := &fakeGeocoder{}
	c := NewCoordinator(f, fastConfig())
	defer c.Close()

	c.SetQueryText("آز") // 2 runes
	c.SetQueryText("a")
	c.SetQueryText("  ab  ") // trims to 2
	time.Sleep(150 * time.Millisecond)
	if n := f.callCount(); n != 0 {
		t.Fatalf("expected 0 search calls, got %d", n)
	}
}

func TestShortQueryClearsResults(t *testing.T) {
	f := &fakeGeocoder{}
	c := NewCoordinator(f, fastConfig())
	defer c.Close()

	c.SetQueryText("vanak")
	waitFor(t, "first search to publish", func() bool { return len(c.Results()) == 1 })

	c.SetQueryText("va")
	if got := c.Results(); len(got) != 0 {
		t.Fatalf("expected cleared results, got %v", got)
	}
	time.Sleep(100 * time.Millisecond)
	if n := f.callCount(); n != 1 {
		t.Fatalf("expected no extra call, got %d total", n)
	}
}

func TestRapidKeystrokesCoalesceToLast(t *testing.T) {
	f := &fakeGeocoder{}
	c := NewCoordinator(f, fastConfig())
	defer c.Close()

	c.SetQueryText("azadi s")
	c.SetQueryText("azadi sq")
	c.SetQueryText("azadi squ")
	waitFor(t, "debounced search", func() bool { return f.callCount() >= 1 })
	time.Sleep(120 * time.Millisecond)
	if n := f.callCount(); n != 1 {
		t.Fatalf("expected exactly 1 search, got %d", n)
	}
	if term := f.call(0).term; term != "azadi squ" {
		t.Fatalf("fired with %q, want last query", term)
	}
}

func TestStaleResponseNeverApplied(t *testing.T) {
	f := &fakeGeocoder{manual: true}
	c := NewCoordinator(f, fastConfig())
	defer c.Close()
	var mu sync.Mutex
	var published [][]geocode.Result
	c.OnResults = func(r []geocode.Result) {
		mu.Lock()
		published = append(published, r)
		mu.Unlock()
	}

	c.SetQueryText("old query")
	waitFor(t, "first request in flight", func() bool { return f.callCount() == 1 })

	c.SetQueryText("new query")
	waitFor(t, "second request in flight", func() bool { return f.callCount() == 2 })

	// superseding must abort the old transport request, not just flag it
	old := f.call(0)
	waitFor(t, "old request context cancelled", func() bool { return old.ctx.Err() != nil })
	if !errors.Is(old.ctx.Err(), context.Canceled) {
		t.Fatalf("old ctx err = %v", old.ctx.Err())
	}

	// newer request completes first
	newer := f.call(1)
	newer.results = []geocode.Result{{Title: "NEW"}}
	close(newer.release)
	waitFor(t, "new results published", func() bool { return len(c.Results()) == 1 })

	// old request completes late with data; it must be dropped silently
	old.results = []geocode.Result{{Title: "OLD"}}
	close(old.release)
	time.Sleep(50 * time.Millisecond)

	got := c.Results()
	if len(got) != 1 || got[0].Title != "NEW" {
		t.Fatalf("stale result surfaced: %v", got)
	}
	mu.Lock()
	defer mu.Unlock()
	for _, p := range published {
		for _, r := range p {
			if r.Title == "OLD" {
				t.Fatal("stale result reached the listener")
			}
		}
	}
}

func TestProgrammaticEchoDoesNotRetrigger(t *testing.T) {
	f := &fakeGeocoder{}
	c := NewCoordinator(f, fastConfig())
	defer c.Close()

	c.SetQueryText("revolution square")
	waitFor(t, "search", func() bool { return f.callCount() == 1 })

	c.SelectResult(geocode.Result{Title: "Revolution Square"})
	c.SetQueryText("Revolution Square") // UI echoing the selection
	time.Sleep(120 * time.Millisecond)
	if n := f.callCount(); n != 1 {
		t.Fatalf("echo retriggered search: %d calls", n)
	}

	// the flag is single-shot: a real keystroke searches again
	c.SetQueryText("Revolution Square metro")
	waitFor(t, "post-selection search", func() bool { return f.callCount() == 2 })
}

func TestProviderErrorClearsAndRecovers(t *testing.T) {
	f := &fakeGeocoder{fail: errors.New("upstream 500")}
	c := NewCoordinator(f, fastConfig())
	defer c.Close()
	var mu sync.Mutex
	loading := false
	c.OnLoading = func(v bool) { mu.Lock(); loading = v; mu.Unlock() }

	c.SetQueryText("enqelab")
	waitFor(t, "failed search", func() bool { return f.callCount() == 1 })
	time.Sleep(20 * time.Millisecond)
	if got := c.Results(); len(got) != 0 {
		t.Fatalf("results not cleared on error: %v", got)
	}
	mu.Lock()
	if loading {
		mu.Unlock()
		t.Fatal("loading indicator stuck after error")
	}
	mu.Unlock()

	// future queries are unaffected
	f.mu.Lock()
	f.fail = nil
	f.mu.Unlock()
	c.SetQueryText("enqelab sq")
	waitFor(t, "recovered search", func() bool { return len(c.Results()) == 1 })
}

func TestShortQueriesWaitLonger(t *testing.T) {
	f := &fakeGeocoder{}
	cfg := Config{MinQueryRunes: 3, ShortQueryMax: 4, ShortDebounce: 300 * time.Millisecond, NormalDebounce: 30 * time.Millisecond}
	c := NewCoordinator(f, cfg)
	defer c.Close()

	c.SetQueryText("آزادی") // 5 runes, normal debounce
	waitFor(t, "long-query search", func() bool { return f.callCount() == 1 })
	if term := f.call(0).term; term != "آزادی" {
		t.Fatalf("fired with %q", term)
	}

	c.SetQueryText("ونک") // 3 runes, short-query debounce
	time.Sleep(100 * time.Millisecond)
	if n := f.callCount(); n != 1 {
		t.Fatal("short query fired before its longer debounce window")
	}
	waitFor(t, "short-query search", func() bool { return f.callCount() == 2 })
}

func TestBiasFollowsMapCenter(t *testing.T) {
	f := &fakeGeocoder{}
	c := NewCoordinator(f, fastConfig())
	defer c.Close()

	bias := geo.Coordinate{Lat: 35.7, Lng: 51.4}
	c.SetBias(bias)
	c.SetQueryText("tajrish")
	waitFor(t, "search", func() bool { return f.callCount() == 1 })
	if got := f.call(0).bias; got != bias {
		t.Fatalf("search biased at %v, want %v", got, bias)
	}
}
