// Package search turns a stream of keystrokes into at most one in-flight
// geocoding request, and guarantees that only the response to the most
// recent query is ever surfaced.
package search

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/example/trip-capture/internal/geo"
	"github.com/example/trip-capture/internal/geocode"
	"github.com/example/trip-capture/internal/observability"
)

// Defaults. Short queries are more likely to still be mid-keystroke, so they
// wait longer before firing; the relationship must stay monotonic.
const (
	DefaultMinQueryRunes  = 3
	DefaultShortQueryMax  = 4
	DefaultShortDebounce  = 800 * time.Millisecond
	DefaultNormalDebounce = 400 * time.Millisecond
)

type state int

const (
	stateIdle state = iota
	stateDebouncing
	stateInflight
)

// Config tunes the coordinator. Zero values fall back to the defaults above.
type Config struct {
	MinQueryRunes  int
	ShortQueryMax  int           // rune length at or below which the long debounce applies
	ShortDebounce  time.Duration // wait for short queries
	NormalDebounce time.Duration // wait for longer queries
}

func (c Config) withDefaults() Config {
	if c.MinQueryRunes <= 0 {
		c.MinQueryRunes = DefaultMinQueryRunes
	}
	if c.ShortQueryMax <= 0 {
		c.ShortQueryMax = DefaultShortQueryMax
	}
	if c.ShortDebounce <= 0 {
		c.ShortDebounce = DefaultShortDebounce
	}
	if c.NormalDebounce <= 0 {
		c.NormalDebounce = DefaultNormalDebounce
	}
	return c
}

// Coordinator owns the single logical "current query". All state is guarded
// by one mutex; the debounce timer and the response goroutine re-enter
// through it. Tokens are assigned monotonically; a response is applied only
// if its token still matches, so an old request completing late can never
// overwrite a newer result.
type Coordinator struct {
	geocoder geocode.Geocoder
	cfg      Config

	// OnResults receives the authoritative result list (possibly empty).
	// OnLoading signals the in-flight indicator. Both may be nil. They are
	// invoked without the internal lock held.
	OnResults func([]geocode.Result)
	OnLoading func(bool)

	mu           sync.Mutex
	st           state
	bias         geo.Coordinate
	timer        *time.Timer
	gen          uint64 // invalidates timer callbacks that lost the race to a newer keystroke
	cancel       context.CancelFunc
	token        uint64
	programmatic bool
	results      []geocode.Result
	closed       bool
}

func NewCoordinator(g geocode.Geocoder, cfg Config) *Coordinator {
	return &Coordinator{geocoder: g, cfg: cfg.withDefaults()}
}

// SetBias updates the coordinate searches are biased around, typically the
// current map center.
func (c *Coordinator) SetBias(bias geo.Coordinate) {
	c.mu.Lock()
	c.bias = bias
	c.mu.Unlock()
}

// Results returns the currently published result list.
func (c *Coordinator) Results() []geocode.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]geocode.Result, len(c.results))
	copy(out, c.results)
	return out
}

// SetQueryText reacts to the search box changing. Below the minimum length
// it clears results without any network call; otherwise it (re)schedules a
// length-adaptive debounce. A text change caused by SelectResult writing the
// chosen title back is consumed silently.
func (c *Coordinator) SetQueryText(text string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.programmatic {
		// single-shot: the echo of a selected result, not a keystroke
		c.programmatic = false
		c.mu.Unlock()
		return
	}
	c.stopTimerLocked()
	c.gen++

	trimmed := strings.TrimSpace(text)
	runes := utf8.RuneCountInString(trimmed)
	if runes < c.cfg.MinQueryRunes {
		// hard floor, not a hint: bound provider traffic
		c.supersedeLocked()
		c.st = stateIdle
		c.results = nil
		c.mu.Unlock()
		observability.SearchesSuppressed.Inc()
		c.notifyLoading(false)
		c.notifyResults(nil)
		return
	}

	delay := c.cfg.NormalDebounce
	if runes <= c.cfg.ShortQueryMax {
		delay = c.cfg.ShortDebounce
	}
	c.st = stateDebouncing
	gen := c.gen
	c.timer = time.AfterFunc(delay, func() { c.fire(gen, trimmed) })
	c.mu.Unlock()
}

// SelectResult is called when the user picks a candidate from the list. The
// UI will write the title back into the search box; the next SetQueryText is
// marked programmatic so that echo does not start another search loop.
func (c *Coordinator) SelectResult(r geocode.Result) {
	c.mu.Lock()
	c.stopTimerLocked()
	c.gen++
	c.supersedeLocked()
	c.st = stateIdle
	c.programmatic = true
	c.mu.Unlock()
	c.notifyLoading(false)
}

// Close cancels any pending debounce and in-flight request.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.stopTimerLocked()
	c.gen++
	c.supersedeLocked()
	c.st = stateIdle
	c.mu.Unlock()
}

// fire runs when the debounce window elapses. It supersedes any request that
// is still in flight: the previous transport request is aborted, not just
// ignored, so abandoned lookups stop consuming the one live slot.
func (c *Coordinator) fire(gen uint64, text string) {
	c.mu.Lock()
	if c.closed || gen != c.gen {
		// a newer keystroke won the race against this timer
		c.mu.Unlock()
		return
	}
	c.supersedeLocked()
	c.timer = nil
	c.token++
	token := c.token
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.st = stateInflight
	bias := c.bias
	c.mu.Unlock()

	observability.SearchesIssued.Inc()
	c.notifyLoading(true)

	go func() {
		results, err := c.geocoder.Search(ctx, text, bias)
		c.apply(token, results, err)
	}()
}

func (c *Coordinator) apply(token uint64, results []geocode.Result, err error) {
	c.mu.Lock()
	if token != c.token {
		// superseded while in flight; silently dropped whatever the outcome
		c.mu.Unlock()
		observability.StaleResultsDropped.Inc()
		return
	}
	c.cancel = nil
	c.st = stateIdle
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// transport-level abort, a normal outcome
			c.mu.Unlock()
			return
		}
		// genuine failure: clear the list, stop the indicator, stay usable
		c.results = nil
		c.mu.Unlock()
		c.notifyLoading(false)
		c.notifyResults(nil)
		return
	}
	c.results = results
	c.mu.Unlock()
	c.notifyLoading(false)
	c.notifyResults(results)
}

// supersedeLocked invalidates the current token and aborts any in-flight
// transport request. Callers hold c.mu.
func (c *Coordinator) supersedeLocked() {
	c.token++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Coordinator) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
		if c.st == stateDebouncing {
			observability.SearchesCoalesced.Inc()
		}
	}
}

func (c *Coordinator) notifyResults(r []geocode.Result) {
	if c.OnResults != nil {
		c.OnResults(r)
	}
}

func (c *Coordinator) notifyLoading(v bool) {
	if c.OnLoading != nil {
		c.OnLoading(v)
	}
}
