package query

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/five82/shelf/internal/apperr"
)

const defaultRequestTimeout = 15 * time.Second

// Cache holds one Entry per Key and coordinates the requests that fill them.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	flights singleflight.Group

	ctx     context.Context
	timeout time.Duration
	now     func() time.Time
	logger  *zap.Logger

	gen       uint64 // request generations, cache-wide
	version   uint64
	watcherID uint64
}

type entry struct {
	state    Entry
	fetch    Fetcher
	issued   uint64 // newest generation started
	applied  uint64 // generation whose result is in state
	inflight uint64 // generation of the running request, 0 when idle
	// invalidated is the newest generation issued before the last
	// Invalidate. Results at or below it stay stale.
	invalidated uint64
	cancel   context.CancelFunc
	watchers map[uint64]func(Entry)
}

// Option customizes a Cache.
type Option func(*Cache)

// WithContext sets the parent context of every request. Requests are not
// tied to the caller that triggered them.
func WithContext(ctx context.Context) Option {
	return func(c *Cache) {
		if ctx != nil {
			c.ctx = ctx
		}
	}
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// New builds an empty Cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]*entry),
		ctx:     context.Background(),
		timeout: defaultRequestTimeout,
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the current entry for key. Unknown keys are idle.
func (c *Cache) Get(key Key) Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key.ID()]; ok {
		return e.state
	}
	return Entry{Key: key}
}

// Observe registers fn for changes to key and delivers the current entry
// immediately. The fetch runs when the key is first observed, was
// invalidated, or holds only an error. The returned stop function abandons
// interest; a running request still completes and fills the cache.
func (c *Cache) Observe(key Key, fetch Fetcher, fn func(Entry)) (stop func()) {
	c.mu.Lock()
	e := c.entryLocked(key)
	if fetch != nil {
		e.fetch = fetch
	}
	c.watcherID++
	id := c.watcherID
	others := e.watcherList()
	e.watchers[id] = fn
	started := false
	if e.needsFetch() {
		c.startLocked(e, false)
		started = true
	}
	snap := e.state
	c.mu.Unlock()

	if started {
		notify(others, snap)
	}
	fn(snap)

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(e.watchers, id)
			c.mu.Unlock()
		})
	}
}

// Fetch returns fresh data for key, joining a running request when there
// is one. If ctx ends first the request keeps running in the background.
func (c *Cache) Fetch(ctx context.Context, key Key, fetch Fetcher) (Entry, error) {
	c.mu.Lock()
	e := c.entryLocked(key)
	if fetch != nil {
		e.fetch = fetch
	}
	if e.fetch == nil {
		c.mu.Unlock()
		return Entry{Key: key}, fmt.Errorf("fetch %s: no fetch function", key)
	}
	if e.state.Status == StatusSuccess && !e.state.Stale {
		snap := e.state
		c.mu.Unlock()
		return snap, nil
	}
	ch := c.startLocked(e, false)
	snap, watchers := e.state, e.watcherList()
	c.mu.Unlock()
	notify(watchers, snap)

	return c.wait(ctx, key, ch)
}

// Refetch re-runs the registered fetch for key, superseding any request in
// flight. On failure the previous data is kept and the error is recorded
// beside it.
func (c *Cache) Refetch(ctx context.Context, key Key) (Entry, error) {
	c.mu.Lock()
	e, ok := c.entries[key.ID()]
	if !ok || e.fetch == nil {
		c.mu.Unlock()
		return Entry{Key: key}, fmt.Errorf("refetch %s: no fetch function", key)
	}
	ch := c.startLocked(e, true)
	snap, watchers := e.state, e.watcherList()
	c.mu.Unlock()
	notify(watchers, snap)

	return c.wait(ctx, key, ch)
}

// Invalidate marks every entry whose key starts with prefix as stale and
// refetches the observed ones right away. Unobserved entries refetch when
// next observed. It returns the number of entries matched.
func (c *Cache) Invalidate(prefix Key) int {
	type pending struct {
		watchers []func(Entry)
		snap     Entry
	}
	var notes []pending

	c.mu.Lock()
	matched := 0
	for _, e := range c.entries {
		if !e.state.Key.HasPrefix(prefix) {
			continue
		}
		matched++
		e.state.Stale = true
		e.invalidated = c.gen
		if len(e.watchers) > 0 && e.fetch != nil {
			c.startLocked(e, true)
		} else {
			c.bumpLocked(e)
		}
		notes = append(notes, pending{e.watcherList(), e.state})
	}
	c.mu.Unlock()

	for _, n := range notes {
		notify(n.watchers, n.snap)
	}
	if matched > 0 {
		c.logger.Debug("invalidated queries", zap.String("prefix", prefix.String()), zap.Int("matched", matched))
	}
	return matched
}

// Remove drops the data cached for key so nothing can serve it again. A
// running request for key is abandoned. Observers stay registered and see
// the entry reload.
func (c *Cache) Remove(key Key) {
	c.mu.Lock()
	old, ok := c.entries[key.ID()]
	if !ok {
		c.mu.Unlock()
		return
	}
	if old.cancel != nil {
		old.cancel()
	}
	delete(c.entries, key.ID())
	if len(old.watchers) == 0 {
		c.mu.Unlock()
		return
	}
	e := c.entryLocked(key)
	e.fetch = old.fetch
	e.watchers = old.watchers
	if e.fetch != nil {
		c.startLocked(e, true)
	} else {
		c.bumpLocked(e)
	}
	snap, watchers := e.state, e.watcherList()
	c.mu.Unlock()
	notify(watchers, snap)
}

// RevalidateObserved refetches every observed entry and waits for them.
// It returns the first failure, for callers that back off on errors.
func (c *Cache) RevalidateObserved(ctx context.Context) error {
	type flight struct {
		key Key
		ch  <-chan singleflight.Result
	}
	var flights []flight
	var notes [][]func(Entry)
	var snaps []Entry

	c.mu.Lock()
	for _, e := range c.entries {
		if len(e.watchers) == 0 || e.fetch == nil {
			continue
		}
		flights = append(flights, flight{e.state.Key, c.startLocked(e, false)})
		notes = append(notes, e.watcherList())
		snaps = append(snaps, e.state)
	}
	c.mu.Unlock()
	for i := range notes {
		notify(notes[i], snaps[i])
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, f := range flights {
		f := f
		g.Go(func() error {
			_, err := c.wait(gctx, f.key, f.ch)
			return err
		})
	}
	return g.Wait()
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) wait(ctx context.Context, key Key, ch <-chan singleflight.Result) (Entry, error) {
	select {
	case <-ctx.Done():
		return c.Get(key), ctx.Err()
	case res := <-ch:
		snap, _ := res.Val.(Entry)
		if snap.Status == StatusError {
			return snap, snap.Err
		}
		return snap, nil
	}
}

func (c *Cache) entryLocked(key Key) *entry {
	id := key.ID()
	e, ok := c.entries[id]
	if !ok {
		e = &entry{
			state:    Entry{Key: append(Key(nil), key...)},
			watchers: make(map[uint64]func(Entry)),
		}
		c.entries[id] = e
	}
	return e
}

func (c *Cache) bumpLocked(e *entry) {
	c.version++
	e.state.Version = c.version
}

// startLocked begins or joins the request for e. A forced start always
// opens a new generation and cancels the one it supersedes.
func (c *Cache) startLocked(e *entry, force bool) <-chan singleflight.Result {
	key := e.state.Key
	if e.inflight != 0 && e.inflight > e.invalidated && !force {
		return c.flights.DoChan(flightKey(key, e.inflight), func() (any, error) {
			return c.Get(key), nil
		})
	}

	if e.cancel != nil {
		e.cancel()
	}
	c.gen++
	gen := c.gen
	ctx, cancel := context.WithTimeout(c.ctx, c.timeout)
	e.issued = gen
	e.inflight = gen
	e.cancel = cancel
	e.state.Fetching = true
	if e.state.Data == nil && !e.state.Empty {
		e.state.Status = StatusLoading
	}
	c.bumpLocked(e)

	fetch := e.fetch
	return c.flights.DoChan(flightKey(key, gen), func() (any, error) {
		defer cancel()
		data, err := fetch(ctx)
		return c.complete(e, gen, data, err), nil
	})
}

// complete applies a finished request. Results are applied in completion
// order: a response older than the one already applied is dropped, and a
// superseded request's failure is dropped because its successor reports.
func (c *Cache) complete(e *entry, gen uint64, data any, err error) Entry {
	c.mu.Lock()
	key := e.state.Key
	if c.entries[key.ID()] != e {
		c.mu.Unlock()
		c.logger.Debug("dropping response for removed query", zap.String("key", key.String()))
		return Entry{Key: key}
	}
	if gen == e.inflight {
		e.inflight = 0
		e.cancel = nil
		e.state.Fetching = false
	}
	superseded := gen < e.issued

	switch {
	case gen <= e.applied:
		c.logger.Debug("dropping stale response", zap.String("key", key.String()), zap.Uint64("gen", gen))
	case err != nil && superseded:
		c.logger.Debug("dropping superseded failure", zap.String("key", key.String()), zap.Error(err))
	case apperr.Is(err, apperr.KindNotFound):
		e.applied = gen
		e.state.Status = StatusSuccess
		e.state.Data = nil
		e.state.Empty = true
		e.state.Err = nil
		e.state.Stale = gen <= e.invalidated
		e.state.Failures = 0
		e.state.UpdatedAt = c.now()
	case err != nil:
		e.applied = gen
		e.state.Status = StatusError
		e.state.Err = err
		e.state.Failures++
		e.state.UpdatedAt = c.now()
		c.logger.Warn("query failed", zap.String("key", key.String()), zap.Int("failures", e.state.Failures), zap.Error(err))
	default:
		e.applied = gen
		e.state.Status = StatusSuccess
		e.state.Data = data
		e.state.Empty = isEmptyResult(data)
		e.state.Err = nil
		e.state.Stale = gen <= e.invalidated
		e.state.Failures = 0
		e.state.UpdatedAt = c.now()
	}
	c.bumpLocked(e)
	snap, watchers := e.state, e.watcherList()
	c.mu.Unlock()

	notify(watchers, snap)
	return snap
}

func (e *entry) needsFetch() bool {
	if e.fetch == nil {
		return false
	}
	if e.inflight != 0 {
		return e.inflight <= e.invalidated
	}
	switch {
	case e.state.Status == StatusIdle, e.state.Stale:
		return true
	case e.state.Status == StatusError && e.state.Data == nil && !e.state.Empty:
		return true
	}
	return false
}

func (e *entry) watcherList() []func(Entry) {
	if len(e.watchers) == 0 {
		return nil
	}
	out := make([]func(Entry), 0, len(e.watchers))
	for _, fn := range e.watchers {
		out = append(out, fn)
	}
	return out
}

func notify(watchers []func(Entry), snap Entry) {
	for _, fn := range watchers {
		fn(snap)
	}
}

func flightKey(key Key, gen uint64) string {
	return fmt.Sprintf("%s#%d", key.ID(), gen)
}
