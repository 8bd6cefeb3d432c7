package resolve

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/quickmod/pkg/depgraph"
	qerrors "github.com/matzehuels/quickmod/pkg/errors"
	"github.com/matzehuels/quickmod/pkg/quickmod"
	"github.com/matzehuels/quickmod/pkg/store"
)

// event is a store notification forwarded into a run's loop.
type event struct {
	added *store.Event
	err   *store.Error
}

// crawler holds the state of one resolution. Everything but the queue is
// owned by the goroutine executing run.
type crawler struct {
	ctx    context.Context
	store  Store
	opts   Options
	logger *log.Logger

	requested map[string]bool
	pending   map[string]quickmod.UID
	visited   map[quickmod.UID]bool
	mods      []*quickmod.Mod
	failures  []Failure
	progress  int

	// queue is filled by bus handlers and drained by the loop. It is
	// unbounded; publishers never wait on a slow run.
	qmu      sync.Mutex
	queue    []event
	finished bool
	notify   chan struct{}
}

func newCrawler(ctx context.Context, s Store, opts Options, logger *log.Logger) *crawler {
	return &crawler{
		ctx:       ctx,
		store:     s,
		opts:      opts,
		logger:    logger,
		requested: make(map[string]bool),
		pending:   make(map[string]quickmod.UID),
		visited:   make(map[quickmod.UID]bool),
		progress:  -1,
		notify:    make(chan struct{}, 1),
	}
}

func (c *crawler) run(seeds []Seed) (*Result, error) {
	// Subscribe before anything is dispatched so no outcome is missed.
	unsubAdded := c.store.Added().Subscribe(func(e store.Event) {
		c.forward(event{added: &e})
	})
	unsubErrors := c.store.Errors().Subscribe(func(e *store.Error) {
		c.forward(event{err: e})
	})
	defer func() {
		unsubAdded()
		unsubErrors()
		c.qmu.Lock()
		c.finished = true
		c.queue = nil
		c.qmu.Unlock()
	}()

	if err := c.ctx.Err(); err != nil {
		return nil, canceled(err)
	}

	for _, s := range seeds {
		if err := c.seed(s); err != nil {
			return nil, err
		}
	}
	c.reportProgress()

	for len(c.pending) > 0 {
		select {
		case <-c.notify:
			for _, ev := range c.drain() {
				if err := c.handle(ev); err != nil {
					return nil, err
				}
			}
		case <-c.ctx.Done():
			return nil, canceled(c.ctx.Err())
		}
	}

	c.reportProgress()
	return &Result{
		Mods:     c.mods,
		Graph:    depgraph.FromMods(c.mods),
		Fetches:  len(c.requested),
		Failures: c.failures,
	}, nil
}

// forward hands a store event to the loop. It runs on the publisher's
// goroutine, never blocks and drops events once the run has finished.
func (c *crawler) forward(ev event) {
	c.qmu.Lock()
	if c.finished {
		c.qmu.Unlock()
		return
	}
	c.queue = append(c.queue, ev)
	c.qmu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// drain takes every queued event in arrival order.
func (c *crawler) drain() []event {
	c.qmu.Lock()
	defer c.qmu.Unlock()
	q := c.queue
	c.queue = nil
	return q
}

func (c *crawler) seed(s Seed) error {
	if s.Mod != nil {
		if !s.Mod.IsStub() {
			return c.add(s.Mod)
		}
		if s.UID == "" {
			s.UID = s.Mod.UID
		}
		if s.Locator == "" {
			s.Locator = s.Mod.UpdateURL
		}
	}
	if s.UID != "" && c.store.Resolved(s.UID) {
		m, _ := c.store.Lookup(s.UID)
		return c.add(m)
	}

	locator := s.Locator
	if locator == "" && s.UID != "" {
		if stub, ok := c.store.Lookup(s.UID); ok {
			locator = stub.UpdateURL
		}
	}
	if locator == "" {
		return c.fail(Failure{
			UID: s.UID,
			Err: qerrors.New(qerrors.ErrCodeNotFound, "mod %q is unknown and has no locator", s.UID),
		})
	}
	c.dispatch(locator, s.UID)
	return nil
}

// add records m as resolved and walks its references. A uid is walked once.
func (c *crawler) add(m *quickmod.Mod) error {
	if c.visited[m.UID] {
		return nil
	}
	c.visited[m.UID] = true
	c.mods = append(c.mods, m)

	for _, uid := range m.ReferencedUIDs() {
		if c.visited[uid] {
			continue
		}
		if c.store.Resolved(uid) {
			dep, _ := c.store.Lookup(uid)
			if err := c.add(dep); err != nil {
				return err
			}
			continue
		}
		locator := m.References[uid]
		if locator == "" {
			if stub, ok := c.store.Lookup(uid); ok {
				locator = stub.UpdateURL
			}
		}
		if locator == "" {
			err := c.fail(Failure{
				UID: uid,
				Err: qerrors.New(qerrors.ErrCodeNotFound, "%s references %s without a locator", m.UID, uid),
			})
			if err != nil {
				return err
			}
			continue
		}
		c.dispatch(locator, uid)
	}
	return nil
}

// dispatch requests locator from the store unless this run already did.
func (c *crawler) dispatch(locator string, uid quickmod.UID) {
	if c.requested[locator] {
		return
	}
	c.requested[locator] = true
	c.pending[locator] = uid
	c.logger.Debug("fetching descriptor", "url", locator, "uid", uid)
	c.store.RegisterAndFetch(locator)
}

func (c *crawler) handle(ev event) error {
	switch {
	case ev.added != nil:
		if err := c.onAdded(*ev.added); err != nil {
			return err
		}
	case ev.err != nil:
		if err := c.onError(ev.err); err != nil {
			return err
		}
	}
	c.reportProgress()
	return nil
}

func (c *crawler) onAdded(e store.Event) error {
	locator := e.Locator
	if _, ok := c.pending[locator]; !ok {
		if e.Mod == nil || e.Mod.UpdateURL == "" {
			return nil
		}
		if _, ok := c.pending[e.Mod.UpdateURL]; !ok {
			return nil
		}
		locator = e.Mod.UpdateURL
	}
	delete(c.pending, locator)

	if e.Mod == nil {
		// Index: the store fetches the listed locators itself.
		for _, loc := range e.Index {
			if !c.requested[loc] {
				c.requested[loc] = true
				c.pending[loc] = ""
			}
		}
		return nil
	}
	return c.add(e.Mod)
}

func (c *crawler) onError(e *store.Error) error {
	if qerrors.IsFatal(e.Err) {
		return e.Err
	}
	uid, ok := c.pending[e.Locator]
	if !ok {
		return nil
	}
	delete(c.pending, e.Locator)
	return c.fail(Failure{Locator: e.Locator, UID: uid, Err: e.Err})
}

// fail records a failure relevant to this run.
func (c *crawler) fail(f Failure) error {
	c.failures = append(c.failures, f)
	c.logger.Warn("descriptor failed", "url", f.Locator, "uid", f.UID, "error", qerrors.UserMessage(f.Err))
	if c.opts.OnError != nil {
		c.opts.OnError(f)
	}
	if c.opts.FailFast {
		return f
	}
	return nil
}

// reportProgress publishes the completion percentage if it increased.
func (c *crawler) reportProgress() {
	p := percent(len(c.requested), len(c.pending))
	if p <= c.progress {
		return
	}
	c.progress = p
	if c.opts.OnProgress != nil {
		c.opts.OnProgress(p)
	}
}

// percent is ceil(100 * (requested - pending) / requested), or 100 when
// nothing was requested.
func percent(requested, pending int) int {
	if requested == 0 {
		return 100
	}
	done := requested - pending
	return (100*done + requested - 1) / requested
}
