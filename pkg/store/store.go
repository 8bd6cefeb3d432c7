// Package store implements the descriptor registry shared by resolutions.
//
// A [Store] maps mod uids to descriptors, persists every descriptor as
// <dir>/<uid>.json and fetches new descriptors on request. Results are
// announced on two buses instead of being returned:
//
//   - [Store.Added] carries an [Event] for every descriptor inserted by a fetch
//   - [Store.Errors] carries an [*Error] for every locator that failed
//
// Subscribers must register before calling [Store.RegisterAndFetch] and must
// not block in their handlers.
package store

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	qerrors "github.com/matzehuels/quickmod/pkg/errors"
	"github.com/matzehuels/quickmod/pkg/eventbus"
	"github.com/matzehuels/quickmod/pkg/fetch"
	"github.com/matzehuels/quickmod/pkg/quickmod"
)

// Event announces a payload fetched from Locator.
//
// For a descriptor, Mod is the inserted descriptor. For an index payload Mod
// is nil and Index lists the locators it registers; the event is published
// before those locators are fetched.
type Event struct {
	Mod     *quickmod.Mod
	Locator string
	Index   []string
}

// Error reports a failed fetch of Locator.
type Error struct {
	Locator string
	Err     error
}

func (e *Error) Error() string { return e.Locator + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// Options configures a [Store].
type Options struct {
	Logger *log.Logger
}

// Store is a concurrency-safe descriptor registry.
type Store struct {
	dir     string
	fetcher fetch.Fetcher
	logger  *log.Logger

	mu     sync.RWMutex
	mods   map[quickmod.UID]*quickmod.Mod
	closed bool

	group  singleflight.Group
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	added  *eventbus.Bus[Event]
	errors *eventbus.Bus[*Error]
}

// New creates a store persisting to dir and fetching through f.
// The directory is created if needed; existing files are not read until
// [Store.Load] is called.
func New(dir string, f fetch.Fetcher, opts Options) (*Store, error) {
	if err := mkdir(dir); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		dir:     dir,
		fetcher: f,
		logger:  logger,
		mods:    make(map[quickmod.UID]*quickmod.Mod),
		ctx:     ctx,
		cancel:  cancel,
		added:   eventbus.New[Event](),
		errors:  eventbus.New[*Error](),
	}, nil
}

// Dir returns the directory descriptors are persisted in.
func (s *Store) Dir() string { return s.dir }

// Added returns the bus announcing inserted descriptors.
func (s *Store) Added() *eventbus.Bus[Event] { return s.added }

// Errors returns the bus announcing failed locators.
func (s *Store) Errors() *eventbus.Bus[*Error] { return s.errors }

// Lookup returns the descriptor for uid, which may be a stub.
func (s *Store) Lookup(uid quickmod.UID) (*quickmod.Mod, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.mods[uid]
	return m, ok
}

// Resolved reports whether a non-stub descriptor for uid is present.
func (s *Store) Resolved(uid quickmod.UID) bool {
	m, ok := s.Lookup(uid)
	return ok && !m.IsStub()
}

// Insert adds m to the in-memory registry and reports whether the registry
// changed. A stub never replaces a non-stub.
func (s *Store) Insert(m *quickmod.Mod) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(m)
}

func (s *Store) insertLocked(m *quickmod.Mod) bool {
	cur, ok := s.mods[m.UID]
	if ok {
		if m.IsStub() && !cur.IsStub() {
			return false
		}
		if cur.IsStub() == m.IsStub() && cur.Hash != "" && cur.Hash == m.Hash {
			return false
		}
	}
	s.mods[m.UID] = m
	return true
}

// All returns every descriptor ordered by uid.
func (s *Store) All() []*quickmod.Mod {
	s.mu.RLock()
	all := make([]*quickmod.Mod, 0, len(s.mods))
	for _, m := range s.mods {
		all = append(all, m)
	}
	s.mu.RUnlock()
	slices.SortFunc(all, func(a, b *quickmod.Mod) int {
		return strings.Compare(string(a.UID), string(b.UID))
	})
	return all
}

// RegisterAndFetch fetches the descriptor at locator in the background.
//
// Every call publishes exactly one outcome on [Store.Added] or [Store.Errors],
// after the call returns. Concurrent calls for a locator that is still being
// fetched share that fetch but each publishes its own event. A descriptor
// that could not be persisted is additionally reported as STORE_WRITE_FAILED.
// After [Store.Close] every call publishes a STORE_UNUSABLE error.
func (s *Store) RegisterAndFetch(locator string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		go s.publishError(locator, errUnusable(locator))
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		_ = s.fetch(s.ctx, locator)
	}()
}

// Wait blocks until every background fetch has finished.
func (s *Store) Wait() {
	s.wg.Wait()
}

// Close marks the store unusable, cancels background fetches and waits for
// them to finish.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	return nil
}

func (s *Store) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func errUnusable(locator string) error {
	return qerrors.New(qerrors.ErrCodeStoreUnusable, "descriptor store is closed (fetching %s)", locator)
}
