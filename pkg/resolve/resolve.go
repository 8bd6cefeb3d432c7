// Package resolve discovers the transitive dependency set of a group of mods.
//
// A resolution starts from seeds and expands a frontier of descriptor
// locators: every reference of a resolved descriptor is either already known
// to the store (walked without fetching) or dispatched to the store once. The
// run ends when no dispatched locator is pending. Fetches complete in any
// order; all bookkeeping happens on the goroutine that called
// [Resolver.Resolve].
//
// Failures of individual locators are reported and resolution continues,
// unless [Options.FailFast] is set. A closed store always aborts the run.
package resolve

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/quickmod/pkg/depgraph"
	qerrors "github.com/matzehuels/quickmod/pkg/errors"
	"github.com/matzehuels/quickmod/pkg/eventbus"
	"github.com/matzehuels/quickmod/pkg/observability"
	"github.com/matzehuels/quickmod/pkg/quickmod"
	"github.com/matzehuels/quickmod/pkg/store"
)

// Store is the descriptor registry a resolution runs against.
// [*store.Store] implements it.
type Store interface {
	Lookup(uid quickmod.UID) (*quickmod.Mod, bool)
	Resolved(uid quickmod.UID) bool
	RegisterAndFetch(locator string)
	Added() *eventbus.Bus[store.Event]
	Errors() *eventbus.Bus[*store.Error]
}

// Seed is a starting point of a resolution. At least one of UID, Locator and
// Mod must be set; Locator is used when UID is unknown or only a stub.
//
// Mod is a descriptor the caller already holds. When it is not a stub it is
// resolved as is, without consulting the store or fetching it.
type Seed struct {
	UID     quickmod.UID
	Locator string
	Mod     *quickmod.Mod
}

// Options configures one resolution.
type Options struct {
	// FailFast aborts the resolution on the first failed locator.
	FailFast bool

	// OnProgress receives the completion percentage in [0, 100]. Values never
	// decrease within a run.
	OnProgress func(percent int)

	// OnError receives every failure relevant to this run.
	OnError func(err error)
}

// Failure is a locator (or seed) that could not be resolved.
type Failure struct {
	Locator string
	UID     quickmod.UID // expected uid, if known
	Err     error
}

func (f Failure) Error() string {
	if f.Locator == "" {
		return string(f.UID) + ": " + f.Err.Error()
	}
	return f.Locator + ": " + f.Err.Error()
}

func (f Failure) Unwrap() error { return f.Err }

// Result is the outcome of a finished resolution.
type Result struct {
	// Mods holds every resolved descriptor in discovery order.
	Mods []*quickmod.Mod

	// Graph links Mods by their references.
	Graph *depgraph.Graph

	// Fetches is the number of distinct locators dispatched to the store.
	Fetches int

	// Failures lists the locators that failed, in the order they failed.
	Failures []Failure
}

// Err joins the failures into one error, or returns nil when there were none.
func (r *Result) Err() error {
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// Resolver runs resolutions against one store.
type Resolver struct {
	store  Store
	logger *log.Logger
}

// New creates a Resolver. A nil logger uses log.Default().
func New(s Store, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.Default()
	}
	return &Resolver{store: s, logger: logger}
}

// Resolve expands seeds into their transitive dependency set and blocks
// until no locator is pending, the context is canceled, or a fatal error
// occurs.
//
// It returns an error only when the whole resolution failed: a canceled
// context (CANCELED), a closed store (STORE_UNUSABLE) or, with FailFast, the
// first failure. Otherwise per-locator failures are listed in
// [Result.Failures].
func (r *Resolver) Resolve(ctx context.Context, seeds []Seed, opts Options) (*Result, error) {
	start := time.Now()
	hooks := observability.Resolve()
	hooks.OnResolveStart(ctx, len(seeds))

	c := newCrawler(ctx, r.store, opts, r.logger)
	res, err := c.run(seeds)

	resolved, failed := 0, 0
	if res != nil {
		resolved, failed = len(res.Mods), len(res.Failures)
	}
	hooks.OnResolveComplete(ctx, resolved, failed, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("resolution finished", "mods", resolved, "fetches", res.Fetches, "failures", failed, "elapsed", time.Since(start).Round(time.Millisecond))
	return res, nil
}

func canceled(err error) error {
	return qerrors.Wrap(qerrors.ErrCodeCanceled, err, "resolution canceled")
}
