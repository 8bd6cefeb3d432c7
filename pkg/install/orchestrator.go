// Package install drives the download of a resolved mod set.
//
// An [Orchestrator] first resolves the dependencies of the requested mods,
// picks one version per descriptor and then tracks every version through a
// small state machine until it is terminal:
//
//	NotStarted -> AwaitingDependencyResolution -> Queued -> Downloading -> Completed | Failed
//
// Web versions pass through AwaitingUserInteraction before Downloading. The
// run is done when every tracked version is terminal; this is recomputed after
// every event, and [Options.OnDone] fires exactly once when it first holds.
//
// Installing the downloaded files into a game instance is up to the caller.
package install

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/quickmod/pkg/fetch"
	"github.com/matzehuels/quickmod/pkg/quickmod"
	"github.com/matzehuels/quickmod/pkg/resolve"
)

// Resolver expands seeds into their dependency set. [*resolve.Resolver]
// implements it.
type Resolver interface {
	Resolve(ctx context.Context, seeds []resolve.Seed, opts resolve.Options) (*resolve.Result, error)
}

// Options configures an [Orchestrator].
type Options struct {
	// Dir is the downloads directory. Payloads are stored as
	// <Dir>/<uid>/<file name from the URL>.
	Dir string

	Selector   Selector         // nil: LatestSelector{}
	Downloader fetch.Downloader // required for direct versions
	Navigator  Navigator        // nil: web versions fail as unsupported

	// FailFast aborts the dependency resolution on its first failure.
	FailFast bool

	Logger *log.Logger

	// OnResolveProgress receives the resolution percentage.
	OnResolveProgress func(percent int)

	// OnResolveError receives failures of the dependency resolution.
	OnResolveError func(err error)

	// OnStatus receives every change of a tracked version.
	OnStatus func(StatusEvent)

	// OnDone is called once when every tracked version is terminal. It is
	// not called for a canceled run.
	OnDone func(*Report)
}

// Orchestrator installs resolved mod sets.
type Orchestrator struct {
	resolver Resolver
	opts     Options
	logger   *log.Logger
}

// New creates an Orchestrator resolving dependencies through r.
func New(r Resolver, opts Options) *Orchestrator {
	if opts.Selector == nil {
		opts.Selector = LatestSelector{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Orchestrator{resolver: r, opts: opts, logger: logger}
}

// Run resolves the dependencies of initial and downloads one version of
// every resolved descriptor. It blocks until every version is terminal or
// ctx is canceled.
//
// Run returns an error only if the dependency resolution fails or the run is
// canceled (CANCELED, with the report of what had happened so far). Failed
// downloads are recorded in the report; see [Report.Err].
func (o *Orchestrator) Run(ctx context.Context, initial []*quickmod.Mod) (*Report, error) {
	r := newRun(ctx, o)
	return r.execute(initial)
}
