// Package pkg provides the libraries behind quickmod, the QuickMod dependency
// resolver and download orchestrator.
//
// # Overview
//
// QuickMod descriptors are JSON files published by mod authors. Each one names
// a mod, lists its downloadable versions and references the descriptors of the
// mods it depends on. quickmod turns a handful of requested mods into the full
// set of files to download:
//
//	descriptor URLs / uids
//	         ↓
//	    [resolve] (expand references through the store until nothing is pending)
//	         ↓
//	    [install] (pick a version per mod, download each to a terminal state)
//	         ↓
//	    <downloads>/<uid>/<file>
//
// # Quick Start
//
//	client := fetch.New(fetch.Options{})
//	s, _ := store.New(dir, client, store.Options{})
//	defer s.Close()
//
//	res, _ := resolve.New(s, nil).Resolve(ctx, []resolve.Seed{
//	    {Locator: "https://quickmods.example.com/jei.json"},
//	}, resolve.Options{})
//
//	report, _ := install.New(resolve.New(s, nil), install.Options{
//	    Dir:        downloads,
//	    Selector:   install.LatestSelector{GameVersion: "1.7.10"},
//	    Downloader: client,
//	}).Run(ctx, res.Mods)
//
// # Main Packages
//
// [quickmod] - Descriptor model, JSON codec, schema validation and metadata
// of local mod jars.
//
// [store] - Registry of descriptors keyed by uid, persisted one file per uid.
// Fetches are asynchronous; results are announced on [eventbus] buses.
//
// [resolve] - Frontier-expanding dependency resolver with monotonic progress.
//
// [install] - Per-version download state machine, version selection and the
// landing page navigator for web downloads.
//
// [depgraph] - Dependency graph of a resolution: install order, cycles and
// DOT/SVG export.
//
// [manifest] - Modpack manifests (TOML or YAML) listing the mods to resolve.
//
// ## Infrastructure
//
// [fetch] - HTTP client with retries, a concurrency limit and a response
// cache, used for descriptors and payloads alike.
//
// [cache] - Response cache backends: file, Redis, MongoDB and a null cache.
//
// [httputil] - Retry with exponential backoff and the shared HTTP client.
//
// [observability] - Hook registry with no-op defaults and a Prometheus
// implementation.
//
// [errors] - Coded errors shared by every package.
//
// [buildinfo] - Version information injected at build time.
//
// [quickmod]: https://pkg.go.dev/github.com/matzehuels/quickmod/pkg/quickmod
// [store]: https://pkg.go.dev/github.com/matzehuels/quickmod/pkg/store
// [eventbus]: https://pkg.go.dev/github.com/matzehuels/quickmod/pkg/eventbus
// [resolve]: https://pkg.go.dev/github.com/matzehuels/quickmod/pkg/resolve
// [install]: https://pkg.go.dev/github.com/matzehuels/quickmod/pkg/install
// [depgraph]: https://pkg.go.dev/github.com/matzehuels/quickmod/pkg/depgraph
// [manifest]: https://pkg.go.dev/github.com/matzehuels/quickmod/pkg/manifest
// [fetch]: https://pkg.go.dev/github.com/matzehuels/quickmod/pkg/fetch
// [cache]: https://pkg.go.dev/github.com/matzehuels/quickmod/pkg/cache
// [httputil]: https://pkg.go.dev/github.com/matzehuels/quickmod/pkg/httputil
// [observability]: https://pkg.go.dev/github.com/matzehuels/quickmod/pkg/observability
// [errors]: https://pkg.go.dev/github.com/matzehuels/quickmod/pkg/errors
// [buildinfo]: https://pkg.go.dev/github.com/matzehuels/quickmod/pkg/buildinfo
package pkg
