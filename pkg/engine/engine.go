// Package engine reconciles configured sites against the version cache:
// fetch each feed, extract version candidates, diff them with the cached
// state and collect the changes for reporting.
package engine

import (
	"context"

	"github.com/go-pkgz/lgr"
	"golang.org/x/sync/errgroup"

	"github.com/relwatch/relwatch/pkg/config"
	"github.com/relwatch/relwatch/pkg/extract"
	"github.com/relwatch/relwatch/pkg/feed"
)

// Fetcher retrieves entries for a feed URL
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]feed.Entry, error)
}

// Store is the cache surface the engine needs. Implementations must be safe
// for concurrent use, the engine checks independent sites in parallel.
type Store interface {
	LastVersion(site, project string) (string, bool)
	SetVersion(site, project, version string)
	LastSeen(feedURL string) (string, bool)
	SetLastSeen(feedURL, identity string)
}

// ChangeRecord reports one project whose version differs from the cache.
// Old is empty on the first sighting of a project.
type ChangeRecord struct {
	Site    string
	Project string
	Old     string
	New     string
}

// SiteError is a recoverable per-feed failure, the rest of the run is
// unaffected by it.
type SiteError struct {
	Site string
	URL  string
	Err  error
}

// Result aggregates a whole run, changes in site-then-project encounter
// order regardless of how many sites were checked in parallel.
type Result struct {
	Changes []ChangeRecord
	Errors  []SiteError
}

// Engine runs one reconciliation pass over all configured sites.
type Engine struct {
	fetcher    Fetcher
	store      Store
	maxWorkers int
}

type siteResult struct {
	changes []ChangeRecord
	errors  []SiteError
}

// New creates an engine checking up to maxWorkers sites concurrently.
func New(fetcher Fetcher, store Store, maxWorkers int) *Engine {
	if maxWorkers <= 0 {
		maxWorkers = 5
	}
	return &Engine{fetcher: fetcher, store: store, maxWorkers: maxWorkers}
}

// Run checks every site once and returns the aggregated result. Feed
// failures never abort the run, they come back in Result.Errors.
func (e *Engine) Run(ctx context.Context, sites []config.Site) Result {
	results := make([]siteResult, len(sites))

	var g errgroup.Group
	g.SetLimit(e.maxWorkers)
	for i, site := range sites {
		i, site := i, site // per-iteration copies for pre-1.22 loop semantics
		g.Go(func() error {
			lgr.Printf("[DEBUG] checking site %s (%s)", site.Name, site.Type)
			results[i] = e.checkSite(ctx, site)
			return nil
		})
	}
	g.Wait() //nolint:errcheck // workers never return errors

	var res Result
	for _, sr := range results {
		res.Changes = append(res.Changes, sr.changes...)
		res.Errors = append(res.Errors, sr.errors...)
	}

	lgr.Printf("[INFO] checked %d sites, %d changes, %d errors", len(sites), len(res.Changes), len(res.Errors))
	return res
}

func (e *Engine) checkSite(ctx context.Context, site config.Site) siteResult {
	if site.Type == config.SiteByProject {
		return e.checkByProject(ctx, site)
	}
	return e.checkList(ctx, site)
}

// checkByProject polls one feed per project, the URL template resolved with
// the project name.
func (e *Engine) checkByProject(ctx context.Context, site config.Site) siteResult {
	var res siteResult
	for _, p := range site.Projects {
		if ctx.Err() != nil {
			return res
		}

		url := site.FeedURL(p.Name)
		entries, err := e.fetcher.Fetch(ctx, url)
		if err != nil {
			lgr.Printf("[WARN] site %s, project %s: %v", site.Name, p.Name, err)
			res.errors = append(res.errors, SiteError{Site: site.Name, URL: url, Err: err})
			continue
		}
		if len(entries) == 0 {
			lgr.Printf("[DEBUG] site %s, project %s: feed is empty", site.Name, p.Name)
			continue
		}

		window := e.window(p.Mode, url, entries)
		if version, ok := extract.ByProject(p, window); ok {
			res.changes = append(res.changes, e.diff(site.Name, p.Name, version)...)
		}
		e.store.SetLastSeen(url, entries[0].Identity())
	}
	return res
}

// checkList polls the site's single shared feed and matches every project
// against it. The window is computed per project since entry modes can be
// overridden project by project, and is processed oldest first so the cache
// converges on the newest version while intermediate releases still get
// reported.
func (e *Engine) checkList(ctx context.Context, site config.Site) siteResult {
	var res siteResult

	entries, err := e.fetcher.Fetch(ctx, site.URL)
	if err != nil {
		lgr.Printf("[WARN] site %s: %v", site.Name, err)
		res.errors = append(res.errors, SiteError{Site: site.Name, URL: site.URL, Err: err})
		return res
	}
	if len(entries) == 0 {
		lgr.Printf("[DEBUG] site %s: feed is empty", site.Name)
		return res
	}

	for _, p := range site.Projects {
		window := reversed(e.window(p.Mode, site.URL, entries))

		single := site
		single.Projects = []config.Project{p}
		for _, c := range extract.List(single, window) {
			res.changes = append(res.changes, e.diff(site.Name, c.Project, c.Version)...)
		}
	}

	e.store.SetLastSeen(site.URL, entries[0].Identity())
	return res
}

// window returns the eligible entries for a poll: just the newest one for
// EntryLatest, everything newer than the last seen identity for
// EntryLastChecked. An unknown identity, including a cold start, means the
// whole feed is eligible.
func (e *Engine) window(mode config.EntryMode, feedURL string, entries []feed.Entry) []feed.Entry {
	if mode != config.EntryLastChecked {
		return entries[:1]
	}

	lastSeen, ok := e.store.LastSeen(feedURL)
	if !ok {
		return entries
	}
	for i, entry := range entries {
		if entry.Identity() == lastSeen {
			return entries[:i]
		}
	}
	return entries
}

// diff compares an extracted version with the cache and updates it on
// change. Equal versions produce nothing, SetVersion stays untouched.
func (e *Engine) diff(site, project, version string) []ChangeRecord {
	old, ok := e.store.LastVersion(site, project)
	if ok && old == version {
		return nil
	}
	e.store.SetVersion(site, project, version)
	lgr.Printf("[DEBUG] site %s, project %s: %q -> %q", site, project, old, version)
	return []ChangeRecord{{Site: site, Project: project, Old: old, New: version}}
}

func reversed(entries []feed.Entry) []feed.Entry {
	out := make([]feed.Entry, len(entries))
	for i, entry := range entries {
		out[len(entries)-1-i] = entry
	}
	return out
}
