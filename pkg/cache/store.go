// Package cache persists the last known version per tracked project and the
// last processed entry per feed between runs. State lives in plain text
// files under one directory: a <site>.cache file per site with one
// "project version" line per project, and a single feeds.feed file with one
// "url identity" line per fetched feed.
package cache

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-pkgz/lgr"
)

const feedsFile = "feeds.feed"

// Record is one cached project version, used for cache listing.
type Record struct {
	Site    string
	Project string
	Version string
}

// Store owns the persisted cache state for one run. It is safe for
// concurrent use; all mutations go through its mutex. Construct one per
// run and call Flush at the end, nothing is written before that.
type Store struct {
	dir string

	mu         sync.Mutex
	versions   map[string]map[string]string // site -> project -> version
	dirtySites map[string]struct{}
	feeds      map[string]string // feed url -> last seen entry identity
	feedsDirty bool
}

// NewStore loads cached state from dir, creating the directory when needed.
// Unreadable or garbled cache files are treated as empty so a damaged cache
// only costs a cold start, never the run.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create cache dir %s: %w", dir, err)
	}

	s := &Store{
		dir:        dir,
		versions:   map[string]map[string]string{},
		dirtySites: map[string]struct{}{},
		feeds:      map[string]string{},
	}
	s.load()
	return s, nil
}

// load reads all cache files, tolerating any IO problem
func (s *Store) load() {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*.cache"))
	if err != nil {
		lgr.Printf("[WARN] can't scan cache dir %s: %v", s.dir, err)
		return
	}

	for _, path := range matches {
		site := strings.TrimSuffix(filepath.Base(path), ".cache")
		entries, err := readKeyValueFile(path)
		if err != nil {
			lgr.Printf("[WARN] ignoring unreadable cache %s: %v", path, err)
			continue
		}
		s.versions[site] = entries
	}

	feeds, err := readKeyValueFile(filepath.Join(s.dir, feedsFile))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			lgr.Printf("[WARN] ignoring unreadable feed cache: %v", err)
		}
		return
	}
	s.feeds = feeds
}

// LastVersion returns the cached version for a project, if any.
func (s *Store) LastVersion(site, project string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	version, ok := s.versions[site][project]
	return version, ok
}

// SetVersion records a project version. Re-setting the same version is a
// no-op and does not mark the site cache dirty.
func (s *Store) SetVersion(site, project, version string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.versions[site][project]; ok && current == version {
		return
	}
	if s.versions[site] == nil {
		s.versions[site] = map[string]string{}
	}
	s.versions[site][project] = version
	s.dirtySites[site] = struct{}{}
}

// LastSeen returns the identity of the newest entry processed for a feed.
func (s *Store) LastSeen(feedURL string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.feeds[feedURL]
	return identity, ok
}

// SetLastSeen records the newest processed entry identity for a feed.
func (s *Store) SetLastSeen(feedURL, identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.feeds[feedURL] == identity {
		return
	}
	s.feeds[feedURL] = identity
	s.feedsDirty = true
}

// ListAll returns every cached project version, sites alphabetically and
// projects by lowercased name within a site.
func (s *Store) ListAll() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	sites := make([]string, 0, len(s.versions))
	for site := range s.versions {
		sites = append(sites, site)
	}
	sort.Strings(sites)

	var out []Record
	for _, site := range sites {
		projects := make([]string, 0, len(s.versions[site]))
		for project := range s.versions[site] {
			projects = append(projects, project)
		}
		sort.Slice(projects, func(i, j int) bool {
			return strings.ToLower(projects[i]) < strings.ToLower(projects[j])
		})
		for _, project := range projects {
			out = append(out, Record{Site: site, Project: project, Version: s.versions[site][project]})
		}
	}
	return out
}

// Flush writes every modified cache file. Persistence is best-effort: all
// failures are reported together, and a failed site file does not stop the
// remaining files from being written.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for site := range s.dirtySites {
		path := filepath.Join(s.dir, site+".cache")
		if err := writeKeyValueFile(path, s.versions[site]); err != nil {
			errs = append(errs, fmt.Errorf("write %s: %w", path, err))
			continue
		}
		delete(s.dirtySites, site)
	}

	if s.feedsDirty {
		path := filepath.Join(s.dir, feedsFile)
		if err := writeKeyValueFile(path, s.feeds); err != nil {
			errs = append(errs, fmt.Errorf("write %s: %w", path, err))
		} else {
			s.feedsDirty = false
		}
	}

	return errors.Join(errs...)
}

// readKeyValueFile parses "key value" lines, value being everything after
// the first space. A key without a value is kept with an empty value,
// blank lines are skipped.
func readKeyValueFile(path string) (map[string]string, error) {
	f, err := os.Open(path) //nolint:gosec // path is derived from the cache dir
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck // read-only file

	out := map[string]string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		key, value, _ := strings.Cut(line, " ")
		out[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// writeKeyValueFile rewrites the whole file with sorted keys so repeated
// runs produce identical files for identical state.
func writeKeyValueFile(path string, entries map[string]string) error {
	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, key := range keys {
		b.WriteString(key)
		b.WriteString(" ")
		b.WriteString(entries[key])
		b.WriteString("\n")
	}

	return os.WriteFile(path, []byte(b.String()), 0o600)
}
