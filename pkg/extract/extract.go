// Package extract turns feed entry titles into (project, version) pairs
// using the regex rules resolved by the configuration.
package extract

import (
	"strings"

	"github.com/relwatch/relwatch/pkg/config"
	"github.com/relwatch/relwatch/pkg/feed"
)

// Candidate is one extracted project/version pair.
type Candidate struct {
	Project string
	Version string
}

// ByProject returns the latest version found for a project on a byproject
// site. Entries are newest first, so the first matching title wins. Without
// a configured regex the whole title is taken as the version, which is how
// plain github release feeds are tracked. A miss across the whole window is
// normal steady state, not an error.
func ByProject(p config.Project, entries []feed.Entry) (string, bool) {
	for _, e := range entries {
		title := strings.TrimSpace(e.Title)
		if p.Regex == nil {
			if title == "" {
				continue
			}
			return title, true
		}
		if m := p.Regex.FindStringSubmatch(title); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// List extracts candidates for every configured project from a shared feed
// window. Titles are split on the site's multiproject delimiter first, so a
// single announcement can name several projects. Callers pass the window
// oldest first so later candidates supersede earlier ones in the cache.
func List(site config.Site, entries []feed.Entry) []Candidate {
	var out []Candidate
	for _, e := range entries {
		for _, title := range splitTitle(site, e.Title) {
			title = strings.TrimSpace(title)
			if title == "" {
				continue
			}
			for _, p := range site.Projects {
				if version, ok := matchListTitle(p, title); ok {
					out = append(out, Candidate{Project: p.Name, Version: version})
				}
			}
		}
	}
	return out
}

func splitTitle(site config.Site, title string) []string {
	if site.Multiproject == nil {
		return []string{title}
	}
	return site.Multiproject.Split(title, -1)
}

// matchListTitle applies one project's effective rule to one title piece.
// Two capture groups extract name and version from the title; one group
// extracts the version from titles that mention the project name anywhere
// (best-effort containment, feed wording varies too much for exact matching).
// Without a regex, or when a two-group regex misses, the title is cut on the
// first space.
func matchListTitle(p config.Project, title string) (string, bool) {
	if p.Regex == nil {
		return cutVersion(p, title)
	}

	if p.Regex.NumSubexp() == 1 {
		if !containsFold(title, p.Name) {
			return "", false
		}
		m := p.Regex.FindStringSubmatch(title)
		if m == nil {
			return "", false
		}
		return m[1], true
	}

	m := p.Regex.FindStringSubmatch(title)
	if m == nil {
		return cutVersion(p, title)
	}
	if !strings.EqualFold(strings.TrimSpace(m[1]), p.Name) {
		return "", false
	}
	return m[2], true
}

// cutVersion splits "name version" on the first space and keeps the version
// when the name part is the project. A title without a space yields an empty
// version for a matching bare name.
func cutVersion(p config.Project, title string) (string, bool) {
	name, version, found := strings.Cut(title, " ")
	if !found {
		name, version = title, ""
	}
	if !strings.EqualFold(name, p.Name) {
		return "", false
	}
	return version, true
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
