package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// SiteType tells how a configured source maps feeds to projects.
type SiteType string

// recognized site types
const (
	SiteList      SiteType = "list"      // one feed announces releases for many projects
	SiteByProject SiteType = "byproject" // one feed per project, reached via a URL template
)

// EntryMode tells how many feed entries are eligible candidates per poll.
type EntryMode string

// recognized entry modes
const (
	EntryLatest      EntryMode = "latest"       // only the newest entry of the feed
	EntryLastChecked EntryMode = "last checked" // every entry newer than the last processed one
)

// Placeholder marks the project-name substitution point in byproject URL templates.
const Placeholder = "{}"

// Project is a tracked project with its site overrides already resolved.
// Regex is nil when neither the project nor the site configured one.
type Project struct {
	Name  string
	Regex *regexp.Regexp
	Mode  EntryMode
}

// Site is one validated configured source.
type Site struct {
	Name         string
	URL          string
	Type         SiteType
	Multiproject *regexp.Regexp // optional delimiter splitting multi-release titles
	Mode         EntryMode
	Projects     []Project
}

// FeedURL resolves the feed URL for a project. For list sites the site URL
// is shared and the project name is ignored.
func (s Site) FeedURL(project string) string {
	if s.Type == SiteByProject {
		return strings.Replace(s.URL, Placeholder, project, 1)
	}
	return s.URL
}

// rawSite mirrors the YAML shape of a site before validation
type rawSite struct {
	URL          string       `yaml:"url"`
	Type         string       `yaml:"type"`
	Regex        string       `yaml:"regex"`
	Entry        string       `yaml:"entry"`
	Multiproject string       `yaml:"multiproject"`
	Projects     []rawProject `yaml:"projects"`
}

// rawProject accepts either a bare project name or a mapping with overrides
type rawProject struct {
	Name  string `yaml:"name"`
	Regex string `yaml:"regex"`
	Entry string `yaml:"entry"`
}

// UnmarshalYAML lets a project be written as a plain string in the config
func (p *rawProject) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		p.Name = n.Value
		return nil
	}
	type plain rawProject
	var v plain
	if err := n.Decode(&v); err != nil {
		return err
	}
	*p = rawProject(v)
	return nil
}

// Load reads the YAML configuration file and returns validated sites in
// document order. Every project comes back with its effective regex and
// entry mode already resolved, so callers never consult site defaults.
func Load(path string) ([]Site, error) {
	data, err := os.ReadFile(path) //nolint:gosec // file path comes from CLI flag
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, nil // empty file, nothing to check
	}

	top := root.Content[0]
	if top.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parse config: top level must be a mapping of site names")
	}

	sites := make([]Site, 0, len(top.Content)/2)
	for i := 0; i+1 < len(top.Content); i += 2 {
		name := top.Content[i].Value
		var raw rawSite
		if err := top.Content[i+1].Decode(&raw); err != nil {
			return nil, fmt.Errorf("site %q: %w", name, err)
		}
		site, err := buildSite(name, raw)
		if err != nil {
			return nil, err
		}
		sites = append(sites, site)
	}

	return sites, nil
}

// buildSite validates one raw site and materializes per-project overrides
func buildSite(name string, raw rawSite) (Site, error) {
	siteType := SiteType(raw.Type)
	switch siteType {
	case SiteList, SiteByProject:
	default:
		return Site{}, fmt.Errorf("site %q: unknown type %q, want %q or %q", name, raw.Type, SiteList, SiteByProject)
	}

	if raw.URL == "" {
		return Site{}, fmt.Errorf("site %q: url is required", name)
	}
	if siteType == SiteByProject && strings.Count(raw.URL, Placeholder) != 1 {
		return Site{}, fmt.Errorf("site %q: byproject url must contain exactly one %q placeholder", name, Placeholder)
	}

	siteMode, err := parseEntryMode(raw.Entry)
	if err != nil {
		return Site{}, fmt.Errorf("site %q: %w", name, err)
	}

	var siteRegex *regexp.Regexp
	if raw.Regex != "" {
		if siteRegex, err = compileTitleRegex(raw.Regex); err != nil {
			return Site{}, fmt.Errorf("site %q: bad regex: %w", name, err)
		}
	}

	var multiproject *regexp.Regexp
	if raw.Multiproject != "" {
		if multiproject, err = regexp.Compile(raw.Multiproject); err != nil {
			return Site{}, fmt.Errorf("site %q: bad multiproject pattern: %w", name, err)
		}
	}

	seen := make(map[string]struct{}, len(raw.Projects))
	projects := make([]Project, 0, len(raw.Projects))
	for _, rp := range raw.Projects {
		if rp.Name == "" {
			return Site{}, fmt.Errorf("site %q: project without a name", name)
		}
		if _, ok := seen[rp.Name]; ok {
			return Site{}, fmt.Errorf("site %q: duplicate project %q", name, rp.Name)
		}
		seen[rp.Name] = struct{}{}

		project := Project{Name: rp.Name, Regex: siteRegex, Mode: siteMode}
		if rp.Regex != "" {
			if project.Regex, err = compileTitleRegex(rp.Regex); err != nil {
				return Site{}, fmt.Errorf("site %q, project %q: bad regex: %w", name, rp.Name, err)
			}
		}
		if rp.Entry != "" {
			if project.Mode, err = parseEntryMode(rp.Entry); err != nil {
				return Site{}, fmt.Errorf("site %q, project %q: %w", name, rp.Name, err)
			}
		}
		if project.Regex != nil {
			groups := project.Regex.NumSubexp()
			if groups < 1 || groups > 2 {
				return Site{}, fmt.Errorf("site %q, project %q: regex must have one or two capturing groups, has %d", name, rp.Name, groups)
			}
		}
		projects = append(projects, project)
	}

	return Site{
		Name:         name,
		URL:          raw.URL,
		Type:         siteType,
		Multiproject: multiproject,
		Mode:         siteMode,
		Projects:     projects,
	}, nil
}

func parseEntryMode(s string) (EntryMode, error) {
	switch EntryMode(s) {
	case "":
		return EntryLatest, nil
	case EntryLatest:
		return EntryLatest, nil
	case EntryLastChecked:
		return EntryLastChecked, nil
	}
	return "", fmt.Errorf("unknown entry mode %q, want %q or %q", s, EntryLatest, EntryLastChecked)
}

// compileTitleRegex anchors the pattern at the start of the title, matching
// the way configured patterns have always been applied to entry titles.
func compileTitleRegex(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile("^(?:" + pattern + ")")
}
