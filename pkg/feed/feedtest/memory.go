// Package feedtest provides in-memory feeds, package builders and a fake
// NuGet v2 server for tests.
package feedtest

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/matzehuels/psresget/pkg/feed"
	"github.com/matzehuels/psresget/pkg/version"
)

// Package is one published version held by a [Memory] feed.
type Package struct {
	Candidate feed.Candidate

	// Files is the payload, keyed by slash-separated relative path.
	Files map[string]string
}

// Memory is a thread-safe in-memory [feed.Feed] that records its calls.
type Memory struct {
	name string

	mu        sync.Mutex
	packages  map[string][]Package
	queries   []string
	downloads []string
	failures  map[string]error
}

// NewMemory creates an empty feed whose candidates report repository name.
func NewMemory(name string) *Memory {
	return &Memory{
		name:     name,
		packages: make(map[string][]Package),
		failures: make(map[string]error),
	}
}

// Source returns the repository identity stamped on candidates.
func (m *Memory) Source() feed.Source {
	return feed.Source{Name: m.name, URL: "memory://" + m.name}
}

// Repository returns a registry entry pointing at this feed.
func (m *Memory) Repository(trusted bool) feed.Repository {
	return feed.Repository{Name: m.name, URL: "memory://" + m.name, Trusted: trusted}
}

// Add publishes a package version. Nil files default to [DefaultFiles].
func (m *Memory) Add(c feed.Candidate, files map[string]string) *Memory {
	if files == nil {
		files = DefaultFiles(c)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := strings.ToLower(c.ID)
	m.packages[k] = append(m.packages[k], Package{Candidate: c, Files: files})
	return m
}

// AddModule publishes id at each version with the given dependencies.
// Dependencies are written "Id" or "Id@range".
func (m *Memory) AddModule(id string, versions []string, deps ...string) *Memory {
	for _, v := range versions {
		m.Add(Module(id, v, deps...), nil)
	}
	return m
}

// FailDownload makes Download of id@version return err.
func (m *Memory) FailDownload(id, ver string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[feed.Key(id, version.MustParse(ver))] = err
}

// Queries returns the ids passed to QueryVersions, in call order.
func (m *Memory) Queries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.queries...)
}

// Downloads returns the "id version" strings downloaded, in call order.
func (m *Memory) Downloads() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.downloads...)
}

// Packages returns every published version of id.
func (m *Memory) Packages(id string) []Package {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Package(nil), m.packages[strings.ToLower(id)]...)
}

// QueryVersions implements feed.Feed.
func (m *Memory) QueryVersions(ctx context.Context, id string, prerelease bool) ([]feed.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, id)

	var out []feed.Candidate
	for _, p := range m.packages[strings.ToLower(id)] {
		if p.Candidate.Version.IsPrerelease() && !prerelease {
			continue
		}
		c := p.Candidate
		c.Repository = m.Source()
		out = append(out, c)
	}
	return out, nil
}

// Search implements feed.Searcher with path.Match semantics.
func (m *Memory) Search(ctx context.Context, pattern string, prerelease bool) ([]feed.Candidate, error) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.packages))
	for k := range m.packages {
		ids = append(ids, k)
	}
	m.mu.Unlock()

	var out []feed.Candidate
	for _, id := range ids {
		if ok, _ := path.Match(strings.ToLower(pattern), id); !ok {
			continue
		}
		cands, err := m.QueryVersions(ctx, id, prerelease)
		if err != nil {
			return nil, err
		}
		best, err := version.Resolve(id, version.Any(), prerelease, cands)
		if err != nil {
			continue
		}
		out = append(out, best)
	}
	return out, nil
}

// Download implements feed.Feed by writing the package files into destDir.
func (m *Memory) Download(ctx context.Context, c feed.Candidate, destDir string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	m.downloads = append(m.downloads, c.String())
	failure := m.failures[c.Key()]
	var files map[string]string
	for _, p := range m.packages[strings.ToLower(c.ID)] {
		if p.Candidate.Version.Equal(c.Version) {
			files = p.Files
			break
		}
	}
	m.mu.Unlock()

	if failure != nil {
		return "", failure
	}
	if files == nil {
		return "", fmt.Errorf("%s: %w", c, feed.ErrNotFound)
	}
	if err := WriteFiles(destDir, files); err != nil {
		return "", err
	}
	return destDir, nil
}

// DefaultFiles returns a minimal payload: <Id>.ps1 for scripts, <Id>.psd1
// for modules.
func DefaultFiles(c feed.Candidate) map[string]string {
	for _, tag := range c.Tags {
		if strings.EqualFold(tag, "PSScript") {
			return map[string]string{c.ID + ".ps1": "<# " + c.ID + " " + c.Version.String() + " #>"}
		}
	}
	return map[string]string{c.ID + ".psd1": "@{ ModuleVersion = '" + c.Version.String() + "' }"}
}

// WriteFiles materializes files under dir.
func WriteFiles(dir string, files map[string]string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}

// Module builds a module candidate. Dependencies are "Id" or "Id@range".
func Module(id, ver string, deps ...string) feed.Candidate {
	c := feed.Candidate{
		ID:      id,
		Version: version.MustParse(ver),
		Tags:    []string{"PSModule"},
		Authors: "test",
	}
	if len(deps) > 0 {
		g := feed.DependencyGroup{}
		for _, d := range deps {
			depID, rng, _ := strings.Cut(d, "@")
			g.Dependencies = append(g.Dependencies, feed.Dependency{ID: depID, Range: rng})
		}
		c.DependencyGroups = []feed.DependencyGroup{g}
	}
	return c
}

// Script builds a script candidate.
func Script(id, ver string, deps ...string) feed.Candidate {
	c := Module(id, ver, deps...)
	c.Tags = []string{"PSScript"}
	return c
}

var (
	_ feed.Feed     = (*Memory)(nil)
	_ feed.Searcher = (*Memory)(nil)
)
