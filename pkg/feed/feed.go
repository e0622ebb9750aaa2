// Package feed defines the boundary between the install core and package
// repositories.
//
// A [Feed] answers two questions: which versions of a package id exist, and
// where is the payload of one of them. Concrete adapters live in
// sub-packages:
//
//   - nuget: NuGet v2 OData feeds over HTTP (PowerShell Gallery and compatible)
//   - local: a directory of .nupkg files
//   - feedtest: in-memory feeds and a fake HTTP server for tests
//
// Feeds are synchronous from the caller's point of view. Any asynchronous I/O
// happens inside the adapter and is awaited before a method returns.
package feed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/matzehuels/psresget/pkg/version"
)

// ErrNotFound is returned by feeds that distinguish an unknown package id
// from a known id with no versions. Callers treat both the same way.
var ErrNotFound = errors.New("package not found in feed")

// Feed queries a single repository.
type Feed interface {
	// QueryVersions returns every published version of id. Prerelease
	// versions are included only when prerelease is set. Order is the feed's
	// own; callers must not rely on it.
	QueryVersions(ctx context.Context, id string, prerelease bool) ([]Candidate, error)

	// Download fetches and extracts c's payload into destDir and returns the
	// directory holding the extracted files.
	Download(ctx context.Context, c Candidate, destDir string) (string, error)
}

// Searcher is implemented by feeds that can expand a name pattern such as
// "Az.*" into concrete candidates (latest version per id).
type Searcher interface {
	Search(ctx context.Context, pattern string, prerelease bool) ([]Candidate, error)
}

// Candidate describes one published version of a package.
type Candidate struct {
	ID      string
	Version version.Version

	DependencyGroups []DependencyGroup
	Tags             []string

	Authors     string
	Owners      string
	Description string
	LicenseURL  string
	ProjectURL  string
	IconURL     string
	Published   time.Time

	RequireLicenseAcceptance bool

	// Repository the candidate was listed by.
	Repository Source

	// DownloadURL locates the payload; empty for feeds that compute it.
	DownloadURL string

	// PayloadPath is set once the payload has been downloaded and extracted.
	PayloadPath string
}

// DependencyGroup is the set of dependencies declared for one target framework.
// PowerShell packages usually have a single group with an empty framework.
type DependencyGroup struct {
	TargetFramework string
	Dependencies    []Dependency
}

// Dependency is a declared dependency: an id plus a range in NuGet interval
// notation. An empty Range means any version.
type Dependency struct {
	ID    string
	Range string
}

// Source identifies the repository a candidate came from.
type Source struct {
	Name string
	URL  string
}

// PackageVersion implements version.Versioned.
func (c Candidate) PackageVersion() version.Version {
	return c.Version
}

// Key identifies c by case-insensitive id and normalized version.
func (c Candidate) Key() string {
	return Key(c.ID, c.Version)
}

// Key builds the identity used to de-duplicate candidates.
func Key(id string, v version.Version) string {
	return strings.ToLower(id) + "@" + strings.ToLower(v.String())
}

// String returns "id version".
func (c Candidate) String() string {
	return c.ID + " " + c.Version.String()
}

// Dependencies returns every declared dependency across groups, first
// occurrence of an id winning.
func (c Candidate) Dependencies() []Dependency {
	seen := make(map[string]bool)
	var out []Dependency
	for _, g := range c.DependencyGroups {
		for _, d := range g.Dependencies {
			k := strings.ToLower(d.ID)
			if d.ID == "" || seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, d)
		}
	}
	return out
}

// ParseTags splits a space-separated tag string as published by feeds.
func ParseTags(s string) []string {
	return strings.Fields(s)
}
