package install

import (
	"context"
	"strings"

	"github.com/matzehuels/psresget/pkg/feed"
	"github.com/matzehuels/psresget/pkg/inventory"
)

// DefaultWorkers bounds concurrent downloads within one staging transaction.
const DefaultWorkers = 4

// Layout is the package store the engine installs into.
type Layout = inventory.Layout

// Opener creates the feed for a repository.
type Opener func(ctx context.Context, repo feed.Repository) (feed.Feed, error)

// Request asks for one package id.
type Request struct {
	Name       string
	Constraint string // CLI notation: a bare version is exact; empty means latest
	Prerelease bool
}

func (r Request) String() string {
	if r.Constraint == "" {
		return r.Name
	}
	return r.Name + " " + r.Constraint
}

func (r Request) key() string { return strings.ToLower(r.Name) }

// Requests builds requests for names sharing one constraint.
func Requests(names []string, constraint string, prerelease bool) []Request {
	out := make([]Request, 0, len(names))
	for _, n := range names {
		out = append(out, Request{Name: n, Constraint: constraint, Prerelease: prerelease})
	}
	return out
}

// Options control an install or update. They are passed by value and never
// modified by the engine.
type Options struct {
	Layout Layout

	Prerelease      bool // Admit prerelease versions for every request
	AcceptLicense   bool // Accept license prompts without asking
	Quiet           bool // Suppress progress reporting
	Reinstall       bool // Install even when a satisfying version is present
	Force           bool // Like Reinstall; also bypasses the trust gate
	TrustRepository bool // Treat every repository as trusted
	NoClobber       bool // Fail when a package would shadow installed commands
	Update          bool // Only replace packages that are already installed

	// Workers bounds parallel downloads. Zero means DefaultWorkers.
	Workers int

	// StagingRoot is where staging directories are created. Empty means
	// os.TempDir().
	StagingRoot string
}

func (o Options) workers() int {
	if o.Workers <= 0 {
		return DefaultWorkers
	}
	return o.Workers
}

func (o Options) skipInstalled() bool {
	return !o.Reinstall && !o.Force
}

// dedupe drops repeated names, first occurrence winning.
func dedupe(reqs []Request) []Request {
	seen := make(map[string]bool, len(reqs))
	out := make([]Request, 0, len(reqs))
	for _, r := range reqs {
		if seen[r.key()] {
			continue
		}
		seen[r.key()] = true
		out = append(out, r)
	}
	return out
}
