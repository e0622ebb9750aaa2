package install

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/matzehuels/psresget/pkg/deps"
	perrors "github.com/matzehuels/psresget/pkg/errors"
	"github.com/matzehuels/psresget/pkg/feed"
	"github.com/matzehuels/psresget/pkg/inventory"
	"github.com/matzehuels/psresget/pkg/observability"
	"github.com/matzehuels/psresget/pkg/version"
)

// Plan is what one repository attempt would install.
type Plan struct {
	Repository feed.Repository

	// Entries are the candidates to materialize, dependencies before their
	// dependents. No (id, version) appears twice.
	Entries []Entry

	// AlreadyInstalled lists requested names the store already satisfies.
	AlreadyInstalled []string

	// NotFound lists requests this repository could not resolve.
	NotFound []Request

	// Expansions holds the dependency expansion of every resolved request.
	Expansions []*deps.Expansion
}

// Entry is one candidate in a plan.
type Entry struct {
	Candidate feed.Candidate

	// Request is set when the candidate was requested by name.
	Request *Request

	// Dependencies maps lower-cased first-level dependency ids to the
	// versions the plan resolved them to.
	Dependencies map[string]string
}

// Candidates returns the plan's candidates in order.
func (p *Plan) Candidates() []feed.Candidate {
	out := make([]feed.Candidate, 0, len(p.Entries))
	for _, e := range p.Entries {
		out = append(out, e.Candidate)
	}
	return out
}

// Empty reports whether the plan installs nothing.
func (p *Plan) Empty() bool { return len(p.Entries) == 0 }

// plan runs resolution, expansion, union and pruning for outstanding against
// one feed. all is the full request set of the invocation; it decides which
// plan entries count as requested when pruning.
func (e *Engine) plan(ctx context.Context, f feed.Feed, repo feed.Repository, inv *inventory.Inventory, outstanding, all []Request, opts Options) (*Plan, error) {
	p := &Plan{Repository: repo}
	index := make(map[string]int)

	for _, req := range dedupe(outstanding) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := perrors.ValidatePackageName(req.Name); err != nil {
			return nil, err
		}
		c, err := parseRequest(req)
		if err != nil {
			return nil, err
		}
		prerelease := opts.Prerelease || req.Prerelease

		root, err := e.resolve(ctx, f, repo, req.Name, c, prerelease)
		if perrors.Recoverable(err) {
			e.logger.Warn(perrors.UserMessage(err))
			p.NotFound = append(p.NotFound, req)
			continue
		}
		if err != nil {
			return nil, err
		}

		exp, err := deps.NewBuilder(f, inv, deps.Options{
			Prerelease: prerelease,
			Reinstall:  opts.Reinstall,
			Logger:     e.logger,
		}).Expand(ctx, root)
		if perrors.Recoverable(err) {
			e.logger.Warn(perrors.UserMessage(err), "required_by", root.ID)
			p.NotFound = append(p.NotFound, req)
			continue
		}
		if err != nil {
			return nil, err
		}
		p.Expansions = append(p.Expansions, exp)

		byID := map[string]feed.Candidate{strings.ToLower(root.ID): root}
		for _, d := range exp.Candidates {
			byID[strings.ToLower(d.ID)] = d
		}
		for _, id := range exp.Graph.InstallOrder() {
			cand, ok := byID[strings.ToLower(id)]
			if !ok {
				continue
			}
			isRoot := strings.EqualFold(cand.ID, root.ID)
			if i, dup := index[cand.Key()]; dup {
				if isRoot && p.Entries[i].Request == nil {
					r := req
					p.Entries[i].Request = &r
				}
				continue
			}
			entry := Entry{Candidate: cand, Dependencies: exp.ResolvedFor(cand)}
			if isRoot {
				r := req
				entry.Request = &r
			}
			index[cand.Key()] = len(p.Entries)
			p.Entries = append(p.Entries, entry)
		}
	}

	return p, e.prune(p, inv, append(dedupe(outstanding), all...), opts)
}

// prune drops entries for requested names the store already satisfies.
func (e *Engine) prune(p *Plan, inv *inventory.Inventory, requested []Request, opts Options) error {
	byName := make(map[string]Request, len(requested))
	for _, r := range requested {
		if _, ok := byName[r.key()]; !ok {
			byName[r.key()] = r
		}
	}

	kept := p.Entries[:0]
	for _, entry := range p.Entries {
		req, ok := byName[strings.ToLower(entry.Candidate.ID)]
		if !ok {
			kept = append(kept, entry)
			continue
		}
		installed, err := satisfiedLocally(inv, req, entry, opts)
		if err != nil {
			return err
		}
		if installed && opts.skipInstalled() {
			e.logger.Info("already installed", "id", entry.Candidate.ID, "constraint", req.Constraint)
			p.AlreadyInstalled = append(p.AlreadyInstalled, req.Name)
			continue
		}
		kept = append(kept, entry)
	}
	p.Entries = kept
	return nil
}

// satisfiedLocally reports whether the store satisfies req. For updates the
// installed version must be at least the candidate's; an update of a package
// that is not installed at all is fatal.
func satisfiedLocally(inv *inventory.Inventory, req Request, entry Entry, opts Options) (bool, error) {
	if opts.Update && entry.Request != nil {
		versions := inv.Versions(req.Name)
		if len(versions) == 0 {
			return false, perrors.New(perrors.ErrCodeModuleNotInstalledForUpdate,
				"cannot update a package that is not installed").WithPackage(req.Name)
		}
		return versions[len(versions)-1].Compare(entry.Candidate.Version) >= 0, nil
	}
	c, err := parseRequest(req)
	if err != nil {
		return false, err
	}
	_, ok := inv.Satisfied(req.Name, c)
	return ok, nil
}

func parseRequest(req Request) (version.Constraint, error) {
	c, err := version.ParseRequest(req.Constraint)
	if err != nil {
		return c, perrors.Wrap(perrors.ErrCodeConstraintParse, err, "invalid version constraint").
			WithPackage(req.Name).WithConstraint(req.Constraint)
	}
	return c, nil
}

// resolve picks the top-level candidate for name.
func (e *Engine) resolve(ctx context.Context, f feed.Feed, repo feed.Repository, name string, c version.Constraint, prerelease bool) (feed.Candidate, error) {
	cands, err := f.QueryVersions(ctx, name, prerelease || c.MentionsPrerelease())
	if err != nil && !errors.Is(err, feed.ErrNotFound) {
		observability.Install().OnResolve(ctx, repo.Name, name, "", err)
		return feed.Candidate{}, fmt.Errorf("query %s in %s: %w", name, repo.Name, err)
	}
	best, err := version.Resolve(name, c, prerelease, cands)
	if err != nil {
		observability.Install().OnResolve(ctx, repo.Name, name, "", err)
		return feed.Candidate{}, perrors.Wrap(perrors.ErrCodePackageNotFound, err, "no match found").
			WithPackage(name).WithRepository(repo.URL).WithConstraint(c.String())
	}
	observability.Install().OnResolve(ctx, repo.Name, name, best.Version.String(), nil)
	e.logger.Debug("resolved", "repository", repo.Name, "id", best.ID, "version", best.Version)
	return best, nil
}
