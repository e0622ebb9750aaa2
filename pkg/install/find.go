package install

import (
	"context"

	"github.com/matzehuels/psresget/pkg/deps"
	perrors "github.com/matzehuels/psresget/pkg/errors"
	"github.com/matzehuels/psresget/pkg/feed"
)

// FindOptions configures [Selector.Find].
type FindOptions struct {
	Prerelease          bool
	IncludeDependencies bool
}

// Find resolves reqs across repos without installing. Names may be wildcard
// patterns; they are expanded through feeds that implement feed.Searcher and
// skipped on feeds that do not. Unlike Install, every repository is
// searched for patterns, while exact names stop at the first repository that
// resolves them.
func (s *Selector) Find(ctx context.Context, reqs []Request, repos []feed.Repository, opts FindOptions) ([]feed.Candidate, []Request, error) {
	reqs = dedupe(reqs)
	found := make(map[string]bool)
	seen := make(map[string]bool)
	var out []feed.Candidate
	add := func(c feed.Candidate) {
		if !seen[c.Key()] {
			seen[c.Key()] = true
			out = append(out, c)
		}
	}

	for _, r := range reqs {
		if perrors.IsPattern(r.Name) {
			continue
		}
		if err := perrors.ValidatePackageName(r.Name); err != nil {
			return nil, reqs, err
		}
	}

	for _, repo := range repos {
		f, err := s.engine.openFeed(ctx, repo)
		if err != nil {
			return out, nil, err
		}
		for _, r := range reqs {
			if found[r.key()] && !perrors.IsPattern(r.Name) {
				continue
			}
			c, err := parseRequest(r)
			if err != nil {
				return out, nil, err
			}
			prerelease := opts.Prerelease || r.Prerelease

			var matches []feed.Candidate
			if perrors.IsPattern(r.Name) {
				searcher, ok := f.(feed.Searcher)
				if !ok {
					s.logger.Debug("repository cannot search patterns", "repository", repo.Name, "pattern", r.Name)
					continue
				}
				results, err := searcher.Search(ctx, r.Name, prerelease)
				if err != nil {
					return out, nil, err
				}
				for _, m := range results {
					if c.Satisfies(m.Version) {
						matches = append(matches, m)
					}
				}
			} else {
				best, err := s.engine.resolve(ctx, f, repo, r.Name, c, prerelease)
				if perrors.Recoverable(err) {
					continue
				}
				if err != nil {
					return out, nil, err
				}
				matches = []feed.Candidate{best}
			}

			for _, m := range matches {
				found[r.key()] = true
				add(m)
				if !opts.IncludeDependencies {
					continue
				}
				exp, err := deps.NewBuilder(f, nil, deps.Options{
					Prerelease: prerelease,
					Reinstall:  true,
					Logger:     s.logger,
				}).Expand(ctx, m)
				if err != nil {
					return out, nil, err
				}
				for _, d := range exp.Candidates {
					add(d)
				}
			}
		}
	}

	var missing []Request
	for _, r := range reqs {
		if !found[r.key()] {
			missing = append(missing, r)
		}
	}
	return out, missing, nil
}
