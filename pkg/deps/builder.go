package deps

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	perrors "github.com/matzehuels/psresget/pkg/errors"
	"github.com/matzehuels/psresget/pkg/feed"
	"github.com/matzehuels/psresget/pkg/inventory"
	"github.com/matzehuels/psresget/pkg/version"
)

// Options configures an expansion.
type Options struct {
	Prerelease bool        // Admit prerelease dependency versions
	Reinstall  bool        // Ignore the local inventory
	Logger     *log.Logger // Defaults to log.Default()
}

// Builder expands dependencies against one feed and one inventory snapshot.
type Builder struct {
	feed feed.Feed
	inv  *inventory.Inventory
	opts Options
}

// NewBuilder returns a Builder. inv may be nil, in which case nothing counts
// as installed.
func NewBuilder(f feed.Feed, inv *inventory.Inventory, opts Options) *Builder {
	if inv == nil {
		inv = inventory.New()
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Builder{feed: f, inv: inv, opts: opts}
}

// Expansion is the result of expanding one root package.
type Expansion struct {
	Root feed.Candidate

	// Candidates are the dependencies to install, root excluded, in
	// discovery order. No id appears twice.
	Candidates []feed.Candidate

	// Resolved maps every lower-cased dependency id to the version the plan
	// uses for it: the chosen candidate, or the installed version when the
	// dependency was already satisfied.
	Resolved map[string]string

	Graph *Graph
}

// ResolvedFor returns the resolved versions of c's first-level dependencies.
func (e *Expansion) ResolvedFor(c feed.Candidate) map[string]string {
	out := make(map[string]string)
	for _, d := range c.Dependencies() {
		if v, ok := e.Resolved[strings.ToLower(d.ID)]; ok {
			out[strings.ToLower(d.ID)] = v
		}
	}
	return out
}

type item struct {
	cand  feed.Candidate
	depth int
}

// Expand returns root's transitive dependencies. A malformed range is a
// CONSTRAINT_PARSE error; a dependency no version of which satisfies its range
// is PACKAGE_NOT_FOUND. Feed failures are returned as-is.
func (b *Builder) Expand(ctx context.Context, root feed.Candidate) (*Expansion, error) {
	exp := &Expansion{
		Root:     root,
		Resolved: make(map[string]string),
		Graph:    NewGraph(),
	}
	_ = exp.Graph.AddNode(Node{ID: root.ID, Version: root.Version.String(), State: StateRoot})

	rootKey := strings.ToLower(root.ID)
	visited := map[string]bool{rootKey: true}
	picked := map[string]version.Version{rootKey: root.Version}
	firstBy := map[string]requirement{rootKey: {}}
	queue := []item{{cand: root}}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cur := queue[0]
		queue = queue[1:]

		for _, dep := range cur.cand.Dependencies() {
			k := strings.ToLower(dep.ID)
			if visited[k] {
				if err := checkRepeat(dep, cur.cand.ID, picked[k], firstBy[k]); err != nil {
					return nil, err
				}
				if _, ok := exp.Graph.Node(dep.ID); ok {
					_ = exp.Graph.AddEdge(Edge{From: cur.cand.ID, To: dep.ID, Range: dep.Range})
				}
				continue
			}
			visited[k] = true
			firstBy[k] = requirement{parent: cur.cand.ID, rng: dep.Range}

			chosen, satisfied, err := b.resolve(ctx, dep)
			if err != nil {
				return nil, err
			}

			node := Node{ID: chosen.ID, Version: chosen.Version.String(), State: StateInstall}
			if satisfied != nil {
				node.Version = satisfied.String()
				node.State = StateSatisfied
				exp.Resolved[k] = satisfied.String()
				picked[k] = *satisfied
			} else {
				exp.Candidates = append(exp.Candidates, chosen)
				exp.Resolved[k] = chosen.Version.String()
				picked[k] = chosen.Version
			}
			_ = exp.Graph.AddNode(node)
			_ = exp.Graph.AddEdge(Edge{From: cur.cand.ID, To: chosen.ID, Range: dep.Range})

			b.opts.Logger.Debug("dependency resolved",
				"parent", cur.cand.ID, "id", chosen.ID, "version", node.Version,
				"state", node.State, "depth", cur.depth+1)

			queue = append(queue, item{cand: chosen, depth: cur.depth + 1})
		}
	}
	return exp, nil
}

// requirement is the first declaration that reached an id. A zero value
// marks the root.
type requirement struct {
	parent string
	rng    string
}

// checkRepeat verifies that a dependency reached again is satisfied by the
// version already chosen for its id.
func checkRepeat(dep feed.Dependency, parent string, chosen version.Version, first requirement) error {
	c, err := version.ParseRange(dep.Range)
	if err != nil {
		return perrors.Wrap(perrors.ErrCodeConstraintParse, err,
			"invalid dependency range").WithPackage(dep.ID).WithConstraint(dep.Range)
	}
	if c.Satisfies(chosen) {
		return nil
	}
	by := "the root package"
	if first.parent != "" {
		by = fmt.Sprintf("%s (range %q)", first.parent, first.rng)
	}
	return perrors.New(perrors.ErrCodeDependencyConflict,
		"%s requires %s %q, but %s %s was already chosen for %s",
		parent, dep.ID, dep.Range, dep.ID, chosen, by).
		WithPackage(dep.ID).WithConstraint(dep.Range)
}

// resolve picks the best feed candidate for dep and reports the installed
// version when one already satisfies the range.
func (b *Builder) resolve(ctx context.Context, dep feed.Dependency) (feed.Candidate, *version.Version, error) {
	c, err := version.ParseRange(dep.Range)
	if err != nil {
		return feed.Candidate{}, nil, perrors.Wrap(perrors.ErrCodeConstraintParse, err,
			"invalid dependency range").WithPackage(dep.ID).WithConstraint(dep.Range)
	}
	prerelease := b.opts.Prerelease || c.MentionsPrerelease()

	cands, err := b.feed.QueryVersions(ctx, dep.ID, prerelease)
	if err != nil && !errors.Is(err, feed.ErrNotFound) {
		return feed.Candidate{}, nil, fmt.Errorf("query dependency %s: %w", dep.ID, err)
	}
	chosen, resolveErr := version.Resolve(dep.ID, c, b.opts.Prerelease, cands)

	if !b.opts.Reinstall {
		if v, ok := b.inv.Satisfied(dep.ID, c); ok {
			if resolveErr != nil {
				// Installed but no longer published here: nothing to walk.
				return feed.Candidate{ID: dep.ID, Version: v}, &v, nil
			}
			return chosen, &v, nil
		}
	}
	if resolveErr != nil {
		return feed.Candidate{}, nil, perrors.Wrap(perrors.ErrCodePackageNotFound, resolveErr,
			"no version of dependency satisfies range").WithPackage(dep.ID).WithConstraint(c.String())
	}
	return chosen, nil, nil
}
