package install

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	perrors "github.com/matzehuels/psresget/pkg/errors"
	"github.com/matzehuels/psresget/pkg/feed"
	"github.com/matzehuels/psresget/pkg/host"
)

// Selector installs requests from an ordered list of repositories, falling
// back to the next repository for whatever the previous one lacked.
type Selector struct {
	engine *Engine
	host   host.Host
	logger *log.Logger
}

// NewSelector returns a Selector driving engine. It prompts through the
// engine's host.
func NewSelector(engine *Engine) *Selector {
	return &Selector{engine: engine, host: engine.host, logger: engine.logger}
}

// Result is the aggregate outcome of an invocation.
type Result struct {
	Installed        []Installed
	AlreadyInstalled []string

	// NotFound are requests no repository could resolve. A non-empty list is
	// not an error by itself; callers decide how to report it.
	NotFound []Request

	// Skipped names untrusted repositories the user declined.
	Skipped []string
}

// Complete reports whether every request was installed or already present.
func (r Result) Complete() bool { return len(r.NotFound) == 0 }

// Install tries repos in order until every request is satisfied.
func (s *Selector) Install(ctx context.Context, reqs []Request, repos []feed.Repository, opts Options) (Result, error) {
	reqs = dedupe(reqs)
	if err := validateRequests(reqs); err != nil {
		return Result{NotFound: reqs}, err
	}

	var res Result
	outstanding := reqs
	trust := trustGate{host: s.host}
	for _, repo := range repos {
		if len(outstanding) == 0 {
			break
		}
		if !trust.allow(repo, opts) {
			s.logger.Warn("skipping untrusted repository", "repository", repo.Name)
			res.Skipped = append(res.Skipped, repo.Name)
			continue
		}

		s.logger.Debug("trying repository", "repository", repo.Name, "outstanding", len(outstanding))
		out, err := s.engine.InstallPkgs(ctx, repo, outstanding, reqs, opts)
		res.Installed = append(res.Installed, out.Installed...)
		res.AlreadyInstalled = append(res.AlreadyInstalled, out.AlreadyInstalled...)
		if err != nil {
			res.NotFound = out.Remaining
			return res, err
		}
		outstanding = out.Remaining
	}
	res.NotFound = outstanding
	return res, nil
}

// Plan resolves reqs across repos the way Install would, without touching
// the store. It returns one plan per repository that resolved something.
func (s *Selector) Plan(ctx context.Context, reqs []Request, repos []feed.Repository, opts Options) ([]*Plan, []Request, error) {
	reqs = dedupe(reqs)
	if err := validateRequests(reqs); err != nil {
		return nil, reqs, err
	}

	var plans []*Plan
	outstanding := reqs
	for _, repo := range repos {
		if len(outstanding) == 0 {
			break
		}
		p, err := s.engine.Plan(ctx, repo, outstanding, reqs, opts)
		if err != nil {
			return plans, outstanding, err
		}
		if len(p.Entries) > 0 || len(p.AlreadyInstalled) > 0 {
			plans = append(plans, p)
		}
		outstanding = p.NotFound
	}
	return plans, outstanding, nil
}

func validateRequests(reqs []Request) error {
	for _, r := range reqs {
		if err := perrors.ValidatePackageName(r.Name); err != nil {
			return err
		}
		if _, err := parseRequest(r); err != nil {
			return err
		}
	}
	return nil
}

// trustGate asks about untrusted repositories at most once per invocation.
// The first answer, whatever it is, covers every later untrusted repository.
type trustGate struct {
	host   host.Host
	answer *host.Answer
}

func (g *trustGate) allow(repo feed.Repository, opts Options) bool {
	if repo.Trusted || opts.TrustRepository || opts.Force {
		return true
	}
	if g.answer != nil {
		return g.answer.Accepted()
	}
	msg := fmt.Sprintf("You are installing from an untrusted repository. If you trust it, "+
		"register it with --trusted. Are you sure you want to install from '%s' (%s)?", repo.Name, repo.URL)
	answer := g.host.Confirm(msg, "Untrusted repository")
	g.answer = &answer
	return answer.Accepted()
}
