package install

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/psresget/pkg/descriptor"
	perrors "github.com/matzehuels/psresget/pkg/errors"
	"github.com/matzehuels/psresget/pkg/feed"
	"github.com/matzehuels/psresget/pkg/host"
	"github.com/matzehuels/psresget/pkg/inventory"
	"github.com/matzehuels/psresget/pkg/observability"
)

// Progress activity ids reported to the host.
const (
	ActivityDownload = iota + 1
	ActivityInstall
)

// Engine performs install attempts against single repositories. It is safe
// for concurrent use; promotions of the same package id are serialized.
type Engine struct {
	open   Opener
	host   host.Host
	logger *log.Logger
	now    func() time.Time
	locks  keyedMutex
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine's logger. The default is log.Default().
func WithLogger(l *log.Logger) EngineOption { return func(e *Engine) { e.logger = l } }

// WithClock sets the clock used for install timestamps.
func WithClock(now func() time.Time) EngineOption { return func(e *Engine) { e.now = now } }

// NewEngine creates an Engine that opens feeds with open and asks h for
// confirmations. A nil h denies every prompt.
func NewEngine(open Opener, h host.Host, opts ...EngineOption) *Engine {
	if h == nil {
		h = host.NonInteractive{}
	}
	e := &Engine{open: open, host: h, logger: log.Default(), now: time.Now}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Installed is one package promoted into the store.
type Installed struct {
	Candidate feed.Candidate
	Path      string
	Requested bool // false for dependencies
}

// Outcome reports one repository attempt.
type Outcome struct {
	Installed        []Installed
	AlreadyInstalled []string

	// Remaining are the requests this repository could not resolve.
	Remaining []Request
}

// InstallPkgs installs outstanding from repo. all is the invocation's full
// request set, used when pruning packages the store already satisfies.
//
// Requests the repository cannot resolve come back in Outcome.Remaining.
// Any other failure is returned as an error; packages promoted before the
// failure stay installed, the failing package and everything after it do not.
func (e *Engine) InstallPkgs(ctx context.Context, repo feed.Repository, outstanding, all []Request, opts Options) (Outcome, error) {
	f, err := e.openFeed(ctx, repo)
	if err != nil {
		return Outcome{Remaining: outstanding}, err
	}
	inv, err := inventory.Load(opts.Layout)
	if err != nil {
		return Outcome{Remaining: outstanding}, err
	}

	p, err := e.plan(ctx, f, repo, inv, outstanding, all, opts)
	if err != nil {
		return Outcome{Remaining: outstanding}, err
	}
	out := Outcome{AlreadyInstalled: p.AlreadyInstalled, Remaining: p.NotFound}
	if p.Empty() {
		return out, nil
	}

	out.Installed, err = e.commit(ctx, f, p, inv, opts)
	return out, err
}

// Plan resolves reqs against repo without installing anything.
func (e *Engine) Plan(ctx context.Context, repo feed.Repository, outstanding, all []Request, opts Options) (*Plan, error) {
	f, err := e.openFeed(ctx, repo)
	if err != nil {
		return nil, err
	}
	inv, err := inventory.Load(opts.Layout)
	if err != nil {
		return nil, err
	}
	return e.plan(ctx, f, repo, inv, outstanding, all, opts)
}

func (e *Engine) openFeed(ctx context.Context, repo feed.Repository) (feed.Feed, error) {
	f, err := e.open(ctx, repo)
	if err == nil {
		return f, nil
	}
	if perrors.GetCode(err) != "" {
		return nil, err
	}
	return nil, perrors.Wrap(perrors.ErrCodeRepositoryUnavailable, err, "open repository %s", repo.Name).
		WithRepository(repo.URL)
}

// commit runs the staging transaction for p.
func (e *Engine) commit(ctx context.Context, f feed.Feed, p *Plan, inv *inventory.Inventory, opts Options) ([]Installed, error) {
	st, err := newStaging(opts.StagingRoot)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := st.Close(); err != nil {
			e.logger.Warn("remove staging directory", "path", st.dir, "error", err)
		}
	}()

	h := e.host
	if opts.Quiet {
		h = host.Quiet(h)
	}

	if err := e.download(ctx, f, st, p.Entries, h, opts); err != nil {
		return nil, err
	}

	gate := &licenseGate{host: h, accepted: opts.AcceptLicense}
	now := e.now()
	for _, entry := range p.Entries {
		if err := e.stage(entry, inv, gate, now, opts); err != nil {
			return nil, err
		}
	}

	var done []Installed
	for i, entry := range p.Entries {
		// Cancellation is honoured between promotions, never during one.
		if err := ctx.Err(); err != nil {
			return done, err
		}
		c := entry.Candidate
		h.Progress(ActivityInstall, "Installing "+c.String(), (i*100)/len(p.Entries))

		path, err := e.promote(ctx, c, opts.Layout)
		if err != nil {
			return done, err
		}
		e.logger.Info("installed", "id", c.ID, "version", c.Version, "path", path)
		done = append(done, Installed{Candidate: c, Path: path, Requested: entry.Request != nil})
	}
	h.Progress(ActivityInstall, "Installed", -1)
	return done, nil
}

// download fetches every entry into the staging area, bounded by
// opts.Workers, and records each payload path on its entry.
func (e *Engine) download(ctx context.Context, f feed.Feed, st *staging, entries []Entry, h host.Host, opts Options) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.workers())

	var completed atomic.Int64
	total := int64(len(entries))
	for i := range entries {
		c := entries[i].Candidate
		g.Go(func() error {
			start := time.Now()
			observability.Install().OnDownloadStart(gctx, c.ID, c.Version.String())
			e.logger.Debug("downloading", "id", c.ID, "version", c.Version)

			payload, err := f.Download(gctx, c, st.payloadDir(c))
			observability.Install().OnDownloadComplete(gctx, c.ID, c.Version.String(), time.Since(start), err)
			if err != nil {
				return fmt.Errorf("download %s: %w", c, err)
			}
			entries[i].Candidate.PayloadPath = payload

			n := completed.Add(1)
			h.Progress(ActivityDownload, "Downloaded "+c.String(), int(n*100/total))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	h.Progress(ActivityDownload, "Downloaded", -1)
	return nil
}

// stage validates a downloaded entry and writes its descriptor into the
// staged tree.
func (e *Engine) stage(entry Entry, inv *inventory.Inventory, gate *licenseGate, now time.Time, opts Options) error {
	c := entry.Candidate
	kind := descriptor.KindOf(c.Tags)

	if err := gate.check(c, c.PayloadPath); err != nil {
		return err
	}
	if opts.NoClobber {
		if err := checkClobber(inv, c); err != nil {
			return err
		}
	}

	d := descriptor.FromCandidate(c, entry.Dependencies, now)
	switch kind {
	case descriptor.Script:
		if opts.Layout.ScriptRoot == "" {
			return perrors.New(perrors.ErrCodeInvalidInput, "no script root configured").WithPackage(c.ID)
		}
		if _, err := stagedScript(c.PayloadPath, c); err != nil {
			return err
		}
		d.InstalledLocation = opts.Layout.ScriptRoot
	default:
		if opts.Layout.ModuleRoot == "" {
			return perrors.New(perrors.ErrCodeInvalidInput, "no module root configured").WithPackage(c.ID)
		}
		d.InstalledLocation = moduleDir(opts.Layout.ModuleRoot, c)
	}
	if _, err := descriptor.Write(c.PayloadPath, d); err != nil {
		return fmt.Errorf("write descriptor for %s: %w", c, err)
	}

	inv.Record(c.ID, kind, c.Version, descriptor.ExportedCommands(c.Tags))
	e.logger.Debug("staged", "id", c.ID, "version", c.Version, "kind", kind)
	return nil
}

// promote moves one staged package into the store.
func (e *Engine) promote(ctx context.Context, c feed.Candidate, layout Layout) (string, error) {
	unlock := e.locks.lock(c.ID)
	defer unlock()

	var (
		path string
		err  error
	)
	if descriptor.KindOf(c.Tags) == descriptor.Script {
		path, err = promoteScript(c.PayloadPath, layout, c)
	} else {
		path, err = promoteModule(c.PayloadPath, layout, c)
	}
	observability.Install().OnPromote(ctx, c.ID, c.Version.String(), path, err)
	if err != nil {
		return "", fmt.Errorf("promote %s: %w", c, err)
	}
	return path, nil
}
