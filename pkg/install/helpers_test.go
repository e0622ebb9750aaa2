package install

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/psresget/pkg/descriptor"
	"github.com/matzehuels/psresget/pkg/feed"
	"github.com/matzehuels/psresget/pkg/feed/feedtest"
	"github.com/matzehuels/psresget/pkg/host"
)

// fixture wires an Engine to in-memory feeds and a temporary store.
type fixture struct {
	t      *testing.T
	root   string
	layout Layout
	feeds  map[string]*feedtest.Memory
	opened []string
	host   *host.Recorder
	engine *Engine
}

func newFixture(t *testing.T, mems ...*feedtest.Memory) *fixture {
	t.Helper()
	root := t.TempDir()
	fx := &fixture{
		t:    t,
		root: root,
		layout: Layout{
			ModuleRoot: filepath.Join(root, "Modules"),
			ScriptRoot: filepath.Join(root, "Scripts"),
		},
		feeds: make(map[string]*feedtest.Memory),
		host:  &host.Recorder{},
	}
	for _, m := range mems {
		fx.feeds[m.Source().Name] = m
	}
	open := func(ctx context.Context, repo feed.Repository) (feed.Feed, error) {
		fx.opened = append(fx.opened, repo.Name)
		m, ok := fx.feeds[repo.Name]
		if !ok {
			return nil, errors.New("connection refused")
		}
		return m, nil
	}
	fx.engine = NewEngine(open, fx.host, WithLogger(log.New(io.Discard)))
	return fx
}

func (fx *fixture) opts() Options {
	return Options{Layout: fx.layout, StagingRoot: filepath.Join(fx.root, "staging")}
}

func (fx *fixture) repos(names ...string) []feed.Repository {
	var out []feed.Repository
	for _, n := range names {
		if m, ok := fx.feeds[n]; ok {
			out = append(out, m.Repository(true))
		} else {
			out = append(out, feed.Repository{Name: n, URL: "memory://" + n, Trusted: true})
		}
	}
	return out
}

// preinstall creates a module version directory with a descriptor.
func (fx *fixture) preinstall(c feed.Candidate) string {
	fx.t.Helper()
	dir := filepath.Join(fx.layout.ModuleRoot, c.ID, c.Version.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fx.t.Fatal(err)
	}
	if _, err := descriptor.Write(dir, descriptor.FromCandidate(c, nil, fx.engine.now())); err != nil {
		fx.t.Fatal(err)
	}
	return dir
}

func (fx *fixture) moduleInstalled(id, ver string) bool {
	_, err := os.Stat(filepath.Join(fx.layout.ModuleRoot, id, ver, descriptor.ModuleFileName))
	return err == nil
}

func (fx *fixture) assertStagingClean() {
	fx.t.Helper()
	entries, err := os.ReadDir(filepath.Join(fx.root, "staging"))
	if err != nil && !os.IsNotExist(err) {
		fx.t.Fatal(err)
	}
	if len(entries) != 0 {
		fx.t.Errorf("staging directory not cleaned up: %d entries", len(entries))
	}
}

func requested(installed []Installed) []string {
	var out []string
	for _, i := range installed {
		out = append(out, i.Candidate.String())
	}
	return out
}
