package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	perrors "github.com/matzehuels/psresget/pkg/errors"
	"github.com/matzehuels/psresget/pkg/feed"
	"github.com/matzehuels/psresget/pkg/feed/feedtest"
	"github.com/matzehuels/psresget/pkg/host"
)

type harness struct {
	dir     string
	feedDir string
	host    *host.Recorder
}

// newHarness isolates every config, cache and data directory under a temp
// dir and writes a local feed with Tool depending on Helper.
func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv("PSModulePath", "")
	t.Setenv("PSRESGET_CACHE_BACKEND", "none")
	t.Setenv("PSRESGET_PATHS_ALL_USERS_MODULES", filepath.Join(dir, "allusers", "Modules"))
	t.Setenv("PSRESGET_PATHS_ALL_USERS_SCRIPTS", filepath.Join(dir, "allusers", "Scripts"))

	feedDir := filepath.Join(dir, "feed")
	for _, c := range []feed.Candidate{
		feedtest.Module("Helper", "1.0.0"),
		feedtest.Module("Tool", "1.0.0", "Helper@1.0"),
		feedtest.Module("Tool", "2.0.0", "Helper@1.0"),
	} {
		if _, err := feedtest.WriteNupkg(feedDir, c, feedtest.DefaultFiles(c)); err != nil {
			t.Fatalf("WriteNupkg: %v", err)
		}
	}
	return &harness{dir: dir, feedDir: feedDir, host: &host.Recorder{Default: host.No}}
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	c := New(io.Discard, LogInfo)
	c.Host = h.host
	root := c.RootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (h *harness) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := h.run(t, args...)
	if err != nil {
		t.Fatalf("%s: %v", strings.Join(args, " "), err)
	}
	return out
}

// useLocalFeed replaces the default gallery with the local feed.
func (h *harness) useLocalFeed(t *testing.T, trusted bool) {
	t.Helper()
	h.mustRun(t, "repo", "remove", "PSGallery")
	args := []string{"repo", "add", "Local", h.feedDir}
	if trusted {
		args = append(args, "--trusted")
	}
	h.mustRun(t, args...)
}

func (h *harness) moduleRoot() string {
	return filepath.Join(h.dir, "data", "powershell", "Modules")
}

func TestRepoCommands(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun(t, "repo", "list")
	if !strings.Contains(out, "PSGallery") {
		t.Errorf("repo list without registry = %q, want PSGallery", out)
	}

	h.mustRun(t, "repo", "add", "Internal", "https://nuget.example.com/api/v2", "--priority", "10", "--api-key", "k3y")
	credFile := filepath.Join(h.dir, "config", "psresget", "credentials", "internal.json")
	if _, err := os.Stat(credFile); err != nil {
		t.Errorf("credential not stored: %v", err)
	}
	out = h.mustRun(t, "repo", "list")
	if i, j := strings.Index(out, "Internal"), strings.Index(out, "PSGallery"); i < 0 || j < 0 || i > j {
		t.Errorf("repo list = %q, want Internal before PSGallery", out)
	}

	h.mustRun(t, "repo", "remove", "internal")
	if _, err := os.Stat(credFile); !os.IsNotExist(err) {
		t.Errorf("credential left behind: %v", err)
	}

	_, err := h.run(t, "repo", "remove", "Internal")
	if !perrors.Is(err, perrors.ErrCodeInvalidInput) {
		t.Errorf("remove unknown = %v, want INVALID_INPUT", err)
	}
	_, err = h.run(t, "repo", "add", "Bad", "ftp://example.com")
	if !perrors.Is(err, perrors.ErrCodeInvalidInput) {
		t.Errorf("add ftp = %v, want INVALID_INPUT", err)
	}
}

func TestInstallAndList(t *testing.T) {
	h := newHarness(t)
	h.useLocalFeed(t, true)

	h.mustRun(t, "install", "Tool")
	for _, p := range []string{
		filepath.Join(h.moduleRoot(), "Tool", "2.0.0", "PSGetModuleInfo.xml"),
		filepath.Join(h.moduleRoot(), "Helper", "1.0.0", "PSGetModuleInfo.xml"),
	} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("missing %s: %v", p, err)
		}
	}

	out := h.mustRun(t, "list")
	if !strings.Contains(out, "Tool") || !strings.Contains(out, "2.0.0") || !strings.Contains(out, "Helper") {
		t.Errorf("list = %q", out)
	}
	out = h.mustRun(t, "list", "helper")
	if strings.Contains(out, "Tool") {
		t.Errorf("list helper = %q, want only Helper", out)
	}

	// Second run finds everything installed.
	h.mustRun(t, "install", "Tool")
	if len(h.host.Prompts()) != 0 {
		t.Errorf("prompts = %v, want none for a trusted repository", h.host.Prompts())
	}
}

func TestInstallExactVersion(t *testing.T) {
	h := newHarness(t)
	h.useLocalFeed(t, true)

	h.mustRun(t, "install", "Tool", "--version", "1.0.0")
	if _, err := os.Stat(filepath.Join(h.moduleRoot(), "Tool", "1.0.0")); err != nil {
		t.Errorf("Tool 1.0.0 not installed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(h.moduleRoot(), "Tool", "2.0.0")); !os.IsNotExist(err) {
		t.Errorf("Tool 2.0.0 installed for an exact request")
	}

	h.mustRun(t, "update", "Tool")
	if _, err := os.Stat(filepath.Join(h.moduleRoot(), "Tool", "2.0.0")); err != nil {
		t.Errorf("update did not install Tool 2.0.0: %v", err)
	}
}

func TestInstallErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want perrors.Code
	}{
		{"not found", []string{"install", "Missing"}, perrors.ErrCodePackageNotFound},
		{"update not installed", []string{"update", "Tool"}, perrors.ErrCodeModuleNotInstalledForUpdate},
		{"bad range", []string{"install", "Tool", "--version", "[1.0"}, perrors.ErrCodeConstraintParse},
		{"bad scope", []string{"install", "Tool", "--scope", "Machine"}, perrors.ErrCodeInvalidInput},
		{"no names", []string{"install"}, perrors.ErrCodeInvalidInput},
		{"unknown repository", []string{"install", "Tool", "-r", "Nope"}, perrors.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.useLocalFeed(t, true)
			_, err := h.run(t, tt.args...)
			if !perrors.Is(err, tt.want) {
				t.Errorf("%v = %v, want %s", tt.args, err, tt.want)
			}
		})
	}
}

func TestInstallUntrustedDeclined(t *testing.T) {
	h := newHarness(t)
	h.useLocalFeed(t, false)

	_, err := h.run(t, "install", "Tool")
	if !perrors.Is(err, perrors.ErrCodePackageNotFound) {
		t.Fatalf("install = %v, want PACKAGE_NOT_FOUND", err)
	}
	if got := len(h.host.Prompts()); got != 1 {
		t.Errorf("prompts = %d, want 1", got)
	}
	if _, err := os.Stat(filepath.Join(h.moduleRoot(), "Tool")); !os.IsNotExist(err) {
		t.Errorf("Tool installed from a declined repository")
	}

	h.mustRun(t, "install", "Tool", "--trust-repository")
	if _, err := os.Stat(filepath.Join(h.moduleRoot(), "Tool", "2.0.0")); err != nil {
		t.Errorf("Tool not installed with --trust-repository: %v", err)
	}
}

func TestInstallManifest(t *testing.T) {
	h := newHarness(t)
	h.useLocalFeed(t, true)

	path := filepath.Join(h.dir, "requirements.yaml")
	content := "Tool: \"1.0.0\"\nHelper:\n  version: \"[1.0,2.0)\"\n  repository: Local\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	h.mustRun(t, "install", "--manifest", path)
	if _, err := os.Stat(filepath.Join(h.moduleRoot(), "Tool", "1.0.0")); err != nil {
		t.Errorf("Tool 1.0.0 not installed: %v", err)
	}

	_, err := h.run(t, "install", "Tool", "--manifest", path)
	if !perrors.Is(err, perrors.ErrCodeInvalidInput) {
		t.Errorf("names with --manifest = %v, want INVALID_INPUT", err)
	}
}

func TestPlanDOT(t *testing.T) {
	h := newHarness(t)
	h.useLocalFeed(t, true)

	out := h.mustRun(t, "plan", "Tool", "--dot")
	if !strings.Contains(out, `"Tool" -> "Helper" [label="1.0"]`) {
		t.Errorf("plan --dot = %q", out)
	}

	out = h.mustRun(t, "plan", "Tool")
	if !strings.Contains(out, "Helper") || !strings.Contains(out, "requested") {
		t.Errorf("plan = %q", out)
	}
	if _, err := os.Stat(filepath.Join(h.moduleRoot(), "Tool")); !os.IsNotExist(err) {
		t.Errorf("plan modified the store")
	}
}

func TestFind(t *testing.T) {
	h := newHarness(t)
	h.useLocalFeed(t, true)

	out := h.mustRun(t, "find", "T*")
	if !strings.Contains(out, "Tool") || !strings.Contains(out, "2.0.0") {
		t.Errorf("find T* = %q", out)
	}

	out = h.mustRun(t, "find", "Tool", "--include-dependencies")
	if !strings.Contains(out, "Helper") {
		t.Errorf("find --include-dependencies = %q", out)
	}

	_, err := h.run(t, "find", "Missing")
	if !perrors.Is(err, perrors.ErrCodePackageNotFound) {
		t.Errorf("find Missing = %v, want PACKAGE_NOT_FOUND", err)
	}
}

func TestCachePath(t *testing.T) {
	h := newHarness(t)
	t.Setenv("PSRESGET_CACHE_BACKEND", "file")

	out := h.mustRun(t, "cache", "path")
	if want := filepath.Join(h.dir, "cache", "psresget"); strings.TrimSpace(out) != want {
		t.Errorf("cache path = %q, want %q", out, want)
	}
	h.mustRun(t, "cache", "clear")
}

func TestConfigFlag(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "--config", filepath.Join(h.dir, "missing.toml"), "list")
	if err == nil {
		t.Error("list with a missing --config file succeeded")
	}
}

func TestCompletion(t *testing.T) {
	h := newHarness(t)
	h.useLocalFeed(t, true)
	h.mustRun(t, "repo", "add", "Internal", "https://nuget.example.com/api/v2")

	tests := []struct {
		name string
		args []string
		want []string
		not  []string
	}{
		{"repository flag", []string{"__complete", "install", "-r", ""}, []string{"Local", "Internal"}, nil},
		{"prefix", []string{"__complete", "find", "--repository", "loc"}, []string{"Local"}, []string{"Internal"}},
		{"repo remove", []string{"__complete", "repo", "remove", "I"}, []string{"Internal"}, []string{"Local"}},
		{"repo remove second arg", []string{"__complete", "repo", "remove", "Local", ""}, nil, []string{"Local", "Internal"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := h.mustRun(t, tt.args...)
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("completion %q missing %q", out, w)
				}
			}
			for _, n := range tt.not {
				if strings.Contains(out, n) {
					t.Errorf("completion %q should not contain %q", out, n)
				}
			}
		})
	}

	out := h.mustRun(t, "completion", "powershell")
	if !strings.Contains(out, "Register-ArgumentCompleter") {
		t.Errorf("powershell completion script missing Register-ArgumentCompleter")
	}
}
