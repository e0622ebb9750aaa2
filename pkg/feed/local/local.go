// Package local implements [feed.Feed] over a directory of .nupkg files,
// the layout produced by "nuget add" or by copying packages onto a share.
// Packages may sit directly in the directory or one level down
// (<dir>/<id>/<file>.nupkg).
package local

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/matzehuels/psresget/pkg/feed"
	"github.com/matzehuels/psresget/pkg/version"
)

// Feed reads packages from a local directory.
type Feed struct {
	repo feed.Repository
	dir  string
}

// New creates a Feed for repo, whose URL is a directory path or a file:// URL.
func New(repo feed.Repository) (*Feed, error) {
	dir, err := Dir(repo.URL)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("local feed %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("local feed %s: not a directory", dir)
	}
	return &Feed{repo: repo, dir: dir}, nil
}

// Dir converts a repository URL into a directory path.
func Dir(raw string) (string, error) {
	if !strings.Contains(raw, "://") {
		return filepath.Clean(raw), nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "file" {
		return "", fmt.Errorf("local feed: unsupported URL %q", raw)
	}
	return filepath.FromSlash(u.Path), nil
}

// QueryVersions lists the versions of id found in the directory.
func (f *Feed) QueryVersions(ctx context.Context, id string, prerelease bool) ([]feed.Candidate, error) {
	all, err := f.scan(ctx, func(name string) bool {
		return strings.HasPrefix(strings.ToLower(name), strings.ToLower(id)+".")
	})
	if err != nil {
		return nil, err
	}

	var out []feed.Candidate
	for _, c := range all {
		if !strings.EqualFold(c.ID, id) {
			continue
		}
		if c.Version.IsPrerelease() && !prerelease {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// Search returns the latest version of every package whose id matches pattern.
func (f *Feed) Search(ctx context.Context, pattern string, prerelease bool) ([]feed.Candidate, error) {
	all, err := f.scan(ctx, func(string) bool { return true })
	if err != nil {
		return nil, err
	}

	byID := make(map[string][]feed.Candidate)
	var order []string
	lower := strings.ToLower(pattern)
	for _, c := range all {
		k := strings.ToLower(c.ID)
		if ok, _ := path.Match(lower, k); !ok {
			continue
		}
		if _, seen := byID[k]; !seen {
			order = append(order, k)
		}
		byID[k] = append(byID[k], c)
	}

	var out []feed.Candidate
	for _, k := range order {
		if best, err := version.Resolve(k, version.Any(), prerelease, byID[k]); err == nil {
			out = append(out, best)
		}
	}
	return out, nil
}

// Download extracts the candidate's archive into destDir.
func (f *Feed) Download(ctx context.Context, c feed.Candidate, destDir string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if c.DownloadURL == "" {
		return "", fmt.Errorf("%s: %w", c, feed.ErrNotFound)
	}
	if _, err := feed.ExtractNupkg(c.DownloadURL, destDir); err != nil {
		return "", fmt.Errorf("extract %s: %w", c, err)
	}
	return destDir, nil
}

// scan reads the manifest of every archive whose base name passes keep.
// Unreadable archives are skipped.
func (f *Feed) scan(ctx context.Context, keep func(name string) bool) ([]feed.Candidate, error) {
	top, err := filepath.Glob(filepath.Join(f.dir, "*.nupkg"))
	if err != nil {
		return nil, err
	}
	nested, err := filepath.Glob(filepath.Join(f.dir, "*", "*.nupkg"))
	if err != nil {
		return nil, err
	}

	var out []feed.Candidate
	for _, p := range append(top, nested...) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !keep(filepath.Base(p)) {
			continue
		}
		spec, err := feed.ReadNupkgManifest(p)
		if err != nil {
			continue
		}
		c, err := spec.Candidate()
		if err != nil {
			continue
		}
		c.Repository = f.repo.Source()
		c.DownloadURL = p
		out = append(out, c)
	}
	return out, nil
}

var (
	_ feed.Feed     = (*Feed)(nil)
	_ feed.Searcher = (*Feed)(nil)
)
