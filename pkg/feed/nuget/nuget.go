// Package nuget implements [feed.Feed] for NuGet v2 OData feeds such as the
// PowerShell Gallery.
//
// Endpoints used:
//
//	GET {base}/FindPackagesById()?id='Foo'          all versions of Foo
//	GET {base}/Search()?searchTerm='Az'&...         pattern expansion
//	GET {base}/package/{id}/{version}               .nupkg payload
//
// Result pages are followed through their rel="next" link.
package nuget

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/matzehuels/psresget/pkg/buildinfo"
	"github.com/matzehuels/psresget/pkg/cache"
	"github.com/matzehuels/psresget/pkg/feed"
	"github.com/matzehuels/psresget/pkg/httputil"
)

// maxPages bounds pagination against feeds that loop their next links.
const maxPages = 200

// Options configures [New].
type Options struct {
	// Cache stores version listings. Nil disables caching.
	Cache cache.Cache

	// TTL is the lifetime of cached listings.
	TTL time.Duration

	// Refresh bypasses cached listings (still updating them).
	Refresh bool

	// HTTPClient overrides the default HTTP client.
	HTTPClient *http.Client
}

// Feed talks to one NuGet v2 repository.
type Feed struct {
	repo    feed.Repository
	base    string
	client  *httputil.Client
	refresh bool
}

// New creates a Feed for repo. The repository URL must be http or https.
func New(repo feed.Repository, opts Options) (*Feed, error) {
	u, err := url.Parse(repo.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("nuget: invalid feed URL %q", repo.URL)
	}

	headers := map[string]string{
		"User-Agent": buildinfo.UserAgent(),
		"Accept":     "application/atom+xml,application/xml",
	}
	hopts := httputil.Options{
		TTL:        opts.TTL,
		Headers:    headers,
		HTTPClient: opts.HTTPClient,
	}
	base := strings.TrimRight(repo.URL, "/")
	if opts.Cache != nil {
		hopts.Cache = cache.NewNamespaced(opts.Cache, cache.Namespace("nuget", base))
	}
	if cred := repo.Credential; cred != nil {
		hopts.Username, hopts.Password = cred.Username, cred.Password
		if cred.APIKey != "" {
			headers["X-NuGet-ApiKey"] = cred.APIKey
		}
	}

	return &Feed{
		repo:    repo,
		base:    base,
		client:  httputil.NewClient(hopts),
		refresh: opts.Refresh,
	}, nil
}

// QueryVersions lists every version of id. Prerelease versions are dropped
// unless prerelease is set.
func (f *Feed) QueryVersions(ctx context.Context, id string, prerelease bool) ([]feed.Candidate, error) {
	query := url.Values{}
	query.Set("id", "'"+id+"'")
	query.Set("semVerLevel", "2.0.0")
	start := f.base + "/FindPackagesById()?" + query.Encode()

	var all []feed.Candidate
	key := cache.Key("versions", strings.ToLower(id))
	err := f.client.Cached(ctx, key, f.refresh, &all, func() error {
		var err error
		all, err = f.collect(ctx, start)
		return err
	})
	if errors.Is(err, httputil.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", id, feed.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", id, err)
	}

	out := make([]feed.Candidate, 0, len(all))
	for _, c := range all {
		// FindPackagesById matches ids case-insensitively but some servers
		// answer with unrelated entries on malformed ids.
		if !strings.EqualFold(c.ID, id) {
			continue
		}
		if c.Version.IsPrerelease() && !prerelease {
			continue
		}
		c.Repository = f.repo.Source()
		out = append(out, c)
	}
	return out, nil
}

// Search expands a name pattern through the feed's Search() endpoint and
// returns the latest version of each matching id.
func (f *Feed) Search(ctx context.Context, pattern string, prerelease bool) ([]feed.Candidate, error) {
	term := strings.Trim(strings.ReplaceAll(pattern, "*", " "), " ")
	query := url.Values{}
	query.Set("searchTerm", "'"+term+"'")
	query.Set("targetFramework", "''")
	query.Set("includePrerelease", fmt.Sprint(prerelease))
	if prerelease {
		query.Set("$filter", "IsAbsoluteLatestVersion")
	} else {
		query.Set("$filter", "IsLatestVersion")
	}
	query.Set("semVerLevel", "2.0.0")

	found, err := f.collect(ctx, f.base+"/Search()?"+query.Encode())
	if err != nil && !errors.Is(err, httputil.ErrNotFound) {
		return nil, fmt.Errorf("search %s: %w", pattern, err)
	}

	lower := strings.ToLower(pattern)
	latest := make(map[string]int)
	var out []feed.Candidate
	for _, c := range found {
		if ok, _ := path.Match(lower, strings.ToLower(c.ID)); !ok {
			continue
		}
		if c.Version.IsPrerelease() && !prerelease {
			continue
		}
		c.Repository = f.repo.Source()
		k := strings.ToLower(c.ID)
		if i, seen := latest[k]; seen {
			if c.Version.Compare(out[i].Version) > 0 {
				out[i] = c
			}
			continue
		}
		latest[k] = len(out)
		out = append(out, c)
	}
	return out, nil
}

// Download fetches the .nupkg for c and extracts it into destDir.
func (f *Feed) Download(ctx context.Context, c feed.Candidate, destDir string) (string, error) {
	src := c.DownloadURL
	if src == "" {
		src = fmt.Sprintf("%s/package/%s/%s", f.base, url.PathEscape(c.ID), url.PathEscape(c.Version.Original()))
	}

	archive := filepath.Join(filepath.Dir(destDir), fmt.Sprintf(".%s.%s.nupkg", c.ID, c.Version))
	if err := f.client.Download(ctx, src, archive); err != nil {
		return "", fmt.Errorf("download %s: %w", c, err)
	}
	defer os.Remove(archive)

	if _, err := feed.ExtractNupkg(archive, destDir); err != nil {
		return "", fmt.Errorf("extract %s: %w", c, err)
	}
	return destDir, nil
}

// collect walks the paged Atom feed starting at start.
func (f *Feed) collect(ctx context.Context, start string) ([]feed.Candidate, error) {
	var out []feed.Candidate
	next := start
	for page := 0; next != "" && page < maxPages; page++ {
		var doc atomFeed
		if err := f.client.GetXML(ctx, next, &doc); err != nil {
			return nil, err
		}
		for _, e := range doc.Entries {
			if c, ok := e.candidate(f.repo.Source()); ok {
				out = append(out, c)
			}
		}
		next = doc.next()
	}
	return out, nil
}

var (
	_ feed.Feed     = (*Feed)(nil)
	_ feed.Searcher = (*Feed)(nil)
)
