// Package sources opens the right [feed.Feed] adapter for a registered
// repository.
package sources

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/matzehuels/psresget/pkg/cache"
	perrors "github.com/matzehuels/psresget/pkg/errors"
	"github.com/matzehuels/psresget/pkg/feed"
	"github.com/matzehuels/psresget/pkg/feed/local"
	"github.com/matzehuels/psresget/pkg/feed/nuget"
)

// Options configures feeds opened by [Opener].
type Options struct {
	Cache      cache.Cache
	TTL        time.Duration
	Refresh    bool
	HTTPClient *http.Client
}

// Opener returns a function that opens repositories by URL scheme:
// http(s) URLs use the NuGet v2 adapter, file:// URLs and plain paths the
// local folder adapter. Any failure is REPOSITORY_UNAVAILABLE.
func Opener(opts Options) func(ctx context.Context, repo feed.Repository) (feed.Feed, error) {
	return func(ctx context.Context, repo feed.Repository) (feed.Feed, error) {
		return Open(ctx, repo, opts)
	}
}

// Open creates the feed adapter for repo.
func Open(ctx context.Context, repo feed.Repository, opts Options) (feed.Feed, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lower := strings.ToLower(repo.URL)
	var (
		f   feed.Feed
		err error
	)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		f, err = nuget.New(repo, nuget.Options{
			Cache:      opts.Cache,
			TTL:        opts.TTL,
			Refresh:    opts.Refresh,
			HTTPClient: opts.HTTPClient,
		})
	case strings.HasPrefix(lower, "file://"), !strings.Contains(lower, "://"):
		f, err = local.New(repo)
	default:
		return nil, perrors.New(perrors.ErrCodeRepositoryUnavailable, "unsupported repository URL scheme").
			WithRepository(repo.URL)
	}
	if err != nil {
		return nil, perrors.Wrap(perrors.ErrCodeRepositoryUnavailable, err, "open repository %s", repo.Name).
			WithRepository(repo.URL)
	}
	return f, nil
}
