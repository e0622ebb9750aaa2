package cli

import (
	"strings"

	"github.com/spf13/cobra"

	perrors "github.com/matzehuels/psresget/pkg/errors"
	"github.com/matzehuels/psresget/pkg/install"
)

// findOpts holds the command-line flags for the find command.
type findOpts struct {
	version      string
	prerelease   bool
	repositories []string
	withDeps     bool
	refresh      bool
	noCache      bool
}

// findCommand creates the find command.
func (c *CLI) findCommand() *cobra.Command {
	var opts findOpts
	cmd := &cobra.Command{
		Use:   "find <name|pattern...>",
		Short: "Find packages in the registered repositories",
		Long: `Find resolves names without installing anything. Names may contain *
wildcards, which are searched in every repository that supports search.

Examples:
  psresget find Pester
  psresget find "Az.*" --version "[2.0,)"
  psresget find Az --include-dependencies`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := c.env(ctx, opts.noCache)
			if err != nil {
				return err
			}
			defer e.Close()

			repos, err := e.repositories(ctx, opts.repositories, "")
			if err != nil {
				return err
			}

			spinner := newSpinnerWithContext(ctx, "Searching repositories...")
			spinner.Start()
			found, missing, err := e.selector(opts.refresh).Find(ctx,
				install.Requests(args, opts.version, opts.prerelease), repos,
				install.FindOptions{Prerelease: opts.prerelease, IncludeDependencies: opts.withDeps})
			spinner.Stop()
			if err != nil {
				return err
			}

			for _, r := range missing {
				printWarning("No match for %s", r)
			}
			if len(found) == 0 {
				return perrors.New(perrors.ErrCodePackageNotFound, "no packages found")
			}

			rows := make([][]string, 0, len(found))
			for _, f := range found {
				rows = append(rows, []string{f.ID, f.Version.String(), f.Repository.Name, summarize(f.Description, 60)})
			}
			printTable(cmd.OutOrStdout(), []string{"Name", "Version", "Repository", "Description"}, rows)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.version, "version", "", "version or NuGet range (a bare version is exact)")
	cmd.Flags().BoolVar(&opts.prerelease, "prerelease", false, "consider prerelease versions")
	cmd.Flags().StringSliceVarP(&opts.repositories, "repository", "r", nil, "repositories to search (default: all by priority)")
	cmd.Flags().BoolVar(&opts.withDeps, "include-dependencies", false, "also list resolved dependencies")
	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "bypass cached feed listings")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable the feed metadata cache")
	c.registerRepositoryCompletion(cmd)
	return cmd
}

// summarize returns the first line of s cut to n runes.
func summarize(s string, n int) string {
	s, _, _ = strings.Cut(strings.TrimSpace(s), "\n")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
