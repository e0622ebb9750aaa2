package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/matzehuels/psresget/pkg/credential"
	perrors "github.com/matzehuels/psresget/pkg/errors"
	"github.com/matzehuels/psresget/pkg/feed"
)

// repoCommand creates the repository management command.
func (c *CLI) repoCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repo",
		Short: "Manage registered repositories",
	}

	cmd.AddCommand(c.repoListCommand())
	cmd.AddCommand(c.repoAddCommand())
	cmd.AddCommand(c.repoRemoveCommand())

	return cmd
}

// repoListCommand creates the "repo list" subcommand.
func (c *CLI) repoListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List repositories in fallback order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := c.loadConfig(ctx)
			if err != nil {
				return err
			}
			reg, err := feed.LoadRegistry(cfg.Repositories)
			if err != nil {
				return err
			}
			repos, err := reg.Ordered()
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(repos))
			for _, r := range repos {
				rows = append(rows, []string{r.Name, r.URL, trustMark(r.Trusted), strconv.Itoa(r.Priority)})
			}
			printTable(cmd.OutOrStdout(), []string{"Name", "URL", "Trusted", "Priority"}, rows)
			return nil
		},
	}
}

// repoAddCommand creates the "repo add" subcommand.
func (c *CLI) repoAddCommand() *cobra.Command {
	var (
		trusted  bool
		priority int
		cred     feed.Credential
	)
	cmd := &cobra.Command{
		Use:   "add <name> <url>",
		Short: "Register or replace a repository",
		Long: `Register a NuGet v2 feed (http or https URL) or a local folder of .nupkg
files (file:// URL or path). Credentials given here are stored separately
from the registry with owner-only permissions.

Examples:
  psresget repo add Internal https://nuget.example.com/api/v2 --priority 10
  psresget repo add Local ./packages --trusted`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := c.loadConfig(ctx)
			if err != nil {
				return err
			}
			reg, err := feed.LoadRegistry(cfg.Repositories)
			if err != nil {
				return err
			}

			repo := feed.Repository{Name: args[0], URL: args[1], Trusted: trusted, Priority: priority}
			if err := reg.Add(repo); err != nil {
				return err
			}
			if cred.Password != "" && cred.Username == "" {
				return perrors.New(perrors.ErrCodeInvalidInput, "--password requires --username")
			}
			if cred.Username != "" || cred.APIKey != "" {
				store, err := credential.NewFileStore(cfg.Credentials)
				if err != nil {
					return err
				}
				if err := store.Set(ctx, repo.Name, cred); err != nil {
					return err
				}
			}
			if err := reg.Save(cfg.Repositories); err != nil {
				return err
			}

			printSuccess("Registered %s", StyleHighlight.Render(repo.Name))
			printDetail("%s", repo.URL)
			return nil
		},
	}
	cmd.Flags().BoolVar(&trusted, "trusted", false, "install without the untrusted repository prompt")
	cmd.Flags().IntVar(&priority, "priority", 50, "lower values are tried first")
	cmd.Flags().StringVar(&cred.Username, "username", "", "username for basic authentication")
	cmd.Flags().StringVar(&cred.Password, "password", "", "password for basic authentication")
	cmd.Flags().StringVar(&cred.APIKey, "api-key", "", "NuGet API key")
	return cmd
}

// repoRemoveCommand creates the "repo remove" subcommand.
func (c *CLI) repoRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "remove <name>",
		Short:             "Unregister a repository and delete its stored credential",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: c.completeRepositoryArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := c.loadConfig(ctx)
			if err != nil {
				return err
			}
			reg, err := feed.LoadRegistry(cfg.Repositories)
			if err != nil {
				return err
			}
			if !reg.Remove(args[0]) {
				return perrors.New(perrors.ErrCodeInvalidInput, "unknown repository %q", args[0]).WithRepository(args[0])
			}
			if err := reg.Save(cfg.Repositories); err != nil {
				return err
			}
			store, err := credential.NewFileStore(cfg.Credentials)
			if err != nil {
				return err
			}
			if err := store.Delete(ctx, args[0]); err != nil {
				return err
			}
			printSuccess("Removed %s", args[0])
			return nil
		},
	}
}
