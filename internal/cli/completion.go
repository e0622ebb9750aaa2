package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/psresget/pkg/feed"
)

// completionCommand creates the completion command for generating shell completions.
func (c *CLI) completionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [powershell|bash|zsh|fish]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for psresget. Repository names are
completed from the registry for --repository and "repo remove".

PowerShell:
  PS> psresget completion powershell | Out-String | Invoke-Expression

  # To load completions for every new session, add the line above to $PROFILE.

Bash:
  $ source <(psresget completion bash)
  $ psresget completion bash > /etc/bash_completion.d/psresget

Zsh:
  $ psresget completion zsh > "${fpath[1]}/_psresget"

Fish:
  $ psresget completion fish > ~/.config/fish/completions/psresget.fish
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"powershell", "bash", "zsh", "fish"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			switch args[0] {
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(w)
			case "bash":
				return cmd.Root().GenBashCompletionV2(w, true)
			case "zsh":
				return cmd.Root().GenZshCompletion(w)
			case "fish":
				return cmd.Root().GenFishCompletion(w, true)
			}
			return nil
		},
	}

	return cmd
}

// completeRepositories completes registered repository names. Registry or
// config errors yield no suggestions rather than a broken completion.
func (c *CLI) completeRepositories(cmd *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := c.loadConfig(ctx)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	reg, err := feed.LoadRegistry(cfg.Repositories)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	repos, err := reg.Ordered()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	var names []string
	for _, r := range repos {
		if strings.HasPrefix(strings.ToLower(r.Name), strings.ToLower(toComplete)) {
			names = append(names, r.Name)
		}
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}

// completeRepositoryArg completes a single repository name argument.
func (c *CLI) completeRepositoryArg(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return c.completeRepositories(cmd, args, toComplete)
}

// registerRepositoryCompletion wires completeRepositories to cmd's
// --repository flag.
func (c *CLI) registerRepositoryCompletion(cmd *cobra.Command) {
	_ = cmd.RegisterFlagCompletionFunc("repository", c.completeRepositories)
}
