package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/psresget/pkg/deps"
	"github.com/matzehuels/psresget/pkg/install"
)

// planCommand creates the plan command.
func (c *CLI) planCommand() *cobra.Command {
	var (
		opts installOpts
		dot  bool
		svg  string
	)
	cmd := &cobra.Command{
		Use:   "plan <name...>",
		Short: "Show what install would do without changing anything",
		Long: `Plan resolves names and their dependencies exactly like install and prints
the packages that would be installed, in install order.

Examples:
  psresget plan Az
  psresget plan Az --dot | dot -Tpng > az.png
  psresget plan Az --svg az.svg`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := c.env(ctx, opts.noCache)
			if err != nil {
				return err
			}
			defer e.Close()

			batches, err := opts.batches(e.cfg, args)
			if err != nil {
				return err
			}
			b := batches[0]
			repos, err := e.repositories(ctx, b.repos, "")
			if err != nil {
				return err
			}

			plans, missing, err := e.selector(opts.refresh).Plan(ctx, b.reqs, repos, b.opts)
			if err != nil {
				return err
			}

			g := deps.NewGraph()
			for _, p := range plans {
				for _, exp := range p.Expansions {
					g.Merge(exp.Graph)
				}
			}

			switch {
			case dot:
				fmt.Fprint(cmd.OutOrStdout(), deps.ToDOT(g))
			case svg != "":
				data, err := deps.RenderSVG(ctx, deps.ToDOT(g))
				if err != nil {
					return err
				}
				if err := os.WriteFile(svg, data, 0o644); err != nil {
					return fmt.Errorf("write %s: %w", svg, err)
				}
				printSuccess("Rendered %d packages", g.NodeCount())
				printFile(svg)
			default:
				printPlans(cmd, plans)
			}

			for _, r := range missing {
				printWarning("Not found in any repository: %s", r)
			}
			return nil
		},
	}
	opts.register(cmd)
	c.registerRepositoryCompletion(cmd)
	cmd.Flags().BoolVar(&dot, "dot", false, "print the dependency graph as Graphviz DOT")
	cmd.Flags().StringVar(&svg, "svg", "", "render the dependency graph to an SVG file")
	return cmd
}

func printPlans(cmd *cobra.Command, plans []*install.Plan) {
	if len(plans) == 0 {
		printInfo("Nothing to install")
		return
	}
	for _, p := range plans {
		for _, id := range p.AlreadyInstalled {
			printInfo("%s is already installed", id)
		}
		if p.Empty() {
			continue
		}
		printKeyValue("Repository", p.Repository.Name)
		rows := make([][]string, 0, len(p.Entries))
		for _, en := range p.Entries {
			reason := "dependency"
			if en.Request != nil {
				reason = "requested"
			}
			rows = append(rows, []string{en.Candidate.ID, en.Candidate.Version.String(), reason})
		}
		printTable(cmd.OutOrStdout(), []string{"Name", "Version", "Reason"}, rows)
	}
}
