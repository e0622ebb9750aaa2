package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/psresget/internal/config"
	"github.com/matzehuels/psresget/pkg/inventory"
)

// listCommand creates the list command.
func (c *CLI) listCommand() *cobra.Command {
	var scope string
	cmd := &cobra.Command{
		Use:   "list [name...]",
		Short: "List installed modules and scripts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			if scope == "" {
				scope = cfg.Scope
			}
			s, err := config.ParseScope(scope)
			if err != nil {
				return err
			}

			inv, err := inventory.Load(cfg.Layout(s))
			if err != nil {
				return err
			}

			var rows [][]string
			for _, e := range inv.Entries() {
				if !matchesAny(e.ID, args) {
					continue
				}
				versions := make([]string, len(e.Versions))
				for i, v := range e.Versions {
					versions[len(e.Versions)-1-i] = v.String()
				}
				rows = append(rows, []string{e.ID, string(e.Kind), strings.Join(versions, ", ")})
			}
			if len(rows) == 0 {
				printInfo("No packages installed")
				return nil
			}
			printTable(cmd.OutOrStdout(), []string{"Name", "Type", "Versions"}, rows)
			return nil
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "", "CurrentUser or AllUsers (default from config)")
	return cmd
}

// matchesAny reports whether id equals one of names, ignoring case. No names
// matches everything.
func matchesAny(id string, names []string) bool {
	if len(names) == 0 {
		return true
	}
	for _, n := range names {
		if strings.EqualFold(id, n) {
			return true
		}
	}
	return false
}
