package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/nsap/bidsbatch/internal/drivers"
	"github.com/nsap/bidsbatch/internal/manifest/table"
)

// newDriversCmd creates the 'drivers' command group.
func newDriversCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drivers",
		Short: "List and inspect the built-in drivers",
	}
	cmd.AddCommand(newDriversListCmd())
	cmd.AddCommand(newDriversShowCmd())
	return cmd
}

func newDriversListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the built-in drivers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			all, err := drivers.Builtins()
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(all))
			for _, d := range all {
				grouping := d.Grouping
				if grouping == "" {
					grouping = "subject"
				}
				sessions := strings.Join(d.Sessions, ",")
				if sessions == "" {
					sessions = "all"
				}
				rows = append(rows, []string{d.Name, grouping, sessions, d.Description})
			}
			return table.Render(cmd.OutOrStdout(), []string{"NAME", "GROUPING", "SESSIONS", "DESCRIPTION"}, rows, "")
		},
	}
}

func newDriversShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <driver>",
		Short: "Print a driver definition as YAML",
		Long: `Print the definition of a built-in driver. The output is a valid pipeline
file and a starting point for 'bidsbatch run --pipeline'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := drivers.Lookup(args[0])
			if err != nil {
				return err
			}
			data, err := drivers.Marshal(d)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
