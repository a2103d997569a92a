package cmd

import (
	"context"
	"fmt"
	"sort"

	"github.com/gookit/color"
	"github.com/spf13/cobra"
)

var regionsCmd = &cobra.Command{
	Use:   "regions [region]",
	Short: "List regions or health-check one",
	Long: `Regions lists the configured regions and their connection state.
With a region argument it connects to that region and runs a health
check, reporting row counts for the managed tables.

Examples:
  logops regions
  logops regions US`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRegions,
}

func init() {
	rootCmd.AddCommand(regionsCmd)
}

func runRegions(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()

	if len(args) == 0 {
		status := a.regions.ConnectionStatus(ctx)
		rows := make([][]string, 0, len(status))
		for _, name := range a.regions.AvailableRegions(ctx) {
			state := "disconnected"
			if status[name] {
				state = "connected"
			}
			rows = append(rows, []string{name, state})
		}
		renderTable(out, []string{"Region", "State"}, rows)
		return nil
	}

	name := args[0]
	if !a.regions.IsValid(ctx, name) {
		return fmt.Errorf("unknown region %q", name)
	}

	if err := a.regions.Connect(ctx, name); err != nil {
		return fmt.Errorf("could not connect to %s: %w", name, err)
	}

	report, err := a.regions.TestConnection(ctx, name)
	if err != nil {
		color.Fprintf(out, "<red>%s</>\n", report.Message)
		return err
	}

	color.Fprintf(out, "<green>%s</>\n", report.Message)
	rows := make([][]string, 0, len(report.TableCounts))
	for _, table := range sortedKeys(report.TableCounts) {
		rows = append(rows, []string{table, fmt.Sprintf("%d", report.TableCounts[table])})
	}
	renderTable(out, []string{"Table", "Rows"}, rows)
	return nil
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
