package commands

import (
	"strings"
	"subplan-backend/internal/plan"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

type tokenRow struct {
	Name         string   `json:"name"`
	Expanded     []string `json:"expanded"`
	Pretty       string   `json:"pretty"`
	Subscription []string `json:"subscription"`
}

func tokenRows(names []string, isClass bool) []tokenRow {
	rows := make([]tokenRow, 0, len(names))
	for _, name := range names {
		expanded, pretty := plan.ExpandGroupName(name)
		if !isClass {
			expanded, pretty = nil, ""
		}
		rows = append(rows, tokenRow{
			Name:         name,
			Expanded:     expanded,
			Pretty:       pretty,
			Subscription: plan.SubscriptionTokens(name, isClass),
		})
	}
	return rows
}

var teacherNames bool

var tokensCmd = &cobra.Command{
	Use:   "tokens <group name>...",
	Short: "Shows which subscription tokens group headers expand into.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rows := tokenRows(args, !teacherNames)
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), rows)
		}

		t := newTable(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"Name", "Expanded", "Pretty", "Subscription"})
		for _, row := range rows {
			t.AppendRow(table.Row{
				row.Name,
				strings.Join(row.Expanded, ", "),
				row.Pretty,
				strings.Join(row.Subscription, ", "),
			})
		}
		t.Render()
		return nil
	},
}

func init() {
	tokensCmd.Flags().BoolVar(&teacherNames, "teachers", false, "Treat names as teacher abbreviations instead of classes.")
	rootCmd.AddCommand(tokensCmd)
}
