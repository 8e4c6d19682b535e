package commands

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	devenv "subplan-backend/dev/env"
	"subplan-backend/internal/components/db"
	"subplan-backend/internal/plan"
	"subplan-backend/pkg/migrations"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var stateFlags struct {
	database migrations.Database
	plan     string
	limit    int64
}

func init() {
	flags := stateCmd.Flags()
	flags.StringVar(&stateFlags.database.File, "db", "<dev_state>/subplan.db", "Path to the server database.")
	flags.StringVar(&stateFlags.database.Url, "url", "", "Url of a libsql server, takes precedence over --db.")
	flags.StringVar(&stateFlags.database.AuthToken, "auth-token", "", "Auth token of the libsql server.")
	flags.StringVar(&stateFlags.plan, "plan", "", "Only show this plan.")
	flags.Int64Var(&stateFlags.limit, "limit", 10, "Number of crawl log rows shown per plan.")
	rootCmd.AddCommand(stateCmd)
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Prints persisted plan states and their recent crawl log.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		config := stateFlags.database
		path, err := devenv.ResolvePath(config.File)
		if err != nil {
			return err
		}
		config.File = path

		database, err := migrations.OpenAndMigrateDB(cmd.Context(), config, db.Schema)
		if err != nil {
			return err
		}
		defer database.Close()
		return printState(cmd.Context(), cmd.OutOrStdout(), database, stateFlags.plan, stateFlags.limit)
	},
}

type planStateRow struct {
	Name      string        `json:"name"`
	Status    string        `json:"status"`
	ETag      string        `json:"etag"`
	UpdatedAt time.Time     `json:"updated_at"`
	Days      []string      `json:"days"`
	Decoded   bool          `json:"decoded"`
	Crawls    []db.CrawlLog `json:"crawls"`
}

func loadState(ctx context.Context, qry *db.Queries, only string, limit int64) ([]planStateRow, error) {
	states, err := qry.ListPlanStates(ctx)
	if err != nil {
		return nil, err
	}

	var rows []planStateRow
	for _, state := range states {
		if only != "" && state.Name != only {
			continue
		}
		row := planStateRow{
			Name:      state.Name,
			Status:    state.Status,
			ETag:      state.Etag,
			UpdatedAt: time.Unix(state.UpdatedAt, 0),
		}
		if len(state.Snapshot) > 0 {
			snapshot, err := plan.Decode(state.Snapshot)
			if err == nil {
				row.Decoded = true
				for _, day := range snapshot.Days() {
					row.Days = append(row.Days, day.Key())
				}
			}
		}
		row.Crawls, err = qry.ListRecentCrawls(ctx, db.ListRecentCrawlsParams{
			Plan:  state.Name,
			Limit: limit,
		})
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func printState(ctx context.Context, out io.Writer, database *sql.DB, only string, limit int64) error {
	rows, err := loadState(ctx, db.New(database), only, limit)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(out, rows)
	}

	states := newTable(out)
	states.AppendHeader(table.Row{"Plan", "Status", "Updated", "Days"})
	for _, row := range rows {
		days := joinTokens(row.Days)
		if !row.Decoded {
			days = "(no snapshot)"
		}
		states.AppendRow(table.Row{row.Name, row.Status, row.UpdatedAt.Format(time.DateTime), days})
	}
	states.Render()

	for _, row := range rows {
		fmt.Fprintf(out, "\n%s\n", row.Name)
		crawls := newTable(out)
		crawls.AppendHeader(table.Row{"Started", "Took", "Changed", "Pages", "Affected days", "Error"})
		for _, c := range row.Crawls {
			crawls.AppendRow(table.Row{
				time.Unix(c.StartedAt, 0).Format(time.DateTime),
				time.Duration(c.DurationMs) * time.Millisecond,
				c.Changed,
				c.Pages,
				c.AffectedDays,
				c.Error.String,
			})
		}
		crawls.Render()
	}
	return nil
}
