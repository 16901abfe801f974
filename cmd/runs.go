package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/statement-flow/internal/blob"
	"github.com/sells-group/statement-flow/internal/export"
	"github.com/sells-group/statement-flow/internal/model"
	"github.com/sells-group/statement-flow/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect statement run history",
	Long:  "Commands for listing, viewing, exporting, and deleting pipeline runs.",
}

// openHistory validates store config and opens the migrated store.
func openHistory(cmd *cobra.Command) (store.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}
	return openStore(cmd.Context())
}

// optionalBlobs returns the blob store, or nil when it cannot be built.
func optionalBlobs() blob.Store {
	b, err := initBlobs()
	if err != nil {
		return nil
	}
	return b
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pipeline runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openHistory(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		runs, err := st.ListRuns(cmd.Context(), store.RunFilter{
			Status: model.RunStatus(status),
			Limit:  limit,
			Offset: offset,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "No runs found.")
			return nil
		}

		formatRunsList(cmd.OutOrStdout(), runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the formatted result of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openHistory(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}
		if run == nil {
			return eris.Errorf("run %s not found", args[0])
		}

		resp, err := storedResponse(ctx, st, optionalBlobs(), run)
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("output")
		return writeResponse(cmd.OutOrStdout(), resp, format)
	},
}

// -- runs export --

var runsExportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Export a run's flows and verification to an XLSX workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openHistory(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs export")
		}
		if run == nil {
			return eris.Errorf("run %s not found", args[0])
		}

		res, ver, err := loadResult(ctx, st, run)
		if err != nil {
			return err
		}

		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			out = fmt.Sprintf("run-%s.xlsx", run.ID)
		}
		f, err := os.Create(out)
		if err != nil {
			return eris.Wrapf(err, "create %s", out)
		}

		if err := export.WriteXLSX(f, export.RunData{Run: *run, Flows: res.Flows, Verification: ver}); err != nil {
			f.Close() //nolint:errcheck
			return err
		}
		if err := f.Close(); err != nil {
			return eris.Wrapf(err, "close %s", out)
		}

		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", out)
		return nil
	},
}

// -- runs delete --

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <run-id>",
	Short: "Delete a finished run, its flows, verifications, and blobs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openHistory(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs delete")
		}
		if run == nil {
			return eris.Errorf("run %s not found", args[0])
		}
		if !run.Status.Terminal() {
			return eris.Errorf("run %s is still %s", run.ID, run.Status)
		}

		if err := purgeRun(ctx, st, optionalBlobs(), run); err != nil {
			return eris.Wrap(err, "runs delete")
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Deleted run %s\n", run.ID)
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (pending, processing, completed, failed)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")
	runsListCmd.Flags().Int("offset", 0, "number of runs to skip")

	runsShowCmd.Flags().StringP("output", "o", "json", "output format: json, yaml, text")

	runsExportCmd.Flags().String("out", "", "output path (default run-<id>.xlsx)")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsExportCmd)
	runsCmd.AddCommand(runsDeleteCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tRETRIES\tSTARTED\tDURATION\tERROR")
	for _, r := range runs {
		dur := "-"
		if r.Status.Terminal() {
			dur = r.UpdatedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		errMsg := "-"
		if r.Error != nil {
			errMsg = fmt.Sprintf("%s at %s", r.Error.Code, r.Error.Stage)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
			r.ID, r.Status, r.Retries, r.StartedAt.Format(time.DateTime), dur, errMsg)
	}
	_ = w.Flush()
}
