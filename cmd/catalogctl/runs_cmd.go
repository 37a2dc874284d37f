package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"catalogadmin/internal/models"
	"catalogadmin/internal/store"
)

func newRunsCmd(a *app) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent import runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.connect()
			if err != nil {
				return err
			}
			runs, err := store.NewImportRunStore(db).Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(runs)
			}
			return printRuns(stdout, runs)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the runs as JSON")
	return cmd
}

func printRuns(w io.Writer, runs []models.ImportRun) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FINISHED\tSTATUS\tFILE\tIMPORTED\tUPDATED\tSKIPPED\tERRORS\tRUN")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			r.FinishedAt.Local().Format(time.DateTime), r.Status, r.Filename,
			r.Imported, r.Updated, r.Skipped, r.ErrorCount, r.ID)
	}
	return tw.Flush()
}
