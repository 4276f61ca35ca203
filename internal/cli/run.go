package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/ogulcanaydogan/opsalert/pkg/batch"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one evaluation and dispatch batch",
	Long: `Run every enabled rule once and dispatch the alerts created by this run.
Alerts left pending by earlier runs are not touched; use "dispatch --all-pending" for those.`,
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Bool("json", false, "Print the run report as JSON")
}

func runBatch(cmd *cobra.Command, _ []string) error {
	a, err := initApp()
	if err != nil {
		return err
	}
	defer a.Close()

	asJSON, _ := cmd.Flags().GetBool("json")

	report, err := a.runner.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("batch run: %w", err)
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printReport(os.Stdout, report)
	return nil
}

func printReport(out io.Writer, r *batch.RunReport) {
	fmt.Fprintf(out, "=== Batch run %s ===\n", r.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(out, "Duration: %s\n\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Created:\t%d\n", r.Created)
	fmt.Fprintf(w, "Selected:\t%d\n", r.Selected)
	fmt.Fprintf(w, "Sent:\t%d\n", r.Sent)
	fmt.Fprintf(w, "Failed:\t%d\n", r.Failed)
	w.Flush()

	printErrors(out, "Evaluator errors", r.EvaluatorErrors)
	printErrors(out, "Dispatch errors", r.DispatchErrors)
}

func printErrors(out io.Writer, title string, errs map[string]string) {
	if len(errs) == 0 {
		return
	}
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(out, "\n%s:\n", title)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s\t%s\n", k, errs[k])
	}
	w.Flush()
}
