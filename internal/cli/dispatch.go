package cli

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch [alert-id...]",
	Short: "Deliver stored alerts to their webhooks",
	Long: `Deliver the given alerts, or every pending alert with --all-pending.
Alerts that were already sent are reported and skipped.`,
	RunE: runDispatch,
}

func init() {
	rootCmd.AddCommand(dispatchCmd)
	dispatchCmd.Flags().Bool("all-pending", false, "Dispatch every pending alert, oldest first")
}

func runDispatch(cmd *cobra.Command, args []string) error {
	allPending, _ := cmd.Flags().GetBool("all-pending")
	if allPending == (len(args) > 0) {
		return errors.New("pass alert ids or --all-pending, not both")
	}

	a, err := initApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if allPending {
		res, err := a.dispatcher.DispatchPending(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Attempted: %d  Sent: %d  Failed: %d  Skipped: %d\n",
			res.Attempted, res.Sent, res.Failed, res.Skipped)
		printErrors(os.Stdout, "Errors", res.Errors)
		if res.Failed > 0 {
			return fmt.Errorf("%d alert(s) failed", res.Failed)
		}
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tSTATUS\tDETAIL\n")
	failed := 0
	for _, id := range args {
		alert, err := a.dispatcher.Dispatch(cmd.Context(), id)
		status := "-"
		if alert != nil {
			status = string(alert.Status)
		}
		detail := "ok"
		if err != nil {
			failed++
			detail = err.Error()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", id, status, detail)
	}
	w.Flush()

	if failed > 0 {
		return fmt.Errorf("%d of %d alert(s) not delivered", failed, len(args))
	}
	return nil
}
