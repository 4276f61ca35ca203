package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/ogulcanaydogan/opsalert/pkg/model"
	"github.com/spf13/cobra"
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Inspect stored alerts",
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List alerts, newest first",
	RunE:  runAlertsList,
}

func init() {
	rootCmd.AddCommand(alertsCmd)
	alertsCmd.AddCommand(alertsListCmd)

	alertsListCmd.Flags().StringP("status", "s", "", "Filter by status (pending, sent, failed)")
	alertsListCmd.Flags().StringP("type", "t", "", "Filter by alert type")
	alertsListCmd.Flags().IntP("limit", "n", 50, "Maximum number of alerts (0 for all)")
}

func runAlertsList(cmd *cobra.Command, _ []string) error {
	status, _ := cmd.Flags().GetString("status")
	alertType, _ := cmd.Flags().GetString("type")
	limit, _ := cmd.Flags().GetInt("limit")

	filter := model.AlertFilter{
		Status: model.Status(status),
		Type:   model.AlertType(alertType),
		Limit:  limit,
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return fmt.Errorf("invalid status %q", status)
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return fmt.Errorf("invalid alert type %q", alertType)
	}

	a, err := initApp()
	if err != nil {
		return err
	}
	defer a.Close()

	list, err := a.store.ListAlerts(cmd.Context(), filter)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No alerts found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tTYPE\tSTATUS\tCREATED\tSENT\tTITLE\n")
	for _, al := range list {
		sent := "-"
		if al.SentAt != nil {
			sent = al.SentAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			al.ID, al.Type, al.Status, al.CreatedAt.Format(time.RFC3339), sent, al.Title)
	}
	w.Flush()
	return nil
}
