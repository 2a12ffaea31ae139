package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func escalateCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "escalate",
		Short: "Run one approval SLA sweep and print escalated levels",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(true)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.svc.Approval.CheckAndEscalateOverdueApprovals(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}

			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Request", "MO", "Level", "Role", "SLA Due", "Overdue (h)"})
			for _, e := range report.Escalated {
				tw.AppendRow(table.Row{e.RequestID, e.MONumber, e.Level, e.RequiredRole, e.SLADueAt.Format("2006-01-02 15:04"), e.OverdueHours})
			}
			tw.AppendFooter(table.Row{"", "", "", "checked", report.Checked, fmt.Sprintf("failed %d", report.Failed)})
			tw.Render()
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	return cmd
}
