package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fentz26/dosekeeper/internal/controlplane"
	"github.com/fentz26/dosekeeper/internal/models"
	"github.com/spf13/cobra"
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show recently taken doses",
	RunE:  runLog,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show adherence and inventory statistics",
	RunE:  runStats,
}

var (
	logLimit  int
	statsDays int
)

func init() {
	logCmd.Flags().IntVar(&logLimit, "limit", 20, "Number of entries to show")
	statsCmd.Flags().IntVar(&statsDays, "days", 7, "Adherence window in days")
}

func runLog(cmd *cobra.Command, args []string) error {
	resp, err := apiGet(fmt.Sprintf("/doses?limit=%d", logLimit))
	if err != nil {
		return err
	}

	var entries []models.DoseLogEntry
	if err := json.Unmarshal(resp, &entries); err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Println("No doses logged")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TAKEN\tMEDICATION\tDOSAGE")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\n", formatTime(e.Timestamp), truncate(e.MedicationName, 30), e.Dosage)
	}
	w.Flush()
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	resp, err := apiGet(fmt.Sprintf("/doses/stats?days=%d", statsDays))
	if err != nil {
		return err
	}

	var stats controlplane.StatsResponse
	if err := json.Unmarshal(resp, &stats); err != nil {
		return err
	}

	a := stats.Adherence
	fmt.Printf("Adherence over %d days: %d of %d doses (%.0f%%)\n", a.Days, a.Taken, a.Expected, a.Rate*100)
	if len(a.Rows) > 0 {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "MEDICATION\tTAKEN\tEXPECTED\tRATE")
		for _, r := range a.Rows {
			fmt.Fprintf(w, "%s\t%d\t%d\t%.0f%%\n", truncate(r.Name, 30), r.Taken, r.Expected, r.Rate*100)
		}
		w.Flush()
	}

	inv := stats.Inventory
	fmt.Printf("\nInventory: %d tracked, %d low on stock", inv.Tracked, inv.LowStock)
	if inv.Tracked > 0 {
		fmt.Printf(", %d doses left on average", inv.AverageRemaining)
	}
	fmt.Println()
	return nil
}
