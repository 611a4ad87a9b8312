package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fentz26/dosekeeper/internal/controlplane"
	"github.com/fentz26/dosekeeper/internal/reminder"
	"github.com/spf13/cobra"
)

var reminderCmd = &cobra.Command{
	Use:   "reminder",
	Short: "Show or answer the active reminder",
}

var reminderShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the active reminder",
	RunE:  runReminderShow,
}

var reminderTakeCmd = &cobra.Command{
	Use:   "take [medication-id]",
	Short: "Take the due dose",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runResolve(reminder.ActionTake),
}

var reminderSkipCmd = &cobra.Command{
	Use:   "skip [medication-id]",
	Short: "Skip the due dose",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runResolve(reminder.ActionSkip),
}

var reminderSnoozeCmd = &cobra.Command{
	Use:   "snooze [medication-id]",
	Short: "Snooze the due dose for 15 minutes",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runResolve(reminder.ActionSnooze),
}

func init() {
	reminderCmd.AddCommand(reminderShowCmd, reminderTakeCmd, reminderSkipCmd, reminderSnoozeCmd)
}

// fetchReminder returns the active reminder, or nil when the daemon is idle.
func fetchReminder() (*controlplane.ReminderView, error) {
	resp, err := apiGet("/reminder")
	if err != nil {
		return nil, err
	}
	if len(resp) == 0 {
		return nil, nil
	}

	var rem controlplane.ReminderView
	if err := json.Unmarshal(resp, &rem); err != nil {
		return nil, err
	}
	return &rem, nil
}

func runReminderShow(cmd *cobra.Command, args []string) error {
	rem, err := fetchReminder()
	if err != nil {
		return err
	}
	if rem == nil {
		fmt.Println("No active reminder")
		return nil
	}

	fmt.Printf("Time for %s (%s)\n", rem.Medication.Name, rem.Medication.Dosage)
	fmt.Printf("ID:      %s\n", rem.MedicationID)
	fmt.Printf("Due:     %s\n", formatTime(rem.Medication.NextDose))
	fmt.Printf("Waiting: %s\n", time.Since(rem.ActivatedAt).Round(time.Minute))
	return nil
}

// runResolve answers the active reminder. Without an id it targets whatever
// is currently active.
func runResolve(action reminder.Action) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		var id string
		if len(args) == 1 {
			id = args[0]
		} else {
			rem, err := fetchReminder()
			if err != nil {
				return err
			}
			if rem == nil {
				fmt.Println("No active reminder")
				return nil
			}
			id = rem.MedicationID
		}

		resp, err := apiPost("/reminder/"+string(action), map[string]string{"medication_id": id})
		if err != nil {
			return err
		}

		var out reminder.Outcome
		if err := json.Unmarshal(resp, &out); err != nil {
			return err
		}
		printOutcome(out)
		return nil
	}
}
