package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fentz26/dosekeeper/internal/controlplane"
	"github.com/fentz26/dosekeeper/internal/models"
	"github.com/fentz26/dosekeeper/internal/reminder"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var medCmd = &cobra.Command{
	Use:   "med",
	Short: "Manage medications",
}

var medAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a medication",
	RunE:  runMedAdd,
}

var medListCmd = &cobra.Command{
	Use:   "list",
	Short: "List medications",
	RunE:  runMedList,
}

var medShowCmd = &cobra.Command{
	Use:   "show [medication-id]",
	Short: "Show medication details",
	Args:  cobra.ExactArgs(1),
	RunE:  runMedShow,
}

var medEditCmd = &cobra.Command{
	Use:   "edit [medication-id]",
	Short: "Edit a medication; only the flags given are changed",
	Args:  cobra.ExactArgs(1),
	RunE:  runMedEdit,
}

var medArchiveCmd = &cobra.Command{
	Use:   "archive [medication-id]",
	Short: "Archive a medication",
	Args:  cobra.ExactArgs(1),
	RunE:  runMedLifecycle("archive"),
}

var medRestoreCmd = &cobra.Command{
	Use:   "restore [medication-id]",
	Short: "Restore an archived medication",
	Args:  cobra.ExactArgs(1),
	RunE:  runMedLifecycle("restore"),
}

var medDeleteCmd = &cobra.Command{
	Use:   "delete [medication-id]",
	Short: "Permanently delete a medication",
	Args:  cobra.ExactArgs(1),
	RunE:  runMedDelete,
}

var medDoseCmd = &cobra.Command{
	Use:   "dose [medication-id]",
	Short: "Log a dose taken now, outside of a reminder",
	Args:  cobra.ExactArgs(1),
	RunE:  runMedDose,
}

// medFlags holds the values of the add/edit flags.
type medFlags struct {
	name       string
	dosage     string
	notes      string
	every      int
	next       string
	cyclic     bool
	activeDays int
	restDays   int
	cycleStart string
	quantity   int
	refillAt   int
	noStock    bool
	noRefill   bool
}

var (
	addFlags  medFlags
	editFlags medFlags
	medStatus string
)

func init() {
	medCmd.AddCommand(medAddCmd, medListCmd, medShowCmd, medEditCmd, medArchiveCmd, medRestoreCmd, medDeleteCmd, medDoseCmd)

	addFlags.register(medAddCmd.Flags())
	medAddCmd.MarkFlagRequired("name")
	medAddCmd.MarkFlagRequired("dosage")

	editFlags.register(medEditCmd.Flags())
	medEditCmd.Flags().BoolVar(&editFlags.noStock, "no-stock", false, "Stop tracking inventory")
	medEditCmd.Flags().BoolVar(&editFlags.noRefill, "no-refill", false, "Clear the refill threshold")

	medListCmd.Flags().StringVar(&medStatus, "status", "active", "Filter by lifecycle (active, archived, all)")
}

func (f *medFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.name, "name", "", "Medication name")
	fs.StringVar(&f.dosage, "dosage", "", "Dosage, e.g. '500mg'")
	fs.StringVar(&f.notes, "notes", "", "Free-form notes")
	fs.IntVar(&f.every, "every", 24, "Hours between doses")
	fs.StringVar(&f.next, "next", "", "Next dose: RFC3339, 'YYYY-MM-DD HH:MM' or 'HH:MM' (default now)")
	fs.BoolVar(&f.cyclic, "cyclic", false, "Use an active/rest day cycle (doses every 24h)")
	fs.IntVar(&f.activeDays, "active-days", models.DefaultActiveDays, "Active days per cycle")
	fs.IntVar(&f.restDays, "rest-days", models.DefaultRestDays, "Rest days per cycle")
	fs.StringVar(&f.cycleStart, "cycle-start", "", "First day of the cycle, YYYY-MM-DD (default the day of --next)")
	fs.IntVar(&f.quantity, "quantity", 0, "Pills on hand; enables inventory tracking")
	fs.IntVar(&f.refillAt, "refill-at", 0, "Alert when remaining doses drop to this count")
}

// patch builds a MedicationPatch from the flags the user actually set.
func (f *medFlags) patch(fs *pflag.FlagSet, now time.Time) (models.MedicationPatch, error) {
	var p models.MedicationPatch
	if fs.Changed("name") {
		p.Name = &f.name
	}
	if fs.Changed("dosage") {
		p.Dosage = &f.dosage
	}
	if fs.Changed("notes") {
		p.Notes = &f.notes
	}
	if fs.Changed("every") {
		p.FrequencyHours = &f.every
	}
	if fs.Changed("next") {
		t, err := parseWhen(f.next, now)
		if err != nil {
			return p, err
		}
		p.NextDose = &t
	}
	if fs.Changed("cyclic") {
		p.Cyclic = &f.cyclic
	}
	if fs.Changed("active-days") {
		p.ActiveDays = &f.activeDays
	}
	if fs.Changed("rest-days") {
		p.RestDays = &f.restDays
	}
	if fs.Changed("cycle-start") {
		t, err := time.ParseInLocation("2006-01-02", f.cycleStart, now.Location())
		if err != nil {
			return p, fmt.Errorf("invalid --cycle-start %q: want YYYY-MM-DD", f.cycleStart)
		}
		p.CycleStartDate = &t
	}
	if fs.Changed("quantity") {
		p.Quantity = &f.quantity
	}
	if fs.Changed("refill-at") {
		p.RefillThreshold = &f.refillAt
	}
	p.ClearQuantity = f.noStock
	p.ClearRefillThreshold = f.noRefill
	return p, nil
}

// parseWhen accepts RFC3339, a local "YYYY-MM-DD HH:MM" or a local "HH:MM" today.
func parseWhen(s string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04", s, now.Location()); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("15:04", s, now.Location()); err == nil {
		y, m, d := now.Date()
		return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, now.Location()), nil
	}
	return time.Time{}, fmt.Errorf("invalid time %q: want RFC3339, 'YYYY-MM-DD HH:MM' or 'HH:MM'", s)
}

func runMedAdd(cmd *cobra.Command, args []string) error {
	now := time.Now()
	p, err := addFlags.patch(cmd.Flags(), now)
	if err != nil {
		return err
	}
	if p.NextDose == nil {
		p.NextDose = &now
	}
	if p.FrequencyHours == nil {
		p.FrequencyHours = &addFlags.every
	}

	resp, err := apiPost("/medications", p)
	if err != nil {
		return err
	}

	var med models.Medication
	if err := json.Unmarshal(resp, &med); err != nil {
		return err
	}
	fmt.Printf("Added %s (%s)\n", med.Name, med.ID)
	fmt.Printf("Next dose: %s\n", formatTime(med.NextDose))
	return nil
}

func runMedList(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/medications?status=" + medStatus)
	if err != nil {
		return err
	}

	var meds []controlplane.MedicationView
	if err := json.Unmarshal(resp, &meds); err != nil {
		return err
	}

	if len(meds) == 0 {
		fmt.Println("No medications found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tDOSAGE\tNEXT DOSE\tSCHEDULE\tSTOCK")
	for _, m := range meds {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			m.ID,
			truncate(m.Name, 30),
			truncate(m.Dosage, 16),
			formatTime(m.NextDose),
			scheduleLabel(m),
			stockLabel(m))
	}
	w.Flush()
	return nil
}

func runMedShow(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/medications/" + args[0])
	if err != nil {
		return err
	}

	var m controlplane.MedicationView
	if err := json.Unmarshal(resp, &m); err != nil {
		return err
	}

	fmt.Printf("ID:        %s\n", m.ID)
	fmt.Printf("Name:      %s\n", m.Name)
	fmt.Printf("Dosage:    %s\n", m.Dosage)
	if m.Notes != "" {
		fmt.Printf("Notes:     %s\n", m.Notes)
	}
	fmt.Printf("Status:    %s\n", m.Lifecycle)
	fmt.Printf("Schedule:  %s\n", scheduleLabel(m))
	fmt.Printf("Next dose: %s", formatTime(m.NextDose))
	if m.Due {
		fmt.Print(" (due)")
	}
	fmt.Println()
	if m.Cycle != nil {
		fmt.Printf("Cycle:     %d on / %d off from %s\n", m.Cycle.ActiveDays, m.Cycle.RestDays, m.Cycle.StartDate.Format("2006-01-02"))
	}
	if m.PhaseError != "" {
		fmt.Printf("Problem:   %s\n", m.PhaseError)
	}
	fmt.Printf("Stock:     %s\n", stockLabel(m))
	fmt.Printf("Created:   %s\n", formatTime(m.CreatedAt))
	fmt.Printf("Updated:   %s\n", formatTime(m.UpdatedAt))
	return nil
}

func runMedEdit(cmd *cobra.Command, args []string) error {
	p, err := editFlags.patch(cmd.Flags(), time.Now())
	if err != nil {
		return err
	}

	resp, err := apiPatch("/medications/"+args[0], p)
	if err != nil {
		return err
	}

	var med models.Medication
	if err := json.Unmarshal(resp, &med); err != nil {
		return err
	}
	fmt.Printf("Updated %s\n", med.Name)
	fmt.Printf("Next dose: %s\n", formatTime(med.NextDose))
	return nil
}

func runMedLifecycle(action string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		resp, err := apiPost("/medications/"+args[0]+"/"+action, nil)
		if err != nil {
			return err
		}

		var med models.Medication
		if err := json.Unmarshal(resp, &med); err != nil {
			return err
		}
		fmt.Printf("%s is now %s\n", med.Name, med.Lifecycle)
		return nil
	}
}

func runMedDelete(cmd *cobra.Command, args []string) error {
	if err := apiDelete("/medications/" + args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted medication %s\n", args[0])
	return nil
}

func runMedDose(cmd *cobra.Command, args []string) error {
	resp, err := apiPost("/medications/"+args[0]+"/dose", nil)
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

// --- Helpers ---

func scheduleLabel(m controlplane.MedicationView) string {
	if m.Cycle == nil {
		return fmt.Sprintf("every %dh", m.FrequencyHours)
	}
	if m.Phase == nil {
		return "cyclic (invalid)"
	}
	if m.Phase.TotalDays == 0 {
		return "cyclic, not started"
	}
	return fmt.Sprintf("%s day %d/%d", m.Phase.Phase, m.Phase.DayIndex, m.Phase.TotalDays)
}

func stockLabel(m controlplane.MedicationView) string {
	if m.RemainingDoses == nil {
		return "-"
	}
	s := fmt.Sprintf("%d", *m.RemainingDoses)
	if m.Quantity != nil {
		s += fmt.Sprintf("/%d", *m.Quantity)
	}
	if m.LowStock {
		s += " (low)"
	}
	return s
}

func printOutcome(out reminder.Outcome) {
	if !out.Applied {
		fmt.Println("Nothing to do")
		return
	}
	if out.Medication == nil {
		fmt.Printf("%s applied\n", out.Action)
		return
	}
	switch out.Action {
	case reminder.ActionTake:
		fmt.Printf("Took %s", out.Medication.Name)
		if out.Dose != nil {
			fmt.Printf(" at %s", formatTime(out.Dose.Timestamp))
		}
		fmt.Println()
	case reminder.ActionSkip:
		fmt.Printf("Skipped %s\n", out.Medication.Name)
	case reminder.ActionSnooze:
		fmt.Printf("Snoozed %s\n", out.Medication.Name)
	}
	fmt.Printf("Next dose: %s\n", formatTime(out.Medication.NextDose))
	if out.Medication.RemainingDoses != nil {
		fmt.Printf("Remaining: %d\n", *out.Medication.RemainingDoses)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("Mon 2006-01-02 15:04")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
