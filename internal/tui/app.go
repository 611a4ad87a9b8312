// Package tui provides the interactive terminal UI for dosekeeper.
package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fentz26/dosekeeper/internal/controlplane"
	"github.com/fentz26/dosekeeper/internal/models"
	"github.com/fentz26/dosekeeper/internal/reminder"
)

// RefreshInterval is how often the TUI polls the daemon.
const RefreshInterval = 5 * time.Second

var (
	// Colors
	primaryColor   = lipgloss.Color("#7C3AED")
	secondaryColor = lipgloss.Color("#6366F1")
	successColor   = lipgloss.Color("#10B981")
	warningColor   = lipgloss.Color("#F59E0B")
	errorColor     = lipgloss.Color("#EF4444")
	mutedColor     = lipgloss.Color("#6B7280")
	fgColor        = lipgloss.Color("#F9FAFB")
	cyanColor      = lipgloss.Color("#06B6D4")

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#374151")).
			Foreground(fgColor).
			Padding(0, 1)

	inputBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)

	itemStyle = lipgloss.NewStyle().
			Padding(0, 2)

	selectedStyle = lipgloss.NewStyle().
			Background(primaryColor).
			Foreground(fgColor).
			Bold(true).
			Padding(0, 2)

	reminderStyle = lipgloss.NewStyle().
			Border(lipgloss.ThickBorder()).
			BorderForeground(warningColor).
			Padding(0, 2)

	onlineStyle  = lipgloss.NewStyle().Foreground(successColor).Bold(true)
	offlineStyle = lipgloss.NewStyle().Foreground(errorColor)
	dueStyle     = lipgloss.NewStyle().Foreground(warningColor).Bold(true)
	lowStyle     = lipgloss.NewStyle().Foreground(errorColor)
	mutedStyle   = lipgloss.NewStyle().Foreground(mutedColor)
)

type mode string

const (
	modeList  mode = "list"
	modeLog   mode = "log"
	modeStats mode = "stats"
)

var filters = []string{"active", "archived", "all"}

// App is the main TUI application model.
type App struct {
	client      *Client
	keys        keyMap
	help        help.Model
	input       textinput.Model
	suggestions *Suggestions

	meds         []controlplane.MedicationView
	reminder     *controlplane.ReminderView
	problems     []models.Problem
	doses        []models.DoseLogEntry
	stats        *controlplane.StatsResponse
	selectedIdx  int
	filterIdx    int
	mode         mode
	width        int
	height       int
	message      string
	loading      bool
	daemonOnline bool
}

// New creates a new TUI application.
func New(apiAddr string) *App {
	ti := textinput.New()
	ti.Placeholder = "add Amoxicillin, 500mg, 8 | dose <name> | archive <name>"
	ti.CharLimit = 256
	ti.Width = 80

	return &App{
		client:      NewClient(apiAddr),
		keys:        defaultKeyMap(),
		help:        help.New(),
		input:       ti,
		suggestions: NewSuggestions(),
		mode:        modeList,
		loading:     true,
	}
}

// Run starts the TUI application.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	return tea.Batch(a.refresh(), a.tickCmd())
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if a.input.Focused() {
			return a.updateInput(msg)
		}
		return a.updateKeys(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.input.Width = msg.Width - 6
		a.help.Width = msg.Width

	case refreshedMsg:
		a.loading = false
		a.daemonOnline = true
		a.meds = msg.meds
		a.reminder = msg.reminder
		a.problems = msg.problems
		if a.selectedIdx >= len(a.meds) {
			a.selectedIdx = max(0, len(a.meds)-1)
		}
		names := make([]string, len(a.meds))
		for i, m := range a.meds {
			names[i] = m.Name
		}
		a.suggestions.SetMedications(names)

	case dosesLoadedMsg:
		a.doses = msg.doses

	case statsLoadedMsg:
		a.stats = msg.stats

	case tickMsg:
		return a, tea.Batch(a.refresh(), a.tickCmd())

	case resultMsg:
		a.message = msg.message
		return a, a.refresh()

	case errMsg:
		a.loading = false
		a.daemonOnline = !msg.offline
		a.message = "Error: " + msg.err.Error()
	}
	return a, nil
}

func (a *App) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, a.keys.Quit):
		return a, tea.Quit

	case key.Matches(msg, a.keys.Help):
		a.help.ShowAll = !a.help.ShowAll

	case key.Matches(msg, a.keys.Back):
		a.mode = modeList
		a.message = ""

	case key.Matches(msg, a.keys.Up):
		if a.selectedIdx > 0 {
			a.selectedIdx--
		}

	case key.Matches(msg, a.keys.Down):
		if a.selectedIdx < len(a.meds)-1 {
			a.selectedIdx++
		}

	case key.Matches(msg, a.keys.Filter):
		a.filterIdx = (a.filterIdx + 1) % len(filters)
		a.selectedIdx = 0
		return a, a.refresh()

	case key.Matches(msg, a.keys.Refresh):
		return a, a.refresh()

	case key.Matches(msg, a.keys.Take):
		return a, a.resolve(reminder.ActionTake)

	case key.Matches(msg, a.keys.Skip):
		return a, a.resolve(reminder.ActionSkip)

	case key.Matches(msg, a.keys.Snooze):
		return a, a.resolve(reminder.ActionSnooze)

	case key.Matches(msg, a.keys.DoseNow):
		if m := a.selected(); m != nil {
			return a, a.logDose(m.ID, m.Name)
		}

	case key.Matches(msg, a.keys.Archive):
		if m := a.selected(); m != nil {
			return a, a.setLifecycle(m.ID, true)
		}

	case key.Matches(msg, a.keys.Restore):
		if m := a.selected(); m != nil {
			return a, a.setLifecycle(m.ID, false)
		}

	case key.Matches(msg, a.keys.Log):
		a.mode = modeLog
		return a, a.fetchDoses()

	case key.Matches(msg, a.keys.Stats):
		a.mode = modeStats
		return a, a.fetchStats()

	case key.Matches(msg, a.keys.Command):
		a.message = ""
		return a, a.input.Focus()
	}
	return a, nil
}

func (a *App) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		a.input.Blur()
		a.input.SetValue("")
		a.suggestions.Update("")
		return a, nil

	case tea.KeyTab:
		if line, ok := a.suggestions.Complete(); ok {
			a.input.SetValue(line)
			a.input.CursorEnd()
			a.suggestions.Update(line)
		}
		return a, nil

	case tea.KeyUp:
		a.suggestions.Prev()
		return a, nil

	case tea.KeyDown:
		a.suggestions.Next()
		return a, nil

	case tea.KeyEnter:
		line := strings.TrimSpace(a.input.Value())
		a.input.Blur()
		a.input.SetValue("")
		a.suggestions.Update("")
		if line == "" {
			return a, nil
		}
		return a, a.executeCommand(line)
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	a.suggestions.Update(a.input.Value())
	return a, cmd
}

// View implements tea.Model
func (a *App) View() string {
	var b strings.Builder

	daemonStatus := onlineStyle.Render("● DAEMON")
	if !a.daemonOnline {
		daemonStatus = offlineStyle.Render("○ DAEMON")
	}
	header := titleStyle.Render("dosekeeper") + "  " + daemonStatus
	if a.width > 0 {
		header += "  " + mutedStyle.Render(time.Now().Format("Mon 15:04"))
	}
	b.WriteString(header + "\n")
	b.WriteString(strings.Repeat("─", max(a.width, 20)) + "\n")

	if a.reminder != nil {
		b.WriteString(a.renderReminder() + "\n")
	}

	switch a.mode {
	case modeList:
		b.WriteString(mutedStyle.Render(fmt.Sprintf(" Filter: [%s]", strings.ToUpper(filters[a.filterIdx]))) + "\n")
		b.WriteString(a.renderMedications())
		b.WriteString(a.renderProblems())
	case modeLog:
		b.WriteString(a.renderDoseLog())
	case modeStats:
		b.WriteString(a.renderStats())
	}

	// Message bar
	b.WriteString("\n")
	if a.message != "" {
		msgStyle := lipgloss.NewStyle().Foreground(successColor)
		if strings.HasPrefix(a.message, "Error") {
			msgStyle = lipgloss.NewStyle().Foreground(errorColor)
		}
		b.WriteString(msgStyle.Render(a.message))
	}
	b.WriteString("\n")

	if a.input.Focused() {
		b.WriteString(inputBoxStyle.Render(a.input.View()) + "\n")
		if a.suggestions.IsVisible() {
			b.WriteString(a.suggestions.Render(a.width) + "\n")
		}
	}

	b.WriteString(a.help.View(a.keys) + "\n")
	status := fmt.Sprintf(" Medications: %d | Problems: %d", len(a.meds), len(a.problems))
	b.WriteString(statusBarStyle.Width(max(a.width, 20)).Render(status))
	return b.String()
}

func (a *App) renderReminder() string {
	r := a.reminder
	title := dueStyle.Render(fmt.Sprintf("Time for %s", r.Medication.Name))
	body := fmt.Sprintf("%s  %s\ndue %s, waiting %s\n%s",
		title,
		r.Medication.Dosage,
		r.Medication.NextDose.Local().Format("15:04"),
		time.Since(r.ActivatedAt).Round(time.Minute),
		mutedStyle.Render("t take | s skip | z snooze 15m"))
	return reminderStyle.Render(body)
}

func (a *App) renderMedications() string {
	if a.loading {
		return "\n  Loading medications...\n"
	}
	if len(a.meds) == 0 {
		return "\n  No medications. Press / and type: add <name>, <dosage>, <every hours>\n"
	}

	var lines []string
	for i, m := range a.meds {
		text := fmt.Sprintf("%-24s %-12s next %s  %-22s %s",
			truncate(m.Name, 24),
			truncate(m.Dosage, 12),
			m.NextDose.Local().Format("Mon 15:04"),
			describeSchedule(m),
			describeStock(m))

		if i == a.selectedIdx {
			lines = append(lines, selectedStyle.Render("▶ "+text))
			continue
		}
		marker := "  "
		switch {
		case m.Due:
			marker = dueStyle.Render("● ")
		case m.IsArchived():
			marker = mutedStyle.Render("○ ")
		case m.LowStock:
			marker = lowStyle.Render("! ")
		}
		lines = append(lines, itemStyle.Render(marker+text))
	}
	return strings.Join(lines, "\n") + "\n"
}

func (a *App) renderProblems() string {
	if len(a.problems) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n" + lowStyle.Render(" Cannot schedule:") + "\n")
	for _, p := range a.problems {
		b.WriteString(fmt.Sprintf("   %s: %s\n", p.Name, mutedStyle.Render(p.Error)))
	}
	return b.String()
}

func (a *App) renderDoseLog() string {
	var b strings.Builder
	b.WriteString("\n  Recent doses\n")
	b.WriteString("  " + strings.Repeat("─", 40) + "\n")
	if len(a.doses) == 0 {
		b.WriteString("  " + mutedStyle.Render("No doses logged") + "\n")
		return b.String()
	}
	for _, d := range a.doses {
		b.WriteString(fmt.Sprintf("  %s  %-24s %s\n",
			d.Timestamp.Local().Format("Mon 01-02 15:04"),
			truncate(d.MedicationName, 24),
			mutedStyle.Render(d.Dosage)))
	}
	return b.String()
}

func (a *App) renderStats() string {
	var b strings.Builder
	b.WriteString("\n  Adherence (7 days)\n")
	b.WriteString("  " + strings.Repeat("─", 40) + "\n")
	if a.stats == nil {
		b.WriteString("  Loading...\n")
		return b.String()
	}

	adh := a.stats.Adherence
	rateStyle := lipgloss.NewStyle().Foreground(successColor).Bold(true)
	if adh.Rate < 0.8 {
		rateStyle = lipgloss.NewStyle().Foreground(warningColor).Bold(true)
	}
	b.WriteString(fmt.Sprintf("  Overall: %s (%d of %d)\n\n",
		rateStyle.Render(fmt.Sprintf("%.0f%%", adh.Rate*100)), adh.Taken, adh.Expected))

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(cyanColor)
	b.WriteString("  " + headerStyle.Render(fmt.Sprintf("%-24s %6s %8s %6s", "MEDICATION", "TAKEN", "EXPECTED", "RATE")) + "\n")
	for _, r := range adh.Rows {
		b.WriteString(fmt.Sprintf("  %-24s %6d %8d %5.0f%%\n", truncate(r.Name, 24), r.Taken, r.Expected, r.Rate*100))
	}

	inv := a.stats.Inventory
	b.WriteString(fmt.Sprintf("\n  Stock: %d tracked, %s\n", inv.Tracked, lowStyle.Render(fmt.Sprintf("%d low", inv.LowStock))))
	return b.String()
}

func (a *App) selected() *controlplane.MedicationView {
	if a.mode != modeList || a.selectedIdx >= len(a.meds) {
		return nil
	}
	return &a.meds[a.selectedIdx]
}

// --- Commands ---

func (a *App) refresh() tea.Cmd {
	status := filters[a.filterIdx]
	return func() tea.Msg {
		meds, err := a.client.ListMedications(status)
		if err != nil {
			return errMsg{err: err, offline: true}
		}
		rem, err := a.client.ActiveReminder()
		if err != nil {
			return errMsg{err: err}
		}
		problems, err := a.client.Problems()
		if err != nil {
			return errMsg{err: err}
		}
		return refreshedMsg{meds: meds, reminder: rem, problems: problems}
	}
}

func (a *App) tickCmd() tea.Cmd {
	return tea.Tick(RefreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (a *App) resolve(action reminder.Action) tea.Cmd {
	if a.reminder == nil {
		a.message = "No active reminder"
		return nil
	}
	id, name := a.reminder.MedicationID, a.reminder.Medication.Name
	return func() tea.Msg {
		out, err := a.client.Resolve(action, id)
		if err != nil {
			return errMsg{err: err}
		}
		return resultMsg{describeOutcome(out, name)}
	}
}

func (a *App) logDose(id, name string) tea.Cmd {
	return func() tea.Msg {
		out, err := a.client.LogDose(id)
		if err != nil {
			return errMsg{err: err}
		}
		return resultMsg{describeOutcome(out, name)}
	}
}

func (a *App) setLifecycle(id string, archive bool) tea.Cmd {
	return func() tea.Msg {
		var med *models.Medication
		var err error
		if archive {
			med, err = a.client.Archive(id)
		} else {
			med, err = a.client.Restore(id)
		}
		if err != nil {
			return errMsg{err: err}
		}
		return resultMsg{fmt.Sprintf("✓ %s is now %s", med.Name, med.Lifecycle)}
	}
}

func (a *App) fetchDoses() tea.Cmd {
	return func() tea.Msg {
		doses, err := a.client.DoseLog(20)
		if err != nil {
			return errMsg{err: err}
		}
		return dosesLoadedMsg{doses}
	}
}

func (a *App) fetchStats() tea.Cmd {
	return func() tea.Msg {
		stats, err := a.client.Stats(7)
		if err != nil {
			return errMsg{err: err}
		}
		return statsLoadedMsg{stats}
	}
}

func (a *App) executeCommand(input string) tea.Cmd {
	cmd, rest, _ := strings.Cut(input, " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "q", "quit", "exit":
		return tea.Quit
	case "log":
		a.mode = modeLog
		return a.fetchDoses()
	case "stats":
		a.mode = modeStats
		return a.fetchStats()
	case "add":
		patch, err := parseAddCommand(rest, time.Now())
		if err != nil {
			a.message = "Error: " + err.Error()
			return nil
		}
		return func() tea.Msg {
			med, err := a.client.CreateMedication(patch)
			if err != nil {
				return errMsg{err: err}
			}
			return resultMsg{fmt.Sprintf("✓ Added %s, next dose %s", med.Name, med.NextDose.Local().Format("Mon 15:04"))}
		}
	case "dose", "archive", "restore":
		if rest == "" {
			a.message = fmt.Sprintf("Usage: %s <name>", cmd)
			return nil
		}
		return func() tea.Msg {
			meds, err := a.client.ListMedications("all")
			if err != nil {
				return errMsg{err: err}
			}
			m := findByName(meds, rest)
			if m == nil {
				return resultMsg{fmt.Sprintf("Error: no medication named %q", rest)}
			}
			switch cmd {
			case "dose":
				return a.logDose(m.ID, m.Name)()
			case "archive":
				return a.setLifecycle(m.ID, true)()
			default:
				return a.setLifecycle(m.ID, false)()
			}
		}
	default:
		a.message = fmt.Sprintf("Unknown: %s (try: add, dose, archive, restore, log, stats)", cmd)
		return nil
	}
}

// parseAddCommand parses "<name>, <dosage>, <every hours>[, cyclic][, qty N]".
// The first dose is due now.
func parseAddCommand(args string, now time.Time) (models.MedicationPatch, error) {
	var p models.MedicationPatch
	parts := strings.Split(args, ",")
	if len(parts) < 3 {
		return p, fmt.Errorf("usage: add <name>, <dosage>, <every hours> [, cyclic] [, qty N]")
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	name, dosage := parts[0], parts[1]
	hours, err := strconv.Atoi(strings.TrimSuffix(parts[2], "h"))
	if err != nil {
		return p, fmt.Errorf("invalid interval %q", parts[2])
	}
	p.Name = &name
	p.Dosage = &dosage
	p.FrequencyHours = &hours
	p.NextDose = &now

	for _, opt := range parts[3:] {
		switch {
		case opt == "cyclic":
			cyclic := true
			p.Cyclic = &cyclic
		case strings.HasPrefix(opt, "qty "):
			qty, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(opt, "qty ")))
			if err != nil {
				return p, fmt.Errorf("invalid quantity %q", opt)
			}
			p.Quantity = &qty
		default:
			return p, fmt.Errorf("unknown option %q", opt)
		}
	}
	return p, nil
}

func findByName(meds []controlplane.MedicationView, name string) *controlplane.MedicationView {
	for i := range meds {
		if strings.EqualFold(meds[i].Name, name) {
			return &meds[i]
		}
	}
	return nil
}

func describeOutcome(out reminder.Outcome, name string) string {
	if !out.Applied {
		return "Nothing to do"
	}
	switch out.Action {
	case reminder.ActionSkip:
		return fmt.Sprintf("Skipped %s", name)
	case reminder.ActionSnooze:
		return fmt.Sprintf("Snoozed %s for 15 minutes", name)
	default:
		msg := fmt.Sprintf("✓ Took %s", name)
		if out.Medication != nil && out.Medication.RemainingDoses != nil {
			msg += fmt.Sprintf(", %d left", *out.Medication.RemainingDoses)
		}
		return msg
	}
}

func describeSchedule(m controlplane.MedicationView) string {
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

func describeStock(m controlplane.MedicationView) string {
	if m.RemainingDoses == nil {
		return ""
	}
	s := fmt.Sprintf("%d left", *m.RemainingDoses)
	if m.LowStock {
		return lowStyle.Render(s + " (refill)")
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

type resultMsg struct {
	message string
}

type errMsg struct {
	err     error
	offline bool
}

type refreshedMsg struct {
	meds     []controlplane.MedicationView
	reminder *controlplane.ReminderView
	problems []models.Problem
}

type dosesLoadedMsg struct {
	doses []models.DoseLogEntry
}

type statsLoadedMsg struct {
	stats *controlplane.StatsResponse
}

type tickMsg time.Time
