package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Suggestions provides autocomplete for the command line: command names
// first, then medication names for commands that take one.
type Suggestions struct {
	names       []string
	filtered    []SuggestionItem
	selectedIdx int
	visible     bool
	command     string
}

// SuggestionItem represents a single autocomplete suggestion
type SuggestionItem struct {
	Text        string
	Description string
}

var commandSuggestions = []SuggestionItem{
	{Text: "add", Description: "add <name>, <dosage>, <every hours> [, cyclic] [, qty N]"},
	{Text: "dose", Description: "Log a dose of <name> taken now"},
	{Text: "archive", Description: "Archive <name>"},
	{Text: "restore", Description: "Restore archived <name>"},
	{Text: "log", Description: "Show recent doses"},
	{Text: "stats", Description: "Show adherence and stock"},
	{Text: "quit", Description: "Leave the TUI"},
}

// commandsWithName lists the commands whose argument is a medication name.
var commandsWithName = map[string]bool{"dose": true, "archive": true, "restore": true}

// NewSuggestions creates a new suggestions handler
func NewSuggestions() *Suggestions {
	return &Suggestions{}
}

// SetMedications updates the names offered after dose, archive and restore.
func (s *Suggestions) SetMedications(names []string) {
	s.names = names
}

// Update updates suggestions based on current input
func (s *Suggestions) Update(input string) {
	s.selectedIdx = 0
	s.command = ""
	if strings.TrimSpace(input) == "" {
		s.visible = false
		s.filtered = nil
		return
	}

	cmd, rest, hasArg := strings.Cut(input, " ")
	if !hasArg {
		s.visible = true
		s.filtered = filterItems(commandSuggestions, cmd)
		return
	}

	if !commandsWithName[cmd] {
		s.visible = false
		s.filtered = nil
		return
	}
	s.command = cmd
	items := make([]SuggestionItem, len(s.names))
	for i, n := range s.names {
		items[i] = SuggestionItem{Text: n}
	}
	s.visible = true
	s.filtered = filterItems(items, rest)
}

func filterItems(items []SuggestionItem, query string) []SuggestionItem {
	query = strings.ToLower(strings.TrimSpace(query))
	var out []SuggestionItem
	for _, item := range items {
		if query == "" || strings.HasPrefix(strings.ToLower(item.Text), query) {
			out = append(out, item)
		}
	}
	return out
}

// Next moves to the next suggestion
func (s *Suggestions) Next() {
	if len(s.filtered) == 0 {
		return
	}
	s.selectedIdx = (s.selectedIdx + 1) % len(s.filtered)
}

// Prev moves to the previous suggestion
func (s *Suggestions) Prev() {
	if len(s.filtered) == 0 {
		return
	}
	s.selectedIdx--
	if s.selectedIdx < 0 {
		s.selectedIdx = len(s.filtered) - 1
	}
}

// Complete returns the input line with the selected suggestion filled in.
func (s *Suggestions) Complete() (string, bool) {
	if !s.IsVisible() {
		return "", false
	}
	item := s.filtered[s.selectedIdx]
	if s.command != "" {
		return s.command + " " + item.Text, true
	}
	return item.Text + " ", true
}

// IsVisible returns whether suggestions are currently visible
func (s *Suggestions) IsVisible() bool {
	return s.visible && len(s.filtered) > 0
}

// Render renders the suggestions dropdown
func (s *Suggestions) Render(width int) string {
	if !s.IsVisible() {
		return ""
	}

	var b strings.Builder

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(secondaryColor).
		Padding(0, 1).
		Width(max(width-4, 20))

	descStyle := lipgloss.NewStyle().Foreground(mutedColor).Italic(true)

	// Show max 5 suggestions
	maxVisible := 5
	for i, item := range s.filtered {
		if i >= maxVisible {
			b.WriteString(descStyle.Render(fmt.Sprintf("  ... and %d more", len(s.filtered)-maxVisible)))
			break
		}

		var line string
		if i == s.selectedIdx {
			line = selectedStyle.Render("▶ " + item.Text)
		} else {
			line = "  " + item.Text
		}
		if item.Description != "" {
			line += " " + descStyle.Render(item.Description)
		}
		b.WriteString(line + "\n")
	}

	return boxStyle.Render(strings.TrimRight(b.String(), "\n"))
}
