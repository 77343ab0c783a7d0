package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/rewind/internal/checkpoint"
	"github.com/fyrsmithlabs/rewind/internal/session"
	"github.com/fyrsmithlabs/rewind/internal/snapshot"
)

const timeFormat = "2006-01-02 15:04:05"

// Lipgloss styles (k9s-inspired color scheme)
var (
	// Section title style - bold bright cyan
	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	// Label style - dim cyan
	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	// Value style - bright white
	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true)

	// Dim style - for timestamps and secondary info
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	addedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46"))

	modifiedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226"))

	deletedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	failedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	doneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	pendingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)
)

func renderCheckpointList(checkpoints []*snapshot.Checkpoint, branch string) string {
	var b strings.Builder

	title := "Checkpoints"
	if branch != "" {
		title = fmt.Sprintf("Checkpoints on %s", branch)
	}
	b.WriteString(sectionStyle.Render(title))
	b.WriteString("\n")

	for _, cp := range checkpoints {
		b.WriteString(fmt.Sprintf("%s  %s  %s %s\n",
			valueStyle.Render(cp.ID),
			dimStyle.Render(cp.CreatedAt.Local().Format(timeFormat)),
			cp.Name,
			dimStyle.Render(fmt.Sprintf("(%d files)", len(cp.Paths()))),
		))
		if cp.Description != "" {
			b.WriteString(fmt.Sprintf("    %s\n", dimStyle.Render(cp.Description)))
		}
	}
	return b.String()
}

func renderDiff(idOrName string, diff *checkpoint.DiffResult) string {
	var b strings.Builder
	b.WriteString(sectionStyle.Render(fmt.Sprintf("Changes since %s", idOrName)))
	b.WriteString("\n")

	if !diff.HasChanges() {
		b.WriteString(dimStyle.Render("no changes"))
		b.WriteString("\n")
		return b.String()
	}
	for _, p := range diff.Added {
		b.WriteString(addedStyle.Render(fmt.Sprintf("  + %s", p)))
		b.WriteString("\n")
	}
	for _, p := range diff.Modified {
		b.WriteString(modifiedStyle.Render(fmt.Sprintf("  ~ %s", p)))
		b.WriteString("\n")
	}
	for _, p := range diff.Deleted {
		b.WriteString(deletedStyle.Render(fmt.Sprintf("  - %s", p)))
		b.WriteString("\n")
	}
	b.WriteString(dimStyle.Render(fmt.Sprintf("  %d unchanged", len(diff.Unchanged))))
	b.WriteString("\n")
	return b.String()
}

func renderFileHistory(path string, entries []checkpoint.HistoryEntry) string {
	var b strings.Builder
	b.WriteString(sectionStyle.Render(fmt.Sprintf("History for %s", path)))
	b.WriteString("\n")

	for _, e := range entries {
		name := e.CheckpointName
		if name == "" {
			name = dimStyle.Render("(unnamed)")
		}
		b.WriteString(fmt.Sprintf("%s  %s  %s %s\n",
			valueStyle.Render(e.CheckpointID),
			dimStyle.Render(e.CreatedAt.Local().Format(timeFormat)),
			name,
			dimStyle.Render(e.Fingerprint[:12]),
		))
	}
	return b.String()
}

func renderCallLog(calls []session.CallRecord, branch string) string {
	var b strings.Builder

	title := "Calls"
	if branch != "" {
		title = fmt.Sprintf("Calls on %s", branch)
	}
	b.WriteString(sectionStyle.Render(title))
	b.WriteString("\n")

	for _, rec := range calls {
		label := rec.Label
		if label == "" {
			label = "-"
		}
		b.WriteString(fmt.Sprintf("%s  %s  %s  %s %s %s\n",
			valueStyle.Render(rec.ID),
			dimStyle.Render(rec.CreatedAt.Local().Format(timeFormat)),
			callStatusStyle(rec.Status),
			labelStyle.Render(label),
			dimStyle.Render("checkpoint "+rec.CheckpointID),
			dimStyle.Render(fmt.Sprintf("(%d files)", len(rec.TrackedFiles))),
		))
	}
	return b.String()
}

func callStatusStyle(status session.CallStatus) string {
	switch status {
	case session.CallDone:
		return doneStyle.Render("✔ done   ")
	case session.CallFailed:
		return failedStyle.Render("✘ failed ")
	default:
		return pendingStyle.Render("● pending")
	}
}

// checkpointItem adapts a checkpoint to the list widget.
type checkpointItem struct {
	id      string
	name    string
	created string
	files   int
}

func (i checkpointItem) Title() string {
	return fmt.Sprintf("%s  %s", i.id, i.name)
}

func (i checkpointItem) Description() string {
	return fmt.Sprintf("%s · %d files", i.created, i.files)
}

func (i checkpointItem) FilterValue() string {
	return i.id + " " + i.name
}

type pickerModel struct {
	list   list.Model
	picked string
}

func newPickerModel(checkpoints []*snapshot.Checkpoint) pickerModel {
	items := make([]list.Item, 0, len(checkpoints))
	for _, cp := range checkpoints {
		items = append(items, checkpointItem{
			id:      cp.ID,
			name:    cp.Name,
			created: cp.CreatedAt.Local().Format(timeFormat),
			files:   len(cp.Paths()),
		})
	}

	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Select a checkpoint to restore"
	l.SetShowStatusBar(false)
	return pickerModel{list: l}
}

func (m pickerModel) Init() tea.Cmd {
	return nil
}

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height)
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			if item, ok := m.list.SelectedItem().(checkpointItem); ok {
				m.picked = item.id
			}
			return m, tea.Quit
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m pickerModel) View() string {
	return m.list.View()
}

// pickCheckpoint runs an interactive checkpoint picker. It returns the
// selected checkpoint id, or "" if the user cancelled.
func pickCheckpoint(checkpoints []*snapshot.Checkpoint) (string, error) {
	if len(checkpoints) == 0 {
		return "", fmt.Errorf("no checkpoints to pick from")
	}

	final, err := tea.NewProgram(newPickerModel(checkpoints)).Run()
	if err != nil {
		return "", fmt.Errorf("running picker: %w", err)
	}
	m, ok := final.(pickerModel)
	if !ok {
		return "", fmt.Errorf("unexpected picker state")
	}
	return m.picked, nil
}
