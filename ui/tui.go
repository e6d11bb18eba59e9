package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

// UIState represents the aggregated relay state shown by the TUI
type UIState struct {
	TotalFiles     int64
	TotalBytes     int64 // sum of declared sizes, zero when unknown
	CompletedFiles int64
	FailedFiles    int64
	CompletedBytes int64
	ActiveStreams  []*ActiveStream
	ActiveWorkers  int
	MaxWorkers     int
	ThroughputBPms float64 // bytes per millisecond
	Recent         []string
	Done           bool
}

// ActiveStream represents a relay in flight
type ActiveStream struct {
	JobID    string
	FilePath string
	State    string
	Written  int64
	Progress float64 // 0.0 to 1.0, zero when the size is unknown
	BytesSec float64 // bytes per second for this stream
}

// TUIModel implements the tea.Model interface
type TUIModel struct {
	state    *UIState
	spinner  spinner.Model
	progress progress.Model
	viewport viewport.Model

	width  int
	height int

	// Styles
	titleStyle   lipgloss.Style
	infoStyle    lipgloss.Style
	streamStyle  lipgloss.Style
	helpStyle    lipgloss.Style
	errorStyle   lipgloss.Style
	successStyle lipgloss.Style
}

// TUIUpdateMsg is sent periodically to update the UI state
type TUIUpdateMsg struct {
	State *UIState
}

func NewTUIModel(initialState *UIState) TUIModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	prog := progress.New(progress.WithDefaultGradient())

	return TUIModel{
		state:        initialState,
		spinner:      s,
		progress:     prog,
		titleStyle:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).Padding(0, 1),
		infoStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		streamStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("78")),
		helpStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")).MarginTop(1),
		errorStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		successStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
	}
}

func (m TUIModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m TUIModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = msg.Width / 3

		headerHeight := 5
		footerHeight := 2 + recentResults
		m.viewport = viewport.New(msg.Width, max(msg.Height-headerHeight-footerHeight, 1))

	case TUIUpdateMsg:
		m.state = msg.State
		if m.state.Done {
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m TUIModel) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var sb strings.Builder
	st := m.state

	sb.WriteString(fmt.Sprintf("%s frelay %s\n", m.spinner.View(), m.titleStyle.Render("Streaming File Relay")))

	var percent float64
	if st.TotalFiles > 0 {
		percent = float64(st.CompletedFiles) / float64(st.TotalFiles)
	}
	info := fmt.Sprintf("Files: %d/%d (%d failed) | Workers: %d/%d | %s relayed | ETA: %s",
		st.CompletedFiles, st.TotalFiles, st.FailedFiles,
		st.ActiveWorkers, st.MaxWorkers,
		humanize.IBytes(uint64(st.CompletedBytes)),
		formatETA(percent, st.ThroughputBPms, st.TotalBytes, st.CompletedBytes))
	sb.WriteString(m.infoStyle.Render(info) + "\n")
	sb.WriteString(m.progress.ViewAs(percent) + "\n\n")

	sb.WriteString("Active Relays:\n")
	var streamContent strings.Builder
	if len(st.ActiveStreams) == 0 {
		streamContent.WriteString(m.infoStyle.Render("No active relays..."))
	}
	for _, s := range st.ActiveStreams {
		name := s.FilePath
		if len(name) > 40 {
			name = "..." + name[len(name)-37:]
		}
		// [===       ] 30% | streaming    | 4.5 MiB/s | report.pdf
		streamContent.WriteString(fmt.Sprintf("%s | %-12s | %-12s | %s\n",
			m.progress.ViewAs(s.Progress), s.State, m.streamStyle.Render(formatSpeed(s.BytesSec)), name))
	}
	m.viewport.SetContent(streamContent.String())
	sb.WriteString(m.viewport.View())

	sb.WriteString("\n")
	for _, line := range st.Recent {
		style := m.infoStyle
		if strings.HasPrefix(line, "Could not") {
			style = m.errorStyle
		}
		sb.WriteString(style.Render(line) + "\n")
	}

	help := m.helpStyle.Render("q/ctrl+c: quit")
	if st.Done {
		help = m.successStyle.Render("Relay Complete!") + " Press 'q' to exit."
	}
	sb.WriteString(help)

	return sb.String()
}

// Watch sends a snapshot of t to p every interval until ctx ends, then
// sends a final one.
func Watch(ctx context.Context, p *tea.Program, t *Tracker, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.Send(TUIUpdateMsg{State: t.Snapshot()})
			return
		case <-ticker.C:
			p.Send(TUIUpdateMsg{State: t.Snapshot()})
		}
	}
}

func formatSpeed(bytesPerSec float64) string {
	if bytesPerSec < 1 {
		return "0 B/s"
	}
	return humanize.IBytes(uint64(bytesPerSec)) + "/s"
}

func formatETA(progress float64, bytesPerMs float64, totalBytes, completedBytes int64) string {
	if progress == 0 || bytesPerMs <= 0 || totalBytes == 0 {
		return "Calculating..."
	}

	remainingBytes := totalBytes - completedBytes
	if remainingBytes <= 0 {
		return "0s"
	}

	d := time.Duration(float64(remainingBytes)/bytesPerMs) * time.Millisecond
	if d.Hours() > 24 {
		return "> 1d"
	}
	return d.Round(time.Second).String()
}
