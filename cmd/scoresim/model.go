package main

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/outline-audio/scorecore/internal/renderer"
)

// blockRenderedMsg reports the result of one simulated audio callback.
type blockRenderedMsg struct {
	peak      float32
	underflow bool
}

const peakHistoryLen = 40

type simModel struct {
	renderer *renderer.Renderer
	program  *tea.Program

	blocksRendered int
	underflows     int
	peakHistory    []float32

	width, height int
}

func newSimModel(r *renderer.Renderer) *simModel {
	return &simModel{
		renderer:    r,
		peakHistory: make([]float32, 0, peakHistoryLen),
	}
}

func (m *simModel) Init() tea.Cmd { return nil }

func (m *simModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case blockRenderedMsg:
		m.blocksRendered++
		if msg.underflow {
			m.underflows++
		}
		m.peakHistory = append(m.peakHistory, msg.peak)
		if len(m.peakHistory) > peakHistoryLen {
			m.peakHistory = m.peakHistory[len(m.peakHistory)-peakHistoryLen:]
		}
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}
	}
	return m, nil
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#5F5FD7")).
			Padding(0, 1)
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#00D787")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F")).Bold(true)
	meterOnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#00D787"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
)

func (m *simModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("scorecore — scoresim") + "\n\n")
	b.WriteString(labelStyle.Render("Blocks rendered: ") + valueStyle.Render(fmt.Sprintf("%d", m.blocksRendered)) + "\n")

	underflowLine := labelStyle.Render("Underflows: ")
	if m.underflows > 0 {
		underflowLine += warnStyle.Render(fmt.Sprintf("%d", m.underflows))
	} else {
		underflowLine += valueStyle.Render("0")
	}
	b.WriteString(underflowLine + "\n\n")

	b.WriteString(labelStyle.Render("Output peak:") + "\n")
	b.WriteString(renderMeter(m.peakHistory) + "\n\n")

	b.WriteString(helpStyle.Render("q / ctrl+c: quit"))
	return b.String()
}

func renderMeter(history []float32) string {
	var b strings.Builder
	for _, peak := range history {
		bars := int(peak * 10)
		if bars > 10 {
			bars = 10
		}
		b.WriteString(meterOnStyle.Render(strings.Repeat("█", bars)) + strings.Repeat(" ", 10-bars) + "\n")
	}
	return b.String()
}
