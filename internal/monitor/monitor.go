// Package monitor implements the live dashboard shown with --tui: CPU and
// GPU sparklines, the payload last sent and the state of every transport
// channel.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/luki/sensorlink/internal/chart"
	"github.com/luki/sensorlink/internal/history"
	"github.com/luki/sensorlink/internal/transport"
)

const refreshInterval = 500 * time.Millisecond

// ── Messages ─────────────────────────────────────────────────────────

type tickMsg time.Time

// ── Model ────────────────────────────────────────────────────────────

// Source is what the dashboard reads on every refresh.
type Source interface {
	Snapshot(n int) history.Snapshot
}

// Info describes the process for the title bar and sensor panel.
type Info struct {
	CPUName   string
	GPUName   string
	RecordDir string // empty when not recording
}

// Model is the BubbleTea model for the live dashboard.
type Model struct {
	src       Source
	info      Info
	snap      history.Snapshot
	width     int
	height    int
	scroll    int
	startTime time.Time
	paused    bool
}

// New creates the dashboard model.
func New(src Source, info Info) Model {
	return Model{
		src:       src,
		info:      info,
		snap:      history.Snapshot{Empty: true},
		startTime: time.Now(),
	}
}

// Run shows the dashboard until the user quits or ctx is done.
func Run(ctx context.Context, m Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

// ── Commands ─────────────────────────────────────────────────────────

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// ── Init / Update ────────────────────────────────────────────────────

func (m Model) Init() tea.Cmd {
	return tickCmd()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "up", "k":
			if m.scroll > 0 {
				m.scroll--
			}
		case "down", "j":
			m.scroll++
		case "home":
			m.scroll = 0
		case " ", "p":
			m.paused = !m.paused
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		if !m.paused {
			m.snap = m.src.Snapshot(m.chartWidth())
		}
		return m, tickCmd()
	}

	return m, nil
}

// ── Color palette ────────────────────────────────────────────────────

var (
	colorTitleBg  = lipgloss.Color("17")
	colorTitleFg  = lipgloss.Color("51")
	colorBorder   = lipgloss.Color("62")
	colorChipName = lipgloss.Color("147")
	colorLabel    = lipgloss.Color("252")
	colorDim      = lipgloss.Color("240")
	colorFooterBg = lipgloss.Color("235")
	colorOk       = lipgloss.Color("78")
	colorWarn     = lipgloss.Color("220")
	colorHigh     = lipgloss.Color("208")
	colorCrit     = lipgloss.Color("196")
)

func stateColor(s transport.State) lipgloss.Color {
	switch s {
	case transport.Available:
		return colorOk
	case transport.Degraded:
		return colorHigh
	case transport.Unavailable:
		return colorCrit
	default:
		return colorDim
	}
}

// ── View ─────────────────────────────────────────────────────────────

const (
	labelW = 10
	tempW  = 7
)

func (m Model) contentWidth() int {
	w := m.width - 2
	if w < 40 {
		w = 40
	}
	return w
}

func (m Model) chartWidth() int {
	w := m.contentWidth() - 4 - labelW - tempW - 30
	if w < 15 {
		w = 15
	}
	if w > 140 {
		w = 140
	}
	return w
}

func (m Model) View() string {
	if m.width == 0 {
		return "  Initializing..."
	}
	width := m.contentWidth()

	sections := []string{m.renderTitleBar(width)}
	if m.snap.Empty {
		waiting := lipgloss.NewStyle().
			Foreground(colorDim).
			Width(width).
			Align(lipgloss.Center).
			Padding(2, 0).
			Render("Waiting for the first reading...")
		sections = append(sections, waiting)
	} else {
		sections = append(sections, m.renderSensors(width), m.renderLinks(width))
	}
	sections = append(sections, m.renderFooter(width))

	lines := strings.Split(lipgloss.JoinVertical(lipgloss.Left, sections...), "\n")
	visible := m.height
	if visible < 5 {
		visible = 5
	}
	start := m.scroll
	if limit := len(lines) - visible; start > limit {
		start = limit
	}
	if start < 0 {
		start = 0
	}
	end := start + visible
	if end > len(lines) {
		end = len(lines)
	}
	return strings.Join(lines[start:end], "\n")
}

func (m Model) renderTitleBar(width int) string {
	logo := lipgloss.NewStyle().
		Bold(true).
		Foreground(colorTitleFg).
		Render("SENSORLINK")

	dimS := lipgloss.NewStyle().Foreground(colorDim)
	parts := []string{dimS.Render("up " + fmtDuration(time.Since(m.startTime)))}
	if !m.snap.Empty {
		parts = append(parts, dimS.Render(m.snap.Last.Time.Format("15:04:05")))
	}
	if m.paused {
		parts = append(parts, lipgloss.NewStyle().Foreground(colorCrit).Bold(true).Render("PAUSED"))
	}
	if m.info.RecordDir != "" {
		parts = append(parts, lipgloss.NewStyle().Foreground(colorCrit).Render("REC")+dimS.Render(" "+m.info.RecordDir))
	}
	right := strings.Join(parts, dimS.Render(" │ "))

	gap := width - lipgloss.Width(logo) - lipgloss.Width(right) - 4
	if gap < 1 {
		gap = 1
	}
	return lipgloss.NewStyle().
		Background(colorTitleBg).
		Width(width).
		Padding(0, 1).
		Render(logo + strings.Repeat(" ", gap) + right)
}

func panel(width int, rows ...string) string {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorBorder).
		Padding(0, 1).
		Width(width).
		Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func heading(title, detail string) string {
	return lipgloss.NewStyle().Bold(true).Foreground(colorChipName).Render(title) +
		"  " + lipgloss.NewStyle().Foreground(lipgloss.Color("243")).Render(detail)
}

func (m Model) renderSensors(width int) string {
	cw := m.chartWidth()
	r := m.snap.Last.Reading
	rows := []string{
		heading("Sensors", strings.TrimSuffix(m.snap.Last.Payload, "\n")),
		m.sensorRow("CPU", m.info.CPUName, r.CPU, r.CPUValid, m.snap.CPU, m.snap.CPUStats, chart.CPUThresholds, cw),
		m.sensorRow("GPU", m.info.GPUName, r.GPU, r.GPUValid, m.snap.GPU, m.snap.GPUStats, chart.GPUThresholds, cw),
	}
	if tl := chart.Timeline(m.snap.CPU, cw); strings.TrimSpace(tl) != "" {
		rows = append(rows, strings.Repeat(" ", labelW+tempW+3)+tl)
	}
	if n := m.info.CPUName + m.info.GPUName; n != "" {
		dimS := lipgloss.NewStyle().Foreground(colorDim)
		rows = append(rows, dimS.Render("CPU: "+m.info.CPUName+"  GPU: "+m.info.GPUName))
	}
	return panel(width, rows...)
}

func (m Model) sensorRow(label, name string, v int, valid bool, pts []history.Point, st history.Stats, th chart.Thresholds, cw int) string {
	rng := chart.DefaultRange
	if st.Count > 0 {
		rng = chart.Range{Min: max(0, st.Min-5), Max: max(st.Peak+5, th.High+5)}
	}
	dimS := lipgloss.NewStyle().Foreground(colorDim)
	valS := lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	frame := lipgloss.NewStyle().Foreground(colorBorder)

	l := lipgloss.NewStyle().Foreground(colorLabel).Width(labelW).Render(label)
	temp := lipgloss.NewStyle().Width(tempW).Align(lipgloss.Right).Render(chart.Value(v, valid, th))
	spark := frame.Render("▕") + chart.Sparkline(pts, cw, rng, th) + frame.Render("▏")
	stats := dimS.Render(" avg") + valS.Render(fmt.Sprintf("%5.1f", st.Avg)) +
		dimS.Render(" lo") + valS.Render(fmt.Sprintf("%4d", st.Min)) +
		dimS.Render(" pk") + valS.Render(fmt.Sprintf("%4d", st.Peak))
	return l + " " + temp + " " + spark + stats
}

func (m Model) renderLinks(width int) string {
	dimS := lipgloss.NewStyle().Foreground(colorDim)
	rows := []string{heading("Transport", fmt.Sprintf("%d delivered, %d dropped", m.snap.Delivered, m.snap.Dropped))}
	for i, l := range m.snap.Links {
		marker := "  "
		if l.State == transport.Available && m.firstAvailable() == i {
			marker = lipgloss.NewStyle().Foreground(colorOk).Render("▶ ")
		}
		name := lipgloss.NewStyle().Foreground(colorLabel).Width(labelW).Render(l.Name)
		state := lipgloss.NewStyle().Foreground(stateColor(l.State)).Width(12).Render(l.State.String())
		row := marker + name + state + dimS.Render(l.Endpoint.String()) +
			dimS.Render(fmt.Sprintf("  sent %d  failed %d", l.Sent, l.Failed))
		rows = append(rows, row)
		if l.LastErr != "" {
			rows = append(rows, "  "+lipgloss.NewStyle().Foreground(colorWarn).Render(truncate(l.LastErr, width-8)))
		}
	}
	return panel(width, rows...)
}

func (m Model) firstAvailable() int {
	for i, l := range m.snap.Links {
		if l.State == transport.Available {
			return i
		}
	}
	return -1
}

func (m Model) renderFooter(width int) string {
	block := func(c lipgloss.Color) string { return lipgloss.NewStyle().Foreground(c).Render("██") }
	dimS := lipgloss.NewStyle().Foreground(colorDim)
	keyS := lipgloss.NewStyle().Foreground(colorLabel)

	legend := block(colorOk) + dimS.Render(" ok ") +
		block(colorWarn) + dimS.Render(" warm ") +
		block(colorHigh) + dimS.Render(" high ") +
		block(colorCrit) + dimS.Render(" crit ") +
		lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Render("│") + dimS.Render(" 1min")

	keys := dimS.Render("q") + keyS.Render(":quit") +
		dimS.Render("  j/k") + keyS.Render(":scroll") +
		dimS.Render("  p") + keyS.Render(":pause")

	gap := width - lipgloss.Width(legend) - lipgloss.Width(keys) - 4
	if gap < 1 {
		gap = 1
	}
	return lipgloss.NewStyle().
		Background(colorFooterBg).
		Width(width).
		Padding(0, 1).
		Render(legend + strings.Repeat(" ", gap) + keys)
}

func truncate(s string, w int) string {
	r := []rune(s)
	if len(r) <= w {
		return s
	}
	if w <= 3 {
		return string(r[:max(w, 0)])
	}
	return string(r[:w-1]) + "…"
}

func fmtDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}
