// Package viewer implements the browser for recorded days: a time cursor
// to scrub through a day, day navigation and CPU/GPU sparkline windows
// ending at the cursor.
package viewer

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/luki/sensorlink/internal/chart"
	"github.com/luki/sensorlink/internal/history"
	"github.com/luki/sensorlink/internal/store"
)

// ErrNoHistory means the data directory holds no recorded day.
var ErrNoHistory = errors.New("no recorded history")

// Run launches the viewer over the days recorded in dir, or in the
// default data directory when dir is empty.
func Run(dir string) error {
	if dir == "" {
		dir = store.DataDir()
	}
	days, err := store.ListDays(dir)
	if err != nil {
		return fmt.Errorf("list %s: %w", dir, err)
	}
	if len(days) == 0 {
		return fmt.Errorf("%w in %s", ErrNoHistory, dir)
	}

	p := tea.NewProgram(
		initModel(dir, days),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	_, err = p.Run()
	return err
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
	colorCrit     = lipgloss.Color("196")
	colorCursor   = lipgloss.Color("214")
)

// ── Model ────────────────────────────────────────────────────────────

type model struct {
	dir    string
	days   []string    // newest first
	dayIdx int         // currently selected day
	rows   []store.Row // current day, sorted by time
	cursor int         // index into rows
	scroll int
	width  int
	height int
	err    error

	cpu, gpu []history.Point
}

func initModel(dir string, days []string) model {
	m := model{dir: dir, days: days}
	m.loadDay()
	return m
}

func (m *model) loadDay() {
	rows, err := store.LoadDay(m.dir, m.days[m.dayIdx])
	if err != nil {
		m.err = err
		m.rows, m.cpu, m.gpu = nil, nil, nil
		return
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Time.Before(rows[j].Time) })
	m.rows = rows
	m.err = nil

	m.cpu, m.gpu = nil, nil
	for _, r := range rows {
		if r.CPUValid {
			m.cpu = append(m.cpu, history.Point{Celsius: r.CPU, Time: r.Time})
		}
		if r.GPUValid {
			m.gpu = append(m.gpu, history.Point{Celsius: r.GPU, Time: r.Time})
		}
	}

	m.cursor = max(len(m.rows)-1, 0)
	m.scroll = 0
}

// ── Init / Update ────────────────────────────────────────────────────

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		last := len(m.rows) - 1
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit

		case "left", "h":
			m.cursor = max(m.cursor-1, 0)
		case "right", "l":
			m.cursor = max(min(m.cursor+1, last), 0)
		case "shift+left", "H":
			m.cursor = max(m.cursor-60, 0)
		case "shift+right", "L":
			m.cursor = max(min(m.cursor+60, last), 0)
		case "home":
			m.cursor = 0
		case "end":
			m.cursor = max(last, 0)

		case "[":
			if m.dayIdx < len(m.days)-1 {
				m.dayIdx++
				m.loadDay()
			}
		case "]":
			if m.dayIdx > 0 {
				m.dayIdx--
				m.loadDay()
			}

		case "up", "k":
			if m.scroll > 0 {
				m.scroll--
			}
		case "down", "j":
			m.scroll++
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	}

	return m, nil
}

// ── View ─────────────────────────────────────────────────────────────

func (m model) View() string {
	if m.width == 0 {
		return "  Loading..."
	}
	width := max(m.width-2, 40)

	sections := []string{m.renderTitle(width)}
	if m.err != nil {
		sections = append(sections, lipgloss.NewStyle().
			Foreground(colorCrit).
			Bold(true).
			Padding(0, 1).
			Render(fmt.Sprintf("ERROR: %v", m.err)))
	}
	if len(m.rows) == 0 {
		sections = append(sections, lipgloss.NewStyle().
			Foreground(colorDim).
			Padding(2, 0).
			Align(lipgloss.Center).
			Width(width).
			Render("No data for this day."))
	} else {
		sections = append(sections, m.renderCursorInfo(width), m.renderPanel(width))
	}
	sections = append(sections, m.renderFooter(width))

	lines := strings.Split(lipgloss.JoinVertical(lipgloss.Left, sections...), "\n")
	visible := max(m.height, 5)
	start := max(min(m.scroll, len(lines)-visible), 0)
	end := min(start+visible, len(lines))
	return strings.Join(lines[start:end], "\n")
}

func (m model) renderTitle(width int) string {
	logo := lipgloss.NewStyle().
		Bold(true).
		Foreground(colorTitleFg).
		Render("SENSORLINK HISTORY")

	dayText := lipgloss.NewStyle().
		Foreground(colorCursor).
		Bold(true).
		Render(m.days[m.dayIdx])
	nav := lipgloss.NewStyle().
		Foreground(colorDim).
		Render(fmt.Sprintf("  [ %d/%d ]", m.dayIdx+1, len(m.days)))

	info := ""
	if n := len(m.rows); n > 0 {
		info = lipgloss.NewStyle().
			Foreground(colorDim).
			Render(fmt.Sprintf("  %s - %s  (%d samples, %.0f%% delivered)",
				m.rows[0].Time.Format("15:04:05"), m.rows[n-1].Time.Format("15:04:05"), n, m.deliveredPct()))
	}
	right := dayText + nav + info

	gap := max(width-lipgloss.Width(logo)-lipgloss.Width(right)-4, 1)
	return lipgloss.NewStyle().
		Background(colorTitleBg).
		Width(width).
		Padding(0, 1).
		Render(logo + strings.Repeat(" ", gap) + right)
}

func (m model) deliveredPct() float64 {
	if len(m.rows) == 0 {
		return 0
	}
	n := 0
	for _, r := range m.rows {
		if r.Delivered {
			n++
		}
	}
	return 100 * float64(n) / float64(len(m.rows))
}

func (m model) renderCursorInfo(width int) string {
	r := m.rows[m.cursor]
	ts := lipgloss.NewStyle().
		Foreground(colorCursor).
		Bold(true).
		Render(r.Time.Format("15:04:05"))
	pos := lipgloss.NewStyle().
		Foreground(colorDim).
		Render(fmt.Sprintf("  %d/%d", m.cursor+1, len(m.rows)))

	via := lipgloss.NewStyle().Foreground(colorCrit).Render("  dropped")
	if r.Delivered {
		via = lipgloss.NewStyle().Foreground(colorOk).Render("  via " + r.Channel)
	}

	return lipgloss.NewStyle().
		Padding(0, 1).
		Render("  " + ts + pos + via + "  " + m.renderScrubber(max(width-45, 10)))
}

// renderScrubber draws the cursor position across the day with a tick at
// every hour boundary.
func (m model) renderScrubber(width int) string {
	n := len(m.rows)
	pos := 0
	if n > 1 {
		pos = min(m.cursor*(width-1)/(n-1), width-1)
	}

	dimS := lipgloss.NewStyle().Foreground(lipgloss.Color("237"))
	curS := lipgloss.NewStyle().Foreground(colorCursor).Bold(true)
	tickS := lipgloss.NewStyle().Foreground(lipgloss.Color("239"))

	var sb strings.Builder
	for i := 0; i < width; i++ {
		if i == pos {
			sb.WriteString(curS.Render("◆"))
			continue
		}
		slot := 0
		if n > 1 {
			slot = i * (n - 1) / (width - 1)
		}
		if slot > 0 && slot < n && m.rows[slot].Time.Hour() != m.rows[slot-1].Time.Hour() {
			sb.WriteString(tickS.Render("│"))
			continue
		}
		sb.WriteString(dimS.Render("─"))
	}
	return sb.String()
}

const (
	labelW = 8
	tempW  = 8
)

func (m model) renderPanel(width int) string {
	chartWidth := min(max(width-4-labelW-tempW-30, 15), 140)
	cursorTime := m.rows[m.cursor].Time
	cur := m.rows[m.cursor]

	heading := lipgloss.NewStyle().Bold(true).Foreground(colorChipName).Render("Temperatures")
	rows := []string{heading}

	series := []struct {
		label string
		pts   []history.Point
		v     int
		valid bool
		th    chart.Thresholds
	}{
		{"CPU", m.cpu, cur.CPU, cur.CPUValid, chart.CPUThresholds},
		{"GPU", m.gpu, cur.GPU, cur.GPUValid, chart.GPUThresholds},
	}
	var lastWindow []history.Point
	for _, s := range series {
		if len(s.pts) == 0 {
			continue
		}
		window := Window(s.pts, cursorTime, chartWidth)
		lastWindow = window
		lo, pk, avg := stats(s.pts)
		rng := chart.Range{Min: max(0, lo-5), Max: max(pk+5, s.th.High+5)}

		dimS := lipgloss.NewStyle().Foreground(colorDim)
		valS := lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
		frame := lipgloss.NewStyle().Foreground(colorBorder)

		label := lipgloss.NewStyle().Foreground(colorLabel).Bold(true).Width(labelW).Render(s.label)
		temp := lipgloss.NewStyle().Width(tempW).Align(lipgloss.Right).Render(chart.Value(s.v, s.valid, s.th))
		spark := frame.Render("▕") + chart.Sparkline(window, chartWidth, rng, s.th) + frame.Render("▏")
		st := dimS.Render(" avg") + valS.Render(fmt.Sprintf("%5.1f", avg)) +
			dimS.Render(" lo") + valS.Render(fmt.Sprintf("%4d", lo)) +
			dimS.Render(" pk") + valS.Render(fmt.Sprintf("%4d", pk))
		rows = append(rows, label+" "+temp+" "+spark+st)
	}
	if tl := chart.Timeline(lastWindow, chartWidth); strings.TrimSpace(tl) != "" {
		rows = append(rows, strings.Repeat(" ", labelW+tempW+3)+tl)
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorBorder).
		Padding(0, 1).
		Width(width).
		Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m model) renderFooter(width int) string {
	dimS := lipgloss.NewStyle().Foreground(colorDim)
	keyS := lipgloss.NewStyle().Foreground(colorLabel)

	keys := dimS.Render("q") + keyS.Render(":quit") +
		dimS.Render("  h/l") + keyS.Render(":scrub") +
		dimS.Render("  H/L") + keyS.Render(":skip 1m") +
		dimS.Render("  home/end") + keyS.Render(":jump") +
		dimS.Render("  [/]") + keyS.Render(":day") +
		dimS.Render("  j/k") + keyS.Render(":scroll")

	return lipgloss.NewStyle().
		Background(colorFooterBg).
		Width(width).
		Padding(0, 1).
		Render(keys)
}

// ── Helpers ──────────────────────────────────────────────────────────

// Window returns at most width points of pts ending at the last point not
// after t. pts must be sorted by time.
func Window(pts []history.Point, t time.Time, width int) []history.Point {
	if width <= 0 {
		return nil
	}
	end := sort.Search(len(pts), func(i int) bool { return pts[i].Time.After(t) })
	start := max(end-width, 0)
	return pts[start:end]
}

func stats(pts []history.Point) (lo, pk int, avg float64) {
	lo, pk = pts[0].Celsius, pts[0].Celsius
	sum := 0
	for _, p := range pts {
		lo = min(lo, p.Celsius)
		pk = max(pk, p.Celsius)
		sum += p.Celsius
	}
	return lo, pk, float64(sum) / float64(len(pts))
}
