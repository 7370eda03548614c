// Package chart renders temperature sparklines, minute timelines and
// threshold scales for the dashboards.
package chart

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/luki/sensorlink/internal/history"
)

var sparkBlocks = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

var (
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("236"))
	tickStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
)

// Thresholds are the warning and critical temperatures of a sensor. A
// zero field is unset.
type Thresholds struct {
	High int
	Crit int
}

var (
	// CPUThresholds suit desktop processors.
	CPUThresholds = Thresholds{High: 80, Crit: 95}
	// GPUThresholds suit discrete graphics cards.
	GPUThresholds = Thresholds{High: 83, Crit: 95}
)

// Color returns the color for v.
func (th Thresholds) Color(v int) lipgloss.Color {
	switch {
	case th.Crit > 0 && v >= th.Crit:
		return lipgloss.Color("196") // red
	case th.High > 0 && v >= th.High:
		return lipgloss.Color("208") // orange
	case th.High > 0 && float64(v) >= float64(th.High)*0.85:
		return lipgloss.Color("220") // yellow
	default:
		return lipgloss.Color("78") // soft green
	}
}

func (th Thresholds) style(v int) lipgloss.Style {
	s := lipgloss.NewStyle().Foreground(th.Color(v))
	if th.Crit > 0 && v >= th.Crit {
		s = s.Bold(true)
	}
	return s
}

// Range is the value span mapped onto the chart height.
type Range struct {
	Min, Max int
}

// DefaultRange covers idle to throttling temperatures.
var DefaultRange = Range{Min: 20, Max: 100}

func (r Range) norm(v int) float64 {
	span := r.Max - r.Min
	if span <= 0 {
		span = 1
	}
	n := float64(v-r.Min) / float64(span)
	if n < 0 {
		return 0
	}
	if n > 1 {
		return 1
	}
	return n
}

// isMinuteTick reports whether points[i] starts a new minute.
func isMinuteTick(points []history.Point, i int) bool {
	p := points[i]
	if p.Time.IsZero() {
		return false
	}
	if p.Time.Second() == 0 {
		return true
	}
	if i == 0 || points[i-1].Time.IsZero() {
		return false
	}
	return p.Time.Minute() != points[i-1].Time.Minute()
}

// Sparkline renders the last width points, right-aligned, with a pipe at
// every minute boundary.
func Sparkline(points []history.Point, width int, rng Range, th Thresholds) string {
	if width <= 0 {
		return ""
	}
	if len(points) == 0 {
		return dimStyle.Render(strings.Repeat("╌", width))
	}
	if len(points) > width {
		points = points[len(points)-width:]
	}

	var sb strings.Builder
	for i := 0; i < width-len(points); i++ {
		sb.WriteString(dimStyle.Render("╌"))
	}
	for i, p := range points {
		if isMinuteTick(points, i) {
			sb.WriteString(tickStyle.Render("│"))
			continue
		}
		idx := int(rng.norm(p.Celsius) * 7)
		sb.WriteString(th.style(p.Celsius).Render(string(sparkBlocks[idx])))
	}
	return sb.String()
}

// Timeline renders HH:MM labels under a Sparkline of the same points and
// width. Labels that would overlap are skipped.
func Timeline(points []history.Point, width int) string {
	if len(points) == 0 || width <= 0 {
		return ""
	}
	if len(points) > width {
		points = points[len(points)-width:]
	}
	pad := width - len(points)

	line := []rune(strings.Repeat(" ", width))
	lastEnd := -1
	for i, p := range points {
		if !isMinuteTick(points, i) {
			continue
		}
		label := p.Time.Format("15:04")
		start := pad + i - 2
		if start < 0 {
			start = 0
		}
		end := start + len(label)
		if end > width || start <= lastEnd+1 {
			continue
		}
		copy(line[start:], []rune(label))
		lastEnd = end
	}
	return tickStyle.Render(string(line))
}

// Scale renders a bar of the given width marking the thresholds and the
// current value.
func Scale(current int, width int, rng Range, th Thresholds) string {
	if width <= 0 {
		return ""
	}
	pos := func(v int) int {
		return int(float64(width-1) * rng.norm(v))
	}
	highPos, critPos := -1, -1
	if th.High > rng.Min {
		highPos = pos(th.High)
	}
	if th.Crit > rng.Min {
		critPos = pos(th.Crit)
	}
	cur := pos(current)

	var sb strings.Builder
	for i := 0; i < width; i++ {
		switch i {
		case cur:
			sb.WriteString(lipgloss.NewStyle().Foreground(th.Color(current)).Bold(true).Render("◆"))
		case critPos:
			sb.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("▪"))
		case highPos:
			sb.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Render("▪"))
		default:
			sb.WriteString(dimStyle.Render("·"))
		}
	}
	return sb.String()
}

// Value renders a temperature with its threshold color. Invalid values
// render as a dash.
func Value(celsius int, valid bool, th Thresholds) string {
	if !valid {
		return dimStyle.Render("  --°C")
	}
	return th.style(celsius).Render(fmt.Sprintf("%4d°C", celsius))
}
