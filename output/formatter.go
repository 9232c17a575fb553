package output

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/penwyp/claudequota/limits"
	"github.com/penwyp/claudequota/models"
)

// ColorThreshold maps a minimum percentage to a colour.
type ColorThreshold struct {
	Value float64
	Color lipgloss.Color
}

// ColorScheme picks a colour by percentage.
type ColorScheme struct {
	Thresholds []ColorThreshold
	Default    lipgloss.Color
}

// ConfidenceColors grows greener as more samples are collected.
var ConfidenceColors = ColorScheme{
	Thresholds: []ColorThreshold{
		{Value: 0, Color: "#ff8800"},
		{Value: 30, Color: "#ffff00"},
		{Value: 70, Color: "#00ff00"},
	},
	Default: "#ff8800",
}

// Color returns the colour for percentage.
func (cs ColorScheme) Color(percentage float64) lipgloss.Color {
	for i := len(cs.Thresholds) - 1; i >= 0; i-- {
		if percentage >= cs.Thresholds[i].Value {
			return cs.Thresholds[i].Color
		}
	}
	return cs.Default
}

// StatusFormatter renders the calibration history for the terminal.
type StatusFormatter struct {
	location   *time.Location
	barWidth   int
	titleStyle lipgloss.Style
	labelStyle lipgloss.Style
	faintStyle lipgloss.Style
	boxStyle   lipgloss.Style
}

// NewStatusFormatter creates a formatter printing times in loc (local time if nil).
func NewStatusFormatter(loc *time.Location) *StatusFormatter {
	if loc == nil {
		loc = time.Local
	}
	return &StatusFormatter{
		location:   loc,
		barWidth:   30,
		titleStyle: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		labelStyle: lipgloss.NewStyle().Bold(true),
		faintStyle: lipgloss.NewStyle().Faint(true),
		boxStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1),
	}
}

// Format renders the calibration state for the active plan.
func (f *StatusFormatter) Format(cal limits.Calibration, active limits.PlanType) string {
	var lines []string
	lines = append(lines, f.titleStyle.Render("Usage calibration"))
	lines = append(lines, "")

	if len(cal.History) == 0 {
		sp := limits.GetPlan(active)
		lines = append(lines, f.row("Plan", string(active)))
		lines = append(lines, f.row("Limit", formatNumberWithCommas(int64(sp.TokenLimit))+" (plan default)"))
		lines = append(lines, "")
		lines = append(lines, f.faintStyle.Render("No calibration samples yet. Run `claudequota calibrate <percent>`."))
		return f.boxStyle.Render(strings.Join(lines, "\n"))
	}

	lines = append(lines, f.row("Plan", string(cal.Plan)))
	if cal.Plan != active {
		lines = append(lines, f.faintStyle.Render(fmt.Sprintf("Active plan is %s; these samples are not applied.", active)))
	}
	lines = append(lines, f.row("Limit", formatNumberWithCommas(int64(math.Round(cal.CurrentLimit)))))
	lines = append(lines, f.row("Confidence", f.renderBar(cal.Confidence*100)))
	lines = append(lines, f.row("Samples", fmt.Sprintf("%d/%d", len(cal.History), models.MaxCalibrationHistory)))

	if d := cal.Distribution(); d.Count > 1 {
		lines = append(lines, f.row("Spread", fmt.Sprintf("%s - %s (median %s)",
			formatNumber(d.Min), formatNumber(d.Max), formatNumber(d.Median))))
	}

	lines = append(lines, "")
	lines = append(lines, f.labelStyle.Render(fmt.Sprintf("%-19s %8s %12s %12s", "Time", "Reported", "Weighted", "Implied")))
	for _, rec := range cal.Latest(models.StatusViewEntries) {
		lines = append(lines, fmt.Sprintf("%-19s %7.1f%% %12s %12s",
			rec.Timestamp.In(f.location).Format(models.DisplayTimeFormat),
			rec.ReportedPercent,
			formatNumber(rec.WeightedTokens),
			formatNumber(rec.ImpliedLimit),
		))
	}

	return f.boxStyle.Render(strings.Join(lines, "\n"))
}

func (f *StatusFormatter) row(label, value string) string {
	return f.labelStyle.Render(fmt.Sprintf("%-11s", label)) + value
}

// renderBar renders a fixed-width bar followed by the percentage.
func (f *StatusFormatter) renderBar(percentage float64) string {
	filled := int(percentage * float64(f.barWidth) / 100)
	if filled > f.barWidth {
		filled = f.barWidth
	}
	if filled < 0 {
		filled = 0
	}

	bar := strings.Repeat("█", filled) + strings.Repeat("░", f.barWidth-filled)
	bar = lipgloss.NewStyle().Foreground(ConfidenceColors.Color(percentage)).Render(bar)
	return fmt.Sprintf("[%s] %.0f%%", bar, percentage)
}

// formatNumber formats large numbers with K/M suffixes.
func formatNumber(n float64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", n/1_000_000)
	case n >= 1000:
		return fmt.Sprintf("%.0fK", n/1000)
	}
	return fmt.Sprintf("%.0f", n)
}

// formatNumberWithCommas formats numbers with commas for thousands.
func formatNumberWithCommas(n int64) string {
	str := fmt.Sprintf("%d", n)
	if n < 1000 {
		return str
	}

	var b strings.Builder
	for i, digit := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(digit)
	}
	return b.String()
}
