package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penwyp/claudequota/limits"
	"github.com/penwyp/claudequota/orchestrator"
)

func TestWriteJSON_ReportSchema(t *testing.T) {
	reset := time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)
	rep := orchestrator.Report{
		Plan:           limits.PlanPro,
		WindowHours:    5,
		CalculatedAt:   reset,
		ModelBreakdown: []orchestrator.ModelUsage{},
		ResetStatus:    orchestrator.ResetStatus{IsReset: true, ResetAt: &reset},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, rep))
	assert.True(t, strings.HasSuffix(buf.String(), "}\n"))
	assert.Contains(t, buf.String(), "\n  \"plan\": \"pro\"")

	var decoded map[string]any
	require.NoError(t, sonic.Unmarshal(buf.Bytes(), &decoded))
	assert.Contains(t, decoded, "windowStart")
	assert.Nil(t, decoded["windowStart"])
	assert.Equal(t, []any{}, decoded["modelBreakdown"])
	assert.NotContains(t, decoded, "error")
	assert.NotContains(t, decoded, "failed")

	status := decoded["resetStatus"].(map[string]any)
	assert.Equal(t, true, status["isReset"])
	assert.Equal(t, "2025-06-01T15:00:00Z", status["resetAt"])

	tokens := decoded["tokens"].(map[string]any)
	assert.Contains(t, tokens["raw"], "cacheCreation")
	assert.Contains(t, decoded["legacy"], "remainingMessages")
}

func TestWriteJSONLine(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSONLine(&buf, map[string]int{"a": 1}))
	assert.Equal(t, "{\"a\":1}\n", buf.String())
}

func TestStatusFormatter_Empty(t *testing.T) {
	out := NewStatusFormatter(time.UTC).Format(limits.Calibration{}, limits.PlanMax100)
	assert.Contains(t, out, "max-100")
	assert.Contains(t, out, "100,000,000")
	assert.Contains(t, out, "No calibration samples yet")
}

func TestStatusFormatter_LatestSamples(t *testing.T) {
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	cal := limits.Calibration{Plan: limits.PlanPro, CurrentLimit: 18_500_000, Confidence: 0.7}
	for i := 0; i < 7; i++ {
		cal.History = append(cal.History, limits.CalibrationRecord{
			Timestamp:       base.Add(time.Duration(i) * time.Hour),
			ReportedPercent: float64(10 + i),
			WeightedTokens:  2_000_000,
			ImpliedLimit:    float64(18_000_000 + i*100_000),
		})
	}

	out := NewStatusFormatter(time.UTC).Format(cal, limits.PlanPro)
	assert.Contains(t, out, "18,500,000")
	assert.Contains(t, out, "7/10")
	assert.Contains(t, out, "70%")
	assert.Contains(t, out, "2025-06-01 15:00:00", "newest sample shown")
	assert.Contains(t, out, "2025-06-01 11:00:00")
	assert.NotContains(t, out, "2025-06-01 10:00:00", "only the latest five")
	assert.Less(t, strings.Index(out, "15:00:00"), strings.Index(out, "11:00:00"), "newest first")
	assert.NotContains(t, out, "not applied")

	other := NewStatusFormatter(time.UTC).Format(cal, limits.PlanMax200)
	assert.Contains(t, other, "not applied")
}

func TestColorScheme(t *testing.T) {
	assert.Equal(t, lipgloss.Color("#ff8800"), ConfidenceColors.Color(10))
	assert.Equal(t, lipgloss.Color("#ffff00"), ConfidenceColors.Color(30))
	assert.Equal(t, lipgloss.Color("#00ff00"), ConfidenceColors.Color(100))
	assert.Equal(t, lipgloss.Color("#ff8800"), ConfidenceColors.Color(-1))
}

func TestFormatNumbers(t *testing.T) {
	assert.Equal(t, "950", formatNumber(950))
	assert.Equal(t, "12K", formatNumber(12_345))
	assert.Equal(t, "20.0M", formatNumber(20_000_000))
	assert.Equal(t, "999", formatNumberWithCommas(999))
	assert.Equal(t, "1,234,567", formatNumberWithCommas(1_234_567))
}
