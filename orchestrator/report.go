package orchestrator

import (
	"time"

	"github.com/penwyp/claudequota/limits"
	"github.com/penwyp/claudequota/models"
)

// Report is the usage snapshot printed for one computation.
type Report struct {
	Plan           limits.PlanType `json:"plan"`
	WindowHours    int             `json:"windowHours"`
	WindowStart    *time.Time      `json:"windowStart"`
	WindowEnd      *time.Time      `json:"windowEnd"`
	TimeUntilReset int64           `json:"timeUntilReset"`
	CalculatedAt   time.Time       `json:"calculatedAt"`

	Tokens         TokenTotals  `json:"tokens"`
	ModelBreakdown []ModelUsage `json:"modelBreakdown"`

	TokenPercent     float64 `json:"tokenPercent"`
	TokenLimit       int64   `json:"tokenLimit"`
	RemainingPercent float64 `json:"remainingPercent"`
	RemainingTokens  int64   `json:"remainingTokens"`
	// MessagePercent mirrors TokenPercent for consumers of the older field.
	MessagePercent float64 `json:"messagePercent"`

	Calibration CalibrationInfo `json:"calibration"`
	ResetStatus ResetStatus     `json:"resetStatus"`
	Legacy      LegacyUsage     `json:"legacy"`

	Error string `json:"error,omitempty"`

	failed bool
}

// Failed reports whether the computation hit an internal error. A missing
// log directory is reported in-band and is not a failure.
func (r Report) Failed() bool {
	return r.failed
}

// Weighted returns the weighted token total of the window.
func (r Report) Weighted() float64 {
	return r.Tokens.Weighted.Total
}

type TokenTotals struct {
	Raw      RawTokens      `json:"raw"`
	Weighted WeightedTokens `json:"weighted"`
}

type RawTokens struct {
	Input         int64 `json:"input"`
	Output        int64 `json:"output"`
	CacheCreation int64 `json:"cacheCreation"`
	CacheRead     int64 `json:"cacheRead"`
	Total         int64 `json:"total"`
}

func (r *RawTokens) add(u models.TokenUsage) {
	r.Input += u.InputTokens
	r.Output += u.OutputTokens
	r.CacheCreation += u.CacheCreationTokens
	r.CacheRead += u.CacheReadTokens
	r.Total += u.Total()
}

type WeightedTokens struct {
	Input  float64 `json:"input"`
	Output float64 `json:"output"`
	Total  float64 `json:"total"`
}

// ModelUsage is the contribution of one model key to the window.
type ModelUsage struct {
	ModelKey       string   `json:"modelKey"`
	Models         []string `json:"models"`
	Requests       int      `json:"requests"`
	RawTokens      int64    `json:"rawTokens"`
	WeightedTokens float64  `json:"weightedTokens"`
	Percent        float64  `json:"percent"`
	// TokenShare is this key's share of the weighted total, PercentShare its
	// share of the summed percent. Both are 0-100.
	TokenShare   float64 `json:"tokenShare"`
	PercentShare float64 `json:"percentShare"`
}

type CalibrationInfo struct {
	CurrentLimit float64 `json:"currentLimit"`
	Confidence   float64 `json:"confidence"`
	Samples      int     `json:"samples"`
	// Applied is true when the calibrated limit replaced the plan default.
	Applied bool `json:"applied"`
}

type ResetStatus struct {
	IsReset bool       `json:"isReset"`
	ResetAt *time.Time `json:"resetAt"`
}

// LegacyUsage is the message-count view of the window.
type LegacyUsage struct {
	MessageCount      int `json:"messageCount"`
	MessageLimit      int `json:"messageLimit"`
	MessagePercent    int `json:"messagePercent"`
	RemainingMessages int `json:"remainingMessages"`
}

// newReport returns a zero-usage report for plan at now.
func newReport(plan limits.PlanType, now time.Time) Report {
	sp := limits.GetPlan(plan)
	return Report{
		Plan:             plan,
		WindowHours:      models.WindowHours,
		CalculatedAt:     now,
		ModelBreakdown:   []ModelUsage{},
		TokenLimit:       int64(sp.TokenLimit),
		RemainingPercent: 100,
		RemainingTokens:  int64(sp.TokenLimit),
		Legacy: LegacyUsage{
			MessageLimit:      sp.MessageLimit,
			RemainingMessages: sp.MessageLimit,
		},
	}
}
