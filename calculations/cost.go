package calculations

import (
	"github.com/penwyp/claudequota/models"
)

// Category coefficients applied before the model weight.
const (
	InputCoefficient         = 1.0
	CacheCreationCoefficient = 1.25
	CacheReadCoefficient     = 0.1
	OutputCoefficient        = 5.0
	DefaultModelWeight       = 1.0
)

// Weighted is the cost-weighted view of one or more responses.
type Weighted struct {
	RawInput       float64 `json:"rawInput"`
	RawOutput      float64 `json:"rawOutput"`
	WeightedInput  float64 `json:"weightedInput"`
	WeightedOutput float64 `json:"weightedOutput"`
	Total          float64 `json:"total"`
}

// Add returns the field-wise sum of w and o.
func (w Weighted) Add(o Weighted) Weighted {
	return Weighted{
		RawInput:       w.RawInput + o.RawInput,
		RawOutput:      w.RawOutput + o.RawOutput,
		WeightedInput:  w.WeightedInput + o.WeightedInput,
		WeightedOutput: w.WeightedOutput + o.WeightedOutput,
		Total:          w.Total + o.Total,
	}
}

// Weigh converts raw token counts into weighted cost. A non-positive weight
// falls back to DefaultModelWeight.
func Weigh(usage models.TokenUsage, weight float64) Weighted {
	if weight <= 0 {
		weight = DefaultModelWeight
	}

	input := float64(usage.InputTokens)
	cacheCreation := float64(usage.CacheCreationTokens)
	cacheRead := float64(usage.CacheReadTokens)
	output := float64(usage.OutputTokens)

	effectiveInput := input*InputCoefficient + cacheCreation*CacheCreationCoefficient + cacheRead*CacheReadCoefficient
	effectiveOutput := output * OutputCoefficient

	w := Weighted{
		RawInput:       input + cacheCreation + cacheRead,
		RawOutput:      output,
		WeightedInput:  effectiveInput * weight,
		WeightedOutput: effectiveOutput * weight,
	}
	w.Total = w.WeightedInput + w.WeightedOutput
	return w
}
