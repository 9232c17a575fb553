package limits

import (
	"sort"
	"strings"

	"github.com/samber/lo"
)

// PlanType identifies a subscription tier.
type PlanType string

const (
	PlanFree   PlanType = "free"
	PlanPro    PlanType = "pro"
	PlanMax100 PlanType = "max-100"
	PlanMax200 PlanType = "max-200"

	DefaultPlan = PlanPro
)

// SubscriptionPlan holds the static quotas of a tier for one 5h window.
type SubscriptionPlan struct {
	Name         string   `json:"name"`
	Type         PlanType `json:"type"`
	MessageLimit int      `json:"messageLimit"`
	// TokenLimit is the weighted-token ceiling used until calibration replaces it.
	TokenLimit float64 `json:"tokenLimit"`
}

var PlanDefinitions = map[PlanType]SubscriptionPlan{
	PlanFree:   {Name: "Free", Type: PlanFree, MessageLimit: 15, TokenLimit: 7_000_000},
	PlanPro:    {Name: "Pro", Type: PlanPro, MessageLimit: 45, TokenLimit: 20_000_000},
	PlanMax100: {Name: "Max ($100)", Type: PlanMax100, MessageLimit: 225, TokenLimit: 100_000_000},
	PlanMax200: {Name: "Max ($200)", Type: PlanMax200, MessageLimit: 900, TokenLimit: 400_000_000},
}

// aliases accepted on input besides the canonical names.
var planAliases = map[string]PlanType{
	"max5":    PlanMax100,
	"max-5":   PlanMax100,
	"max100":  PlanMax100,
	"max20":   PlanMax200,
	"max-20":  PlanMax200,
	"max200":  PlanMax200,
	"max_100": PlanMax100,
	"max_200": PlanMax200,
}

// ParsePlan normalizes name to a known plan. Unknown names report false.
func ParsePlan(name string) (PlanType, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if _, ok := PlanDefinitions[PlanType(key)]; ok {
		return PlanType(key), true
	}
	if p, ok := planAliases[key]; ok {
		return p, true
	}
	return DefaultPlan, false
}

// GetPlan returns the definition for p, falling back to the default plan.
func GetPlan(p PlanType) SubscriptionPlan {
	if plan, ok := PlanDefinitions[p]; ok {
		return plan
	}
	return PlanDefinitions[DefaultPlan]
}

// PlanNames lists the canonical plan names in sorted order.
func PlanNames() []string {
	names := lo.Map(lo.Keys(PlanDefinitions), func(p PlanType, _ int) string { return string(p) })
	sort.Strings(names)
	return names
}
