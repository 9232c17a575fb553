package config

import (
	"os"

	"github.com/bytedance/sonic"

	"github.com/penwyp/claudequota/limits"
	"github.com/penwyp/claudequota/logging"
)

type planFile struct {
	Plan string `json:"plan"`
}

// LoadPlan reads {"plan": "..."} from path. A missing, corrupt or unknown
// plan falls back to the default plan.
func LoadPlan(path string) limits.PlanType {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.LogWarnf("Failed to read plan config %s: %v", path, err)
		}
		return limits.DefaultPlan
	}

	var pf planFile
	if err := sonic.Unmarshal(data, &pf); err != nil {
		logging.LogWarnf("Ignoring corrupt plan config %s: %v", path, err)
		return limits.DefaultPlan
	}

	plan, ok := limits.ParsePlan(pf.Plan)
	if !ok && pf.Plan != "" {
		logging.LogWarnf("Unknown plan %q in %s, using %s", pf.Plan, path, limits.DefaultPlan)
	}
	return plan
}

// ResolvePlan returns the configured plan name if set, otherwise the plan file.
func (c *Config) ResolvePlan() limits.PlanType {
	if c.Plan.Name != "" {
		plan, _ := limits.ParsePlan(c.Plan.Name)
		return plan
	}
	return LoadPlan(c.PlanConfigPath())
}
