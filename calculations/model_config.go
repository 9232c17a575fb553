package calculations

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"gopkg.in/yaml.v3"

	apperrors "github.com/penwyp/claudequota/errors"
	"github.com/penwyp/claudequota/models"
)

// CostType selects how a model's usage becomes a percentage.
type CostType string

const (
	TypeWeight      CostType = "weight"
	TypeLimit       CostType = "limit"
	TypeInterpolate CostType = "interpolate"
)

// DefaultKey names the catch-all entry.
const DefaultKey = "default"

// DataPoint is one observed (raw tokens, percent) pair.
type DataPoint struct {
	RawTokens float64 `json:"rawTokens" yaml:"rawTokens"`
	Percent   float64 `json:"percent" yaml:"percent"`
}

// ModelEntry describes the cost behaviour for a family of models.
// Pointer fields distinguish "unset" from zero so inheritance can fill them.
type ModelEntry struct {
	Key           string      `json:"-" yaml:"-"`
	MatchPatterns []string    `json:"matchPatterns,omitempty" yaml:"matchPatterns,omitempty"`
	Type          CostType    `json:"type,omitempty" yaml:"type,omitempty"`
	Weight        *float64    `json:"weight,omitempty" yaml:"weight,omitempty"`
	BaseLimit     *float64    `json:"baseLimit,omitempty" yaml:"baseLimit,omitempty"`
	Limit         *float64    `json:"limit,omitempty" yaml:"limit,omitempty"`
	DataPoints    []DataPoint `json:"dataPoints,omitempty" yaml:"dataPoints,omitempty"`
	InheritFrom   string      `json:"inheritFrom,omitempty" yaml:"inheritFrom,omitempty"`
}

// EffectiveType returns the entry type, defaulting unknown values to weight.
func (e ModelEntry) EffectiveType() CostType {
	switch e.Type {
	case TypeLimit, TypeInterpolate:
		return e.Type
	default:
		return TypeWeight
	}
}

// EffectiveWeight returns the configured weight or DefaultModelWeight.
func (e ModelEntry) EffectiveWeight() float64 {
	if e.Weight != nil && *e.Weight > 0 {
		return *e.Weight
	}
	return DefaultModelWeight
}

// Ceiling picks the weighted-token ceiling for weight-type entries:
// a calibrated value first, then the entry's base limit, then the plan default.
func (e ModelEntry) Ceiling(calibrated, planDefault float64) float64 {
	if calibrated > 0 {
		return calibrated
	}
	if e.BaseLimit != nil && *e.BaseLimit > 0 {
		return *e.BaseLimit
	}
	return planDefault
}

func (e ModelEntry) matches(model string) bool {
	patterns := e.MatchPatterns
	if len(patterns) == 0 {
		patterns = []string{e.Key}
	}
	for _, p := range patterns {
		if p != "" && strings.Contains(model, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// overlay returns parent with every field set on child applied on top.
func overlay(parent, child ModelEntry) ModelEntry {
	out := parent
	out.Key = child.Key
	out.MatchPatterns = child.MatchPatterns
	out.InheritFrom = ""
	if child.Type != "" {
		out.Type = child.Type
	}
	if child.Weight != nil {
		out.Weight = child.Weight
	}
	if child.BaseLimit != nil {
		out.BaseLimit = child.BaseLimit
	}
	if child.Limit != nil {
		out.Limit = child.Limit
	}
	if len(child.DataPoints) > 0 {
		out.DataPoints = child.DataPoints
	}
	return out
}

// ModelEntries keeps entries in declaration order; first match wins.
type ModelEntries []ModelEntry

// UnmarshalJSON decodes a JSON object while preserving key order.
func (m *ModelEntries) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*m = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("model entries: expected object, got %v", tok)
	}

	var out ModelEntries
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		var entry ModelEntry
		if err := dec.Decode(&entry); err != nil {
			return fmt.Errorf("model entry %q: %w", key, err)
		}
		entry.Key = key
		out = append(out, entry)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*m = out
	return nil
}

// UnmarshalYAML decodes a YAML mapping while preserving key order.
func (m *ModelEntries) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("model entries: expected mapping at line %d", node.Line)
	}
	out := make(ModelEntries, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		var entry ModelEntry
		if err := node.Content[i+1].Decode(&entry); err != nil {
			return fmt.Errorf("model entry %q: %w", key, err)
		}
		entry.Key = key
		out = append(out, entry)
	}
	*m = out
	return nil
}

func (m ModelEntries) find(key string) (ModelEntry, bool) {
	for _, e := range m {
		if e.Key == key {
			return e, true
		}
	}
	return ModelEntry{}, false
}

// ModelConfig is the per-model cost configuration.
type ModelConfig struct {
	Models           ModelEntries `json:"models" yaml:"models"`
	FallbackPatterns ModelEntries `json:"fallbackPatterns" yaml:"fallbackPatterns"`
	Default          *ModelEntry  `json:"default" yaml:"default"`
}

// ResolvedModel is a model entry with inheritance applied.
type ResolvedModel struct {
	Key   string
	Entry ModelEntry
}

func floatPtr(v float64) *float64 { return &v }

// DefaultModelConfig returns the built-in family weights.
func DefaultModelConfig() *ModelConfig {
	return &ModelConfig{
		FallbackPatterns: ModelEntries{
			{Key: "opus", MatchPatterns: []string{"opus"}, Type: TypeWeight, Weight: floatPtr(5.0)},
			{Key: "sonnet", MatchPatterns: []string{"sonnet"}, Type: TypeWeight, Weight: floatPtr(1.0)},
			{Key: "haiku", MatchPatterns: []string{"haiku"}, Type: TypeWeight, Weight: floatPtr(0.25)},
		},
		Default: &ModelEntry{Key: DefaultKey, Type: TypeWeight, Weight: floatPtr(DefaultModelWeight)},
	}
}

// Resolve maps a concrete model identifier to its entry. Lookup order is
// models, then fallbackPatterns, then default.
func (c *ModelConfig) Resolve(model string) ResolvedModel {
	lower := strings.ToLower(model)
	for _, group := range []ModelEntries{c.Models, c.FallbackPatterns} {
		for _, e := range group {
			if e.matches(lower) {
				return ResolvedModel{Key: e.Key, Entry: c.inherit(e, map[string]bool{})}
			}
		}
	}
	return ResolvedModel{Key: DefaultKey, Entry: c.defaultEntry()}
}

// Weigh resolves model and weighs usage with its weight.
func (c *ModelConfig) Weigh(model string, usage models.TokenUsage) (ResolvedModel, Weighted) {
	r := c.Resolve(model)
	return r, Weigh(usage, r.Entry.EffectiveWeight())
}

func (c *ModelConfig) defaultEntry() ModelEntry {
	if c.Default != nil {
		d := *c.Default
		d.Key = DefaultKey
		return c.inherit(d, map[string]bool{})
	}
	return ModelEntry{Key: DefaultKey, Type: TypeWeight, Weight: floatPtr(DefaultModelWeight)}
}

func (c *ModelConfig) lookup(key string) (ModelEntry, bool) {
	if e, ok := c.Models.find(key); ok {
		return e, true
	}
	if e, ok := c.FallbackPatterns.find(key); ok {
		return e, true
	}
	if key == DefaultKey && c.Default != nil {
		d := *c.Default
		d.Key = DefaultKey
		return d, true
	}
	return ModelEntry{}, false
}

func (c *ModelConfig) inherit(e ModelEntry, seen map[string]bool) ModelEntry {
	if e.InheritFrom == "" || seen[e.Key] {
		e.InheritFrom = ""
		return e
	}
	seen[e.Key] = true
	parent, ok := c.lookup(e.InheritFrom)
	if !ok || seen[parent.Key] {
		e.InheritFrom = ""
		return e
	}
	return overlay(c.inherit(parent, seen), e)
}

// LoadModelConfig reads a JSON or YAML model config. A missing file yields
// the built-in defaults.
func LoadModelConfig(path string) (*ModelConfig, error) {
	if path == "" {
		return DefaultModelConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultModelConfig(), nil
		}
		return nil, apperrors.Wrap(apperrors.TypeIO, "load model config", path, err)
	}

	cfg := &ModelConfig{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = sonic.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.TypeParse, "load model config", path, err)
	}

	if len(cfg.Models) == 0 && len(cfg.FallbackPatterns) == 0 {
		cfg.FallbackPatterns = DefaultModelConfig().FallbackPatterns
	}
	return cfg, nil
}
