package loader

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/domresolve/selector"
)

// overridesFileName is looked up at every level of the context tree.
const overridesFileName = "_overrides.yaml"

// overridesFile adjusts selectors inherited from shallower levels.
type overridesFile struct {
	Overrides []selectorOverride `yaml:"overrides"`
}

type selectorOverride struct {
	Selector            string                    `yaml:"selector"`
	ConfidenceThreshold *float64                  `yaml:"confidence_threshold,omitempty"`
	RemoveStrategies    []string                  `yaml:"remove_strategies,omitempty"`
	AddStrategies       []selector.StrategyConfig `yaml:"add_strategies,omitempty"`
	ModifyStrategies    []strategyPatch           `yaml:"modify_strategies,omitempty"`
	Metadata            map[string]string         `yaml:"metadata,omitempty"`
}

// strategyPatch updates an existing strategy by id; nil fields keep the
// current value.
type strategyPatch struct {
	ID         string  `yaml:"id"`
	Priority   *int    `yaml:"priority,omitempty"`
	Text       *string `yaml:"text,omitempty"`
	Attribute  *string `yaml:"attribute,omitempty"`
	Value      *string `yaml:"value,omitempty"`
	Role       *string `yaml:"role,omitempty"`
	Expression *string `yaml:"expression,omitempty"`
}

// readOverridesFile parses an _overrides.yaml; a missing file is not an
// error.
func readOverridesFile(path string) ([]selectorOverride, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loader: read %s: %w", path, err)
	}
	var f overridesFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("loader: parse %s: %w", path, err)
	}
	return f.Overrides, nil
}

// applyOverride clones the selector and applies one override. The loaded
// original stays untouched so other contexts keep seeing it.
func applyOverride(s *selector.SemanticSelector, ov selectorOverride) (*selector.SemanticSelector, error) {
	out := s.Clone()
	if ov.ConfidenceThreshold != nil {
		out.ConfidenceThreshold = *ov.ConfidenceThreshold
	}
	if len(ov.RemoveStrategies) > 0 {
		drop := make(map[string]bool, len(ov.RemoveStrategies))
		for _, id := range ov.RemoveStrategies {
			drop[id] = true
		}
		kept := out.Strategies[:0]
		for _, sc := range out.Strategies {
			if !drop[sc.ID] {
				kept = append(kept, sc)
			}
		}
		out.Strategies = kept
	}
	for _, patch := range ov.ModifyStrategies {
		found := false
		for i := range out.Strategies {
			if out.Strategies[i].ID != patch.ID {
				continue
			}
			found = true
			applyPatch(&out.Strategies[i], patch)
		}
		if !found {
			return nil, fmt.Errorf("loader: override for %q patches unknown strategy %q", ov.Selector, patch.ID)
		}
	}
	out.Strategies = append(out.Strategies, ov.AddStrategies...)
	if len(ov.Metadata) > 0 {
		if out.Metadata == nil {
			out.Metadata = make(map[string]string, len(ov.Metadata))
		}
		for k, v := range ov.Metadata {
			out.Metadata[k] = v
		}
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("loader: override for %q leaves invalid selector: %w", ov.Selector, err)
	}
	return out, nil
}

func applyPatch(sc *selector.StrategyConfig, p strategyPatch) {
	if p.Priority != nil {
		sc.Priority = *p.Priority
	}
	if p.Text != nil {
		sc.Text = *p.Text
	}
	if p.Attribute != nil {
		sc.Attribute = *p.Attribute
	}
	if p.Value != nil {
		sc.Value = *p.Value
	}
	if p.Role != nil {
		sc.Role = *p.Role
	}
	if p.Expression != nil {
		sc.Expression = *p.Expression
	}
}
