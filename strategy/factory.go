package strategy

import (
	"fmt"

	"github.com/hazyhaar/domresolve/selector"
)

// New builds the strategy implementation for a configuration,
// validating it first. Unknown types and incomplete configurations fail
// fast so malformed selector files surface at load time, not mid-page.
func New(cfg selector.StrategyConfig) (Strategy, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	switch cfg.Type {
	case selector.StrategyTextAnchor:
		return &textAnchor{cfg: cfg}, nil
	case selector.StrategyAttributeMatch:
		return &attributeMatch{cfg: cfg}, nil
	case selector.StrategyDOMRelationship:
		return &domRelationship{cfg: cfg}, nil
	case selector.StrategyRoleBased:
		return &roleBased{cfg: cfg}, nil
	case selector.StrategyCSS:
		return &locator{cfg: cfg, xpath: false}, nil
	case selector.StrategyXPath:
		return &locator{cfg: cfg, xpath: true}, nil
	default:
		return nil, fmt.Errorf("strategy: unknown type %q", cfg.Type)
	}
}

// ValidateConfig checks that the fields required by the strategy type
// are present.
func ValidateConfig(cfg selector.StrategyConfig) error {
	if !cfg.Type.Valid() {
		return fmt.Errorf("strategy: unknown type %q", cfg.Type)
	}
	switch cfg.Type {
	case selector.StrategyTextAnchor:
		if cfg.Text == "" {
			return fmt.Errorf("strategy %s: text_anchor requires text", cfg.ID)
		}
	case selector.StrategyAttributeMatch:
		if cfg.Attribute == "" {
			return fmt.Errorf("strategy %s: attribute_match requires attribute", cfg.ID)
		}
		if cfg.ExactValue && cfg.Value == "" {
			return fmt.Errorf("strategy %s: exact_value requires value", cfg.ID)
		}
	case selector.StrategyDOMRelationship:
		if cfg.Anchor == "" {
			return fmt.Errorf("strategy %s: dom_relationship requires anchor", cfg.ID)
		}
		if !cfg.Relation.Valid() {
			return fmt.Errorf("strategy %s: unknown relation %q", cfg.ID, cfg.Relation)
		}
		if cfg.Relation == selector.RelationParent || cfg.Relation == selector.RelationAncestor {
			if _, err := cssToXPathStep(cfg.Anchor); err != nil {
				return err
			}
		}
	case selector.StrategyRoleBased:
		if cfg.Role == "" {
			return fmt.Errorf("strategy %s: role_based requires role", cfg.ID)
		}
	case selector.StrategyCSS, selector.StrategyXPath:
		if cfg.Expression == "" {
			return fmt.Errorf("strategy %s: %s requires expression", cfg.ID, cfg.Type)
		}
	}
	return nil
}
