// Package selector defines the semantic selector data model shared by the
// resolution engine, the loader, and the caches.
//
// A SemanticSelector names an intent ("home_team_name") and carries an
// ordered list of independent location strategies plus the validation
// rules used to score whatever element a strategy finds. Selectors are
// immutable once loaded; anything that needs a variant works on a Clone.
package selector

import (
	"fmt"
	"sort"
)

// StrategyType identifies one of the closed set of location heuristics.
type StrategyType string

const (
	StrategyTextAnchor      StrategyType = "text_anchor"
	StrategyAttributeMatch  StrategyType = "attribute_match"
	StrategyDOMRelationship StrategyType = "dom_relationship"
	StrategyRoleBased       StrategyType = "role_based"
	StrategyCSS             StrategyType = "css"
	StrategyXPath           StrategyType = "xpath"
)

// KnownStrategyTypes lists every valid strategy type.
func KnownStrategyTypes() []StrategyType {
	return []StrategyType{
		StrategyTextAnchor,
		StrategyAttributeMatch,
		StrategyDOMRelationship,
		StrategyRoleBased,
		StrategyCSS,
		StrategyXPath,
	}
}

// Valid reports whether t is a member of the closed strategy set.
func (t StrategyType) Valid() bool {
	switch t {
	case StrategyTextAnchor, StrategyAttributeMatch, StrategyDOMRelationship,
		StrategyRoleBased, StrategyCSS, StrategyXPath:
		return true
	}
	return false
}

// Relation names a DOM relationship for the dom_relationship strategy.
type Relation string

const (
	RelationChild      Relation = "child"
	RelationParent     Relation = "parent"
	RelationSibling    Relation = "sibling"
	RelationDescendant Relation = "descendant"
	RelationAncestor   Relation = "ancestor"
)

// Valid reports whether r is a supported relation.
func (r Relation) Valid() bool {
	switch r {
	case RelationChild, RelationParent, RelationSibling, RelationDescendant, RelationAncestor:
		return true
	}
	return false
}

// StrategyConfig is the declarative configuration of a single strategy.
// Which fields are meaningful depends on Type; the strategy factory
// validates the combination before construction.
type StrategyConfig struct {
	ID       string       `yaml:"id" json:"id"`
	Type     StrategyType `yaml:"type" json:"type"`
	Priority int          `yaml:"priority" json:"priority"` // higher runs first

	// text_anchor
	Text          string   `yaml:"text,omitempty" json:"text,omitempty"`
	CaseSensitive bool     `yaml:"case_sensitive,omitempty" json:"case_sensitive,omitempty"`
	Tags          []string `yaml:"tags,omitempty" json:"tags,omitempty"`

	// attribute_match (Attribute/Value also act as the co-match hint
	// for role_based)
	Attribute  string `yaml:"attribute,omitempty" json:"attribute,omitempty"`
	Value      string `yaml:"value,omitempty" json:"value,omitempty"`
	ExactValue bool   `yaml:"exact_value,omitempty" json:"exact_value,omitempty"`

	// dom_relationship
	Anchor    string   `yaml:"anchor,omitempty" json:"anchor,omitempty"`
	Relation  Relation `yaml:"relation,omitempty" json:"relation,omitempty"`
	TargetTag string   `yaml:"target_tag,omitempty" json:"target_tag,omitempty"`

	// role_based
	Role string `yaml:"role,omitempty" json:"role,omitempty"`

	// css / xpath
	Expression string `yaml:"expression,omitempty" json:"expression,omitempty"`
}

// Clone returns a deep copy of the config.
func (c StrategyConfig) Clone() StrategyConfig {
	out := c
	if c.Tags != nil {
		out.Tags = append([]string(nil), c.Tags...)
	}
	return out
}

// SemanticSelector is one named extraction intent with its strategies and
// validation rules. Immutable once loaded.
type SemanticSelector struct {
	Name                string            `yaml:"name" json:"name"`
	Description         string            `yaml:"description,omitempty" json:"description,omitempty"`
	Strategies          []StrategyConfig  `yaml:"strategies" json:"strategies"`
	ValidationRules     []ValidationRule  `yaml:"validation_rules,omitempty" json:"validation_rules,omitempty"`
	ConfidenceThreshold float64           `yaml:"confidence_threshold,omitempty" json:"confidence_threshold,omitempty"`
	Metadata            map[string]string `yaml:"metadata,omitempty" json:"metadata,omitempty"`

	// AllowedDOMStates / DeniedDOMStates gate the selector per DOM state.
	// Empty allow list means "allowed everywhere not denied".
	AllowedDOMStates []string `yaml:"allowed_dom_states,omitempty" json:"allowed_dom_states,omitempty"`
	DeniedDOMStates  []string `yaml:"denied_dom_states,omitempty" json:"denied_dom_states,omitempty"`
}

// Clone returns a deep copy. Context-specific modification (overrides)
// always operates on a clone, never on the loaded original.
func (s *SemanticSelector) Clone() *SemanticSelector {
	out := *s
	out.Strategies = make([]StrategyConfig, len(s.Strategies))
	for i, sc := range s.Strategies {
		out.Strategies[i] = sc.Clone()
	}
	out.ValidationRules = append([]ValidationRule(nil), s.ValidationRules...)
	if s.Metadata != nil {
		out.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			out.Metadata[k] = v
		}
	}
	out.AllowedDOMStates = append([]string(nil), s.AllowedDOMStates...)
	out.DeniedDOMStates = append([]string(nil), s.DeniedDOMStates...)
	return &out
}

// OrderedStrategies returns the strategies sorted by descending priority,
// stable so that definition order breaks ties.
func (s *SemanticSelector) OrderedStrategies() []StrategyConfig {
	out := make([]StrategyConfig, len(s.Strategies))
	copy(out, s.Strategies)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}

// AllowedInState reports whether the selector may be used under the
// given DOM state. Deny wins over allow.
func (s *SemanticSelector) AllowedInState(state string) bool {
	for _, d := range s.DeniedDOMStates {
		if d == state {
			return false
		}
	}
	if len(s.AllowedDOMStates) == 0 {
		return true
	}
	for _, a := range s.AllowedDOMStates {
		if a == state {
			return true
		}
	}
	return false
}

// Validate checks structural invariants of a loaded selector.
func (s *SemanticSelector) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("selector: missing name")
	}
	if len(s.Strategies) == 0 {
		return fmt.Errorf("selector %q: no strategies", s.Name)
	}
	for i, sc := range s.Strategies {
		if !sc.Type.Valid() {
			return fmt.Errorf("selector %q: strategy %d: unknown type %q", s.Name, i, sc.Type)
		}
	}
	if s.ConfidenceThreshold < 0 || s.ConfidenceThreshold > 1 {
		return fmt.Errorf("selector %q: confidence threshold %v out of [0,1]", s.Name, s.ConfidenceThreshold)
	}
	return nil
}
