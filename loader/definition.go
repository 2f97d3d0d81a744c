// Package loader reads semantic selector definitions from a directory
// tree mirroring the context hierarchy and serves them per context and
// DOM state, with layered overrides, an internal cache, and automatic
// context detection from page evidence.
//
// Layout: <base>/<primary>/<secondary>/<tertiary>/*.yaml. Each level
// may carry an _overrides.yaml adjusting selectors inherited from the
// levels above. Deeper definitions shadow shallower ones by name.
package loader

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/domresolve/selector"
)

// definitionFile is the on-disk schema of one selector file.
type definitionFile struct {
	Selectors []selector.SemanticSelector `yaml:"selectors"`
}

// readDefinitionFile parses one selector file and validates every
// selector and strategy config in it.
func readDefinitionFile(path string) ([]*selector.SemanticSelector, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loader: read %s: %w", path, err)
	}
	var f definitionFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("loader: parse %s: %w", path, err)
	}
	out := make([]*selector.SemanticSelector, 0, len(f.Selectors))
	for i := range f.Selectors {
		s := &f.Selectors[i]
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("loader: %s: %w", path, err)
		}
		if s.ConfidenceThreshold == 0 {
			s.ConfidenceThreshold = defaultConfidenceThreshold
		}
		out = append(out, s)
	}
	return out, nil
}

const defaultConfidenceThreshold = 0.6
