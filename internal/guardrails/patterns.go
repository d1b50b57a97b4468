package guardrails

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PatternFile is the on-disk format of GUARD_PATTERNS_FILE:
//
//	extend_defaults: true
//	patterns:
//	  - 'reveal\s+your\s+prompt'
type PatternFile struct {
	// ExtendDefaults appends Patterns to the built-in list instead of replacing it.
	ExtendDefaults bool     `yaml:"extend_defaults"`
	Patterns       []string `yaml:"patterns"`
}

// LoadPatternFile reads an injection pattern list and returns the effective
// ordered pattern sources.
func LoadPatternFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pattern file: %w", err)
	}

	var pf PatternFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse pattern file %s: %w", path, err)
	}
	if len(pf.Patterns) == 0 {
		return nil, fmt.Errorf("pattern file %s defines no patterns", path)
	}

	if pf.ExtendDefaults {
		return append(append([]string{}, DefaultInjectionPatterns...), pf.Patterns...), nil
	}
	return pf.Patterns, nil
}
