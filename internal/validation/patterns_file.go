package validation

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

type patternFile struct {
	Patterns []patternEntry `yaml:"patterns"`
}

type patternEntry struct {
	Category string `yaml:"category"`
	Expr     string `yaml:"expr"`
}

func LoadPatternFile(path string) ([]Pattern, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pattern file %q: %w", path, err)
	}
	patterns, err := ParsePatterns(body)
	if err != nil {
		return nil, fmt.Errorf("parse pattern file %q: %w", path, err)
	}
	return patterns, nil
}

// ParsePatterns decodes a YAML document of the form
//
//	patterns:
//	  - category: prompt-injection
//	    expr: 'disregard\s+the\s+above'
func ParsePatterns(body []byte) ([]Pattern, error) {
	var file patternFile
	if err := yaml.Unmarshal(body, &file); err != nil {
		return nil, err
	}

	patterns := make([]Pattern, 0, len(file.Patterns))
	for i, entry := range file.Patterns {
		category := Category(strings.TrimSpace(entry.Category))
		switch category {
		case CategorySQLMutation, CategoryPromptInjection:
		default:
			return nil, fmt.Errorf("pattern %d: unknown category %q", i, entry.Category)
		}
		expr := strings.TrimSpace(entry.Expr)
		if expr == "" {
			return nil, fmt.Errorf("pattern %d: expr is required", i)
		}
		compiled, err := regexp.Compile(`(?i)` + expr)
		if err != nil {
			return nil, fmt.Errorf("pattern %d: %w", i, err)
		}
		patterns = append(patterns, Pattern{Category: category, Expr: compiled})
	}
	return patterns, nil
}
