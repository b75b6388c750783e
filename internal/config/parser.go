package config

import (
	"fmt"
	"strings"
)

// Parse reads JSONC configuration content over base and validates the result.
// Empty content yields base.
func Parse(content string, base Config) (Config, []Warning, error) {
	cfg, err := decode(content, base)
	if err != nil {
		return Config{}, nil, err
	}
	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

func decode(content string, base Config) (Config, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return base.clone(), nil
	}
	if !strings.HasPrefix(trimmed, "{") {
		line := 1 + strings.Count(content[:strings.Index(content, trimmed)], "\n")
		return Config{}, fmt.Errorf("line %d: config must be a JSONC object", line)
	}
	return decodeJSONC(content, base)
}
