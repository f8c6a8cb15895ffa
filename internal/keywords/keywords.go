// Package keywords loads the role and topic vocabularies used to scan
// announcement documents.
package keywords

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/concurso-crawler/internal/textnorm"
)

//go:embed default.yaml
var defaultYAML []byte

// Config is the immutable keyword configuration shared by a process.
type Config struct {
	Roles    []string           `yaml:"roles"`
	Topics   []string           `yaml:"topics"`
	Synonyms []textnorm.Synonym `yaml:"synonyms"`
}

// Default returns the embedded vocabulary of public-sector IT job titles.
func Default() (Config, error) {
	cfg, err := Parse(defaultYAML)
	if err != nil {
		return Config{}, fmt.Errorf("parse embedded keywords: %w", err)
	}
	return cfg, nil
}

// Load reads a keyword file. An empty path selects the embedded default.
func Load(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	// #nosec G304 -- path comes from operator configuration.
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read keywords file %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("parse keywords file %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML keyword document, trimming and deduplicating phrases
// while keeping their first-seen order.
func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode yaml: %w", err)
	}
	cfg.Roles = dedupe(cfg.Roles)
	cfg.Topics = dedupe(cfg.Topics)
	if len(cfg.Roles) == 0 {
		return Config{}, fmt.Errorf("keywords: at least one role phrase is required")
	}
	return cfg, nil
}

// Normalizer builds the text normalizer implied by the configured synonyms.
func (c Config) Normalizer() *textnorm.Normalizer {
	return textnorm.New(c.Synonyms)
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, kw := range in {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	return out
}
