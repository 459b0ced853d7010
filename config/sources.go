package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"

	"gopkg.in/yaml.v2"
)

// SourceDef describes a listing site scraped by the generic card source.
type SourceDef struct {
	Name      string      `yaml:"name"`
	BaseURL   string      `yaml:"base_url"`
	PageParam string      `yaml:"page_param"`
	Pages     int         `yaml:"pages"`
	Render    bool        `yaml:"render"`
	Selectors SelectorDef `yaml:"selectors"`
}

// SelectorDef holds the CSS selectors used to pull fields out of a card.
type SelectorDef struct {
	Card      string `yaml:"card"`
	Link      string `yaml:"link"`
	Image     string `yaml:"image"`
	ImageAttr string `yaml:"image_attr"`
	Locality  string `yaml:"locality"`
	Type      string `yaml:"type"`
	Size      string `yaml:"size"`
	Price     string `yaml:"price"`
}

type sourcesFile struct {
	Sources []SourceDef `yaml:"sources"`
}

// LoadSources reads source definitions from a YAML file. A missing file
// means no sources are configured.
func LoadSources(path string) ([]SourceDef, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sources: read %q: %w", path, err)
	}

	var f sourcesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("sources: parse %q: %w", path, err)
	}

	seen := make(map[string]struct{}, len(f.Sources))
	for i := range f.Sources {
		s := &f.Sources[i]
		if s.Name == "" {
			return nil, fmt.Errorf("sources: entry #%d has no name", i+1)
		}
		if _, dup := seen[s.Name]; dup {
			return nil, fmt.Errorf("sources: duplicate name %q", s.Name)
		}
		seen[s.Name] = struct{}{}

		if _, err := url.ParseRequestURI(s.BaseURL); err != nil {
			return nil, fmt.Errorf("sources: %q base_url: %w", s.Name, err)
		}
		if s.Selectors.Card == "" {
			return nil, fmt.Errorf("sources: %q has no card selector", s.Name)
		}
		if s.Pages < 1 {
			s.Pages = 1
		}
		if s.Selectors.ImageAttr == "" {
			s.Selectors.ImageAttr = "src"
		}
	}
	return f.Sources, nil
}
