package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Section kinds.
const (
	SectionLocality = "locality"
	SectionFlatType = "type"
)

// SectionDef is one named filter over the canonical dataset.
type SectionDef struct {
	Key   string `yaml:"key"`
	Title string `yaml:"title"`
	Kind  string `yaml:"kind"`

	// Localities are the name variants a locality section matches as
	// case-insensitive substrings. List diacritic and plain forms, or set
	// FoldDiacritics to compare with marks stripped on both sides.
	Localities     []string `yaml:"localities"`
	FoldDiacritics bool     `yaml:"fold_diacritics"`

	FlatType string `yaml:"flat_type"`
}

type sectionsFile struct {
	Sections []SectionDef `yaml:"sections"`
}

// DefaultSections is the section set used when no sections file exists.
func DefaultSections() []SectionDef {
	return []SectionDef{
		{
			Key:        "reckovice_medlanky",
			Title:      "Řečkovice & Medlánky",
			Kind:       SectionLocality,
			Localities: []string{"řečkovice", "reckovice", "medlánky", "medlanky"},
		},
		{Key: "flats_2kk", Title: "2+kk", Kind: SectionFlatType, FlatType: "2+kk"},
		{Key: "flats_2plus1", Title: "2+1", Kind: SectionFlatType, FlatType: "2+1"},
		{Key: "flats_3kk", Title: "3+kk", Kind: SectionFlatType, FlatType: "3+kk"},
		{Key: "flats_3plus1", Title: "3+1", Kind: SectionFlatType, FlatType: "3+1"},
	}
}

// LoadSections reads section definitions from a YAML file. A missing file
// yields DefaultSections.
func LoadSections(path string) ([]SectionDef, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultSections(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("sections: read %q: %w", path, err)
	}

	var f sectionsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("sections: parse %q: %w", path, err)
	}
	if err := ValidateSections(f.Sections); err != nil {
		return nil, fmt.Errorf("sections: %q: %w", path, err)
	}
	return f.Sections, nil
}

// ValidateSections checks keys are unique and every section is complete.
func ValidateSections(defs []SectionDef) error {
	if len(defs) == 0 {
		return errors.New("no sections defined")
	}
	seen := make(map[string]struct{}, len(defs))
	for i, d := range defs {
		if d.Key == "" {
			return fmt.Errorf("section #%d has no key", i+1)
		}
		if _, dup := seen[d.Key]; dup {
			return fmt.Errorf("duplicate section key %q", d.Key)
		}
		seen[d.Key] = struct{}{}

		switch d.Kind {
		case SectionLocality:
			if len(d.Localities) == 0 {
				return fmt.Errorf("locality section %q lists no localities", d.Key)
			}
		case SectionFlatType:
			if d.FlatType == "" {
				return fmt.Errorf("type section %q has no flat_type", d.Key)
			}
		default:
			return fmt.Errorf("section %q has unknown kind %q", d.Key, d.Kind)
		}
	}
	return nil
}
