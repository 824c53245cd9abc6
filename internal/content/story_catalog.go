// Package content provides read-only adapters over the two static data
// sources the engine consumes at init: the YAML story-category catalog and
// the CSV lesson bank. Authoring/validation tooling for either source is
// out of scope; these adapters only read.
package content

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"learningodyssey/internal/adventure"
)

// StoryCategory is the YAML-decoded shape of one story category.
type StoryCategory struct {
	Name                         string   `yaml:"name"`
	Settings                     []string `yaml:"settings"`
	Themes                       []string `yaml:"themes"`
	PlotTwists                   []string `yaml:"plot_twists"`
	SensoryVisuals               []string `yaml:"sensory_visuals"`
	SensorySounds                []string `yaml:"sensory_sounds"`
	SensorySmells                []string `yaml:"sensory_smells"`
	ProtagonistDescriptionChoices []string `yaml:"protagonist_description_candidates"`
}

// StoryCatalog resolves a story category by identifier.
type StoryCatalog interface {
	Get(category string) (StoryCategory, error)
}

// YAMLStoryCatalog loads `<category>.yaml` files from a directory, with
// UTF-8 decoding (Go's os.ReadFile and yaml.v3 are UTF-8-native).
type YAMLStoryCatalog struct {
	Dir string
}

func NewYAMLStoryCatalog(dir string) *YAMLStoryCatalog {
	return &YAMLStoryCatalog{Dir: dir}
}

func (c *YAMLStoryCatalog) Get(category string) (StoryCategory, error) {
	path := filepath.Join(c.Dir, category+".yaml")
	raw, err := os.ReadFile(path)
	if err != nil {
		return StoryCategory{}, fmt.Errorf("read story category %q: %w", category, err)
	}
	var sc StoryCategory
	if err := yaml.Unmarshal(raw, &sc); err != nil {
		return StoryCategory{}, fmt.Errorf("decode story category %q: %w", category, err)
	}
	if sc.Name == "" {
		sc.Name = category
	}
	return sc, nil
}

// NarrativeElements converts the catalog entry into the state's selected
// narrative elements shape (the selection among these candidates is the
// caller's responsibility — this is the read path only).
func (sc StoryCategory) NarrativeElements() adventure.NarrativeElements {
	return adventure.NarrativeElements{
		Settings:   sc.Settings,
		Themes:     sc.Themes,
		PlotTwists: sc.PlotTwists,
	}
}

func (sc StoryCategory) SensoryDetails() adventure.SensoryDetails {
	return adventure.SensoryDetails{
		Visuals: sc.SensoryVisuals,
		Sounds:  sc.SensorySounds,
		Smells:  sc.SensorySmells,
	}
}
