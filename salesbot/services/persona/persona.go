// Package persona holds the closed set of customer difficulty levels and the
// persona text each one frames the language model with.
package persona

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

type Difficulty string

const (
	Basic        Difficulty = "BASIC"
	Intermediate Difficulty = "INTERMEDIATE"
	Complex      Difficulty = "COMPLEX"
)

// Levels lists the closed set in ascending order.
var Levels = []Difficulty{Basic, Intermediate, Complex}

var ErrUnknownDifficultyLevel = errors.New("difficulty level not recognized")

// Slash commands arrive in Spanish; the canonical codes are accepted too.
var aliases = map[string]Difficulty{
	"BASICO":       Basic,
	"MEDIO":        Intermediate,
	"COMPLEJO":     Complex,
	"BASIC":        Basic,
	"INTERMEDIATE": Intermediate,
	"COMPLEX":      Complex,
}

// Parse maps user input onto a Difficulty, ignoring case and surrounding space.
func Parse(s string) (Difficulty, bool) {
	d, ok := aliases[strings.ToUpper(strings.TrimSpace(s))]
	return d, ok
}

func (d Difficulty) Valid() bool {
	return slices.Contains(Levels, d)
}

var defaultPrompts = map[Difficulty]string{
	Basic: "Act as a basic-level client who wants to purchase a product. " +
		"This client has minimal technical knowledge and asks simple, general questions. " +
		"They are interested in basic features like price, color, availability, and ease of use. " +
		"Avoid any technical jargon and keep the conversation simple and approachable.",
	Intermediate: "Act as an intermediate-level client who wants to purchase a product. " +
		"This client has a basic understanding of the product and asks more specific questions. " +
		"They are interested in comparing options, learning about key features like battery life, warranty, and performance. " +
		"They may also ask for recommendations based on their budget or needs.",
	Complex: "Act as an advanced-level client who wants to purchase a product. " +
		"This client has in-depth technical knowledge and asks detailed, technical questions. " +
		"They are interested in specifications like processor model, RAM type, storage speed, and advanced features. " +
		"They may also ask about compatibility, return policies, and comparisons with other high-end products.",
}

// Catalog resolves persona text for each level.
type Catalog struct {
	prompts map[Difficulty]string
}

func NewCatalog() *Catalog {
	prompts := make(map[Difficulty]string, len(Levels))
	for _, d := range Levels {
		prompts[d] = defaultPrompts[d]
	}
	return &Catalog{prompts: prompts}
}

type overrideFile struct {
	Personas map[string]string `yaml:"personas"`
}

// LoadCatalog returns the default catalog with texts from a YAML file laid
// over it. An empty path yields the defaults. Keys must be canonical codes.
func LoadCatalog(path string) (*Catalog, error) {
	c := NewCatalog()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona file: %w", err)
	}
	var f overrideFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse persona file: %w", err)
	}
	for key, text := range f.Personas {
		d := Difficulty(strings.ToUpper(strings.TrimSpace(key)))
		if !d.Valid() {
			return nil, fmt.Errorf("%w: %q in %s, expected one of %v", ErrUnknownDifficultyLevel, key, path, Levels)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return nil, fmt.Errorf("persona %s in %s is empty", d, path)
		}
		c.prompts[d] = text
	}
	return c, nil
}

// Prompt derives the persona preamble for a level.
func (c *Catalog) Prompt(d Difficulty) (string, error) {
	p, ok := c.prompts[d]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownDifficultyLevel, d)
	}
	return p, nil
}
