package service

import (
	"fmt"
	"time"
)

// MaxLabelLength is the longest option label a gateway button can carry.
const MaxLabelLength = 64

// FallbackLore is used when a fairy type has no entry in the lore table.
const FallbackLore = "A mysterious and enchanting fairy, with tales yet to be widely told."

type QuizOption struct {
	Label    string `yaml:"label"`
	ScoreTag string `yaml:"score"`
}

type QuizQuestion struct {
	Prompt  string       `yaml:"prompt"`
	Options []QuizOption `yaml:"options"`
}

// Labels returns the option labels in display order.
func (q QuizQuestion) Labels() []string {
	labels := make([]string, len(q.Options))
	for i, opt := range q.Options {
		labels[i] = opt.Label
	}
	return labels
}

// Catalog is the static quiz content loaded once at startup.
type Catalog struct {
	Questions []QuizQuestion    `yaml:"questions"`
	Genders   []string          `yaml:"genders"`
	Realms    []string          `yaml:"realms"`
	Lore      map[string]string `yaml:"lore"`
	Prefixes  []string          `yaml:"prefixes"`
	Suffixes  []string          `yaml:"suffixes"`
}

// LoreFor returns the flavour text for a fairy type, falling back to
// FallbackLore for unknown types.
func (c *Catalog) LoreFor(fairyType string) string {
	if lore, ok := c.Lore[fairyType]; ok && lore != "" {
		return lore
	}
	return FallbackLore
}

// Validate checks the catalog is usable by the engine and the gateways.
func (c *Catalog) Validate() error {
	if len(c.Questions) == 0 {
		return fmt.Errorf("%w: no questions", ErrInvalidCatalog)
	}
	for i, q := range c.Questions {
		if q.Prompt == "" {
			return fmt.Errorf("%w: question %d has no prompt", ErrInvalidCatalog, i+1)
		}
		if len(q.Options) < 2 {
			return fmt.Errorf("%w: question %d needs at least two options", ErrInvalidCatalog, i+1)
		}
		for j, opt := range q.Options {
			if opt.Label == "" || opt.ScoreTag == "" {
				return fmt.Errorf("%w: question %d option %d needs a label and a score", ErrInvalidCatalog, i+1, j+1)
			}
			if len(opt.Label) > MaxLabelLength {
				return fmt.Errorf("%w: question %d option %d label longer than %d bytes", ErrInvalidCatalog, i+1, j+1, MaxLabelLength)
			}
		}
	}
	if err := validateChoices("genders", c.Genders); err != nil {
		return err
	}
	if err := validateChoices("realms", c.Realms); err != nil {
		return err
	}
	if len(c.Prefixes) == 0 || len(c.Suffixes) == 0 {
		return fmt.Errorf("%w: name prefixes and suffixes are required", ErrInvalidCatalog)
	}
	return nil
}

func validateChoices(name string, values []string) error {
	if len(values) == 0 {
		return fmt.Errorf("%w: no %s", ErrInvalidCatalog, name)
	}
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		if v == "" || len(v) > MaxLabelLength {
			return fmt.Errorf("%w: invalid entry %q in %s", ErrInvalidCatalog, v, name)
		}
		if seen[v] {
			return fmt.Errorf("%w: duplicate entry %q in %s", ErrInvalidCatalog, v, name)
		}
		seen[v] = true
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

// Result is the persona a user receives after the last question.
type Result struct {
	SessionID   string    `json:"session_id"`
	UserID      int64     `json:"user_id"`
	DisplayName string    `json:"display_name"`
	FairyType   string    `json:"fairy_type"`
	FairyName   string    `json:"fairy_name"`
	Lore        string    `json:"lore"`
	Gender      string    `json:"gender,omitempty"`
	Realm       string    `json:"realm,omitempty"`
	Answers     []string  `json:"answers"`
	CompletedAt time.Time `json:"completed_at"`
}
