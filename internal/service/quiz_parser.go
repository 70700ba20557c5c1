package service

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// ParseCatalog reads and validates a YAML quiz catalog.
func ParseCatalog(filename string) (*Catalog, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return DecodeCatalog(data)
}

// DecodeCatalog parses YAML catalog content. Unknown keys are rejected so
// typos in the file surface at startup.
func DecodeCatalog(data []byte) (*Catalog, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var catalog Catalog
	if err := dec.Decode(&catalog); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	return &catalog, nil
}

// EncodeCatalog renders a catalog as YAML.
func EncodeCatalog(c *Catalog) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("encode catalog: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode catalog: %w", err)
	}
	return buf.Bytes(), nil
}

// LoadCatalog loads the catalog from filename, or returns the built-in one
// when filename is empty or cannot be used.
func LoadCatalog(filename string, logger *slog.Logger) *Catalog {
	if filename == "" {
		return DefaultCatalog()
	}
	catalog, err := ParseCatalog(filename)
	if err != nil {
		logger.Warn("Failed to load quiz catalog, using built-in questions", "path", filename, "error", err)
		return DefaultCatalog()
	}
	logger.Info("Loaded quiz catalog", "path", filename, "questions", len(catalog.Questions))
	return catalog
}

// DefaultCatalog returns the built-in fairy quiz.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Questions: []QuizQuestion{
			{
				Prompt: "What time of day do you feel most alive?",
				Options: []QuizOption{
					{Label: "Dawn", ScoreTag: "Aos Sí"},
					{Label: "Midday", ScoreTag: "Leprechaun"},
					{Label: "Twilight", ScoreTag: "Pooka"},
					{Label: "Midnight", ScoreTag: "Banshee"},
				},
			},
			{
				Prompt: "What would you guard with your life?",
				Options: []QuizOption{
					{Label: "Gold or treasure", ScoreTag: "Leprechaun"},
					{Label: "A sacred secret", ScoreTag: "Pooka"},
					{Label: "The heart of a loved one", ScoreTag: "Banshee"},
					{Label: "An ancient forest", ScoreTag: "Aos Sí"},
				},
			},
			{
				Prompt: "Pick your fairy home:",
				Options: []QuizOption{
					{Label: "Hollow tree", ScoreTag: "Aos Sí"},
					{Label: "Ocean cove", ScoreTag: "Selkie"},
					{Label: "Foggy moor", ScoreTag: "Banshee"},
					{Label: "Pub", ScoreTag: "Clurichaun"},
				},
			},
		},
		Genders: []string{"Man", "Woman", "Other"},
		Realms:  []string{"Fairy Folk", "Celtic Gods", "Druids", "Warriors", "Mythical Creatures"},
		Lore: map[string]string{
			"Leprechaun": "Clever and a notorious trickster, you guard your treasures well and possess a sharp wit. You might be a master craftsman in your spare time!",
			"Pooka":      "Wild, unpredictable, and most alive in the shadows of the night. You are a shapeshifter, embodying mystery and a touch of delightful chaos.",
			"Banshee":    "Deeply sensitive and intuitive, your emotions run strong. You might have a powerful voice or presence that can herald great change.",
			"Clurichaun": "A lover of good times, fine drink, and a bit of mischief! You know how to liven up any gathering and have a knack for finding the best cellars.",
			"Aos Sí":     "Noble, elegant, and possessing an ancient soul. You are one of the 'people of the mounds,' carrying an air of old magic and timeless grace.",
			"Selkie":     "Dreamy, romantic, and irresistibly drawn to the vast, mysterious sea. You have a dual nature, comfortable both in water and on land, with a gentle heart.",
			"Changeling": "Quiet, mysterious, with an otherworldly charm that captivates those around you. You often feel like you belong to a different realm.",
			"Dullahan":   "A grim and powerful figure, often a silent observer who commands respect, and perhaps a little fear. You carry an aura of significant, unspoken power.",
		},
		Prefixes: []string{"Pooka", "Fae", "Briar", "Niamh", "Siobhan", "Gloam", "Donn", "Cael", "Aos Sí", "Selkie", "Banshee", "Clurichaun", "Leprechaun"},
		Suffixes: []string{"of the Glens", "Shadowstep", "Mistwhisper", "Nightwail", "Goldhand", "Ó Faery", "Gleannán", "Fogdrift"},
	}
}
