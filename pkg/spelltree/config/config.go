package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Stoplist represents the stopword list configuration
type Stoplist struct {
	Terms []string `yaml:"terms"`
}

// LoadStoplist loads stopwords from a YAML file
func LoadStoplist(path string) (*Stoplist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var sl Stoplist
	if err := yaml.Unmarshal(data, &sl); err != nil {
		return nil, err
	}

	return &sl, nil
}

// ThemeHints represents the per-category theme hint configuration
type ThemeHints struct {
	Categories map[string][]string `yaml:"categories"`
}

// LoadThemeHints loads theme hints from a YAML file
func LoadThemeHints(path string) (*ThemeHints, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var th ThemeHints
	if err := yaml.Unmarshal(data, &th); err != nil {
		return nil, err
	}

	return &th, nil
}

// LockTiers represents the lock budget table: the fraction of each tier
// eligible for a prerequisite lock, lowest tier first
type LockTiers struct {
	Percents []float64 `yaml:"percents"`
}

// LoadLockTiers loads the lock tier table from a YAML file
func LoadLockTiers(path string) (*LockTiers, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var lt LockTiers
	if err := yaml.Unmarshal(data, &lt); err != nil {
		return nil, err
	}

	return &lt, nil
}
