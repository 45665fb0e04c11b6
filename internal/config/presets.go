package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Preset declares a timer that should exist at startup.
type Preset struct {
	Name      string    `yaml:"name"`
	Duration  Duration  `yaml:"duration"`
	Continue  bool      `yaml:"continue"`
	BeginTime time.Time `yaml:"begin_time"`
	BeginCron string    `yaml:"begin_cron"`
	NotifyURL string    `yaml:"notify_url"`
}

// Duration is a time.Duration written as a Go duration string ("90s", "1h30m").
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

type presetsFile struct {
	Timers []Preset `yaml:"timers"`
}

// LoadPresets reads timer presets from a YAML file:
//
//	timers:
//	  - name: tea
//	    duration: 3m
//	  - name: standup
//	    duration: 15m
//	    begin_cron: "0 9 * * 1-5"
//
// A missing file yields no presets and no error.
func LoadPresets(path string) ([]Preset, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read presets file: %w", err)
	}
	return ParsePresets(data)
}

// ParsePresets decodes and validates presets from YAML.
func ParsePresets(data []byte) ([]Preset, error) {
	var file presetsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse presets: %w", err)
	}

	seen := make(map[string]bool, len(file.Timers))
	for i, p := range file.Timers {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return nil, fmt.Errorf("preset %d: name is required", i+1)
		}
		if seen[name] {
			return nil, fmt.Errorf("preset %q: duplicate name", name)
		}
		if p.Duration <= 0 {
			return nil, fmt.Errorf("preset %q: duration must be positive", name)
		}
		seen[name] = true
		file.Timers[i].Name = name
	}
	return file.Timers, nil
}
