package seed

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed presets.yml
var builtinPresets []byte

// DefaultOptions is the data set used when no preset is given.
func DefaultOptions() Options {
	return Options{
		Users:           50,
		PostsPerUser:    4,
		FollowsPerUser:  8,
		FriendsPerUser:  3,
		MaxLikesPerPost: 10,
		MaxDays:         30,
	}
}

func parsePresets(raw []byte) (map[string]Options, error) {
	presets := map[string]Options{}
	if err := yaml.Unmarshal(raw, &presets); err != nil {
		return nil, fmt.Errorf("parse presets: %w", err)
	}
	return presets, nil
}

// PresetNames lists the built-in presets.
func PresetNames() []string {
	presets, err := parsePresets(builtinPresets)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadPreset resolves a built-in preset by name, or else reads a YAML file
// at that path. Keys missing from a file keep their DefaultOptions value.
func LoadPreset(nameOrPath string) (Options, error) {
	presets, err := parsePresets(builtinPresets)
	if err != nil {
		return Options{}, err
	}
	if opts, ok := presets[nameOrPath]; ok {
		return opts, opts.Validate()
	}

	raw, err := os.ReadFile(nameOrPath)
	if err != nil {
		return Options{}, fmt.Errorf("unknown preset %q (built-ins: %v): %w", nameOrPath, PresetNames(), err)
	}
	opts := DefaultOptions()
	if err := yaml.Unmarshal(raw, &opts); err != nil {
		return Options{}, fmt.Errorf("parse preset file %s: %w", nameOrPath, err)
	}
	return opts, opts.Validate()
}
