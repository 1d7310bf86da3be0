// Package config loads the layered pipeline configuration. A run's
// configuration is the ordered merge of N YAML layers (shipped defaults,
// fork overrides, per-repository overrides) resolved once into an immutable
// [Config]; nothing mutates configuration after load.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Layer is one parsed configuration file.
type Layer map[string]any

// LoadLayer reads and parses a single YAML layer.
func LoadLayer(path string) (Layer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config layer: %w", err)
	}
	var layer Layer
	if err := yaml.Unmarshal(raw, &layer); err != nil {
		return nil, fmt.Errorf("parse config layer %s: %w", path, err)
	}
	return layer, nil
}

// MergeLayers merges layers in order, later layers taking precedence. The
// merge is pure: maps merge key-wise with override, slices concatenate in
// layer order, scalars override. Inputs are never mutated.
func MergeLayers(layers ...Layer) Layer {
	out := Layer{}
	for _, layer := range layers {
		for k, v := range layer {
			out[k] = mergeValue(out[k], v)
		}
	}
	return out
}

func mergeValue(base, override any) any {
	switch o := override.(type) {
	case map[string]any:
		b, ok := base.(map[string]any)
		if !ok {
			return copyMap(o)
		}
		merged := copyMap(b)
		for k, v := range o {
			merged[k] = mergeValue(merged[k], v)
		}
		return merged
	case []any:
		b, ok := base.([]any)
		if !ok {
			return append([]any(nil), o...)
		}
		combined := make([]any, 0, len(b)+len(o))
		combined = append(combined, b...)
		combined = append(combined, o...)
		return combined
	default:
		return override
	}
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = mergeValue(nil, v)
	}
	return out
}
