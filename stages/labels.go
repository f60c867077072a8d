// Package stages turns raw model detections into growth-stage results with
// Arabic display names.
package stages

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Unknown is reported as the dominant stage when nothing was detected.
const Unknown = "unknown"

// LabelMap maps a canonical class name to its Arabic display name. It is built
// once at startup and never written afterwards.
type LabelMap map[string]string

func DefaultLabelMap() LabelMap {
	return LabelMap{
		"Bud":             "برعم",
		"Flower":          "زهرة",
		"Early-growth":    "نمو مبكر",
		"Mid-Growth":      "نمو متوسط",
		"Maturity":        "ناضج",
		"Dry":             "جاف",
		"not-pomegranate": "ليس رمان",
	}
}

// LoadLabelMap reads a YAML mapping of canonical to localized names. An empty
// path yields the built-in table.
func LoadLabelMap(path string) (LabelMap, error) {
	if path == "" {
		return DefaultLabelMap(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read label map: %w", err)
	}

	var labels LabelMap
	if err := yaml.Unmarshal(data, &labels); err != nil {
		return nil, fmt.Errorf("parse label map %s: %w", path, err)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("label map %s is empty", path)
	}
	return labels, nil
}

// Localize returns the display name for name, or name itself when unmapped.
func (m LabelMap) Localize(name string) string {
	if localized, ok := m[name]; ok {
		return localized
	}
	return name
}
