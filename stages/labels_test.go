package stages

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLabelMap(t *testing.T) {
	expected := map[string]string{
		"Bud":             "برعم",
		"Flower":          "زهرة",
		"Early-growth":    "نمو مبكر",
		"Mid-Growth":      "نمو متوسط",
		"Maturity":        "ناضج",
		"Dry":             "جاف",
		"not-pomegranate": "ليس رمان",
	}

	labels := DefaultLabelMap()
	assert.Len(t, labels, 7)
	for canonical, localized := range expected {
		assert.Equal(t, localized, labels.Localize(canonical), canonical)
	}
}

func TestLocalizeFallsBackToCanonical(t *testing.T) {
	labels := DefaultLabelMap()
	for _, name := range []string{"Leaf", "bud", "", Unknown} {
		assert.Equal(t, name, labels.Localize(name))
	}
}

func TestLoadLabelMap(t *testing.T) {
	labels, err := LoadLabelMap("")
	require.NoError(t, err)
	assert.Equal(t, DefaultLabelMap(), labels)

	path := filepath.Join(t.TempDir(), "labels.yaml")
	require.NoError(t, os.WriteFile(path, []byte("Bud: Knospe\nFlower: Blüte\n"), 0o644))

	labels, err = LoadLabelMap(path)
	require.NoError(t, err)
	assert.Equal(t, "Knospe", labels.Localize("Bud"))
	assert.Equal(t, "Dry", labels.Localize("Dry"))
}

func TestLoadLabelMapErrors(t *testing.T) {
	_, err := LoadLabelMap(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	empty := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, err = LoadLabelMap(empty)
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("- not\n- a map\n"), 0o644))
	_, err = LoadLabelMap(bad)
	assert.Error(t, err)
}
