package hikeit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinLabels(t *testing.T) {
	std, err := BuiltinLabels("standard")
	require.NoError(t, err)
	require.NoError(t, std.Validate())
	assert.Len(t, std.Labels(), 10)

	esp, err := BuiltinLabels("ESPHome")
	require.NoError(t, err)
	require.NoError(t, esp.Validate())
	assert.Len(t, esp.Labels(), 9)

	m, ok := esp.Mode("Eco 4x4")
	assert.True(t, ok)
	assert.Equal(t, ModeEconomy, m)
	m, ok = esp.Mode("Off")
	assert.True(t, ok)
	assert.Equal(t, ModeNormal, m)

	_, ok = esp.Label(ModeSL)
	assert.False(t, ok, "esphome variant has no SL entry")
	l, ok := std.Label(ModeSL)
	assert.True(t, ok)
	assert.Equal(t, "SL", l)

	_, err = BuiltinLabels("nope")
	assert.Error(t, err)
}

func TestLoadLabelSet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "labels.yaml")
	data := `name: custom
entries:
  - label: "Eco"
    mode: 0
  - label: "Trail"
    mode: 4
  - label: "Valet"
    mode: 8
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	ls, err := LoadLabelSet(path)
	require.NoError(t, err)
	assert.Equal(t, "custom", ls.Name)
	assert.Equal(t, []string{"Eco", "Trail", "Valet"}, ls.Labels())
	m, ok := ls.Mode("Trail")
	assert.True(t, ok)
	assert.Equal(t, ModeHikeIT, m)
}

func TestLoadLabelSet_Invalid(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"empty.yaml":    "name: x\nentries: []\n",
		"dup.yaml":      "entries:\n  - {label: A, mode: 0}\n  - {label: A, mode: 1}\n",
		"badmode.yaml":  "entries:\n  - {label: A, mode: 12}\n",
		"emptylbl.yaml": "entries:\n  - {label: \"\", mode: 1}\n",
		"notyaml.yaml":  "entries: [",
	}
	for name, body := range cases {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
		_, err := LoadLabelSet(p)
		assert.Error(t, err, name)
	}

	_, err := LoadLabelSet(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestSpeedModeHelpers(t *testing.T) {
	assert.True(t, ModeAuto.Primary())
	assert.False(t, ModeLaunch.Primary())
	assert.True(t, ModeHikeIT.HasStep())
	assert.False(t, ModeNormal.HasStep())
	assert.Equal(t, "anti_slip", ModeAntiSlip.String())
	assert.Equal(t, "unknown", ModeUnknown.String())

	m, err := ParseSpeedMode(" Hike_IT ")
	require.NoError(t, err)
	assert.Equal(t, ModeHikeIT, m)
	_, err = ParseSpeedMode("warp")
	assert.Error(t, err)
}
