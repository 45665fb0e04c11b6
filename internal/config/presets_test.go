package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParsePresets(t *testing.T) {
	data := []byte(`
timers:
  - name: tea
    duration: 3m
  - name: " standup "
    duration: 15m
    continue: true
    begin_cron: "0 9 * * 1-5"
    notify_url: "generic://example.com/hook"
  - name: launch
    duration: 90s
    begin_time: 2030-01-02T03:04:05Z
`)

	presets, err := ParsePresets(data)
	require.NoError(t, err)
	require.Len(t, presets, 3)

	assert.Equal(t, "tea", presets[0].Name)
	assert.Equal(t, 3*time.Minute, time.Duration(presets[0].Duration))
	assert.False(t, presets[0].Continue)
	assert.True(t, presets[0].BeginTime.IsZero())

	assert.Equal(t, "standup", presets[1].Name)
	assert.True(t, presets[1].Continue)
	assert.Equal(t, "0 9 * * 1-5", presets[1].BeginCron)
	assert.Equal(t, "generic://example.com/hook", presets[1].NotifyURL)

	assert.Equal(t, 90*time.Second, time.Duration(presets[2].Duration))
	assert.True(t, presets[2].BeginTime.Equal(time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)))
}

func TestParsePresets_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing name", "timers:\n  - duration: 1m\n"},
		{"bad duration", "timers:\n  - name: a\n    duration: soon\n"},
		{"non-positive duration", "timers:\n  - name: a\n    duration: 0s\n"},
		{"duplicate", "timers:\n  - name: a\n    duration: 1m\n  - name: a\n    duration: 2m\n"},
		{"not yaml", "timers: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePresets([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadPresets_MissingFile(t *testing.T) {
	presets, err := LoadPresets(filepath.Join(t.TempDir(), "none.yaml"))
	assert.NoError(t, err)
	assert.Nil(t, presets)

	presets, err = LoadPresets("")
	assert.NoError(t, err)
	assert.Nil(t, presets)
}

func TestLoadPresets_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.yaml")
	require.NoError(t, os.WriteFile(path, []byte("timers:\n  - name: pomodoro\n    duration: 25m\n"), 0o600))

	presets, err := LoadPresets(path)
	require.NoError(t, err)
	require.Len(t, presets, 1)
	assert.Equal(t, "pomodoro", presets[0].Name)
}

func TestDuration_MarshalYAML(t *testing.T) {
	out, err := yaml.Marshal(Preset{Name: "x", Duration: Duration(90 * time.Second)})
	require.NoError(t, err)
	assert.Contains(t, string(out), "duration: 1m30s")
}
