package scanrx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleConfig = `
source:
  kind: synthetic
  sample_rate: 250000
  seed: 3
scan:
  loop: true
  squelch_db: -55
  channels:
    - freq_hz: 162550000
      name: wx1
    - freq_hz: 162400000
      name: wx2
      mode: am
      squelch_db: -48
audio:
  output: none
bundles:
  root: /tmp/caps
events:
  path: events.jsonl
http:
  addr: :8080
`

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scanrx.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "synthetic", cfg.Source.Kind)
	require.Equal(t, uint32(250000), cfg.Source.SampleRate)
	require.True(t, cfg.Scan.Loop)
	require.Len(t, cfg.Scan.Channels, 2)
	require.Equal(t, "wx2", cfg.Scan.Channels[1].Name)
	require.Equal(t, -48.0, cfg.Scan.Channels[1].SquelchDB)
	require.Equal(t, "/tmp/caps", cfg.Bundles.Root)
	require.Equal(t, ":8080", cfg.HTTP.Addr)

	// defaults fill the gaps
	require.Equal(t, 0.25, cfg.Scan.DwellSeconds)
	require.Equal(t, 4096, cfg.Scan.BlockSize)
	require.Equal(t, 16000, cfg.Audio.Rate)
	require.Equal(t, 0.2, cfg.Bundles.MinEventSeconds)

	// channel defaults resolve at plan build time
	plan, err := BuildPlan(cfg.Scan)
	require.NoError(t, err)
	require.Equal(t, -55.0, plan.Channels[0].SquelchDB)
	require.Equal(t, -48.0, plan.Channels[1].SquelchDB)
}

func TestLoadConfigBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scanrx.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scan: ["), 0644))
	_, err := LoadConfig(path)
	require.ErrorIs(t, err, ErrConfig)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
