package bundle

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testInfo() Info {
	return Info{
		FreqHz:      162_550_000,
		SampleRate:  64000,
		Gain:        28.0,
		Mode:        "fm",
		Start:       time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC),
		End:         time.Date(2026, 8, 25, 12, 0, 2, 0, time.UTC),
		PeakDB:      -32.5,
		ThresholdDB: -60.0,
		MarginDB:    3.0,
		Label:       "wx",
	}
}

func testIQ(n int) []complex64 {
	iq := make([]complex64, n)
	for i := range iq {
		iq[i] = complex(float32(i)/float32(n), -float32(i)/float32(n))
	}
	return iq
}

func TestWriteAndVerify(t *testing.T) {
	root := t.TempDir()
	w, err := NewWriter(root)
	require.NoError(t, err)

	id, err := w.Write(testInfo(), map[string]string{"kind": "detection"}, testIQ(4096))
	require.NoError(t, err)
	require.Contains(t, id, "162.550MHz")

	dir := filepath.Join(root, id)
	require.NoError(t, Verify(dir))

	m, err := ReadManifest(dir)
	require.NoError(t, err)
	require.Equal(t, id, m.ID)
	require.Equal(t, int64(4096*8), m.Data.Bytes)
	require.Len(t, m.Data.SHA256, 64)
}

func TestVerifyDetectsCorruption(t *testing.T) {
	root := t.TempDir()
	w, err := NewWriter(root)
	require.NoError(t, err)
	id, err := w.Write(testInfo(), nil, testIQ(1024))
	require.NoError(t, err)

	dir := filepath.Join(root, id)
	f, err := os.OpenFile(filepath.Join(dir, DataFile), os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0xff}, 100)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.Error(t, Verify(dir))
}

func TestMetaCarriesCapture(t *testing.T) {
	root := t.TempDir()
	w, err := NewWriter(root)
	require.NoError(t, err)
	info := testInfo()
	info.Truncated = true
	id, err := w.Write(info, nil, testIQ(256))
	require.NoError(t, err)

	buf, err := os.ReadFile(filepath.Join(root, id, MetaFile))
	require.NoError(t, err)
	var meta map[string]any
	require.NoError(t, json.Unmarshal(buf, &meta))
	global := meta["global"].(map[string]any)
	require.Equal(t, "cf32_le", global["core:datatype"])
	require.Equal(t, 162550000.0, global["core:frequency"])
	require.Equal(t, true, global["scanrx:truncated"])
}

func TestListSkipsInProgress(t *testing.T) {
	root := t.TempDir()
	w, err := NewWriter(root)
	require.NoError(t, err)
	id, err := w.Write(testInfo(), nil, testIQ(64))
	require.NoError(t, err)

	// a crashed write leaves only a temp dir behind
	require.NoError(t, os.MkdirAll(filepath.Join(root, tmpPrefix+"dead"), 0755))

	ids, err := List(root)
	require.NoError(t, err)
	require.Equal(t, []string{id}, ids)
	for _, got := range ids {
		require.False(t, strings.HasPrefix(got, "."))
	}
}

func TestWriteFailureLeavesNothing(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks don't apply to root")
	}
	root := t.TempDir()
	w, err := NewWriter(root)
	require.NoError(t, err)

	// make the root read-only so the temp dir cannot be created
	require.NoError(t, os.Chmod(root, 0500))
	t.Cleanup(func() { os.Chmod(root, 0755) })

	_, err = w.Write(testInfo(), nil, testIQ(64))
	require.ErrorIs(t, err, ErrStorage)

	os.Chmod(root, 0755)
	ids, err := List(root)
	require.NoError(t, err)
	require.Empty(t, ids)
}
