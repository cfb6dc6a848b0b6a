package wav

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	w, err := NewWriter(f, 16000, 16, 1)
	require.NoError(t, err)
	pcm := []int16{0, 1000, -1000, 32767, -32768}
	require.NoError(t, binary.Write(w, binary.LittleEndian, pcm))
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	rf, err := os.Open(path)
	require.NoError(t, err)
	defer rf.Close()
	r, err := NewReader(rf)
	require.NoError(t, err)
	require.Equal(t, 16000, r.SampleRate())
	require.Equal(t, 1, r.Channels())
	require.Equal(t, 16, r.BitDepth())

	got := make([]int16, len(pcm))
	require.NoError(t, binary.Read(r, binary.LittleEndian, got))
	require.Equal(t, pcm, got)
	_, err = io.ReadAll(r)
	require.NoError(t, err)
}

func TestReaderRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.wav")
	require.NoError(t, os.WriteFile(path, make([]byte, 64), 0644))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	_, err = NewReader(f)
	require.Error(t, err)
}
