// Package bundle persists detections as self-describing archives: raw IQ
// samples in SigMF cf32_le layout, a metadata record, and a content hash so
// consumers can verify integrity without trusting the writer.
package bundle

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/astrotrace/scanrx/radio"
)

// ErrStorage marks bundle write failures. Non-fatal to a running scan.
var ErrStorage = errors.New("bundle storage failure")

const (
	DataFile     = "capture.sigmf-data"
	MetaFile     = "capture.sigmf-meta"
	EventFile    = "event.json"
	ManifestFile = "manifest.json"

	tmpPrefix = ".tmp-"
)

// Info is the capture metadata recorded in the SigMF sidecar.
type Info struct {
	FreqHz       uint64
	SampleRate   uint32
	Gain         float64
	Mode         string
	Start        time.Time
	End          time.Time
	PeakDB       float64
	ThresholdDB  float64
	MarginDB     float64
	DwellSeconds float64
	Label        string
	Truncated    bool
}

type sigmfGlobal struct {
	Version     string  `json:"core:version"`
	Datatype    string  `json:"core:datatype"`
	SampleRate  float64 `json:"core:sample_rate"`
	Frequency   float64 `json:"core:frequency"`
	Datetime    string  `json:"core:datetime"`
	Description string  `json:"core:description,omitempty"`
	Mode        string  `json:"scanrx:mode"`
	GainDB      float64 `json:"scanrx:gain_db"`
	SquelchDB   float64 `json:"scanrx:squelch_db"`
	MarginDB    float64 `json:"scanrx:squelch_margin_db"`
	PeakDB      float64 `json:"scanrx:peak_db"`
	DwellSec    float64 `json:"scanrx:dwell_seconds"`
	Label       string  `json:"scanrx:label,omitempty"`
	Truncated   bool    `json:"scanrx:truncated"`
}

type sigmfCapture struct {
	SampleStart int     `json:"core:sample_start"`
	Frequency   float64 `json:"core:frequency"`
	Datetime    string  `json:"core:datetime"`
}

type sigmfMeta struct {
	Global      sigmfGlobal    `json:"global"`
	Captures    []sigmfCapture `json:"captures"`
	Annotations []struct{}     `json:"annotations"`
}

type Artifact struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256,omitempty"`
	Bytes  int64  `json:"bytes,omitempty"`
}

// Manifest ties the bundle together; the data hash lives here so integrity
// can be checked independently of the metadata sidecar.
type Manifest struct {
	ID    string   `json:"id"`
	Data  Artifact `json:"data"`
	Meta  Artifact `json:"meta"`
	Event Artifact `json:"event"`
}

// NewID derives a stable bundle id from the detection start time and
// frequency, with a short random suffix against same-second collisions.
func NewID(start time.Time, freqHz uint64) string {
	fb := radio.HzBand{Center: freqHz}.ToMHz()
	return fmt.Sprintf("%s_%.3fMHz_%s",
		start.UTC().Format("20060102T150405Z"),
		fb.Center,
		uuid.NewString()[:8])
}

type Writer struct {
	root string
}

func NewWriter(root string) (*Writer, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("bundle root: %v: %w", err, ErrStorage)
	}
	return &Writer{root: root}, nil
}

func (w *Writer) Root() string { return w.root }

// Write persists one detection atomically: everything is assembled under a
// hidden temp directory and renamed into place only once the payload, hash,
// and metadata are all on disk. A failure partway leaves nothing
// discoverable.
func (w *Writer) Write(info Info, event any, iq []complex64) (string, error) {
	id := NewID(info.Start, info.FreqHz)
	tmp := filepath.Join(w.root, tmpPrefix+id)
	if err := os.MkdirAll(tmp, 0755); err != nil {
		return "", fmt.Errorf("bundle %s: %v: %w", id, err, ErrStorage)
	}
	if err := w.fill(tmp, id, info, event, iq); err != nil {
		os.RemoveAll(tmp)
		return "", err
	}
	if err := os.Rename(tmp, filepath.Join(w.root, id)); err != nil {
		os.RemoveAll(tmp)
		return "", fmt.Errorf("bundle %s: publish: %v: %w", id, err, ErrStorage)
	}
	return id, nil
}

func (w *Writer) fill(dir, id string, info Info, event any, iq []complex64) error {
	digest, nbytes, err := writeData(filepath.Join(dir, DataFile), iq)
	if err != nil {
		return fmt.Errorf("bundle %s: data: %v: %w", id, err, ErrStorage)
	}
	meta := sigmfMeta{
		Global: sigmfGlobal{
			Version:     "1.0.0",
			Datatype:    "cf32_le",
			SampleRate:  float64(info.SampleRate),
			Frequency:   float64(info.FreqHz),
			Datetime:    info.Start.UTC().Format(time.RFC3339Nano),
			Description: "scanrx detection capture",
			Mode:        info.Mode,
			GainDB:      info.Gain,
			SquelchDB:   info.ThresholdDB,
			MarginDB:    info.MarginDB,
			PeakDB:      info.PeakDB,
			DwellSec:    info.DwellSeconds,
			Label:       info.Label,
			Truncated:   info.Truncated,
		},
		Captures: []sigmfCapture{{
			Frequency: float64(info.FreqHz),
			Datetime:  info.Start.UTC().Format(time.RFC3339Nano),
		}},
		Annotations: []struct{}{},
	}
	if err := writeJSON(filepath.Join(dir, MetaFile), &meta); err != nil {
		return fmt.Errorf("bundle %s: meta: %v: %w", id, err, ErrStorage)
	}
	if err := writeJSON(filepath.Join(dir, EventFile), event); err != nil {
		return fmt.Errorf("bundle %s: event: %v: %w", id, err, ErrStorage)
	}
	man := Manifest{
		ID:    id,
		Data:  Artifact{Path: DataFile, SHA256: digest, Bytes: nbytes},
		Meta:  Artifact{Path: MetaFile},
		Event: Artifact{Path: EventFile},
	}
	if err := writeJSON(filepath.Join(dir, ManifestFile), &man); err != nil {
		return fmt.Errorf("bundle %s: manifest: %v: %w", id, err, ErrStorage)
	}
	return nil
}

func writeData(path string, iq []complex64) (digest string, nbytes int64, err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	h := sha256.New()
	cw := radio.NewCF32Writer(io.MultiWriter(f, h))
	if err := cw.Write64(iq); err != nil {
		return "", 0, err
	}
	if err := f.Sync(); err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), int64(len(iq)) * 8, nil
}

func writeJSON(path string, v any) error {
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(buf, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

// ReadManifest loads the manifest of a published bundle.
func ReadManifest(dir string) (*Manifest, error) {
	buf, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(buf, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Verify recomputes the payload hash and checks it against the manifest.
func Verify(dir string) error {
	m, err := ReadManifest(dir)
	if err != nil {
		return err
	}
	f, err := os.Open(filepath.Join(dir, filepath.Base(m.Data.Path)))
	if err != nil {
		return err
	}
	defer f.Close()
	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return err
	}
	if m.Data.Bytes != 0 && n != m.Data.Bytes {
		return fmt.Errorf("%s: payload is %d bytes, manifest says %d", dir, n, m.Data.Bytes)
	}
	if got := hex.EncodeToString(h.Sum(nil)); got != m.Data.SHA256 {
		return fmt.Errorf("%s: payload hash mismatch: %s != %s", dir, got, m.Data.SHA256)
	}
	return nil
}

// List returns the ids of published bundles under root, oldest first.
// In-progress temp directories are not visible.
func List(root string) ([]string, error) {
	ents, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range ents {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		ids = append(ids, e.Name())
	}
	sort.Strings(ids)
	return ids, nil
}
