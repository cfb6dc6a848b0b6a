package radio

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type blockReader interface {
	Read64(dst []complex64) (int, error)
}

// FileSource replays a stored capture. The sample format is chosen by file
// extension: .cf32/.sigmf-data are little-endian complex64, anything else
// is treated as u8 interleaved I/Q. With Repeat set the file loops forever;
// otherwise exhaustion surfaces as ErrSourceUnavailable.
type FileSource struct {
	f      *os.File
	rd     blockReader
	mu     sync.Mutex
	info   SourceInfo
	repeat bool
	cf32   bool
	done   bool
}

func OpenFile(cfg SourceConfig) (*FileSource, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("file source: path is required")
	}
	f, err := os.Open(cfg.Path)
	if err != nil {
		return nil, err
	}
	fs := &FileSource{
		f:      f,
		repeat: cfg.Repeat,
		info: SourceInfo{
			Name:       "file:" + filepath.Base(cfg.Path),
			SampleRate: cfg.SampleRate,
			CenterHz:   cfg.CenterHz,
			Gain:       cfg.Gain,
		},
	}
	switch filepath.Ext(cfg.Path) {
	case ".cf32", ".sigmf-data":
		fs.cf32 = true
		fs.rd = NewCF32Reader(f)
	default:
		fs.rd = NewIQ8Reader(f)
	}
	return fs, nil
}

// Tune on a replay source only records the requested frequency; the stored
// samples are whatever was captured.
func (fs *FileSource) Tune(centerHz uint64, gain float64) error {
	fs.mu.Lock()
	fs.info.CenterHz = centerHz
	fs.info.Gain = gain
	fs.mu.Unlock()
	return nil
}

func (fs *FileSource) ReadBlock(ctx context.Context, n int) (*SampleBlock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fs.done {
		return nil, fmt.Errorf("file source exhausted: %w", ErrSourceUnavailable)
	}
	out := make([]complex64, n)
	filled := 0
	for filled < n {
		got, err := fs.rd.Read64(out[filled:])
		filled += got
		if err == nil {
			continue
		}
		if err != io.EOF && err != io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("file source: %v: %w", err, ErrSourceUnavailable)
		}
		if !fs.repeat {
			fs.done = true
			if filled == 0 {
				return nil, fmt.Errorf("file source exhausted: %w", ErrSourceUnavailable)
			}
			break
		}
		if err := fs.rewind(); err != nil {
			return nil, fmt.Errorf("file source: %v: %w", err, ErrSourceUnavailable)
		}
	}
	info := fs.Info()
	return &SampleBlock{
		Samples:    out[:filled],
		SampleRate: info.SampleRate,
		CenterHz:   info.CenterHz,
		Time:       time.Now(),
	}, nil
}

func (fs *FileSource) rewind() error {
	if _, err := fs.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if fs.cf32 {
		fs.rd = NewCF32Reader(fs.f)
	} else {
		fs.rd = NewIQ8Reader(fs.f)
	}
	return nil
}

func (fs *FileSource) Info() SourceInfo {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.info
}

func (fs *FileSource) Close() error { return fs.f.Close() }
