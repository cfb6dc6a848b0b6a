package radio

import (
	"encoding/binary"
	"io"
	"math"
)

// IQ8Reader decodes u8 interleaved I/Q (rtl_tcp wire format, .iq8 files).
type IQ8Reader struct {
	r   io.Reader
	buf []byte
}

func NewIQ8Reader(r io.Reader) *IQ8Reader {
	if r == nil {
		panic("nil reader")
	}
	return &IQ8Reader{r: r}
}

// Read64 fills dst with decoded samples, returning how many were read.
// A short read at EOF still returns the decoded prefix.
func (iq *IQ8Reader) Read64(dst []complex64) (int, error) {
	if cap(iq.buf) < 2*len(dst) {
		iq.buf = make([]byte, 2*len(dst))
	}
	buf := iq.buf[:2*len(dst)]
	n, err := io.ReadFull(iq.r, buf)
	samps := n / 2
	for i := 0; i < samps; i++ {
		dst[i] = complex(
			(float32(buf[2*i])-127)/128.0,
			(float32(buf[2*i+1])-127)/128.0)
	}
	return samps, err
}

// CF32Reader decodes little-endian complex64 pairs (SigMF cf32_le).
type CF32Reader struct {
	r   io.Reader
	buf []byte
}

func NewCF32Reader(r io.Reader) *CF32Reader {
	if r == nil {
		panic("nil reader")
	}
	return &CF32Reader{r: r}
}

func (cr *CF32Reader) Read64(dst []complex64) (int, error) {
	if cap(cr.buf) < 8*len(dst) {
		cr.buf = make([]byte, 8*len(dst))
	}
	buf := cr.buf[:8*len(dst)]
	n, err := io.ReadFull(cr.r, buf)
	samps := n / 8
	for i := 0; i < samps; i++ {
		re := math.Float32frombits(binary.LittleEndian.Uint32(buf[8*i:]))
		im := math.Float32frombits(binary.LittleEndian.Uint32(buf[8*i+4:]))
		dst[i] = complex(re, im)
	}
	return samps, err
}

// CF32Writer encodes complex64 samples as little-endian cf32 pairs.
type CF32Writer struct {
	w   io.Writer
	buf []byte
}

func NewCF32Writer(w io.Writer) *CF32Writer { return &CF32Writer{w: w} }

func (cw *CF32Writer) Write64(src []complex64) error {
	if cap(cw.buf) < 8*len(src) {
		cw.buf = make([]byte, 8*len(src))
	}
	buf := cw.buf[:8*len(src)]
	for i, v := range src {
		binary.LittleEndian.PutUint32(buf[8*i:], math.Float32bits(real(v)))
		binary.LittleEndian.PutUint32(buf[8*i+4:], math.Float32bits(imag(v)))
	}
	_, err := cw.w.Write(buf)
	return err
}
