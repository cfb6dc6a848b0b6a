package radio

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"
)

var dongleMagic = [...]byte{'R', 'T', 'L', '0'}

const rtlReadTimeout = 5 * time.Second

// rtl_tcp command ids, as defined in rtl_tcp.c.
const (
	cmdCenterFreq = iota + 1
	cmdSampleRate
	cmdTunerGainMode
	cmdTunerGain
	cmdFreqCorrection
	cmdTunerIfGain
	cmdTestMode
	cmdAGCMode
	cmdDirectSampling
	cmdOffsetTuning
	cmdRTLXtalFreq
	cmdTunerXtalFreq
	cmdGainByIndex
)

// DongleInfo is sent by the rtl_tcp server on connect.
type DongleInfo struct {
	Magic     [4]byte
	Tuner     uint32
	GainCount uint32
}

func (d DongleInfo) Valid() bool { return d.Magic == dongleMagic }

type rtlCommand struct {
	Command   uint8
	Parameter uint32
}

// RTLTCPSource drives an rtl_tcp spectrum server: tuning commands go out as
// 5-byte control messages, samples come back as a u8 interleaved I/Q stream
// on the same connection.
type RTLTCPSource struct {
	conn   *net.TCPConn
	rd     *IQ8Reader
	mu     sync.Mutex
	info   SourceInfo
	Dongle DongleInfo
}

func OpenRTLTCP(ctx context.Context, cfg SourceConfig) (*RTLTCPSource, error) {
	addr := cfg.Addr
	if addr == "" {
		addr = "127.0.0.1:1234"
	}
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("rtltcp: connecting to %s: %w", addr, err)
	}
	s := &RTLTCPSource{
		conn: c.(*net.TCPConn),
		info: SourceInfo{
			Name:       "rtltcp:" + addr,
			SampleRate: cfg.SampleRate,
			CenterHz:   cfg.CenterHz,
			Gain:       cfg.Gain,
		},
	}
	s.rd = NewIQ8Reader(s.conn)
	if err := binary.Read(s.conn, binary.BigEndian, &s.Dongle); err != nil {
		s.conn.Close()
		return nil, fmt.Errorf("rtltcp: reading dongle info: %w", err)
	}
	if !s.Dongle.Valid() {
		s.conn.Close()
		return nil, fmt.Errorf("rtltcp: bad magic number %q", s.Dongle.Magic)
	}
	if err := s.do(cmdSampleRate, cfg.SampleRate); err != nil {
		s.conn.Close()
		return nil, err
	}
	if err := s.Tune(cfg.CenterHz, cfg.Gain); err != nil {
		s.conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *RTLTCPSource) do(cmd uint8, v uint32) error {
	if err := binary.Write(s.conn, binary.BigEndian, rtlCommand{cmd, v}); err != nil {
		return fmt.Errorf("rtltcp command %d: %v: %w", cmd, err, ErrSourceUnavailable)
	}
	return nil
}

// Tune sets the center frequency and tuner gain. Gain is in dB; zero
// selects tuner AGC.
func (s *RTLTCPSource) Tune(centerHz uint64, gain float64) error {
	if err := s.do(cmdCenterFreq, uint32(centerHz)); err != nil {
		return err
	}
	if gain == 0 {
		if err := s.do(cmdTunerGainMode, 0); err != nil {
			return err
		}
	} else {
		if err := s.do(cmdTunerGainMode, 1); err != nil {
			return err
		}
		if err := s.do(cmdTunerGain, uint32(gain*10.0)); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.info.CenterHz = centerHz
	s.info.Gain = gain
	s.mu.Unlock()
	return nil
}

// SetFreqCorrection sets the frequency correction in ppm.
func (s *RTLTCPSource) SetFreqCorrection(ppm uint32) error {
	return s.do(cmdFreqCorrection, ppm)
}

// SetAGCMode enables or disables the RTL digital AGC.
func (s *RTLTCPSource) SetAGCMode(on bool) error {
	if on {
		return s.do(cmdAGCMode, 1)
	}
	return s.do(cmdAGCMode, 0)
}

func (s *RTLTCPSource) ReadBlock(ctx context.Context, n int) (*SampleBlock, error) {
	deadline := time.Now().Add(rtlReadTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("rtltcp: %v: %w", err, ErrSourceUnavailable)
	}
	out := make([]complex64, n)
	got, err := s.rd.Read64(out)
	if err != nil {
		return nil, fmt.Errorf("rtltcp read: %v: %w", err, ErrSourceUnavailable)
	}
	info := s.Info()
	return &SampleBlock{
		Samples:    out[:got],
		SampleRate: info.SampleRate,
		CenterHz:   info.CenterHz,
		Time:       time.Now(),
	}, nil
}

func (s *RTLTCPSource) Info() SourceInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

func (s *RTLTCPSource) Close() error { return s.conn.Close() }
