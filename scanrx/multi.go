package scanrx

import (
	"fmt"
	"time"

	"github.com/astrotrace/scanrx/dsp"
	"github.com/astrotrace/scanrx/radio"
)

// ChannelBank demodulates several channels out of one wideband block while
// the tuner stays parked. Each channel has its own mixer, squelch, and
// demodulator; the power spectrum is shared.
type ChannelBank struct {
	centerHz uint64
	rate     uint32
	est      *dsp.SpectralPower
	chans    []*bankChannel
}

type bankChannel struct {
	cfg   ChannelConfig
	mix   *dsp.Mixer
	sq    *Squelch
	dem   dsp.Demodulator
	open  bool
	start time.Time
	last  time.Time
	peak  float64
}

// BankCenter picks a tuner center that spans the monitor channels.
func BankCenter(chans []ChannelConfig) uint64 {
	lo, hi := chans[0].FreqHz, chans[0].FreqHz
	for _, c := range chans[1:] {
		if c.FreqHz < lo {
			lo = c.FreqHz
		}
		if c.FreqHz > hi {
			hi = c.FreqHz
		}
	}
	return lo + (hi-lo)/2
}

// NewChannelBank builds a bank over channels that must all fit inside the
// tuned bandwidth around centerHz.
func NewChannelBank(centerHz uint64, rate uint32, bins int, smoothing float64,
	audioRate, closeBlocks int, cfgs []ChannelConfig) (*ChannelBank, error) {
	if len(cfgs) == 0 {
		return nil, fmt.Errorf("%w: empty channel bank", ErrConfig)
	}
	b := &ChannelBank{
		centerHz: centerHz,
		rate:     rate,
		est:      dsp.NewSpectralPower(bins, smoothing),
	}
	half := float64(rate) / 2.0
	for _, cfg := range cfgs {
		off := float64(cfg.FreqHz) - float64(centerHz)
		edge := off
		if edge < 0 {
			edge = -edge
		}
		if edge+cfg.BandwidthHz/2.0 > half {
			return nil, fmt.Errorf("%w: channel %d Hz outside tuned bandwidth at center %d Hz",
				ErrConfig, cfg.FreqHz, centerHz)
		}
		dem, err := dsp.NewDemodulator(cfg.Mode, audioRate)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfig, err)
		}
		b.chans = append(b.chans, &bankChannel{
			cfg: cfg,
			mix: dsp.NewMixer(off, rate),
			sq:  NewSquelch(cfg.SquelchDB, cfg.MarginDB, closeBlocks),
			dem: dem,
		})
	}
	return b, nil
}

func (b *ChannelBank) CenterHz() uint64 { return b.centerHz }

func (b *ChannelBank) NoiseFloorDB() float64 { return b.est.NoiseFloorDB() }

// BankResult is the outcome of one block through the bank.
type BankResult struct {
	Audio     map[uint64][]float32
	Finalized []*Detection
}

// Process feeds one wideband block through every channel.
func (b *ChannelBank) Process(blk *radio.SampleBlock) BankResult {
	b.est.Measure(blk.Samples)
	res := BankResult{Audio: make(map[uint64][]float32)}
	for _, ch := range b.chans {
		off := float64(ch.cfg.FreqHz) - float64(b.centerHz)
		strength := b.est.BandPowerDB(b.rate, off, ch.cfg.BandwidthHz)
		open := ch.sq.Evaluate(strength)
		switch {
		case open && !ch.open:
			ch.open = true
			ch.start = blk.Time
			ch.peak = strength
			ch.dem.Reset()
		case open:
			if strength > ch.peak {
				ch.peak = strength
			}
		case !open && ch.open:
			ch.open = false
			res.Finalized = append(res.Finalized, &Detection{
				FreqHz:      ch.cfg.FreqHz,
				Channel:     ch.cfg.Name,
				Mode:        string(ch.cfg.Mode),
				Start:       ch.start,
				End:         ch.last,
				Seconds:     ch.last.Sub(ch.start).Seconds(),
				PeakDB:      ch.peak,
				ThresholdDB: ch.cfg.SquelchDB,
				MarginDB:    ch.cfg.MarginDB,
			})
		}
		if open {
			ch.last = blk.Time
			base := ch.mix.Shift(blk.Samples)
			res.Audio[ch.cfg.FreqHz] = ch.dem.Demodulate(base, blk.SampleRate)
		}
	}
	return res
}

// Flush finalizes any still-open channels, marking them truncated.
func (b *ChannelBank) Flush(now time.Time) []*Detection {
	var dets []*Detection
	for _, ch := range b.chans {
		if !ch.open {
			continue
		}
		ch.open = false
		dets = append(dets, &Detection{
			FreqHz:      ch.cfg.FreqHz,
			Channel:     ch.cfg.Name,
			Mode:        string(ch.cfg.Mode),
			Start:       ch.start,
			End:         now,
			Seconds:     now.Sub(ch.start).Seconds(),
			PeakDB:      ch.peak,
			ThresholdDB: ch.cfg.SquelchDB,
			MarginDB:    ch.cfg.MarginDB,
			Truncated:   true,
		})
	}
	return dets
}
