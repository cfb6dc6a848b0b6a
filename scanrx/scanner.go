package scanrx

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/astrotrace/scanrx/audio"
	"github.com/astrotrace/scanrx/bundle"
	"github.com/astrotrace/scanrx/dsp"
	"github.com/astrotrace/scanrx/radio"
)

const (
	tuneTimeout      = 5 * time.Second
	bundleQueueDepth = 4
)

// ScanState is a point-in-time snapshot for the status endpoint.
type ScanState struct {
	State         string    `json:"state"`
	FreqHz        uint64    `json:"freq_hz"`
	Channel       string    `json:"channel,omitempty"`
	Index         int       `json:"index"`
	Pass          int       `json:"pass"`
	StrengthDB    float64   `json:"strength_db"`
	AudioRMS      float64   `json:"audio_rms"`
	NoiseFloorDB  float64   `json:"noise_floor_db"`
	Detections    uint64    `json:"detections"`
	DroppedBlocks uint64    `json:"dropped_blocks"`
	DroppedEvents uint64    `json:"dropped_events"`
	Since         time.Time `json:"since"`
}

type pendingBundle struct {
	det  *Detection
	iq   []complex64
	rate uint32
	gain float64
}

// Scanner wires the pipeline together: an acquisition goroutine feeds
// sample blocks through a bounded queue to the processing loop, which runs
// the controller and demodulator; a bundle worker persists detections off
// the hot path.
type Scanner struct {
	cfg  *Config
	plan *ScanPlan
	ctrl *Controller
	evl  *EventLog
	sink audio.Sink
	bw   *bundle.Writer
	met  *Metrics
	lg   *log.Logger

	src radio.Source

	blocks  chan *radio.SampleBlock
	srcErr  chan error
	tunes   chan uint64
	bundles chan pendingBundle
	bundleW sync.WaitGroup

	est       *dsp.SpectralPower
	mix       *dsp.Mixer
	dem       dsp.Demodulator
	mixOffset float64

	capture []complex64
	capMax  int

	mu         sync.Mutex
	snap       ScanState
	detections uint64
	dropped    uint64
}

// NewScanner validates the config and builds the pipeline. The source opens
// in Run.
func NewScanner(cfg *Config) (*Scanner, error) {
	cfg.ApplyDefaults()
	if cfg.Scan.FFTBins < 2 {
		return nil, fmt.Errorf("%w: fft_bins %d, need at least 2", ErrConfig, cfg.Scan.FFTBins)
	}
	var plan *ScanPlan
	var err error
	if len(cfg.Scan.Monitor) > 0 {
		mon := cfg.Scan
		mon.Channels = cfg.Scan.Monitor
		mon.Range = nil
		mon.CSVPath = ""
		plan, err = BuildPlan(mon)
	} else {
		plan, err = BuildPlan(cfg.Scan)
	}
	if err != nil {
		return nil, err
	}
	evl, err := NewEventLog(cfg.Events.Path, cfg.Events.Depth)
	if err != nil {
		return nil, err
	}
	sink, err := audio.NewSink(cfg.Audio)
	if err != nil {
		evl.Close()
		return nil, err
	}
	var bw *bundle.Writer
	if !cfg.Bundles.Disabled {
		bw, err = bundle.NewWriter(cfg.Bundles.Root)
		if err != nil {
			sink.Close()
			evl.Close()
			return nil, err
		}
	}
	maxEvent := time.Duration(cfg.Scan.MaxEventSeconds * float64(time.Second))
	s := &Scanner{
		cfg:     cfg,
		plan:    plan,
		ctrl:    NewController(plan, maxEvent, cfg.Scan.CloseBlocks),
		evl:     evl,
		sink:    sink,
		bw:      bw,
		met:     NewMetrics(),
		lg:      log.With("component", "scanner"),
		blocks:  make(chan *radio.SampleBlock, cfg.Scan.QueueDepth),
		srcErr:  make(chan error, 1),
		tunes:   make(chan uint64, 1),
		bundles: make(chan pendingBundle, bundleQueueDepth),
		est:     dsp.NewSpectralPower(cfg.Scan.FFTBins, cfg.Scan.Smoothing),
		capMax:  int(cfg.Scan.MaxEventSeconds * float64(cfg.Source.SampleRate)),
	}
	s.snap = ScanState{State: StateIdle.String(), Since: time.Now()}
	return s, nil
}

func (s *Scanner) Metrics() *Metrics { return s.met }
func (s *Scanner) Events() *EventLog { return s.evl }

// State returns the latest snapshot.
func (s *Scanner) State() ScanState {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snap
	snap.Detections = s.detections
	snap.DroppedBlocks = s.dropped
	snap.DroppedEvents = s.evl.Dropped()
	return snap
}

// TuneTo jumps the scan to the plan channel nearest freqHz. Returns the
// frequency actually selected. Monitor mode holds a fixed center, so tune
// requests are rejected rather than queued and ignored.
func (s *Scanner) TuneTo(freqHz uint64) (uint64, error) {
	if len(s.cfg.Scan.Monitor) > 0 {
		return 0, fmt.Errorf("tune rejected: monitoring a fixed center")
	}
	best, bestDiff := -1, uint64(0)
	for i, ch := range s.plan.Channels {
		d := ch.FreqHz - freqHz
		if ch.FreqHz < freqHz {
			d = freqHz - ch.FreqHz
		}
		if best < 0 || d < bestDiff {
			best, bestDiff = i, d
		}
	}
	if best < 0 {
		return 0, fmt.Errorf("%w: no channels", ErrConfig)
	}
	select {
	case s.tunes <- uint64(best):
	default:
		return 0, fmt.Errorf("tune request already pending")
	}
	return s.plan.Channels[best].FreqHz, nil
}

// Run executes the scan until the context is canceled, the source fails, or
// a non-looping plan completes. Detections already in flight are flushed
// before return.
func (s *Scanner) Run(ctx context.Context) error {
	src, err := radio.Open(ctx, s.cfg.Source)
	if err != nil {
		return err
	}
	s.src = src
	defer src.Close()

	s.bundleW.Add(1)
	go s.bundleWorker()
	defer func() {
		close(s.bundles)
		s.bundleW.Wait()
		s.sink.Close()
		s.evl.Close()
	}()

	acqCtx, acqCancel := context.WithCancel(ctx)
	defer acqCancel()
	go s.acquire(acqCtx)

	s.event(Event{Time: time.Now(), Kind: EventScanStart,
		Message: fmt.Sprintf("%d channels, loop=%v", len(s.plan.Channels), s.plan.Loop)})

	if len(s.cfg.Scan.Monitor) > 0 {
		return s.runMonitor(ctx)
	}
	return s.runScan(ctx)
}

func (s *Scanner) runScan(ctx context.Context) error {
	if d := s.ctrl.Start(); d.Advance {
		if err := s.tuneChannel(); err != nil {
			s.stopEvent("source unavailable")
			return err
		}
	}
	for {
		select {
		case <-ctx.Done():
			d := s.ctrl.Stop(time.Now())
			if d.Finalize != nil {
				s.finalize(d.Finalize)
			}
			s.stopEvent("canceled")
			return nil
		case err := <-s.srcErr:
			d := s.ctrl.Stop(time.Now())
			if d.Finalize != nil {
				s.finalize(d.Finalize)
			}
			s.stopEvent("source unavailable")
			return err
		case idx := <-s.tunes:
			d := s.ctrl.Jump(int(idx))
			if d.Finalize != nil {
				s.finalize(d.Finalize)
			}
			if err := s.tuneChannel(); err != nil {
				s.stopEvent("source unavailable")
				return err
			}
		case blk := <-s.blocks:
			done, err := s.processBlock(blk)
			if err != nil {
				s.stopEvent("source unavailable")
				return err
			}
			if done {
				s.stopEvent("plan complete")
				return nil
			}
		}
	}
}

func (s *Scanner) processBlock(blk *radio.SampleBlock) (done bool, err error) {
	s.est.Measure(blk.Samples)
	ch := s.ctrl.Channel()
	strength := s.est.BandPowerDB(blk.SampleRate, s.mixOffset, ch.BandwidthHz)
	s.met.StrengthDB.Set(strength)

	dec := s.ctrl.Observe(blk.Time.Add(blk.Duration()), strength)
	if dec.Capture {
		if len(s.capture)+len(blk.Samples) <= s.capMax {
			s.capture = append(s.capture, blk.Samples...)
		}
		base := s.mix.Shift(blk.Samples)
		pcm := s.dem.Demodulate(base, blk.SampleRate)
		rms := audioRMS(pcm)
		s.met.AudioRMS.Set(rms)
		s.mu.Lock()
		s.snap.AudioRMS = rms
		s.mu.Unlock()
		s.sink.Push(pcm)
	}
	if dec.Finalize != nil {
		s.finalize(dec.Finalize)
	}
	s.updateSnap(strength)
	if dec.Done {
		return true, nil
	}
	if dec.Advance {
		s.event(Event{Time: time.Now(), Kind: EventAdvance, FreqHz: ch.FreqHz})
		if err := s.tuneChannel(); err != nil {
			return false, err
		}
	}
	return false, nil
}

// tuneChannel points the radio at the controller's current channel. The
// channel sits a quarter of the sample rate above center so the DC spike
// stays out of band.
func (s *Scanner) tuneChannel() error {
	ch := s.ctrl.Channel()
	rate := s.cfg.Source.SampleRate
	offset := uint64(rate / 4)
	if ch.FreqHz < offset {
		offset = 0
	}
	center := ch.FreqHz - offset
	if err := s.tuneWithTimeout(center, s.cfg.Source.Gain); err != nil {
		return err
	}
	s.mixOffset = float64(offset)
	s.mix = dsp.NewMixer(s.mixOffset, rate)
	dem, err := dsp.NewDemodulator(ch.Mode, s.cfg.Audio.Rate)
	if err != nil {
		return err
	}
	s.dem = dem
	s.est.Reset()
	s.capture = s.capture[:0]
	s.drainBlocks()
	now := time.Now()
	s.ctrl.Tuned(now)
	s.met.CenterHz.Set(float64(center))
	s.met.ScanState.Set(float64(s.ctrl.State()))
	s.event(Event{Time: now, Kind: EventTuned, FreqHz: ch.FreqHz, Message: ch.Name})
	return nil
}

func (s *Scanner) tuneWithTimeout(centerHz uint64, gain float64) error {
	errc := make(chan error, 1)
	go func() { errc <- s.src.Tune(centerHz, gain) }()
	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("tune %d Hz: %v: %w", centerHz, err, radio.ErrSourceUnavailable)
		}
		return nil
	case <-time.After(tuneTimeout):
		return fmt.Errorf("tune %d Hz timed out: %w", centerHz, radio.ErrSourceUnavailable)
	}
}

// drainBlocks discards blocks read before the retune settled.
func (s *Scanner) drainBlocks() {
	for {
		select {
		case <-s.blocks:
		default:
			return
		}
	}
}

func (s *Scanner) acquire(ctx context.Context) {
	for {
		blk, err := s.src.ReadBlock(ctx, s.cfg.Scan.BlockSize)
		if err != nil {
			if ctx.Err() == nil {
				select {
				case s.srcErr <- err:
				default:
				}
			}
			return
		}
		s.met.BlocksRead.Inc()
		s.enqueue(blk)
	}
}

// enqueue hands a block to the processing loop. When the queue is full the
// oldest unprocessed block is dropped and counted; the new block always
// gets in, so acquisition never stalls.
func (s *Scanner) enqueue(blk *radio.SampleBlock) {
	for {
		select {
		case s.blocks <- blk:
			return
		default:
		}
		select {
		case <-s.blocks:
			s.met.BlocksDropped.Inc()
			s.mu.Lock()
			s.dropped++
			s.mu.Unlock()
		default:
		}
	}
}

func (s *Scanner) finalize(det *Detection) {
	s.met.Detections.Inc()
	s.mu.Lock()
	s.detections++
	s.mu.Unlock()
	iq := s.capture
	s.capture = nil
	if s.bw == nil || det.Seconds < s.cfg.Bundles.MinEventSeconds || len(iq) == 0 {
		s.event(Event{Time: det.End, Kind: EventDetection, FreqHz: det.FreqHz, Detection: det})
		return
	}
	pb := pendingBundle{det: det, iq: iq, rate: s.cfg.Source.SampleRate, gain: s.cfg.Source.Gain}
	select {
	case s.bundles <- pb:
	default:
		s.met.BundleErrors.Inc()
		s.event(Event{Time: time.Now(), Kind: EventWarning, FreqHz: det.FreqHz,
			Message: "bundle queue full, capture discarded"})
		s.event(Event{Time: det.End, Kind: EventDetection, FreqHz: det.FreqHz, Detection: det})
	}
}

func (s *Scanner) bundleWorker() {
	defer s.bundleW.Done()
	for pb := range s.bundles {
		det := pb.det
		ch := s.channelFor(det.FreqHz)
		id, err := s.bw.Write(bundle.Info{
			FreqHz:       det.FreqHz,
			SampleRate:   pb.rate,
			Gain:         pb.gain,
			Mode:         det.Mode,
			Start:        det.Start,
			End:          det.End,
			PeakDB:       det.PeakDB,
			ThresholdDB:  det.ThresholdDB,
			MarginDB:     det.MarginDB,
			DwellSeconds: ch.DwellSeconds,
			Label:        det.Channel,
			Truncated:    det.Truncated,
		}, det, pb.iq)
		if err != nil {
			s.met.BundleErrors.Inc()
			s.lg.Error("bundle write failed", "freq_hz", det.FreqHz, "err", err)
			s.event(Event{Time: time.Now(), Kind: EventWarning, FreqHz: det.FreqHz,
				Message: err.Error()})
		} else {
			det.BundleID = id
		}
		s.event(Event{Time: det.End, Kind: EventDetection, FreqHz: det.FreqHz, Detection: det})
	}
}

func (s *Scanner) channelFor(freqHz uint64) ChannelConfig {
	for _, ch := range s.plan.Channels {
		if ch.FreqHz == freqHz {
			return ch
		}
	}
	return ChannelConfig{FreqHz: freqHz}
}

func (s *Scanner) updateSnap(strength float64) {
	ch := s.ctrl.Channel()
	s.mu.Lock()
	s.snap.State = s.ctrl.State().String()
	s.snap.FreqHz = ch.FreqHz
	s.snap.Channel = ch.Name
	s.snap.Index = s.ctrl.Index()
	s.snap.Pass = s.ctrl.Pass()
	s.snap.StrengthDB = strength
	s.snap.NoiseFloorDB = s.est.NoiseFloorDB()
	s.mu.Unlock()
	s.met.ScanState.Set(float64(s.ctrl.State()))
}

func audioRMS(pcm []float32) float64 {
	if len(pcm) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range pcm {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum / float64(len(pcm)))
}

func (s *Scanner) event(ev Event) {
	s.evl.Append(ev)
	s.lg.Debug("event", "kind", ev.Kind, "freq_hz", ev.FreqHz, "msg", ev.Message)
}

func (s *Scanner) stopEvent(reason string) {
	s.mu.Lock()
	s.snap.State = StateStopped.String()
	s.mu.Unlock()
	s.met.ScanState.Set(float64(StateStopped))
	s.event(Event{Time: time.Now(), Kind: EventScanStop, Message: reason})
}

func (s *Scanner) runMonitor(ctx context.Context) error {
	chans := s.plan.Channels
	center := BankCenter(chans)
	bank, err := NewChannelBank(center, s.cfg.Source.SampleRate, s.cfg.Scan.FFTBins,
		s.cfg.Scan.Smoothing, s.cfg.Audio.Rate, s.cfg.Scan.CloseBlocks, chans)
	if err != nil {
		return err
	}
	if err := s.tuneWithTimeout(center, s.cfg.Source.Gain); err != nil {
		s.stopEvent("source unavailable")
		return err
	}
	s.met.CenterHz.Set(float64(center))
	s.event(Event{Time: time.Now(), Kind: EventTuned, FreqHz: center,
		Message: fmt.Sprintf("monitoring %d channels", len(chans))})
	for {
		select {
		case <-ctx.Done():
			s.flushBank(bank)
			s.stopEvent("canceled")
			return nil
		case err := <-s.srcErr:
			s.flushBank(bank)
			s.stopEvent("source unavailable")
			return err
		case blk := <-s.blocks:
			res := bank.Process(blk)
			for _, pcm := range res.Audio {
				s.sink.Push(pcm)
			}
			for _, det := range res.Finalized {
				s.met.Detections.Inc()
				s.mu.Lock()
				s.detections++
				s.mu.Unlock()
				s.event(Event{Time: det.End, Kind: EventDetection, FreqHz: det.FreqHz, Detection: det})
			}
			s.mu.Lock()
			s.snap.State = "monitoring"
			s.snap.FreqHz = center
			s.snap.NoiseFloorDB = bank.NoiseFloorDB()
			s.mu.Unlock()
		}
	}
}

func (s *Scanner) flushBank(bank *ChannelBank) {
	for _, det := range bank.Flush(time.Now()) {
		s.met.Detections.Inc()
		s.event(Event{Time: det.End, Kind: EventDetection, FreqHz: det.FreqHz, Detection: det})
	}
}
