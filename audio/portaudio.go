package audio

import (
	"github.com/charmbracelet/log"
	"github.com/gordonklaus/portaudio"
)

const paFramesPerBuffer = 1024

// PortAudioSink plays mono float32 audio on the default output device.
// Pushed frames queue through a bounded channel; overflow drops the frame
// rather than stalling the caller.
type PortAudioSink struct {
	stream *portaudio.Stream
	buf    []float32
	q      chan []float32
	done   chan struct{}
}

func NewPortAudioSink(rate int) (*PortAudioSink, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}
	s := &PortAudioSink{
		buf:  make([]float32, paFramesPerBuffer),
		q:    make(chan []float32, 100),
		done: make(chan struct{}),
	}
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(rate), paFramesPerBuffer, &s.buf)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}
	s.stream = stream
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, err
	}
	go s.run()
	return s, nil
}

func (s *PortAudioSink) Push(samples []float32) {
	if len(samples) == 0 {
		return
	}
	cp := make([]float32, len(samples))
	copy(cp, samples)
	select {
	case s.q <- cp:
	default:
		log.Debug("portaudio queue full, dropping frame", "samples", len(samples))
	}
}

func (s *PortAudioSink) run() {
	defer close(s.done)
	var pending []float32
	for chunk := range s.q {
		pending = append(pending, chunk...)
		for len(pending) >= paFramesPerBuffer {
			copy(s.buf, pending[:paFramesPerBuffer])
			pending = pending[paFramesPerBuffer:]
			if err := s.stream.Write(); err != nil {
				log.Debug("portaudio write", "err", err)
			}
		}
	}
}

func (s *PortAudioSink) Close() error {
	close(s.q)
	<-s.done
	s.stream.Stop()
	err := s.stream.Close()
	portaudio.Terminate()
	return err
}
