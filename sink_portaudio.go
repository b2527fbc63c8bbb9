package audiograph

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gordonklaus/portaudio"
)

// paStream abstracts a PortAudio stream for testing.
type paStream interface {
	Start() error
	Stop() error
	Close() error
	Write() error
}

// Ring watermarks in blocks. Below low the sink asks the render thread for
// more; at high the render thread parks.
const (
	sinkLowWater  = 2
	sinkHighWater = 8
)

// PortAudioSink plays rendered chunks on the default output device. Pushed
// chunks land in an interleaved ring buffer; a playback goroutine drains it
// into the device one device buffer at a time (one, two or eight blocks for
// Interactive, Balanced and Playback latency), padding underruns with silence,
// and posts a need-data wakeup whenever the ring falls below the low-water
// mark.
type PortAudioSink struct {
	channels   int
	deviceBuf  int
	logger     *log.Logger
	sampleRate float32
	needData   func()

	mu      sync.Mutex
	ring    []float32
	playing bool

	stream paStream
	buf    []float32
	done   chan struct{}
	wg     sync.WaitGroup

	// openStream is a test seam; it defaults to PortAudio.
	openStream func() (paStream, error)
}

// NewPortAudioSink creates a sink for the default output device.
func NewPortAudioSink(channels int, latency LatencyCategory, logger *log.Logger) (*PortAudioSink, error) {
	if channels < 1 {
		channels = 2
	}
	deviceBuf := FramesPerBlock
	switch latency {
	case Balanced:
		deviceBuf = 2 * FramesPerBlock
	case Playback:
		deviceBuf = 8 * FramesPerBlock
	}
	return &PortAudioSink{channels: channels, deviceBuf: deviceBuf, logger: logger}, nil
}

func (s *PortAudioSink) Init(sampleRate float32, needData func()) error {
	s.sampleRate = sampleRate
	s.needData = needData
	s.buf = make([]float32, s.deviceBuf*s.channels)
	if s.openStream == nil {
		s.openStream = func() (paStream, error) {
			if err := portaudio.Initialize(); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrSinkInit, err)
			}
			stream, err := portaudio.OpenDefaultStream(0, s.channels, float64(sampleRate), s.deviceBuf, &s.buf)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrSinkInit, err)
			}
			return stream, nil
		}
	}
	stream, err := s.openStream()
	if err != nil {
		return err
	}
	s.stream = stream
	return nil
}

func (s *PortAudioSink) Play() error {
	s.mu.Lock()
	if s.playing {
		s.mu.Unlock()
		return nil
	}
	s.playing = true
	s.mu.Unlock()

	if err := s.stream.Start(); err != nil {
		s.mu.Lock()
		s.playing = false
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrSinkInit, err)
	}
	s.done = make(chan struct{})
	s.wg.Add(1)
	go s.playbackLoop()
	return nil
}

func (s *PortAudioSink) Stop() error {
	s.mu.Lock()
	if !s.playing {
		s.mu.Unlock()
		return nil
	}
	s.playing = false
	s.mu.Unlock()

	close(s.done)
	s.wg.Wait()
	if err := s.stream.Stop(); err != nil {
		return fmt.Errorf("audiograph: stop stream: %w", err)
	}
	return nil
}

func (s *PortAudioSink) HasEnoughData() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ring) >= sinkHighWater*FramesPerBlock*s.channels
}

func (s *PortAudioSink) PushData(chunk Chunk) error {
	var block Block
	if chunk.Len() > 0 {
		block = chunk.Blocks[0]
	}
	block.Mix(s.channels, Speakers)
	data := block.Interleave()

	s.mu.Lock()
	s.ring = append(s.ring, data...)
	s.mu.Unlock()
	return nil
}

// SetEOSCallback is an offline-sink concern; realtime sinks never fire it.
func (s *PortAudioSink) SetEOSCallback(func([]float32)) {}

// playbackLoop feeds the device until Stop. Device writes pace the loop.
func (s *PortAudioSink) playbackLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		default:
		}

		s.mu.Lock()
		n := copy(s.buf, s.ring)
		s.ring = s.ring[:copy(s.ring, s.ring[n:])]
		low := len(s.ring) < sinkLowWater*FramesPerBlock*s.channels
		s.mu.Unlock()

		// Pad an underrun with silence; better a quiet gap than a stall.
		for i := n; i < len(s.buf); i++ {
			s.buf[i] = 0
		}
		if low && s.needData != nil {
			s.needData()
		}

		if err := s.stream.Write(); err != nil {
			// Device overruns are routine when the loop restarts.
			s.logger.Debug("device write", "err", err)
		}
	}
}
