package audiograph

import (
	"sync"
	"time"
)

// NullAudioSink discards audio while pacing the render thread at the real
// sample rate. It stands in for a device when none is available and keeps
// realtime behavior testable without hardware.
type NullAudioSink struct {
	sampleRate float32
	needData   func()

	mu       sync.Mutex
	buffered int
	playing  bool
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewNullAudioSink returns a sink that consumes one block per block
// duration and drops the samples.
func NewNullAudioSink() *NullAudioSink {
	return &NullAudioSink{}
}

func (s *NullAudioSink) Init(sampleRate float32, needData func()) error {
	s.sampleRate = sampleRate
	s.needData = needData
	return nil
}

func (s *NullAudioSink) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playing {
		return nil
	}
	s.playing = true
	s.done = make(chan struct{})
	s.wg.Add(1)
	go s.consumeLoop(s.done)
	return nil
}

func (s *NullAudioSink) Stop() error {
	s.mu.Lock()
	if !s.playing {
		s.mu.Unlock()
		return nil
	}
	s.playing = false
	done := s.done
	s.mu.Unlock()

	close(done)
	s.wg.Wait()
	return nil
}

func (s *NullAudioSink) HasEnoughData() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffered >= sinkHighWater
}

func (s *NullAudioSink) PushData(Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffered++
	return nil
}

func (s *NullAudioSink) SetEOSCallback(func([]float32)) {}

// consumeLoop ticks once per block duration, dropping one buffered block
// and waking the render thread when the backlog runs low.
func (s *NullAudioSink) consumeLoop(done chan struct{}) {
	defer s.wg.Done()
	interval := time.Duration(float64(FramesPerBlock) / float64(s.sampleRate) * float64(time.Second))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.buffered > 0 {
				s.buffered--
			}
			low := s.buffered < sinkLowWater
			s.mu.Unlock()
			if low && s.needData != nil {
				s.needData()
			}
		}
	}
}
