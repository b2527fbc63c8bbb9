package audiograph

import "errors"

// Sink errors. PushData failures are logged by the render thread and the
// block dropped without advancing the clock; Init/Play/Stop failures are
// reported to the caller that initiated the state change.
var (
	ErrSinkInit = errors.New("audiograph: sink initialization failed")
	ErrSinkPush = errors.New("audiograph: sink rejected block")
)

// AudioSink consumes the render thread's output one 128-frame chunk at a
// time, channel-planar.
//
// A realtime sink wraps an audio device: it drives the render thread by
// invoking the needData hook whenever its buffered data falls below
// threshold, and reports backpressure through HasEnoughData. An offline
// sink accumulates a fixed number of frames deterministically.
type AudioSink interface {
	// Init establishes the callback path by which the sink requests more
	// data. needData may be nil for sinks that are purely pulled.
	Init(sampleRate float32, needData func()) error
	// Play starts the sink's clock; the sink begins requesting data.
	Play() error
	// Stop halts the sink's clock.
	Stop() error
	// HasEnoughData is the backpressure signal: while true, the render
	// thread blocks on its message queue instead of producing.
	HasEnoughData() bool
	// PushData delivers exactly one rendered chunk.
	PushData(chunk Chunk) error
	// SetEOSCallback installs the end-of-stream hook. Only offline sinks
	// fire it; ownership of the buffer transfers to the callback.
	SetEOSCallback(callback func(buffer []float32))
}

// OfflineAudioSink renders a fixed number of frames into memory. Produced
// chunks accumulate into one channel-major buffer (channel 0's frames, then
// channel 1's, ...); when totalFrames have been rendered the EOS callback
// fires exactly once with the completed buffer.
type OfflineAudioSink struct {
	buffer         []float32
	channelCount   int
	totalFrames    int
	renderedBlocks int
	stopped        bool
	eosCallback    func([]float32)
}

// NewOfflineAudioSink returns a sink that accumulates totalFrames frames of
// channelCount channels.
func NewOfflineAudioSink(channelCount, totalFrames int) *OfflineAudioSink {
	return &OfflineAudioSink{channelCount: channelCount, totalFrames: totalFrames}
}

func (s *OfflineAudioSink) Init(sampleRate float32, needData func()) error { return nil }

func (s *OfflineAudioSink) Play() error {
	s.stopped = false
	return nil
}

func (s *OfflineAudioSink) Stop() error {
	s.stopped = true
	return nil
}

func (s *OfflineAudioSink) HasEnoughData() bool {
	return s.stopped || s.renderedBlocks*FramesPerBlock >= s.totalFrames
}

func (s *OfflineAudioSink) PushData(chunk Chunk) error {
	offset := s.renderedBlocks * FramesPerBlock
	if offset >= s.totalFrames {
		return nil
	}
	last := false
	copyLen := FramesPerBlock
	if s.totalFrames-offset <= FramesPerBlock {
		// The final block is zero-padded to a full quantum; only the
		// missing frames reach the result.
		last = true
		copyLen = s.totalFrames - offset
	}
	if s.buffer == nil {
		s.buffer = make([]float32, s.channelCount*s.totalFrames)
	}
	var block Block
	if chunk.Len() > 0 {
		block = chunk.Blocks[0]
	}
	block.Mix(s.channelCount, Speakers)
	for chn := 0; chn < s.channelCount; chn++ {
		dst := s.buffer[offset+chn*s.totalFrames:]
		copy(dst[:copyLen], block.DataChan(chn)[:copyLen])
	}
	s.renderedBlocks++

	if last && s.eosCallback != nil {
		callback := s.eosCallback
		s.eosCallback = nil
		buffer := s.buffer
		s.buffer = nil
		callback(buffer)
	}
	return nil
}

func (s *OfflineAudioSink) SetEOSCallback(callback func([]float32)) {
	s.eosCallback = callback
}

// Rendered returns the number of frames produced so far.
func (s *OfflineAudioSink) Rendered() int {
	frames := s.renderedBlocks * FramesPerBlock
	if frames > s.totalFrames {
		return s.totalFrames
	}
	return frames
}
