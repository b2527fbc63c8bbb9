package audiograph

import (
	"errors"
	"math"
)

// ErrBufferInvariant rejects AudioBuffers with no channels or channels of
// unequal length.
var ErrBufferInvariant = errors.New("audiograph: audio buffer needs >= 1 channels of equal length")

// AudioBuffer holds decoded audio: one sample slice per channel, all the
// same length, at the buffer's own sample rate.
type AudioBuffer struct {
	Channels   [][]float32
	SampleRate float32
}

// NewAudioBuffer allocates a zeroed buffer.
func NewAudioBuffer(channels, length int, sampleRate float32) (*AudioBuffer, error) {
	if channels < 1 {
		return nil, ErrBufferInvariant
	}
	buf := &AudioBuffer{SampleRate: sampleRate, Channels: make([][]float32, channels)}
	for i := range buf.Channels {
		buf.Channels[i] = make([]float32, length)
	}
	return buf, nil
}

// AudioBufferFromChannels wraps existing per-channel data.
func AudioBufferFromChannels(channels [][]float32, sampleRate float32) (*AudioBuffer, error) {
	if len(channels) < 1 {
		return nil, ErrBufferInvariant
	}
	for _, c := range channels {
		if len(c) != len(channels[0]) {
			return nil, ErrBufferInvariant
		}
	}
	return &AudioBuffer{Channels: channels, SampleRate: sampleRate}, nil
}

// Len returns the buffer length in frames.
func (b *AudioBuffer) Len() int {
	return len(b.Channels[0])
}

// ChanCount returns the number of channels.
func (b *AudioBuffer) ChanCount() int {
	return len(b.Channels)
}

// interpolate reads channel chn at a fractional playhead position with
// two-tap linear interpolation; one past the last index reads as zero.
func (b *AudioBuffer) interpolate(chn int, pos float64) float32 {
	prev := int(math.Floor(pos))
	frac := pos - math.Floor(pos)
	data := b.Channels[chn]
	var next float32
	if prev+1 < len(data) {
		next = data[prev+1]
	}
	return float32((1-frac)*float64(data[prev]) + frac*float64(next))
}

// BufferSourceOptions configures a new buffer source node.
type BufferSourceOptions struct {
	Buffer       *AudioBuffer
	Detune       float32
	LoopEnabled  bool
	LoopStart    float64
	LoopEnd      float64
	PlaybackRate float32
}

// SetBuffer installs (or clears) the audio data a buffer source plays. The
// buffer is moved: after the message only the render thread references it.
type SetBuffer struct{ Buffer *AudioBuffer }

// SetLoop reconfigures looping on a buffer source. Start and End are
// playhead positions in seconds; End <= Start disables the loop region.
type SetLoop struct {
	Enabled    bool
	Start, End float64
}

func (SetBuffer) isNodeMessage() {}
func (SetLoop) isNodeMessage()   {}

// bufferSourceNode plays an AudioBuffer, resampling by linear interpolation
// when the playback rate or the buffer's sample rate differs from the
// context's.
type bufferSourceNode struct {
	baseNode
	scheduledSource
	buffer *AudioBuffer
	// bufferPos is the fractional playhead in buffer frames.
	bufferPos    float64
	loopEnabled  bool
	loopStart    float64
	loopEnd      float64
	playbackRate *Param
	detune       *Param
}

func newBufferSourceNode(options BufferSourceOptions, info ChannelInfo) *bufferSourceNode {
	rate := options.PlaybackRate
	if rate == 0 {
		rate = 1
	}
	return &bufferSourceNode{
		baseNode:     newBaseNode(info),
		buffer:       options.Buffer,
		loopEnabled:  options.LoopEnabled,
		loopStart:    options.LoopStart,
		loopEnd:      options.LoopEnd,
		playbackRate: NewParam(rate),
		detune:       NewParam(options.Detune),
	}
}

func (n *bufferSourceNode) NodeType() AudioNodeType { return NodeBufferSource }

func (n *bufferSourceNode) InputCount() int { return 0 }

func (n *bufferSourceNode) GetParam(tag ParamType) *Param {
	switch tag {
	case ParamPlaybackRate:
		return n.playbackRate
	case ParamDetune:
		return n.detune
	default:
		panic("audiograph: no param " + tag.String() + " on AudioBufferSourceNode")
	}
}

func (n *bufferSourceNode) Message(msg AudioNodeMessage, sampleRate float32) {
	if n.handleSourceMessage(msg, sampleRate) {
		return
	}
	switch m := msg.(type) {
	case SetBuffer:
		n.buffer = m.Buffer
	case SetLoop:
		n.loopEnabled = m.Enabled
		n.loopStart = m.Start
		n.loopEnd = m.End
	}
}

func (n *bufferSourceNode) Process(inputs Chunk, info *BlockInfo) Chunk {
	if n.buffer == nil {
		return ChunkFromBlock(Block{})
	}
	play := n.shouldPlayAt(info.Frame)
	if !play.Play {
		return ChunkFromBlock(Block{})
	}
	buffer := n.buffer
	startAt := int(play.Start)
	framesToOutput := int(play.End) - startAt

	n.playbackRate.Update(info, 0)
	n.detune.Update(info, 0)
	computedRate := float64(n.playbackRate.Value()) * math.Pow(2, float64(n.detune.Value())/1200)
	stepPerTick := computedRate * float64(buffer.SampleRate) / float64(info.SampleRate)
	forward := stepPerTick >= 0

	actualLoopStart, actualLoopEnd := 0.0, float64(buffer.Len())
	if n.loopEnabled {
		if n.loopStart >= 0 && n.loopEnd > n.loopStart {
			actualLoopStart = n.loopStart * float64(buffer.SampleRate)
			actualLoopEnd = n.loopEnd * float64(buffer.SampleRate)
		}
		// Jump to the near end if the playhead sits past the loop.
		if forward && n.bufferPos >= actualLoopEnd {
			n.bufferPos = actualLoopStart
		}
		if !forward && n.bufferPos < actualLoopStart {
			n.bufferPos = actualLoopEnd
		}
	}

	if n.loopEnabled && math.Abs(stepPerTick) >= actualLoopEnd-actualLoopStart {
		// One tick would skip the whole loop; refuse to output.
		n.fireOnEnded()
		return ChunkFromBlock(Block{})
	}

	// Fast path: a straight 128-frame copy when no resampling is needed.
	if framesToOutput == FramesPerBlock &&
		forward &&
		stepPerTick == 1 &&
		n.bufferPos == math.Trunc(n.bufferPos) &&
		n.bufferPos+FramesPerBlock <= actualLoopEnd {
		pos := int(n.bufferPos)
		chans := make([][]float32, buffer.ChanCount())
		for chn := range chans {
			frame := make([]float32, FramesPerBlock)
			copy(frame, buffer.Channels[chn][pos:pos+FramesPerBlock])
			chans[chn] = frame
		}
		n.bufferPos += FramesPerBlock
		out := BlockFromChannels(chans...)
		n.checkEnded()
		return ChunkFromBlock(out)
	}

	// Slow path, with interpolation.
	out := Block{}
	out.Repeat(buffer.ChanCount())
	out.ExplicitRepeat()

	for chn := 0; chn < buffer.ChanCount(); chn++ {
		data := out.DataChan(chn)[startAt : startAt+framesToOutput]
		pos := n.bufferPos

		for i := range data {
			if n.loopEnabled {
				if forward && pos >= actualLoopEnd {
					pos -= actualLoopEnd - actualLoopStart
				} else if !forward && pos < actualLoopStart {
					pos += actualLoopEnd - actualLoopStart
				}
			} else if pos < 0 || pos >= float64(buffer.Len()) {
				// Out of data: the rest of the block stays silent.
				break
			}
			data[i] = buffer.interpolate(chn, pos)
			pos += stepPerTick
		}

		if chn == buffer.ChanCount()-1 {
			n.bufferPos = pos
		}
	}

	n.checkEnded()
	return ChunkFromBlock(out)
}

// checkEnded fires onended once the playhead leaves the buffer.
func (n *bufferSourceNode) checkEnded() {
	if n.loopEnabled {
		return
	}
	if n.bufferPos < 0 || n.bufferPos >= float64(n.buffer.Len()) {
		n.fireOnEnded()
	}
}
