// Package audiograph implements a real-time audio processing graph: a
// network of processing nodes pulled by a render thread in fixed 128-frame
// blocks and pushed to an audio sink.
//
// The control-plane API (AudioContext) lives on the caller's goroutine and
// talks to the render goroutine exclusively through typed messages; the
// render goroutine exclusively owns the graph, the node engines and the
// parameter timelines.
package audiograph

import "math"

// FramesPerBlock is the number of sample-frames in one render quantum.
const FramesPerBlock = 128

// MaxChannelCount is the largest channel count a node may be configured with.
const MaxChannelCount = 32

// Tick is a non-negative sample-frame index at the context sample rate.
// The sample clock is integral; seconds are derived only at the API surface
// so no float error accumulates in the clock.
type Tick uint64

// TickFromTime converts a time in seconds to a Tick at the given rate.
func TickFromTime(seconds float64, sampleRate float32) Tick {
	if seconds <= 0 {
		return 0
	}
	return Tick(seconds * float64(sampleRate))
}

// Seconds converts the tick to seconds at the given rate.
func (t Tick) Seconds(sampleRate float32) float64 {
	return float64(t) / float64(sampleRate)
}

// ChannelInterpretation selects how Mix reconciles channel counts.
type ChannelInterpretation int

const (
	// Speakers applies the standard positional up/down-mix equations for
	// mono, stereo, quad and 5.1 layouts.
	Speakers ChannelInterpretation = iota
	// Discrete truncates or zero-pads channels.
	Discrete
)

// Block is one render quantum of audio: exactly FramesPerBlock frames for
// each of 1..=MaxChannelCount channels, channel-planar.
//
// Three representations are used, transparently to consumers:
//
//   - implicit silence: empty buffer, any channel count
//   - channel-repeat: a single stored channel broadcast to all channels
//   - explicit: channels*FramesPerBlock samples
//
// The zero value is an implicit-silence mono block.
type Block struct {
	channels int
	// repeat means buf holds a single channel logically repeated
	// channels times. Set when mono audio is up-mixed by broadcast.
	repeat bool
	// Empty buf is shorthand for silence. Otherwise FramesPerBlock long
	// (repeat) or channels*FramesPerBlock long (explicit).
	buf []float32
}

// SilentBlock returns an implicit-silence block with the given channel count.
func SilentBlock(channels int) Block {
	return Block{channels: channels}
}

// BlockFromChannels builds an explicit block from per-channel slices, each of
// which must be exactly FramesPerBlock long.
func BlockFromChannels(chans ...[]float32) Block {
	b := Block{channels: len(chans)}
	b.buf = make([]float32, 0, len(chans)*FramesPerBlock)
	for _, c := range chans {
		if len(c) != FramesPerBlock {
			panic("audiograph: channel data must be FramesPerBlock long")
		}
		b.buf = append(b.buf, c...)
	}
	return b
}

// ChanCount returns the logical channel count.
func (b *Block) ChanCount() int {
	if b.channels == 0 {
		return 1
	}
	return b.channels
}

// IsSilence reports whether the block is in implicit-silence form.
func (b *Block) IsSilence() bool {
	return len(b.buf) == 0
}

// ExplicitSilence materializes a silent buffer so the block can be written
// through Data. A single zeroed channel is stored and marked repeated.
func (b *Block) ExplicitSilence() {
	if len(b.buf) == 0 {
		b.buf = make([]float32, FramesPerBlock)
		b.repeat = true
	}
}

// ExplicitRepeat materializes the full channels*FramesPerBlock layout,
// copying the repeated channel or zero-filling silence.
func (b *Block) ExplicitRepeat() {
	n := b.ChanCount()
	if b.repeat && n > 1 {
		next := make([]float32, 0, n*FramesPerBlock)
		for i := 0; i < n; i++ {
			next = append(next, b.buf...)
		}
		b.buf = next
		b.repeat = false
	} else if b.IsSilence() {
		b.buf = make([]float32, n*FramesPerBlock)
		b.repeat = false
	} else if b.repeat {
		b.repeat = false
	}
}

// Repeat marks a mono block as a logical n-channel block via broadcast.
func (b *Block) Repeat(n int) {
	if b.ChanCount() != 1 {
		panic("audiograph: Repeat requires a mono block")
	}
	b.channels = n
	if !b.IsSilence() {
		b.repeat = true
	}
}

// Data returns the whole stored buffer, materializing silence first. For a
// repeat block this is the single stored channel.
func (b *Block) Data() []float32 {
	b.ExplicitSilence()
	return b.buf
}

// DataChan returns channel chan's samples for writing, materializing the
// explicit representation first.
func (b *Block) DataChan(chn int) []float32 {
	b.ExplicitRepeat()
	return b.buf[chn*FramesPerBlock : (chn+1)*FramesPerBlock]
}

// Sample reads one sample without forcing materialization.
func (b *Block) Sample(chn, frame int) float32 {
	if b.IsSilence() {
		return 0
	}
	if b.repeat {
		return b.buf[frame]
	}
	return b.buf[chn*FramesPerBlock+frame]
}

// Clone returns a deep copy.
func (b *Block) Clone() Block {
	out := Block{channels: b.channels, repeat: b.repeat}
	if len(b.buf) > 0 {
		out.buf = make([]float32, len(b.buf))
		copy(out.buf, b.buf)
	}
	return out
}

// Take moves the block out, leaving implicit silence with the same channel
// count behind. Used by the traversal to hand a produced block to its last
// consumer without copying.
func (b *Block) Take() Block {
	out := *b
	*b = Block{channels: b.channels}
	return out
}

// MutateFrame applies f to every channel's sample at one frame offset.
// Callers walk frames in order so per-frame state (param timelines, phase
// accumulators) advances exactly once per frame regardless of channel
// count. The block is materialized first.
func (b *Block) MutateFrame(frame int, f func(sample float32) float32) {
	b.ExplicitSilence()
	if b.repeat {
		b.buf[frame] = f(b.buf[frame])
		return
	}
	for chn := 0; chn < b.ChanCount(); chn++ {
		i := chn*FramesPerBlock + frame
		b.buf[i] = f(b.buf[i])
	}
}

// Sum accumulates other into b sample-wise and returns the result. Both
// blocks must already share a channel count; callers mix first.
func (b *Block) Sum(other Block) Block {
	if other.IsSilence() {
		return *b
	}
	if b.IsSilence() {
		return other
	}
	if b.repeat && other.repeat {
		for i := range b.buf {
			b.buf[i] += other.buf[i]
		}
		return *b
	}
	b.ExplicitRepeat()
	other.ExplicitRepeat()
	for i := range b.buf {
		b.buf[i] += other.buf[i]
	}
	return *b
}

// Interleave converts the block to frame-major sample order, as consumed by
// audio devices.
func (b *Block) Interleave() []float32 {
	n := b.ChanCount()
	out := make([]float32, n*FramesPerBlock)
	if b.IsSilence() {
		return out
	}
	for frame := 0; frame < FramesPerBlock; frame++ {
		for chn := 0; chn < n; chn++ {
			out[frame*n+chn] = b.Sample(chn, frame)
		}
	}
	return out
}

// invSqrt2 is the 5.1 center/surround down-mix coefficient.
var invSqrt2 = float32(1 / math.Sqrt2)

// Mix up- or down-mixes the block to the target channel count.
//
// Speakers applies the standard positional equations for the mono, stereo,
// quad and 5.1 layouts; any combination those equations do not cover falls
// back to Discrete. Discrete truncates or zero-pads.
func (b *Block) Mix(channels int, interpretation ChannelInterpretation) {
	cur := b.ChanCount()
	if cur == channels {
		return
	}

	// Silence stays silence at any channel count.
	if b.IsSilence() {
		b.channels = channels
		b.repeat = false
		return
	}

	if interpretation == Speakers {
		switch {
		case cur == 1 && channels == 2:
			b.Repeat(2)
			return
		case cur == 1 && channels == 4:
			b.mixTo(channels, func(in, out *Block) {
				copy(out.DataChan(0), in.DataChan(0))
				copy(out.DataChan(1), in.DataChan(0))
			})
			return
		case cur == 1 && channels == 6:
			// Mono goes to the center channel.
			b.mixTo(channels, func(in, out *Block) {
				copy(out.DataChan(2), in.DataChan(0))
			})
			return
		case cur == 2 && (channels == 4 || channels == 6):
			b.mixTo(channels, func(in, out *Block) {
				copy(out.DataChan(0), in.DataChan(0))
				copy(out.DataChan(1), in.DataChan(1))
			})
			return
		case cur == 4 && channels == 6:
			b.mixTo(channels, func(in, out *Block) {
				copy(out.DataChan(0), in.DataChan(0))
				copy(out.DataChan(1), in.DataChan(1))
				copy(out.DataChan(4), in.DataChan(2))
				copy(out.DataChan(5), in.DataChan(3))
			})
			return
		case cur == 2 && channels == 1:
			b.mixTo(channels, func(in, out *Block) {
				l, r, m := in.DataChan(0), in.DataChan(1), out.DataChan(0)
				for i := range m {
					m[i] = 0.5 * (l[i] + r[i])
				}
			})
			return
		case cur == 4 && channels == 1:
			b.mixTo(channels, func(in, out *Block) {
				l, r := in.DataChan(0), in.DataChan(1)
				sl, sr := in.DataChan(2), in.DataChan(3)
				m := out.DataChan(0)
				for i := range m {
					m[i] = 0.25 * (l[i] + r[i] + sl[i] + sr[i])
				}
			})
			return
		case cur == 4 && channels == 2:
			b.mixTo(channels, func(in, out *Block) {
				l, r := in.DataChan(0), in.DataChan(1)
				sl, sr := in.DataChan(2), in.DataChan(3)
				ol, or := out.DataChan(0), out.DataChan(1)
				for i := range ol {
					ol[i] = 0.5 * (l[i] + sl[i])
					or[i] = 0.5 * (r[i] + sr[i])
				}
			})
			return
		case cur == 6 && channels == 1:
			b.mixTo(channels, func(in, out *Block) {
				l, r, c := in.DataChan(0), in.DataChan(1), in.DataChan(2)
				sl, sr := in.DataChan(4), in.DataChan(5)
				m := out.DataChan(0)
				for i := range m {
					m[i] = invSqrt2*(l[i]+r[i]) + c[i] + 0.5*(sl[i]+sr[i])
				}
			})
			return
		case cur == 6 && channels == 2:
			b.mixTo(channels, func(in, out *Block) {
				l, r, c := in.DataChan(0), in.DataChan(1), in.DataChan(2)
				sl, sr := in.DataChan(4), in.DataChan(5)
				ol, or := out.DataChan(0), out.DataChan(1)
				for i := range ol {
					ol[i] = l[i] + invSqrt2*(c[i]+sl[i])
					or[i] = r[i] + invSqrt2*(c[i]+sr[i])
				}
			})
			return
		case cur == 6 && channels == 4:
			b.mixTo(channels, func(in, out *Block) {
				l, r, c := in.DataChan(0), in.DataChan(1), in.DataChan(2)
				sl, sr := in.DataChan(4), in.DataChan(5)
				ol, or := out.DataChan(0), out.DataChan(1)
				for i := range ol {
					ol[i] = l[i] + invSqrt2*c[i]
					or[i] = r[i] + invSqrt2*c[i]
				}
				copy(out.DataChan(2), sl)
				copy(out.DataChan(3), sr)
			})
			return
		}
		// No positional mapping for this pair.
	}

	// Discrete: truncate or zero-pad.
	if cur == 1 && channels > 1 && b.repeat {
		// A repeat block has a single stored channel; splitting the
		// broadcast apart means only channel 0 keeps the audio.
		b.ExplicitRepeat()
	}
	b.mixTo(channels, func(in, out *Block) {
		n := cur
		if channels < n {
			n = channels
		}
		for chn := 0; chn < n; chn++ {
			copy(out.DataChan(chn), in.DataChan(chn))
		}
	})
}

// mixTo replaces b with a silent channels-channel block filled in by fill.
func (b *Block) mixTo(channels int, fill func(in, out *Block)) {
	out := SilentBlock(channels)
	fill(b, &out)
	*b = out
}

// Chunk is the ordered set of blocks a node consumes or produces in one
// process call, one block per port. Source nodes consume an empty chunk.
type Chunk struct {
	Blocks []Block
}

// Len returns the number of blocks in the chunk.
func (c *Chunk) Len() int {
	return len(c.Blocks)
}

// ChunkFromBlock wraps a single block.
func ChunkFromBlock(b Block) Chunk {
	return Chunk{Blocks: []Block{b}}
}

// ExplicitSilenceChunk returns a chunk holding one silent mono block.
func ExplicitSilenceChunk() Chunk {
	b := Block{}
	b.ExplicitSilence()
	return ChunkFromBlock(b)
}
