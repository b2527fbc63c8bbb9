package audiograph

import (
	"math"
	"testing"
)

func dyadicSamples(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i%256)/256 - 0.5
	}
	return out
}

func TestAudioBufferInvariants(t *testing.T) {
	if _, err := NewAudioBuffer(0, 128, testRate); err == nil {
		t.Error("zero channels must be rejected")
	}
	if _, err := AudioBufferFromChannels(nil, testRate); err == nil {
		t.Error("empty channel list must be rejected")
	}
	if _, err := AudioBufferFromChannels([][]float32{make([]float32, 10), make([]float32, 11)}, testRate); err == nil {
		t.Error("unequal channel lengths must be rejected")
	}
	if _, err := AudioBufferFromChannels([][]float32{make([]float32, 10)}, testRate); err != nil {
		t.Errorf("valid buffer rejected: %v", err)
	}
}

func TestBufferSourceRoundTripBitExact(t *testing.T) {
	samples := dyadicSamples(4 * FramesPerBlock)
	buffer, err := AudioBufferFromChannels([][]float32{samples}, testRate)
	if err != nil {
		t.Fatal(err)
	}
	src := newBufferSourceNode(BufferSourceOptions{Buffer: buffer}, ChannelInfo{})
	src.start(0)

	blocks := processSource(t, src, 4)
	for blockIdx, b := range blocks {
		for i := 0; i < FramesPerBlock; i++ {
			want := samples[blockIdx*FramesPerBlock+i]
			if got := b.Sample(0, i); got != want {
				t.Fatalf("block %d frame %d: got %f, want %f", blockIdx, i, got, want)
			}
		}
	}

	// Past the end only zeros come out.
	tail := processSource(t, src, 1)[0]
	for i := 0; i < FramesPerBlock; i++ {
		if s := tail.Sample(0, i); s != 0 {
			t.Fatalf("frame %d past the end: got %f, want 0", i, s)
		}
	}
}

func TestBufferSourceLoopRepeats(t *testing.T) {
	const bufLen = 2 * FramesPerBlock
	samples := dyadicSamples(bufLen)
	buffer, err := AudioBufferFromChannels([][]float32{samples}, testRate)
	if err != nil {
		t.Fatal(err)
	}
	src := newBufferSourceNode(BufferSourceOptions{
		Buffer:      buffer,
		LoopEnabled: true,
		LoopStart:   0,
		LoopEnd:     float64(bufLen) / testRate,
	}, ChannelInfo{})
	src.start(0)

	blocks := processSource(t, src, 8)
	for blockIdx, b := range blocks {
		for i := 0; i < FramesPerBlock; i++ {
			want := samples[(blockIdx*FramesPerBlock+i)%bufLen]
			if got := b.Sample(0, i); math.Abs(float64(got-want)) > 1e-6 {
				t.Fatalf("block %d frame %d: got %f, want %f", blockIdx, i, got, want)
			}
		}
	}
}

func TestBufferSourceHalfRateInterpolates(t *testing.T) {
	samples := make([]float32, 2*FramesPerBlock)
	for i := range samples {
		samples[i] = float32(i)
	}
	buffer, err := AudioBufferFromChannels([][]float32{samples}, testRate)
	if err != nil {
		t.Fatal(err)
	}
	src := newBufferSourceNode(BufferSourceOptions{Buffer: buffer, PlaybackRate: 0.5}, ChannelInfo{})
	src.start(0)

	b := processSource(t, src, 1)[0]
	// At rate 0.5 the playhead moves half a frame per tick: output frame i
	// reads buffer position i/2.
	for i := 0; i < FramesPerBlock; i++ {
		want := float32(i) / 2
		if got := b.Sample(0, i); math.Abs(float64(got-want)) > 1e-4 {
			t.Fatalf("frame %d: got %f, want %f", i, got, want)
		}
	}
}

func TestBufferSourceDetuneChangesRate(t *testing.T) {
	samples := make([]float32, 4*FramesPerBlock)
	for i := range samples {
		samples[i] = float32(i)
	}
	buffer, err := AudioBufferFromChannels([][]float32{samples}, testRate)
	if err != nil {
		t.Fatal(err)
	}
	// +1200 cents doubles the playback rate.
	src := newBufferSourceNode(BufferSourceOptions{Buffer: buffer, Detune: 1200}, ChannelInfo{})
	src.start(0)

	b := processSource(t, src, 1)[0]
	for _, i := range []int{0, 10, 63} {
		want := float32(2 * i)
		if got := b.Sample(0, i); math.Abs(float64(got-want)) > 1e-3 {
			t.Fatalf("frame %d: got %f, want %f", i, got, want)
		}
	}
}

func TestBufferSourceDegenerateLoopEndsSilently(t *testing.T) {
	samples := dyadicSamples(64)
	buffer, err := AudioBufferFromChannels([][]float32{samples}, testRate)
	if err != nil {
		t.Fatal(err)
	}
	src := newBufferSourceNode(BufferSourceOptions{
		Buffer:       buffer,
		LoopEnabled:  true,
		LoopStart:    0,
		LoopEnd:      1.0 / testRate, // one-frame loop, skipped whole at rate 2
		PlaybackRate: 2,
	}, ChannelInfo{})
	fired := 0
	src.onEnded = func() { fired++ }
	src.start(0)

	b := processSource(t, src, 1)[0]
	if !b.IsSilence() {
		t.Error("degenerate loop should output silence")
	}
	if fired != 1 {
		t.Errorf("onended fired %d times, want 1", fired)
	}
}

func TestBufferSourceStereoKeepsChannels(t *testing.T) {
	left := dyadicSamples(FramesPerBlock)
	right := make([]float32, FramesPerBlock)
	for i := range right {
		right[i] = -left[i]
	}
	buffer, err := AudioBufferFromChannels([][]float32{left, right}, testRate)
	if err != nil {
		t.Fatal(err)
	}
	src := newBufferSourceNode(BufferSourceOptions{Buffer: buffer}, ChannelInfo{})
	src.start(0)

	b := processSource(t, src, 1)[0]
	if b.ChanCount() != 2 {
		t.Fatalf("chan count: got %d, want 2", b.ChanCount())
	}
	for i := 0; i < FramesPerBlock; i++ {
		if b.Sample(0, i) != left[i] || b.Sample(1, i) != right[i] {
			t.Fatalf("frame %d: channels not preserved", i)
		}
	}
}

func TestBufferSourceWithoutBufferIsSilent(t *testing.T) {
	src := newBufferSourceNode(BufferSourceOptions{}, ChannelInfo{})
	src.start(0)
	b := processSource(t, src, 1)[0]
	if !b.IsSilence() {
		t.Error("source without buffer should be silent")
	}
}
