package audiograph

import (
	"math"
	"testing"
)

func processSource(t *testing.T, engine AudioNodeEngine, blocks int) []Block {
	t.Helper()
	out := make([]Block, 0, blocks)
	for i := 0; i < blocks; i++ {
		frame := Tick(i * FramesPerBlock)
		info := &BlockInfo{SampleRate: testRate, Frame: frame, Time: frame.Seconds(testRate)}
		chunk := engine.Process(Chunk{}, info)
		if chunk.Len() != engine.OutputCount() {
			t.Fatalf("output count: got %d, want %d", chunk.Len(), engine.OutputCount())
		}
		out = append(out, chunk.Blocks[0])
	}
	return out
}

func TestOscillatorSilentBeforeStart(t *testing.T) {
	osc := newOscillatorNode(OscillatorOptions{}, ChannelInfo{})
	blocks := processSource(t, osc, 2)
	for _, b := range blocks {
		if !b.IsSilence() {
			t.Fatal("unstarted oscillator must be silent")
		}
	}
}

func TestOscillatorSineMatchesFormula(t *testing.T) {
	osc := newOscillatorNode(OscillatorOptions{Freq: 440}, ChannelInfo{})
	osc.start(0)

	phase := 0.0
	step := 2 * math.Pi * 440 / float64(testRate)
	blocks := processSource(t, osc, 4)
	for blockIdx, b := range blocks {
		for i := 0; i < FramesPerBlock; i++ {
			want := float32(math.Sin(phase))
			if got := b.Sample(0, i); math.Abs(float64(got-want)) > 1e-6 {
				t.Fatalf("block %d frame %d: got %f, want %f", blockIdx, i, got, want)
			}
			phase += step
			if phase >= 2*math.Pi {
				phase -= 2 * math.Pi
			}
		}
	}
}

func TestOscillatorPhaseAdvance(t *testing.T) {
	const freq = 440
	const blocks = 100
	osc := newOscillatorNode(OscillatorOptions{Freq: freq}, ChannelInfo{})
	osc.start(0)
	processSource(t, osc, blocks)

	frames := float64(blocks * FramesPerBlock)
	want := math.Mod(2*math.Pi*freq*frames/testRate, 2*math.Pi)
	if diff := math.Abs(osc.phase - want); diff > 1e-6 && math.Abs(diff-2*math.Pi) > 1e-6 {
		t.Errorf("phase after %v frames: got %f, want %f", frames, osc.phase, want)
	}
}

func TestOscillatorStartMidBlock(t *testing.T) {
	osc := newOscillatorNode(OscillatorOptions{Freq: 440}, ChannelInfo{})
	osc.start(64)
	blocks := processSource(t, osc, 1)
	b := blocks[0]
	for i := 0; i < 64; i++ {
		if s := b.Sample(0, i); s != 0 {
			t.Fatalf("frame %d before start: got %f, want 0", i, s)
		}
	}
	// Frame 64 is the first live frame: sin(0) == 0, frame 65 is not.
	if s := b.Sample(0, 65); s == 0 {
		t.Error("frame 65 should carry signal")
	}
}

func TestOscillatorStopFiresOnEndedOnce(t *testing.T) {
	osc := newOscillatorNode(OscillatorOptions{}, ChannelInfo{})
	fired := 0
	osc.onEnded = func() { fired++ }
	osc.start(0)
	osc.stop(FramesPerBlock)
	processSource(t, osc, 4)
	if fired != 1 {
		t.Errorf("onended fired %d times, want 1", fired)
	}
}

func TestScheduledSourceStateMachine(t *testing.T) {
	var s scheduledSource
	if s.stop(10) {
		t.Error("stop before start must be rejected")
	}
	if !s.start(10) {
		t.Error("first start must be accepted")
	}
	if s.start(20) {
		t.Error("second start must be rejected")
	}
	if !s.stop(30) {
		t.Error("stop after start must be accepted")
	}
	if !s.stop(40) {
		t.Error("later stop must overwrite")
	}
	if s.stopAt != 40 {
		t.Errorf("stopAt: got %d, want 40", s.stopAt)
	}
	if s.start(50) {
		t.Error("start after stop must be rejected")
	}
}

func TestOscillatorWaveforms(t *testing.T) {
	tests := []struct {
		oscType OscillatorType
		// at phase just past 0 and just past pi
		wantEarly, wantLate float32
	}{
		{Square, 1, -1},
	}
	for _, tt := range tests {
		osc := newOscillatorNode(OscillatorOptions{Type: tt.oscType, Freq: 375}, ChannelInfo{})
		osc.start(0)
		// 375 Hz at 48 kHz: one cycle is exactly 128 frames.
		b := processSource(t, osc, 1)[0]
		if s := b.Sample(0, 1); s != tt.wantEarly {
			t.Errorf("%v early: got %f, want %f", tt.oscType, s, tt.wantEarly)
		}
		if s := b.Sample(0, 65); s != tt.wantLate {
			t.Errorf("%v late: got %f, want %f", tt.oscType, s, tt.wantLate)
		}
	}
}

func TestConstantSourceScenario(t *testing.T) {
	src := newConstantSourceNode(ConstantSourceOptions{Offset: 0.5}, ChannelInfo{})
	src.start(0)
	blocks := processSource(t, src, 3)
	if s := blocks[0].Sample(0, 0); s != 0.5 {
		t.Errorf("block 0 sample 0: got %f, want 0.5", s)
	}
	for blockIdx, b := range blocks {
		for i := 0; i < FramesPerBlock; i++ {
			if s := b.Sample(0, i); s != 0.5 {
				t.Fatalf("block %d frame %d: got %f, want 0.5", blockIdx, i, s)
			}
		}
	}
}

func TestConstantSourceStopTruncatesBlock(t *testing.T) {
	src := newConstantSourceNode(ConstantSourceOptions{Offset: 1}, ChannelInfo{})
	src.start(0)
	src.stop(32)
	b := processSource(t, src, 1)[0]
	if s := b.Sample(0, 31); s != 1 {
		t.Errorf("frame 31: got %f, want 1", s)
	}
	if s := b.Sample(0, 32); s != 0 {
		t.Errorf("frame 32: got %f, want 0", s)
	}
}
