package audiograph

import (
	"math"
	"testing"
)

const testRate = 48000

// updateAt runs Update for an absolute tick, splitting it into the block
// frame and offset the render thread would use.
func updateAt(p *Param, tick Tick) bool {
	frame := tick / FramesPerBlock * FramesPerBlock
	info := &BlockInfo{SampleRate: testRate, Frame: frame}
	return p.Update(info, tick-frame)
}

func TestSetValueAppliesImmediately(t *testing.T) {
	p := NewParam(1)
	p.InsertEvent(SetValue(0.25).toTicks(testRate))
	if v := p.Value(); v != 0.25 {
		t.Errorf("value: got %f, want 0.25", v)
	}
	if len(p.events) != 0 {
		t.Errorf("SetValue should not be queued, timeline has %d events", len(p.events))
	}
}

func TestSetValueAtTimeSnaps(t *testing.T) {
	p := NewParam(0)
	p.InsertEvent(SetValueAtTime(0.5, 0.5).toTicks(testRate))
	updateAt(p, 0)
	if v := p.Value(); v != 0 {
		t.Errorf("before event: got %f, want 0", v)
	}
	updateAt(p, 24000)
	if v := p.Value(); v != 0.5 {
		t.Errorf("at event: got %f, want 0.5", v)
	}
}

func TestLinearRampHalfway(t *testing.T) {
	p := NewParam(0)
	p.InsertEvent(RampToValueAtTime(LinearRamp, 1.0, 1.0).toTicks(testRate))

	updateAt(p, 24000)
	if v := p.Value(); math.Abs(float64(v)-0.5) > 1e-6 {
		t.Errorf("halfway: got %f, want 0.5", v)
	}
	updateAt(p, 48000)
	if v := p.Value(); math.Abs(float64(v)-1.0) > 1e-6 {
		t.Errorf("at end: got %f, want 1.0", v)
	}
}

func TestExponentialRamp(t *testing.T) {
	p := NewParam(1)
	p.InsertEvent(RampToValueAtTime(ExponentialRamp, 0.0625, 1.0).toTicks(testRate))
	updateAt(p, 24000)
	// 1 * (1/16)^0.5 = 1/4
	if v := p.Value(); math.Abs(float64(v)-0.25) > 1e-6 {
		t.Errorf("halfway: got %f, want 0.25", v)
	}
}

func TestExponentialRampSignMismatchSnaps(t *testing.T) {
	p := NewParam(-1)
	p.InsertEvent(RampToValueAtTime(ExponentialRamp, 1.0, 1.0).toTicks(testRate))
	updateAt(p, 24000)
	if v := p.Value(); v != 1.0 {
		t.Errorf("opposite signs: got %f, want snap to 1.0", v)
	}
}

func TestSetTargetDecay(t *testing.T) {
	p := NewParam(1)
	p.InsertEvent(SetTargetAtTime(0, 0, 1.0).toTicks(testRate))
	updateAt(p, 48000)
	// After one time constant the value sits at 1/e.
	want := 1 / math.E
	if v := p.Value(); math.Abs(float64(v)-want) > 1e-5 {
		t.Errorf("after tau: got %f, want %f", v, want)
	}
}

func TestSetTargetYieldsToNextEvent(t *testing.T) {
	p := NewParam(1)
	p.InsertEvent(SetTargetAtTime(0, 0, 0.1).toTicks(testRate))
	p.InsertEvent(SetValueAtTime(0.75, 0.5).toTicks(testRate))
	updateAt(p, 24000)
	if v := p.Value(); v != 0.75 {
		t.Errorf("after successor start: got %f, want 0.75", v)
	}
}

func TestCancelScheduledValuesRemovesTail(t *testing.T) {
	p := NewParam(0)
	p.InsertEvent(SetValueAtTime(0.25, 0.25).toTicks(testRate))
	p.InsertEvent(SetValueAtTime(0.5, 0.5).toTicks(testRate))
	p.InsertEvent(SetValueAtTime(0.75, 0.75).toTicks(testRate))
	p.InsertEvent(CancelScheduledValues(0.5).toTicks(testRate))
	if len(p.events) != 1 {
		t.Fatalf("timeline: got %d events, want 1", len(p.events))
	}
	updateAt(p, 12000)
	if v := p.Value(); v != 0.25 {
		t.Errorf("surviving event: got %f, want 0.25", v)
	}
	updateAt(p, 36000)
	if v := p.Value(); v != 0.25 {
		t.Errorf("cancelled events must not run: got %f, want 0.25", v)
	}
}

func TestCancelRevertsRunningEvent(t *testing.T) {
	p := NewParam(0.5)
	p.InsertEvent(RampToValueAtTime(LinearRamp, 1.0, 1.0).toTicks(testRate))
	updateAt(p, 24000)
	if v := p.Value(); math.Abs(float64(v)-0.75) > 1e-6 {
		t.Fatalf("mid-ramp: got %f, want 0.75", v)
	}
	p.InsertEvent(CancelScheduledValues(0.6).toTicks(testRate))
	if v := p.Value(); v != 0.5 {
		t.Errorf("after cancel of running ramp: got %f, want revert to 0.5", v)
	}
}

func TestCancelAndHoldFreezes(t *testing.T) {
	p := NewParam(0)
	p.InsertEvent(RampToValueAtTime(LinearRamp, 1.0, 1.0).toTicks(testRate))
	updateAt(p, 24000)
	p.InsertEvent(CancelAndHoldAtTime(0.6).toTicks(testRate))
	held := p.Value()
	updateAt(p, 40000)
	if v := p.Value(); v != held {
		t.Errorf("held value drifted: got %f, want %f", v, held)
	}
	updateAt(p, 47999)
	if v := p.Value(); v != held {
		t.Errorf("hold must persist: got %f, want %f", v, held)
	}
}

func TestKRateOnlyUpdatesAtBlockStart(t *testing.T) {
	p := NewKRateParam(0)
	p.InsertEvent(RampToValueAtTime(LinearRamp, 1.0, 1.0).toTicks(testRate))

	info := &BlockInfo{SampleRate: testRate, Frame: 24064}
	if p.Update(info, 64) {
		t.Error("k-rate param must not update mid-block")
	}
	if !p.Update(info, 0) {
		t.Error("k-rate param should update at the block start")
	}
}

func TestEqualTimesKeepInsertionOrder(t *testing.T) {
	p := NewParam(0)
	p.InsertEvent(SetValueAtTime(0.25, 0.5).toTicks(testRate))
	p.InsertEvent(SetValueAtTime(0.75, 0.5).toTicks(testRate))
	updateAt(p, 24000)
	// Both are due at the same tick; the cursor sits on the first inserted
	// event until that tick is over, so its value is the one applied there.
	if v := p.Value(); v != 0.25 {
		t.Errorf("first inserted event should run first: got %f, want 0.25", v)
	}
	updateAt(p, 24001)
	updateAt(p, 24002)
	if p.current == 0 {
		t.Error("cursor should have advanced past the finished event")
	}
}

func TestSignalDrivenValueAt(t *testing.T) {
	p := NewParam(0.5)
	signal := make([]float32, FramesPerBlock)
	for i := range signal {
		signal[i] = float32(i) / FramesPerBlock
	}
	p.setBlock(signal)
	if v := p.ValueAt(0); v != 0.5 {
		t.Errorf("frame 0: got %f, want 0.5", v)
	}
	if v, want := p.ValueAt(64), float32(0.5)+64.0/FramesPerBlock; v != want {
		t.Errorf("frame 64: got %f, want %f", v, want)
	}
	p.setBlock(nil)
	if v := p.ValueAt(64); v != 0.5 {
		t.Errorf("after clear: got %f, want 0.5", v)
	}
}

func TestParamDeterminism(t *testing.T) {
	build := func() *Param {
		p := NewParam(0)
		p.InsertEvent(SetValueAtTime(0.2, 0.1).toTicks(testRate))
		p.InsertEvent(RampToValueAtTime(LinearRamp, 1.0, 0.5).toTicks(testRate))
		p.InsertEvent(SetTargetAtTime(0, 0.5, 0.2).toTicks(testRate))
		return p
	}
	a, b := build(), build()
	for tick := Tick(0); tick < 48000; tick += 997 {
		updateAt(a, tick)
		updateAt(b, tick)
		if a.Value() != b.Value() {
			t.Fatalf("tick %d: diverged (%f vs %f)", tick, a.Value(), b.Value())
		}
	}
}
