package audiograph

import (
	"fmt"
	"math"
)

// ParamType identifies a parameter port on a node.
type ParamType int

const (
	ParamFrequency ParamType = iota
	ParamDetune
	ParamGain
	ParamQ
	ParamPan
	ParamPlaybackRate
	ParamOffset
)

func (p ParamType) String() string {
	switch p {
	case ParamFrequency:
		return "frequency"
	case ParamDetune:
		return "detune"
	case ParamGain:
		return "gain"
	case ParamQ:
		return "q"
	case ParamPan:
		return "pan"
	case ParamPlaybackRate:
		return "playbackRate"
	case ParamOffset:
		return "offset"
	default:
		return fmt.Sprintf("param(%d)", int(p))
	}
}

// ParamRate selects the automation granularity of a parameter.
type ParamRate int

const (
	// ARate parameters are evaluated every frame.
	ARate ParamRate = iota
	// KRate parameters hold a single value for the whole block.
	KRate
)

// RampKind selects the interpolation of a RampToValueAtTime event.
type RampKind int

const (
	LinearRamp RampKind = iota
	ExponentialRamp
)

// Param is a single automatable parameter: a current value, an ordered
// timeline of automation events, and an optional per-frame input block when
// the parameter is driven by another node's output.
type Param struct {
	val    float32
	rate   ParamRate
	events []paramEvent
	// current is the index of the event the evaluation cursor sits on.
	current         int
	eventStartTick  Tick
	eventStartValue float32
	// block holds the summed upstream signal for the block being rendered,
	// mono, FramesPerBlock long. nil when the param is not signal-driven.
	block []float32
}

// NewParam returns an a-rate param with the given initial value.
func NewParam(val float32) *Param {
	return &Param{val: val, eventStartValue: val}
}

// NewKRateParam returns a k-rate param with the given initial value.
func NewKRateParam(val float32) *Param {
	p := NewParam(val)
	p.rate = KRate
	return p
}

// Value returns the current evaluated value, excluding any input signal.
func (p *Param) Value() float32 {
	return p.val
}

// ValueAt returns the value at a frame offset within the current block,
// including the signal driving the param, if any. Callers run Update for the
// offset first.
func (p *Param) ValueAt(frame int) float32 {
	if p.block == nil {
		return p.val
	}
	return p.val + p.block[frame]
}

// SetRate switches the parameter between a-rate and k-rate evaluation.
func (p *Param) SetRate(rate ParamRate) {
	p.rate = rate
}

// setBlock installs (or clears) the per-frame input signal for the block
// being rendered. Render-thread only.
func (p *Param) setBlock(block []float32) {
	p.block = block
}

// Update advances the automation cursor and re-evaluates the value for the
// given frame offset within the current block. It reports whether the value
// changed. K-rate params only evaluate at frame offset 0.
func (p *Param) Update(info *BlockInfo, tick Tick) bool {
	if tick != 0 && p.rate == KRate {
		return false
	}
	if p.current >= len(p.events) {
		return false
	}

	now := info.AbsoluteTick(tick)
	ev := &p.events[p.current]

	// Walk the cursor forward over finished events. A SetTargetAtTime has
	// no done time; it yields when its successor is ready to start.
	for {
		moveNext := false
		if done, ok := ev.doneTime(); ok {
			if done < now {
				moveNext = true
			}
		} else if p.current+1 < len(p.events) {
			next := &p.events[p.current+1]
			if start, ok := next.startTime(); ok {
				if start <= now {
					moveNext = true
				}
			} else if ev.time <= now {
				// Both open-ended: a running SetTarget followed by
				// a ramp. Hand over to the ramp immediately.
				moveNext = true
			} else {
				// A SetTarget before its start time.
				return false
			}
		}
		if !moveNext {
			break
		}
		p.current++
		p.eventStartValue = p.val
		p.eventStartTick = now
		if p.current >= len(p.events) {
			return false
		}
		ev = &p.events[p.current]
	}

	return ev.run(&p.val, now, p.eventStartTick, p.eventStartValue)
}

// InsertEvent adds an automation event to the timeline, ordered by event
// time; events with equal times keep insertion order. An immediate SetValue
// applies instantly and is not queued. Cancel events truncate the tail.
func (p *Param) InsertEvent(event ParamEvent) {
	if event.kind == eventSetValue {
		p.val = event.value
		p.eventStartValue = event.value
		return
	}

	// Insertion point: after all events with time <= the new event's time.
	idx := len(p.events)
	for i, e := range p.events {
		if e.time > event.time {
			idx = i
			break
		}
	}

	switch event.kind {
	case eventCancel, eventCancelAndHold:
		// Cancellation takes the whole tail at or after the cancel tick.
		idx = len(p.events)
		for i, e := range p.events {
			if e.time >= event.time {
				idx = i
				break
			}
		}
	}

	switch event.kind {
	case eventCancel:
		p.events = p.events[:idx]
		// If the running event was cancelled, revert to the value the
		// event started from.
		if p.current >= len(p.events) {
			p.val = p.eventStartValue
		}
		return
	case eventCancelAndHold:
		p.events = p.events[:idx]
		// A synthetic hold freezes the value at whatever it is when the
		// cancel tick arrives.
		p.events = append(p.events, paramEvent{kind: eventHold, time: event.time})
		return
	}

	p.events = append(p.events, paramEvent{})
	copy(p.events[idx+1:], p.events[idx:])
	p.events[idx] = event.inner
}

// ParamEvent is a user-facing automation event with times in seconds. It is
// converted to ticks when it reaches the render thread.
type ParamEvent struct {
	kind    paramEventKind
	value   float32
	seconds float64
	// tau is the SetTargetAtTime time constant in seconds.
	tau  float64
	ramp RampKind
	// time and inner are filled by toTicks.
	time  Tick
	inner paramEvent
}

// SetValue applies the value immediately without entering the timeline.
func SetValue(value float32) ParamEvent {
	return ParamEvent{kind: eventSetValue, value: value}
}

// SetValueAtTime snaps the parameter to value at the given time.
func SetValueAtTime(value float32, seconds float64) ParamEvent {
	return ParamEvent{kind: eventSetValueAtTime, value: value, seconds: seconds}
}

// RampToValueAtTime ramps from the previous event's end to value at the
// given time, linearly or exponentially.
func RampToValueAtTime(kind RampKind, value float32, seconds float64) ParamEvent {
	return ParamEvent{kind: eventRamp, ramp: kind, value: value, seconds: seconds}
}

// SetTargetAtTime starts an exponential decay toward value at start, with
// time constant tau in seconds.
func SetTargetAtTime(value float32, start, tau float64) ParamEvent {
	return ParamEvent{kind: eventSetTarget, value: value, seconds: start, tau: tau}
}

// CancelScheduledValues removes all events at or after the given time.
func CancelScheduledValues(seconds float64) ParamEvent {
	return ParamEvent{kind: eventCancel, seconds: seconds}
}

// CancelAndHoldAtTime removes all events at or after the given time,
// including a running ramp that ends at or after it, and appends a hold at
// that time. The held value is the one the remaining events leave in place:
// a ramp cut by the cancel stops where it stood when the cancel was applied
// and does not continue to the value it would have reached at the hold time.
func CancelAndHoldAtTime(seconds float64) ParamEvent {
	return ParamEvent{kind: eventCancelAndHold, seconds: seconds}
}

// toTicks resolves the event's times against the context sample rate.
func (e ParamEvent) toTicks(sampleRate float32) ParamEvent {
	e.time = TickFromTime(e.seconds, sampleRate)
	e.inner = paramEvent{
		kind:  e.kind,
		value: e.value,
		time:  e.time,
		ramp:  e.ramp,
		tau:   e.tau * float64(sampleRate),
	}
	return e
}

type paramEventKind int

const (
	eventSetValue paramEventKind = iota
	eventSetValueAtTime
	eventRamp
	eventSetTarget
	eventCancel
	eventCancelAndHold
	// eventHold is the synthetic event CancelAndHoldAtTime leaves behind.
	eventHold
)

// paramEvent is a timeline entry with times resolved to ticks. tau is in
// ticks.
type paramEvent struct {
	kind  paramEventKind
	value float32
	time  Tick
	ramp  RampKind
	tau   float64
}

// doneTime returns the tick after which the event no longer applies.
// SetTargetAtTime has none.
func (e *paramEvent) doneTime() (Tick, bool) {
	switch e.kind {
	case eventSetValueAtTime, eventRamp, eventHold:
		return e.time, true
	default:
		return 0, false
	}
}

// startTime returns the tick the event starts applying at. Ramps have none:
// they begin the moment the previous event finishes.
func (e *paramEvent) startTime() (Tick, bool) {
	switch e.kind {
	case eventSetValueAtTime, eventSetTarget, eventHold:
		return e.time, true
	default:
		return 0, false
	}
}

// run evaluates the event at the given tick, writing through value. It
// reports whether the value changed.
func (e *paramEvent) run(value *float32, now, eventStartTick Tick, eventStartValue float32) bool {
	if start, ok := e.startTime(); ok && start > now {
		// Advanced to this event but it has not started yet.
		return false
	}

	switch e.kind {
	case eventSetValueAtTime:
		if now == e.time {
			*value = e.value
			return true
		}
		return false
	case eventRamp:
		progress := 1.0
		if e.time > eventStartTick {
			progress = float64(now-eventStartTick) / float64(e.time-eventStartTick)
		}
		switch e.ramp {
		case LinearRamp:
			*value = eventStartValue + (e.value-eventStartValue)*float32(progress)
		case ExponentialRamp:
			// Exponential interpolation needs both endpoints nonzero
			// and same-signed; otherwise snap to the target.
			ratio := float64(e.value) / float64(eventStartValue)
			if eventStartValue == 0 || ratio <= 0 {
				*value = e.value
			} else {
				*value = eventStartValue * float32(math.Pow(ratio, progress))
			}
		}
		return true
	case eventSetTarget:
		exp := -(float64(now-e.time) / e.tau)
		*value = e.value + (eventStartValue-e.value)*float32(math.Exp(exp))
		return true
	case eventHold:
		return false
	default:
		panic("audiograph: cancel events never enter the timeline")
	}
}
