package audiograph

import "fmt"

// ChannelCountMode is the channel count reconciliation policy at an input.
type ChannelCountMode int

const (
	// Max uses the maximum channel count across the input's sources.
	Max ChannelCountMode = iota
	// ClampedMax behaves like Max but never exceeds the configured count.
	ClampedMax
	// Explicit always mixes to the configured count.
	Explicit
)

// AudioNodeType identifies the engine behind a node.
type AudioNodeType int

const (
	NodeDestination AudioNodeType = iota
	NodeOscillator
	NodeConstantSource
	NodeBufferSource
	NodeGain
	NodeStereoPanner
	NodeChannelMerger
	NodeChannelSplitter
	NodeWaveShaper
	NodeBiquadFilter
	NodeMediaStreamSource
	NodeMediaStreamDestination
	NodeMediaElementSource
)

func (t AudioNodeType) String() string {
	switch t {
	case NodeDestination:
		return "DestinationNode"
	case NodeOscillator:
		return "OscillatorNode"
	case NodeConstantSource:
		return "ConstantSourceNode"
	case NodeBufferSource:
		return "AudioBufferSourceNode"
	case NodeGain:
		return "GainNode"
	case NodeStereoPanner:
		return "StereoPannerNode"
	case NodeChannelMerger:
		return "ChannelMergerNode"
	case NodeChannelSplitter:
		return "ChannelSplitterNode"
	case NodeWaveShaper:
		return "WaveShaperNode"
	case NodeBiquadFilter:
		return "BiquadFilterNode"
	case NodeMediaStreamSource:
		return "MediaStreamSourceNode"
	case NodeMediaStreamDestination:
		return "MediaStreamDestinationNode"
	case NodeMediaElementSource:
		return "MediaElementSourceNode"
	default:
		return fmt.Sprintf("AudioNodeType(%d)", int(t))
	}
}

// BlockInfo describes the block being rendered.
type BlockInfo struct {
	SampleRate float32
	// Frame is the absolute tick of the block's first frame.
	Frame Tick
	// Time is Frame in seconds, derived for engines that want it.
	Time float64
}

// AbsoluteTick converts a frame offset within the block to an absolute tick.
func (info *BlockInfo) AbsoluteTick(tick Tick) Tick {
	return info.Frame + tick
}

// ChannelInfo carries a node's channel configuration.
type ChannelInfo struct {
	Count          int
	Mode           ChannelCountMode
	Interpretation ChannelInterpretation
}

// DefaultChannelInfo is the configuration nodes start with: stereo, Max,
// Speakers.
func DefaultChannelInfo() ChannelInfo {
	return ChannelInfo{Count: 2, Mode: Max, Interpretation: Speakers}
}

// AudioNodeEngine is the render-thread half of an audio node. Engines are
// owned exclusively by the render goroutine; all mutation arrives through
// Message.
type AudioNodeEngine interface {
	NodeType() AudioNodeType

	// Process consumes exactly InputCount blocks, already mixed to the
	// node's channel configuration, and produces exactly OutputCount
	// blocks.
	Process(inputs Chunk, info *BlockInfo) Chunk

	InputCount() int
	OutputCount() int

	ChannelInfo() *ChannelInfo

	// GetParam returns the parameter behind the tag. Engines panic on
	// tags they do not expose; connecting to a bogus parameter port is a
	// programming error.
	GetParam(ParamType) *Param

	// Message handles node-specific control messages. Shared messages
	// (channel configuration, parameter automation) are dispatched by
	// dispatchMessage before this is called.
	Message(msg AudioNodeMessage, sampleRate float32)

	// DestinationData surrenders the final mixed chunk. Only the
	// destination node returns ok.
	DestinationData() (Chunk, bool)
}

// AudioNodeMessage is a typed control-plane message directed at one node.
type AudioNodeMessage interface {
	isNodeMessage()
}

// SetChannelCount reconfigures the node's channel count.
type SetChannelCount struct{ Count int }

// SetChannelMode reconfigures the node's channel count mode.
type SetChannelMode struct{ Mode ChannelCountMode }

// SetChannelInterpretation reconfigures the node's mix interpretation.
type SetChannelInterpretation struct{ Interpretation ChannelInterpretation }

// SetParam schedules an automation event on one of the node's params.
type SetParam struct {
	Param ParamType
	Event ParamEvent
}

// SetParamRate switches one of the node's params between a-rate and k-rate.
type SetParamRate struct {
	Param ParamType
	Rate  ParamRate
}

// GetParamValue asks for a param's current value; the reply arrives on Reply.
type GetParamValue struct {
	Param ParamType
	Reply chan<- float32
}

// Start schedules a source node to begin playing at the given time in
// seconds. Times in the past start at the next block boundary.
type Start struct{ When float64 }

// Stop schedules a source node to stop playing at the given time in seconds.
type Stop struct{ When float64 }

// RegisterOnEnded installs the one-shot callback fired when a scheduled
// source finishes.
type RegisterOnEnded struct{ Callback func() }

func (SetChannelCount) isNodeMessage() {}
func (SetChannelMode) isNodeMessage() {}
func (SetChannelInterpretation) isNodeMessage() {}
func (SetParam) isNodeMessage() {}
func (SetParamRate) isNodeMessage() {}
func (GetParamValue) isNodeMessage() {}
func (Start) isNodeMessage() {}
func (Stop) isNodeMessage() {}
func (RegisterOnEnded) isNodeMessage() {}

// dispatchMessage routes the shared messages every node understands and
// forwards the rest to the engine.
func dispatchMessage(e AudioNodeEngine, msg AudioNodeMessage, sampleRate float32) {
	switch m := msg.(type) {
	case SetChannelCount:
		if m.Count < 1 || m.Count > MaxChannelCount {
			return
		}
		e.ChannelInfo().Count = m.Count
	case SetChannelMode:
		e.ChannelInfo().Mode = m.Mode
	case SetChannelInterpretation:
		e.ChannelInfo().Interpretation = m.Interpretation
	case SetParam:
		e.GetParam(m.Param).InsertEvent(m.Event.toTicks(sampleRate))
	case SetParamRate:
		e.GetParam(m.Param).SetRate(m.Rate)
	case GetParamValue:
		m.Reply <- e.GetParam(m.Param).Value()
	default:
		e.Message(msg, sampleRate)
	}
}

// baseNode carries the channel configuration common to every engine.
type baseNode struct {
	channelInfo ChannelInfo
}

func newBaseNode(info ChannelInfo) baseNode {
	if info.Count == 0 {
		info = DefaultChannelInfo()
	}
	return baseNode{channelInfo: info}
}

func (n *baseNode) ChannelInfo() *ChannelInfo { return &n.channelInfo }

func (n *baseNode) InputCount() int  { return 1 }
func (n *baseNode) OutputCount() int { return 1 }

func (n *baseNode) Message(AudioNodeMessage, float32) {}

func (n *baseNode) DestinationData() (Chunk, bool) { return Chunk{}, false }

// ShouldPlay is a scheduled source's verdict for one block.
type ShouldPlay struct {
	// Play is false when the whole block is silent.
	Play bool
	// Start and End bound the live frames [Start, End) within the block.
	Start, End Tick
}

// scheduledSource is the (start_at, stop_at) gate shared by source engines:
// an implicit PendingStart -> Playing -> Ended machine where Ended is
// latched and fires the one-shot onended callback exactly once.
type scheduledSource struct {
	started bool
	startAt Tick
	stopped bool
	stopAt  Tick
	onEnded func()
}

// start schedules playback. Only a single start is allowed, and only before
// any stop; otherwise the call is rejected.
func (s *scheduledSource) start(tick Tick) bool {
	if s.started || s.stopped {
		return false
	}
	s.started = true
	s.startAt = tick
	return true
}

// stop schedules the end of playback. Only valid after start; a later stop
// overwrites an earlier one.
func (s *scheduledSource) stop(tick Tick) bool {
	if !s.started {
		return false
	}
	s.stopped = true
	s.stopAt = tick
	return true
}

// shouldPlayAt resolves the gate for the block starting at frame. Starts
// scheduled in the past begin at the block's first frame.
func (s *scheduledSource) shouldPlayAt(frame Tick) ShouldPlay {
	if !s.started {
		return ShouldPlay{}
	}
	if s.startAt >= frame+FramesPerBlock {
		return ShouldPlay{}
	}
	if s.stopped && s.stopAt <= frame {
		s.fireOnEnded()
		return ShouldPlay{}
	}
	start := Tick(0)
	if s.startAt > frame {
		start = s.startAt - frame
	}
	end := Tick(FramesPerBlock)
	if s.stopped && s.stopAt < frame+FramesPerBlock {
		end = s.stopAt - frame
	}
	if start >= end {
		return ShouldPlay{}
	}
	return ShouldPlay{Play: true, Start: start, End: end}
}

// fireOnEnded invokes the onended callback at most once.
func (s *scheduledSource) fireOnEnded() {
	if s.onEnded != nil {
		cb := s.onEnded
		s.onEnded = nil
		cb()
	}
}

// handleSourceMessage applies the scheduled-source message set. It reports
// whether the message was consumed.
func (s *scheduledSource) handleSourceMessage(msg AudioNodeMessage, sampleRate float32) bool {
	switch m := msg.(type) {
	case Start:
		s.start(TickFromTime(m.When, sampleRate))
	case Stop:
		s.stop(TickFromTime(m.When, sampleRate))
	case RegisterOnEnded:
		s.onEnded = m.Callback
	default:
		return false
	}
	return true
}
