package audiograph

import (
	"errors"

	"github.com/charmbracelet/log"
)

// ProcessingState is the lifecycle state of an audio context.
type ProcessingState int

const (
	// SuspendedState: the context clock is not advancing.
	SuspendedState ProcessingState = iota
	// RunningState: blocks are being produced and pushed to the sink.
	RunningState
	// ClosedState: the render thread has exited; terminal.
	ClosedState
)

func (s ProcessingState) String() string {
	switch s {
	case SuspendedState:
		return "suspended"
	case RunningState:
		return "running"
	case ClosedState:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrContextClosed rejects state changes on a context in its terminal state.
var ErrContextClosed = errors.New("audiograph: context is closed")

// AudioNodeInit describes a node to be created by the render thread.
type AudioNodeInit interface {
	isNodeInit()
}

type OscillatorNodeInit struct{ Options OscillatorOptions }
type ConstantSourceNodeInit struct{ Options ConstantSourceOptions }
type BufferSourceNodeInit struct{ Options BufferSourceOptions }
type GainNodeInit struct{ Options GainOptions }
type StereoPannerNodeInit struct{ Options StereoPannerOptions }
type ChannelMergerNodeInit struct{ Options ChannelNodeOptions }
type ChannelSplitterNodeInit struct{ Options ChannelNodeOptions }
type WaveShaperNodeInit struct{ Options WaveShaperOptions }
type BiquadFilterNodeInit struct{ Options BiquadFilterOptions }

// MediaStreamSourceNodeInit wraps an external stream feed.
type MediaStreamSourceNodeInit struct{ Reader AudioStreamReader }

// MediaStreamDestinationNodeInit forwards graph output to a secondary sink.
type MediaStreamDestinationNodeInit struct{ Sink AudioSink }

// MediaElementSourceNodeInit creates a node fed by a media player.
// RegisterRenderer is invoked on the render thread with the node's ingest
// side before the node id is returned.
type MediaElementSourceNodeInit struct{ RegisterRenderer func(AudioRenderer) }

func (OscillatorNodeInit) isNodeInit() {}
func (ConstantSourceNodeInit) isNodeInit() {}
func (BufferSourceNodeInit) isNodeInit() {}
func (GainNodeInit) isNodeInit() {}
func (StereoPannerNodeInit) isNodeInit() {}
func (ChannelMergerNodeInit) isNodeInit() {}
func (ChannelSplitterNodeInit) isNodeInit() {}
func (WaveShaperNodeInit) isNodeInit() {}
func (BiquadFilterNodeInit) isNodeInit() {}
func (MediaStreamSourceNodeInit) isNodeInit() {}
func (MediaStreamDestinationNodeInit) isNodeInit() {}
func (MediaElementSourceNodeInit) isNodeInit() {}

// renderMsg is a control-plane message to the render goroutine. Messages
// from one sender are applied in send order, between block boundaries.
type renderMsg interface {
	isRenderMsg()
}

type createNodeReply struct {
	id  NodeID
	err error
}

type msgCreateNode struct {
	init  AudioNodeInit
	info  ChannelInfo
	reply chan<- createNodeReply
}

type msgConnectPorts struct {
	out OutputPort
	in  InputPort
}

type msgMessageNode struct {
	id  NodeID
	msg AudioNodeMessage
}

type msgResume struct{ reply chan<- error }
type msgSuspend struct{ reply chan<- error }
type msgClose struct{ reply chan<- error }
type msgGetCurrentTime struct{ reply chan<- float64 }

// msgSinkNeedData only wakes the loop so production can restart.
type msgSinkNeedData struct{}

type msgDisconnectAllFrom struct{ id NodeID }
type msgDisconnectOutput struct{ out OutputPort }
type msgDisconnectBetween struct{ from, to NodeID }
type msgDisconnectTo struct {
	from NodeID
	to   InputPort
}
type msgDisconnectOutputBetween struct {
	out OutputPort
	to  NodeID
}
type msgDisconnectOutputBetweenTo struct {
	out OutputPort
	to  InputPort
}

type msgSetSinkEOSCallback struct{ callback func([]float32) }
type msgSetMute struct{ muted bool }

func (msgCreateNode) isRenderMsg() {}
func (msgConnectPorts) isRenderMsg() {}
func (msgMessageNode) isRenderMsg() {}
func (msgResume) isRenderMsg() {}
func (msgSuspend) isRenderMsg() {}
func (msgClose) isRenderMsg() {}
func (msgGetCurrentTime) isRenderMsg() {}
func (msgSinkNeedData) isRenderMsg() {}
func (msgDisconnectAllFrom) isRenderMsg() {}
func (msgDisconnectOutput) isRenderMsg() {}
func (msgDisconnectBetween) isRenderMsg() {}
func (msgDisconnectTo) isRenderMsg() {}
func (msgDisconnectOutputBetween) isRenderMsg() {}
func (msgDisconnectOutputBetweenTo) isRenderMsg() {}
func (msgSetSinkEOSCallback) isRenderMsg() {}
func (msgSetMute) isRenderMsg() {}

// renderThread owns the graph, the node engines and the sink. It alternates
// between handling control messages and producing blocks, blocking on the
// message queue whenever the sink has enough data or the context is
// suspended.
type renderThread struct {
	graph        *audioGraph
	sink         AudioSink
	state        ProcessingState
	sampleRate   float32
	currentFrame Tick
	currentTime  float64
	muted        bool
	logger       *log.Logger
}

func newRenderThread(graph *audioGraph, sink AudioSink, sampleRate float32, logger *log.Logger) *renderThread {
	return &renderThread{
		graph:      graph,
		sink:       sink,
		state:      SuspendedState,
		sampleRate: sampleRate,
		logger:     logger,
	}
}

func (rt *renderThread) resume() error {
	switch rt.state {
	case ClosedState:
		return ErrContextClosed
	case RunningState:
		return nil
	}
	if err := rt.sink.Play(); err != nil {
		return err
	}
	rt.state = RunningState
	return nil
}

func (rt *renderThread) suspend() error {
	switch rt.state {
	case ClosedState:
		return ErrContextClosed
	case SuspendedState:
		return nil
	}
	if err := rt.sink.Stop(); err != nil {
		return err
	}
	rt.state = SuspendedState
	return nil
}

func (rt *renderThread) createNode(init AudioNodeInit, info ChannelInfo) (NodeID, error) {
	var (
		engine AudioNodeEngine
		err    error
	)
	switch i := init.(type) {
	case OscillatorNodeInit:
		engine = newOscillatorNode(i.Options, info)
	case ConstantSourceNodeInit:
		engine = newConstantSourceNode(i.Options, info)
	case BufferSourceNodeInit:
		engine = newBufferSourceNode(i.Options, info)
	case GainNodeInit:
		engine = newGainNode(i.Options, info)
	case StereoPannerNodeInit:
		engine = newStereoPannerNode(i.Options, info)
	case ChannelMergerNodeInit:
		engine = newChannelMergerNode(i.Options, info)
	case ChannelSplitterNodeInit:
		engine = newChannelSplitterNode(i.Options, info)
	case WaveShaperNodeInit:
		engine, err = newWaveShaperNode(i.Options, info)
	case BiquadFilterNodeInit:
		engine = newBiquadFilterNode(i.Options, info)
	case MediaStreamSourceNodeInit:
		engine = newMediaStreamSourceNode(i.Reader, info)
	case MediaStreamDestinationNodeInit:
		engine, err = newMediaStreamDestinationNode(i.Sink, rt.sampleRate, info)
	case MediaElementSourceNodeInit:
		node := newMediaElementSourceNode(info)
		if i.RegisterRenderer != nil {
			i.RegisterRenderer(node.Renderer())
		}
		engine = node
	default:
		err = errors.New("audiograph: unknown node init")
	}
	if err != nil {
		return NodeID{idx: -1}, err
	}
	return rt.graph.addNode(engine), nil
}

// process renders one block, or explicit silence while muted.
func (rt *renderThread) process() Chunk {
	if rt.muted {
		return ExplicitSilenceChunk()
	}
	info := BlockInfo{
		SampleRate: rt.sampleRate,
		Frame:      rt.currentFrame,
		Time:       rt.currentTime,
	}
	return rt.graph.process(&info)
}

// handle applies one control message. It reports whether the loop should
// exit.
func (rt *renderThread) handle(msg renderMsg) bool {
	switch m := msg.(type) {
	case msgCreateNode:
		id, err := rt.createNode(m.init, m.info)
		m.reply <- createNodeReply{id: id, err: err}
	case msgConnectPorts:
		rt.graph.addEdge(m.out, m.in)
	case msgMessageNode:
		if rt.graph.valid(m.id) {
			dispatchMessage(rt.graph.node(m.id), m.msg, rt.sampleRate)
		}
	case msgResume:
		m.reply <- rt.resume()
	case msgSuspend:
		m.reply <- rt.suspend()
	case msgClose:
		err := rt.suspend()
		rt.state = ClosedState
		m.reply <- err
		return true
	case msgGetCurrentTime:
		m.reply <- rt.currentTime
	case msgSinkNeedData:
		// Nothing to do; receiving it unblocked the loop.
	case msgDisconnectAllFrom:
		rt.graph.disconnectAllFrom(m.id)
	case msgDisconnectOutput:
		rt.graph.disconnectOutput(m.out)
	case msgDisconnectBetween:
		rt.graph.disconnectBetween(m.from, m.to)
	case msgDisconnectTo:
		rt.graph.disconnectTo(m.from, m.to)
	case msgDisconnectOutputBetween:
		rt.graph.disconnectOutputBetween(m.out, m.to)
	case msgDisconnectOutputBetweenTo:
		rt.graph.disconnectOutputBetweenTo(m.out, m.to)
	case msgSetSinkEOSCallback:
		rt.sink.SetEOSCallback(m.callback)
	case msgSetMute:
		rt.muted = m.muted
	}
	return false
}

// eventLoop runs until a Close message arrives. While the sink is hungry
// and the context running, control messages are drained without blocking so
// block production keeps up; otherwise the loop parks on the queue.
func (rt *renderThread) eventLoop(queue <-chan renderMsg) {
	for {
		if rt.sink.HasEnoughData() || rt.state != RunningState {
			msg, ok := <-queue
			if !ok || rt.handle(msg) {
				return
			}
			continue
		}

		select {
		case msg := <-queue:
			if rt.handle(msg) {
				return
			}
		default:
		}
		if rt.state != RunningState {
			continue
		}

		chunk := rt.process()
		if err := rt.sink.PushData(chunk); err != nil {
			// Drop the block rather than re-send it so the clock
			// cannot drift; currentTime simply stops advancing.
			rt.logger.Error("sink push failed", "err", err)
			continue
		}
		rt.currentFrame += FramesPerBlock
		rt.currentTime = rt.currentFrame.Seconds(rt.sampleRate)
	}
}
