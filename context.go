package audiograph

import (
	"sync/atomic"

	"github.com/charmbracelet/log"
)

// LatencyCategory trades audio output latency against power consumption.
type LatencyCategory int

const (
	// Balanced latency and power consumption.
	Balanced LatencyCategory = iota
	// Interactive is the lowest latency that avoids glitching.
	Interactive
	// Playback prioritizes uninterrupted playback; lowest power.
	Playback
)

// AudioContextOptions configures a realtime audio context.
type AudioContextOptions struct {
	// SampleRate in Hz. Zero means the default 48000.
	SampleRate float32
	// LatencyHint is forwarded to the sink driver.
	LatencyHint LatencyCategory
	// DestinationChannels is the destination node's channel count.
	// Zero means stereo.
	DestinationChannels int
	// Logger receives render-thread diagnostics. Nil means a default
	// stderr logger.
	Logger *log.Logger
}

func (o *AudioContextOptions) withDefaults() AudioContextOptions {
	var out AudioContextOptions
	if o != nil {
		out = *o
	}
	if out.SampleRate == 0 {
		out.SampleRate = 48000
	}
	if out.DestinationChannels == 0 {
		out.DestinationChannels = 2
	}
	if out.Logger == nil {
		out.Logger = log.WithPrefix("audiograph")
	}
	return out
}

// queueDepth bounds the control message channel. Senders block when the
// render thread falls this far behind.
const queueDepth = 256

// AudioContext is the control-thread facade of the engine. It owns the
// message channel to the render goroutine and never touches graph internals
// directly; any number of goroutines may share it.
type AudioContext struct {
	queue      chan renderMsg
	state      atomic.Int32
	sampleRate float32
	destNode   NodeID
}

// NewAudioContext starts a realtime context on the default audio device via
// PortAudio. The context starts suspended; call Resume to begin rendering.
func NewAudioContext(options *AudioContextOptions) (*AudioContext, error) {
	opts := options.withDefaults()
	sink, err := NewPortAudioSink(opts.DestinationChannels, opts.LatencyHint, opts.Logger)
	if err != nil {
		return nil, err
	}
	return NewAudioContextWithSink(sink, &opts)
}

// NewOfflineAudioContext starts a context that renders totalFrames frames
// of channelCount channels into memory as fast as the graph allows. The
// result arrives through the EOS callback.
func NewOfflineAudioContext(channelCount, totalFrames int, options *AudioContextOptions) (*AudioContext, error) {
	opts := options.withDefaults()
	opts.DestinationChannels = channelCount
	return NewAudioContextWithSink(NewOfflineAudioSink(channelCount, totalFrames), &opts)
}

// NewAudioContextWithSink starts a context on a caller-supplied sink.
func NewAudioContextWithSink(sink AudioSink, options *AudioContextOptions) (*AudioContext, error) {
	opts := options.withDefaults()
	ctx := &AudioContext{
		queue:      make(chan renderMsg, queueDepth),
		sampleRate: opts.SampleRate,
	}

	if err := sink.Init(opts.SampleRate, ctx.sinkNeedData); err != nil {
		return nil, err
	}

	graph := newAudioGraph(opts.DestinationChannels)
	ctx.destNode = graph.destID()

	rt := newRenderThread(graph, sink, opts.SampleRate, opts.Logger)
	go rt.eventLoop(ctx.queue)
	return ctx, nil
}

// sinkNeedData wakes the render loop without blocking the sink driver's
// thread. If the queue is full the loop has plenty to wake up for already.
func (ctx *AudioContext) sinkNeedData() {
	select {
	case ctx.queue <- msgSinkNeedData{}:
	default:
	}
}

// State returns the control-side view of the context state.
func (ctx *AudioContext) State() ProcessingState {
	return ProcessingState(ctx.state.Load())
}

// SampleRate returns the context sample rate in Hz.
func (ctx *AudioContext) SampleRate() float32 {
	return ctx.sampleRate
}

// DestNode returns the destination node all audio is mixed into.
func (ctx *AudioContext) DestNode() NodeID {
	return ctx.destNode
}

// CurrentTime returns the render clock in seconds. It advances in exact
// block increments; a stalled value diagnoses repeated sink drops.
func (ctx *AudioContext) CurrentTime() float64 {
	reply := make(chan float64, 1)
	ctx.queue <- msgGetCurrentTime{reply: reply}
	return <-reply
}

// CreateNode creates a node on the render thread and returns its id.
func (ctx *AudioContext) CreateNode(init AudioNodeInit) (NodeID, error) {
	return ctx.CreateNodeWithChannels(init, ChannelInfo{})
}

// CreateNodeWithChannels creates a node with an explicit channel
// configuration. The zero ChannelInfo means the default (stereo, Max,
// Speakers).
func (ctx *AudioContext) CreateNodeWithChannels(init AudioNodeInit, info ChannelInfo) (NodeID, error) {
	reply := make(chan createNodeReply, 1)
	ctx.queue <- msgCreateNode{init: init, info: info, reply: reply}
	r := <-reply
	return r.id, r.err
}

// MessageNode sends a control message to a node. Fire and forget.
func (ctx *AudioContext) MessageNode(id NodeID, msg AudioNodeMessage) {
	ctx.queue <- msgMessageNode{id: id, msg: msg}
}

// ConnectPorts connects an output port to an input or parameter port.
func (ctx *AudioContext) ConnectPorts(out OutputPort, in InputPort) {
	ctx.queue <- msgConnectPorts{out: out, in: in}
}

// DisconnectAllFrom removes every outgoing edge of a node. The node itself
// persists until the context is torn down.
func (ctx *AudioContext) DisconnectAllFrom(id NodeID) {
	ctx.queue <- msgDisconnectAllFrom{id: id}
}

// DisconnectOutput removes every connection leaving an output port.
func (ctx *AudioContext) DisconnectOutput(out OutputPort) {
	ctx.queue <- msgDisconnectOutput{out: out}
}

// DisconnectBetween removes every connection between two nodes.
func (ctx *AudioContext) DisconnectBetween(from, to NodeID) {
	ctx.queue <- msgDisconnectBetween{from: from, to: to}
}

// DisconnectTo removes every connection from a node into one input port.
func (ctx *AudioContext) DisconnectTo(from NodeID, to InputPort) {
	ctx.queue <- msgDisconnectTo{from: from, to: to}
}

// DisconnectOutputBetween removes every connection from an output port into
// one node.
func (ctx *AudioContext) DisconnectOutputBetween(out OutputPort, to NodeID) {
	ctx.queue <- msgDisconnectOutputBetween{out: out, to: to}
}

// DisconnectOutputBetweenTo removes a single port-to-port connection.
func (ctx *AudioContext) DisconnectOutputBetweenTo(out OutputPort, to InputPort) {
	ctx.queue <- msgDisconnectOutputBetweenTo{out: out, to: to}
}

// SetMute replaces the graph output with silence without stopping the clock.
func (ctx *AudioContext) SetMute(muted bool) {
	ctx.queue <- msgSetMute{muted: muted}
}

// SetEOSCallback installs the offline rendering completion hook.
func (ctx *AudioContext) SetEOSCallback(callback func(buffer []float32)) {
	ctx.queue <- msgSetSinkEOSCallback{callback: callback}
}

// Resume starts (or restarts) audio processing.
func (ctx *AudioContext) Resume() error {
	return ctx.stateChange(msgKindResume, RunningState)
}

// Suspend pauses audio processing; the clock stops advancing.
func (ctx *AudioContext) Suspend() error {
	return ctx.stateChange(msgKindSuspend, SuspendedState)
}

// Close suspends processing and shuts the render thread down. The context
// is unusable afterwards.
func (ctx *AudioContext) Close() error {
	return ctx.stateChange(msgKindClose, ClosedState)
}

type stateChangeKind int

const (
	msgKindResume stateChangeKind = iota
	msgKindSuspend
	msgKindClose
)

func (ctx *AudioContext) stateChange(kind stateChangeKind, to ProcessingState) error {
	if ctx.State() == ClosedState {
		return ErrContextClosed
	}
	reply := make(chan error, 1)
	switch kind {
	case msgKindResume:
		ctx.queue <- msgResume{reply: reply}
	case msgKindSuspend:
		ctx.queue <- msgSuspend{reply: reply}
	case msgKindClose:
		ctx.queue <- msgClose{reply: reply}
	}
	err := <-reply
	if err == nil || kind == msgKindClose {
		ctx.state.Store(int32(to))
	}
	return err
}

// DecodeAudioData decodes encoded audio on its own goroutine, resampled to
// the context rate, reporting through the callbacks.
func (ctx *AudioContext) DecodeAudioData(data []byte, decoder AudioDecoder, callbacks AudioDecoderCallbacks) {
	options := AudioDecoderOptions{SampleRate: ctx.sampleRate}
	go decoder.Decode(data, callbacks, options)
}
