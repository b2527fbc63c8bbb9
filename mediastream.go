package audiograph

import "github.com/google/uuid"

// MediaStreamID identifies a registered media stream.
type MediaStreamID = uuid.UUID

// NewMediaStreamID allocates a fresh stream identifier.
func NewMediaStreamID() MediaStreamID {
	return uuid.New()
}

// AudioStreamReader bridges an external audio feed to a media-stream source
// node. Pull returns one 128-frame block in the context's sample rate and
// the stream's channel count; it may block until data is available and
// returns silence on underrun.
type AudioStreamReader interface {
	Start()
	Stop()
	Pull() Block
}

// mediaStreamSourceNode is a scheduled source pulling one block per process
// call from an AudioStreamReader. The reader is started on the first live
// block and stopped when playback ends.
type mediaStreamSourceNode struct {
	baseNode
	scheduledSource
	reader  AudioStreamReader
	playing bool
}

func newMediaStreamSourceNode(reader AudioStreamReader, info ChannelInfo) *mediaStreamSourceNode {
	return &mediaStreamSourceNode{baseNode: newBaseNode(info), reader: reader}
}

func (n *mediaStreamSourceNode) NodeType() AudioNodeType { return NodeMediaStreamSource }

func (n *mediaStreamSourceNode) InputCount() int { return 0 }

func (n *mediaStreamSourceNode) GetParam(tag ParamType) *Param {
	panic("audiograph: no param " + tag.String() + " on MediaStreamSourceNode")
}

func (n *mediaStreamSourceNode) Message(msg AudioNodeMessage, sampleRate float32) {
	n.handleSourceMessage(msg, sampleRate)
}

func (n *mediaStreamSourceNode) Process(inputs Chunk, info *BlockInfo) Chunk {
	play := n.shouldPlayAt(info.Frame)
	if !play.Play {
		if n.playing {
			n.playing = false
			n.reader.Stop()
		}
		return ChunkFromBlock(Block{})
	}
	if !n.playing {
		n.playing = true
		n.reader.Start()
	}
	return ChunkFromBlock(n.reader.Pull())
}

// mediaStreamDestinationNode forwards every input chunk to a secondary
// sink, making graph output available as a stream. Input 1, output 0.
type mediaStreamDestinationNode struct {
	baseNode
	id   MediaStreamID
	sink AudioSink
}

func newMediaStreamDestinationNode(sink AudioSink, sampleRate float32, info ChannelInfo) (*mediaStreamDestinationNode, error) {
	if err := sink.Init(sampleRate, nil); err != nil {
		return nil, err
	}
	if err := sink.Play(); err != nil {
		return nil, err
	}
	return &mediaStreamDestinationNode{
		baseNode: newBaseNode(info),
		id:       NewMediaStreamID(),
		sink:     sink,
	}, nil
}

func (n *mediaStreamDestinationNode) NodeType() AudioNodeType { return NodeMediaStreamDestination }

func (n *mediaStreamDestinationNode) OutputCount() int { return 0 }

func (n *mediaStreamDestinationNode) StreamID() MediaStreamID { return n.id }

func (n *mediaStreamDestinationNode) GetParam(tag ParamType) *Param {
	panic("audiograph: no param " + tag.String() + " on MediaStreamDestinationNode")
}

func (n *mediaStreamDestinationNode) Process(inputs Chunk, info *BlockInfo) Chunk {
	// Steady-state push failures are the stream's problem, not the
	// graph's; the traversal must not abort.
	_ = n.sink.PushData(inputs)
	return Chunk{}
}
