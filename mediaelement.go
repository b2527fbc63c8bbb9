package audiograph

import "sync"

// AudioRenderer receives decoded samples from a media player and appends
// them to a media-element source node's shared buffer. channelIndex is
// 1-based, in the order channels were first seen.
type AudioRenderer interface {
	Render(samples []float32, channelIndex int)
}

// mediaElementSourceNode plays samples accumulated by an external decoder.
// The decoder's goroutine appends through the AudioRenderer; the render
// thread copies one block per process call, holding the lock only for the
// copy.
type mediaElementSourceNode struct {
	baseNode

	mu      sync.Mutex
	buffers [][]float32

	playbackOffset int
}

func newMediaElementSourceNode(info ChannelInfo) *mediaElementSourceNode {
	return &mediaElementSourceNode{baseNode: newBaseNode(info)}
}

func (n *mediaElementSourceNode) NodeType() AudioNodeType { return NodeMediaElementSource }

func (n *mediaElementSourceNode) InputCount() int { return 0 }

func (n *mediaElementSourceNode) GetParam(tag ParamType) *Param {
	panic("audiograph: no param " + tag.String() + " on MediaElementSourceNode")
}

// Renderer returns the node's ingest side, handed to the media player.
func (n *mediaElementSourceNode) Renderer() AudioRenderer {
	return (*mediaElementRenderer)(n)
}

func (n *mediaElementSourceNode) Process(inputs Chunk, info *BlockInfo) Chunk {
	n.mu.Lock()
	defer n.mu.Unlock()

	chans := len(n.buffers)
	if chans == 0 {
		return ChunkFromBlock(Block{})
	}
	available := len(n.buffers[0]) - n.playbackOffset
	if available <= 0 {
		return ChunkFromBlock(Block{})
	}
	toCopy := FramesPerBlock
	if available < toCopy {
		toCopy = available
	}

	out := Block{}
	out.Repeat(chans)
	out.ExplicitRepeat()
	for chn := 0; chn < chans; chn++ {
		copy(out.DataChan(chn)[:toCopy], n.buffers[chn][n.playbackOffset:n.playbackOffset+toCopy])
	}
	n.playbackOffset += toCopy
	return ChunkFromBlock(out)
}

// mediaElementRenderer is the decoder-facing view of the node.
type mediaElementRenderer mediaElementSourceNode

func (r *mediaElementRenderer) Render(samples []float32, channelIndex int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for channelIndex > len(r.buffers) {
		r.buffers = append(r.buffers, nil)
	}
	r.buffers[channelIndex-1] = append(r.buffers[channelIndex-1], samples...)
}
