package audiograph

// ConstantSourceOptions configures a new constant source node.
type ConstantSourceOptions struct {
	// Offset is the initial value of the offset param.
	Offset float32
}

// constantSourceNode is a scheduled source emitting the offset param. With a
// signal connected to offset it doubles as a control-signal summing point.
type constantSourceNode struct {
	baseNode
	scheduledSource
	offset *Param
}

func newConstantSourceNode(options ConstantSourceOptions, info ChannelInfo) *constantSourceNode {
	return &constantSourceNode{
		baseNode: newBaseNode(info),
		offset:   NewParam(options.Offset),
	}
}

func (n *constantSourceNode) NodeType() AudioNodeType { return NodeConstantSource }

func (n *constantSourceNode) InputCount() int { return 0 }

func (n *constantSourceNode) GetParam(tag ParamType) *Param {
	if tag == ParamOffset {
		return n.offset
	}
	panic("audiograph: no param " + tag.String() + " on ConstantSourceNode")
}

func (n *constantSourceNode) Message(msg AudioNodeMessage, sampleRate float32) {
	n.handleSourceMessage(msg, sampleRate)
}

func (n *constantSourceNode) Process(inputs Chunk, info *BlockInfo) Chunk {
	out := Block{}
	play := n.shouldPlayAt(info.Frame)
	if !play.Play {
		return ChunkFromBlock(out)
	}
	out.ExplicitSilence()
	for frame := int(play.Start); frame < int(play.End); frame++ {
		n.offset.Update(info, Tick(frame))
		v := n.offset.ValueAt(frame)
		out.MutateFrame(frame, func(float32) float32 { return v })
	}
	return ChunkFromBlock(out)
}
