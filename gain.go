package audiograph

// GainOptions configures a new gain node.
type GainOptions struct {
	Gain float32
}

// gainNode scales its input by the gain param: per frame when the param is
// a-rate or signal-driven, by a single held value when k-rate.
type gainNode struct {
	baseNode
	gain *Param
}

func newGainNode(options GainOptions, info ChannelInfo) *gainNode {
	return &gainNode{
		baseNode: newBaseNode(info),
		gain:     NewParam(options.Gain),
	}
}

func (n *gainNode) NodeType() AudioNodeType { return NodeGain }

func (n *gainNode) GetParam(tag ParamType) *Param {
	if tag == ParamGain {
		return n.gain
	}
	panic("audiograph: no param " + tag.String() + " on GainNode")
}

func (n *gainNode) Process(inputs Chunk, info *BlockInfo) Chunk {
	block := &inputs.Blocks[0]
	if block.IsSilence() {
		// Zero times anything is zero; skip the per-frame multiply, but
		// still update the param once so its timeline keeps pace.
		n.gain.Update(info, 0)
		return inputs
	}
	for frame := 0; frame < FramesPerBlock; frame++ {
		n.gain.Update(info, Tick(frame))
		g := n.gain.ValueAt(frame)
		block.MutateFrame(frame, func(sample float32) float32 { return sample * g })
	}
	return inputs
}
