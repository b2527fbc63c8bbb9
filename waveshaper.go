package audiograph

import "errors"

// ErrCurveTooShort rejects wave shaper curves of fewer than two points.
var ErrCurveTooShort = errors.New("audiograph: wave shaper curve must have at least 2 points")

// WaveShaperOptions configures a new wave shaper node.
type WaveShaperOptions struct {
	// Curve maps input sample [-1, 1] across its indices. nil passes
	// audio through unchanged.
	Curve []float32
}

// SetCurve replaces the wave shaper's curve. A nil curve clears it.
type SetCurve struct{ Curve []float32 }

func (SetCurve) isNodeMessage() {}

// waveShaperNode maps each sample through a lookup curve with two-tap linear
// interpolation, ends clamped.
type waveShaperNode struct {
	baseNode
	curve []float32
}

func newWaveShaperNode(options WaveShaperOptions, info ChannelInfo) (*waveShaperNode, error) {
	if options.Curve != nil && len(options.Curve) < 2 {
		return nil, ErrCurveTooShort
	}
	return &waveShaperNode{baseNode: newBaseNode(info), curve: options.Curve}, nil
}

func (n *waveShaperNode) NodeType() AudioNodeType { return NodeWaveShaper }

func (n *waveShaperNode) GetParam(tag ParamType) *Param {
	panic("audiograph: no param " + tag.String() + " on WaveShaperNode")
}

func (n *waveShaperNode) Message(msg AudioNodeMessage, sampleRate float32) {
	if m, ok := msg.(SetCurve); ok {
		if m.Curve != nil && len(m.Curve) < 2 {
			return
		}
		n.curve = m.Curve
	}
}

func (n *waveShaperNode) Process(inputs Chunk, info *BlockInfo) Chunk {
	block := &inputs.Blocks[0]
	if block.IsSilence() || n.curve == nil {
		return inputs
	}
	curve := n.curve
	last := len(curve) - 1
	for frame := 0; frame < FramesPerBlock; frame++ {
		block.MutateFrame(frame, func(sample float32) float32 {
			idx := float32(last) * (sample + 1) / 2
			switch {
			case idx <= 0:
				return curve[0]
			case idx >= float32(last):
				return curve[last]
			default:
				lo := int(idx)
				frac := idx - float32(lo)
				return (1-frac)*curve[lo] + frac*curve[lo+1]
			}
		})
	}
	return inputs
}
