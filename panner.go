package audiograph

import "math"

// StereoPannerOptions configures a new stereo panner node.
type StereoPannerOptions struct {
	// Pan is the initial pan position in [-1, 1].
	Pan float32
}

// stereoPannerNode places its input in the stereo field with the equal-power
// pan law. Output is always stereo.
type stereoPannerNode struct {
	baseNode
	pan *Param
}

func newStereoPannerNode(options StereoPannerOptions, info ChannelInfo) *stereoPannerNode {
	// The panner reconciles its input to at most two channels.
	info.Count = 2
	info.Mode = ClampedMax
	return &stereoPannerNode{
		baseNode: newBaseNode(info),
		pan:      NewParam(options.Pan),
	}
}

func (n *stereoPannerNode) NodeType() AudioNodeType { return NodeStereoPanner }

func (n *stereoPannerNode) GetParam(tag ParamType) *Param {
	if tag == ParamPan {
		return n.pan
	}
	panic("audiograph: no param " + tag.String() + " on StereoPannerNode")
}

func (n *stereoPannerNode) Process(inputs Chunk, info *BlockInfo) Chunk {
	in := &inputs.Blocks[0]
	if in.IsSilence() {
		in.Mix(2, Speakers)
		return inputs
	}
	mono := in.ChanCount() == 1
	if mono {
		in.Mix(2, Speakers)
	}
	in.ExplicitRepeat()

	l := in.DataChan(0)
	r := in.DataChan(1)
	const halfPi = math.Pi / 2

	for frame := 0; frame < FramesPerBlock; frame++ {
		n.pan.Update(info, Tick(frame))
		pan := float64(n.pan.ValueAt(frame))
		if pan < -1 {
			pan = -1
		} else if pan > 1 {
			pan = 1
		}

		inL, inR := float64(l[frame]), float64(r[frame])
		var outL, outR float64
		if mono {
			x := (pan + 1) * halfPi / 2
			outL = inL * math.Cos(x)
			outR = inR * math.Sin(x)
		} else if pan <= 0 {
			x := (pan + 1) * halfPi
			outL = inL + inR*math.Cos(x)
			outR = inR * math.Sin(x)
		} else {
			x := pan * halfPi
			outL = inL * math.Cos(x)
			outR = inR + inL*math.Sin(x)
		}
		l[frame] = float32(outL)
		r[frame] = float32(outR)
	}
	return inputs
}
