package audiograph

import "math"

// BiquadFilterType selects the filter response.
type BiquadFilterType int

const (
	LowPass BiquadFilterType = iota
	HighPass
	BandPass
	Notch
	AllPass
	Peaking
	LowShelf
	HighShelf
)

// BiquadFilterOptions configures a new biquad filter node.
type BiquadFilterOptions struct {
	Type BiquadFilterType
	// Freq is the corner/center frequency in Hz. Zero means the default 350.
	Freq float32
	// Q is the quality factor. Zero means the default 1.
	Q float32
	// Gain is the boost/cut in dB for peaking and shelf filters.
	Gain float32
	// Detune shifts Freq in cents.
	Detune float32
}

// SetBiquadFilterType switches the response of a running filter.
type SetBiquadFilterType struct{ Type BiquadFilterType }

func (SetBiquadFilterType) isNodeMessage() {}

// biquadState is one channel's delay line.
type biquadState struct {
	x1, x2, y1, y2 float64
}

// biquadFilterNode is a second-order IIR section with the Audio-EQ-Cookbook
// responses. Parameters are evaluated once per block and the coefficients
// recomputed when any of them moved.
type biquadFilterNode struct {
	baseNode
	filterType BiquadFilterType
	frequency  *Param
	detune     *Param
	q          *Param
	gain       *Param

	b0, b1, b2, a1, a2 float64
	coeffsValid        bool
	state              []biquadState
}

func newBiquadFilterNode(options BiquadFilterOptions, info ChannelInfo) *biquadFilterNode {
	freq := options.Freq
	if freq == 0 {
		freq = 350
	}
	q := options.Q
	if q == 0 {
		q = 1
	}
	return &biquadFilterNode{
		baseNode:   newBaseNode(info),
		filterType: options.Type,
		frequency:  NewKRateParam(freq),
		detune:     NewKRateParam(options.Detune),
		q:          NewKRateParam(q),
		gain:       NewKRateParam(options.Gain),
	}
}

func (n *biquadFilterNode) NodeType() AudioNodeType { return NodeBiquadFilter }

func (n *biquadFilterNode) GetParam(tag ParamType) *Param {
	switch tag {
	case ParamFrequency:
		return n.frequency
	case ParamDetune:
		return n.detune
	case ParamQ:
		return n.q
	case ParamGain:
		return n.gain
	default:
		panic("audiograph: no param " + tag.String() + " on BiquadFilterNode")
	}
}

func (n *biquadFilterNode) Message(msg AudioNodeMessage, sampleRate float32) {
	if m, ok := msg.(SetBiquadFilterType); ok {
		n.filterType = m.Type
		n.coeffsValid = false
	}
}

func (n *biquadFilterNode) Process(inputs Chunk, info *BlockInfo) Chunk {
	changed := n.frequency.Update(info, 0)
	changed = n.detune.Update(info, 0) || changed
	changed = n.q.Update(info, 0) || changed
	changed = n.gain.Update(info, 0) || changed
	if changed || !n.coeffsValid {
		n.computeCoefficients(float64(info.SampleRate))
	}

	block := &inputs.Blocks[0]
	block.ExplicitRepeat()
	chans := block.ChanCount()
	if len(n.state) != chans {
		n.state = make([]biquadState, chans)
	}

	for chn := 0; chn < chans; chn++ {
		data := block.DataChan(chn)
		s := &n.state[chn]
		for i, x := range data {
			x0 := float64(x)
			y0 := n.b0*x0 + n.b1*s.x1 + n.b2*s.x2 - n.a1*s.y1 - n.a2*s.y2
			s.x2, s.x1 = s.x1, x0
			s.y2, s.y1 = s.y1, y0
			data[i] = float32(y0)
		}
	}
	return inputs
}

// computeCoefficients derives the normalized section coefficients from the
// current parameter values (Audio EQ Cookbook, R. Bristow-Johnson).
func (n *biquadFilterNode) computeCoefficients(sampleRate float64) {
	n.coeffsValid = true

	freq := float64(n.frequency.Value()) * math.Pow(2, float64(n.detune.Value())/1200)
	freq = math.Max(0, math.Min(freq, sampleRate/2))
	q := math.Max(1e-4, float64(n.q.Value()))
	a := math.Pow(10, float64(n.gain.Value())/40)

	w0 := 2 * math.Pi * freq / sampleRate
	sin, cos := math.Sincos(w0)
	alpha := sin / (2 * q)

	var b0, b1, b2, a0, a1, a2 float64
	switch n.filterType {
	case LowPass:
		b0 = (1 - cos) / 2
		b1 = 1 - cos
		b2 = (1 - cos) / 2
		a0 = 1 + alpha
		a1 = -2 * cos
		a2 = 1 - alpha
	case HighPass:
		b0 = (1 + cos) / 2
		b1 = -(1 + cos)
		b2 = (1 + cos) / 2
		a0 = 1 + alpha
		a1 = -2 * cos
		a2 = 1 - alpha
	case BandPass:
		b0 = alpha
		b1 = 0
		b2 = -alpha
		a0 = 1 + alpha
		a1 = -2 * cos
		a2 = 1 - alpha
	case Notch:
		b0 = 1
		b1 = -2 * cos
		b2 = 1
		a0 = 1 + alpha
		a1 = -2 * cos
		a2 = 1 - alpha
	case AllPass:
		b0 = 1 - alpha
		b1 = -2 * cos
		b2 = 1 + alpha
		a0 = 1 + alpha
		a1 = -2 * cos
		a2 = 1 - alpha
	case Peaking:
		b0 = 1 + alpha*a
		b1 = -2 * cos
		b2 = 1 - alpha*a
		a0 = 1 + alpha/a
		a1 = -2 * cos
		a2 = 1 - alpha/a
	case LowShelf:
		sqrtA := math.Sqrt(a)
		b0 = a * ((a + 1) - (a-1)*cos + 2*sqrtA*alpha)
		b1 = 2 * a * ((a - 1) - (a+1)*cos)
		b2 = a * ((a + 1) - (a-1)*cos - 2*sqrtA*alpha)
		a0 = (a + 1) + (a-1)*cos + 2*sqrtA*alpha
		a1 = -2 * ((a - 1) + (a+1)*cos)
		a2 = (a + 1) + (a-1)*cos - 2*sqrtA*alpha
	case HighShelf:
		sqrtA := math.Sqrt(a)
		b0 = a * ((a + 1) + (a-1)*cos + 2*sqrtA*alpha)
		b1 = -2 * a * ((a - 1) + (a+1)*cos)
		b2 = a * ((a + 1) + (a-1)*cos - 2*sqrtA*alpha)
		a0 = (a + 1) - (a-1)*cos + 2*sqrtA*alpha
		a1 = 2 * ((a - 1) - (a+1)*cos)
		a2 = (a + 1) - (a-1)*cos - 2*sqrtA*alpha
	}

	n.b0 = b0 / a0
	n.b1 = b1 / a0
	n.b2 = b2 / a0
	n.a1 = a1 / a0
	n.a2 = a2 / a0
}
