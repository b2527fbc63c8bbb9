package audiograph

import "math"

// OscillatorType selects the oscillator waveform. The non-sine waveforms use
// their textbook piecewise formulas and are not band-limited.
type OscillatorType int

const (
	Sine OscillatorType = iota
	Square
	Sawtooth
	Triangle
	// Custom renders a caller-supplied single-cycle wavetable.
	Custom
)

// OscillatorOptions configures a new oscillator node.
type OscillatorOptions struct {
	Type OscillatorType
	// Freq is the initial frequency in Hz. Zero means the default 440.
	Freq float32
	// Detune is the initial detune in cents.
	Detune float32
	// PeriodicWave is the single-cycle table used by Custom oscillators.
	PeriodicWave []float32
}

// SetOscillatorType switches the waveform of a running oscillator.
type SetOscillatorType struct{ Type OscillatorType }

func (SetOscillatorType) isNodeMessage() {}

// oscillatorNode is a scheduled source generating a periodic waveform. A
// phase accumulator in [0, 2pi) is advanced per frame by 2pi*f/sampleRate;
// carrying phase instead of a sample counter keeps accuracy when the
// frequency param ramps.
type oscillatorNode struct {
	baseNode
	scheduledSource
	oscType   OscillatorType
	frequency *Param
	detune    *Param
	wave      []float32
	phase     float64
}

func newOscillatorNode(options OscillatorOptions, info ChannelInfo) *oscillatorNode {
	freq := options.Freq
	if freq == 0 {
		freq = 440
	}
	return &oscillatorNode{
		baseNode:  newBaseNode(info),
		oscType:   options.Type,
		frequency: NewParam(freq),
		detune:    NewParam(options.Detune),
		wave:      options.PeriodicWave,
	}
}

func (n *oscillatorNode) NodeType() AudioNodeType { return NodeOscillator }

func (n *oscillatorNode) InputCount() int { return 0 }

func (n *oscillatorNode) GetParam(tag ParamType) *Param {
	switch tag {
	case ParamFrequency:
		return n.frequency
	case ParamDetune:
		return n.detune
	default:
		panic("audiograph: no param " + tag.String() + " on OscillatorNode")
	}
}

func (n *oscillatorNode) Message(msg AudioNodeMessage, sampleRate float32) {
	if n.handleSourceMessage(msg, sampleRate) {
		return
	}
	if m, ok := msg.(SetOscillatorType); ok {
		n.oscType = m.Type
	}
}

func (n *oscillatorNode) Process(inputs Chunk, info *BlockInfo) Chunk {
	out := Block{}
	play := n.shouldPlayAt(info.Frame)
	if !play.Play {
		return ChunkFromBlock(out)
	}

	out.ExplicitSilence()
	const twoPi = 2 * math.Pi
	sampleRate := float64(info.SampleRate)
	step := n.step(sampleRate)

	for frame := int(play.Start); frame < int(play.End); frame++ {
		changed := n.frequency.Update(info, Tick(frame))
		if n.detune.Update(info, Tick(frame)) {
			changed = true
		}
		if changed || n.frequency.block != nil || n.detune.block != nil {
			step = n.stepAt(sampleRate, frame)
		}
		sample := n.sample()
		out.MutateFrame(frame, func(float32) float32 { return sample })

		n.phase += step
		if n.phase >= twoPi {
			n.phase -= twoPi
		} else if n.phase < 0 {
			n.phase += twoPi
		}
	}
	return ChunkFromBlock(out)
}

// step returns the per-frame phase increment for the current param values.
func (n *oscillatorNode) step(sampleRate float64) float64 {
	f := float64(n.frequency.Value()) * math.Pow(2, float64(n.detune.Value())/1200)
	return 2 * math.Pi * f / sampleRate
}

// stepAt is step with signal-driven param values at a frame offset.
func (n *oscillatorNode) stepAt(sampleRate float64, frame int) float64 {
	f := float64(n.frequency.ValueAt(frame)) * math.Pow(2, float64(n.detune.ValueAt(frame))/1200)
	return 2 * math.Pi * f / sampleRate
}

// sample evaluates the waveform at the current phase.
func (n *oscillatorNode) sample() float32 {
	const twoPi = 2 * math.Pi
	switch n.oscType {
	case Sine:
		return float32(math.Sin(n.phase))
	case Square:
		if n.phase < math.Pi {
			return 1
		}
		return -1
	case Sawtooth:
		return float32(n.phase/math.Pi - 1)
	case Triangle:
		// Rises from -1 over the first half cycle, falls over the second.
		pos := n.phase / twoPi
		if pos < 0.5 {
			return float32(4*pos - 1)
		}
		return float32(3 - 4*pos)
	case Custom:
		if len(n.wave) == 0 {
			return 0
		}
		pos := n.phase / twoPi * float64(len(n.wave))
		lo := int(pos) % len(n.wave)
		hi := (lo + 1) % len(n.wave)
		frac := float32(pos - math.Floor(pos))
		return (1-frac)*n.wave[lo] + frac*n.wave[hi]
	default:
		return 0
	}
}
