package audiograph

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"gopkg.in/hraban/opus.v2"
)

// AudioDecoderOptions is passed to a decoder by the context; the decoder is
// responsible for resampling its output to SampleRate before delivery.
type AudioDecoderOptions struct {
	SampleRate float32
}

// AudioDecoderCallbacks receive decoded audio. Progress is called once per
// channel per batch with 1-based channel indices; Ready announces the
// channel count before the first Progress. Nil callbacks are skipped.
type AudioDecoderCallbacks struct {
	Ready    func(channels int)
	Progress func(data []float32, channel int)
	EOS      func()
	Error    func(err error)
}

func (c *AudioDecoderCallbacks) ready(channels int) {
	if c.Ready != nil {
		c.Ready(channels)
	}
}

func (c *AudioDecoderCallbacks) progress(data []float32, channel int) {
	if c.Progress != nil {
		c.Progress(data, channel)
	}
}

func (c *AudioDecoderCallbacks) eos() {
	if c.EOS != nil {
		c.EOS()
	}
}

func (c *AudioDecoderCallbacks) fail(err error) {
	if c.Error != nil {
		c.Error(err)
	}
}

// AudioDecoder turns encoded bytes into per-channel float32 samples at the
// requested rate.
type AudioDecoder interface {
	Decode(data []byte, callbacks AudioDecoderCallbacks, options AudioDecoderOptions)
}

// DecodeAudioBuffer runs a decoder synchronously and collects the result
// into an AudioBuffer at the given rate.
func DecodeAudioBuffer(decoder AudioDecoder, data []byte, sampleRate float32) (*AudioBuffer, error) {
	var (
		channels  [][]float32
		decodeErr error
	)
	decoder.Decode(data, AudioDecoderCallbacks{
		Ready: func(n int) {
			channels = make([][]float32, n)
		},
		Progress: func(data []float32, channel int) {
			channels[channel-1] = append(channels[channel-1], data...)
		},
		Error: func(err error) {
			decodeErr = err
		},
	}, AudioDecoderOptions{SampleRate: sampleRate})
	if decodeErr != nil {
		return nil, decodeErr
	}
	return AudioBufferFromChannels(channels, sampleRate)
}

// resampleLinear converts a channel between sample rates with two-tap
// linear interpolation, the same kernel the buffer source uses.
func resampleLinear(in []float32, from, to float32) []float32 {
	if from == to || len(in) == 0 {
		return in
	}
	ratio := float64(from) / float64(to)
	outLen := int(math.Ceil(float64(len(in)) / ratio))
	out := make([]float32, outLen)
	for i := range out {
		pos := float64(i) * ratio
		prev := int(pos)
		if prev >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := float32(pos - float64(prev))
		out[i] = (1-frac)*in[prev] + frac*in[prev+1]
	}
	return out
}

// WAV format codes handled by WAVDecoder.
const (
	wavFormatPCM   = 1
	wavFormatFloat = 3
)

// WAVDecoder decodes RIFF/WAVE payloads holding 16-bit PCM or 32-bit float
// samples.
type WAVDecoder struct{}

func (WAVDecoder) Decode(data []byte, callbacks AudioDecoderCallbacks, options AudioDecoderOptions) {
	format, chans, rate, payload, err := parseWAV(data)
	if err != nil {
		callbacks.fail(err)
		return
	}

	var samples [][]float32
	switch format {
	case wavFormatPCM:
		samples = deinterleavePCM16(payload, chans)
	case wavFormatFloat:
		samples = deinterleaveFloat32(payload, chans)
	}

	callbacks.ready(chans)
	for chn := range samples {
		out := resampleLinear(samples[chn], rate, options.SampleRate)
		callbacks.progress(out, chn+1)
	}
	callbacks.eos()
}

// parseWAV walks the RIFF chunks and returns the format fields and the raw
// data payload.
func parseWAV(data []byte) (format, chans int, rate float32, payload []byte, err error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return 0, 0, 0, nil, errors.New("audiograph: not a RIFF/WAVE stream")
	}
	var (
		haveFmt  bool
		haveData bool
		bits     int
	)
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := data[pos+8:]
		if size > len(body) {
			size = len(body)
		}
		body = body[:size]
		switch id {
		case "fmt ":
			if size < 16 {
				return 0, 0, 0, nil, errors.New("audiograph: truncated fmt chunk")
			}
			format = int(binary.LittleEndian.Uint16(body[0:2]))
			chans = int(binary.LittleEndian.Uint16(body[2:4]))
			rate = float32(binary.LittleEndian.Uint32(body[4:8]))
			bits = int(binary.LittleEndian.Uint16(body[14:16]))
			haveFmt = true
		case "data":
			payload = body
			haveData = true
		}
		// Chunks are word-aligned.
		pos += 8 + size + size%2
	}
	if !haveFmt || !haveData {
		return 0, 0, 0, nil, errors.New("audiograph: missing fmt or data chunk")
	}
	if chans < 1 {
		return 0, 0, 0, nil, ErrBufferInvariant
	}
	switch {
	case format == wavFormatPCM && bits == 16:
	case format == wavFormatFloat && bits == 32:
	default:
		return 0, 0, 0, nil, fmt.Errorf("audiograph: unsupported wav encoding (format %d, %d bits)", format, bits)
	}
	return format, chans, rate, payload, nil
}

func deinterleavePCM16(payload []byte, chans int) [][]float32 {
	frames := len(payload) / 2 / chans
	out := make([][]float32, chans)
	for chn := range out {
		out[chn] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for chn := 0; chn < chans; chn++ {
			raw := int16(binary.LittleEndian.Uint16(payload[(i*chans+chn)*2:]))
			out[chn][i] = float32(raw) / 32768
		}
	}
	return out
}

func deinterleaveFloat32(payload []byte, chans int) [][]float32 {
	frames := len(payload) / 4 / chans
	out := make([][]float32, chans)
	for chn := range out {
		out[chn] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for chn := 0; chn < chans; chn++ {
			bits := binary.LittleEndian.Uint32(payload[(i*chans+chn)*4:])
			out[chn][i] = math.Float32frombits(bits)
		}
	}
	return out
}

// opusSampleRate is the decode rate for Opus; the codec always runs at
// 48 kHz internally.
const opusSampleRate = 48000

// maxOpusFrameSize is the largest decoded frame Opus can produce at 48 kHz
// (120 ms).
const maxOpusFrameSize = 5760

// OpusStreamDecoder decodes a stream of uint16-length-prefixed Opus packets
// (big endian), the framing used on the wire by the stream transports.
type OpusStreamDecoder struct {
	// Channels is the stream channel count (1 or 2). Zero means mono.
	Channels int
}

func (d OpusStreamDecoder) Decode(data []byte, callbacks AudioDecoderCallbacks, options AudioDecoderOptions) {
	chans := d.Channels
	if chans == 0 {
		chans = 1
	}
	dec, err := opus.NewDecoder(opusSampleRate, chans)
	if err != nil {
		callbacks.fail(fmt.Errorf("audiograph: create opus decoder: %w", err))
		return
	}

	callbacks.ready(chans)
	pcm := make([]int16, maxOpusFrameSize*chans)
	pos := 0
	for pos+2 <= len(data) {
		size := int(binary.BigEndian.Uint16(data[pos : pos+2]))
		pos += 2
		if pos+size > len(data) {
			callbacks.fail(errors.New("audiograph: truncated opus packet"))
			return
		}
		n, err := dec.Decode(data[pos:pos+size], pcm)
		if err != nil {
			callbacks.fail(fmt.Errorf("audiograph: opus decode: %w", err))
			return
		}
		pos += size

		for chn := 0; chn < chans; chn++ {
			out := make([]float32, n)
			for i := 0; i < n; i++ {
				out[i] = float32(pcm[i*chans+chn]) / 32768
			}
			out = resampleLinear(out, opusSampleRate, options.SampleRate)
			callbacks.progress(out, chn+1)
		}
	}
	callbacks.eos()
}
