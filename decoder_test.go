package audiograph

import (
	"encoding/binary"
	"math"
	"testing"
)

// buildWAV assembles a little RIFF/WAVE file around interleaved PCM16.
func buildWAV(samples [][]int16, rate uint32) []byte {
	chans := len(samples)
	frames := len(samples[0])
	dataLen := frames * chans * 2

	out := make([]byte, 0, 44+dataLen)
	out = append(out, "RIFF"...)
	out = binary.LittleEndian.AppendUint32(out, uint32(36+dataLen))
	out = append(out, "WAVE"...)
	out = append(out, "fmt "...)
	out = binary.LittleEndian.AppendUint32(out, 16)
	out = binary.LittleEndian.AppendUint16(out, 1)
	out = binary.LittleEndian.AppendUint16(out, uint16(chans))
	out = binary.LittleEndian.AppendUint32(out, rate)
	out = binary.LittleEndian.AppendUint32(out, rate*uint32(chans)*2)
	out = binary.LittleEndian.AppendUint16(out, uint16(chans)*2)
	out = binary.LittleEndian.AppendUint16(out, 16)
	out = append(out, "data"...)
	out = binary.LittleEndian.AppendUint32(out, uint32(dataLen))
	for i := 0; i < frames; i++ {
		for chn := 0; chn < chans; chn++ {
			out = binary.LittleEndian.AppendUint16(out, uint16(samples[chn][i]))
		}
	}
	return out
}

func TestWAVDecoderRoundTrip(t *testing.T) {
	left := make([]int16, 300)
	right := make([]int16, 300)
	for i := range left {
		left[i] = int16(i * 100)
		right[i] = int16(-i * 100)
	}
	data := buildWAV([][]int16{left, right}, 48000)

	buffer, err := DecodeAudioBuffer(WAVDecoder{}, data, 48000)
	if err != nil {
		t.Fatal(err)
	}
	if buffer.ChanCount() != 2 {
		t.Fatalf("channels: got %d, want 2", buffer.ChanCount())
	}
	if buffer.Len() != 300 {
		t.Fatalf("frames: got %d, want 300", buffer.Len())
	}
	for i := range left {
		want := float32(left[i]) / 32768
		if got := buffer.Channels[0][i]; got != want {
			t.Fatalf("left frame %d: got %f, want %f", i, got, want)
		}
	}
}

func TestWAVDecoderResamples(t *testing.T) {
	mono := make([]int16, 1000)
	for i := range mono {
		mono[i] = 16000
	}
	data := buildWAV([][]int16{mono}, 24000)

	buffer, err := DecodeAudioBuffer(WAVDecoder{}, data, 48000)
	if err != nil {
		t.Fatal(err)
	}
	// Doubling the rate roughly doubles the frame count.
	if buffer.Len() < 1990 || buffer.Len() > 2010 {
		t.Fatalf("resampled frames: got %d, want ~2000", buffer.Len())
	}
	want := float32(16000) / 32768
	if got := buffer.Channels[0][500]; math.Abs(float64(got-want)) > 1e-6 {
		t.Errorf("resampled value: got %f, want %f", got, want)
	}
}

func TestWAVDecoderRejectsGarbage(t *testing.T) {
	callbacks := AudioDecoderCallbacks{}
	errSeen := false
	callbacks.Error = func(error) { errSeen = true }
	WAVDecoder{}.Decode([]byte("definitely not a wav"), callbacks, AudioDecoderOptions{SampleRate: 48000})
	if !errSeen {
		t.Error("garbage input must report an error")
	}
	if _, err := DecodeAudioBuffer(WAVDecoder{}, nil, 48000); err == nil {
		t.Error("empty input must fail")
	}
}

func TestWAVDecoderCallbackOrder(t *testing.T) {
	mono := make([]int16, 256)
	data := buildWAV([][]int16{mono}, 48000)

	var order []string
	WAVDecoder{}.Decode(data, AudioDecoderCallbacks{
		Ready:    func(chans int) { order = append(order, "ready") },
		Progress: func([]float32, int) { order = append(order, "progress") },
		EOS:      func() { order = append(order, "eos") },
	}, AudioDecoderOptions{SampleRate: 48000})

	if len(order) != 3 || order[0] != "ready" || order[1] != "progress" || order[2] != "eos" {
		t.Errorf("callback order: got %v, want [ready progress eos]", order)
	}
}

func TestResampleLinearIdentity(t *testing.T) {
	in := []float32{0, 1, 2, 3}
	out := resampleLinear(in, 48000, 48000)
	if len(out) != len(in) {
		t.Fatalf("identity resample changed length: %d", len(out))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("identity resample changed samples")
		}
	}
}

func TestResampleLinearHalvesLength(t *testing.T) {
	in := make([]float32, 1000)
	for i := range in {
		in[i] = float32(i)
	}
	out := resampleLinear(in, 48000, 24000)
	if len(out) != 500 {
		t.Fatalf("length: got %d, want 500", len(out))
	}
	// Every output sample reads position 2i exactly.
	if out[100] != 200 {
		t.Errorf("out[100]: got %f, want 200", out[100])
	}
}
