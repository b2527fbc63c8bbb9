package audiograph

import (
	"testing"
	"time"

	"github.com/pion/rtp"
)

// fakeStreamReader serves a fixed sequence of blocks.
type fakeStreamReader struct {
	blocks  []Block
	started int
	stopped int
}

func (r *fakeStreamReader) Start() { r.started++ }
func (r *fakeStreamReader) Stop() { r.stopped++ }

func (r *fakeStreamReader) Pull() Block {
	if len(r.blocks) == 0 {
		return SilentBlock(1)
	}
	b := r.blocks[0]
	r.blocks = r.blocks[1:]
	return b
}

func TestMediaStreamSourcePullsPerBlock(t *testing.T) {
	reader := &fakeStreamReader{blocks: []Block{
		BlockFromChannels(constChan(0.1)),
		BlockFromChannels(constChan(0.2)),
	}}
	node := newMediaStreamSourceNode(reader, ChannelInfo{})
	node.start(0)

	blocks := processSource(t, node, 3)
	if s := blocks[0].Sample(0, 0); s != 0.1 {
		t.Errorf("block 0: got %f, want 0.1", s)
	}
	if s := blocks[1].Sample(0, 0); s != 0.2 {
		t.Errorf("block 1: got %f, want 0.2", s)
	}
	// Underrun: silence.
	if !blocks[2].IsSilence() {
		t.Error("underrun should produce silence")
	}
	if reader.started != 1 {
		t.Errorf("reader started %d times, want 1", reader.started)
	}
}

func TestMediaStreamSourceStopsReader(t *testing.T) {
	reader := &fakeStreamReader{}
	node := newMediaStreamSourceNode(reader, ChannelInfo{})
	node.start(0)
	node.stop(FramesPerBlock)

	processSource(t, node, 3)
	if reader.started != 1 || reader.stopped != 1 {
		t.Errorf("reader lifecycle: started %d stopped %d, want 1/1", reader.started, reader.stopped)
	}
}

// chunkSink records pushed chunks.
type chunkSink struct {
	inited bool
	played bool
	chunks []Chunk
}

func (s *chunkSink) Init(float32, func()) error     { s.inited = true; return nil }
func (s *chunkSink) Play() error                    { s.played = true; return nil }
func (s *chunkSink) Stop() error                    { return nil }
func (s *chunkSink) HasEnoughData() bool            { return false }
func (s *chunkSink) SetEOSCallback(func([]float32)) {}

func (s *chunkSink) PushData(chunk Chunk) error {
	s.chunks = append(s.chunks, chunk)
	return nil
}

func TestMediaStreamDestinationForwards(t *testing.T) {
	sink := &chunkSink{}
	node, err := newMediaStreamDestinationNode(sink, testRate, ChannelInfo{})
	if err != nil {
		t.Fatal(err)
	}
	if !sink.inited || !sink.played {
		t.Error("destination must init and start its sink")
	}
	if node.StreamID() == (MediaStreamID{}) {
		t.Error("stream id should be assigned")
	}

	in := ChunkFromBlock(BlockFromChannels(constChan(0.5)))
	out := node.Process(in, &BlockInfo{SampleRate: testRate})
	if out.Len() != 0 {
		t.Errorf("output count: got %d, want 0", out.Len())
	}
	if len(sink.chunks) != 1 {
		t.Fatalf("forwarded chunks: got %d, want 1", len(sink.chunks))
	}
	if s := sink.chunks[0].Blocks[0].Sample(0, 0); s != 0.5 {
		t.Errorf("forwarded sample: got %f, want 0.5", s)
	}
}

// fakePacketSource yields scripted RTP packets then reports exhaustion.
type fakePacketSource struct {
	packets []*rtp.Packet
}

func (s *fakePacketSource) ReadRTP() (*rtp.Packet, bool) {
	if len(s.packets) == 0 {
		return nil, false
	}
	p := s.packets[0]
	s.packets = s.packets[1:]
	return p, true
}

func l16Payload(samples []int16) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		out[2*i] = byte(uint16(s) >> 8)
		out[2*i+1] = byte(uint16(s))
	}
	return out
}

func TestRTPStreamReaderReblocks(t *testing.T) {
	// Two packets of 96 mono frames make one 128-frame block plus change.
	first := make([]int16, 96)
	second := make([]int16, 96)
	for i := range first {
		first[i] = 8192
		second[i] = -8192
	}
	source := &fakePacketSource{packets: []*rtp.Packet{
		{Payload: l16Payload(first)},
		{Payload: l16Payload(second)},
	}}
	reader := NewRTPStreamReader(source, 1)
	reader.Start()
	// The read loop exhausts the source on its own; wait for the block.
	deadline := time.Now().Add(time.Second)
	for reader.queue.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	defer reader.Stop()

	block := reader.Pull()
	if block.IsSilence() {
		t.Fatal("expected a queued block")
	}
	if s := block.Sample(0, 0); s != 0.25 {
		t.Errorf("frame 0: got %f, want 0.25", s)
	}
	if s := block.Sample(0, 95); s != 0.25 {
		t.Errorf("frame 95: got %f, want 0.25", s)
	}
	if s := block.Sample(0, 96); s != -0.25 {
		t.Errorf("frame 96: got %f, want -0.25", s)
	}

	// Only 64 frames remain: not enough for a block, Pull underruns.
	if !reader.Pull().IsSilence() {
		t.Error("partial tail must not surface as a block")
	}
}
