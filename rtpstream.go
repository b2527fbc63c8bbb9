package audiograph

import (
	"sync"

	"github.com/pion/rtp"

	"bken/audiograph/internal/blockqueue"
)

// rtpQueueDepth is the depacketizer-side backlog in blocks.
const rtpQueueDepth = 60

// RTPPacketSource hands successive RTP packets to the reader; it returns
// false when the underlying transport is done.
type RTPPacketSource interface {
	ReadRTP() (*rtp.Packet, bool)
}

// RTPStreamReader feeds a media-stream source node from RTP packets
// carrying L16 audio (16-bit big-endian PCM, RFC 3551) at the context's
// sample rate. Payload frames are re-blocked to the render quantum; the
// stream is identified by a MediaStreamID for registry purposes.
type RTPStreamReader struct {
	id       MediaStreamID
	source   RTPPacketSource
	channels int
	queue    *blockqueue.Queue

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup

	// pending accumulates payload samples until a full block exists.
	pending [][]float32
}

// NewRTPStreamReader wraps an RTP packet source carrying channels-channel
// L16 audio.
func NewRTPStreamReader(source RTPPacketSource, channels int) *RTPStreamReader {
	if channels < 1 {
		channels = 1
	}
	return &RTPStreamReader{
		id:       NewMediaStreamID(),
		source:   source,
		channels: channels,
		queue:    blockqueue.New(rtpQueueDepth),
		pending:  make([][]float32, channels),
	}
}

// StreamID returns the reader's registry identifier.
func (r *RTPStreamReader) StreamID() MediaStreamID { return r.id }

// Start begins depacketizing in the background.
func (r *RTPStreamReader) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true
	r.wg.Add(1)
	go r.readLoop()
}

// Stop waits for the read loop to finish. The packet source is expected to
// unblock ReadRTP when its transport closes.
func (r *RTPStreamReader) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()
	r.wg.Wait()
}

// Pull returns the next queued block, or silence when the feed is behind.
func (r *RTPStreamReader) Pull() Block {
	frame, ok := r.queue.Pop()
	if !ok {
		return SilentBlock(r.channels)
	}
	return BlockFromChannels(frame...)
}

func (r *RTPStreamReader) readLoop() {
	defer r.wg.Done()
	for {
		r.mu.Lock()
		running := r.running
		r.mu.Unlock()
		if !running {
			return
		}
		packet, ok := r.source.ReadRTP()
		if !ok {
			return
		}
		r.ingest(packet.Payload)
	}
}

// ingest appends one payload's samples and flushes whole blocks.
func (r *RTPStreamReader) ingest(payload []byte) {
	frames := len(payload) / 2 / r.channels
	for i := 0; i < frames; i++ {
		for chn := 0; chn < r.channels; chn++ {
			off := (i*r.channels + chn) * 2
			raw := int16(uint16(payload[off])<<8 | uint16(payload[off+1]))
			r.pending[chn] = append(r.pending[chn], float32(raw)/32768)
		}
	}
	for len(r.pending[0]) >= FramesPerBlock {
		frame := make(blockqueue.Frame, r.channels)
		for chn := range frame {
			frame[chn] = r.pending[chn][:FramesPerBlock:FramesPerBlock]
			r.pending[chn] = r.pending[chn][FramesPerBlock:]
		}
		r.queue.Push(frame)
	}
}
