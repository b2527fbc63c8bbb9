package audiograph

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"bken/audiograph/internal/blockqueue"
)

// wsQueueDepth is the reader-side backlog in blocks (~160 ms at 48 kHz).
const wsQueueDepth = 60

// WSStreamReader feeds a media-stream source node from a websocket. Each
// binary message carries one 128-frame block of little-endian float32
// samples, channel-planar, in the context's sample rate. Messages of any
// other size are dropped.
type WSStreamReader struct {
	conn     *websocket.Conn
	channels int
	logger   *log.Logger
	queue    *blockqueue.Queue

	mu      sync.Mutex
	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewWSStreamReader wraps an established websocket connection carrying
// channels-channel audio.
func NewWSStreamReader(conn *websocket.Conn, channels int, logger *log.Logger) *WSStreamReader {
	if channels < 1 {
		channels = 1
	}
	if logger == nil {
		logger = log.WithPrefix("audiograph")
	}
	return &WSStreamReader{
		conn:     conn,
		channels: channels,
		logger:   logger,
		queue:    blockqueue.New(wsQueueDepth),
	}
}

// Start begins draining the websocket into the block queue.
func (r *WSStreamReader) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true
	r.done = make(chan struct{})
	r.wg.Add(1)
	go r.readLoop()
}

// Stop ends the read loop. The websocket is closed to unblock it.
func (r *WSStreamReader) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	close(r.done)
	r.conn.Close()
	r.wg.Wait()
}

// Pull returns the next queued block, or silence when the feed is behind.
func (r *WSStreamReader) Pull() Block {
	frame, ok := r.queue.Pop()
	if !ok {
		return SilentBlock(r.channels)
	}
	return BlockFromChannels(frame...)
}

func (r *WSStreamReader) readLoop() {
	defer r.wg.Done()
	want := r.channels * FramesPerBlock * 4
	for {
		kind, data, err := r.conn.ReadMessage()
		if err != nil {
			select {
			case <-r.done:
			default:
				r.logger.Warn("stream read failed", "err", err)
			}
			return
		}
		if kind != websocket.BinaryMessage || len(data) != want {
			continue
		}
		frame := make(blockqueue.Frame, r.channels)
		for chn := range frame {
			samples := make([]float32, FramesPerBlock)
			base := chn * FramesPerBlock * 4
			for i := range samples {
				bits := binary.LittleEndian.Uint32(data[base+i*4:])
				samples[i] = math.Float32frombits(bits)
			}
			frame[chn] = samples
		}
		r.queue.Push(frame)
	}
}
