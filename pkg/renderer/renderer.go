// ABOUTME: Real-time renderer fed by either transport
// ABOUTME: Fills device buffers from the ring or a bounded jitter queue
package renderer

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/harperreed/emuaudio/pkg/audio"
	"github.com/harperreed/emuaudio/pkg/audio/ringbuf"
	"github.com/harperreed/emuaudio/pkg/probe"
	"github.com/harperreed/emuaudio/pkg/protocol"
	"github.com/harperreed/emuaudio/pkg/transport"
)

const (
	// DefaultMaxBufferedMs caps the message-mode jitter queue
	DefaultMaxBufferedMs = 500

	statsBuffer = 16
	inboxSize   = 256
)

// Config describes how a renderer receives audio
type Config struct {
	Mode          transport.Mode
	Format        audio.Format
	Ring          *ringbuf.Buffer // required in shared mode
	MaxBufferedMs int
	TapSize       int
	Logger        *slog.Logger
}

// Renderer produces device audio. Render is called from the device callback;
// Post is called by the message transport and never takes the render lock.
type Renderer struct {
	mode   transport.Mode
	ring   *ringbuf.Buffer
	tap    *probe.Tap
	logger *slog.Logger
	stats  chan protocol.QueueStats
	inbox  chan protocol.Message

	// messages Post could not queue
	overflow atomic.Uint64

	mu            sync.Mutex
	format        audio.Format
	maxBufferedMs int
	queue         [][]byte
	head          int // read offset into queue[0]
	queued        int
	dropped       uint64
	underruns     uint64
	fed           bool // last shared render was filled completely
	lastStats     protocol.QueueStats
	statsSent     bool
}

// New validates cfg and builds a renderer
func New(cfg Config) (*Renderer, error) {
	if err := cfg.Format.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Mode {
	case transport.ModeShared:
		if cfg.Ring == nil {
			return nil, fmt.Errorf("shared renderer requires a ring buffer")
		}
	case transport.ModeMessage:
	default:
		return nil, fmt.Errorf("unknown transport mode %q", cfg.Mode)
	}
	if cfg.MaxBufferedMs <= 0 {
		cfg.MaxBufferedMs = DefaultMaxBufferedMs
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Renderer{
		mode:          cfg.Mode,
		ring:          cfg.Ring,
		tap:           probe.NewTap(cfg.TapSize),
		logger:        cfg.Logger,
		stats:         make(chan protocol.QueueStats, statsBuffer),
		inbox:         make(chan protocol.Message, inboxSize),
		format:        cfg.Format,
		maxBufferedMs: cfg.MaxBufferedMs,
	}, nil
}

// Mode reports which transport feeds this renderer
func (r *Renderer) Mode() transport.Mode { return r.mode }

// Tap returns the probe capturing rendered output
func (r *Renderer) Tap() *probe.Tap { return r.tap }

// Stats delivers queue statistics whenever they change. Shared mode reports
// ring occupancy and underruns; message mode reports the jitter queue.
// Updates are dropped if nobody is reading.
func (r *Renderer) Stats() <-chan protocol.QueueStats { return r.stats }

// Format returns the format currently being rendered
func (r *Renderer) Format() audio.Format {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drainLocked()
	return r.format
}

// Post hands a message to the renderer without blocking. When the inbox is
// full the message is dropped and counted.
func (r *Renderer) Post(msg protocol.Message) {
	select {
	case r.inbox <- msg:
	default:
		if r.overflow.Add(1) == 1 {
			r.logger.Warn("Renderer inbox full, dropping message", slog.String("type", msg.Type))
		}
	}
	// Apply now unless the render callback holds the lock; it drains the inbox itself
	if r.mu.TryLock() {
		r.drainLocked()
		r.mu.Unlock()
	}
}

// drainLocked applies every message waiting in the inbox
func (r *Renderer) drainLocked() {
	for {
		select {
		case msg := <-r.inbox:
			r.applyLocked(msg)
		default:
			return
		}
	}
}

func (r *Renderer) applyLocked(msg protocol.Message) {
	switch msg.Type {
	case protocol.TypePCM:
		chunk, ok := msg.Payload.(protocol.PCMChunk)
		if !ok || len(chunk.Data) == 0 {
			return
		}
		r.queue = append(r.queue, chunk.Data)
		r.queued += len(chunk.Data)
		r.trimLocked()
	case protocol.TypeFormat:
		f, ok := msg.Payload.(audio.Format)
		if !ok || f.Validate() != nil {
			r.logger.Debug("Renderer ignoring invalid format", slog.Any("payload", msg.Payload))
			return
		}
		r.format = f
		r.trimLocked()
	case protocol.TypeReset:
		r.clearLocked()
		if r.ring != nil {
			r.ring.Reset()
		}
		r.tap.Clear()
	default:
		return
	}
	r.publishLocked()
}

// Render fills out with audio, padding with silence on underrun, and returns the bytes of real audio written
func (r *Renderer) Render(out []byte) int {
	var n int
	r.mu.Lock()
	r.drainLocked()
	if r.mode == transport.ModeShared {
		n = r.ring.Pop(out)
		if n < len(out) && r.fed {
			r.underruns++
		}
		r.fed = n == len(out)
	} else {
		for n < len(out) && len(r.queue) > 0 {
			c := copy(out[n:], r.queue[0][r.head:])
			n += c
			r.head += c
			r.queued -= c
			if r.head == len(r.queue[0]) {
				r.queue[0] = nil
				r.queue = r.queue[1:]
				r.head = 0
			}
		}
	}
	f := r.format
	r.publishLocked()
	r.mu.Unlock()

	clear(out[n:])
	r.tap.Write(out, f.SampleSizeBits, f.Channels)
	return n
}

// Read implements io.Reader for pull-style device APIs. It never blocks and never fails.
func (r *Renderer) Read(p []byte) (int, error) {
	r.Render(p)
	return len(p), nil
}

// BufferedBytes reports audio waiting to be rendered
func (r *Renderer) BufferedBytes() int {
	if r.mode == transport.ModeShared {
		return r.ring.AvailableRead()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drainLocked()
	return r.queued
}

// Dropped returns how many chunks were discarded, either by the jitter
// queue or because the inbox was full
func (r *Renderer) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drainLocked()
	return r.dropped + r.overflow.Load()
}

// Underruns counts shared renders that ran dry after a full one
func (r *Renderer) Underruns() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.underruns
}

// trimLocked drops oldest chunks until the queue fits the jitter cap
func (r *Renderer) trimLocked() {
	limit := r.format.MillisToBytes(r.maxBufferedMs)
	for r.queued > limit && len(r.queue) > 1 {
		r.queued -= len(r.queue[0]) - r.head
		r.queue[0] = nil
		r.queue = r.queue[1:]
		r.head = 0
		r.dropped++
	}
}

func (r *Renderer) clearLocked() {
	for i := range r.queue {
		r.queue[i] = nil
	}
	r.queue = r.queue[:0]
	r.head = 0
	r.queued = 0
}

func (r *Renderer) publishLocked() {
	var s protocol.QueueStats
	if r.mode == transport.ModeShared {
		s = protocol.QueueStats{
			BufferedMs:    r.format.BytesToMillis(r.ring.AvailableRead()),
			DroppedChunks: float64(r.underruns),
		}
	} else {
		s = protocol.QueueStats{
			BufferedMs:    r.format.BytesToMillis(r.queued),
			DroppedChunks: float64(r.dropped + r.overflow.Load()),
		}
	}
	if r.statsSent && s == r.lastStats {
		return
	}
	select {
	case r.stats <- s:
		r.lastStats = s
		r.statsSent = true
	default:
	}
}
