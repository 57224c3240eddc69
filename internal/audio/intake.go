package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/smallnest/ringbuffer"

	"github.com/JarrySand/whisper-discord-sub000/internal/observability/metrics"
)

// Frame is one PCM chunk from the voice transport, tagged with its
// stream id and arrival time.
type Frame struct {
	SSRC      uint32
	Timestamp time.Time
	PCM       []byte
}

const frameHeaderLen = 4 + 4 + 8 // size prefix + ssrc + unix millis

// Intake decouples the voice transport from buffering with a bounded
// byte ring. Frames are stored size-prefixed; when the ring fills, the
// oldest frames are discarded so a stalled consumer never blocks the
// transport.
type Intake struct {
	mu     sync.Mutex
	rb     *ringbuffer.RingBuffer
	notify chan struct{}
}

// NewIntake creates an intake ring holding up to capacity bytes.
func NewIntake(capacity int) *Intake {
	return &Intake{
		rb:     ringbuffer.New(capacity).SetBlocking(false),
		notify: make(chan struct{}, 1),
	}
}

// Push appends a frame, evicting oldest frames to make room.
func (in *Intake) Push(f Frame) error {
	need := frameHeaderLen + len(f.PCM)
	if need > in.rb.Capacity() {
		return errors.New("frame larger than intake ring")
	}

	var hdr [frameHeaderLen]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(4+8+len(f.PCM)))
	binary.LittleEndian.PutUint32(hdr[4:8], f.SSRC)
	binary.LittleEndian.PutUint64(hdr[8:16], uint64(f.Timestamp.UnixMilli()))

	in.mu.Lock()
	for in.rb.Free() < need {
		if !in.dropOldestLocked() {
			in.rb.Reset()
			break
		}
		metrics.DefaultMetrics.IntakeFramesDropped.Inc()
	}
	in.rb.Write(hdr[:])
	in.rb.Write(f.PCM)
	in.mu.Unlock()

	select {
	case in.notify <- struct{}{}:
	default:
	}
	return nil
}

// Pop removes the oldest frame. ok is false when the ring is empty.
func (in *Intake) Pop() (Frame, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.rb.IsEmpty() {
		return Frame{}, false
	}

	var sizeBuf [4]byte
	if n, err := in.rb.Read(sizeBuf[:]); err != nil || n != 4 {
		return Frame{}, false
	}
	size := int(binary.LittleEndian.Uint32(sizeBuf[:]))

	body := make([]byte, size)
	if n, err := in.rb.Read(body); err != nil || n != size {
		return Frame{}, false
	}

	return Frame{
		SSRC:      binary.LittleEndian.Uint32(body[0:4]),
		Timestamp: time.UnixMilli(int64(binary.LittleEndian.Uint64(body[4:12]))),
		PCM:       body[12:],
	}, true
}

// Run drains frames into handler until ctx is done.
func (in *Intake) Run(ctx context.Context, handler func(Frame)) {
	for {
		for {
			f, ok := in.Pop()
			if !ok {
				break
			}
			handler(f)
		}
		select {
		case <-ctx.Done():
			return
		case <-in.notify:
		}
	}
}

// Len returns the buffered byte count, headers included.
func (in *Intake) Len() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.rb.Length()
}

func (in *Intake) dropOldestLocked() bool {
	if in.rb.IsEmpty() {
		return false
	}
	var sizeBuf [4]byte
	if n, err := in.rb.Read(sizeBuf[:]); err != nil || n != 4 {
		return false
	}
	size := int(binary.LittleEndian.Uint32(sizeBuf[:]))
	if size > 0 {
		skip := make([]byte, size)
		if n, err := in.rb.Read(skip); err != nil || n != size {
			return false
		}
	}
	return true
}
