package audio

import (
	"math"
	"sync"
	"time"
)

const (
	// LevelInterval is the 60 Hz publishing period of the input level meter.
	LevelInterval = time.Second / 60
	// LevelWindow is the number of most recent canonical samples the meter averages.
	LevelWindow = 512
	// LevelGain scales raw RMS so normal speech lands mid-range on the meter.
	LevelGain = 5.0
)

// levelWindow keeps the most recent LevelWindow canonical samples in a ring.
type levelWindow struct {
	samples [LevelWindow]int16
	next    int
	filled  int
}

func (w *levelWindow) push(pcm16 []byte) {
	for i := 0; i+1 < len(pcm16); i += 2 {
		w.samples[w.next] = int16(uint16(pcm16[i]) | uint16(pcm16[i+1])<<8)
		w.next = (w.next + 1) % LevelWindow
		if w.filled < LevelWindow {
			w.filled++
		}
	}
}

func (w *levelWindow) level(gain float64) float64 {
	if w.filled == 0 {
		return 0
	}
	return clamp01(RMS(w.samples[:w.filled]) * gain)
}

func (w *levelWindow) reset() {
	w.next = 0
	w.filled = 0
}

// LevelSubscription receives level updates on a bounded channel.
//
// Values are dropped while the channel is full; a subscriber never slows capture.
type LevelSubscription struct {
	ch   chan float64
	hub  *levelHub
	once sync.Once
}

// C returns the update channel. It is closed by Close or when the capture closes.
func (s *LevelSubscription) C() <-chan float64 {
	return s.ch
}

// Close unregisters the subscription and closes its channel.
func (s *LevelSubscription) Close() {
	s.hub.remove(s)
}

type levelHub struct {
	mu     sync.Mutex
	subs   map[*LevelSubscription]struct{}
	closed bool
}

func (h *levelHub) subscribe(buffer int) *LevelSubscription {
	if buffer <= 0 {
		buffer = 1
	}
	sub := &LevelSubscription{ch: make(chan float64, buffer), hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.ch)
		sub.once.Do(func() {})
		return sub
	}
	if h.subs == nil {
		h.subs = make(map[*LevelSubscription]struct{})
	}
	h.subs[sub] = struct{}{}
	return sub
}

func (h *levelHub) publish(level float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		select {
		case sub.ch <- level:
		default:
		}
	}
}

func (h *levelHub) remove(sub *LevelSubscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub.once.Do(func() {
		delete(h.subs, sub)
		close(sub.ch)
	})
}

func (h *levelHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for sub := range h.subs {
		sub.once.Do(func() { close(sub.ch) })
	}
	h.subs = nil
}

func levelToBits(v float64) uint64 { return math.Float64bits(v) }

func levelFromBits(b uint64) float64 { return math.Float64frombits(b) }
