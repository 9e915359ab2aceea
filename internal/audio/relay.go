// Package audio provides the hand-off point between the non-real-time
// trigger path and the real-time render loop.
package audio

import "sync"

// Relay is a lock-protected FIFO of pending mono samples. Producers append
// whole utterance blocks from any goroutine; the render loop drains at
// device cadence and never waits. There is no producer backpressure: a burst
// of triggers queues audio rather than dropping it.
type Relay struct {
	mu        sync.Mutex
	queue     []float32
	underruns uint64
}

func NewRelay() *Relay {
	return &Relay{}
}

// Append copies block to the tail of the queue in one lock-held pass, so a
// single block is never interleaved with a concurrent producer's samples.
func (r *Relay) Append(block []float32) {
	if len(block) == 0 {
		return
	}
	r.mu.Lock()
	r.queue = append(r.queue, block...)
	r.mu.Unlock()
}

// DrainInto fills dst with up to frames mono samples replicated across
// channels, zero-filling any shortfall. Consumed samples are removed from
// the head of the queue. It returns the number of queued frames actually
// consumed; frames - consumed is the underrun amount for this cycle.
func (r *Relay) DrainInto(dst []float32, frames, channels int) int {
	if frames <= 0 || channels <= 0 {
		return 0
	}

	r.mu.Lock()
	consumed := frames
	if consumed > len(r.queue) {
		consumed = len(r.queue)
	}
	for f := 0; f < frames; f++ {
		var sample float32
		if f < consumed {
			sample = r.queue[f]
		}
		for c := 0; c < channels; c++ {
			dst[f*channels+c] = sample
		}
	}
	if consumed > 0 {
		r.queue = r.queue[:copy(r.queue, r.queue[consumed:])]
		// A partial drain means audio ran out mid-buffer. Running dry while
		// idle is the normal state and is not counted.
		if consumed < frames {
			r.underruns++
		}
	}
	r.mu.Unlock()
	return consumed
}

// Underruns reports how many drains exhausted the queue mid-buffer.
func (r *Relay) Underruns() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.underruns
}

// Len reports the number of queued mono samples.
func (r *Relay) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// BufferedSeconds reports the queued duration at the given sample rate.
func (r *Relay) BufferedSeconds(sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(r.Len()) / float64(sampleRate)
}

// Clear drops all queued samples.
func (r *Relay) Clear() {
	r.mu.Lock()
	r.queue = r.queue[:0]
	r.mu.Unlock()
}
