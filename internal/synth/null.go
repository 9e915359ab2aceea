package synth

import "context"

// nullEngine produces a short block of silence per utterance. It keeps the
// rest of the pipeline operable on machines without a speech backend and
// gives tests a deterministic engine.
type nullEngine struct {
	rate int
}

func newNullEngine() *nullEngine {
	return &nullEngine{rate: 22050}
}

func (n *nullEngine) Init(requestedRate int) (int, error) {
	if requestedRate > 0 {
		n.rate = requestedRate
	}
	return n.rate, nil
}

func (n *nullEngine) Apply(Params) error { return nil }

func (n *nullEngine) Speak(ctx context.Context, text string, emit func(samples []float32)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// Roughly 80 ms of silence per character, capped at two seconds.
	samples := len(text) * n.rate * 80 / 1000
	if max := 2 * n.rate; samples > max {
		samples = max
	}
	if samples > 0 {
		emit(make([]float32, samples))
	}
	return nil
}

func (n *nullEngine) Rate() int { return n.rate }

func (n *nullEngine) Cancel() error { return nil }
func (n *nullEngine) Close() error  { return nil }
