package dispatch

import (
	"math"
	"math/rand/v2"
	"time"
)

// backoffCapFactor bounds a single backoff at ten times the base delay.
const backoffCapFactor = 10

type sequenceState int

const (
	stateAttempting sequenceState = iota
	stateSucceeded
	stateExhausted
)

// sequence is the retry state machine for one delivery:
// Attempting(n) -> Succeeded | Attempting(n+1) | Exhausted. The first attempt
// is ordinal 1, so a webhook with maxRetries=k concludes after at most k+1
// attempts.
type sequence struct {
	attempt    int
	maxRetries int
	base       time.Duration
	state      sequenceState
}

func newSequence(maxRetries int, base time.Duration) *sequence {
	return &sequence{attempt: 1, maxRetries: maxRetries, base: base, state: stateAttempting}
}

// Attempt returns the 1-based ordinal of the pending attempt.
func (s *sequence) Attempt() int { return s.attempt }

// Outcome records the result of the pending attempt and advances the state
// machine. Success is terminal regardless of ordinal; failure either schedules
// the next attempt or exhausts the sequence.
func (s *sequence) Outcome(success bool) {
	if s.state != stateAttempting {
		return
	}
	if success {
		s.state = stateSucceeded
		return
	}
	if s.attempt > s.maxRetries {
		s.state = stateExhausted
		return
	}
	s.attempt++
}

func (s *sequence) Done() bool      { return s.state != stateAttempting }
func (s *sequence) Exhausted() bool { return s.state == stateExhausted }

// Delay computes the backoff to wait before the pending attempt n:
// min(base * 2^(n-2), base*10) scaled by a random jitter factor, so retry
// storms across webhooks do not synchronize.
func (s *sequence) Delay() time.Duration {
	prev := s.attempt - 1
	if prev < 1 {
		return 0
	}
	backoff := float64(s.base) * math.Pow(2, float64(prev-1))
	if maxBackoff := float64(s.base) * backoffCapFactor; backoff > maxBackoff {
		backoff = maxBackoff
	}
	jitter := rand.Float64()*0.5 + 0.5
	return time.Duration(backoff * jitter)
}
