package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSequenceExhaustsAfterMaxRetries(t *testing.T) {
	seq := newSequence(2, time.Millisecond)

	assert.Equal(t, 1, seq.Attempt())
	seq.Outcome(false)
	assert.False(t, seq.Done())
	assert.Equal(t, 2, seq.Attempt())

	seq.Outcome(false)
	assert.False(t, seq.Done())
	assert.Equal(t, 3, seq.Attempt())

	seq.Outcome(false)
	assert.True(t, seq.Done())
	assert.True(t, seq.Exhausted())
}

func TestSequenceSuccessIsTerminal(t *testing.T) {
	seq := newSequence(3, time.Millisecond)
	seq.Outcome(false)
	seq.Outcome(true)

	assert.True(t, seq.Done())
	assert.False(t, seq.Exhausted())
	// Terminal states do not advance
	seq.Outcome(false)
	assert.Equal(t, 2, seq.Attempt())
	assert.False(t, seq.Exhausted())
}

func TestSequenceZeroRetries(t *testing.T) {
	seq := newSequence(0, time.Millisecond)
	seq.Outcome(false)
	assert.True(t, seq.Exhausted())
	assert.Equal(t, 1, seq.Attempt())
}

func TestDelayGrowsExponentiallyWithJitter(t *testing.T) {
	base := 100 * time.Millisecond
	for i := 0; i < 100; i++ {
		seq := newSequence(10, base)
		seq.Outcome(false) // pending attempt 2: backoff from base*2^0
		d := seq.Delay()
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 100*time.Millisecond)

		seq.Outcome(false) // pending attempt 3: backoff from base*2^1
		d = seq.Delay()
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 200*time.Millisecond)
	}
}

func TestDelayCappedAtTenTimesBase(t *testing.T) {
	base := 10 * time.Millisecond
	seq := newSequence(20, base)
	for i := 0; i < 10; i++ {
		seq.Outcome(false)
	}
	// 2^9 would be far beyond the cap
	for i := 0; i < 100; i++ {
		d := seq.Delay()
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 100*time.Millisecond)
	}
}
