package gorillaws

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponentialBackoffGrowsToCap(t *testing.T) {
	r := &ExponentialBackoffRetryer{
		InitialDelay: time.Second,
		MaxDelay:     8 * time.Second,
		Multiplier:   2.0,
	}

	want := []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		8 * time.Second,
	}
	for attempt, expected := range want {
		delay, ok := r.NextDelay(attempt, nil)
		require.True(t, ok)
		assert.Equal(t, expected, delay, "attempt %d", attempt)
	}
}

func TestExponentialBackoffMaxRetries(t *testing.T) {
	r := &ExponentialBackoffRetryer{
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		MaxRetries:   3,
	}

	for attempt := 0; attempt < 3; attempt++ {
		_, ok := r.NextDelay(attempt, nil)
		assert.True(t, ok)
	}
	_, ok := r.NextDelay(3, nil)
	assert.False(t, ok)
}

func TestExponentialBackoffJitterStaysInBand(t *testing.T) {
	r := &ExponentialBackoffRetryer{
		InitialDelay: time.Second,
		MaxDelay:     time.Minute,
		Multiplier:   2.0,
		JitterFactor: 0.3,
	}

	for i := 0; i < 100; i++ {
		delay, ok := r.NextDelay(2, nil)
		require.True(t, ok)
		base := 4 * time.Second
		assert.GreaterOrEqual(t, delay, time.Duration(float64(base)*0.7))
		assert.LessOrEqual(t, delay, time.Duration(float64(base)*1.3))
	}
}

func TestDefaultRetryerSchedule(t *testing.T) {
	r := NewExponentialBackoffRetryer()
	assert.Equal(t, time.Second, r.InitialDelay)
	assert.Equal(t, 30*time.Second, r.MaxDelay)
	assert.Zero(t, r.MaxRetries)
}
