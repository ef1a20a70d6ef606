package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealClock_Now(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", now, before, after)
	}
}

func TestRealClock_Since(t *testing.T) {
	clock := RealClock{}
	past := time.Now().Add(-time.Second)
	if d := clock.Since(past); d < time.Second {
		t.Errorf("Since() returned %v, expected >= 1s", d)
	}
}

func TestRealClock_Ticker(t *testing.T) {
	clock := RealClock{}
	ticker := clock.NewTicker(time.Millisecond)
	defer ticker.Stop()

	select {
	case <-ticker.C():
	case <-time.After(time.Second):
		t.Fatal("ticker did not fire")
	}
}

func TestMockClock_AdvanceAndSince(t *testing.T) {
	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)

	clock.Advance(1500 * time.Millisecond)
	assert.Equal(t, start.Add(1500*time.Millisecond), clock.Now())
	assert.Equal(t, 1500*time.Millisecond, clock.Since(start))

	clock.Set(start)
	assert.Equal(t, start, clock.Now())
}

func TestMockClock_TickerFiresOnAdvance(t *testing.T) {
	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)
	ticker := clock.NewTicker(100 * time.Millisecond)

	clock.Advance(50 * time.Millisecond)
	select {
	case <-ticker.C():
		t.Fatal("ticker fired early")
	default:
	}

	clock.Advance(50 * time.Millisecond)
	select {
	case got := <-ticker.C():
		assert.Equal(t, start.Add(100*time.Millisecond), got)
	default:
		t.Fatal("ticker did not fire at its deadline")
	}

	ticker.Stop()
	clock.Advance(time.Second)
	select {
	case <-ticker.C():
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestMockTicker_TriggerDropsWhenFull(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	ticker, ok := clock.NewTicker(time.Second).(*MockTicker)
	require.True(t, ok)

	ticker.Trigger(time.Unix(1, 0))
	ticker.Trigger(time.Unix(2, 0))

	got := <-ticker.C()
	assert.Equal(t, time.Unix(1, 0), got)
}
