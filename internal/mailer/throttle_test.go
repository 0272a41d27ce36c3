package mailer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewThrottleDisabled(t *testing.T) {
	assert.Nil(t, NewThrottle(0))
	assert.Nil(t, NewThrottle(-3))

	var th *Throttle
	assert.NoError(t, th.Wait(context.Background()))
}

func TestThrottleWindow(t *testing.T) {
	th := NewThrottle(2)
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	now := start
	th.now = func() time.Time { return now }

	_, ok := th.reserve()
	require.True(t, ok)
	now = now.Add(10 * time.Second)
	_, ok = th.reserve()
	require.True(t, ok)

	now = now.Add(10 * time.Second)
	wait, ok := th.reserve()
	require.False(t, ok)
	assert.Equal(t, 40*time.Second, wait, "first slot frees one minute after it was taken")

	now = start.Add(time.Minute + time.Second)
	_, ok = th.reserve()
	assert.True(t, ok)
}

func TestThrottleWaitHonoursContext(t *testing.T) {
	th := NewThrottle(1)
	require.NoError(t, th.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, th.Wait(ctx), context.DeadlineExceeded)
}

func TestMailerThrottleFailureIsTransport(t *testing.T) {
	ft := &fakeTransport{}
	m := New(Config{FromAddress: "from@example.com", RatePerMinute: 1}, ft)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	first := m.Send(ctx, Message{To: "a@example.com", Subject: "s", Body: "b"})
	require.True(t, first.OK())

	second := m.Send(ctx, Message{To: "b@example.com", Subject: "s", Body: "b"})
	require.False(t, second.OK())
	assert.Equal(t, KindTransport, second.Kind)
	assert.Len(t, ft.sent, 1)
}

func TestThrottleLargeLimitAllocatesLazily(t *testing.T) {
	th := NewThrottle(2_000_000_000)
	require.NotNil(t, th)
	assert.Zero(t, cap(th.timestamps))

	require.NoError(t, th.Wait(context.Background()))
	assert.Len(t, th.timestamps, 1)
}
