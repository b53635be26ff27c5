package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/tgvault/internal/domain/model"
)

type fakeSession struct {
	state model.SessionState
	last  time.Time
	locks int
}

func (f *fakeSession) State() model.SessionState { return f.state }
func (f *fakeSession) LastActivity() time.Time   { return f.last }
func (f *fakeSession) Lock() {
	f.locks++
	f.state = model.StateLocked
}

func TestIdleLocker_Check(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	sess := &fakeSession{state: model.StateUnlocked, last: now}
	l := NewIdleLocker(sess, 5*time.Minute)
	l.now = func() time.Time { return now }

	assert.False(t, l.check())

	now = now.Add(4*time.Minute + 59*time.Second)
	assert.False(t, l.check())

	now = now.Add(time.Second)
	assert.True(t, l.check())
	assert.Equal(t, 1, sess.locks)

	assert.False(t, l.check(), "already locked")
	assert.Equal(t, 1, sess.locks)
}

func TestIdleLocker_Interval(t *testing.T) {
	assert.Equal(t, 30*time.Second, NewIdleLocker(&fakeSession{}, 5*time.Minute).interval)
	assert.Equal(t, time.Second, NewIdleLocker(&fakeSession{}, 3*time.Second).interval)
	assert.Equal(t, DefaultIdleTimeout, NewIdleLocker(&fakeSession{}, 0).timeout)
}

func TestIdleLocker_LocksRealVault(t *testing.T) {
	v, _, clock := newUnlockedVault(t)
	l := NewIdleLocker(v, time.Minute)
	l.now = clock.Now

	clock.Advance(30 * time.Second)
	assert.False(t, l.check())

	mustAdd(t, v, "X", "u", "p")
	clock.Advance(45 * time.Second)
	assert.False(t, l.check(), "activity resets the timer")

	clock.Advance(15 * time.Second)
	require.True(t, l.check())
	assert.Equal(t, model.StateLocked, v.State())
}

func TestIdleLocker_StartStops(t *testing.T) {
	l := NewIdleLocker(&fakeSession{}, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		l.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("idle locker did not stop")
	}
}
