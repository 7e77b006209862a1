package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFake_AdvanceFiresDueWaiters(t *testing.T) {
	start := time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)

	short := f.After(time.Second)
	long := f.After(time.Minute)
	assert.Equal(t, 2, f.Waiters())

	f.Advance(2 * time.Second)

	select {
	case got := <-short:
		assert.Equal(t, start.Add(2*time.Second), got)
	default:
		t.Fatal("short waiter should have fired")
	}
	select {
	case <-long:
		t.Fatal("long waiter fired early")
	default:
	}
	assert.Equal(t, 1, f.Waiters())

	f.Advance(time.Minute)
	<-long
	assert.Equal(t, 0, f.Waiters())
}

func TestFake_AfterNonPositiveFiresImmediately(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	select {
	case <-f.After(0):
	default:
		t.Fatal("After(0) should be ready")
	}
}

func TestFake_BlockUntil(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	go func() {
		time.Sleep(5 * time.Millisecond)
		f.After(time.Hour)
	}()
	require.True(t, f.BlockUntil(1, time.Second))
	assert.False(t, f.BlockUntil(2, 20*time.Millisecond))
}

func TestFake_Set(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	ch := f.After(10 * time.Second)
	f.Set(time.Unix(10, 0))
	<-ch
	assert.Equal(t, time.Unix(10, 0), f.Now())
}
