package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestFakeClock_Advance(t *testing.T) {
	c := Fake(epoch)
	assert.Equal(t, epoch, c.Now())

	c.Advance(90 * time.Second)
	assert.Equal(t, epoch.Add(90*time.Second), c.Now())
}

func TestFakeClock_AfterFiresOnDeadline(t *testing.T) {
	c := Fake(epoch)
	ch := c.After(time.Minute)
	require.Equal(t, 1, c.Waiters())

	c.Advance(30 * time.Second)
	select {
	case <-ch:
		t.Fatal("waiter fired before its deadline")
	default:
	}

	c.Advance(30 * time.Second)
	select {
	case got := <-ch:
		assert.Equal(t, epoch.Add(time.Minute), got)
	default:
		t.Fatal("waiter did not fire at its deadline")
	}
	assert.Equal(t, 0, c.Waiters())
}

func TestFakeClock_AfterNonPositiveFiresImmediately(t *testing.T) {
	c := Fake(epoch)
	select {
	case got := <-c.After(0):
		assert.Equal(t, epoch, got)
	default:
		t.Fatal("zero-duration After should fire immediately")
	}
	assert.Equal(t, 0, c.Waiters())
}

func TestFakeClock_SetBackwardsFiresNothing(t *testing.T) {
	c := Fake(epoch)
	ch := c.After(time.Second)
	c.Set(epoch.Add(-time.Hour))
	select {
	case <-ch:
		t.Fatal("moving backwards must not fire waiters")
	default:
	}
	assert.Equal(t, 1, c.Waiters())
}

func TestReal_Now(t *testing.T) {
	before := time.Now()
	got := Real().Now()
	assert.False(t, got.Before(before))
}
