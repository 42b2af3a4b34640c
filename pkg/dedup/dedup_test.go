package dedup

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type stepClock struct{ t time.Time }

func (c *stepClock) now() time.Time { return c.t }

func TestRememberExpiresAfterTTL(t *testing.T) {
	c := &stepClock{t: time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)}
	d := New(time.Minute, 10).WithClock(c.now)

	d.Remember("V001|c1")
	assert.True(t, d.Seen("V001|c1"))
	assert.False(t, d.Seen("V002|c1"))

	c.t = c.t.Add(61 * time.Second)
	assert.False(t, d.Seen("V001|c1"), "entry should expire after the TTL")
	d.Remember("V001|c1")
	assert.True(t, d.Seen("V001|c1"))
}

func TestEmptyIDIsNeverRemembered(t *testing.T) {
	d := New(time.Minute, 10)
	d.Remember("")
	assert.False(t, d.Seen(""))
	assert.Equal(t, 0, d.Len())
}

func TestSeenDoesNotRecord(t *testing.T) {
	d := New(time.Minute, 10)
	assert.False(t, d.Seen("x"))
	assert.False(t, d.Seen("x"))
	d.Remember("x")
	assert.True(t, d.Seen("x"))
}

func TestCapacityBound(t *testing.T) {
	c := &stepClock{t: time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)}
	d := New(time.Hour, 5).WithClock(c.now)
	for i := 0; i < 20; i++ {
		c.t = c.t.Add(time.Second)
		d.Remember(fmt.Sprintf("id-%d", i))
	}
	assert.Equal(t, 5, d.Len())
	assert.True(t, d.Seen("id-19"), "newest entry must survive eviction")
	assert.False(t, d.Seen("id-0"), "oldest entry should be evicted first")
}
