package log

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBroadcasterFanOut(t *testing.T) {
	b := NewBroadcaster()
	a := b.Subscribe()
	c := b.Subscribe()
	assert.Equal(t, 2, b.Subscribers())

	n, err := b.Write([]byte("hello\n"))
	assert.NoError(t, err)
	assert.Equal(t, 6, n)

	assert.Equal(t, "hello\n", string(<-a))
	assert.Equal(t, "hello\n", string(<-c))

	b.Unsubscribe(a)
	b.Unsubscribe(a)
	assert.Equal(t, 1, b.Subscribers())
	_, ok := <-a
	assert.False(t, ok)
}

func TestBroadcasterDropsSlowSubscriber(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe()
	for i := 0; i < cap(ch)+10; i++ {
		_, _ = b.Write([]byte("x"))
	}
	assert.Len(t, ch, cap(ch))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("whatever"))
}
