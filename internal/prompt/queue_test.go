package prompt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueAnswer(t *testing.T) {
	q := NewQueue(time.Second)
	created := make(chan Pending, 1)
	q.OnPending = func(p Pending) { created <- p }

	type result struct {
		v   string
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := q.PixelCount(context.Background(), Request{Row: "7", Col: "2", Available: 3})
		done <- result{v, err}
	}()

	p := <-created
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, 3, p.Request.Available)
	assert.Contains(t, p.Message, "server says: 3")

	list := q.List()
	require.Len(t, list, 1)
	assert.Equal(t, p.ID, list[0].ID)

	require.NoError(t, q.Answer(p.ID, "2"))
	r := <-done
	require.NoError(t, r.err)
	assert.Equal(t, "2", r.v)

	assert.Empty(t, q.List())
	assert.ErrorIs(t, q.Answer(p.ID, "2"), ErrUnknownPrompt)
}

func TestQueueTimeout(t *testing.T) {
	q := NewQueue(20 * time.Millisecond)
	_, err := q.PixelCount(context.Background(), Request{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, q.List())
}

func TestQueueContextCanceled(t *testing.T) {
	q := NewQueue(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := q.PixelCount(ctx, Request{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQueueUnknown(t *testing.T) {
	q := NewQueue(time.Second)
	assert.ErrorIs(t, q.Answer("nope", "1"), ErrUnknownPrompt)
}

func TestQueueAnswerRacingCancel(t *testing.T) {
	for i := 0; i < 200; i++ {
		q := NewQueue(0)
		created := make(chan Pending, 1)
		q.OnPending = func(p Pending) { created <- p }

		ctx, cancel := context.WithCancel(context.Background())
		type result struct {
			v   string
			err error
		}
		done := make(chan result, 1)
		go func() {
			v, err := q.PixelCount(ctx, Request{})
			done <- result{v, err}
		}()

		p := <-created
		answered := make(chan error, 1)
		go func() { answered <- q.Answer(p.ID, "5") }()
		cancel()

		r := <-done
		if err := <-answered; err == nil {
			require.NoError(t, r.err, "accepted answer was dropped")
			assert.Equal(t, "5", r.v)
		} else {
			assert.ErrorIs(t, err, ErrUnknownPrompt)
			assert.ErrorIs(t, r.err, context.Canceled)
		}
		assert.Empty(t, q.List())
	}
}
