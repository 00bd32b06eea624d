package prompt

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrUnknownPrompt = errors.New("unknown or already answered prompt")

// Pending is a question waiting for an answer through Queue.Answer.
type Pending struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Request   Request   `json:"request"`
	CreatedAt time.Time `json:"created_at"`

	answer chan string
}

// Queue is a Prompter answered from outside, typically the control API.
// PixelCount blocks until Answer is called, the context ends or the timeout
// elapses.
type Queue struct {
	mu      sync.Mutex
	pending map[string]*Pending
	timeout time.Duration

	// OnPending, when set, is called for every new question.
	OnPending func(p Pending)
}

func NewQueue(timeout time.Duration) *Queue {
	return &Queue{
		pending: make(map[string]*Pending),
		timeout: timeout,
	}
}

func (q *Queue) PixelCount(ctx context.Context, req Request) (string, error) {
	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	p := &Pending{
		ID:        uuid.NewString(),
		Message:   req.Message(),
		Request:   req,
		CreatedAt: time.Now(),
		answer:    make(chan string, 1),
	}

	q.mu.Lock()
	q.pending[p.ID] = p
	q.mu.Unlock()

	slog.Info("Waiting for pixel count", slog.String("prompt", p.ID), slog.String("row", req.Row), slog.String("col", req.Col), slog.Int("available", req.Available))
	if q.OnPending != nil {
		q.OnPending(*p)
	}

	select {
	case v := <-p.answer:
		return v, nil
	case <-ctx.Done():
	}

	q.mu.Lock()
	_, open := q.pending[p.ID]
	delete(q.pending, p.ID)
	q.mu.Unlock()
	if !open {
		// Answer already took the prompt and reported success
		return <-p.answer, nil
	}
	return "", ctx.Err()
}

// Answer delivers value to the pending prompt id. It returns
// ErrUnknownPrompt once the prompt has been answered or has given up.
func (q *Queue) Answer(id string, value string) error {
	q.mu.Lock()
	p, ok := q.pending[id]
	if ok {
		delete(q.pending, id)
	}
	q.mu.Unlock()
	if !ok {
		return ErrUnknownPrompt
	}
	p.answer <- value
	return nil
}

// List returns the open prompts, oldest first.
func (q *Queue) List() []Pending {
	q.mu.Lock()
	list := make([]Pending, 0, len(q.pending))
	for _, p := range q.pending {
		list = append(list, *p)
	}
	q.mu.Unlock()
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	return list
}
