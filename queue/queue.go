package queue

import (
	"context"
	"errors"
	"sync"

	"mediaCompressor/models"
)

var ErrClosed = errors.New("queue closed")

type TaskMessage struct {
	TaskID    string           `json:"task_id"`
	TraceID   string           `json:"trace_id"`
	MediaKind models.MediaKind `json:"media_kind"`
}

type MessageHandler func(ctx context.Context, msg *TaskMessage) error

type Publisher interface {
	SendTaskMessage(ctx context.Context, msg *TaskMessage) error
	Close() error
}

type Consumer interface {
	// Consume delivers messages to handler until ctx is done or the queue is closed.
	Consume(ctx context.Context, handler MessageHandler) error
	Close() error
}

// Local is an in-process queue. Every message is received by exactly one consumer.
type Local struct {
	ch        chan *TaskMessage
	done      chan struct{}
	closeOnce sync.Once
}

func NewLocal(size int) *Local {
	if size <= 0 {
		size = 128
	}
	return &Local{
		ch:   make(chan *TaskMessage, size),
		done: make(chan struct{}),
	}
}

func (q *Local) SendTaskMessage(ctx context.Context, msg *TaskMessage) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}

	select {
	case q.ch <- msg:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Local) Consume(ctx context.Context, handler MessageHandler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.done:
			return nil
		case msg := <-q.ch:
			handler(ctx, msg)
		}
	}
}

// Depth returns the number of queued messages.
func (q *Local) Depth() int {
	return len(q.ch)
}

func (q *Local) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}
