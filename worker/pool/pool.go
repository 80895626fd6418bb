package pool

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"mediaCompressor/queue"
)

// WorkerPool runs at most maxWorkers handlers at a time, one task per worker.
type WorkerPool struct {
	sem    chan struct{}
	wg     sync.WaitGroup
	logger *zap.Logger
}

func NewWorkerPool(maxWorkers int, logger *zap.Logger) *WorkerPool {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	return &WorkerPool{
		sem:    make(chan struct{}, maxWorkers),
		logger: logger.Named("pool"),
	}
}

// Submit blocks until a worker is free and then runs handler on it. The blocking keeps
// consumers from pulling more messages than the pool can work on.
func (p *WorkerPool) Submit(ctx context.Context, msg *queue.TaskMessage, handler queue.MessageHandler) error {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() { <-p.sem }()

		if err := handler(ctx, msg); err != nil {
			p.logger.Error("Task handler failed",
				zap.String("task_id", msg.TaskID),
				zap.String("trace_id", msg.TraceID),
				zap.Error(err),
			)
		}
	}()
	return nil
}

// Handler adapts the pool to a queue consumer.
func (p *WorkerPool) Handler(handler queue.MessageHandler) queue.MessageHandler {
	return func(ctx context.Context, msg *queue.TaskMessage) error {
		return p.Submit(ctx, msg, handler)
	}
}

func (p *WorkerPool) Wait() {
	p.wg.Wait()
}
