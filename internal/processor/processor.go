package processor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/paulohenriquevn/lovedcrm-sub002/internal/domain"
)

const handlerTimeout = 10 * time.Second

// EventProcessor implements domain.EventPublisher with a bounded queue and a worker pool.
// Every subscriber sees every event; ordering across workers is not preserved.
type EventProcessor struct {
	workers int
	queue   chan domain.Event
	wg      sync.WaitGroup
	logger  *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc

	mu       sync.RWMutex
	handlers []domain.EventHandler
	stopped  bool

	// Shutdown management
	shutdownOnce sync.Once
}

// NewEventProcessor creates a processor; Start must be called before events are handled.
func NewEventProcessor(workers int, queueSize int, logger *zap.Logger) *EventProcessor {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 100
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &EventProcessor{
		workers: workers,
		queue:   make(chan domain.Event, queueSize),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Subscribe registers h for all subsequent events.
func (p *EventProcessor) Subscribe(h domain.EventHandler) {
	p.mu.Lock()
	p.handlers = append(p.handlers, h)
	p.mu.Unlock()
}

// Start starts the worker pool
func (p *EventProcessor) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	p.logger.Info("event processor started",
		zap.Int("workers", p.workers),
		zap.Int("queue_size", cap(p.queue)),
	)
}

// Stop closes the queue and waits for workers to drain what is already queued.
func (p *EventProcessor) Stop() {
	p.shutdownOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		close(p.queue)
		p.mu.Unlock()

		p.wg.Wait()
		p.cancel()

		p.logger.Info("event processor stopped")
	})
}

// Publish enqueues event without blocking. When the queue is full or the processor is
// stopped the event is dropped and logged; the caller's write has already succeeded and
// affected cache entries expire by TTL.
func (p *EventProcessor) Publish(ctx context.Context, event domain.Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		p.logger.Warn("event dropped: processor stopped",
			zap.String("category", string(event.Category)),
			zap.String("organization_id", event.OrganizationID),
		)
		return
	}

	select {
	case p.queue <- event:
	default:
		p.logger.Warn("event dropped: queue full",
			zap.String("category", string(event.Category)),
			zap.String("organization_id", event.OrganizationID),
			zap.String("entity_id", event.EntityID),
		)
	}
}

// worker processes events from the queue until it is closed
func (p *EventProcessor) worker(id int) {
	defer p.wg.Done()

	p.logger.Debug("worker started", zap.Int("worker_id", id))

	for event := range p.queue {
		p.dispatch(id, event)
	}

	p.logger.Debug("worker stopping due to closed queue", zap.Int("worker_id", id))
}

func (p *EventProcessor) dispatch(workerID int, event domain.Event) {
	p.mu.RLock()
	handlers := make([]domain.EventHandler, len(p.handlers))
	copy(handlers, p.handlers)
	p.mu.RUnlock()

	for _, h := range handlers {
		p.runHandler(workerID, h, event)
	}
}

func (p *EventProcessor) runHandler(workerID int, h domain.EventHandler, event domain.Event) {
	ctx, cancel := context.WithTimeout(p.ctx, handlerTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("event handler panicked",
				zap.Int("worker_id", workerID),
				zap.String("category", string(event.Category)),
				zap.Any("panic", r),
			)
		}
	}()

	start := time.Now()
	h(ctx, event)

	p.logger.Debug("event handled",
		zap.Int("worker_id", workerID),
		zap.String("category", string(event.Category)),
		zap.String("organization_id", event.OrganizationID),
		zap.Duration("duration", time.Since(start)),
	)
}

// Verify that EventProcessor implements domain.EventPublisher interface
var _ domain.EventPublisher = (*EventProcessor)(nil)
