package usecases

import "context"

// RateLimiter: ограничитель нагрузки на семафоре.
// Не дает запустить больше N тяжелых запросов к базе одновременно.
type RateLimiter struct {
	semaphore     chan struct{}
	maxConcurrent int
}

// NewRateLimiter создает ограничитель с буфером на maxConcurrent запросов.
func NewRateLimiter(maxConcurrent int) *RateLimiter {
	if maxConcurrent < 1 {
		maxConcurrent = 10
	}
	return &RateLimiter{
		semaphore:     make(chan struct{}, maxConcurrent),
		maxConcurrent: maxConcurrent,
	}
}

// Acquire ждет свободный слот или отмену контекста.
func (rl *RateLimiter) Acquire(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case rl.semaphore <- struct{}{}:
		return nil
	}
}

// Release освобождает слот.
func (rl *RateLimiter) Release() {
	select {
	case <-rl.semaphore:
	default:
		// Защита от освобождения пустого семафора
	}
}

// withSlot выполняет fn, удерживая слот ограничителя.
func withSlot[T any](ctx context.Context, rl *RateLimiter, fn func() (T, error)) (T, error) {
	if err := rl.Acquire(ctx); err != nil {
		var zero T
		return zero, err
	}
	defer rl.Release()
	return fn()
}
