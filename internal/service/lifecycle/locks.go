package lifecycle

import (
	"context"
	"fmt"
	"sync"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
)

// localOrderLocks — блокировки заказов внутри одного процесса. Подходит для
// memory-хранилища; при нескольких репликах нужен распределённый OrderLocker.
type localOrderLocks struct {
	mu    sync.Mutex
	locks map[string]*orderLock
}

type orderLock struct {
	sem  chan struct{}
	refs int
}

func newLocalOrderLocks() *localOrderLocks {
	return &localOrderLocks{locks: make(map[string]*orderLock)}
}

// LockOrder ждёт блокировку заказа или отмену ctx.
func (l *localOrderLocks) LockOrder(ctx context.Context, orderID string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	lock, ok := l.locks[orderID]
	if !ok {
		lock = &orderLock{sem: make(chan struct{}, 1)}
		l.locks[orderID] = lock
	}
	lock.refs++
	l.mu.Unlock()

	select {
	case lock.sem <- struct{}{}:
	case <-ctx.Done():
		l.forget(orderID, lock)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-lock.sem
			l.forget(orderID, lock)
		})
	}, nil
}

// forget убирает запись, когда её больше никто не ждёт и не держит.
func (l *localOrderLocks) forget(orderID string, lock *orderLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, orderID)
	}
}

// size нужен тестам: записи не должны копиться после освобождения.
func (l *localOrderLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// withOrderLock выполняет fn, удерживая блокировку заказа.
func (s *Service) withOrderLock(ctx context.Context, orderID string, fn func() error) error {
	unlock, err := s.locker.LockOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("lock order %s: %w", orderID, err)
	}
	defer unlock()
	return fn()
}

var _ domain.OrderLocker = (*localOrderLocks)(nil)
