package postgres

import (
	"context"
	"database/sql/driver"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
)

const (
	// orderLockNamespace — первый ключ двухключевого advisory lock; второй — hashtext(order_id).
	// Отличается от migrationLockKey, чтобы блокировки заказов не пересекались с миграциями.
	orderLockNamespace = int32(20260418)

	// maxHeldOrderLocks ограничивает число соединений, занятых под блокировки,
	// чтобы репозиториям всегда оставалась часть пула.
	maxHeldOrderLocks = defaultMaxOpenConns / 2
)

// OrderLocker сериализует изменения заказа между репликами через pg_advisory_lock.
// Блокировка сессионная, поэтому держится на выделенном соединении до unlock.
type OrderLocker struct {
	store  *Store
	slots  chan struct{}
	logger *log.Entry
}

// NewOrderLocker создаёт блокировщик заказов поверх пула store.
func NewOrderLocker(store *Store, logger *log.Entry) *OrderLocker {
	if logger == nil {
		logger = log.New().WithField("component", "order-locker")
	}
	return &OrderLocker{
		store:  store,
		slots:  make(chan struct{}, maxHeldOrderLocks),
		logger: logger,
	}
}

// LockOrder ждёт advisory lock заказа; ожидание прерывается отменой ctx.
func (l *OrderLocker) LockOrder(ctx context.Context, orderID string) (func(), error) {
	if l.store == nil || l.store.db == nil {
		return nil, errStoreNotInitialized
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	select {
	case l.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	conn, err := l.store.db.Conn(ctx)
	if err != nil {
		<-l.slots
		return nil, fmt.Errorf("acquire db connection: %w", err)
	}

	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1, hashtext($2))", orderLockNamespace, orderID); err != nil {
		// Соединение могло остаться в неизвестном состоянии после отмены запроса.
		_ = conn.Raw(func(any) error { return driver.ErrBadConn })
		_ = conn.Close()
		<-l.slots
		return nil, fmt.Errorf("acquire order lock: %w", err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			unlockCtx, cancel := context.WithTimeout(context.Background(), opTimeout)
			defer cancel()

			var released bool
			err := conn.QueryRowContext(unlockCtx, "SELECT pg_advisory_unlock($1, hashtext($2))", orderLockNamespace, orderID).Scan(&released)
			if err != nil || !released {
				l.logger.WithError(err).WithField("order_id", orderID).Error("order lock release failed, dropping connection")
				// Сессия с неснятой блокировкой не должна вернуться в пул.
				_ = conn.Raw(func(any) error { return driver.ErrBadConn })
			}
			_ = conn.Close()
			<-l.slots
		})
	}, nil
}

var _ domain.OrderLocker = (*OrderLocker)(nil)
