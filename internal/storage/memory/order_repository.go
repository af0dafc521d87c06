package memory

import (
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
)

// OrderRepository — заказы в памяти с индексом по аккаунту. Снимки хранятся
// копиями: ни Create, ни Get не делят срезы позиций с вызывающим.
type OrderRepository struct {
	mu sync.RWMutex
	// orders — последняя сохранённая версия заказа.
	orders map[string]domain.Order
	// byAccount — ID заказов аккаунта, новые первыми.
	byAccount map[string][]string
}

// NewOrderRepository создаёт хранилище заказов в памяти.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		orders:    make(map[string]domain.Order),
		byAccount: make(map[string][]string),
	}
}

func (r *OrderRepository) Create(order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[order.ID]; exists {
		return domain.ErrOrderVersionConflict
	}
	r.orders[order.ID] = order.Clone()
	r.index(order)
	return nil
}

// index вставляет заказ в список аккаунта, сохраняя порядок «новые первыми».
func (r *OrderRepository) index(order domain.Order) {
	ids := r.byAccount[order.AccountID]
	pos := sort.Search(len(ids), func(i int) bool {
		return r.newerFirst(order, r.orders[ids[i]])
	})
	ids = append(ids, "")
	copy(ids[pos+1:], ids[pos:])
	ids[pos] = order.ID
	r.byAccount[order.AccountID] = ids
}

func (r *OrderRepository) newerFirst(a, b domain.Order) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func (r *OrderRepository) Get(id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order.Clone(), nil
}

func (r *OrderRepository) ListByAccount(accountID string, limit int) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byAccount[accountID]
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	result := make([]domain.Order, 0, len(ids))
	for _, id := range ids {
		result = append(result, r.orders[id].Clone())
	}
	return result, nil
}

// Save заменяет заказ при совпадении версии. Аккаунт, позиции и момент
// создания фиксируются при Create и берутся из хранилища.
func (r *OrderRepository) Save(order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.orders[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if current.Version != order.Version {
		return domain.ErrOrderVersionConflict
	}

	next := order.Clone()
	next.AccountID = current.AccountID
	next.Items = current.Items
	next.CreatedAt = current.CreatedAt
	next.Version++
	r.orders[order.ID] = next
	return nil
}

var _ domain.OrderRepository = (*OrderRepository)(nil)
