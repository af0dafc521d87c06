package memory

import (
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
)

type transactionRepositoryInMemory struct {
	mu        sync.RWMutex
	ids       map[string]struct{}
	byAccount map[string][]domain.Transaction
}

// NewTransactionRepository создаёт in-memory журнал проводок.
func NewTransactionRepository() domain.TransactionRepository {
	return &transactionRepositoryInMemory{
		ids:       make(map[string]struct{}),
		byAccount: make(map[string][]domain.Transaction),
	}
}

func (r *transactionRepositoryInMemory) Append(tx domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.ids[tx.ID]; exists {
		return domain.ErrTransactionExists
	}
	r.ids[tx.ID] = struct{}{}

	list := append(r.byAccount[tx.AccountID], tx)
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Date.Before(list[j].Date)
	})
	r.byAccount[tx.AccountID] = list
	return nil
}

func (r *transactionRepositoryInMemory) ListByAccount(accountID string) ([]domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.byAccount[accountID]
	result := make([]domain.Transaction, len(list))
	copy(result, list)
	return result, nil
}

var _ domain.TransactionRepository = (*transactionRepositoryInMemory)(nil)
