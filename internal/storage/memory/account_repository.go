package memory

import (
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
)

type accountRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Account
}

// NewAccountRepository создаёт in-memory справочник аккаунтов.
func NewAccountRepository() domain.AccountRepository {
	return &accountRepositoryInMemory{items: make(map[string]domain.Account)}
}

// Put создаёт или обновляет аккаунт (в том числе переназначение агента).
func (r *accountRepositoryInMemory) Put(account domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[account.ID] = account
	return nil
}

func (r *accountRepositoryInMemory) Get(id string) (domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.items[id]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return account, nil
}

func (r *accountRepositoryInMemory) ListByAgent(agentID string) ([]domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Account, 0)
	for _, account := range r.items {
		if account.AgentID == agentID {
			result = append(result, account)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

var _ domain.AccountRepository = (*accountRepositoryInMemory)(nil)
