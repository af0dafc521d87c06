package inventory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
)

// MockService — конфигурируемая заглушка InventoryService для тестов.
type MockService struct {
	mu sync.Mutex

	ReserveErr error
	ReleaseErr error

	ReserveCalls int
	ReleaseCalls int
}

// NewMockService возвращает mock с успешным сценарием по умолчанию.
func NewMockService() *MockService {
	return &MockService{}
}

// ReserveOrder возвращает заранее настроенную ошибку и считает вызовы.
func (m *MockService) ReserveOrder(_ context.Context, orderID string, items []domain.OrderItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReserveCalls++
	return m.ReserveErr
}

// ReleaseOrder возвращает заранее настроенную ошибку и считает вызовы.
func (m *MockService) ReleaseOrder(_ context.Context, orderID string, items []domain.OrderItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReleaseCalls++
	return m.ReleaseErr
}

// Calls возвращает счётчики вызовов.
func (m *MockService) Calls() (reserve, release int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ReserveCalls, m.ReleaseCalls
}

var _ domain.InventoryService = (*MockService)(nil)
