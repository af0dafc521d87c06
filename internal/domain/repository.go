package domain

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ErrConcurrencyConflict, если ID уже занят.
	Create(order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound.
	Get(id string) (Order, error)
	// ListByAccount возвращает заказы аккаунта, новые первыми; limit<=0 без ограничения.
	ListByAccount(accountID string, limit int) ([]Order, error)
	// Save записывает заказ, только если версия в хранилище совпадает с order.Version.
	Save(order Order) error
}

// VariantRepository хранит варианты товаров и их остатки.
type VariantRepository interface {
	Create(variant ProductVariant) error
	Get(id string) (ProductVariant, error)
	// AdjustStock атомарно меняет остаток на delta сетов.
	// Уменьшение применяется только при stock >= -delta, иначе *InsufficientStockError.
	AdjustStock(id string, delta int32) (ProductVariant, error)
}

// TransactionRepository — журнал проводок, только добавление.
type TransactionRepository interface {
	// Append возвращает ErrTransactionExists при повторном ID.
	Append(tx Transaction) error
	// ListByAccount возвращает проводки в хронологическом порядке.
	ListByAccount(accountID string) ([]Transaction, error)
}

// AccountRepository хранит привязку аккаунтов к агентам.
type AccountRepository interface {
	Put(account Account) error
	Get(id string) (Account, error)
	ListByAgent(agentID string) ([]Account, error)
}
