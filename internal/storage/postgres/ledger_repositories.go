package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
)

type transactionRepository struct {
	db *sql.DB
}

// NewTransactionRepository создаёт журнал проводок в PostgreSQL. Таблица только дополняется.
func NewTransactionRepository(store *Store) domain.TransactionRepository {
	return &transactionRepository{db: store.DB()}
}

func (r *transactionRepository) Append(tx domain.Transaction) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ledger_transactions (
			id, account_id, type, amount_minor, occurred_on,
			description, reference_id, created_by, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		tx.ID, tx.AccountID, string(tx.Type), tx.AmountMinor, tx.Date,
		tx.Description, tx.ReferenceID, tx.CreatedBy, tx.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrTransactionExists
		}
		return fmt.Errorf("insert ledger transaction: %w", err)
	}
	return nil
}

func (r *transactionRepository) ListByAccount(accountID string) ([]domain.Transaction, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, account_id, type, amount_minor, occurred_on,
		       description, reference_id, created_by, created_at
		FROM ledger_transactions
		WHERE account_id = $1
		ORDER BY occurred_on ASC, created_at ASC, id ASC
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list ledger transactions: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Transaction, 0)
	for rows.Next() {
		var (
			tx     domain.Transaction
			txType string
		)
		if err := rows.Scan(
			&tx.ID, &tx.AccountID, &txType, &tx.AmountMinor, &tx.Date,
			&tx.Description, &tx.ReferenceID, &tx.CreatedBy, &tx.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan ledger transaction: %w", err)
		}
		tx.Type = domain.TransactionType(txType)
		result = append(result, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger transactions: %w", err)
	}
	return result, nil
}

type accountRepository struct {
	db *sql.DB
}

// NewAccountRepository создаёт справочник аккаунтов в PostgreSQL.
func NewAccountRepository(store *Store) domain.AccountRepository {
	return &accountRepository{db: store.DB()}
}

// Put создаёт аккаунт или переназначает его агенту.
func (r *accountRepository) Put(account domain.Account) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, name, agent_id)
		VALUES ($1,$2,$3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, agent_id = EXCLUDED.agent_id
	`, account.ID, account.Name, account.AgentID); err != nil {
		return fmt.Errorf("upsert account: %w", err)
	}
	return nil
}

func (r *accountRepository) Get(id string) (domain.Account, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var account domain.Account
	err := r.db.QueryRowContext(ctx, `SELECT id, name, agent_id FROM accounts WHERE id = $1`, id).
		Scan(&account.ID, &account.Name, &account.AgentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Account{}, domain.ErrAccountNotFound
		}
		return domain.Account{}, fmt.Errorf("select account: %w", err)
	}
	return account, nil
}

func (r *accountRepository) ListByAgent(agentID string) ([]domain.Account, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, agent_id FROM accounts WHERE agent_id = $1 ORDER BY id
	`, agentID)
	if err != nil {
		return nil, fmt.Errorf("list accounts by agent: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Account, 0)
	for rows.Next() {
		var account domain.Account
		if err := rows.Scan(&account.ID, &account.Name, &account.AgentID); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		result = append(result, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return result, nil
}

var (
	_ domain.TransactionRepository = (*transactionRepository)(nil)
	_ domain.AccountRepository     = (*accountRepository)(nil)
)
