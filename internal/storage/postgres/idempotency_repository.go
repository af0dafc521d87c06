package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
)

// commandJournal хранит журнал команд API в таблице api_commands.
type commandJournal struct {
	db  *sql.DB
	now func() time.Time
}

// NewIdempotencyRepository создаёт журнал команд API поверх PostgreSQL.
func NewIdempotencyRepository(store *Store) domain.IdempotencyRepository {
	return &commandJournal{
		db:  store.DB(),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Claim вставляет запись или перезанимает просроченную одним запросом.
func (j *commandJournal) Claim(claim domain.CommandClaim) (domain.CommandRecord, error) {
	now := j.now()
	claim, err := claim.Normalize(now)
	if err != nil {
		return domain.CommandRecord{}, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := j.db.ExecContext(ctx, `
		INSERT INTO api_commands (idempotency_key, method, request_hash, state, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (idempotency_key) DO UPDATE
		SET method = EXCLUDED.method,
			request_hash = EXCLUDED.request_hash,
			state = EXCLUDED.state,
			outcome_code = 0,
			outcome_message = '',
			order_id = '',
			response = NULL,
			expires_at = EXCLUDED.expires_at,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at
		WHERE api_commands.expires_at <= EXCLUDED.created_at
	`, claim.Key, claim.Method, claim.RequestHash, string(domain.CommandStateRunning), claim.ExpiresAt, now)
	if err != nil {
		return domain.CommandRecord{}, fmt.Errorf("claim command %s: %w", claim.Key, err)
	}
	claimed, err := res.RowsAffected()
	if err != nil {
		return domain.CommandRecord{}, fmt.Errorf("rows affected: %w", err)
	}
	if claimed == 1 {
		return claim.Record(now), nil
	}

	existing, err := j.Get(claim.Key)
	if err != nil {
		return domain.CommandRecord{}, fmt.Errorf("load claimed command %s: %w", claim.Key, err)
	}
	return existing, existing.ConflictWith(claim)
}

func (j *commandJournal) Get(key string) (domain.CommandRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.CommandRecord{}, domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		record domain.CommandRecord
		state  string
		code   int64
	)
	err := j.db.QueryRowContext(ctx, `
		SELECT idempotency_key, method, request_hash, state, outcome_code, outcome_message,
			order_id, response, expires_at, created_at, updated_at
		FROM api_commands
		WHERE idempotency_key = $1
	`, key).Scan(
		&record.Key, &record.Method, &record.RequestHash, &state, &code, &record.Outcome.Message,
		&record.Outcome.OrderID, &record.Outcome.Response, &record.ExpiresAt, &record.CreatedAt, &record.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CommandRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	if err != nil {
		return domain.CommandRecord{}, fmt.Errorf("get command %s: %w", key, err)
	}

	record.State = domain.CommandState(state)
	if !record.State.Valid() {
		return domain.CommandRecord{}, fmt.Errorf("command %s has unknown state %q", key, state)
	}
	if code < 0 {
		return domain.CommandRecord{}, fmt.Errorf("command %s has negative outcome code %d", key, code)
	}
	record.Outcome.Code = uint32(code) //nolint:gosec // gRPC codes are small non-negative values.
	return record, nil
}

func (j *commandJournal) Settle(key string, outcome domain.CommandOutcome) error {
	return j.execOnRunning(key, "settle", `
		UPDATE api_commands
		SET state = $2, outcome_code = $3, outcome_message = $4, order_id = $5, response = $6, updated_at = $7
		WHERE idempotency_key = $1 AND state = 'running'
	`, string(domain.CommandStateSettled), int64(outcome.Code), outcome.Message, outcome.OrderID, outcome.Response, j.now())
}

func (j *commandJournal) Abandon(key string) error {
	return j.execOnRunning(key, "abandon", `
		DELETE FROM api_commands WHERE idempotency_key = $1 AND state = 'running'
	`)
}

// DeleteExpired удаляет не более limit просроченных записей, начиная с самых старых; limit<=0 снимает ограничение.
func (j *commandJournal) DeleteExpired(before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = j.now()
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query := `DELETE FROM api_commands WHERE expires_at <= $1`
	args := []any{before}
	if limit > 0 {
		query = `
			DELETE FROM api_commands
			WHERE idempotency_key IN (
				SELECT idempotency_key FROM api_commands
				WHERE expires_at <= $1
				ORDER BY expires_at
				LIMIT $2
				FOR UPDATE SKIP LOCKED
			)`
		args = append(args, limit)
	}

	res, err := j.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete expired commands: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(affected), nil
}

// execOnRunning выполняет запрос над выполняющейся командой; $1 всегда ключ.
func (j *commandJournal) execOnRunning(key, action, query string, args ...any) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := j.db.ExecContext(ctx, query, append([]any{key}, args...)...)
	if err != nil {
		return fmt.Errorf("%s command %s: %w", action, key, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrIdempotencyKeyNotFound
	}
	return nil
}

var _ domain.IdempotencyRepository = (*commandJournal)(nil)
