// Package redisstore хранит журнал команд API в Redis.
// Каждая команда — hash с TTL до истечения срока хранения, поэтому DeleteExpired здесь пустой.
package redisstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
)

const (
	opTimeout        = 2 * time.Second
	defaultKeyPrefix = "wholesale:command:"
)

// Поля hash команды.
const (
	fieldMethod      = "method"
	fieldRequestHash = "request_hash"
	fieldState       = "state"
	fieldCode        = "code"
	fieldMessage     = "message"
	fieldOrderID     = "order_id"
	fieldResponse    = "response"
	fieldExpiresAt   = "expires_at"
	fieldCreatedAt   = "created_at"
	fieldUpdatedAt   = "updated_at"
)

// claimScript создаёт hash, только если ключ свободен. ARGV[1] — TTL в мс, дальше пары поле/значение.
var claimScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV, 2))
redis.call('PEXPIRE', KEYS[1], ARGV[1])
return 1
`)

// settleScript записывает итог, если команда ещё выполняется; TTL сохраняется.
var settleScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'state') ~= 'running' then
	return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV))
return 1
`)

// abandonScript удаляет команду, если она ещё выполняется.
var abandonScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'state') ~= 'running' then
	return 0
end
return redis.call('DEL', KEYS[1])
`)

// Open подключается к Redis и проверяет соединение.
func Open(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	pingCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", addr, err)
	}
	return client, nil
}

// IdempotencyRepository реализует domain.IdempotencyRepository поверх Redis.
type IdempotencyRepository struct {
	client redis.Cmdable
	prefix string
	now    func() time.Time
}

// Option настраивает IdempotencyRepository.
type Option func(*IdempotencyRepository)

// WithKeyPrefix задаёт префикс ключей, например для нескольких стендов в одном Redis.
func WithKeyPrefix(prefix string) Option {
	return func(r *IdempotencyRepository) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// NewIdempotencyRepository создаёт журнал команд поверх клиента Redis.
func NewIdempotencyRepository(client redis.Cmdable, opts ...Option) *IdempotencyRepository {
	repo := &IdempotencyRepository{
		client: client,
		prefix: defaultKeyPrefix,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

func (r *IdempotencyRepository) Claim(claim domain.CommandClaim) (domain.CommandRecord, error) {
	now := r.now()
	claim, err := claim.Normalize(now)
	if err != nil {
		return domain.CommandRecord{}, err
	}
	record := claim.Record(now)

	ttl := claim.ExpiresAt.Sub(now)
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	args := []interface{}{ttl.Milliseconds(),
		fieldMethod, record.Method,
		fieldRequestHash, record.RequestHash,
		fieldState, string(record.State),
		fieldExpiresAt, formatTime(record.ExpiresAt),
		fieldCreatedAt, formatTime(record.CreatedAt),
		fieldUpdatedAt, formatTime(record.UpdatedAt),
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	claimed, err := claimScript.Run(ctx, r.client, []string{r.redisKey(claim.Key)}, args...).Int()
	if err != nil {
		return domain.CommandRecord{}, fmt.Errorf("claim command %s: %w", claim.Key, err)
	}
	if claimed == 1 {
		return record, nil
	}

	existing, err := r.Get(claim.Key)
	if err != nil {
		return domain.CommandRecord{}, fmt.Errorf("load claimed command %s: %w", claim.Key, err)
	}
	return existing, existing.ConflictWith(claim)
}

func (r *IdempotencyRepository) Get(key string) (domain.CommandRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.CommandRecord{}, domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	fields, err := r.client.HGetAll(ctx, r.redisKey(key)).Result()
	if err != nil {
		return domain.CommandRecord{}, fmt.Errorf("get command %s: %w", key, err)
	}
	if len(fields) == 0 {
		return domain.CommandRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	return decodeRecord(key, fields)
}

func (r *IdempotencyRepository) Settle(key string, outcome domain.CommandOutcome) error {
	return r.runOnRunning(settleScript, "settle", key,
		fieldState, string(domain.CommandStateSettled),
		fieldCode, strconv.FormatUint(uint64(outcome.Code), 10),
		fieldMessage, outcome.Message,
		fieldOrderID, outcome.OrderID,
		fieldResponse, outcome.Response,
		fieldUpdatedAt, formatTime(r.now()),
	)
}

func (r *IdempotencyRepository) Abandon(key string) error {
	return r.runOnRunning(abandonScript, "abandon", key)
}

// DeleteExpired ничего не сканирует: Redis сам удаляет ключи по TTL.
func (r *IdempotencyRepository) DeleteExpired(time.Time, int) (int, error) {
	return 0, nil
}

// Ping используется readiness-пробой.
func (r *IdempotencyRepository) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return r.client.Ping(pingCtx).Err()
}

func (r *IdempotencyRepository) runOnRunning(script *redis.Script, action, key string, args ...interface{}) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	applied, err := script.Run(ctx, r.client, []string{r.redisKey(key)}, args...).Int()
	if err != nil {
		return fmt.Errorf("%s command %s: %w", action, key, err)
	}
	if applied == 0 {
		return domain.ErrIdempotencyKeyNotFound
	}
	return nil
}

func (r *IdempotencyRepository) redisKey(key string) string {
	return r.prefix + key
}

func decodeRecord(key string, fields map[string]string) (domain.CommandRecord, error) {
	record := domain.CommandRecord{
		Key:         key,
		Method:      fields[fieldMethod],
		RequestHash: fields[fieldRequestHash],
		State:       domain.CommandState(fields[fieldState]),
		Outcome: domain.CommandOutcome{
			Message: fields[fieldMessage],
			OrderID: fields[fieldOrderID],
		},
	}
	if !record.State.Valid() {
		return domain.CommandRecord{}, fmt.Errorf("command %s has unknown state %q", key, fields[fieldState])
	}
	if raw := fields[fieldResponse]; raw != "" {
		record.Outcome.Response = []byte(raw)
	}
	if raw := fields[fieldCode]; raw != "" {
		code, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return domain.CommandRecord{}, fmt.Errorf("command %s has invalid code %q: %w", key, raw, err)
		}
		record.Outcome.Code = uint32(code)
	}

	var err error
	for field, dst := range map[string]*time.Time{
		fieldExpiresAt: &record.ExpiresAt,
		fieldCreatedAt: &record.CreatedAt,
		fieldUpdatedAt: &record.UpdatedAt,
	} {
		if *dst, err = time.Parse(time.RFC3339Nano, fields[field]); err != nil {
			return domain.CommandRecord{}, fmt.Errorf("command %s has invalid %s: %w", key, field, err)
		}
	}
	return record, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

var _ domain.IdempotencyRepository = (*IdempotencyRepository)(nil)
