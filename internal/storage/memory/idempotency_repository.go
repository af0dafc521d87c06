package memory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
)

// CommandJournal — журнал команд API в памяти процесса.
type CommandJournal struct {
	mu       sync.Mutex
	commands map[string]domain.CommandRecord
	now      func() time.Time
}

// NewIdempotencyRepository создаёт журнал команд в памяти.
func NewIdempotencyRepository() *CommandJournal {
	return &CommandJournal{
		commands: make(map[string]domain.CommandRecord),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Claim регистрирует команду; просроченная запись под тем же ключом заменяется.
func (j *CommandJournal) Claim(claim domain.CommandClaim) (domain.CommandRecord, error) {
	now := j.now()
	claim, err := claim.Normalize(now)
	if err != nil {
		return domain.CommandRecord{}, err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if existing, ok := j.commands[claim.Key]; ok && existing.ExpiresAt.After(now) {
		return existing.Clone(), existing.ConflictWith(claim)
	}

	record := claim.Record(now)
	j.commands[claim.Key] = record
	return record.Clone(), nil
}

func (j *CommandJournal) Get(key string) (domain.CommandRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.CommandRecord{}, domain.ErrIdempotencyKeyRequired
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	record, ok := j.commands[key]
	if !ok {
		return domain.CommandRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	return record.Clone(), nil
}

// Settle сохраняет итог; завершённую или чужую запись не трогает.
func (j *CommandJournal) Settle(key string, outcome domain.CommandOutcome) error {
	return j.withRunning(key, func(record domain.CommandRecord) {
		record.State = domain.CommandStateSettled
		record.Outcome = outcome
		record.Outcome.Response = append([]byte(nil), outcome.Response...)
		record.UpdatedAt = j.now()
		j.commands[record.Key] = record
	})
}

func (j *CommandJournal) Abandon(key string) error {
	return j.withRunning(key, func(record domain.CommandRecord) {
		delete(j.commands, record.Key)
	})
}

// DeleteExpired удаляет просроченные записи, начиная с самых старых; limit<=0 снимает ограничение.
func (j *CommandJournal) DeleteExpired(before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = j.now()
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	expired := make([]domain.CommandRecord, 0)
	for _, record := range j.commands {
		if !record.ExpiresAt.After(before) {
			expired = append(expired, record)
		}
	}
	sort.Slice(expired, func(a, b int) bool { return expired[a].ExpiresAt.Before(expired[b].ExpiresAt) })
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}

	for _, record := range expired {
		delete(j.commands, record.Key)
	}
	return len(expired), nil
}

// withRunning вызывает fn под блокировкой, если под ключом выполняется команда.
func (j *CommandJournal) withRunning(key string, fn func(domain.CommandRecord)) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	record, ok := j.commands[key]
	if !ok || record.State != domain.CommandStateRunning {
		return domain.ErrIdempotencyKeyNotFound
	}
	fn(record)
	return nil
}

var _ domain.IdempotencyRepository = (*CommandJournal)(nil)
