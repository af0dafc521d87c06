package domain

import (
	"strings"
	"time"
)

// DefaultCommandTTL — сколько хранится итог команды для повторов клиента.
const DefaultCommandTTL = 24 * time.Hour

// CommandState — этап обработки мутирующей команды API под ключом идемпотентности.
type CommandState string

const (
	// CommandStateRunning — команда выполняется; повтор с тем же ключом отклоняется.
	CommandStateRunning CommandState = "running"
	// CommandStateSettled — итог сохранён и отдаётся повторам.
	CommandStateSettled CommandState = "settled"
)

// Valid проверяет, что состояние известно.
func (s CommandState) Valid() bool {
	return s == CommandStateRunning || s == CommandStateSettled
}

// CommandOutcome — итог команды: ответ или бизнес-отказ.
// Сбои инфраструктуры не сохраняются, такую команду клиент повторяет заново.
type CommandOutcome struct {
	// Code — числовой gRPC-код, 0 для успеха.
	Code    uint32
	Message string
	// OrderID — заказ, который команда создала или изменила; пусто для проводок леджера.
	OrderID  string
	Response []byte
}

// Succeeded сообщает, что команда выполнена и Response содержит ответ.
func (o CommandOutcome) Succeeded() bool {
	return o.Code == 0
}

// CommandClaim — заявка на выполнение команды под ключом.
type CommandClaim struct {
	Key string
	// Method — полное имя gRPC-метода.
	Method      string
	RequestHash string
	ExpiresAt   time.Time
}

// Normalize обрезает пробелы, проверяет обязательные поля и подставляет срок хранения.
func (c CommandClaim) Normalize(now time.Time) (CommandClaim, error) {
	c.Key = strings.TrimSpace(c.Key)
	c.Method = strings.TrimSpace(c.Method)
	c.RequestHash = strings.TrimSpace(c.RequestHash)

	switch {
	case c.Key == "":
		return CommandClaim{}, ErrIdempotencyKeyRequired
	case c.Method == "":
		return CommandClaim{}, ErrIdempotencyMethodRequired
	case c.RequestHash == "":
		return CommandClaim{}, ErrIdempotencyRequestHashRequired
	}
	if c.ExpiresAt.IsZero() {
		c.ExpiresAt = now.Add(DefaultCommandTTL)
	}
	return c, nil
}

// Record создаёт запись выполняющейся команды.
func (c CommandClaim) Record(now time.Time) CommandRecord {
	return CommandRecord{
		Key:         c.Key,
		Method:      c.Method,
		RequestHash: c.RequestHash,
		State:       CommandStateRunning,
		ExpiresAt:   c.ExpiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// CommandRecord — запись журнала команд по ключу идемпотентности.
type CommandRecord struct {
	Key         string
	Method      string
	RequestHash string
	State       CommandState
	Outcome     CommandOutcome
	ExpiresAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Settled сообщает, что итог можно отдавать повторно.
func (r CommandRecord) Settled() bool {
	return r.State == CommandStateSettled
}

// ConflictWith объясняет, почему заявку нельзя выполнить поверх существующей записи:
// ключ уже занят той же командой или переиспользован для другого метода или тела.
func (r CommandRecord) ConflictWith(claim CommandClaim) error {
	if r.Method != claim.Method || r.RequestHash != claim.RequestHash {
		return ErrIdempotencyHashMismatch
	}
	return ErrIdempotencyKeyAlreadyExists
}

// Clone копирует запись вместе с телом ответа.
func (r CommandRecord) Clone() CommandRecord {
	r.Outcome.Response = append([]byte(nil), r.Outcome.Response...)
	return r
}
