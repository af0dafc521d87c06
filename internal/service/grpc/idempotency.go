package grpcsvc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
)

const idempotencyKeyHeader = "idempotency-key"

// orderScoped реализуют запросы и ответы, которые относятся к одному заказу.
type orderScoped interface {
	commandOrderID() string
}

// withIdempotency выполняет мутирующую команду не более одного раза на ключ.
// Ответ и бизнес-отказ сохраняются в журнал и отдаются повторам; сбой
// инфраструктуры снимает запись, чтобы клиент мог повторить команду.
func withIdempotency[T any](
	s *OrderService,
	ctx context.Context,
	method string,
	req any,
	handler func(context.Context) (*T, error),
) (*T, error) {
	if s.idemRepo == nil {
		return handler(ctx)
	}

	key, err := readIdempotencyKey(ctx)
	if err != nil {
		return nil, err
	}

	hash, err := buildIdempotencyRequestHash(method, req)
	if err != nil {
		s.logger.WithError(err).WithField("method", method).Warn("failed to hash command request")
		return nil, status.Error(codes.Internal, "failed to register command")
	}

	record, err := s.idemRepo.Claim(domain.CommandClaim{
		Key:         key,
		Method:      method,
		RequestHash: hash,
		ExpiresAt:   time.Now().UTC().Add(domain.DefaultCommandTTL),
	})
	if err != nil {
		return replayCommand[T](s, err, record)
	}

	resp, runErr := handler(ctx)
	if runErr != nil {
		s.recordFailure(key, method, req, runErr)
		return nil, runErr
	}
	s.recordSuccess(key, method, req, resp)
	return resp, nil
}

// replayCommand отвечает на повтор по записи журнала.
func replayCommand[T any](s *OrderService, claimErr error, record domain.CommandRecord) (*T, error) {
	switch {
	case errors.Is(claimErr, domain.ErrIdempotencyHashMismatch):
		return nil, status.Errorf(codes.AlreadyExists, "idempotency key is already used by %s with a different request", record.Method)
	case !errors.Is(claimErr, domain.ErrIdempotencyKeyAlreadyExists):
		s.logger.WithError(claimErr).Warn("failed to register command")
		return nil, status.Error(codes.Internal, "failed to register command")
	case !record.Settled():
		return nil, status.Error(codes.Aborted, "command with this idempotency key is still running")
	case !record.Outcome.Succeeded():
		return nil, outcomeError(record.Outcome)
	}

	resp := new(T)
	if err := json.Unmarshal(record.Outcome.Response, resp); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"idempotency_key": record.Key,
			"order_id":        record.Outcome.OrderID,
		}).Warn("failed to decode stored command response")
		return nil, status.Error(codes.Internal, "failed to decode stored command response")
	}
	return resp, nil
}

func (s *OrderService) recordSuccess(key, method string, req, resp any) {
	outcome := domain.CommandOutcome{OrderID: commandOrderID(resp, req)}
	body, err := json.Marshal(resp)
	if err != nil {
		// Команда уже выполнена: повтор не должен исполнить её второй раз.
		s.logger.WithError(err).WithField("idempotency_key", key).Error("failed to encode command response")
		outcome.Code = uint32(codes.Internal)
		outcome.Message = "command succeeded but its response could not be stored"
	} else {
		outcome.Response = body
	}
	s.settle(key, method, outcome)
}

func (s *OrderService) recordFailure(key, method string, req any, runErr error) {
	st := status.Convert(runErr)
	if !isFinalRejection(st.Code()) {
		if err := s.idemRepo.Abandon(key); err != nil {
			s.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to release command after transient failure")
		}
		return
	}
	s.settle(key, method, domain.CommandOutcome{
		Code:    uint32(st.Code()),
		Message: st.Message(),
		OrderID: commandOrderID(req),
	})
}

func (s *OrderService) settle(key, method string, outcome domain.CommandOutcome) {
	if err := s.idemRepo.Settle(key, outcome); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"idempotency_key": key,
			"method":          method,
			"order_id":        outcome.OrderID,
		}).Warn("failed to store command outcome")
	}
}

// isFinalRejection отличает отказы, которые повтор не изменит, от временных сбоев.
// Конфликт версий (Aborted) временный: клиент повторяет команду с тем же ключом.
func isFinalRejection(code codes.Code) bool {
	switch code {
	case codes.InvalidArgument, codes.NotFound, codes.AlreadyExists,
		codes.FailedPrecondition, codes.OutOfRange, codes.PermissionDenied:
		return true
	default:
		return false
	}
}

func outcomeError(outcome domain.CommandOutcome) error {
	code := codes.Code(outcome.Code)
	if code == codes.OK || code > codes.Unauthenticated {
		code = codes.Internal
	}
	message := outcome.Message
	if message == "" {
		message = "previous command with this idempotency key failed"
	}
	return status.Error(code, message)
}

func commandOrderID(values ...any) string {
	for _, v := range values {
		if scoped, ok := v.(orderScoped); ok && scoped.commandOrderID() != "" {
			return scoped.commandOrderID()
		}
	}
	return ""
}

func readIdempotencyKey(ctx context.Context) (string, error) {
	for _, read := range []func(context.Context) (metadata.MD, bool){
		metadata.FromIncomingContext,
		metadata.FromOutgoingContext,
	} {
		md, ok := read(ctx)
		if !ok {
			continue
		}
		if values := md.Get(idempotencyKeyHeader); len(values) > 0 {
			if key := strings.TrimSpace(values[0]); key != "" {
				return key, nil
			}
		}
	}
	return "", status.Error(codes.InvalidArgument, "idempotency-key metadata is required")
}

// buildIdempotencyRequestHash хэширует метод и JSON тела запроса.
// encoding/json сериализует поля структуры в порядке объявления, поэтому хэш стабилен.
func buildIdempotencyRequestHash(method string, req any) (string, error) {
	if req == nil {
		return "", fmt.Errorf("request is nil")
	}

	data, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	sum := sha256.New()
	sum.Write([]byte(method))
	sum.Write([]byte{':'})
	sum.Write(data)
	return hex.EncodeToString(sum.Sum(nil)), nil
}
