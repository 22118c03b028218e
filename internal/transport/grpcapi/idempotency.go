package grpcapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/idempotency"
)

const idempotencyFailedMessage = "previous request with the same idempotency key failed"

// cachedFailure — gRPC-статус неудачного вызова в записи идемпотентности.
type cachedFailure struct {
	Code    codes.Code `json:"code"`
	Message string     `json:"message"`
}

// withIdempotency выполняет мутацию один раз на пару (метод, idempotency-key).
// Пока хранилище ключей настроено, ключ обязателен. Ошибки кешируются вместе с кодом.
func withIdempotency[T any](
	d *OrderDesk,
	ctx context.Context,
	method string,
	req any,
	handler func(context.Context) (*T, error),
) (*T, error) {
	if d.guard == nil {
		return handler(ctx)
	}

	fingerprint, err := requestFingerprint(method, req)
	if err != nil {
		d.logger.WithError(err).WithField("method", method).Warn("cannot fingerprint request")
		return nil, status.Error(codes.Internal, "failed to initialize idempotency request")
	}
	ticket, err := d.guard.Begin(ctx, "grpc:"+method, metadataKey(ctx), fingerprint)
	if err != nil {
		return nil, beginStatus(d, err)
	}
	if rec, ok := ticket.Replay(); ok {
		return replayed[T](d, rec)
	}

	resp, runErr := handler(ctx)
	if runErr != nil {
		st := status.Convert(runErr)
		failure := cachedFailure{Code: st.Code(), Message: st.Message()}
		if failure.Code == codes.OK {
			failure.Code = codes.Internal
		}
		body, _ := json.Marshal(failure)
		ticket.Fail(ctx, body, int(failure.Code))
		return nil, runErr
	}

	if body, err := json.Marshal(resp); err != nil {
		d.logger.WithError(err).WithField("method", method).Warn("response is not cacheable")
	} else {
		ticket.Succeed(ctx, body, int(codes.OK))
	}
	return resp, nil
}

func beginStatus(d *OrderDesk, err error) error {
	switch {
	case errors.Is(err, domain.ErrIdempotencyKeyRequired):
		return status.Errorf(codes.InvalidArgument, "%s metadata is required", IdempotencyKeyMetadata)
	case errors.Is(err, idempotency.ErrKeyTooLong):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return status.Error(codes.AlreadyExists, "idempotency key is already used with different request payload")
	case errors.Is(err, idempotency.ErrInFlight):
		return status.Error(codes.Aborted, err.Error())
	default:
		d.logger.WithError(err).Warn("failed to claim idempotency key")
		return status.Error(codes.Internal, "failed to initialize idempotency request")
	}
}

func replayed[T any](d *OrderDesk, rec domain.IdempotencyRecord) (*T, error) {
	if rec.Status == domain.IdempotencyStatusFailed {
		return nil, decodeIdempotencyFailure(rec)
	}
	resp := new(T)
	if err := json.Unmarshal(rec.ResponseBody, resp); err != nil {
		d.logger.WithError(err).WithField("idempotency_key", rec.Key).Warn("cached response is unreadable")
		return nil, status.Error(codes.Internal, "failed to decode cached idempotency response")
	}
	return resp, nil
}

// decodeIdempotencyFailure восстанавливает статус из тела записи, а если оно битое, то из кода.
func decodeIdempotencyFailure(rec domain.IdempotencyRecord) error {
	var failure cachedFailure
	if json.Unmarshal(rec.ResponseBody, &failure) == nil && failure.Code != codes.OK && validCode(int(failure.Code)) {
		if failure.Message == "" {
			failure.Message = idempotencyFailedMessage
		}
		return status.Error(failure.Code, failure.Message)
	}
	if rec.HTTPStatus != int(codes.OK) && validCode(rec.HTTPStatus) {
		return status.Error(codes.Code(uint32(rec.HTTPStatus)), idempotencyFailedMessage)
	}
	return status.Error(codes.Internal, idempotencyFailedMessage)
}

func validCode(v int) bool {
	return v >= int(codes.OK) && v <= int(codes.Unauthenticated)
}

func metadataKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(IdempotencyKeyMetadata); len(values) > 0 {
		return values[0]
	}
	return ""
}

// requestFingerprint хеширует метод и JSON запроса; поля структур кодируются в фиксированном порядке.
func requestFingerprint(method string, req any) (string, error) {
	if req == nil {
		return "", fmt.Errorf("request is nil")
	}
	data, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	return idempotency.Fingerprint([]byte(method), data), nil
}
